package contextstore

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time
}

// MemoryStore keeps contexts in process memory. It suits single-instance
// deployments and tests; contexts are lost on restart.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// Compile-time check that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory context store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	cfg := applyOptions(opts)
	slog.Debug("NewMemoryStore invoked", "ttl", cfg.TTL)
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     cfg.TTL,
		now:     cfg.Now,
	}
}

func (s *MemoryStore) Put(ctx context.Context, kind string, payload []byte) (string, error) {
	token := NewToken(kind)
	buf := make([]byte, len(payload))
	copy(buf, payload)

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.evictExpiredLocked(now)
	s.entries[token] = memoryEntry{payload: buf, expiresAt: now.Add(s.ttl)}
	slog.Debug("MemoryStore.Put stored context", "kind", kind, "entries", len(s.entries))
	return token, nil
}

func (s *MemoryStore) Take(ctx context.Context, token string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[token]
	if !ok {
		return nil, ErrNotFound
	}
	delete(s.entries, token)
	if !s.now().Before(entry.expiresAt) {
		slog.Debug("MemoryStore.Take token expired", "kind", KindOf(token))
		return nil, ErrNotFound
	}
	return entry.payload, nil
}

// Len returns the number of stored, possibly expired, contexts.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStore) evictExpiredLocked(now time.Time) {
	for token, entry := range s.entries {
		if !now.Before(entry.expiresAt) {
			delete(s.entries, token)
		}
	}
}
