// Package contextstore provides short-lived, single-use storage for interaction state.
//
// A payload is stored under a freshly minted correlation token and can be taken
// back exactly once before its TTL runs out. Tokens carry their kind as a prefix
// so inbound callbacks can be routed before any lookup happens.
package contextstore

import (
	"context"
	"strings"
	"time"

	"github.com/BTreeMap/ProfileNudge/internal/models"
	"github.com/oklog/ulid/v2"
)

// DefaultTTL is how long a stored context stays redeemable.
const DefaultTTL = 30 * time.Minute

// tokenSeparator splits a token into its kind and unique part.
const tokenSeparator = ":"

// ErrNotFound is returned by Take when a token is unknown, expired or already taken.
var ErrNotFound = models.ErrContextNotFound

// Store is an expiring key-value store with at-most-once redemption.
type Store interface {
	// Put stores payload and returns the token that redeems it.
	Put(ctx context.Context, kind string, payload []byte) (string, error)

	// Take returns the payload stored under token and removes it.
	// It returns ErrNotFound when there is nothing to redeem.
	Take(ctx context.Context, token string) ([]byte, error)
}

// Opts holds configuration options shared by the store implementations.
type Opts struct {
	TTL       time.Duration
	KeyPrefix string
	Now       func() time.Time
}

// Option defines a configuration option for a context store.
type Option func(*Opts)

// WithTTL sets how long stored contexts stay redeemable.
func WithTTL(ttl time.Duration) Option {
	return func(o *Opts) { o.TTL = ttl }
}

// WithKeyPrefix namespaces backend keys (Redis only).
func WithKeyPrefix(prefix string) Option {
	return func(o *Opts) { o.KeyPrefix = prefix }
}

// WithClock overrides the time source (memory store only).
func WithClock(now func() time.Time) Option {
	return func(o *Opts) { o.Now = now }
}

func applyOptions(opts []Option) Opts {
	cfg := Opts{TTL: DefaultTTL, KeyPrefix: "profilenudge:interaction", Now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return cfg
}

// NewToken mints a correlation token for kind.
func NewToken(kind string) string {
	return kind + tokenSeparator + ulid.Make().String()
}

// KindOf returns the kind a token was minted for, or "" if token is malformed.
func KindOf(token string) string {
	kind, rest, ok := strings.Cut(token, tokenSeparator)
	if !ok || rest == "" {
		return ""
	}
	return kind
}

// HasKind reports whether token was minted for kind.
func HasKind(token, kind string) bool {
	return KindOf(token) == kind
}
