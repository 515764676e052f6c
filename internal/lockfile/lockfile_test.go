package lockfile

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestLockAcquisition(t *testing.T) {
	dir := t.TempDir()

	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	defer lock.Release()

	if lock.Path() != filepath.Join(dir, LockFileName) {
		t.Errorf("unexpected lock path %s", lock.Path())
	}
	content, err := os.ReadFile(lock.Path())
	if err != nil {
		t.Fatalf("Failed to read lock file: %v", err)
	}
	if !strings.HasPrefix(string(content), "pid="+strconv.Itoa(os.Getpid())+"\n") {
		t.Errorf("lock file should start with our pid, got %q", content)
	}
	if !strings.Contains(string(content), "started=") {
		t.Errorf("lock file should record a start time, got %q", content)
	}
}

func TestLockConflict(t *testing.T) {
	dir := t.TempDir()

	first, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("Failed to acquire first lock: %v", err)
	}
	defer first.Release()

	second, err := AcquireLock(dir)
	if err == nil {
		second.Release()
		t.Fatal("Expected second lock to fail")
	}
	var lockErr *LockError
	if !errors.As(err, &lockErr) {
		t.Fatalf("Expected *LockError, got %T", err)
	}
	if lockErr.Holder.PID != os.Getpid() || !lockErr.Holder.Running {
		t.Errorf("expected holder to be this running process, got %+v", lockErr.Holder)
	}
	if lockErr.Holder.Started.IsZero() {
		t.Error("expected holder start time to be parsed")
	}
	if !strings.Contains(err.Error(), "another ProfileNudge instance") {
		t.Errorf("unexpected message: %s", err)
	}

	// A failed attempt must not clobber the holder's record.
	content, _ := os.ReadFile(first.Path())
	if !strings.HasPrefix(string(content), "pid="+strconv.Itoa(os.Getpid())) {
		t.Errorf("holder record was overwritten: %q", content)
	}
}

func TestLockReleaseAndReacquire(t *testing.T) {
	dir := t.TempDir()

	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Errorf("second Release should be a no-op, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, LockFileName)); !os.IsNotExist(err) {
		t.Error("lock file should be removed on release")
	}

	again, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("Failed to reacquire lock: %v", err)
	}
	again.Release()
}

func TestLockCreatesStateDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "state")
	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("Failed to acquire lock in new directory: %v", err)
	}
	defer lock.Release()
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("state directory not created: %v", err)
	}
}

func TestReadHolder(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
		wantPID int
	}{
		{"full record", "pid=4242\nstarted=2026-01-02T03:04:05Z\n", 4242},
		{"pid only", "pid=17\n", 17},
		{"garbage", "hello", 0},
		{"bad pid", "pid=abc\n", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name)
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			h := readHolder(path)
			if h.PID != tt.wantPID {
				t.Errorf("expected pid %d, got %d", tt.wantPID, h.PID)
			}
			if tt.wantPID == 0 && h.String() != "unknown process" {
				t.Errorf("unexpected description %q", h.String())
			}
		})
	}

	if h := readHolder(filepath.Join(dir, "missing")); h.PID != 0 {
		t.Errorf("missing file should yield empty holder, got %+v", h)
	}
}
