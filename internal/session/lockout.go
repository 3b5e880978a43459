package session

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"newsroom/internal/cache"
)

// LockoutMarker records a login lockout window. While active, all login
// attempts short-circuit to failure so workers do not dig the hole deeper.
type LockoutMarker struct {
	ActivatedAt time.Time `json:"activated_at"`
	Reason      string    `json:"reason"`
	ActiveUntil time.Time `json:"active_until"`
}

// objectStore is the slice of the object cache the lockout store needs.
type objectStore interface {
	PutText(ctx context.Context, key, text string) error
	GetText(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// LockoutStore persists the marker both locally and in the object cache.
// Writes are best-effort to each location; reads prefer whichever copy is
// present. The store is an owned value handed to the session manager, not
// package state.
type LockoutStore struct {
	mu        sync.Mutex
	cache     objectStore
	localPath string
}

// NewLockoutStore builds a store writing to the object cache (may be nil)
// and a local marker file next to the session storage state.
func NewLockoutStore(store objectStore, storagePath string) *LockoutStore {
	return &LockoutStore{
		cache:     store,
		localPath: filepath.Join(filepath.Dir(storagePath), "login-lockout.json"),
	}
}

// Active reports whether a lockout window currently applies.
func (l *LockoutStore) Active(ctx context.Context) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	marker := l.read(ctx)
	if marker == nil {
		return false
	}
	return time.Now().UTC().Before(marker.ActiveUntil)
}

// Activate records a lockout window in both locations.
func (l *LockoutStore) Activate(ctx context.Context, reason string, cooldown time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now().UTC()
	marker := LockoutMarker{
		ActivatedAt: now,
		Reason:      reason,
		ActiveUntil: now.Add(cooldown),
	}
	raw, err := json.Marshal(marker)
	if err != nil {
		return
	}

	// Best-effort to both sinks; a failed write to one must not block the
	// other.
	_ = os.WriteFile(l.localPath, raw, 0o644)
	if l.cache != nil {
		_ = l.cache.PutText(ctx, cache.LockoutKey, string(raw))
	}
}

// Clear removes the marker after a successful login.
func (l *LockoutStore) Clear(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	_ = os.Remove(l.localPath)
	if l.cache != nil {
		_ = l.cache.Delete(ctx, cache.LockoutKey)
	}
}

// read loads the marker, preferring the object cache copy so all workers
// see a lockout raised by any of them.
func (l *LockoutStore) read(ctx context.Context) *LockoutMarker {
	if l.cache != nil {
		if raw, err := l.cache.GetText(ctx, cache.LockoutKey); err == nil && raw != "" {
			if m := parseMarker([]byte(raw)); m != nil {
				return m
			}
		}
	}
	raw, err := os.ReadFile(l.localPath)
	if err != nil {
		return nil
	}
	return parseMarker(raw)
}

func parseMarker(raw []byte) *LockoutMarker {
	var m LockoutMarker
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	if m.ActiveUntil.IsZero() {
		return nil
	}
	return &m
}
