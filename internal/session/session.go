// Package session maintains the authenticated session for the paywalled
// e-edition: verification, at-most-one login under a cross-process file
// lock, and a cooperative lockout guard shared through the object cache.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"

	"newsroom/internal/fetch"
	"newsroom/internal/logger"
)

// ErrLockout is returned when a login attempt is suppressed by an active
// lockout window.
var ErrLockout = errors.New("session: login locked out")

// DefaultCooldown is the lockout window raised after a rate-limit signal.
const DefaultCooldown = 6 * time.Hour

// LoginFunc performs the actual credentialed login (a headless-browser
// collaborator in production) and persists the session storage state.
// proxied selects whether the attempt goes through the egress proxy.
// It returns (true, nil) on success and (false, nil) on a plain rejection.
type LoginFunc func(ctx context.Context, storagePath string, proxied bool) (bool, error)

// RateLimitError signals an HTTP 429 or a "too many login attempts" page
// encountered during login; it activates the lockout guard.
type RateLimitError struct {
	Detail string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("session: rate limited: %s", e.Detail)
}

// Manager owns the session lifecycle for one (site, egress-proxy) pair.
type Manager struct {
	storagePath  string
	protectedURL string
	fetcher      fetch.PageFetcher
	login        LoginFunc
	lockout      *LockoutStore
	maxRetries   int
	log          zerolog.Logger
}

// NewManager wires a session manager. fetcher must carry the storage-state
// cookies; login is the pluggable browser collaborator.
func NewManager(storagePath, protectedURL string, fetcher fetch.PageFetcher, login LoginFunc, lockout *LockoutStore) *Manager {
	return &Manager{
		storagePath:  storagePath,
		protectedURL: protectedURL,
		fetcher:      fetcher,
		login:        login,
		lockout:      lockout,
		maxRetries:   3,
		log:          logger.With("session"),
	}
}

// VerifySession performs an authenticated request against the protected
// URL. A redirect to a login page or a visible login form means the
// session is invalid.
func (m *Manager) VerifySession(ctx context.Context) bool {
	res, err := m.fetcher.Fetch(ctx, m.protectedURL)
	if err != nil {
		m.log.Warn().Err(err).Msg("session verification fetch failed")
		return false
	}
	if res.StatusCode != 200 {
		return false
	}
	if strings.Contains(strings.ToLower(res.FinalURL), "login") {
		return false
	}
	if hasLoginForm(res.Body) {
		return false
	}
	return true
}

// hasLoginForm detects a visible login form in a page body.
func hasLoginForm(body []byte) bool {
	lower := strings.ToLower(string(body))
	return strings.Contains(lower, `name="email"`) && strings.Contains(lower, `type="password"`) ||
		strings.Contains(lower, `name='email'`) && strings.Contains(lower, `type='password'`)
}

// Login attempts a credentialed login, proxied first then direct, with
// backoff between rounds. An active lockout short-circuits to false; a
// rate-limit signal raises the lockout and stops further attempts for the
// current process window.
func (m *Manager) Login(ctx context.Context) (bool, error) {
	if m.lockout != nil && m.lockout.Active(ctx) {
		m.log.Warn().Msg("login suppressed: lockout active")
		return false, ErrLockout
	}

	for attempt := 0; attempt < m.maxRetries; attempt++ {
		m.log.Info().Int("attempt", attempt+1).Int("max", m.maxRetries).Msg("login attempt")

		for _, proxied := range []bool{true, false} {
			ok, err := m.login(ctx, m.storagePath, proxied)
			if err != nil {
				var rl *RateLimitError
				if errors.As(err, &rl) {
					m.log.Error().Str("detail", rl.Detail).Msg("rate limited during login, activating lockout")
					if m.lockout != nil {
						m.lockout.Activate(ctx, rl.Detail, DefaultCooldown)
					}
					return false, ErrLockout
				}
				m.log.Warn().Err(err).Bool("proxied", proxied).Msg("login mode failed")
				continue
			}
			if ok {
				m.log.Info().Msg("login successful")
				if m.lockout != nil {
					m.lockout.Clear(ctx)
				}
				return true, nil
			}
		}

		if attempt < m.maxRetries-1 {
			wait := time.Duration(attempt+1) * 2 * time.Second
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return false, ctx.Err()
			}
		}
	}

	m.log.Error().Int("attempts", m.maxRetries).Msg("all login attempts failed")
	return false, nil
}

// Handle is an acquired session; Close releases the file lock.
type Handle struct {
	StoragePath string
	release     func() error
}

// Close releases the session lock.
func (h *Handle) Close() error {
	if h.release == nil {
		return nil
	}
	return h.release()
}

// WithSession takes the cross-process file lock bound to the storage-state
// path, verifies (or, when ensureAuth is set, establishes) the session
// exactly once, and returns a handle. The lock prevents concurrent
// re-logins when multiple workers start at the same time.
func (m *Manager) WithSession(ctx context.Context, ensureAuth bool) (*Handle, error) {
	lock := flock.New(m.storagePath + ".lock")

	locked, err := lock.TryLockContext(ctx, 500*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("session: lock acquisition failed: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("session: could not acquire lock on %s", m.storagePath)
	}

	if ensureAuth && !m.VerifySession(ctx) {
		m.log.Info().Msg("session invalid, attempting login")
		ok, err := m.Login(ctx)
		if err != nil {
			_ = lock.Unlock()
			return nil, err
		}
		if !ok {
			_ = lock.Unlock()
			return nil, fmt.Errorf("session: authentication failed")
		}
	}

	return &Handle{StoragePath: m.storagePath, release: lock.Unlock}, nil
}
