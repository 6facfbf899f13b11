package client

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"places-server/logger"
)

type SessionState int

const (
	StateAnonymous SessionState = iota
	StateAuthenticated
	StateWarning
	// StateExpired is passed through while credentials are purged; callers
	// observe StateAnonymous afterwards.
	StateExpired
)

func (s SessionState) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateWarning:
		return "warning"
	case StateExpired:
		return "expired"
	default:
		return "anonymous"
	}
}

const (
	DefaultLifetime = 30 * time.Second
	DefaultLead     = 10 * time.Second
)

var (
	ErrNoActiveSession   = stderrors.New("client: no active session")
	ErrNoRefreshToken    = stderrors.New("client: no refresh token stored")
	ErrSessionSuperseded = stderrors.New("client: session ended while refreshing")
)

// Refresher trades a refresh token for a new access token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (string, error)
}

// ExpiryReason says why a session ended on its own.
type ExpiryReason string

const (
	ReasonTimeout       ExpiryReason = "timeout"
	ReasonDeclined      ExpiryReason = "declined"
	ReasonRefreshFailed ExpiryReason = "refresh_failed"
)

// SessionManager owns the warning and expiry timers of the current access
// token. Exactly one timer pair is armed at a time; every transition out of
// authenticated or warning cancels it. Timer callbacks carry the generation
// they were armed for and do nothing once it is stale.
type SessionManager struct {
	mu        sync.Mutex
	clock     Clock
	lifetime  time.Duration
	lead      time.Duration
	storage   Storage
	refresher Refresher

	state       SessionState
	gen         uint64
	warnTimer   Timer
	expireTimer Timer

	onWarning []func()
	onExpired []func(ExpiryReason)
}

// NewSessionManager builds a manager for tokens living lifetime with a
// warning lead before expiry. A lead that is not below lifetime is clamped
// to half the lifetime.
func NewSessionManager(clock Clock, lifetime, lead time.Duration, storage Storage, refresher Refresher) *SessionManager {
	if clock == nil {
		clock = SystemClock{}
	}
	if lifetime <= 0 {
		lifetime = DefaultLifetime
	}
	if lead <= 0 || lead >= lifetime {
		lead = lifetime / 2
	}
	return &SessionManager{
		clock:     clock,
		lifetime:  lifetime,
		lead:      lead,
		storage:   storage,
		refresher: refresher,
	}
}

// OnWarning registers f to run when the warning timer fires.
func (m *SessionManager) OnWarning(f func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onWarning = append(m.onWarning, f)
}

// OnExpired registers f to run after the session expired and the stored
// credentials were purged.
func (m *SessionManager) OnExpired(f func(ExpiryReason)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpired = append(m.onExpired, f)
}

func (m *SessionManager) State() SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Start arms a fresh timer pair from now, cancelling any previous pair.
func (m *SessionManager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startLocked()
}

func (m *SessionManager) startLocked() {
	m.cancelLocked()
	gen := m.gen
	m.warnTimer = m.clock.AfterFunc(m.lifetime-m.lead, func() { m.warn(gen) })
	m.expireTimer = m.clock.AfterFunc(m.lifetime, func() { m.expire(gen, ReasonTimeout) })
	m.state = StateAuthenticated
}

// cancelLocked stops the armed pair and invalidates callbacks already queued.
func (m *SessionManager) cancelLocked() {
	if m.warnTimer != nil {
		m.warnTimer.Stop()
		m.warnTimer = nil
	}
	if m.expireTimer != nil {
		m.expireTimer.Stop()
		m.expireTimer = nil
	}
	m.gen++
}

func (m *SessionManager) warn(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.state != StateAuthenticated {
		m.mu.Unlock()
		return
	}
	m.state = StateWarning
	hooks := append([]func(){}, m.onWarning...)
	m.mu.Unlock()

	for _, f := range hooks {
		f()
	}
}

// Extend renews the access token with the stored refresh token and restarts
// the timers. Any failure expires the session.
func (m *SessionManager) Extend(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateAuthenticated && m.state != StateWarning {
		m.mu.Unlock()
		return ErrNoActiveSession
	}
	gen := m.gen
	refreshToken, _ := m.storage.Get(KeyRefreshToken)
	m.mu.Unlock()

	if refreshToken == "" {
		m.expire(gen, ReasonRefreshFailed)
		return ErrNoRefreshToken
	}
	access, err := m.refresher.Refresh(ctx, refreshToken)
	if err != nil {
		logger.Log.Warnw("session refresh failed", "err", err)
		m.expire(gen, ReasonRefreshFailed)
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return ErrSessionSuperseded
	}
	if err := m.storage.Set(KeyAccessToken, access); err != nil {
		logger.Log.Warnw("failed to persist access token", "err", err)
	}
	m.startLocked()
	return nil
}

// Decline ends the session at the user's request.
func (m *SessionManager) Decline() {
	m.mu.Lock()
	gen := m.gen
	m.mu.Unlock()
	m.expire(gen, ReasonDeclined)
}

func (m *SessionManager) expire(gen uint64, reason ExpiryReason) {
	m.mu.Lock()
	if gen != m.gen || (m.state != StateAuthenticated && m.state != StateWarning) {
		m.mu.Unlock()
		return
	}
	m.cancelLocked()
	m.state = StateExpired
	if err := clearSession(m.storage); err != nil {
		logger.Log.Warnw("failed to purge stored session", "err", err)
	}
	m.state = StateAnonymous
	hooks := append([]func(ExpiryReason){}, m.onExpired...)
	m.mu.Unlock()

	logger.Log.Infow("session expired", "reason", string(reason))
	for _, f := range hooks {
		f(reason)
	}
}

// Stop cancels the timers without purging anything. It is safe to call any
// number of times, including on teardown.
func (m *SessionManager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelLocked()
	m.state = StateAnonymous
}
