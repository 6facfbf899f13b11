// Package auth implements the interchangeable authentication strategies of
// the API: a bearer access/refresh token pair, a server-held session and a
// signed cookie session. Exactly one is active per deployment.
package auth

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net/http"

	"places-server/config"
	"places-server/utils/errors"

	"github.com/gorilla/sessions"
	"github.com/redis/go-redis/v9"
)

// Principal is the authenticated identity attached to a request.
type Principal struct {
	UserID   string `json:"id"`
	Username string `json:"username"`
}

// Credentials is what a successful login or refresh hands back to the client.
// Session based strategies leave every field empty; the cookie carries the
// credential.
type Credentials struct {
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
}

type Strategy interface {
	Name() string
	// Issue establishes a credential for p after a successful login.
	Issue(w http.ResponseWriter, r *http.Request, p Principal) (Credentials, error)
	// Authenticate resolves the principal of an incoming request.
	Authenticate(r *http.Request) (Principal, error)
	// Refresh trades a refresh token for a new access credential.
	Refresh(ctx context.Context, refreshToken string) (Credentials, error)
	// Revoke ends the credential. Token strategies need refreshToken, session
	// strategies read the request cookie.
	Revoke(w http.ResponseWriter, r *http.Request, refreshToken string) error
}

var (
	ErrMissingCredential   = errors.ErrUnauthorized.WithMessage("Login required (bearer token missing)")
	ErrInvalidCredential   = errors.ErrUnauthorized.WithMessage("Token invalid or expired")
	ErrNoSession           = errors.ErrUnauthorized.WithMessage("Login required")
	ErrInvalidRefreshToken = errors.ErrUnauthorized.WithMessage("Refresh token invalid or expired")
	ErrMissingRefreshToken = errors.Validation("Refresh token required",
		errors.FieldError{Field: "refresh_token", Msg: "required"})
	ErrRefreshUnsupported = errors.ErrInvalidInput.WithMessage("Token refresh is not available with session authentication")
)

// NewStrategy builds the strategy selected by cfg.Strategy. When rdb is non-nil
// the refresh allow-list and server sessions live in Redis, otherwise in
// process memory.
func NewStrategy(cfg config.AuthConfig, rdb *redis.Client) (Strategy, error) {
	switch cfg.Strategy {
	case config.StrategyToken:
		var store RefreshTokenStore = NewMemoryRefreshStore()
		if rdb != nil {
			store = NewRedisRefreshStore(rdb)
		}
		tm := NewTokenManager(cfg.AccessSecret, cfg.RefreshSecret, cfg.AccessTTL, cfg.RefreshTTL)
		return NewTokenStrategy(tm, store), nil

	case config.StrategySession:
		hashKey, blockKey := sessionKeys(cfg.SessionSecret)
		var store *ServerStore
		if rdb != nil {
			store = NewRedisServerStore(rdb, hashKey, blockKey)
		} else {
			store = NewMemoryServerStore(hashKey, blockKey)
		}
		store.Options = sessionOptions(cfg)
		return NewSessionStrategy(cfg.Strategy, store, cfg.CookieName), nil

	case config.StrategyCookie:
		hashKey, blockKey := sessionKeys(cfg.SessionSecret)
		store := sessions.NewCookieStore(hashKey, blockKey)
		store.Options = sessionOptions(cfg)
		return NewSessionStrategy(cfg.Strategy, store, cfg.CookieName), nil
	}
	return nil, fmt.Errorf("unknown auth strategy %q", cfg.Strategy)
}

func sessionOptions(cfg config.AuthConfig) *sessions.Options {
	return &sessions.Options{
		Path:     "/",
		MaxAge:   cfg.SessionMaxAge,
		HttpOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

// sessionKeys derives the HMAC key and the AES-256 key from one secret.
func sessionKeys(secret string) (hashKey, blockKey []byte) {
	sum := sha256.Sum256([]byte("places-session-block:" + secret))
	return []byte(secret), sum[:]
}

type ctxKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// PrincipalFrom returns the principal stored by the auth middleware.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok && p.UserID != ""
}
