package auth

import (
	"context"
	"net/http"

	"places-server/utils/errors"

	"github.com/gorilla/sessions"
)

const (
	sessionUserID   = "userId"
	sessionUsername = "username"
)

// SessionStrategy authenticates requests by a user id kept in a gorilla
// session. The store decides whether the values live on the server
// (ServerStore) or inside the cookie itself (sessions.CookieStore).
type SessionStrategy struct {
	name       string
	store      sessions.Store
	cookieName string
}

func NewSessionStrategy(name string, store sessions.Store, cookieName string) *SessionStrategy {
	return &SessionStrategy{name: name, store: store, cookieName: cookieName}
}

func (s *SessionStrategy) Name() string { return s.name }

func (s *SessionStrategy) session(r *http.Request) (*sessions.Session, error) {
	// A decode error still yields a usable new session; only a nil session
	// is fatal.
	sess, err := s.store.Get(r, s.cookieName)
	if sess == nil {
		return nil, err
	}
	return sess, nil
}

// regenerator is implemented by stores that key sessions by a server-side id.
type regenerator interface {
	Regenerate(r *http.Request, session *sessions.Session) error
}

// Issue starts a new session for p. Any session the request already carried
// is discarded so a login never keeps an id chosen before it.
func (s *SessionStrategy) Issue(w http.ResponseWriter, r *http.Request, p Principal) (Credentials, error) {
	sess, err := s.session(r)
	if err != nil {
		return Credentials{}, errors.Internal(err, "Failed to create session")
	}
	if rg, ok := s.store.(regenerator); ok {
		if err := rg.Regenerate(r, sess); err != nil {
			return Credentials{}, errors.Internal(err, "Failed to create session")
		}
	}
	for k := range sess.Values {
		delete(sess.Values, k)
	}
	sess.Values[sessionUserID] = p.UserID
	sess.Values[sessionUsername] = p.Username
	if err := sess.Save(r, w); err != nil {
		return Credentials{}, errors.Internal(err, "Failed to create session")
	}
	return Credentials{}, nil
}

func (s *SessionStrategy) Authenticate(r *http.Request) (Principal, error) {
	sess, err := s.session(r)
	if err != nil {
		return Principal{}, errors.Internal(err, "Failed to read session")
	}
	userID, _ := sess.Values[sessionUserID].(string)
	if userID == "" {
		return Principal{}, ErrNoSession
	}
	username, _ := sess.Values[sessionUsername].(string)
	return Principal{UserID: userID, Username: username}, nil
}

func (s *SessionStrategy) Refresh(context.Context, string) (Credentials, error) {
	return Credentials{}, ErrRefreshUnsupported
}

func (s *SessionStrategy) Revoke(w http.ResponseWriter, r *http.Request, _ string) error {
	sess, err := s.session(r)
	if err != nil {
		return errors.Internal(err, "Failed to read session")
	}
	for k := range sess.Values {
		delete(sess.Values, k)
	}
	sess.Options.MaxAge = -1
	if err := sess.Save(r, w); err != nil {
		return errors.Internal(err, "Failed to destroy session")
	}
	return nil
}
