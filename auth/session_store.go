package auth

import (
	"bytes"
	"context"
	"encoding/base32"
	"encoding/gob"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"github.com/redis/go-redis/v9"
)

// sessionBackend persists encoded session values by session id.
type sessionBackend interface {
	load(ctx context.Context, id string) ([]byte, bool, error)
	save(ctx context.Context, id string, data []byte, ttl time.Duration) error
	delete(ctx context.Context, id string) error
}

// ServerStore is a gorilla sessions.Store that keeps session values on the
// server and only hands the browser a signed, encrypted session id.
type ServerStore struct {
	backend sessionBackend
	Codecs  []securecookie.Codec
	Options *sessions.Options
}

// NewRedisServerStore keeps sessions in Redis under "session:<id>".
func NewRedisServerStore(redisClient *redis.Client, keyPairs ...[]byte) *ServerStore {
	return newServerStore(&redisSessionBackend{redisClient: redisClient}, keyPairs...)
}

// NewMemoryServerStore keeps sessions in process memory; they are lost on
// restart.
func NewMemoryServerStore(keyPairs ...[]byte) *ServerStore {
	return newServerStore(&memorySessionBackend{entries: make(map[string]memorySession)}, keyPairs...)
}

func newServerStore(backend sessionBackend, keyPairs ...[]byte) *ServerStore {
	return &ServerStore{
		backend: backend,
		Codecs:  securecookie.CodecsFromPairs(keyPairs...),
		Options: &sessions.Options{Path: "/", MaxAge: 86400, HttpOnly: true},
	}
}

func (s *ServerStore) Get(r *http.Request, name string) (*sessions.Session, error) {
	return sessions.GetRegistry(r).Get(s, name)
}

func (s *ServerStore) New(r *http.Request, name string) (*sessions.Session, error) {
	session := sessions.NewSession(s, name)
	opts := *s.Options
	session.Options = &opts
	session.IsNew = true

	c, err := r.Cookie(name)
	if err != nil {
		return session, nil
	}
	if err := securecookie.DecodeMulti(name, c.Value, &session.ID, s.Codecs...); err != nil {
		// tampered or rotated key: start over with a fresh session
		session.ID = ""
		return session, nil
	}
	data, ok, err := s.backend.load(r.Context(), session.ID)
	if err != nil {
		return session, err
	}
	if !ok {
		session.ID = ""
		return session, nil
	}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&session.Values); err != nil {
		session.ID = ""
		return session, nil
	}
	session.IsNew = false
	return session, nil
}

// Regenerate drops the server record behind session and clears its id, so the
// next Save issues a fresh one.
func (s *ServerStore) Regenerate(r *http.Request, session *sessions.Session) error {
	if session.ID != "" {
		if err := s.backend.delete(r.Context(), session.ID); err != nil {
			return err
		}
	}
	session.ID = ""
	session.IsNew = true
	return nil
}

func (s *ServerStore) Save(r *http.Request, w http.ResponseWriter, session *sessions.Session) error {
	if session.Options.MaxAge < 0 {
		if session.ID != "" {
			if err := s.backend.delete(r.Context(), session.ID); err != nil {
				return err
			}
		}
		http.SetCookie(w, sessions.NewCookie(session.Name(), "", session.Options))
		return nil
	}

	if session.ID == "" {
		session.ID = strings.TrimRight(
			base32.StdEncoding.EncodeToString(securecookie.GenerateRandomKey(32)), "=")
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(session.Values); err != nil {
		return err
	}
	ttl := time.Duration(session.Options.MaxAge) * time.Second
	if err := s.backend.save(r.Context(), session.ID, buf.Bytes(), ttl); err != nil {
		return err
	}

	encoded, err := securecookie.EncodeMulti(session.Name(), session.ID, s.Codecs...)
	if err != nil {
		return err
	}
	http.SetCookie(w, sessions.NewCookie(session.Name(), encoded, session.Options))
	return nil
}

type redisSessionBackend struct {
	redisClient *redis.Client
}

func sessionKey(id string) string { return "session:" + id }

func (b *redisSessionBackend) load(ctx context.Context, id string) ([]byte, bool, error) {
	data, err := b.redisClient.Get(ctx, sessionKey(id)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (b *redisSessionBackend) save(ctx context.Context, id string, data []byte, ttl time.Duration) error {
	return b.redisClient.Set(ctx, sessionKey(id), data, ttl).Err()
}

func (b *redisSessionBackend) delete(ctx context.Context, id string) error {
	return b.redisClient.Del(ctx, sessionKey(id)).Err()
}

type memorySession struct {
	data    []byte
	expires time.Time
}

type memorySessionBackend struct {
	mu      sync.Mutex
	entries map[string]memorySession
}

func (b *memorySessionBackend) load(_ context.Context, id string) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[id]
	if !ok {
		return nil, false, nil
	}
	if !e.expires.IsZero() && time.Now().After(e.expires) {
		delete(b.entries, id)
		return nil, false, nil
	}
	return e.data, true, nil
}

func (b *memorySessionBackend) save(_ context.Context, id string, data []byte, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := memorySession{data: append([]byte(nil), data...)}
	if ttl > 0 {
		e.expires = time.Now().Add(ttl)
	}
	b.entries[id] = e
	return nil
}

func (b *memorySessionBackend) delete(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.entries, id)
	return nil
}
