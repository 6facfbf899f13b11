package client

import (
	"context"
	"strings"
	"sync"

	"places-server/logger"
	"places-server/models"
)

// AuthAPI is the part of the API the auth store calls.
type AuthAPI interface {
	Register(ctx context.Context, in RegisterRequest) (*models.User, error)
	Login(ctx context.Context, username, password string) (*LoginResult, error)
	Logout(ctx context.Context, refreshToken string) error
	UpdateProfile(ctx context.Context, id string, upd models.ProfileUpdate) (*models.User, error)
	AddFriend(ctx context.Context, id, friendID string) (*models.User, error)
	RemoveFriend(ctx context.Context, id, friendID string) (*models.User, error)
	AddFriendByUsername(ctx context.Context, id, username string) (*AddFriendResult, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	SearchUsers(ctx context.Context, query string) ([]models.User, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
}

var (
	ErrSessionExpired = &Error{Kind: KindUnauthorized, Message: "session expired, please log in again"}
	errNotLoggedIn    = &Error{Kind: KindUnauthorized, Message: "not logged in"}
)

// AuthState is a snapshot of who is logged in.
type AuthState struct {
	User            *models.User
	IsAuthenticated bool
	Loading         bool
	Err             error
}

// AuthStore is the single source of truth for the logged in user. Mutations
// raise Loading before the call and clear it after; a failure keeps the
// previous user and records the error.
type AuthStore struct {
	api     AuthAPI
	storage Storage
	session *SessionManager

	mu     sync.Mutex
	state  AuthState
	subs   map[int]func(AuthState)
	nextID int
}

func NewAuthStore(api AuthAPI, storage Storage, session *SessionManager) *AuthStore {
	s := &AuthStore{
		api:     api,
		storage: storage,
		session: session,
		subs:    make(map[int]func(AuthState)),
	}
	if session != nil {
		session.OnExpired(func(ExpiryReason) {
			s.update(func(st *AuthState) {
				*st = AuthState{Err: ErrSessionExpired}
			})
		})
	}
	return s
}

// State returns a copy of the current snapshot.
func (s *AuthStore) State() AuthState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *AuthStore) snapshotLocked() AuthState {
	st := s.state
	if st.User != nil {
		u := *st.User
		u.Friends = append([]string{}, u.Friends...)
		st.User = &u
	}
	return st
}

// Subscribe registers fn to receive every new snapshot. The returned func
// unsubscribes.
func (s *AuthStore) Subscribe(fn func(AuthState)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *AuthStore) update(fn func(st *AuthState)) {
	s.mu.Lock()
	fn(&s.state)
	snap := s.snapshotLocked()
	subs := make([]func(AuthState), 0, len(s.subs))
	for _, f := range s.subs {
		subs = append(subs, f)
	}
	s.mu.Unlock()

	for _, f := range subs {
		f(snap)
	}
}

func (s *AuthStore) begin() {
	s.update(func(st *AuthState) {
		st.Loading = true
		st.Err = nil
	})
}

func (s *AuthStore) fail(err error) error {
	s.update(func(st *AuthState) {
		st.Loading = false
		st.Err = err
	})
	return err
}

// succeed replaces and persists the user snapshot.
func (s *AuthStore) succeed(u *models.User) {
	if err := saveUser(s.storage, u); err != nil {
		logger.Log.Warnw("failed to persist user", "err", err)
	}
	s.update(func(st *AuthState) {
		st.User = u
		st.IsAuthenticated = u != nil
		st.Loading = false
		st.Err = nil
	})
}

func (s *AuthStore) currentUserID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.User == nil {
		return "", errNotLoggedIn
	}
	return s.state.User.ID, nil
}

// Restore rehydrates a previously saved user together with its credential:
// an access token, or session cookies for cookie based servers. It reports
// whether the store is now authenticated.
func (s *AuthStore) Restore() bool {
	u := loadUser(s.storage)
	token, _ := s.storage.Get(KeyAccessToken)
	if u == nil || (token == "" && !hasSessionCookies(s.storage)) {
		return false
	}
	s.update(func(st *AuthState) {
		*st = AuthState{User: u, IsAuthenticated: true}
	})
	// Cookie sessions have no client-side expiry to track.
	if s.session != nil && token != "" {
		s.session.Start()
	}
	return true
}

// Register creates the account and logs it in.
func (s *AuthStore) Register(ctx context.Context, in RegisterRequest) (*models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	if in.Username == "" || in.Password == "" {
		return nil, s.fail(validationError("username and password are required"))
	}

	s.begin()
	if _, err := s.api.Register(ctx, in); err != nil {
		return nil, s.fail(err)
	}
	return s.Login(ctx, in.Username, in.Password)
}

func (s *AuthStore) Login(ctx context.Context, username, password string) (*models.User, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return nil, s.fail(validationError("username and password are required"))
	}

	s.begin()
	res, err := s.api.Login(ctx, username, password)
	if err != nil {
		return nil, s.fail(err)
	}
	if res.User == nil {
		return nil, s.fail(&Error{Kind: KindFailure, Message: "login returned no user"})
	}

	if s.session != nil {
		s.session.Stop()
	}
	for key, value := range map[string]string{
		KeyAccessToken:  res.AccessToken,
		KeyRefreshToken: res.RefreshToken,
	} {
		if value == "" {
			continue
		}
		if err := s.storage.Set(key, value); err != nil {
			logger.Log.Warnw("failed to persist token", "key", key, "err", err)
		}
	}
	s.succeed(res.User)

	// Cookie sessions have no client-side expiry to track.
	if s.session != nil && res.AccessToken != "" {
		s.session.Start()
	}
	return res.User, nil
}

// Logout revokes the refresh token on a best-effort basis and always clears
// local state.
func (s *AuthStore) Logout(ctx context.Context) {
	if s.session != nil {
		s.session.Stop()
	}
	refreshToken, _ := s.storage.Get(KeyRefreshToken)
	if err := s.api.Logout(ctx, refreshToken); err != nil {
		logger.Log.Warnw("server logout failed", "err", err)
	}
	if err := clearSession(s.storage); err != nil {
		logger.Log.Warnw("failed to clear stored session", "err", err)
	}
	s.update(func(st *AuthState) {
		*st = AuthState{}
	})
}

func (s *AuthStore) ClearError() {
	s.update(func(st *AuthState) {
		st.Err = nil
	})
}

func (s *AuthStore) UpdateProfile(ctx context.Context, upd models.ProfileUpdate) (*models.User, error) {
	return s.mutate(func(id string) (*models.User, error) {
		return s.api.UpdateProfile(ctx, id, upd)
	})
}

func (s *AuthStore) AddFriend(ctx context.Context, friendID string) (*models.User, error) {
	if friendID == "" {
		return nil, s.fail(validationError("friend id is required"))
	}
	return s.mutate(func(id string) (*models.User, error) {
		return s.api.AddFriend(ctx, id, friendID)
	})
}

func (s *AuthStore) RemoveFriend(ctx context.Context, friendID string) (*models.User, error) {
	if friendID == "" {
		return nil, s.fail(validationError("friend id is required"))
	}
	return s.mutate(func(id string) (*models.User, error) {
		return s.api.RemoveFriend(ctx, id, friendID)
	})
}

// AddFriendByUsername returns the summary of the user that was added.
func (s *AuthStore) AddFriendByUsername(ctx context.Context, username string) (models.FriendSummary, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return models.FriendSummary{}, s.fail(validationError("username is required"))
	}

	var added models.FriendSummary
	_, err := s.mutate(func(id string) (*models.User, error) {
		res, err := s.api.AddFriendByUsername(ctx, id, username)
		if err != nil {
			return nil, err
		}
		added = res.AddedFriend
		return res.User, nil
	})
	return added, err
}

func (s *AuthStore) mutate(call func(id string) (*models.User, error)) (*models.User, error) {
	id, err := s.currentUserID()
	if err != nil {
		return nil, s.fail(err)
	}

	s.begin()
	u, err := call(id)
	if err != nil {
		return nil, s.fail(err)
	}
	s.succeed(u)
	return u, nil
}

// recordErr stores a read failure without touching Loading.
func (s *AuthStore) recordErr(err error) error {
	s.update(func(st *AuthState) {
		st.Err = err
	})
	return err
}

func (s *AuthStore) ListUsers(ctx context.Context) ([]models.User, error) {
	users, err := s.api.ListUsers(ctx)
	if err != nil {
		return nil, s.recordErr(err)
	}
	return users, nil
}

func (s *AuthStore) SearchUsers(ctx context.Context, query string) ([]models.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.ListUsers(ctx)
	}
	users, err := s.api.SearchUsers(ctx, query)
	if err != nil {
		return nil, s.recordErr(err)
	}
	return users, nil
}

func (s *AuthStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	if id == "" {
		return nil, s.recordErr(validationError("user id is required"))
	}
	u, err := s.api.GetUser(ctx, id)
	if err != nil {
		return nil, s.recordErr(err)
	}
	return u, nil
}
