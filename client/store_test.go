package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"places-server/auth"
	"places-server/config"
	"places-server/handlers"
	"places-server/metrics"
	"places-server/models"
	"places-server/repository"
	"places-server/services"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPlacesServer(t *testing.T) *httptest.Server {
	t.Helper()
	tokens := auth.NewTokenManager("access-secret", "refresh-secret", 30*time.Second, 24*time.Hour)
	return serveWith(t, auth.NewTokenStrategy(tokens, auth.NewMemoryRefreshStore()))
}

func newSessionServer(t *testing.T) *httptest.Server {
	t.Helper()
	strategy, err := auth.NewStrategy(config.AuthConfig{
		Strategy:      config.StrategySession,
		SessionSecret: "0123456789abcdef0123456789abcdef",
		SessionMaxAge: 3600,
		CookieName:    "places_session",
	}, nil)
	require.NoError(t, err)
	return serveWith(t, strategy)
}

func serveWith(t *testing.T, strategy auth.Strategy) *httptest.Server {
	t.Helper()
	h := handlers.NewRouter(handlers.RouterDeps{
		Users:    services.NewUserService(repository.NewMemoryUserRepository()),
		Places:   services.NewPlaceService(repository.NewMemoryPlaceRepository()),
		Strategy: strategy,
		Metrics:  metrics.New(prometheus.NewRegistry()),
		Version:  "test",
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

// countingPlacesAPI counts collection fetches.
type countingPlacesAPI struct {
	PlacesAPI
	lists atomic.Int32
}

func (c *countingPlacesAPI) ListPlaces(ctx context.Context) ([]models.Place, error) {
	c.lists.Add(1)
	return c.PlacesAPI.ListPlaces(ctx)
}

type clientEnv struct {
	clock   *manualClock
	storage *MemoryStorage
	api     *APIClient
	session *SessionManager
	auth    *AuthStore
	places  *PlacesStore
	counter *countingPlacesAPI
}

func newClientEnv(t *testing.T, srv *httptest.Server) *clientEnv {
	t.Helper()
	e := &clientEnv{clock: newManualClock(), storage: NewMemoryStorage()}
	e.api = NewAPIClient(srv.URL, e.storage, WithHTTPClient(srv.Client()))
	e.session = NewSessionManager(e.clock, DefaultLifetime, DefaultLead, e.storage, e.api)
	e.auth = NewAuthStore(e.api, e.storage, e.session)
	e.counter = &countingPlacesAPI{PlacesAPI: e.api}
	e.places = NewPlacesStore(e.counter)
	t.Cleanup(e.places.BindAuth(context.Background(), e.auth))
	t.Cleanup(e.session.Stop)
	return e
}

func samplePlace(name string) models.PlaceInput {
	return models.PlaceInput{
		Name:        name,
		Description: "Quiet spot by the river",
		Location:    "Ulaanbaatar",
		Rating:      4.5,
		Image:       "https://example.com/" + name + ".jpg",
	}
}

func TestAuthStore_RegisterLogsIn(t *testing.T) {
	srv := newPlacesServer(t)
	e := newClientEnv(t, srv)
	ctx := context.Background()

	u, err := e.auth.Register(ctx, RegisterRequest{Username: "alice", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, "alice@example.com", u.Email)

	st := e.auth.State()
	assert.True(t, st.IsAuthenticated)
	assert.False(t, st.Loading)
	assert.NoError(t, st.Err)
	assert.Equal(t, StateAuthenticated, e.session.State())

	for _, key := range []string{KeyAccessToken, KeyRefreshToken, KeyCurrentUser} {
		v, ok := e.storage.Get(key)
		assert.True(t, ok)
		assert.NotEmpty(t, v)
	}
	assert.Equal(t, "alice", loadUser(e.storage).Username)
}

func TestAuthStore_FailuresKeepPriorUser(t *testing.T) {
	srv := newPlacesServer(t)
	e := newClientEnv(t, srv)
	ctx := context.Background()

	_, err := e.auth.Register(ctx, RegisterRequest{Username: "alice", Password: "pw"})
	require.NoError(t, err)

	other := newClientEnv(t, srv)
	_, err = other.auth.Register(ctx, RegisterRequest{Username: "alice", Password: "again"})
	assert.Equal(t, KindConflict, KindOf(err))
	assert.False(t, other.auth.State().IsAuthenticated)
	assert.Equal(t, KindConflict, KindOf(other.auth.State().Err))

	_, err = e.auth.Login(ctx, "alice", "wrong")
	assert.Equal(t, KindUnauthorized, KindOf(err))
	st := e.auth.State()
	require.NotNil(t, st.User)
	assert.Equal(t, "alice", st.User.Username)
	assert.False(t, st.Loading)
	assert.Error(t, st.Err)

	e.auth.ClearError()
	assert.NoError(t, e.auth.State().Err)
}

func TestAuthStore_LoginValidatesLocally(t *testing.T) {
	// A nil API would panic if the store reached the network.
	store := NewAuthStore(struct{ AuthAPI }{}, NewMemoryStorage(), nil)

	assert.NotPanics(t, func() {
		_, err := store.Login(context.Background(), "", "pw")
		assert.Equal(t, KindValidation, KindOf(err))
		_, err = store.Login(context.Background(), "alice", "")
		assert.Equal(t, KindValidation, KindOf(err))
		_, err = store.Register(context.Background(), RegisterRequest{Username: "  "})
		assert.Equal(t, KindValidation, KindOf(err))
		_, err = store.AddFriend(context.Background(), "u2")
		assert.Equal(t, KindUnauthorized, KindOf(err))
	})
}

func TestAuthStore_Friends(t *testing.T) {
	srv := newPlacesServer(t)
	ctx := context.Background()
	alice := newClientEnv(t, srv)
	bob := newClientEnv(t, srv)

	_, err := alice.auth.Register(ctx, RegisterRequest{Username: "alice", Password: "pw"})
	require.NoError(t, err)
	bobUser, err := bob.auth.Register(ctx, RegisterRequest{Username: "bob", Password: "pw", Name: "Bob"})
	require.NoError(t, err)

	added, err := alice.auth.AddFriendByUsername(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, bobUser.ID, added.ID)
	assert.Equal(t, "Bob", added.Name)
	assert.Equal(t, []string{bobUser.ID}, alice.auth.State().User.Friends)
	assert.Equal(t, []string{bobUser.ID}, loadUser(alice.storage).Friends)

	_, err = alice.auth.AddFriendByUsername(ctx, "bob")
	assert.Equal(t, KindConflict, KindOf(err))

	_, err = alice.auth.AddFriendByUsername(ctx, "nobody")
	assert.Equal(t, KindNotFound, KindOf(err))

	u, err := alice.auth.AddFriend(ctx, bobUser.ID)
	require.NoError(t, err)
	assert.Len(t, u.Friends, 1)

	directory, err := alice.auth.ListUsers(ctx)
	require.NoError(t, err)
	friends := FriendsOf(alice.auth.State().User, directory)
	require.Len(t, friends, 1)
	assert.Equal(t, "bob", friends[0].Username)

	found, err := alice.auth.SearchUsers(ctx, "bo")
	require.NoError(t, err)
	require.Len(t, found, 1)

	got, err := alice.auth.GetUserByID(ctx, bobUser.ID)
	require.NoError(t, err)
	assert.Equal(t, "bob", got.Username)

	u, err = alice.auth.RemoveFriend(ctx, bobUser.ID)
	require.NoError(t, err)
	assert.Empty(t, u.Friends)

	u, err = alice.auth.UpdateProfile(ctx, models.ProfileUpdate{Name: "Alice A."})
	require.NoError(t, err)
	assert.Equal(t, "Alice A.", u.Name)
	assert.Equal(t, "Alice A.", loadUser(alice.storage).Name)
}

func TestPlacesStore_FetchOncePerLogin(t *testing.T) {
	srv := newPlacesServer(t)
	e := newClientEnv(t, srv)
	ctx := context.Background()

	assert.Zero(t, e.counter.lists.Load())

	_, err := e.auth.Register(ctx, RegisterRequest{Username: "alice", Password: "pw"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, e.counter.lists.Load())

	// Further auth updates while authenticated do not refetch.
	_, err = e.auth.UpdateProfile(ctx, models.ProfileUpdate{Name: "Alice"})
	require.NoError(t, err)
	_, err = e.auth.Login(ctx, "alice", "wrong")
	require.Error(t, err)
	assert.EqualValues(t, 1, e.counter.lists.Load())

	p, err := e.places.AddPlace(ctx, samplePlace("cafe"))
	require.NoError(t, err)
	assert.Len(t, e.places.Snapshot().Places, 1)

	e.auth.Logout(ctx)
	assert.Empty(t, e.places.Snapshot().Places)
	assert.False(t, e.auth.State().IsAuthenticated)
	assert.Equal(t, StateAnonymous, e.session.State())
	_, ok := e.storage.Get(KeyRefreshToken)
	assert.False(t, ok)

	_, err = e.auth.Login(ctx, "alice", "pw")
	require.NoError(t, err)
	assert.EqualValues(t, 2, e.counter.lists.Load())
	places := e.places.Snapshot().Places
	require.Len(t, places, 1)
	assert.Equal(t, p.ID, places[0].ID)
}

func TestPlacesStore_Mutations(t *testing.T) {
	srv := newPlacesServer(t)
	ctx := context.Background()
	alice := newClientEnv(t, srv)
	bob := newClientEnv(t, srv)

	aliceUser, err := alice.auth.Register(ctx, RegisterRequest{Username: "alice", Password: "pw"})
	require.NoError(t, err)
	bobUser, err := bob.auth.Register(ctx, RegisterRequest{Username: "bob", Password: "pw"})
	require.NoError(t, err)

	p, err := alice.places.AddPlace(ctx, samplePlace("park"))
	require.NoError(t, err)
	assert.Equal(t, aliceUser.ID, p.UserID)

	_, err = alice.places.AddPlace(ctx, models.PlaceInput{Name: "incomplete"})
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Len(t, alice.places.Snapshot().Places, 1)

	_, err = bob.places.FetchPlaces(ctx)
	require.NoError(t, err)
	mine := MyPlaces(bob.places.Snapshot().Places, bob.auth.State().User)
	assert.Empty(t, mine)
	friends := FriendPlaces(bob.places.Snapshot().Places, aliceUser.ID)
	require.Len(t, friends, 1)

	edit := friends[0]
	edit.Name = "hijacked"
	_, err = bob.places.UpdatePlace(ctx, edit)
	assert.Equal(t, KindForbidden, KindOf(err))
	assert.Equal(t, KindForbidden, KindOf(bob.places.DeletePlace(ctx, p.ID)))

	edit = *p
	edit.Name = "Central park"
	edit.Rating = 5
	updated, err := alice.places.UpdatePlace(ctx, edit)
	require.NoError(t, err)
	assert.Equal(t, "Central park", updated.Name)
	assert.Equal(t, "Central park", alice.places.Snapshot().Places[0].Name)

	_, err = bob.places.AddPlace(ctx, samplePlace("museum"))
	require.NoError(t, err)
	_, err = alice.places.FetchPlaces(ctx)
	require.NoError(t, err)
	counts := PlaceCountByOwner(alice.places.Snapshot().Places)
	assert.Equal(t, map[string]int{aliceUser.ID: 1, bobUser.ID: 1}, counts)

	require.NoError(t, alice.places.DeletePlace(ctx, p.ID))
	assert.Len(t, alice.places.Snapshot().Places, 1)
	assert.Equal(t, KindNotFound, KindOf(alice.places.DeletePlace(ctx, p.ID)))
}

func TestSessionExpiry_ClearsStores(t *testing.T) {
	srv := newPlacesServer(t)
	e := newClientEnv(t, srv)
	ctx := context.Background()

	_, err := e.auth.Register(ctx, RegisterRequest{Username: "alice", Password: "pw"})
	require.NoError(t, err)
	_, err = e.places.AddPlace(ctx, samplePlace("lake"))
	require.NoError(t, err)

	e.clock.Advance(30 * time.Second)

	st := e.auth.State()
	assert.False(t, st.IsAuthenticated)
	assert.Nil(t, st.User)
	assert.ErrorIs(t, st.Err, ErrSessionExpired)
	assert.Empty(t, e.places.Snapshot().Places)
	_, ok := e.storage.Get(KeyAccessToken)
	assert.False(t, ok)
}

func TestSessionExtend_AgainstServer(t *testing.T) {
	srv := newPlacesServer(t)
	e := newClientEnv(t, srv)
	ctx := context.Background()

	_, err := e.auth.Register(ctx, RegisterRequest{Username: "alice", Password: "pw"})
	require.NoError(t, err)
	before, _ := e.storage.Get(KeyAccessToken)

	e.clock.Advance(20 * time.Second)
	require.Equal(t, StateWarning, e.session.State())
	require.NoError(t, e.session.Extend(ctx))

	after, _ := e.storage.Get(KeyAccessToken)
	assert.NotEmpty(t, after)
	assert.NotEqual(t, before, after)
	assert.True(t, e.auth.State().IsAuthenticated)

	_, err = e.places.AddPlace(ctx, samplePlace("bridge"))
	assert.NoError(t, err)
}

func TestAuthStore_Restore(t *testing.T) {
	srv := newPlacesServer(t)
	e := newClientEnv(t, srv)
	ctx := context.Background()

	_, err := e.auth.Register(ctx, RegisterRequest{Username: "alice", Password: "pw"})
	require.NoError(t, err)
	e.session.Stop()

	clock := newManualClock()
	session := NewSessionManager(clock, DefaultLifetime, DefaultLead, e.storage, e.api)
	t.Cleanup(session.Stop)
	restored := NewAuthStore(e.api, e.storage, session)

	require.True(t, restored.Restore())
	assert.Equal(t, "alice", restored.State().User.Username)
	assert.Equal(t, StateAuthenticated, session.State())

	empty := NewAuthStore(e.api, NewMemoryStorage(), nil)
	assert.False(t, empty.Restore())
	assert.False(t, empty.State().IsAuthenticated)
}

func TestAuthStore_LogoutClearsLocallyWhenServerIsDown(t *testing.T) {
	srv := newPlacesServer(t)
	e := newClientEnv(t, srv)
	ctx := context.Background()

	_, err := e.auth.Register(ctx, RegisterRequest{Username: "alice", Password: "pw"})
	require.NoError(t, err)
	_, err = e.places.AddPlace(ctx, samplePlace("harbor"))
	require.NoError(t, err)

	srv.Close()
	e.auth.Logout(ctx)

	st := e.auth.State()
	assert.False(t, st.IsAuthenticated)
	assert.Nil(t, st.User)
	assert.Equal(t, StateAnonymous, e.session.State())
	assert.Empty(t, e.places.Snapshot().Places)
	for _, key := range []string{KeyAccessToken, KeyRefreshToken, KeyCurrentUser} {
		_, ok := e.storage.Get(key)
		assert.False(t, ok, "key %s should be cleared", key)
	}
}

func TestPlacesStore_RefetchesWhenUserChanges(t *testing.T) {
	srv := newPlacesServer(t)
	ctx := context.Background()
	e := newClientEnv(t, srv)
	other := newClientEnv(t, srv)

	_, err := e.auth.Register(ctx, RegisterRequest{Username: "bob", Password: "pw"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, e.counter.lists.Load())
	assert.Empty(t, e.places.Snapshot().Places)

	_, err = other.auth.Register(ctx, RegisterRequest{Username: "alice", Password: "pw"})
	require.NoError(t, err)
	_, err = other.places.AddPlace(ctx, samplePlace("steppe"))
	require.NoError(t, err)

	// Switching accounts without logging out first.
	alice, err := e.auth.Login(ctx, "alice", "pw")
	require.NoError(t, err)
	assert.EqualValues(t, 2, e.counter.lists.Load())
	mine := MyPlaces(e.places.Snapshot().Places, alice)
	require.Len(t, mine, 1)
	assert.Equal(t, "steppe", mine[0].Name)
}

func TestAuthStore_RestoresCookieSession(t *testing.T) {
	srv := newSessionServer(t)
	ctx := context.Background()
	storage := NewMemoryStorage()

	open := func() (*AuthStore, *APIClient) {
		jar, err := NewPersistentJar(srv.URL, storage)
		require.NoError(t, err)
		api := NewAPIClient(srv.URL, storage, WithHTTPClient(&http.Client{Jar: jar}))
		return NewAuthStore(api, storage, nil), api
	}

	store, _ := open()
	_, err := store.Register(ctx, RegisterRequest{Username: "alice", Password: "pw"})
	require.NoError(t, err)
	_, hasToken := storage.Get(KeyAccessToken)
	assert.False(t, hasToken)
	assert.True(t, hasSessionCookies(storage))

	restored, api := open()
	require.True(t, restored.Restore())
	assert.Equal(t, "alice", restored.State().User.Username)
	_, err = api.ListUsers(ctx)
	require.NoError(t, err)

	restored.Logout(ctx)
	assert.False(t, hasSessionCookies(storage))
	_, err = api.ListUsers(ctx)
	assert.Equal(t, KindUnauthorized, KindOf(err))

	fresh, _ := open()
	assert.False(t, fresh.Restore())
}
