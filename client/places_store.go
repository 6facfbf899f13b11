package client

import (
	"context"
	"sync"

	"places-server/logger"
	"places-server/models"
)

type PlacesAPI interface {
	ListPlaces(ctx context.Context) ([]models.Place, error)
	CreatePlace(ctx context.Context, in models.PlaceInput) (*models.Place, error)
	UpdatePlace(ctx context.Context, id string, in models.PlaceInput) (*models.Place, error)
	DeletePlace(ctx context.Context, id, ownerID string) error
}

type PlacesState struct {
	Places  []models.Place
	Loading bool
	Err     error
}

// PlacesStore caches the places visible to the current user. Every mutation
// goes to the API first and is applied locally only on success.
type PlacesStore struct {
	api PlacesAPI

	mu     sync.Mutex
	auth   *AuthStore
	state  PlacesState
	subs   map[int]func(PlacesState)
	nextID int
}

func NewPlacesStore(api PlacesAPI) *PlacesStore {
	return &PlacesStore{api: api, subs: make(map[int]func(PlacesState))}
}

// BindAuth fetches the places once every time auth becomes authenticated,
// or switches to another user, and drops them when it stops being so. The
// returned func unbinds.
func (s *PlacesStore) BindAuth(ctx context.Context, auth *AuthStore) func() {
	s.mu.Lock()
	s.auth = auth
	s.mu.Unlock()

	var (
		mu       sync.Mutex
		authedID string
	)
	transition := func(st AuthState) (entered, left bool) {
		mu.Lock()
		defer mu.Unlock()
		id := ""
		if st.IsAuthenticated && st.User != nil {
			id = st.User.ID
		}
		entered = id != "" && id != authedID
		left = id == "" && authedID != ""
		authedID = id
		return entered, left
	}

	react := func(st AuthState) {
		entered, left := transition(st)
		switch {
		case entered:
			s.update(func(ps *PlacesState) {
				ps.Places = nil
			})
			if _, err := s.FetchPlaces(ctx); err != nil {
				logger.Log.Warnw("failed to fetch places", "err", err)
			}
		case left:
			s.update(func(ps *PlacesState) {
				*ps = PlacesState{}
			})
		}
	}

	unsubscribe := auth.Subscribe(react)
	react(auth.State())
	return unsubscribe
}

func (s *PlacesStore) Snapshot() PlacesState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *PlacesStore) snapshotLocked() PlacesState {
	st := s.state
	st.Places = append([]models.Place{}, st.Places...)
	return st
}

func (s *PlacesStore) Subscribe(fn func(PlacesState)) func() {
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

func (s *PlacesStore) update(fn func(st *PlacesState)) {
	s.mu.Lock()
	fn(&s.state)
	snap := s.snapshotLocked()
	subs := make([]func(PlacesState), 0, len(s.subs))
	for _, f := range s.subs {
		subs = append(subs, f)
	}
	s.mu.Unlock()

	for _, f := range subs {
		f(snap)
	}
}

func (s *PlacesStore) begin() {
	s.update(func(st *PlacesState) {
		st.Loading = true
		st.Err = nil
	})
}

func (s *PlacesStore) fail(err error) error {
	s.update(func(st *PlacesState) {
		st.Loading = false
		st.Err = err
	})
	return err
}

func (s *PlacesStore) ownerID() (string, error) {
	s.mu.Lock()
	auth := s.auth
	s.mu.Unlock()
	if auth == nil {
		return "", errNotLoggedIn
	}
	st := auth.State()
	if st.User == nil {
		return "", errNotLoggedIn
	}
	return st.User.ID, nil
}

func (s *PlacesStore) FetchPlaces(ctx context.Context) ([]models.Place, error) {
	s.begin()
	places, err := s.api.ListPlaces(ctx)
	if err != nil {
		return nil, s.fail(err)
	}
	s.update(func(st *PlacesState) {
		st.Places = places
		st.Loading = false
	})
	return places, nil
}

// AddPlace stamps the current user as owner before sending.
func (s *PlacesStore) AddPlace(ctx context.Context, in models.PlaceInput) (*models.Place, error) {
	owner, err := s.ownerID()
	if err != nil {
		return nil, s.fail(err)
	}
	in.UserID = owner

	s.begin()
	p, err := s.api.CreatePlace(ctx, in)
	if err != nil {
		return nil, s.fail(err)
	}
	s.update(func(st *PlacesState) {
		st.Places = append(st.Places, *p)
		st.Loading = false
	})
	return p, nil
}

// UpdatePlace sends the editable fields of place. The owner is re-stamped
// from the current user; the server decides whether the edit is allowed.
func (s *PlacesStore) UpdatePlace(ctx context.Context, place models.Place) (*models.Place, error) {
	if place.ID == "" {
		return nil, s.fail(validationError("place id is required"))
	}
	owner, err := s.ownerID()
	if err != nil {
		return nil, s.fail(err)
	}

	s.begin()
	p, err := s.api.UpdatePlace(ctx, place.ID, models.PlaceInput{
		Name:        place.Name,
		Description: place.Description,
		Location:    place.Location,
		Rating:      place.Rating,
		Image:       place.Image,
		UserID:      owner,
	})
	if err != nil {
		return nil, s.fail(err)
	}
	s.update(func(st *PlacesState) {
		for i := range st.Places {
			if st.Places[i].ID == p.ID {
				st.Places[i] = *p
			}
		}
		st.Loading = false
	})
	return p, nil
}

func (s *PlacesStore) DeletePlace(ctx context.Context, id string) error {
	if id == "" {
		return s.fail(validationError("place id is required"))
	}
	owner, err := s.ownerID()
	if err != nil {
		return s.fail(err)
	}

	s.begin()
	if err := s.api.DeletePlace(ctx, id, owner); err != nil {
		return s.fail(err)
	}
	s.update(func(st *PlacesState) {
		kept := make([]models.Place, 0, len(st.Places))
		for _, p := range st.Places {
			if p.ID != id {
				kept = append(kept, p)
			}
		}
		st.Places = kept
		st.Loading = false
	})
	return nil
}
