package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"places-server/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryUserRepository keeps users in process memory. It backs
// STORAGE_BACKEND=memory and the package tests.
type MemoryUserRepository struct {
	mu    sync.RWMutex
	order []string
	users map[string]models.User
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[string]models.User)}
}

func cloneUser(u models.User) *models.User {
	u.Friends = append([]string{}, u.Friends...)
	return &u
}

func (r *MemoryUserRepository) Create(_ context.Context, u *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.users {
		if existing.Username == u.Username {
			return ErrDuplicate
		}
	}
	u.ID = primitive.NewObjectID().Hex()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	r.users[u.ID] = *cloneUser(*u)
	r.order = append(r.order, u.ID)
	return nil
}

func (r *MemoryUserRepository) FindByID(_ context.Context, id string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(u), nil
}

func (r *MemoryUserRepository) FindByUsername(_ context.Context, username string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.Username == username {
			return cloneUser(u), nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryUserRepository) List(_ context.Context) ([]models.User, error) {
	return r.filter(func(models.User) bool { return true }), nil
}

func (r *MemoryUserRepository) Search(_ context.Context, query string) ([]models.User, error) {
	q := strings.ToLower(query)
	return r.filter(func(u models.User) bool {
		return strings.Contains(strings.ToLower(u.Username), q) ||
			strings.Contains(strings.ToLower(u.Name), q)
	}), nil
}

func (r *MemoryUserRepository) filter(keep func(models.User) bool) []models.User {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []models.User{}
	for _, id := range r.order {
		u := r.users[id]
		if keep(u) {
			pub := cloneUser(u)
			pub.Password = ""
			out = append(out, *pub)
		}
	}
	return out
}

func (r *MemoryUserRepository) UpdateProfile(_ context.Context, id string, upd models.ProfileUpdate) (*models.User, error) {
	return r.mutate(id, func(u *models.User) {
		if upd.Name != "" {
			u.Name = upd.Name
		}
		if upd.Email != "" {
			u.Email = upd.Email
		}
		if upd.Avatar != "" {
			u.Avatar = upd.Avatar
		}
	})
}

func (r *MemoryUserRepository) AddFriend(_ context.Context, id, friendID string) (*models.User, error) {
	return r.mutate(id, func(u *models.User) {
		if !u.HasFriend(friendID) {
			u.Friends = append(u.Friends, friendID)
		}
	})
}

func (r *MemoryUserRepository) RemoveFriend(_ context.Context, id, friendID string) (*models.User, error) {
	return r.mutate(id, func(u *models.User) {
		kept := u.Friends[:0]
		for _, f := range u.Friends {
			if f != friendID {
				kept = append(kept, f)
			}
		}
		u.Friends = kept
	})
}

func (r *MemoryUserRepository) mutate(id string, fn func(u *models.User)) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	updated := cloneUser(u)
	fn(updated)
	r.users[id] = *updated
	return cloneUser(*updated), nil
}

// MemoryPlaceRepository is the in-memory counterpart of MongoPlaceRepository.
type MemoryPlaceRepository struct {
	mu     sync.RWMutex
	order  []string
	places map[string]models.Place
}

func NewMemoryPlaceRepository() *MemoryPlaceRepository {
	return &MemoryPlaceRepository{places: make(map[string]models.Place)}
}

func (r *MemoryPlaceRepository) Create(_ context.Context, p *models.Place) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p.ID = primitive.NewObjectID().Hex()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	r.places[p.ID] = *p
	r.order = append(r.order, p.ID)
	return nil
}

func (r *MemoryPlaceRepository) FindByID(_ context.Context, id string) (*models.Place, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.places[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (r *MemoryPlaceRepository) List(_ context.Context) ([]models.Place, error) {
	return r.filter(""), nil
}

func (r *MemoryPlaceRepository) ListByOwner(_ context.Context, userID string) ([]models.Place, error) {
	return r.filter(userID), nil
}

func (r *MemoryPlaceRepository) filter(owner string) []models.Place {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []models.Place{}
	for _, id := range r.order {
		p, ok := r.places[id]
		if !ok {
			continue
		}
		if owner == "" || p.UserID == owner {
			out = append(out, p)
		}
	}
	return out
}

func (r *MemoryPlaceRepository) Update(_ context.Context, id string, in models.PlaceInput) (*models.Place, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.places[id]
	if !ok {
		return nil, ErrNotFound
	}
	if in.Name != "" {
		p.Name = in.Name
	}
	if in.Description != "" {
		p.Description = in.Description
	}
	if in.Location != "" {
		p.Location = in.Location
	}
	if in.Rating > 0 {
		p.Rating = in.Rating
	}
	if in.Image != "" {
		p.Image = in.Image
	}
	r.places[id] = p
	return &p, nil
}

func (r *MemoryPlaceRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.places[id]; !ok {
		return ErrNotFound
	}
	delete(r.places, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}
