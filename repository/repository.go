// Package repository holds the persistence layer for users and places:
// MongoDB implementations, an in-memory implementation for development and
// tests, and a Redis read-through cache for user documents.
package repository

import (
	"context"
	"errors"

	"places-server/models"
)

var (
	ErrNotFound  = errors.New("repository: document not found")
	ErrDuplicate = errors.New("repository: duplicate key")
)

type UserRepository interface {
	// Create assigns an id to u and stores it. ErrDuplicate is returned when
	// the username is taken.
	Create(ctx context.Context, u *models.User) error
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	List(ctx context.Context) ([]models.User, error)
	// Search matches query as a case-insensitive substring of username or name.
	Search(ctx context.Context, query string) ([]models.User, error)
	UpdateProfile(ctx context.Context, id string, upd models.ProfileUpdate) (*models.User, error)
	AddFriend(ctx context.Context, id, friendID string) (*models.User, error)
	RemoveFriend(ctx context.Context, id, friendID string) (*models.User, error)
}

type PlaceRepository interface {
	Create(ctx context.Context, p *models.Place) error
	FindByID(ctx context.Context, id string) (*models.Place, error)
	List(ctx context.Context) ([]models.Place, error)
	ListByOwner(ctx context.Context, userID string) ([]models.Place, error)
	// Update overwrites the non-empty fields of in; Rating is applied when > 0.
	Update(ctx context.Context, id string, in models.PlaceInput) (*models.Place, error)
	Delete(ctx context.Context, id string) error
}
