// Package handlers implements the HTTP endpoints of the places API on top of
// the service layer.
package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"places-server/auth"
	"places-server/logger"
	"places-server/middleware"
	"places-server/models"
	"places-server/services"
	"places-server/utils/errors"

	"github.com/gorilla/mux"
)

//go:generate mockgen -source=handlers.go -destination=mocks_test.go -package=handlers

type UserService interface {
	Register(ctx context.Context, in services.RegisterInput) (*models.User, error)
	Authenticate(ctx context.Context, username, password string) (*models.User, error)
	List(ctx context.Context) ([]models.User, error)
	Search(ctx context.Context, query string) ([]models.User, error)
	Get(ctx context.Context, id string) (*models.User, error)
	UpdateProfile(ctx context.Context, actorID, id string, upd models.ProfileUpdate) (*models.User, error)
	AddFriend(ctx context.Context, actorID, id, friendID string) (*models.User, error)
	AddFriendByUsername(ctx context.Context, actorID, id, username string) (*services.AddedFriend, error)
	RemoveFriend(ctx context.Context, actorID, id, friendID string) (*models.User, error)
}

type PlaceService interface {
	List(ctx context.Context) ([]models.Place, error)
	Get(ctx context.Context, id string) (*models.Place, error)
	ListByOwner(ctx context.Context, userID string) ([]models.Place, error)
	Create(ctx context.Context, ownerID string, in models.PlaceInput) (*models.Place, error)
	Update(ctx context.Context, actorID, id string, in models.PlaceInput) (*models.Place, error)
	Delete(ctx context.Context, actorID, id string) error
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Warnw("failed to write response", "err", err)
	}
}

// decodeJSON reads the request body into v. An empty body leaves v untouched
// so handlers can report the missing fields themselves.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && err != io.EOF {
		return errors.ErrInvalidInput.WithMessage("Request body must be valid JSON")
	}
	return nil
}

// pathVar returns the unescaped value of a route variable. The router matches
// on the encoded path, so variables arrive percent-encoded.
func pathVar(r *http.Request, name string) string {
	v := mux.Vars(r)[name]
	if unescaped, err := url.PathUnescape(v); err == nil {
		return unescaped
	}
	return v
}

// principal returns the identity set by middleware.RequireAuth.
func principal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		middleware.WriteError(w, errors.ErrUnauthorized)
	}
	return p, ok
}
