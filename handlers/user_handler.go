package handlers

import (
	"net/http"

	"places-server/middleware"
	"places-server/models"
)

type UserHandler struct {
	users  UserService
	places PlaceService
}

func NewUserHandler(users UserService, places PlaceService) *UserHandler {
	return &UserHandler{users: users, places: places}
}

func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *UserHandler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.Search(r.Context(), pathVar(r, "query"))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.Get(r.Context(), pathVar(r, "id"))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var input models.ProfileUpdate
	if err := decodeJSON(r, &input); err != nil {
		middleware.WriteError(w, err)
		return
	}

	user, err := h.users.UpdateProfile(r.Context(), p.UserID, pathVar(r, "id"), input)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) AddFriend(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var input struct {
		FriendID string `json:"friendId"`
	}
	if err := decodeJSON(r, &input); err != nil {
		middleware.WriteError(w, err)
		return
	}

	user, err := h.users.AddFriend(r.Context(), p.UserID, pathVar(r, "id"), input.FriendID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) AddFriendByUsername(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var input struct {
		Username string `json:"username"`
	}
	if err := decodeJSON(r, &input); err != nil {
		middleware.WriteError(w, err)
		return
	}

	res, err := h.users.AddFriendByUsername(r.Context(), p.UserID, pathVar(r, "id"), input.Username)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *UserHandler) RemoveFriend(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	user, err := h.users.RemoveFriend(r.Context(), p.UserID, pathVar(r, "id"), pathVar(r, "friendId"))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) ListUserPlaces(w http.ResponseWriter, r *http.Request) {
	places, err := h.places.ListByOwner(r.Context(), pathVar(r, "userId"))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, places)
}
