package handlers

import (
	"net/http"

	"places-server/auth"
	"places-server/metrics"
	"places-server/middleware"
	"places-server/models"
	"places-server/services"
)

type AuthHandler struct {
	users    UserService
	strategy auth.Strategy
	metrics  *metrics.Metrics
}

func NewAuthHandler(users UserService, strategy auth.Strategy, m *metrics.Metrics) *AuthHandler {
	return &AuthHandler{users: users, strategy: strategy, metrics: m}
}

type loginResponse struct {
	auth.Credentials
	User *models.User `json:"user"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *AuthHandler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var input services.RegisterInput
	if err := decodeJSON(r, &input); err != nil {
		middleware.WriteError(w, err)
		return
	}

	user, err := h.users.Register(r.Context(), input)
	h.metrics.AuthEvent("register", err)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *AuthHandler) LoginUser(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &input); err != nil {
		middleware.WriteError(w, err)
		return
	}

	user, err := h.users.Authenticate(r.Context(), input.Username, input.Password)
	if err != nil {
		h.metrics.AuthEvent("login", err)
		middleware.WriteError(w, err)
		return
	}
	creds, err := h.strategy.Issue(w, r, auth.Principal{UserID: user.ID, Username: user.Username})
	h.metrics.AuthEvent("login", err)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Credentials: creds, User: user})
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var input refreshRequest
	if err := decodeJSON(r, &input); err != nil {
		middleware.WriteError(w, err)
		return
	}

	creds, err := h.strategy.Refresh(r.Context(), input.RefreshToken)
	h.metrics.AuthEvent("refresh", err)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, creds)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var input refreshRequest
	if err := decodeJSON(r, &input); err != nil {
		middleware.WriteError(w, err)
		return
	}

	err := h.strategy.Revoke(w, r, input.RefreshToken)
	h.metrics.AuthEvent("logout", err)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

// Me returns the full record of the authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	user, err := h.users.Get(r.Context(), p.UserID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// Profile echoes the principal carried by the credential.
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Authenticated via " + h.strategy.Name(),
		"user":    p,
	})
}
