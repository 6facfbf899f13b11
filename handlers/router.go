package handlers

import (
	"net/http"

	"places-server/auth"
	"places-server/logger"
	"places-server/metrics"
	"places-server/middleware"
	"places-server/utils/errors"

	"github.com/gorilla/mux"
)

var errMethodNotAllowed = errors.NewAPIError("METHOD_NOT_ALLOWED", "Method not allowed", http.StatusMethodNotAllowed)

type RouterDeps struct {
	Users          UserService
	Places         PlaceService
	Strategy       auth.Strategy
	Metrics        *metrics.Metrics
	Health         HealthCheck
	Version        string
	AllowedOrigins []string
}

// NewRouter wires every endpoint and wraps the result in the CORS, logging
// and panic recovery middleware.
func NewRouter(deps RouterDeps) http.Handler {
	authHandler := NewAuthHandler(deps.Users, deps.Strategy, deps.Metrics)
	userHandler := NewUserHandler(deps.Users, deps.Places)
	placeHandler := NewPlaceHandler(deps.Places, deps.Metrics)
	systemHandler := NewSystemHandler(deps.Version, deps.Health)
	requireAuth := middleware.RequireAuth(deps.Strategy)

	notFound := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		middleware.WriteError(w, errors.ErrNotFound)
	})
	methodNotAllowed := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		middleware.WriteError(w, errMethodNotAllowed)
	})

	// Path variables stay escaped so a search query may contain "/".
	r := mux.NewRouter().UseEncodedPath()
	r.Use(middleware.MetricsMiddleware(deps.Metrics))
	r.NotFoundHandler = notFound
	r.MethodNotAllowedHandler = methodNotAllowed

	r.HandleFunc("/", systemHandler.Root).Methods(http.MethodGet)
	r.HandleFunc("/health", systemHandler.Health).Methods(http.MethodGet)
	r.Handle("/metrics", deps.Metrics.Handler()).Methods(http.MethodGet)
	r.Handle("/profile", requireAuth(http.HandlerFunc(authHandler.Profile))).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.NotFoundHandler = notFound
	api.MethodNotAllowedHandler = methodNotAllowed

	// Public routes
	api.HandleFunc("/users/register", authHandler.RegisterUser).Methods(http.MethodPost)
	api.HandleFunc("/users/login", authHandler.LoginUser).Methods(http.MethodPost)
	api.HandleFunc("/auth/refresh", authHandler.Refresh).Methods(http.MethodPost)
	api.HandleFunc("/auth/logout", authHandler.Logout).Methods(http.MethodPost)

	// Protected routes are registered on api itself so a wrong method still
	// reaches the 405 handler instead of an empty nested router.
	protected := func(path string, h http.HandlerFunc, method string) {
		api.Handle(path, requireAuth(h)).Methods(method)
	}

	protected("/auth/me", authHandler.Me, http.MethodGet)

	// User routes
	protected("/users", userHandler.ListUsers, http.MethodGet)
	protected("/users/search/{query}", userHandler.SearchUsers, http.MethodGet)
	protected("/users/{id}", userHandler.GetUser, http.MethodGet)
	protected("/users/{id}", userHandler.UpdateUser, http.MethodPut)
	protected("/users/{id}/friends", userHandler.AddFriend, http.MethodPost)
	protected("/users/{id}/friends/add-by-username", userHandler.AddFriendByUsername, http.MethodPost)
	protected("/users/{id}/friends/{friendId}", userHandler.RemoveFriend, http.MethodDelete)
	protected("/users/{userId}/places", userHandler.ListUserPlaces, http.MethodGet)

	// Place routes
	protected("/places", placeHandler.ListPlaces, http.MethodGet)
	protected("/places", placeHandler.CreatePlace, http.MethodPost)
	protected("/places/{id}", placeHandler.GetPlace, http.MethodGet)
	protected("/places/{id}", placeHandler.UpdatePlace, http.MethodPut)
	protected("/places/{id}", placeHandler.DeletePlace, http.MethodDelete)

	var h http.Handler = r
	h = middleware.ErrorMiddleware()(h)
	h = middleware.LoggingMiddleware(logger.Log)(h)
	h = middleware.CORSMiddleware(deps.AllowedOrigins)(h)
	return h
}
