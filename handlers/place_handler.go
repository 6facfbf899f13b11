package handlers

import (
	"net/http"

	"places-server/metrics"
	"places-server/middleware"
	"places-server/models"
)

type PlaceHandler struct {
	places  PlaceService
	metrics *metrics.Metrics
}

func NewPlaceHandler(places PlaceService, m *metrics.Metrics) *PlaceHandler {
	return &PlaceHandler{places: places, metrics: m}
}

type deleteResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

func (h *PlaceHandler) ListPlaces(w http.ResponseWriter, r *http.Request) {
	places, err := h.places.List(r.Context())
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, places)
}

func (h *PlaceHandler) GetPlace(w http.ResponseWriter, r *http.Request) {
	place, err := h.places.Get(r.Context(), pathVar(r, "id"))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, place)
}

func (h *PlaceHandler) CreatePlace(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var input models.PlaceInput
	if err := decodeJSON(r, &input); err != nil {
		middleware.WriteError(w, err)
		return
	}

	place, err := h.places.Create(r.Context(), p.UserID, input)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	h.metrics.PlaceMutation("create")
	writeJSON(w, http.StatusCreated, place)
}

func (h *PlaceHandler) UpdatePlace(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var input models.PlaceInput
	if err := decodeJSON(r, &input); err != nil {
		middleware.WriteError(w, err)
		return
	}

	place, err := h.places.Update(r.Context(), p.UserID, pathVar(r, "id"), input)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	h.metrics.PlaceMutation("update")
	writeJSON(w, http.StatusOK, place)
}

// DeletePlace ignores any userId in the body; the owner check uses the
// authenticated principal.
func (h *PlaceHandler) DeletePlace(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id := pathVar(r, "id")
	if err := h.places.Delete(r.Context(), p.UserID, id); err != nil {
		middleware.WriteError(w, err)
		return
	}
	h.metrics.PlaceMutation("delete")
	writeJSON(w, http.StatusOK, deleteResponse{Message: "Place deleted", ID: id})
}
