package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/wayfinder/internal/models"
	"github.com/ternarybob/wayfinder/internal/services/session"
)

// SessionHandler exposes place sessions over REST
type SessionHandler struct {
	manager *session.Manager
	logger  arbor.ILogger
}

// NewSessionHandler creates a new SessionHandler
func NewSessionHandler(manager *session.Manager, logger arbor.ILogger) *SessionHandler {
	return &SessionHandler{
		manager: manager,
		logger:  logger,
	}
}

// session resolves the {id} path value, writing a 404 when it is unknown
func (h *SessionHandler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := r.PathValue("id")
	s, ok := h.manager.Get(id)
	if !ok {
		WriteError(w, http.StatusNotFound, "Session not found")
		return nil, false
	}
	return s, true
}

// CreateHandler handles POST /api/sessions
func (h *SessionHandler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	s := h.manager.Create()
	WriteJSON(w, http.StatusCreated, s.Snapshot())
}

// GetHandler handles GET /api/sessions/{id}
func (h *SessionHandler) GetHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, s.Snapshot())
}

// DeleteHandler handles DELETE /api/sessions/{id}
func (h *SessionHandler) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	if !h.manager.Close(r.PathValue("id")) {
		WriteError(w, http.StatusNotFound, "Session not found")
		return
	}
	WriteSuccess(w, "Session closed")
}

// UpdateSettingsHandler handles PATCH /api/sessions/{id}/settings
func (h *SessionHandler) UpdateSettingsHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var update session.SettingsUpdate
	if !DecodeJSON(w, r, &update) {
		return
	}
	if err := s.UpdateSettings(update); err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, s.Snapshot())
}

// LocationRequest sets the active location. Exactly one of Coordinates, Address or GPS is used,
// in that order of precedence.
type LocationRequest struct {
	Coordinates *models.Coordinates `json:"coordinates,omitempty"`
	Address     string              `json:"address,omitempty"`
	GPS         bool                `json:"gps,omitempty"`
}

// SetLocationHandler handles POST /api/sessions/{id}/location
func (h *SessionHandler) SetLocationHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req LocationRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	var (
		loc models.UserLocation
		err error
	)
	switch {
	case req.Coordinates != nil:
		loc, err = s.SetManualLocation(*req.Coordinates, req.Address)
	case req.Address != "":
		loc, err = s.SetManualAddress(r.Context(), req.Address)
	case req.GPS:
		loc, err = s.UseGPSLocation(r.Context())
	default:
		WriteError(w, http.StatusBadRequest, "One of coordinates, address or gps is required")
		return
	}
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, loc)
}

// RequestLocationHandler handles POST /api/sessions/{id}/location/request
func (h *SessionHandler) RequestLocationHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	loc, err := s.RequestLocation(r.Context())
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, loc)
}

// ReverseGeocodeHandler handles GET /api/sessions/{id}/geocode/reverse?lat=&lng=
func (h *SessionHandler) ReverseGeocodeHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	coords, err := ParseCoordinates(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	address, err := s.ReverseGeocode(r.Context(), coords)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"address": address})
}

// RetrySearchHandler handles POST /api/sessions/{id}/search/retry
func (h *SessionHandler) RetrySearchHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	s.RetrySearch()
	WriteJSON(w, http.StatusAccepted, map[string]string{
		"status":  "started",
		"message": "Search started",
	})
}

// SelectRequest selects a place; an empty PlaceID clears the selection
type SelectRequest struct {
	PlaceID string `json:"place_id"`
}

// SelectHandler handles POST /api/sessions/{id}/select
func (h *SessionHandler) SelectHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req SelectRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if err := s.Select(req.PlaceID); err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, s.Snapshot())
}

// NavigationRequest starts navigation towards PlaceID
type NavigationRequest struct {
	Mode    models.NavigationMode `json:"mode"`
	PlaceID string                `json:"place_id"`
}

// StartNavigationHandler handles POST /api/sessions/{id}/navigation
func (h *SessionHandler) StartNavigationHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req NavigationRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	mode, err := models.ParseNavigationMode(string(req.Mode))
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.StartNavigation(r.Context(), mode, req.PlaceID); err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, s.Snapshot())
}

// StopNavigationHandler handles DELETE /api/sessions/{id}/navigation
func (h *SessionHandler) StopNavigationHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	s.StopNavigation()
	WriteJSON(w, http.StatusOK, s.Navigation())
}

// GetViewStateHandler handles GET /api/sessions/{id}/viewstate and returns the shareable query
func (h *SessionHandler) GetViewStateHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"query": s.ViewState().Encode()})
}

// RestoreViewStateHandler handles POST /api/sessions/{id}/viewstate?nav=&destination=
func (h *SessionHandler) RestoreViewStateHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.RestoreViewState(r.Context(), r.URL.Query()); err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, s.Snapshot())
}

// PlaceHandler handles GET /api/places/{placeID}
func (h *SessionHandler) PlaceHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	place, err := h.manager.Lookup(r.Context(), r.PathValue("placeID"))
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, place)
}
