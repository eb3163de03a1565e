package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ternarybob/wayfinder/internal/common"
	"github.com/ternarybob/wayfinder/internal/models"
	"github.com/ternarybob/wayfinder/internal/services/session"
)

// maxBodyBytes bounds decoded request bodies
const maxBodyBytes = 1 << 20

// RequireMethod validates that the HTTP request uses the specified method.
// Returns true if the method matches, false otherwise (and writes error response).
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// WriteJSON writes a JSON response with the specified status code and data.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a standard success JSON response.
func WriteSuccess(w http.ResponseWriter, message string) error {
	return WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": message,
	})
}

// WriteError writes a standard error JSON response.
func WriteError(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, map[string]string{
		"status": "error",
		"error":  message,
	})
}

// ErrorResponse is the body written for failed operations that carry a taxonomy code
type ErrorResponse struct {
	Status    string           `json:"status"`
	Code      common.ErrorCode `json:"code"`
	Error     string           `json:"error"`
	Retryable bool             `json:"retryable"`
}

// WriteAppError writes err with the HTTP status matching its error code.
func WriteAppError(w http.ResponseWriter, err error) error {
	resp := ErrorResponse{Status: "error", Code: common.CodeOf(err), Error: err.Error()}
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		resp.Error = appErr.Message
		resp.Retryable = appErr.Retryable
	}
	return WriteJSON(w, StatusFor(err), resp)
}

// StatusFor maps an error to an HTTP status code
func StatusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrInvalidSettings), errors.Is(err, session.ErrInvalidViewState):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrUnknownPlace):
		return http.StatusNotFound
	}

	switch common.CodeOf(err) {
	case common.ErrCodeInvalidLocation:
		return http.StatusBadRequest
	case common.ErrCodeGeolocationDenied:
		return http.StatusForbidden
	case common.ErrCodeGeolocationUnavailable:
		return http.StatusServiceUnavailable
	case common.ErrCodeGeolocationTimeout:
		return http.StatusGatewayTimeout
	case common.ErrCodeGeocoding:
		return http.StatusUnprocessableEntity
	case common.ErrCodeNoResults:
		return http.StatusNotFound
	case common.ErrCodePlaceSearch, common.ErrCodeNetwork, common.ErrCodeRouting, common.ErrCodeAIClassification:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// DecodeJSON decodes the request body into v, writing a 400 on failure.
// Returns true if decoding succeeded.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		WriteError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return false
	}
	return true
}

// ParseCoordinates reads lat and lng query parameters.
func ParseCoordinates(r *http.Request) (models.Coordinates, error) {
	lat, err := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	if err != nil {
		return models.Coordinates{}, fmt.Errorf("invalid lat: %w", err)
	}
	lng, err := strconv.ParseFloat(r.URL.Query().Get("lng"), 64)
	if err != nil {
		return models.Coordinates{}, fmt.Errorf("invalid lng: %w", err)
	}
	return models.Coordinates{Lat: lat, Lng: lng}, nil
}
