package handlers

import (
	"net/http"
	"strconv"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/wayfinder/internal/interfaces"
)

// PhotoHandler serves place photos fetched with the server's places key
type PhotoHandler struct {
	photos interfaces.PlacePhotoProvider
	logger arbor.ILogger
}

// NewPhotoHandler creates a new PhotoHandler
func NewPhotoHandler(photos interfaces.PlacePhotoProvider, logger arbor.ILogger) *PhotoHandler {
	return &PhotoHandler{
		photos: photos,
		logger: logger,
	}
}

// GetPhotoHandler handles GET /api/photos?ref=...&maxwidth=...
func (h *PhotoHandler) GetPhotoHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	ref := r.URL.Query().Get("ref")
	if ref == "" {
		WriteError(w, http.StatusBadRequest, "ref is required")
		return
	}
	width, _ := strconv.Atoi(r.URL.Query().Get("maxwidth"))

	photo, err := h.photos.GetPhoto(r.Context(), ref, width)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Place photo unavailable")
		WriteError(w, http.StatusBadGateway, "Photo unavailable")
		return
	}

	w.Header().Set("Content-Type", photo.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(photo.Data)))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(photo.Data); err != nil {
		h.logger.Debug().Err(err).Msg("Photo write aborted")
	}
}
