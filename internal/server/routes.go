package server

import (
	"net/http"

	"github.com/ternarybob/wayfinder/internal/services/places"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	sessions := s.app.SessionHandler

	// Map surface websocket
	mux.HandleFunc("/ws/sessions/{id}", s.app.MapSocketHandler.HandleWebSocket)

	// API routes - Sessions
	mux.HandleFunc("/api/sessions", sessions.CreateHandler) // POST - create and mount
	mux.HandleFunc("/api/sessions/{id}", byMethod(MethodRouter{
		http.MethodGet:    sessions.GetHandler,
		http.MethodDelete: sessions.DeleteHandler,
	}))
	mux.HandleFunc("/api/sessions/{id}/settings", byMethod(MethodRouter{
		http.MethodPatch: sessions.UpdateSettingsHandler,
	}))

	// API routes - Location
	mux.HandleFunc("/api/sessions/{id}/location", byMethod(MethodRouter{
		http.MethodPost: sessions.SetLocationHandler,
	}))
	mux.HandleFunc("/api/sessions/{id}/location/request", byMethod(MethodRouter{
		http.MethodPost: sessions.RequestLocationHandler,
	}))
	mux.HandleFunc("/api/sessions/{id}/geocode/reverse", byMethod(MethodRouter{
		http.MethodGet: sessions.ReverseGeocodeHandler,
	}))

	// API routes - Results and selection
	mux.HandleFunc("/api/sessions/{id}/search/retry", byMethod(MethodRouter{
		http.MethodPost: sessions.RetrySearchHandler,
	}))
	mux.HandleFunc("/api/sessions/{id}/select", byMethod(MethodRouter{
		http.MethodPost: sessions.SelectHandler,
	}))
	mux.HandleFunc("/api/places/{placeID}", sessions.PlaceHandler)
	mux.HandleFunc(places.PhotoPath, s.app.PhotoHandler.GetPhotoHandler)

	// API routes - Navigation
	mux.HandleFunc("/api/sessions/{id}/navigation", byMethod(MethodRouter{
		http.MethodPost:   sessions.StartNavigationHandler,
		http.MethodDelete: sessions.StopNavigationHandler,
	}))
	mux.HandleFunc("/api/sessions/{id}/viewstate", byMethod(MethodRouter{
		http.MethodGet:  sessions.GetViewStateHandler,
		http.MethodPost: sessions.RestoreViewStateHandler,
	}))

	// API routes - System
	mux.HandleFunc("/api/status", s.app.StatusHandler.GetStatusHandler)
	mux.HandleFunc("/api/version", s.app.StatusHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.StatusHandler.HealthHandler)

	return mux
}
