package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/wayfinder/internal/common"
	"github.com/ternarybob/wayfinder/internal/services/session"
)

// StatusResponse is the body of GET /api/status
type StatusResponse struct {
	common.VersionInfo
	Uptime     string `json:"uptime"`
	Sessions   int    `json:"sessions"`
	Goroutines int64  `json:"tracked_goroutines"`
	Providers  struct {
		Classification string `json:"classification"`
		Places         string `json:"places"`
		Routing        string `json:"routing"`
	} `json:"providers"`
}

// StatusHandler handles HTTP requests for application status
type StatusHandler struct {
	manager   *session.Manager
	config    *common.Config
	startedAt time.Time
	logger    arbor.ILogger
}

// NewStatusHandler creates a new StatusHandler
func NewStatusHandler(manager *session.Manager, config *common.Config, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		manager:   manager,
		config:    config,
		startedAt: time.Now(),
		logger:    logger,
	}
}

// GetStatusHandler handles GET /api/status
func (h *StatusHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	resp := StatusResponse{
		VersionInfo: common.GetVersionInfo(),
		Uptime:      time.Since(h.startedAt).Round(time.Second).String(),
		Sessions:    h.manager.Count(),
		Goroutines:  common.GetGoroutineCount(),
	}
	resp.Providers.Classification = h.config.Classification.Provider
	resp.Providers.Places = h.config.PlacesAPI.BaseURL
	resp.Providers.Routing = h.config.Routing.BaseURL

	WriteJSON(w, http.StatusOK, resp)
}

// HealthHandler handles GET /api/health
func (h *StatusHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// VersionHandler handles GET /api/version
func (h *StatusHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	WriteJSON(w, http.StatusOK, common.GetVersionInfo())
}
