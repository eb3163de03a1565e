package session

import (
	"errors"

	"github.com/ternarybob/wayfinder/internal/common"
	"github.com/ternarybob/wayfinder/internal/models"
)

// Status summarises what the list view should show in place of, or above, the results
type Status string

const (
	StatusIdle       Status = "idle"
	StatusLocating   Status = "locating"
	StatusNoLocation Status = "no_location"
	StatusSearching  Status = "searching"
	StatusReady      Status = "ready"
	StatusNoResults  Status = "no_results"
	StatusError      Status = "error"
)

// ErrorInfo is the serialisable form of the latest user-facing error
type ErrorInfo struct {
	Code      common.ErrorCode `json:"code"`
	Message   string           `json:"message"`
	Retryable bool             `json:"retryable"`
}

// Loading is the per-component in-flight indicators
type Loading struct {
	Location       bool `json:"location"`
	Search         bool `json:"search"`
	Classification bool `json:"classification"`
	Route          bool `json:"route"`
}

// Snapshot is a consistent read of everything the list and detail views render
type Snapshot struct {
	ID            string                 `json:"id"`
	Status        Status                 `json:"status"`
	Settings      Settings               `json:"settings"`
	Location      *models.UserLocation   `json:"location,omitempty"`
	ManualMode    bool                   `json:"manual_mode"`
	Items         []models.ListItem      `json:"items"`
	Stats         models.SearchStats     `json:"stats"`
	TotalFound    int                    `json:"total_found"`
	SelectedID    string                 `json:"selected_id,omitempty"`
	Camera        models.Camera          `json:"camera"`
	Navigation    models.NavigationState `json:"navigation"`
	Route         *models.Route          `json:"route,omitempty"`
	Loading       Loading                `json:"loading"`
	LocationError *ErrorInfo             `json:"location_error,omitempty"`
	SearchError   *ErrorInfo             `json:"search_error,omitempty"`
	Notifications []models.Notification  `json:"notifications,omitempty"`
	AIProvider    string                 `json:"ai_provider"`
}

func errorInfo(err error) *ErrorInfo {
	if err == nil {
		return nil
	}
	info := &ErrorInfo{Code: common.CodeOf(err), Message: err.Error()}
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		info.Message = appErr.Message
		info.Retryable = appErr.Retryable
	}
	return info
}

// Snapshot returns the current view of the session
func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		ID:            s.id,
		Settings:      s.Settings(),
		ManualMode:    s.location.IsManual(),
		Items:         s.view.ListItems(),
		Stats:         s.engine.Stats(),
		SelectedID:    s.view.SelectedID(),
		Camera:        s.view.Camera(),
		Navigation:    s.nav.State(),
		Route:         s.nav.Route(),
		LocationError: errorInfo(s.location.LastError()),
		SearchError:   errorInfo(s.engine.Err()),
		Notifications: s.surface.notifications(),
		AIProvider:    s.enricher.ProviderName(),
		Loading: Loading{
			Location:       s.location.Loading(),
			Search:         s.engine.Searching(),
			Classification: s.enricher.Classifying(),
			Route:          s.nav.Routing(),
		},
	}
	if loc, ok := s.location.Current(); ok {
		snap.Location = &loc
	}
	if result := s.engine.Result(); result != nil {
		snap.TotalFound = result.TotalFound
	}
	snap.Status = s.status(snap)
	return snap
}

func (s *Session) status(snap Snapshot) Status {
	switch {
	case snap.Loading.Search:
		return StatusSearching
	case snap.Location == nil && snap.Loading.Location:
		return StatusLocating
	case snap.Location == nil:
		return StatusNoLocation
	case snap.SearchError != nil:
		return StatusError
	case s.engine.NoResults():
		return StatusNoResults
	case s.engine.ResultID() != 0:
		return StatusReady
	}
	return StatusIdle
}
