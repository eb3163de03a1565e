package navigation

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ternarybob/wayfinder/internal/models"
)

// Query parameter names of the shareable view state
const (
	ParamNav         = "nav"
	ParamDestination = "destination"
)

// EncodeViewState writes state into query values. An idle state is encoded as nav=none.
func EncodeViewState(state models.NavigationState) url.Values {
	v := url.Values{}
	if !state.Active() {
		v.Set(ParamNav, string(models.NavigationNone))
		return v
	}
	v.Set(ParamNav, string(state.Mode))
	v.Set(ParamDestination, state.DestinationPlaceID)
	return v
}

// ParseViewState reads the navigation state from query values, defaulting to none.
// An active mode without a destination is rejected; a destination without an active mode is ignored.
func ParseViewState(v url.Values) (models.NavigationState, error) {
	mode, err := models.ParseNavigationMode(strings.TrimSpace(v.Get(ParamNav)))
	if err != nil {
		return models.NavigationState{Mode: models.NavigationNone}, err
	}
	if mode == models.NavigationNone {
		return models.NavigationState{Mode: models.NavigationNone}, nil
	}

	destination := strings.TrimSpace(v.Get(ParamDestination))
	if destination == "" {
		return models.NavigationState{Mode: models.NavigationNone}, fmt.Errorf("nav=%s requires a destination", mode)
	}
	return models.NavigationState{Mode: mode, DestinationPlaceID: destination}, nil
}
