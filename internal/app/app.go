package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/wayfinder/internal/common"
	"github.com/ternarybob/wayfinder/internal/handlers"
	"github.com/ternarybob/wayfinder/internal/interfaces"
	"github.com/ternarybob/wayfinder/internal/services/classify"
	"github.com/ternarybob/wayfinder/internal/services/events"
	"github.com/ternarybob/wayfinder/internal/services/geocoding"
	"github.com/ternarybob/wayfinder/internal/services/llm"
	"github.com/ternarybob/wayfinder/internal/services/places"
	"github.com/ternarybob/wayfinder/internal/services/routing"
	"github.com/ternarybob/wayfinder/internal/services/session"
	"github.com/ternarybob/wayfinder/internal/storage"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager
	EventService   interfaces.EventService

	// Providers
	LLMFactory *llm.ProviderFactory
	Places     interfaces.PlaceDataProvider
	Photos     interfaces.PlacePhotoProvider
	Geocoder   interfaces.GeocodingProvider
	Router     interfaces.RoutingProvider
	Classifier interfaces.ClassificationProvider

	// Sessions
	SessionManager *session.Manager

	// HTTP handlers
	SessionHandler   *handlers.SessionHandler
	PhotoHandler     *handlers.PhotoHandler
	MapSocketHandler *handlers.MapSocketHandler
	StatusHandler    *handlers.StatusHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initServices(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	logger.Info().
		Str("category", cfg.Search.DefaultCategory).
		Int("radius_m", cfg.Search.DefaultRadiusM).
		Str("classifier", app.Classifier.Name()).
		Str("routing", cfg.Routing.BaseURL).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase opens the Badger store backing caches and key/value settings
func (a *App) initDatabase() error {
	storageManager, err := storage.NewStorageManager(a.Logger, a.Config)
	if err != nil {
		return err
	}
	a.StorageManager = storageManager
	return nil
}

// initServices wires providers and the session manager
func (a *App) initServices() error {
	ctx := context.Background()

	a.EventService = events.NewService(a.Logger)
	a.subscribeAudit()

	apiKey, err := common.ResolveAPIKey(ctx, a.StorageManager.KeyValueStorage(), "places_api_key", a.Config.PlacesAPI.APIKey)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("No places API key resolved, searches will fail until one is configured")
	}
	google := places.NewGoogleProvider(&a.Config.PlacesAPI, apiKey, a.Logger)
	a.Places = google
	a.Photos = google
	a.Geocoder = geocoding.NewNominatim(&a.Config.Geocoding, a.Logger)
	a.Router = routing.NewOSRM(&a.Config.Routing, a.Logger)

	a.LLMFactory = llm.NewProviderFactory(&a.Config.Gemini, &a.Config.Claude, &a.Config.LLM, a.StorageManager.KeyValueStorage(), a.Logger)
	a.Classifier = a.selectClassifier(ctx)

	a.SessionManager = session.NewManager(a.Config, a.Dependencies(nil), a.Logger)
	a.SessionManager.AfterMaintenance(a.StorageManager.Compact)
	return a.SessionManager.Start()
}

// selectClassifier uses the LLM when configured and a key is available, else the heuristic
func (a *App) selectClassifier(ctx context.Context) interfaces.ClassificationProvider {
	heuristic := classify.NewHeuristicProvider(a.Config.Classification.FullConfidenceReviews)

	if a.Config.Classification.Provider != "llm" {
		return heuristic
	}
	if !a.LLMFactory.Available(ctx) {
		a.Logger.Warn().
			Str("provider", string(a.Config.LLM.DefaultProvider)).
			Msg("No LLM API key resolved, falling back to heuristic classification")
		return heuristic
	}
	return classify.NewLLMProvider(a.LLMFactory, a.Places, &a.Config.Classification, a.Logger)
}

// Dependencies returns the collaborators for a new session. A nil geo gives every
// session a device-backed provider.
func (a *App) Dependencies(geo interfaces.GeolocationProvider) session.Dependencies {
	return session.Dependencies{
		Places:       a.Places,
		Geocoder:     a.Geocoder,
		Router:       a.Router,
		Classifier:   a.Classifier,
		Geolocation:  geo,
		SearchCache:  a.StorageManager.SearchCache(),
		GeocodeCache: a.StorageManager.GeocodeCache(),
		Events:       a.EventService,
	}
}

// subscribeAudit logs session milestones
func (a *App) subscribeAudit() {
	audit := func(ctx context.Context, event interfaces.Event) error {
		a.Logger.Info().
			Str("event", string(event.Type)).
			Str("session_id", event.SessionID).
			Msg("Session event")
		return nil
	}
	for _, t := range []interfaces.EventType{
		interfaces.EventSearchFailed,
		interfaces.EventLocationFailed,
		interfaces.EventNavigationChanged,
		interfaces.EventSessionClosed,
	} {
		if err := a.EventService.Subscribe(t, audit); err != nil {
			a.Logger.Warn().Err(err).Str("event", string(t)).Msg("Failed to subscribe audit handler")
		}
	}
}

// initHandlers creates HTTP handlers
func (a *App) initHandlers() {
	a.SessionHandler = handlers.NewSessionHandler(a.SessionManager, a.Logger)
	a.PhotoHandler = handlers.NewPhotoHandler(a.Photos, a.Logger)
	a.MapSocketHandler = handlers.NewMapSocketHandler(a.SessionManager, &a.Config.WebSocket, a.Logger)
	a.StatusHandler = handlers.NewStatusHandler(a.SessionManager, a.Config, a.Logger)
}

// Close closes all application resources
func (a *App) Close() error {
	if a.SessionManager != nil {
		a.SessionManager.Stop()
	}

	if a.LLMFactory != nil {
		if err := a.LLMFactory.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close LLM clients")
		}
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
	}

	a.Logger.Info().Msg("Application closed")
	return nil
}
