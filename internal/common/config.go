package common

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"

	"github.com/ternarybob/wayfinder/internal/interfaces"
)

// Config represents the application configuration
type Config struct {
	Environment    string               `toml:"environment"` // "development" or "production"
	Server         ServerConfig         `toml:"server"`
	Logging        LoggingConfig        `toml:"logging"`
	Storage        StorageConfig        `toml:"storage"`
	Location       LocationConfig       `toml:"location"`
	Search         SearchConfig         `toml:"search"`
	PlacesAPI      PlacesAPIConfig      `toml:"places_api"`
	Geocoding      GeocodingConfig      `toml:"geocoding"`
	Routing        RoutingConfig        `toml:"routing"`
	Classification ClassificationConfig `toml:"classification"`
	Gemini         GeminiConfig         `toml:"gemini"`
	Claude         ClaudeConfig         `toml:"claude"`
	LLM            LLMConfig            `toml:"llm"`
	Map            MapConfig            `toml:"map"`
	Session        SessionConfig        `toml:"session"`
	WebSocket      WebSocketConfig      `toml:"websocket"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Format string   `toml:"format"` // "json" or "text"
	Output []string `toml:"output"` // "stdout", "file"
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	InMemory       bool   `toml:"in_memory"`        // Keep caches in memory only (CLI, tests)
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup
}

// LocationConfig controls device location acquisition
type LocationConfig struct {
	Timeout     time.Duration `toml:"timeout"`      // Upper bound on one position fix
	AutoRequest bool          `toml:"auto_request"` // Request GPS once on first mount
}

// SearchConfig controls place search behavior
type SearchConfig struct {
	DefaultCategory string        `toml:"default_category"` // restaurants, hotels or parking
	DefaultRadiusM  int           `toml:"default_radius_m"` // Search radius in meters
	MaxResults      int           `toml:"max_results"`      // Places kept after sorting
	RequestTimeout  time.Duration `toml:"request_timeout"`
	CacheTTL        time.Duration `toml:"cache_ttl"` // Zero disables the search cache
}

// PlacesAPIConfig contains Google Places API configuration
type PlacesAPIConfig struct {
	APIKey         string        `toml:"api_key"`
	BaseURL        string        `toml:"base_url"`
	RateLimit      time.Duration `toml:"rate_limit"` // Minimum time between API requests
	RequestTimeout time.Duration `toml:"request_timeout"`
	Language       string        `toml:"language"`
}

// GeocodingConfig contains the Nominatim geocoder configuration
type GeocodingConfig struct {
	BaseURL   string        `toml:"base_url"`
	UserAgent string        `toml:"user_agent"` // Nominatim usage policy requires an identifying agent
	RateLimit time.Duration `toml:"rate_limit"`
	Timeout   time.Duration `toml:"timeout"`
}

// RoutingConfig contains the OSRM routing configuration
type RoutingConfig struct {
	BaseURL    string        `toml:"base_url"`
	TravelMode string        `toml:"travel_mode"` // driving, walking or cycling
	Timeout    time.Duration `toml:"timeout"`
	RateLimit  time.Duration `toml:"rate_limit"`
}

// ClassificationConfig controls review classification of search results
type ClassificationConfig struct {
	Enabled               bool          `toml:"enabled"`  // Default for new sessions
	Provider              string        `toml:"provider"` // "llm" or "heuristic"
	Timeout               time.Duration `toml:"timeout"`
	Concurrency           int           `toml:"concurrency"`
	FullConfidenceReviews int           `toml:"full_confidence_reviews"` // Review count at which classification confidence reaches ~63%
	MaxReviews            int           `toml:"max_reviews"`             // Reviews included in an LLM prompt
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	Timeout     string  `toml:"timeout"`
	RateLimit   string  `toml:"rate_limit"`
	Temperature float32 `toml:"temperature"`
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	MaxTokens   int     `toml:"max_tokens"`
	Timeout     string  `toml:"timeout"`
	RateLimit   string  `toml:"rate_limit"`
	Temperature float32 `toml:"temperature"`
}

// LLMProvider represents the AI provider type
type LLMProvider string

const (
	// LLMProviderGemini uses Google Gemini API
	LLMProviderGemini LLMProvider = "gemini"
	// LLMProviderClaude uses Anthropic Claude API
	LLMProviderClaude LLMProvider = "claude"
)

// LLMConfig selects the default AI provider
type LLMConfig struct {
	DefaultProvider LLMProvider `toml:"default_provider"`
}

// MapConfig controls camera behavior of the map surface
type MapConfig struct {
	SelectZoom     int           `toml:"select_zoom"`
	DefaultZoom    int           `toml:"default_zoom"`
	CameraDebounce time.Duration `toml:"camera_debounce"`
}

// SessionConfig controls session lifetime and cache maintenance
type SessionConfig struct {
	IdleTimeout         time.Duration `toml:"idle_timeout"`
	MaintenanceSchedule string        `toml:"maintenance_schedule"` // Cron spec, e.g. "@every 5m"
}

// WebSocketConfig contains configuration for the map surface websocket
type WebSocketConfig struct {
	WriteTimeout   time.Duration `toml:"write_timeout"`
	PingInterval   time.Duration `toml:"ping_interval"`
	MaxMessageSize int64         `toml:"max_message_size"`
	InboundRate    float64       `toml:"inbound_rate"` // Client messages per second
	InboundBurst   int           `toml:"inbound_burst"`
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout"},
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Location: LocationConfig{
			Timeout:     10 * time.Second,
			AutoRequest: true,
		},
		Search: SearchConfig{
			DefaultCategory: "restaurants",
			DefaultRadiusM:  2000, // 2 km
			MaxResults:      10,
			RequestTimeout:  15 * time.Second,
			CacheTTL:        10 * time.Minute,
		},
		PlacesAPI: PlacesAPIConfig{
			APIKey:         "", // User must provide API key
			BaseURL:        "https://maps.googleapis.com/maps/api/place",
			RateLimit:      1 * time.Second,
			RequestTimeout: 30 * time.Second,
			Language:       "en",
		},
		Geocoding: GeocodingConfig{
			BaseURL:   "https://nominatim.openstreetmap.org",
			UserAgent: "wayfinder/1.0",
			RateLimit: 1 * time.Second, // Nominatim allows 1 req/s
			Timeout:   10 * time.Second,
		},
		Routing: RoutingConfig{
			BaseURL:    "https://router.project-osrm.org",
			TravelMode: "driving",
			Timeout:    10 * time.Second,
			RateLimit:  500 * time.Millisecond,
		},
		Classification: ClassificationConfig{
			Enabled:               true,
			Provider:              "llm",
			Timeout:               30 * time.Second,
			Concurrency:           3,
			FullConfidenceReviews: 50,
			MaxReviews:            5,
		},
		Gemini: GeminiConfig{
			Model:       "gemini-3-flash-preview",
			Timeout:     "30s",
			RateLimit:   "4s", // 15 RPM free tier
			Temperature: 0.2,
		},
		Claude: ClaudeConfig{
			Model:       "claude-haiku-3-5-20241022",
			MaxTokens:   1024,
			Timeout:     "30s",
			RateLimit:   "1s",
			Temperature: 0.2,
		},
		LLM: LLMConfig{
			DefaultProvider: LLMProviderGemini,
		},
		Map: MapConfig{
			SelectZoom:     16,
			DefaultZoom:    14,
			CameraDebounce: 400 * time.Millisecond,
		},
		Session: SessionConfig{
			IdleTimeout:         30 * time.Minute,
			MaintenanceSchedule: "@every 5m",
		},
		WebSocket: WebSocketConfig{
			WriteTimeout:   10 * time.Second,
			PingInterval:   30 * time.Second,
			MaxMessageSize: 64 * 1024,
			InboundRate:    20,
			InboundBurst:   40,
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority: default -> file1 -> file2 -> ... -> env
// Later files override earlier files. CLI flags are applied by the caller with ApplyFlagOverrides.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		// Unmarshal into config (merges with existing values, later values override)
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("WAYFINDER_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("WAYFINDER_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("WAYFINDER_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Logging configuration
	if level := os.Getenv("WAYFINDER_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("WAYFINDER_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("WAYFINDER_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Storage configuration
	if badgerPath := os.Getenv("WAYFINDER_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}
	if inMemory := os.Getenv("WAYFINDER_BADGER_IN_MEMORY"); inMemory != "" {
		if b, err := strconv.ParseBool(inMemory); err == nil {
			config.Storage.Badger.InMemory = b
		}
	}

	// Search configuration
	if category := os.Getenv("WAYFINDER_SEARCH_DEFAULT_CATEGORY"); category != "" {
		config.Search.DefaultCategory = category
	}
	if radius := os.Getenv("WAYFINDER_SEARCH_DEFAULT_RADIUS_M"); radius != "" {
		if r, err := strconv.Atoi(radius); err == nil {
			config.Search.DefaultRadiusM = r
		}
	}
	if ttl := os.Getenv("WAYFINDER_SEARCH_CACHE_TTL"); ttl != "" {
		if d, err := time.ParseDuration(ttl); err == nil {
			config.Search.CacheTTL = d
		}
	}

	// Location configuration
	if timeout := os.Getenv("WAYFINDER_LOCATION_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Location.Timeout = d
		}
	}

	// Provider endpoints
	if url := os.Getenv("WAYFINDER_PLACES_BASE_URL"); url != "" {
		config.PlacesAPI.BaseURL = url
	}
	if url := os.Getenv("WAYFINDER_GEOCODING_BASE_URL"); url != "" {
		config.Geocoding.BaseURL = url
	}
	if url := os.Getenv("WAYFINDER_ROUTING_BASE_URL"); url != "" {
		config.Routing.BaseURL = url
	}

	// Classification configuration
	if enabled := os.Getenv("WAYFINDER_CLASSIFICATION_ENABLED"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			config.Classification.Enabled = b
		}
	}
	if provider := os.Getenv("WAYFINDER_CLASSIFICATION_PROVIDER"); provider != "" {
		config.Classification.Provider = provider
	}
	if provider := os.Getenv("WAYFINDER_LLM_DEFAULT_PROVIDER"); provider != "" {
		config.LLM.DefaultProvider = LLMProvider(provider)
	}
	if model := os.Getenv("WAYFINDER_GEMINI_MODEL"); model != "" {
		config.Gemini.Model = model
	}
	if model := os.Getenv("WAYFINDER_CLAUDE_MODEL"); model != "" {
		config.Claude.Model = model
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate rejects configuration values the services cannot run with
func (c *Config) Validate() error {
	if c.Search.DefaultRadiusM < 100 || c.Search.DefaultRadiusM > 50000 {
		return fmt.Errorf("search.default_radius_m must be within [100, 50000], got %d", c.Search.DefaultRadiusM)
	}
	if c.Search.MaxResults <= 0 {
		return fmt.Errorf("search.max_results must be positive, got %d", c.Search.MaxResults)
	}
	switch c.Search.DefaultCategory {
	case "restaurants", "hotels", "parking":
	default:
		return fmt.Errorf("search.default_category %q is not supported", c.Search.DefaultCategory)
	}
	switch c.Classification.Provider {
	case "llm", "heuristic":
	default:
		return fmt.Errorf("classification.provider must be llm or heuristic, got %q", c.Classification.Provider)
	}
	if c.Classification.Concurrency <= 0 {
		c.Classification.Concurrency = 1
	}
	if c.Session.MaintenanceSchedule != "" {
		if err := ValidateSchedule(c.Session.MaintenanceSchedule); err != nil {
			return fmt.Errorf("session.maintenance_schedule: %w", err)
		}
	}
	return nil
}

// ValidateSchedule validates a cron schedule expression including descriptors such as "@every 5m"
func ValidateSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}

// ResolveAPIKey resolves an API key by name with environment variable priority
// Resolution order: environment variables → KV store → config fallback → error
func ResolveAPIKey(ctx context.Context, kvStorage interfaces.KeyValueStorage, name string, configFallback string) (string, error) {
	keyToEnvMapping := map[string][]string{
		"gemini_api_key":    {"WAYFINDER_GEMINI_API_KEY", "GEMINI_API_KEY"},
		"anthropic_api_key": {"WAYFINDER_CLAUDE_API_KEY", "ANTHROPIC_API_KEY"},
		"claude_api_key":    {"WAYFINDER_CLAUDE_API_KEY", "ANTHROPIC_API_KEY"},
		"places_api_key":    {"WAYFINDER_PLACES_API_KEY", "GOOGLE_PLACES_API_KEY"},
	}

	if envVarNames, ok := keyToEnvMapping[name]; ok {
		for _, envVarName := range envVarNames {
			if envValue := os.Getenv(envVarName); envValue != "" {
				return envValue, nil
			}
		}
	}

	if kvStorage != nil {
		apiKey, err := kvStorage.Get(ctx, name)
		if err == nil && apiKey != "" {
			return apiKey, nil
		}
	}

	if configFallback != "" {
		return configFallback, nil
	}

	return "", fmt.Errorf("API key '%s' not found in environment, KV store, or config", name)
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
