package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig_SearchDefaults(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, 2000, cfg.Search.DefaultRadiusM)
	assert.Equal(t, 10, cfg.Search.MaxResults)
	assert.Equal(t, "restaurants", cfg.Search.DefaultCategory)
	assert.Equal(t, 16, cfg.Map.SelectZoom)
	assert.Equal(t, 400*time.Millisecond, cfg.Map.CameraDebounce)
	assert.Equal(t, 10*time.Second, cfg.Location.Timeout)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromFiles_LaterFileOverrides(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.toml")
	override := filepath.Join(dir, "override.toml")

	require.NoError(t, os.WriteFile(base, []byte(`
[search]
default_radius_m = 5000
default_category = "hotels"

[map]
select_zoom = 15
`), 0644))
	require.NoError(t, os.WriteFile(override, []byte(`
[search]
default_radius_m = 1500
`), 0644))

	cfg, err := LoadFromFiles(base, override)
	require.NoError(t, err)

	assert.Equal(t, 1500, cfg.Search.DefaultRadiusM)
	assert.Equal(t, "hotels", cfg.Search.DefaultCategory)
	assert.Equal(t, 15, cfg.Map.SelectZoom)
}

func TestLoadFromFiles_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wayfinder.toml")
	require.NoError(t, os.WriteFile(path, []byte("[search]\ndefault_radius_m = 5000\n"), 0644))

	t.Setenv("WAYFINDER_SEARCH_DEFAULT_RADIUS_M", "750")
	t.Setenv("WAYFINDER_LOG_OUTPUT", "stdout, file")

	cfg, err := LoadFromFiles(path)
	require.NoError(t, err)

	assert.Equal(t, 750, cfg.Search.DefaultRadiusM)
	assert.Equal(t, []string{"stdout", "file"}, cfg.Logging.Output)
}

func TestValidate_Radius(t *testing.T) {
	tests := []struct {
		name    string
		radius  int
		wantErr bool
	}{
		{"minimum", 100, false},
		{"default", 2000, false},
		{"maximum", 50000, false},
		{"too small", 99, true},
		{"too large", 50001, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			cfg.Search.DefaultRadiusM = tt.radius
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidate_RejectsUnknownProvider(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Classification.Provider = "oracle"
	assert.Error(t, cfg.Validate())

	cfg = NewDefaultConfig()
	cfg.Session.MaintenanceSchedule = "not a schedule"
	assert.Error(t, cfg.Validate())
}

func TestApplyFlagOverrides(t *testing.T) {
	cfg := NewDefaultConfig()
	ApplyFlagOverrides(cfg, 0, "")
	assert.Equal(t, 8080, cfg.Server.Port)

	ApplyFlagOverrides(cfg, 9090, "0.0.0.0")
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
}
