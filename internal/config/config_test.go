package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "datasets/major-power-stations.json", cfg.Data.StationsPath)
	assert.Equal(t, "datasets/submarine-cables.json", cfg.Data.CablesPath)
	assert.Equal(t, "datasets/vic-zones.json", cfg.Data.ZonesPath)
	assert.Equal(t, "geojson", cfg.Data.ZonesFormat)
	assert.Equal(t, "ZONE_CODE", cfg.Data.ZoneCodeField)
	assert.Len(t, cfg.Data.CableIDs, 10)
	assert.Contains(t, cfg.Data.CableIDs, "indigo-west")
	assert.NotContains(t, cfg.Data.CableIDs, "bass-strait-1")

	assert.Equal(t, []string{"IN1Z", "IN2Z", "IN3Z", "FZ", "GWZ"}, cfg.Zoning.Include)
	assert.Contains(t, cfg.Zoning.Exclude, "GRZ12")
	assert.Contains(t, cfg.Zoning.Exclude, "PPRZ")

	assert.Equal(t, "victoria", cfg.Scoring.Region)
	assert.InDelta(t, 30, cfg.Scoring.CableNearKM, 0.001)
	assert.InDelta(t, 200, cfg.Scoring.CableFarKM, 0.001)
	assert.InDelta(t, 30, cfg.Scoring.StationNearKM, 0.001)
	assert.InDelta(t, 100, cfg.Scoring.StationFarKM, 0.001)

	assert.InDelta(t, 140.0, cfg.Raster.LngStart, 0.001)
	assert.InDelta(t, 151.5, cfg.Raster.LngStop, 0.001)
	assert.InDelta(t, -33.5, cfg.Raster.LatStart, 0.001)
	assert.InDelta(t, -39.5, cfg.Raster.LatStop, 0.001)
	assert.Equal(t, 150, cfg.Raster.Cols)
	assert.Equal(t, 150, cfg.Raster.Rows)
	assert.Equal(t, 8, cfg.Raster.Workers)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "sitescore.db", cfg.Store.DatabaseURL)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 300, cfg.Server.CacheTTLSecs)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/sitescore
log:
  level: debug
  format: console
scoring:
  cable_far_km: 250
zoning:
  include: [IN1Z]
raster:
  cols: 40
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/sitescore", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.InDelta(t, 250, cfg.Scoring.CableFarKM, 0.001)
	assert.Equal(t, []string{"IN1Z"}, cfg.Zoning.Include)
	assert.Equal(t, 40, cfg.Raster.Cols)
	// Defaults still apply for unset values
	assert.Equal(t, 150, cfg.Raster.Rows)
	assert.InDelta(t, 30, cfg.Scoring.CableNearKM, 0.001)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("SITESCORE_STORE_DRIVER", "postgres")
	t.Setenv("SITESCORE_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SITESCORE_SERVER_PORT=3001\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("SITESCORE_SERVER_PORT") }) //nolint:errcheck

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3001, cfg.Server.Port)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0o644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Data.StationsPath = "stations.json"
	cfg.Data.CablesPath = "cables.json"
	cfg.Data.ZonesPath = "zones.json"
	cfg.Data.ZonesFormat = "geojson"
	cfg.Data.CableIDs = []string{"indigo-west"}
	cfg.Raster.Cols = 10
	cfg.Raster.Rows = 10
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "test.db"
	cfg.Server.Port = 8080
	cfg.Server.RatePerSecond = 10
	return cfg
}

func TestValidate_AllPresent(t *testing.T) {
	cfg := validDefaults()
	for _, cmd := range []string{"data", "raster", "store", "serve"} {
		assert.NoError(t, cfg.Validate(cmd), cmd)
	}
}

func TestValidateData_MissingFields(t *testing.T) {
	cfg := &Config{}

	err := cfg.Validate("data")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "data.stations_path is required")
	assert.Contains(t, err.Error(), "data.cables_path is required")
	assert.Contains(t, err.Error(), "data.zones_path is required")
	assert.Contains(t, err.Error(), "data.zones_format must be geojson or shapefile")
	assert.Contains(t, err.Error(), "data.cable_ids")
}

func TestValidateRaster_BadGrid(t *testing.T) {
	cfg := validDefaults()
	cfg.Raster.Cols = 0
	cfg.Raster.Workers = -1

	err := cfg.Validate("raster")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "raster.cols and raster.rows must be > 0")
	assert.Contains(t, err.Error(), "raster.workers must be >= 0")
}

func TestValidateStore_UnknownDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate("store")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite or postgres")
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
}

func TestValidateServe_RateLimit(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.RatePerSecond = 0
	assert.NoError(t, cfg.Validate("serve"))

	cfg.Server.RatePerSecond = -1
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.rate_per_second must be >= 0")
}

func TestValidate_UnknownCommand(t *testing.T) {
	err := validDefaults().Validate("bogus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}
