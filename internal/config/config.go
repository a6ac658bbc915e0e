package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/sitescore/internal/proximity"
	"github.com/sells-group/sitescore/internal/zoning"
)

// Config holds the full application configuration.
type Config struct {
	Data    DataConfig    `yaml:"data" mapstructure:"data"`
	Zoning  ZoningConfig  `yaml:"zoning" mapstructure:"zoning"`
	Scoring ScoringConfig `yaml:"scoring" mapstructure:"scoring"`
	Raster  RasterConfig  `yaml:"raster" mapstructure:"raster"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// DataConfig locates the infrastructure and planning datasets.
type DataConfig struct {
	StationsPath     string   `yaml:"stations_path" mapstructure:"stations_path"`
	CablesPath       string   `yaml:"cables_path" mapstructure:"cables_path"`
	ZonesPath        string   `yaml:"zones_path" mapstructure:"zones_path"`
	ZonesFormat      string   `yaml:"zones_format" mapstructure:"zones_format"`
	ZoneCodeField    string   `yaml:"zone_code_field" mapstructure:"zone_code_field"`
	Charset          string   `yaml:"charset" mapstructure:"charset"`
	RegionsPath      string   `yaml:"regions_path" mapstructure:"regions_path"`
	CableIDs         []string `yaml:"cable_ids" mapstructure:"cable_ids"`
	SkipInvalidZones bool     `yaml:"skip_invalid_zones" mapstructure:"skip_invalid_zones"`
}

// ZoningConfig lists the zone codes treated as preferred and excluded.
type ZoningConfig struct {
	Include []string `yaml:"include" mapstructure:"include"`
	Exclude []string `yaml:"exclude" mapstructure:"exclude"`
}

// ScoringConfig configures the closeness thresholds (kilometers) and the
// region points must fall inside to be scored.
type ScoringConfig struct {
	Region           string  `yaml:"region" mapstructure:"region"`
	CableNearKM      float64 `yaml:"cable_near_km" mapstructure:"cable_near_km"`
	CableFarKM       float64 `yaml:"cable_far_km" mapstructure:"cable_far_km"`
	StationNearKM    float64 `yaml:"station_near_km" mapstructure:"station_near_km"`
	StationFarKM     float64 `yaml:"station_far_km" mapstructure:"station_far_km"`
	MegawattRadiusKM float64 `yaml:"megawatt_radius_km" mapstructure:"megawatt_radius_km"`
}

// RasterConfig configures the default score grid.
type RasterConfig struct {
	LngStart float64 `yaml:"lng_start" mapstructure:"lng_start"`
	LngStop  float64 `yaml:"lng_stop" mapstructure:"lng_stop"`
	LatStart float64 `yaml:"lat_start" mapstructure:"lat_start"`
	LatStop  float64 `yaml:"lat_stop" mapstructure:"lat_stop"`
	Cols     int     `yaml:"cols" mapstructure:"cols"`
	Rows     int     `yaml:"rows" mapstructure:"rows"`
	Workers  int     `yaml:"workers" mapstructure:"workers"`
}

// StoreConfig configures the database backend for saved score fields.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	RatePerSecond  float64  `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	Burst          int      `yaml:"burst" mapstructure:"burst"`
	CacheTTLSecs   int      `yaml:"cache_ttl_secs" mapstructure:"cache_ttl_secs"`
	MaxRasterCells int      `yaml:"max_raster_cells" mapstructure:"max_raster_cells"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	// A .env file is optional; real environment variables win over it.
	_ = godotenv.Load()

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SITESCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("data.stations_path", "datasets/major-power-stations.json")
	v.SetDefault("data.cables_path", "datasets/submarine-cables.json")
	v.SetDefault("data.zones_path", "datasets/vic-zones.json")
	v.SetDefault("data.zones_format", "geojson")
	v.SetDefault("data.zone_code_field", "ZONE_CODE")
	v.SetDefault("data.cable_ids", proximity.DefaultCableIDs())
	v.SetDefault("zoning.include", zoning.DefaultIncludeCodes())
	v.SetDefault("zoning.exclude", zoning.DefaultExcludeCodes())
	v.SetDefault("scoring.region", "victoria")
	v.SetDefault("scoring.cable_near_km", 30)
	v.SetDefault("scoring.cable_far_km", 200)
	v.SetDefault("scoring.station_near_km", 30)
	v.SetDefault("scoring.station_far_km", 100)
	v.SetDefault("scoring.megawatt_radius_km", 100)
	v.SetDefault("raster.lng_start", 140.0)
	v.SetDefault("raster.lng_stop", 151.5)
	v.SetDefault("raster.lat_start", -33.5)
	v.SetDefault("raster.lat_stop", -39.5)
	v.SetDefault("raster.cols", 150)
	v.SetDefault("raster.rows", 150)
	v.SetDefault("raster.workers", 8)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "sitescore.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_per_second", 20.0)
	v.SetDefault("server.burst", 40)
	v.SetDefault("server.cache_ttl_secs", 300)
	v.SetDefault("server.max_raster_cells", 250_000)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the fields a command needs. Commands: "data" (any command
// that loads datasets), "raster", "store", "serve".
func (c *Config) Validate(command string) error {
	var errs []string

	switch command {
	case "data":
		errs = append(errs, c.validateData()...)
	case "raster":
		errs = append(errs, c.validateData()...)
		errs = append(errs, c.validateRaster()...)
	case "store":
		errs = append(errs, c.validateStore()...)
	case "serve":
		errs = append(errs, c.validateData()...)
		errs = append(errs, c.validateRaster()...)
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be between 1 and 65535")
		}
		if c.Server.RatePerSecond < 0 {
			errs = append(errs, "server.rate_per_second must be >= 0")
		}
	default:
		return eris.Errorf("config: unknown command %q", command)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateData() []string {
	var errs []string
	if c.Data.StationsPath == "" {
		errs = append(errs, "data.stations_path is required")
	}
	if c.Data.CablesPath == "" {
		errs = append(errs, "data.cables_path is required")
	}
	if c.Data.ZonesPath == "" {
		errs = append(errs, "data.zones_path is required")
	}
	switch c.Data.ZonesFormat {
	case "geojson", "shapefile":
	default:
		errs = append(errs, "data.zones_format must be geojson or shapefile")
	}
	if len(c.Data.CableIDs) == 0 {
		errs = append(errs, "data.cable_ids must list at least one cable")
	}
	return errs
}

func (c *Config) validateRaster() []string {
	var errs []string
	if c.Raster.Cols <= 0 || c.Raster.Rows <= 0 {
		errs = append(errs, "raster.cols and raster.rows must be > 0")
	}
	if c.Raster.Workers < 0 {
		errs = append(errs, "raster.workers must be >= 0")
	}
	return errs
}

func (c *Config) validateStore() []string {
	var errs []string
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, "store.driver must be sqlite or postgres")
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	return errs
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
