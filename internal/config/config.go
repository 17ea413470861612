package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Census   CensusConfig   `yaml:"census" mapstructure:"census"`
	Boundary BoundaryConfig `yaml:"boundary" mapstructure:"boundary"`
	Output   OutputConfig   `yaml:"output" mapstructure:"output"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// CensusConfig describes the census extract.
type CensusConfig struct {
	Path    string        `yaml:"path" mapstructure:"path"`
	Columns ColumnsConfig `yaml:"columns" mapstructure:"columns"`
	// Include and Exclude hold "column=value1,value2" filter expressions.
	Include []string `yaml:"include" mapstructure:"include"`
	Exclude []string `yaml:"exclude" mapstructure:"exclude"`
}

// ColumnsConfig names the census columns.
type ColumnsConfig struct {
	ObjectID     string `yaml:"object_id" mapstructure:"object_id"`
	DistrictID   string `yaml:"district_id" mapstructure:"district_id"`
	DistrictName string `yaml:"district_name" mapstructure:"district_name"`
	Latitude     string `yaml:"latitude" mapstructure:"latitude"`
	Longitude    string `yaml:"longitude" mapstructure:"longitude"`
	Valid        string `yaml:"valid" mapstructure:"valid"`
}

// BoundaryConfig tunes boundary estimation.
type BoundaryConfig struct {
	MaxPasses  int          `yaml:"max_passes" mapstructure:"max_passes"`
	Workers    int          `yaml:"workers" mapstructure:"workers"`
	QuadSegs   int          `yaml:"quad_segs" mapstructure:"quad_segs"`
	Geographic string       `yaml:"geographic" mapstructure:"geographic"`
	Planar     string       `yaml:"planar" mapstructure:"planar"`
	Domain     DomainConfig `yaml:"domain" mapstructure:"domain"`
	ClipPath   string       `yaml:"clip_path" mapstructure:"clip_path"`
}

// DomainConfig is the lon/lat box the planar projection is valid for.
type DomainConfig struct {
	MinLon float64 `yaml:"min_lon" mapstructure:"min_lon"`
	MinLat float64 `yaml:"min_lat" mapstructure:"min_lat"`
	MaxLon float64 `yaml:"max_lon" mapstructure:"max_lon"`
	MaxLat float64 `yaml:"max_lat" mapstructure:"max_lat"`
}

// OutputConfig controls which files a run writes.
type OutputConfig struct {
	Dir     string   `yaml:"dir" mapstructure:"dir"`
	Name    string   `yaml:"name" mapstructure:"name"`
	Formats []string `yaml:"formats" mapstructure:"formats"`
}

// StoreConfig configures persistence.
type StoreConfig struct {
	// Driver is "postgres" to publish districts to PostGIS, or "none".
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	HistoryPath string `yaml:"history_path" mapstructure:"history_path"`
	// ConnectAttempts bounds tries when PostGIS is unreachable.
	ConnectAttempts int `yaml:"connect_attempts" mapstructure:"connect_attempts"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Output formats.
const (
	FormatGeoJSON   = "geojson"
	FormatShapefile = "shapefile"
	FormatXLSX      = "xlsx"
	FormatSummary   = "summary"
)

var knownFormats = []string{FormatGeoJSON, FormatShapefile, FormatXLSX, FormatSummary}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("INCOGNITA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("census.columns.object_id", "Object_ID")
	v.SetDefault("census.columns.district_id", "D_ID")
	v.SetDefault("census.columns.district_name", "D_name")
	v.SetDefault("census.columns.latitude", "lat")
	v.SetDefault("census.columns.longitude", "long")
	v.SetDefault("census.columns.valid", "postcode_is_valid")
	v.SetDefault("boundary.max_passes", 0)
	v.SetDefault("boundary.workers", 0)
	v.SetDefault("boundary.quad_segs", 16)
	v.SetDefault("boundary.geographic", "+proj=longlat +datum=WGS84 +no_defs")
	v.SetDefault("boundary.planar", "+proj=tmerc +lat_0=49 +lon_0=-2 +k=0.9996012717 +x_0=400000 +y_0=-100000 "+
		"+ellps=airy +towgs84=446.448,-125.157,542.06,0.15,0.247,0.842,-20.489 +units=m +no_defs")
	v.SetDefault("boundary.domain.min_lon", -9.5)
	v.SetDefault("boundary.domain.min_lat", 49.0)
	v.SetDefault("boundary.domain.max_lon", 2.5)
	v.SetDefault("boundary.domain.max_lat", 61.5)
	v.SetDefault("output.dir", "output")
	v.SetDefault("output.name", "district_boundaries")
	v.SetDefault("output.formats", []string{FormatGeoJSON, FormatSummary})
	v.SetDefault("store.driver", "none")
	v.SetDefault("store.history_path", "incognita.db")
	v.SetDefault("store.connect_attempts", 3)
	v.SetDefault("server.port", 8080)

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

// HasFormat reports whether the run should write the given output format.
func (c OutputConfig) HasFormat(format string) bool {
	return slices.ContainsFunc(c.Formats, func(f string) bool { return strings.EqualFold(f, format) })
}

// Validate checks the settings a command mode depends on.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "boundaries":
		if c.Census.Path == "" {
			errs = append(errs, "census.path is required")
		}
		errs = append(errs, c.validateBoundary()...)
		for _, f := range c.Output.Formats {
			if !slices.Contains(knownFormats, strings.ToLower(f)) {
				errs = append(errs, fmt.Sprintf("output.formats: unknown format %q", f))
			}
		}
		if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for the postgres driver")
		}
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "runs":
		if c.Store.HistoryPath == "" {
			errs = append(errs, "store.history_path is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "postgres", "none", "":
	default:
		errs = append(errs, fmt.Sprintf("store.driver: unknown driver %q", c.Store.Driver))
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateBoundary() []string {
	var errs []string
	b := c.Boundary
	if b.MaxPasses < 0 {
		errs = append(errs, "boundary.max_passes must be >= 0")
	}
	if b.Workers < 0 {
		errs = append(errs, "boundary.workers must be >= 0")
	}
	if b.QuadSegs < 0 {
		errs = append(errs, "boundary.quad_segs must be >= 0")
	}
	if b.Domain.MinLon >= b.Domain.MaxLon || b.Domain.MinLat >= b.Domain.MaxLat {
		errs = append(errs, "boundary.domain must have min < max")
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
