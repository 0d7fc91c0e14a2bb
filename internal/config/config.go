// Package config loads the globe configuration from defaults, an optional
// YAML file and GLOBE_* environment variables, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/signalsfoundry/visitor-globe/internal/logging"
	"github.com/signalsfoundry/visitor-globe/internal/observability"
	"github.com/signalsfoundry/visitor-globe/internal/telemetry"
)

const (
	// PathEnvVar names the YAML file to load when Load gets no path.
	PathEnvVar = "GLOBE_CONFIG"
	// EnvPrefix is stripped from environment variables; "__" separates
	// nesting levels, so GLOBE_ARC__TUBULAR_SEGMENTS sets arc.tubular_segments.
	EnvPrefix = "GLOBE_"
)

// Config is the full runtime configuration.
type Config struct {
	Globe     GlobeConfig                 `koanf:"globe"`
	Arc       ArcConfig                   `koanf:"arc"`
	Reveal    RevealConfig                `koanf:"reveal"`
	Markers   MarkersConfig               `koanf:"markers"`
	Feed      FeedConfig                  `koanf:"feed"`
	Loop      LoopConfig                  `koanf:"loop"`
	Logging   logging.Config              `koanf:"logging"`
	Metrics   MetricsConfig               `koanf:"metrics"`
	Tracing   observability.TracingConfig `koanf:"tracing"`
	Telemetry telemetry.Config            `koanf:"telemetry"`
}

// GlobeConfig sizes the sphere.
type GlobeConfig struct {
	Radius float64 `koanf:"radius" validate:"gt=0"`
}

// ArcConfig controls curve and tube construction.
type ArcConfig struct {
	// AltitudeMode is "auto" (scaled from the geodesic distance) or "fixed".
	AltitudeMode      string  `koanf:"altitude_mode" validate:"oneof=auto fixed"`
	Altitude          float64 `koanf:"altitude" validate:"gte=0"`
	AltitudeAutoScale float64 `koanf:"altitude_auto_scale" validate:"gte=0"`
	TubularSegments   int     `koanf:"tubular_segments" validate:"gt=0"`
	RadialSegments    int     `koanf:"radial_segments" validate:"gte=3"`
	TubeRadius        float64 `koanf:"tube_radius" validate:"gt=0"`
}

// RevealConfig controls the fill/drain animation and what happens after it.
type RevealConfig struct {
	Delay    time.Duration `koanf:"delay" validate:"gte=0"`
	Duration time.Duration `koanf:"duration" validate:"gt=0"`
	Cooldown time.Duration `koanf:"cooldown" validate:"gte=0"`
	Ease     string        `koanf:"ease" validate:"oneof=linear sine.inOut sine.in sine.out power1.out"`
	Policy   string        `koanf:"policy" validate:"oneof=terminate repeat"`
	Dedupe   string        `koanf:"dedupe" validate:"oneof=stack replace"`
}

// StaticMarker is a marker placed at startup.
type StaticMarker struct {
	Label     string  `koanf:"label" validate:"required"`
	Latitude  float64 `koanf:"latitude" validate:"latitude"`
	Longitude float64 `koanf:"longitude" validate:"longitude"`
	Metric    float64 `koanf:"metric"`
}

// MarkersConfig sizes markers and lists the static ones.
type MarkersConfig struct {
	Width  float64        `koanf:"width" validate:"gt=0"`
	Height float64        `koanf:"height" validate:"gt=0"`
	Depth  float64        `koanf:"depth" validate:"gt=0"`
	Pulse  bool           `koanf:"pulse"`
	Static []StaticMarker `koanf:"static" validate:"dive"`
}

// FeedConfig points at the analytics endpoint.
type FeedConfig struct {
	Enabled        bool          `koanf:"enabled"`
	URL            string        `koanf:"url" validate:"required_if=Enabled true,omitempty,url"`
	Method         string        `koanf:"method" validate:"oneof=GET POST"`
	Token          string        `koanf:"token"`
	Body           string        `koanf:"body"`
	Interval       time.Duration `koanf:"interval" validate:"gt=0"`
	Timeout        time.Duration `koanf:"timeout" validate:"gt=0"`
	RateLimit      float64       `koanf:"rate_limit" validate:"gt=0"`
	Burst          int           `koanf:"burst" validate:"gte=1"`
	MaxFailures    uint32        `koanf:"max_failures" validate:"gte=1"`
	BreakerTimeout time.Duration `koanf:"breaker_timeout" validate:"gt=0"`
}

// LoopConfig drives the TimeController.
type LoopConfig struct {
	Tick time.Duration `koanf:"tick" validate:"gt=0"`
	Mode string        `koanf:"mode" validate:"oneof=realtime accelerated"`
	// Duration of zero runs until interrupted.
	Duration time.Duration `koanf:"duration" validate:"gte=0"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr" validate:"required_if=Enabled true"`
}

func defaultConfig() *Config {
	return &Config{
		Globe: GlobeConfig{Radius: 5},
		Arc: ArcConfig{
			AltitudeMode:      "auto",
			AltitudeAutoScale: 1,
			TubularSegments:   50,
			RadialSegments:    9,
			TubeRadius:        0.01,
		},
		Reveal: RevealConfig{
			Delay:    time.Second,
			Duration: 2 * time.Second,
			Cooldown: 5 * time.Second,
			Ease:     "sine.inOut",
			Policy:   "terminate",
			Dedupe:   "replace",
		},
		Markers: MarkersConfig{Width: 0.1, Height: 0.1, Depth: 0.4, Pulse: true},
		Feed: FeedConfig{
			Method:         "GET",
			Interval:       10 * time.Second,
			Timeout:        5 * time.Second,
			RateLimit:      1,
			Burst:          1,
			MaxFailures:    3,
			BreakerTimeout: 30 * time.Second,
		},
		Loop:    LoopConfig{Tick: 16 * time.Millisecond, Mode: "realtime"},
		Logging: logging.Config{Level: "info", Format: "console"},
		Metrics: MetricsConfig{Addr: ":9464"},
		Tracing: observability.TracingConfig{
			ServiceName: "visitor-globe",
			Exporter:    "stdout",
			SampleRatio: 1,
		},
	}
}

// DefaultStaticMarkers is the marker set used when none is configured.
func DefaultStaticMarkers() []StaticMarker {
	return []StaticMarker{
		{Label: "Singapore", Latitude: 1.3521, Longitude: 103.8198},
		{Label: "Kuala Lumpur", Latitude: 3.1319, Longitude: 101.6841},
		{Label: "Mexico", Latitude: 23.6345, Longitude: -102.5528},
		{Label: "Brazil", Latitude: -14.235, Longitude: -51.9235},
		{Label: "Beijing", Latitude: 39.9042, Longitude: 116.4074},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := defaultConfig()
	cfg.Markers.Static = DefaultStaticMarkers()
	return cfg
}

// Load builds the configuration. path may be empty, in which case the file
// named by GLOBE_CONFIG is used if set.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path == "" {
		path = os.Getenv(PathEnvVar)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if len(cfg.Markers.Static) == 0 {
		cfg.Markers.Static = DefaultStaticMarkers()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// envTransformFunc maps GLOBE_FEED__RATE_LIMIT to feed.rate_limit. The
// config file path variable itself is not a config key.
func envTransformFunc(key string) string {
	if key == PathEnvVar {
		return ""
	}
	key = strings.TrimPrefix(key, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(key), "__", ".")
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field ranges and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Markers.Depth > c.Globe.Radius {
		return fmt.Errorf("markers: depth %.3f exceeds globe radius %.3f", c.Markers.Depth, c.Globe.Radius)
	}
	return nil
}
