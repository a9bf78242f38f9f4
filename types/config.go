package types

import (
	"time"
)

type ConfigManager interface {
	Load() error
	GetConfig() *ServiceConfig
	GetValue(path string, defaultValue interface{}) interface{}
	GetAs(path string, target interface{}) error
}

type ServiceConfig struct {
	Name        string             `yaml:"name" json:"name" validate:"required"`
	Version     string             `yaml:"version" json:"version" validate:"required"`
	Server      *ServerConfig      `yaml:"server" json:"server"`
	Logger      *LoggerConfig      `yaml:"logger" json:"logger"`
	Assets      *AssetsConfig      `yaml:"assets" json:"assets"`
	Cron        *CronConfig        `yaml:"cron" json:"cron"`
	Middlewares *MiddlewaresConfig `yaml:"middlewares" json:"middlewares"`
	Metrics     *MetricsConfig     `yaml:"metrics" json:"metrics"`
	Health      *HealthConfig      `yaml:"health" json:"health"`
}

type ServerConfig struct {
	HTTP *HTTPConfig `yaml:"http" json:"http"`
}

type HTTPConfig struct {
	Host            string `yaml:"host" json:"host"`
	Port            int    `yaml:"port" json:"port" validate:"min=1,max=65535"`
	ReadTimeout     int    `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    int    `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout     int    `yaml:"idle_timeout" json:"idle_timeout"`
	ShutdownTimeout int    `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

type LoggerConfig struct {
	Type   string      `yaml:"type" json:"type"`
	Level  string      `yaml:"level" json:"level" validate:"required"`
	Config interface{} `yaml:"config" json:"config"`
}

// AssetsConfig configures the asset pipeline. Optimize, when set, overrides the
// value derived from the build mode. RootPath is the path the service is
// mounted under; it prefixes every bundle URL.
type AssetsConfig struct {
	Enabled       bool           `yaml:"enabled" json:"enabled"`
	Root          string         `yaml:"root" json:"root" validate:"required_if=Enabled true"`
	Prefix        string         `yaml:"prefix" json:"prefix" validate:"omitempty,startswith=/"`
	RootPath      string         `yaml:"root_path" json:"root_path" validate:"omitempty,startswith=/"`
	Optimize      *bool          `yaml:"optimize" json:"optimize"`
	BuildMode     string         `yaml:"build_mode" json:"build_mode" validate:"omitempty,oneof=debug release"`
	AllowEmpty    bool           `yaml:"allow_empty" json:"allow_empty"`
	WatchInterval time.Duration  `yaml:"watch_interval" json:"watch_interval" validate:"min=0"`
	Cache         *CacheConfig   `yaml:"cache" json:"cache"`
	Bundles       []BundleConfig `yaml:"bundles" json:"bundles" validate:"dive"`
}

// BundleConfig is the YAML form of a bundle configuration.
type BundleConfig struct {
	Name    string   `yaml:"name" json:"name" validate:"required"`
	Kind    string   `yaml:"kind" json:"kind" validate:"required,oneof=script stylesheet"`
	Sources []string `yaml:"sources" json:"sources" validate:"required,min=1,dive,required"`
	Version string   `yaml:"version" json:"version"`
}

func (b BundleConfig) BundleName() string       { return b.Name }
func (b BundleConfig) BundleKind() BundleKind   { return BundleKind(b.Kind) }
func (b BundleConfig) SourcePatterns() []string { return b.Sources }
func (b BundleConfig) ComponentVersion() string { return b.Version }

type CacheConfig struct {
	Enabled    bool          `yaml:"enabled" json:"enabled"`
	Type       string        `yaml:"type" json:"type" validate:"required_if=Enabled true"`
	Config     interface{}   `yaml:"config" json:"config"`
	DefaultTTL time.Duration `yaml:"default_ttl" json:"default_ttl" validate:"min=0"`
}

type CronConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Timezone string `yaml:"timezone" json:"timezone" validate:"required_if=Enabled true"`
}

type MiddlewaresConfig struct {
	Enabled     bool                  `yaml:"enabled" json:"enabled"`
	Logging     *MiddlewareItemConfig `yaml:"logging" json:"logging"`
	Recovery    *MiddlewareItemConfig `yaml:"recovery" json:"recovery"`
	Compression *MiddlewareItemConfig `yaml:"compression" json:"compression"`
}

type MiddlewareItemConfig struct {
	Enabled bool                   `yaml:"enabled" json:"enabled"`
	Weight  int                    `yaml:"weight" json:"weight" validate:"min=0"`
	Params  map[string]interface{} `yaml:"params" json:"params"`
}

type MetricsConfig struct {
	Enabled bool              `yaml:"enabled" json:"enabled"`
	Type    string            `yaml:"type" json:"type" validate:"required_if=Enabled true"`
	Config  interface{}       `yaml:"config" json:"config"`
	Labels  map[string]string `yaml:"labels" json:"labels"`
}

type HealthConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}
