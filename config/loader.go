package config

import (
	"context"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/saiset-co/sai-assets/types"
)

type Loader struct {
	validator *validator.Validate
}

func NewLoader() *Loader {
	return &Loader{
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (l *Loader) LoadFromFile(ctx context.Context, configPath string) (*types.ServiceConfig, map[string]interface{}, error) {
	if configPath == "" {
		return nil, nil, types.ErrConfigNotFound
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, nil, types.Errorf(types.ErrConfigNotFound, "file not found: %s", configPath)
	}

	data, err := l.ReadFileWithTimeout(ctx, configPath)
	if err != nil {
		return nil, nil, types.WrapError(err, "failed to read config file")
	}

	return l.LoadFromBytes(data)
}

// LoadFromBytes expands ${VAR} references, decodes the document over the
// defaults and validates the result.
func (l *Loader) LoadFromBytes(data []byte) (*types.ServiceConfig, map[string]interface{}, error) {
	expanded := []byte(os.ExpandEnv(string(data)))

	config := l.Defaults()
	if err := yaml.Unmarshal(expanded, config); err != nil {
		return nil, nil, types.Errorf(types.ErrConfigParseFailed, "%v", err)
	}

	rawData := make(map[string]interface{})
	if err := yaml.Unmarshal(expanded, &rawData); err != nil {
		return nil, nil, types.Errorf(types.ErrConfigParseFailed, "%v", err)
	}

	if err := l.validator.Struct(config); err != nil {
		return nil, nil, types.Errorf(types.ErrConfigValidateFailed, "%v", err)
	}

	return config, rawData, nil
}

func (l *Loader) ReadFileWithTimeout(ctx context.Context, filepath string) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}

	resultChan := make(chan result, 1)

	go func() {
		data, err := os.ReadFile(filepath)
		resultChan <- result{data: data, err: err}
	}()

	select {
	case res := <-resultChan:
		return res.data, res.err
	case <-ctx.Done():
		return nil, types.WrapError(ctx.Err(), "file read timeout")
	}
}

func (l *Loader) Defaults() *types.ServiceConfig {
	return &types.ServiceConfig{
		Server: &types.ServerConfig{
			HTTP: &types.HTTPConfig{
				Host:            "localhost",
				Port:            8080,
				ReadTimeout:     30,
				WriteTimeout:    30,
				IdleTimeout:     120,
				ShutdownTimeout: 5,
			},
		},
		Logger: &types.LoggerConfig{
			Type:  "console",
			Level: "info",
		},
		Assets: &types.AssetsConfig{
			Enabled:       false,
			Prefix:        "/_assets",
			WatchInterval: 2 * time.Second,
			Cache: &types.CacheConfig{
				Enabled:    false,
				Type:       "memory",
				DefaultTTL: 0,
			},
		},
		Cron: &types.CronConfig{
			Enabled:  false,
			Timezone: "UTC",
		},
		Metrics: &types.MetricsConfig{
			Enabled: false,
			Type:    "memory",
		},
		Health: &types.HealthConfig{
			Enabled: false,
		},
		Middlewares: &types.MiddlewaresConfig{
			Enabled: true,
			Recovery: &types.MiddlewareItemConfig{
				Enabled: true,
				Params: map[string]interface{}{
					"stack_trace": true,
				},
				Weight: 10,
			},
			Logging: &types.MiddlewareItemConfig{
				Enabled: true,
				Params: map[string]interface{}{
					"log_level":   "info",
					"log_headers": false,
				},
				Weight: 20,
			},
			Compression: &types.MiddlewareItemConfig{
				Enabled: false,
				Params: map[string]interface{}{
					"algorithm": "brotli",
					"level":     4,
					"min_size":  1024,
				},
				Weight: 90,
			},
		},
	}
}
