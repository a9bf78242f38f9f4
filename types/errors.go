package types

import (
	"errors"
	"fmt"
)

var (
	ErrConfigNotFound       = errors.New("config not found")
	ErrConfigInvalidPath    = errors.New("config invalid path")
	ErrConfigParseFailed    = errors.New("config parse failed")
	ErrConfigIsNil          = errors.New("config is nil")
	ErrConfigLoadFailed     = errors.New("config load failed")
	ErrConfigValidateFailed = errors.New("config validate failed")
	ErrConfigNotLoaded      = errors.New("config not loaded")
)

var (
	ErrServerNotRunning     = errors.New("server not running")
	ErrServerAlreadyRunning = errors.New("server already running")
	ErrServerStartFailed    = errors.New("server start failed")
	ErrServerStopFailed     = errors.New("server stop failed")
	ErrHandlerIsNil         = errors.New("handler is nil")
	ErrPathNotFound         = errors.New("path not found")
)

var (
	ErrMiddlewareNotFound    = errors.New("middleware not found")
	ErrMiddlewareInvalidType = errors.New("middleware invalid type")
	ErrMiddlewareFinalized   = errors.New("middleware configuration finalized")
)

var (
	ErrCacheNotFound         = errors.New("cache not found")
	ErrCacheKeyEmpty         = errors.New("cache key empty")
	ErrCacheConnectionFailed = errors.New("cache connection failed")
	ErrCacheTypeUnknown      = errors.New("cache type unknown")
	ErrCacheOperationFailed  = errors.New("cache operation failed")
	ErrCacheIsDisabled       = errors.New("cache manager is disabled")
	ErrCacheNotRunning       = errors.New("cache manager is not running")
)

var (
	ErrCronIsRunning         = errors.New("cron is running")
	ErrCronJobExists         = errors.New("cron job exists")
	ErrCronExpressionInvalid = errors.New("cron expression invalid")
	ErrCronJobNameIsEmpty    = errors.New("cron job name is empty")
	ErrCronJobIsNil          = errors.New("cron job is nil")
	ErrCronJobNotFound       = errors.New("cron job not found")
)

var (
	ErrMetricsTypeUnknown = errors.New("metrics type unknown")
	ErrMetricsIsDisabled  = errors.New("metrics manager is disabled")
)

var (
	ErrHealthCheckFailed  = errors.New("health check failed")
	ErrHealthCheckTimeout = errors.New("health check timeout")
)

var (
	ErrLogFileIsEmpty      = errors.New("log file is empty")
	ErrLogFileWrongFormat  = errors.New("log file wrong format")
	ErrLoggerTypeUnknown   = errors.New("logger type unknown")
	ErrLoggerConfigInvalid = errors.New("logger config invalid")
)

// Asset pipeline errors. ErrConfigurationInvalid and ErrNoConfigurations are
// configuration errors; ErrBuildFailed wraps failures of the bundle engine.
var (
	ErrConfigurationInvalid = errors.New("bundle configuration invalid")
	ErrNoConfigurations     = errors.New("no bundle configurations")
	ErrBuildFailed          = errors.New("bundle build failed")
	ErrCacheStoreFailed     = errors.New("bundle cache store failed")
	ErrBundleNotFound       = errors.New("bundle not found")
	ErrSourceTreeMissing    = errors.New("source tree missing")
	ErrAssetsIsDisabled     = errors.New("assets manager is disabled")
)

var (
	ErrServiceIsRunning    = errors.New("service is running")
	ErrServiceIsNotRunning = errors.New("service is not running")
)

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrOperationFailed  = errors.New("operation failed")
	ErrInternalError    = errors.New("internal error")
	ErrInvalidState     = errors.New("invalid state")
)

func Errorf(baseErr error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", baseErr, fmt.Sprintf(format, args...))
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

func NewErrorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

func IsError(err, target error) bool {
	return errors.Is(err, target)
}

// IsConfigurationError reports whether err was caused by an unusable set of
// bundle configurations rather than by the engine or the source tree.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfigurationInvalid) || errors.Is(err, ErrNoConfigurations)
}
