package middleware

import (
	"runtime"
	"sync"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-assets/types"
	"github.com/saiset-co/sai-assets/utils"
)

type RecoveryMiddleware struct {
	logger         types.Logger
	metrics        types.MetricsManager
	recoveryConfig *RecoveryConfig
	weight         int
	stackBufPool   sync.Pool
	panicLabels    map[string]string
}

type RecoveryConfig struct {
	StackTrace bool `json:"stack_trace"`
}

func NewRecoveryMiddleware(config *types.MiddlewareItemConfig, logger types.Logger, metrics types.MetricsManager) *RecoveryMiddleware {
	recoveryConfig := &RecoveryConfig{StackTrace: true}
	weight := 10

	if config != nil {
		if config.Weight > 0 {
			weight = config.Weight
		}
		if config.Params != nil {
			if err := utils.UnmarshalConfig(config.Params, recoveryConfig); err != nil {
				logger.Error("Failed to unmarshal Recovery middleware config", zap.Error(err))
			}
		}
	}

	return &RecoveryMiddleware{
		logger:         logger,
		metrics:        metrics,
		recoveryConfig: recoveryConfig,
		weight:         weight,
		stackBufPool: sync.Pool{
			New: func() interface{} {
				buf := make([]byte, 4096)
				return &buf
			},
		},
		panicLabels: map[string]string{"middleware": "recovery"},
	}
}

func (r *RecoveryMiddleware) Name() string { return "recovery" }
func (r *RecoveryMiddleware) Weight() int  { return r.weight }

func (r *RecoveryMiddleware) Handle(ctx *types.RequestCtx, next func(*types.RequestCtx), _ *types.RouteConfig) {
	defer func() {
		if rec := recover(); rec != nil {
			var stack string
			if r.recoveryConfig.StackTrace {
				stack = r.stackTrace()
			}

			r.logPanic(rec, stack, ctx)

			if r.metrics != nil {
				r.metrics.Counter("http_panics_total", r.panicLabels).Inc()
			}

			utils.CreateErrorResponse(ctx.RequestCtx)
		}
	}()

	next(ctx)
}

func (r *RecoveryMiddleware) logPanic(rec interface{}, stack string, ctx *types.RequestCtx) {
	fields := make([]zap.Field, 0, 7)
	fields = append(fields,
		zap.Any("panic", rec),
		zap.ByteString("method", ctx.Method()),
		zap.ByteString("path", ctx.Path()),
		zap.String("remote_addr", ctx.RemoteIP().String()),
	)

	if stack != "" {
		fields = append(fields, zap.String("stack", stack))
	}

	if requestID := ctx.Request.Header.Peek(RequestIDHeader); len(requestID) > 0 {
		fields = append(fields, zap.ByteString("request_id", requestID))
	}

	if userAgent := ctx.UserAgent(); len(userAgent) > 0 {
		fields = append(fields, zap.ByteString("user_agent", userAgent))
	}

	r.logger.Error("Recovered from panic", fields...)
}

func (r *RecoveryMiddleware) stackTrace() string {
	buf := r.stackBufPool.Get().(*[]byte)
	defer r.stackBufPool.Put(buf)

	n := runtime.Stack(*buf, false)
	if n < len(*buf) {
		return string((*buf)[:n])
	}

	large := make([]byte, 65536)
	n = runtime.Stack(large, false)
	return string(large[:n])
}
