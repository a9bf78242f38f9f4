package middleware

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-assets/types"
	"github.com/saiset-co/sai-assets/utils"
)

const RequestIDHeader = "X-Request-ID"

var sensitiveHeaders = map[string]bool{
	"authorization": true,
	"x-api-key":     true,
	"cookie":        true,
	"set-cookie":    true,
}

type LoggingMiddleware struct {
	logger        types.Logger
	metrics       types.MetricsManager
	loggingConfig *LoggingConfig
	weight        int
}

type LoggingConfig struct {
	LogLevel   string `json:"log_level"`
	LogHeaders bool   `json:"log_headers"`
}

func NewLoggingMiddleware(config *types.MiddlewareItemConfig, logger types.Logger, metrics types.MetricsManager) *LoggingMiddleware {
	loggingConfig := &LoggingConfig{LogLevel: "info"}
	weight := 20

	if config != nil {
		if config.Weight > 0 {
			weight = config.Weight
		}
		if config.Params != nil {
			if err := utils.UnmarshalConfig(config.Params, loggingConfig); err != nil {
				logger.Error("Failed to unmarshal Logging middleware config", zap.Error(err))
			}
		}
	}

	return &LoggingMiddleware{
		logger:        logger,
		metrics:       metrics,
		loggingConfig: loggingConfig,
		weight:        weight,
	}
}

func (l *LoggingMiddleware) Name() string { return "logging" }
func (l *LoggingMiddleware) Weight() int  { return l.weight }

// Handle assigns a request ID when the client sent none and echoes it on the
// response.
func (l *LoggingMiddleware) Handle(ctx *types.RequestCtx, next func(*types.RequestCtx), _ *types.RouteConfig) {
	start := time.Now()

	requestID := string(ctx.Request.Header.Peek(RequestIDHeader))
	if requestID == "" {
		requestID = uuid.NewString()
		ctx.Request.Header.Set(RequestIDHeader, requestID)
	}

	l.logRequest(ctx, requestID)

	next(ctx)

	ctx.Response.Header.Set(RequestIDHeader, requestID)
	l.logResponse(ctx, requestID, time.Since(start))
}

func (l *LoggingMiddleware) logRequest(ctx *types.RequestCtx, requestID string) {
	fields := []zap.Field{
		zap.String("request_id", requestID),
		zap.ByteString("method", ctx.Method()),
		zap.ByteString("path", ctx.Path()),
		zap.String("remote_addr", remoteAddr(ctx)),
		zap.ByteString("user_agent", ctx.UserAgent()),
	}

	if query := ctx.QueryArgs().QueryString(); len(query) > 0 {
		fields = append(fields, zap.ByteString("query", query))
	}

	if l.loggingConfig.LogHeaders {
		fields = append(fields, zap.Any("headers", sanitizeHeaders(ctx)))
	}

	l.logWithLevel("Request started", fields...)
}

func (l *LoggingMiddleware) logResponse(ctx *types.RequestCtx, requestID string, duration time.Duration) {
	status := ctx.Response.StatusCode()
	fields := []zap.Field{
		zap.String("request_id", requestID),
		zap.ByteString("method", ctx.Method()),
		zap.ByteString("path", ctx.Path()),
		zap.Int("status", status),
		zap.Int("size", len(ctx.Response.Body())),
		zap.Duration("duration", duration),
	}

	switch {
	case status >= 500:
		l.logger.Error("Request completed", fields...)
	case status >= 400:
		l.logger.Warn("Request completed", fields...)
	default:
		l.logWithLevel("Request completed", fields...)
	}
}

func (l *LoggingMiddleware) logWithLevel(msg string, fields ...zap.Field) {
	switch l.loggingConfig.LogLevel {
	case "debug":
		l.logger.Debug(msg, fields...)
	case "warn":
		l.logger.Warn(msg, fields...)
	case "error":
		l.logger.Error(msg, fields...)
	default:
		l.logger.Info(msg, fields...)
	}
}

func sanitizeHeaders(ctx *types.RequestCtx) map[string]string {
	sanitized := make(map[string]string, 16)

	ctx.Request.Header.VisitAll(func(key, value []byte) {
		name := string(key)
		if sensitiveHeaders[strings.ToLower(name)] {
			sanitized[name] = "[REDACTED]"
			return
		}
		sanitized[name] = string(value)
	})

	return sanitized
}

func remoteAddr(ctx *types.RequestCtx) string {
	if forwarded := string(ctx.Request.Header.Peek("X-Forwarded-For")); forwarded != "" {
		if comma := strings.Index(forwarded, ","); comma > 0 {
			return strings.TrimSpace(forwarded[:comma])
		}
		return forwarded
	}

	if realIP := string(ctx.Request.Header.Peek("X-Real-IP")); realIP != "" {
		return realIP
	}

	return ctx.RemoteIP().String()
}
