package middleware

import (
	"bytes"
	"compress/gzip"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-assets/types"
	"github.com/saiset-co/sai-assets/utils"
)

const (
	AlgorithmGzip       = "gzip"
	AlgorithmBrotli     = "br"
	DefaultLevel        = 4
	DefaultMinSize      = 1024
	MinCompressionRatio = 0.05
)

var defaultCompressibleTypes = []string{
	"text/*",
	"application/javascript",
	"application/json",
	"application/xml",
	"application/xhtml+xml",
	"image/svg+xml",
}

type CompressionMiddleware struct {
	logger            types.Logger
	metrics           types.MetricsManager
	compressionConfig *CompressionConfig
	encoding          string
	weight            int
	bufferPool        sync.Pool
	compressFunc      func(*bytes.Buffer, []byte) error
}

type CompressionConfig struct {
	Algorithm    string   `json:"algorithm"`
	Level        int      `json:"level"`
	MinSize      int      `json:"min_size"`
	AllowedTypes []string `json:"allowed_types"`
}

func NewCompressionMiddleware(config *types.MiddlewareItemConfig, logger types.Logger, metrics types.MetricsManager) *CompressionMiddleware {
	compressionConfig := &CompressionConfig{
		Algorithm: AlgorithmBrotli,
		Level:     DefaultLevel,
		MinSize:   DefaultMinSize,
	}
	weight := 90

	if config != nil {
		if config.Weight > 0 {
			weight = config.Weight
		}
		if config.Params != nil {
			if err := utils.UnmarshalConfig(config.Params, compressionConfig); err != nil {
				logger.Error("Failed to unmarshal compression middleware config", zap.Error(err))
			}
		}
	}

	if len(compressionConfig.AllowedTypes) == 0 {
		compressionConfig.AllowedTypes = defaultCompressibleTypes
	}

	cm := &CompressionMiddleware{
		logger:            logger,
		metrics:           metrics,
		compressionConfig: compressionConfig,
		weight:            weight,
		bufferPool: sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, 16384))
			},
		},
	}

	switch strings.ToLower(compressionConfig.Algorithm) {
	case AlgorithmGzip:
		if compressionConfig.Level < gzip.HuffmanOnly || compressionConfig.Level > gzip.BestCompression {
			logger.Warn("Invalid gzip level, using default", zap.Int("level", compressionConfig.Level))
			compressionConfig.Level = gzip.DefaultCompression
		}
		cm.encoding = AlgorithmGzip
		cm.compressFunc = cm.compressGzip
	default:
		if compressionConfig.Algorithm != "brotli" && compressionConfig.Algorithm != AlgorithmBrotli {
			logger.Warn("Unsupported compression algorithm, using brotli", zap.String("algorithm", compressionConfig.Algorithm))
		}
		if compressionConfig.Level < brotli.BestSpeed || compressionConfig.Level > brotli.BestCompression {
			compressionConfig.Level = DefaultLevel
		}
		cm.encoding = AlgorithmBrotli
		cm.compressFunc = cm.compressBrotli
	}

	return cm
}

func (c *CompressionMiddleware) Name() string { return "compression" }
func (c *CompressionMiddleware) Weight() int  { return c.weight }

// Encoding returns the Content-Encoding token the middleware produces.
func (c *CompressionMiddleware) Encoding() string { return c.encoding }

func (c *CompressionMiddleware) Handle(ctx *types.RequestCtx, next func(*types.RequestCtx), _ *types.RouteConfig) {
	next(ctx)

	if !acceptsEncoding(ctx.Request.Header.Peek("Accept-Encoding"), c.encoding) {
		return
	}

	if ctx.IsHead() || ctx.Response.IsBodyStream() || len(ctx.Response.Header.Peek("Content-Encoding")) > 0 {
		return
	}

	if !c.shouldCompress(ctx.Response.Header.ContentType()) {
		return
	}

	body := ctx.Response.Body()
	if len(body) < c.compressionConfig.MinSize {
		return
	}

	buf := c.bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer c.bufferPool.Put(buf)

	if err := c.compressFunc(buf, body); err != nil {
		c.logger.Error("Failed to compress response", zap.String("encoding", c.encoding), zap.Error(err))
		return
	}

	if 1.0-float64(buf.Len())/float64(len(body)) < MinCompressionRatio {
		return
	}

	ctx.Response.SetBody(buf.Bytes())
	ctx.Response.Header.SetContentEncoding(c.encoding)
	addVary(ctx, "Accept-Encoding")

	if c.metrics != nil {
		c.metrics.Counter("http_compressed_responses_total", map[string]string{"encoding": c.encoding}).Inc()
	}
}

func (c *CompressionMiddleware) shouldCompress(contentType []byte) bool {
	if len(contentType) == 0 {
		return false
	}

	ct := string(contentType)
	if semicolon := strings.IndexByte(ct, ';'); semicolon != -1 {
		ct = ct[:semicolon]
	}
	ct = strings.TrimSpace(strings.ToLower(ct))

	for _, allowed := range c.compressionConfig.AllowedTypes {
		if allowed == ct {
			return true
		}
		if strings.HasSuffix(allowed, "*") && strings.HasPrefix(ct, strings.TrimSuffix(allowed, "*")) {
			return true
		}
	}

	return false
}

func (c *CompressionMiddleware) compressGzip(buf *bytes.Buffer, data []byte) error {
	writer, err := gzip.NewWriterLevel(buf, c.compressionConfig.Level)
	if err != nil {
		return err
	}

	if _, err = writer.Write(data); err != nil {
		return err
	}

	return writer.Close()
}

func (c *CompressionMiddleware) compressBrotli(buf *bytes.Buffer, data []byte) error {
	writer := brotli.NewWriterLevel(buf, c.compressionConfig.Level)

	if _, err := writer.Write(data); err != nil {
		return err
	}

	return writer.Close()
}

func acceptsEncoding(header []byte, encoding string) bool {
	if len(header) == 0 {
		return false
	}

	for _, part := range strings.Split(string(header), ",") {
		token := strings.TrimSpace(part)
		params := ""
		if semicolon := strings.IndexByte(token, ';'); semicolon != -1 {
			token, params = strings.TrimSpace(token[:semicolon]), strings.TrimSpace(token[semicolon+1:])
		}
		if !strings.EqualFold(token, encoding) && token != "*" {
			continue
		}
		if strings.ReplaceAll(params, " ", "") == "q=0" {
			return false
		}
		return true
	}

	return false
}

func addVary(ctx *types.RequestCtx, value string) {
	existing := string(ctx.Response.Header.Peek("Vary"))
	if existing == "" {
		ctx.Response.Header.Set("Vary", value)
		return
	}

	for _, part := range strings.Split(existing, ",") {
		if strings.EqualFold(strings.TrimSpace(part), value) {
			return
		}
	}

	ctx.Response.Header.Set("Vary", existing+", "+value)
}
