package assets

import (
	"bytes"
	"strconv"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-assets/types"
	"github.com/saiset-co/sai-assets/utils"
)

const immutableCacheControl = "public, max-age=31536000, immutable"

// Interceptor answers bundle URLs before routing.
type Interceptor struct {
	container types.ApplicationContainer
	marker    []byte
	logger    types.Logger
	metrics   types.MetricsManager
}

func NewInterceptor(container types.ApplicationContainer, urls types.URLGenerator, logger types.Logger, metrics types.MetricsManager) *Interceptor {
	return &Interceptor{
		container: container,
		marker:    []byte(urls.Prefix() + "/"),
		logger:    logger,
		metrics:   metrics,
	}
}

// TryHandle writes the bundle response and returns true when the request
// targets a bundle URL. Any other request is left untouched.
func (i *Interceptor) TryHandle(ctx *types.RequestCtx) (bool, error) {
	if !ctx.IsGet() && !ctx.IsHead() {
		return false, nil
	}

	path := ctx.Path()
	if !bytes.Contains(path, i.marker) {
		return false, nil
	}

	app, err := i.container.Current(ctx.RequestCtx)
	if err != nil {
		return false, err
	}

	lookup, ok := app.HandleBundleRequest(string(path))
	if !ok {
		return false, nil
	}

	if lookup.Bundle == nil {
		i.record("not_found")
		utils.CreateNotFoundResponse(ctx.RequestCtx)
		return true, nil
	}

	bundle := lookup.Bundle
	etag := strconv.Quote(bundle.Hash)

	ctx.Response.Header.Set(fasthttp.HeaderETag, etag)
	ctx.Response.Header.Set("X-Content-Type-Options", "nosniff")
	if lookup.Fresh() {
		ctx.Response.Header.Set(fasthttp.HeaderCacheControl, immutableCacheControl)
	} else {
		ctx.Response.Header.Set(fasthttp.HeaderCacheControl, "no-cache")
	}

	if match := ctx.Request.Header.Peek(fasthttp.HeaderIfNoneMatch); len(match) > 0 && etagMatches(match, etag) {
		ctx.SetStatusCode(fasthttp.StatusNotModified)
		i.record("not_modified")
		return true, nil
	}

	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType(bundle.ContentType)
	ctx.SetBody(bundle.Content)

	i.record("served")
	i.logger.Debug("Bundle served",
		zap.String("bundle", bundle.Name),
		zap.String("hash", bundle.Hash),
		zap.Bool("fresh", lookup.Fresh()))

	return true, nil
}

func (i *Interceptor) record(result string) {
	if i.metrics == nil {
		return
	}
	i.metrics.Counter("assets_bundle_requests_total", map[string]string{"result": result}).Inc()
}

func etagMatches(header []byte, etag string) bool {
	for _, candidate := range bytes.Split(header, []byte(",")) {
		candidate = bytes.TrimSpace(candidate)
		candidate = bytes.TrimPrefix(candidate, []byte("W/"))
		if string(candidate) == etag || string(candidate) == "*" {
			return true
		}
	}
	return false
}
