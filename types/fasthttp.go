package types

import (
	"net/http"

	"github.com/valyala/fasthttp"
)

// FastResponseWriter adapts a fasthttp context to http.ResponseWriter for
// handlers written against net/http, such as promhttp.
type FastResponseWriter struct {
	ctx        *fasthttp.RequestCtx
	header     http.Header
	statusCode int
}

func NewFastResponseWriter(ctx *fasthttp.RequestCtx) *FastResponseWriter {
	return &FastResponseWriter{
		ctx:        ctx,
		header:     make(http.Header),
		statusCode: fasthttp.StatusOK,
	}
}

func (frw *FastResponseWriter) Header() http.Header {
	return frw.header
}

func (frw *FastResponseWriter) Write(data []byte) (int, error) {
	frw.flushHeader()
	return frw.ctx.Write(data)
}

func (frw *FastResponseWriter) WriteHeader(statusCode int) {
	frw.statusCode = statusCode
	frw.ctx.SetStatusCode(statusCode)
	frw.flushHeader()
}

func (frw *FastResponseWriter) flushHeader() {
	for key, values := range frw.header {
		for i, value := range values {
			if i == 0 {
				frw.ctx.Response.Header.Set(key, value)
			} else {
				frw.ctx.Response.Header.Add(key, value)
			}
		}
	}
}
