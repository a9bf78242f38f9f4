package utils

import "github.com/valyala/fasthttp"

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func CreateErrorResponse(ctx *fasthttp.RequestCtx) {
	CreateStatusResponse(ctx, fasthttp.StatusInternalServerError, "An unexpected error occurred")
}

func CreateNotFoundResponse(ctx *fasthttp.RequestCtx) {
	CreateStatusResponse(ctx, fasthttp.StatusNotFound, "The requested resource was not found")
}

// CreateStatusResponse replaces whatever response has been produced so far
// with a JSON error body.
func CreateStatusResponse(ctx *fasthttp.RequestCtx, status int, message string) {
	ctx.Response.Reset()
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")

	ctx.Response.Header.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	ctx.Response.Header.Set("Pragma", "no-cache")
	ctx.Response.Header.Set("Expires", "0")

	if requestID := string(ctx.Request.Header.Peek("X-Request-ID")); requestID != "" {
		ctx.Response.Header.Set("X-Request-ID", requestID)
	}

	body, err := Marshal(errorBody{Error: fasthttp.StatusMessage(status), Message: message})
	if err != nil {
		ctx.SetBodyString(`{"error":"Internal Server Error"}`)
		return
	}

	ctx.SetBody(body)
}
