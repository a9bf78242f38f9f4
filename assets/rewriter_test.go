package assets

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/saiset-co/sai-assets/logger"
	"github.com/saiset-co/sai-assets/types"
)

func TestRewriteBody(t *testing.T) {
	app := buildSiteApp(t)
	siteURL, _, _ := app.BundleURL("site")
	stylesURL, _, _ := app.BundleURL("styles")

	t.Run("two placeholders", func(t *testing.T) {
		body := []byte(`<link href="{{bundle:styles}}"><script src="{{ bundle:site }}"></script><img src="{{bundle:site}}">`)
		out, changed := RewriteBody(body, app)
		require.True(t, changed)
		assert.Equal(t, `<link href="`+stylesURL+`"><script src="{{ bundle:site }}"></script><img src="`+siteURL+`">`, string(out))
	})

	t.Run("reference tags", func(t *testing.T) {
		body := []byte("<head><!--bundle:styles--></head><body><!-- bundle:site --></body>")
		out, changed := RewriteBody(body, app)
		require.True(t, changed)
		assert.Equal(t,
			`<head><link rel="stylesheet" href="`+stylesURL+`"></head><body><!-- bundle:site --></body>`,
			string(out))
	})

	t.Run("no placeholders is byte identical", func(t *testing.T) {
		body := []byte("<html><body>plain {{other}} <!-- comment --></body></html>")
		out, changed := RewriteBody(body, app)
		assert.False(t, changed)
		assert.Equal(t, body, out)
		assert.Same(t, &body[0], &out[0])
	})

	t.Run("unknown names untouched", func(t *testing.T) {
		body := []byte("{{bundle:ghost}} {{bundle:}} <!--bundle:site")
		out, changed := RewriteBody(body, app)
		assert.False(t, changed)
		assert.Equal(t, string(body), string(out))
	})

	t.Run("idempotent", func(t *testing.T) {
		body := []byte("<!--bundle:site--> {{bundle:styles}}")
		once, changed := RewriteBody(body, app)
		require.True(t, changed)

		twice, changed := RewriteBody(once, app)
		assert.False(t, changed)
		assert.Equal(t, once, twice)
		assert.Equal(t, `<script src="`+siteURL+`"></script> `+stylesURL, string(twice))
	})
}

func TestRewriter_Rewrite(t *testing.T) {
	app := buildSiteApp(t)
	siteURL, _, _ := app.BundleURL("site")
	r := NewRewriter(staticContainer(app), logger.NewNop())

	tests := []struct {
		name        string
		contentType string
		encoding    string
		body        string
		want        string
	}{
		{"html", "text/html; charset=utf-8", "", "<!--bundle:site-->", `<script src="` + siteURL + `"></script>`},
		{"xhtml", "application/xhtml+xml", "", "{{bundle:site}}", siteURL},
		{"json untouched", "application/json", "", `{"u":"{{bundle:site}}"}`, `{"u":"{{bundle:site}}"}`},
		{"encoded untouched", "text/html", "br", "{{bundle:site}}", "{{bundle:site}}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := newRequestCtx(fasthttp.MethodGet, "/")
			ctx.SetContentType(tt.contentType)
			if tt.encoding != "" {
				ctx.Response.Header.Set(fasthttp.HeaderContentEncoding, tt.encoding)
			}
			ctx.SetBodyString(tt.body)

			require.NoError(t, r.Rewrite(ctx))
			assert.Equal(t, tt.want, string(ctx.Response.Body()))
		})
	}
}

func TestRewriter_SkipsContainerWithoutPlaceholders(t *testing.T) {
	cause := errors.New("broken")
	r := NewRewriter(NewContainer(true, func(context.Context) (types.Application, error) { return nil, cause }), logger.NewNop())

	ctx := newRequestCtx(fasthttp.MethodGet, "/")
	ctx.SetContentType("text/html")
	ctx.SetBodyString("<p>hello</p>")
	require.NoError(t, r.Rewrite(ctx))

	ctx.SetBodyString("{{bundle:site}}")
	assert.ErrorIs(t, r.Rewrite(ctx), cause)
}
