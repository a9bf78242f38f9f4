package assets

import (
	"bytes"
	"html"
	"strings"

	"github.com/valyala/fasthttp"

	"github.com/saiset-co/sai-assets/types"
)

var placeholderMarker = []byte("bundle:")

type placeholder struct {
	open   []byte
	close  []byte
	render func(url string, kind types.BundleKind) string
}

var placeholders = []placeholder{
	{
		open:  []byte("{{bundle:"),
		close: []byte("}}"),
		render: func(url string, _ types.BundleKind) string {
			return url
		},
	},
	{
		open:   []byte("<!--bundle:"),
		close:  []byte("-->"),
		render: referenceTag,
	},
}

// Rewriter substitutes bundle placeholders in markup responses.
type Rewriter struct {
	container types.ApplicationContainer
	logger    types.Logger
}

func NewRewriter(container types.ApplicationContainer, logger types.Logger) *Rewriter {
	return &Rewriter{container: container, logger: logger}
}

func (r *Rewriter) Rewrite(ctx *types.RequestCtx) error {
	if !rewritable(&ctx.Response) {
		return nil
	}

	body := ctx.Response.Body()
	if !bytes.Contains(body, placeholderMarker) {
		return nil
	}

	app, err := r.container.Current(ctx.RequestCtx)
	if err != nil {
		return err
	}

	if out, changed := RewriteBody(body, app); changed {
		ctx.Response.SetBody(out)
	}

	return nil
}

func rewritable(resp *fasthttp.Response) bool {
	if len(resp.Header.Peek(fasthttp.HeaderContentEncoding)) > 0 {
		return false
	}
	if resp.IsBodyStream() {
		return false
	}

	contentType := strings.ToLower(string(resp.Header.ContentType()))
	return strings.HasPrefix(contentType, "text/html") ||
		strings.HasPrefix(contentType, "application/xhtml+xml")
}

// RewriteBody replaces {{bundle:NAME}} with the bundle URL and
// <!--bundle:NAME--> with a reference tag. Unknown names stay as they are.
// When nothing is replaced body itself is returned with changed=false.
func RewriteBody(body []byte, app types.Application) ([]byte, bool) {
	out := body
	changed := false

	for _, p := range placeholders {
		if next, ok := p.replace(out, app); ok {
			out = next
			changed = true
		}
	}

	return out, changed
}

func (p placeholder) replace(body []byte, app types.Application) ([]byte, bool) {
	var buf *bytes.Buffer
	last := 0
	pos := 0

	for {
		start := bytes.Index(body[pos:], p.open)
		if start < 0 {
			break
		}
		start += pos
		nameStart := start + len(p.open)

		end := bytes.Index(body[nameStart:], p.close)
		if end < 0 {
			break
		}
		end += nameStart

		name := string(bytes.TrimSpace(body[nameStart:end]))
		url, kind, ok := lookupName(app, name)
		if !ok {
			pos = nameStart
			continue
		}

		if buf == nil {
			buf = bytes.NewBuffer(make([]byte, 0, len(body)+64))
		}
		buf.Write(body[last:start])
		buf.WriteString(p.render(url, kind))

		last = end + len(p.close)
		pos = last
	}

	if buf == nil {
		return body, false
	}

	buf.Write(body[last:])
	return buf.Bytes(), true
}

func lookupName(app types.Application, name string) (string, types.BundleKind, bool) {
	if name == "" || strings.ContainsAny(name, " \t\r\n<>\"'{}") {
		return "", "", false
	}
	return app.BundleURL(name)
}

func referenceTag(url string, kind types.BundleKind) string {
	escaped := html.EscapeString(url)
	if kind == types.BundleKindStylesheet {
		return `<link rel="stylesheet" href="` + escaped + `">`
	}
	return `<script src="` + escaped + `"></script>`
}
