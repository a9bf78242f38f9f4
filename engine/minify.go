package engine

import (
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/js"

	"github.com/saiset-co/sai-assets/types"
)

const (
	scriptMediaType     = "text/javascript"
	stylesheetMediaType = "text/css"
)

var minifier = newMinifier()

func newMinifier() *minify.M {
	m := minify.New()
	m.AddFunc(scriptMediaType, js.Minify)
	m.AddFunc(stylesheetMediaType, css.Minify)
	return m
}

// minifySource minifies one source file of the given kind. String and
// template literal content is left untouched by the parsers.
func minifySource(kind types.BundleKind, src []byte) ([]byte, error) {
	mediaType := scriptMediaType
	if kind == types.BundleKindStylesheet {
		mediaType = stylesheetMediaType
	}
	return minifier.Bytes(mediaType, src)
}
