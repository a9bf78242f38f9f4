package engine

import (
	"strings"

	"github.com/saiset-co/sai-assets/types"
)

const DefaultPrefix = "/_assets"

// URLPolicy produces and parses bundle URLs of the form
// {prefix}/{kind}/{name}-{hash}{ext}.
type URLPolicy struct {
	prefix string
}

func NewURLPolicy(prefix string) *URLPolicy {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return &URLPolicy{prefix: prefix}
}

func (u *URLPolicy) Prefix() string {
	return u.prefix
}

func (u *URLPolicy) BundleURL(bundle *types.Bundle) string {
	var sb strings.Builder
	sb.Grow(len(u.prefix) + len(bundle.Name) + len(bundle.Hash) + 24)
	sb.WriteString(u.prefix)
	sb.WriteByte('/')
	sb.WriteString(string(bundle.Kind))
	sb.WriteByte('/')
	sb.WriteString(bundle.Name)
	sb.WriteByte('-')
	sb.WriteString(bundle.Hash)
	sb.WriteString(bundle.Kind.Extension())
	return sb.String()
}

// ParseBundleURL accepts any path under the prefix with a known kind and
// extension. The hash is split at the last '-', so bundle names may contain
// dashes.
func (u *URLPolicy) ParseBundleURL(path string) (types.BundleRef, bool) {
	rest, ok := strings.CutPrefix(path, u.prefix+"/")
	if !ok {
		return types.BundleRef{}, false
	}

	kindPart, file, ok := strings.Cut(rest, "/")
	if !ok || strings.Contains(file, "/") {
		return types.BundleRef{}, false
	}

	kind := types.BundleKind(kindPart)
	if !kind.Valid() {
		return types.BundleRef{}, false
	}

	base, ok := strings.CutSuffix(file, kind.Extension())
	if !ok {
		return types.BundleRef{}, false
	}

	idx := strings.LastIndexByte(base, '-')
	if idx <= 0 || idx == len(base)-1 {
		return types.BundleRef{}, false
	}

	return types.BundleRef{
		Kind: kind,
		Name: base[:idx],
		Hash: base[idx+1:],
	}, true
}
