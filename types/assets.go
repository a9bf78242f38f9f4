package types

import (
	"context"
	"io/fs"
	"time"
)

type BundleKind string

const (
	BundleKindScript     BundleKind = "script"
	BundleKindStylesheet BundleKind = "stylesheet"
)

func (k BundleKind) Valid() bool {
	return k == BundleKindScript || k == BundleKindStylesheet
}

func (k BundleKind) Extension() string {
	switch k {
	case BundleKindScript:
		return ".js"
	case BundleKindStylesheet:
		return ".css"
	default:
		return ""
	}
}

func (k BundleKind) ContentType() string {
	switch k {
	case BundleKindScript:
		return "application/javascript; charset=utf-8"
	case BundleKindStylesheet:
		return "text/css; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

// BundleConfiguration declares one logical bundle. ComponentVersion is the
// version of whatever defines the configuration and feeds the version token.
type BundleConfiguration interface {
	BundleName() string
	BundleKind() BundleKind
	SourcePatterns() []string
	ComponentVersion() string
}

// Bundle is one built artifact. Bundles are immutable once an Application
// holding them has been published.
type Bundle struct {
	Name        string
	Kind        BundleKind
	Hash        string
	ContentType string
	Content     []byte
	Sources     []string
}

type BundleRef struct {
	Kind BundleKind
	Name string
	Hash string
}

// BundleLookup is the result of resolving a request path against an
// Application. RequestedHash is the hash carried by the URL.
type BundleLookup struct {
	Bundle        *Bundle
	RequestedHash string
}

func (l BundleLookup) Fresh() bool {
	return l.Bundle != nil && l.RequestedHash == l.Bundle.Hash
}

type URLGenerator interface {
	Prefix() string
	BundleURL(bundle *Bundle) string
	ParseBundleURL(path string) (BundleRef, bool)
}

// SourceTree is a read-only view of the asset root.
type SourceTree interface {
	Root() string
	FS() fs.FS
	Fingerprint() (string, error)
}

type BuildParams struct {
	Configs  []BundleConfiguration
	Source   SourceTree
	Cache    CacheManager
	URLs     URLGenerator
	Optimize bool
	Version  string
	RootPath string
	Logger   Logger
}

type BundleEngine interface {
	BuildApplication(ctx context.Context, params BuildParams) (Application, error)
}

// Application is a fully built, immutable set of bundles.
type Application interface {
	Version() string
	Optimized() bool
	BuiltAt() time.Time
	Bundle(name string) (*Bundle, bool)
	Bundles() []*Bundle
	BundleURL(name string) (string, BundleKind, bool)
	HandleBundleRequest(path string) (BundleLookup, bool)
}

type ApplicationContainer interface {
	Current(ctx context.Context) (Application, error)
	Invalidate()
	Mode() string
}

type AssetsManager interface {
	LifecycleManager
	Install(pipelines Pipelines)
	Current(ctx context.Context) (Application, error)
	Container() ApplicationContainer
	Version() string
	Optimize() bool
}
