// Package engine is the default bundle engine: it resolves source patterns,
// concatenates files per bundle, optionally minifies, and content hashes the
// result.
package engine

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-assets/types"
	"github.com/saiset-co/sai-assets/utils"
)

const hashLength = 16

type Engine struct {
	logger types.Logger
}

func New(logger types.Logger) *Engine {
	return &Engine{logger: logger}
}

// cachedBundle is the value stored in the cache store for one bundle.
type cachedBundle struct {
	SourceDigest string   `json:"source_digest"`
	Hash         string   `json:"hash"`
	Sources      []string `json:"sources"`
	Content      []byte   `json:"content"`
}

func (e *Engine) BuildApplication(ctx context.Context, params types.BuildParams) (types.Application, error) {
	if params.Source == nil {
		return nil, types.Errorf(types.ErrSourceTreeMissing, "no source tree")
	}

	urls := params.URLs
	if urls == nil {
		urls = NewURLPolicy("")
	}

	logger := params.Logger
	if logger == nil {
		logger = e.logger
	}

	bundles := make([]*types.Bundle, 0, len(params.Configs))

	for _, cfg := range params.Configs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		bundle, err := e.buildBundle(params, logger, cfg)
		if err != nil {
			return nil, types.WrapError(err, "bundle "+cfg.BundleName())
		}

		bundles = append(bundles, bundle)
	}

	return newApplication(params.Version, params.Optimize, params.RootPath, urls, bundles, time.Now()), nil
}

func (e *Engine) buildBundle(params types.BuildParams, logger types.Logger, cfg types.BundleConfiguration) (*types.Bundle, error) {
	kind := cfg.BundleKind()
	if !kind.Valid() {
		return nil, types.Errorf(types.ErrConfigurationInvalid, "unknown kind %q", kind)
	}

	fsys := params.Source.FS()

	files, err := resolveSources(fsys, kind, cfg.SourcePatterns())
	if err != nil {
		return nil, err
	}

	raw, digest, err := readSources(fsys, files)
	if err != nil {
		return nil, err
	}

	var cacheKey string
	if params.Optimize && params.Cache != nil {
		cacheKey = params.Cache.BuildKey(params.Version, cfg.BundleName())
		if cached := e.loadCached(params.Cache, logger, cacheKey, digest); cached != nil {
			return &types.Bundle{
				Name:        cfg.BundleName(),
				Kind:        kind,
				Hash:        cached.Hash,
				ContentType: kind.ContentType(),
				Content:     cached.Content,
				Sources:     files,
			}, nil
		}
	}

	content := combine(logger, kind, files, raw, params.Optimize)
	bundle := &types.Bundle{
		Name:        cfg.BundleName(),
		Kind:        kind,
		Hash:        contentHash(content),
		ContentType: kind.ContentType(),
		Content:     content,
		Sources:     files,
	}

	if cacheKey != "" {
		e.storeCached(params.Cache, logger, cacheKey, &cachedBundle{
			SourceDigest: digest,
			Hash:         bundle.Hash,
			Sources:      files,
			Content:      content,
		})
	}

	return bundle, nil
}

func (e *Engine) loadCached(cache types.CacheManager, logger types.Logger, key, digest string) *cachedBundle {
	data, found, err := cache.Get(key)
	if err != nil {
		logger.Warn("Bundle cache read failed, building from source",
			zap.String("key", key),
			zap.Error(types.Errorf(types.ErrCacheStoreFailed, "%v", err)))
		return nil
	}
	if !found {
		return nil
	}

	var cached cachedBundle
	if err := utils.Unmarshal(data, &cached); err != nil {
		logger.Warn("Bundle cache entry is corrupt, rebuilding",
			zap.String("key", key),
			zap.Error(err))
		return nil
	}

	if cached.SourceDigest != digest || cached.Hash == "" {
		return nil
	}

	logger.Debug("Bundle served from cache", zap.String("key", key))
	return &cached
}

func (e *Engine) storeCached(cache types.CacheManager, logger types.Logger, key string, entry *cachedBundle) {
	data, err := utils.Marshal(entry)
	if err == nil {
		err = cache.Set(key, data, 0)
	}
	if err != nil {
		logger.Warn("Bundle cache write failed",
			zap.String("key", key),
			zap.Error(types.Errorf(types.ErrCacheStoreFailed, "%v", err)))
	}
}

func readSources(fsys fs.FS, files []string) ([][]byte, string, error) {
	h := sha256.New()
	raw := make([][]byte, 0, len(files))

	for _, file := range files {
		data, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, "", types.Errorf(types.ErrSourceTreeMissing, "read %s: %v", file, err)
		}

		h.Write([]byte(file))
		h.Write([]byte{0})
		h.Write(data)
		h.Write([]byte{0})

		raw = append(raw, data)
	}

	return raw, hex.EncodeToString(h.Sum(nil)), nil
}

// combine concatenates the sources of one bundle. A source the minifier
// cannot parse is written as is.
func combine(logger types.Logger, kind types.BundleKind, files []string, raw [][]byte, optimize bool) []byte {
	var buf bytes.Buffer

	for i, data := range raw {
		if optimize {
			minified, err := minifySource(kind, data)
			if err != nil {
				logger.Warn("Source not minified",
					zap.String("file", files[i]),
					zap.Error(err))
				minified = data
			}
			buf.Write(minified)
			if kind == types.BundleKindScript {
				buf.WriteString(";\n")
			}
			continue
		}

		if i > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString("/* ")
		buf.WriteString(files[i])
		buf.WriteString(" */\n")
		buf.Write(data)
		if len(data) > 0 && data[len(data)-1] != '\n' {
			buf.WriteByte('\n')
		}
	}

	return buf.Bytes()
}

func contentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])[:hashLength]
}
