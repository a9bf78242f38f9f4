package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-assets/types"
)

const sampleConfig = `
name: storefront
version: 1.4.0
server:
  http:
    port: 9090
assets:
  enabled: true
  root: ./web
  watch_interval: 500ms
  cache:
    enabled: true
    type: badger
    config:
      path: /var/cache/storefront
  bundles:
    - name: app
      kind: script
      sources: ["js/*.js"]
    - name: site
      kind: stylesheet
      sources: ["css/"]
      version: 2.0.0
`

func TestLoader_LoadFromBytes(t *testing.T) {
	loader := NewLoader()

	cfg, raw, err := loader.LoadFromBytes([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "storefront", cfg.Name)
	assert.Equal(t, 9090, cfg.Server.HTTP.Port)
	assert.Equal(t, "localhost", cfg.Server.HTTP.Host, "defaults survive partial sections")

	require.NotNil(t, cfg.Assets)
	assert.Equal(t, "/_assets", cfg.Assets.Prefix)
	assert.Equal(t, 500*time.Millisecond, cfg.Assets.WatchInterval)
	assert.Equal(t, "badger", cfg.Assets.Cache.Type)
	require.Len(t, cfg.Assets.Bundles, 2)
	assert.Equal(t, types.BundleKindStylesheet, cfg.Assets.Bundles[1].BundleKind())
	assert.Equal(t, "2.0.0", cfg.Assets.Bundles[1].ComponentVersion())

	assert.Contains(t, raw, "assets")
}

func TestLoader_Validation(t *testing.T) {
	loader := NewLoader()

	tests := []struct {
		name string
		doc  string
	}{
		{"missing name", "version: 1\n"},
		{"bad bundle kind", "name: a\nversion: 1\nassets:\n  enabled: true\n  root: web\n  bundles:\n    - name: x\n      kind: image\n      sources: [a]\n"},
		{"bundle without sources", "name: a\nversion: 1\nassets:\n  enabled: true\n  root: web\n  bundles:\n    - name: x\n      kind: script\n"},
		{"enabled assets without root", "name: a\nversion: 1\nassets:\n  enabled: true\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := loader.LoadFromBytes([]byte(tt.doc))
			require.Error(t, err)
			assert.ErrorIs(t, err, types.ErrConfigValidateFailed)
		})
	}
}

func TestLoader_ExpandsEnvironment(t *testing.T) {
	t.Setenv("ASSETS_ROOT", "/srv/web")

	cfg, _, err := NewLoader().LoadFromBytes([]byte("name: a\nversion: 1\nassets:\n  enabled: true\n  root: ${ASSETS_ROOT}\n"))
	require.NoError(t, err)
	assert.Equal(t, "/srv/web", cfg.Assets.Root)
}

func TestConfigurationManager_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))

	cm, err := NewConfigurationManager(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "1.4.0", cm.GetConfig().Version)
	assert.Equal(t, "/var/cache/storefront", cm.GetValue("assets.cache.config.path", ""))
	assert.Equal(t, "fallback", cm.GetValue("assets.cache.config.missing", "fallback"))

	var bundles []types.BundleConfig
	require.NoError(t, cm.GetAs("assets.bundles", &bundles))
	assert.Len(t, bundles, 2)

	paths, err := cm.GetAllPaths()
	require.NoError(t, err)
	assert.Contains(t, paths, "server.http.port")
}

func TestConfigurationManager_MissingFile(t *testing.T) {
	_, err := NewConfigurationManager(context.Background(), filepath.Join(t.TempDir(), "nope.yml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrConfigNotFound)
}
