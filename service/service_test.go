package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-assets/buildinfo"
	"github.com/saiset-co/sai-assets/sai"
	"github.com/saiset-co/sai-assets/server"
	"github.com/saiset-co/sai-assets/types"
)

func writeConfig(t *testing.T, extra string) string {
	t.Helper()

	dir := t.TempDir()
	root := filepath.Join(dir, "assets")
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "app.js"), []byte("console.log('app');\n"), 0o644))

	config := `name: sai-assets
version: 1.0.0
logger:
  level: error
server:
  http:
    host: 127.0.0.1
    port: 18080
health:
  enabled: true
assets:
  enabled: true
  root: ` + root + `
  bundles:
    - name: app
      kind: script
      sources: ["app.js"]
      version: 3.0.0.0
` + extra
	path := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(config), 0o644))
	return path
}

func TestRegisterProviders(t *testing.T) {
	path := writeConfig(t, "")

	container := sai.InitContainer()
	err := registerProviders(context.Background(), container, path, &buildinfo.Info{Mode: buildinfo.ModeRelease})
	require.NoError(t, err)

	httpServer := *container.HTTPServer.Load()
	pipelines := httpServer.Pipelines().(*server.Pipelines)
	assert.Equal(t, []string{"assets"}, pipelines.BeforeNames())
	assert.Equal(t, []string{"assets"}, pipelines.AfterNames())

	assetsManager := *container.Assets.Load()
	assert.Equal(t, "3.0.0.0", assetsManager.Version())
	assert.True(t, assetsManager.Optimize())

	require.NotNil(t, container.Health.Load())
	assert.Nil(t, container.Cron.Load())
	require.NotNil(t, container.Middlewares.Load())
}

func TestRegisterProviders_CronWatcher(t *testing.T) {
	path := writeConfig(t, "cron:\n  enabled: true\n  timezone: UTC\n")

	container := sai.InitContainer()
	err := registerProviders(context.Background(), container, path, &buildinfo.Info{Mode: buildinfo.ModeDebug})
	require.NoError(t, err)

	require.NotNil(t, container.Cron.Load())
	assert.False(t, (*container.Assets.Load()).Optimize())
}

func TestVersion(t *testing.T) {
	version, err := Version(context.Background(), writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, "3.0.0.0", version)
}

func TestBuild(t *testing.T) {
	report, err := Build(context.Background(), writeConfig(t, ""))
	require.NoError(t, err)

	require.Len(t, report.Bundles, 1)
	assert.Equal(t, types.BundleKindScript, report.Bundles[0].Kind)
	assert.Contains(t, report.Bundles[0].URL, "/_assets/script/app-")
	assert.Equal(t, []string{"app.js"}, report.Bundles[0].Sources)
}

func TestNewService_MissingConfig(t *testing.T) {
	_, err := NewService(context.Background(), "")
	assert.ErrorIs(t, err, types.ErrConfigInvalidPath)

	_, err = NewService(context.Background(), filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}
