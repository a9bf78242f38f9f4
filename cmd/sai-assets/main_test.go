package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	root := filepath.Join(dir, "assets")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "js"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "js", "app.js"), []byte("// app\nconsole.log('app');\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "site.css"), []byte("body { margin: 0; }\n"), 0o644))

	config := `name: sai-assets
version: 1.0.0
logger:
  level: error
assets:
  enabled: true
  root: ` + root + `
  bundles:
    - name: app
      kind: script
      sources: ["js/"]
      version: 1.0.0.0
    - name: site
      kind: stylesheet
      sources: ["site.css"]
      version: 2.1.0.0
`
	path := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(config), 0o644))
	return path
}

func TestVersionCommand(t *testing.T) {
	path := writeFixture(t)

	var out bytes.Buffer
	err := newApp(context.Background(), &out).Run([]string{appName, "--config", path, "version"})
	require.NoError(t, err)
	assert.Equal(t, "1.0.0.0|2.1.0.0", strings.TrimSpace(out.String()))
}

func TestBuildCommand(t *testing.T) {
	path := writeFixture(t)

	var out bytes.Buffer
	err := newApp(context.Background(), &out).Run([]string{appName, "--config", path, "build"})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "version 1.0.0.0|2.1.0.0", lines[0])
	assert.Contains(t, lines[1], "/_assets/script/app-")
	assert.Contains(t, lines[2], "/_assets/stylesheet/site-")
}

func TestBuildCommandMissingConfig(t *testing.T) {
	var out bytes.Buffer
	err := newApp(context.Background(), &out).Run([]string{appName, "--config", filepath.Join(t.TempDir(), "none.yml"), "build"})
	assert.Error(t, err)
}
