package sai

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-assets/types"
)

type fakeApp struct{}

func (fakeApp) Version() string                     { return "1.0.0.0" }
func (fakeApp) Optimized() bool                     { return true }
func (fakeApp) BuiltAt() time.Time                  { return time.Time{} }
func (fakeApp) Bundle(string) (*types.Bundle, bool) { return nil, false }
func (fakeApp) Bundles() []*types.Bundle            { return nil }
func (fakeApp) BundleURL(name string) (string, types.BundleKind, bool) {
	if name != "app" {
		return "", "", false
	}
	return "/_assets/script/app-abc.js", types.BundleKindScript, true
}
func (fakeApp) HandleBundleRequest(string) (types.BundleLookup, bool) {
	return types.BundleLookup{}, false
}

type fakeAssets struct{}

func (fakeAssets) Start() error                          { return nil }
func (fakeAssets) Stop() error                           { return nil }
func (fakeAssets) IsRunning() bool                       { return true }
func (fakeAssets) Install(types.Pipelines)               {}
func (fakeAssets) Version() string                       { return "1.0.0.0" }
func (fakeAssets) Optimize() bool                        { return true }
func (fakeAssets) Container() types.ApplicationContainer { return nil }
func (fakeAssets) Current(context.Context) (types.Application, error) {
	return fakeApp{}, nil
}

func TestAssetsAccessors(t *testing.T) {
	c := InitContainer()
	SetContainer(c)

	assert.Panics(t, func() { AssetsManager() })

	c.SetAssets(fakeAssets{})

	app, err := Assets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.0.0.0", app.Version())

	url, ok := BundleURL(context.Background(), "app")
	assert.True(t, ok)
	assert.Equal(t, "/_assets/script/app-abc.js", url)

	_, ok = BundleURL(context.Background(), "missing")
	assert.False(t, ok)
}
