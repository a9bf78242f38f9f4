package assets

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/saiset-co/sai-assets/types"
)

// frozenContainer builds once and never again. Callers that arrive while a
// build is pending share its outcome. A failed build is not remembered, so
// the next access tries again.
type frozenContainer struct {
	build   BuildFunc
	current atomic.Pointer[snapshot]
	group   singleflight.Group
	builds  atomic.Int64
}

func newFrozenContainer(build BuildFunc) *frozenContainer {
	return &frozenContainer{build: build}
}

func (f *frozenContainer) Current(ctx context.Context) (types.Application, error) {
	if snap := f.current.Load(); snap != nil {
		return snap.app, nil
	}

	v, err, _ := f.group.Do(buildFlight, func() (interface{}, error) {
		if snap := f.current.Load(); snap != nil {
			return snap, nil
		}

		f.builds.Add(1)
		app, err := f.build(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}

		snap := &snapshot{app: app}
		f.current.Store(snap)
		return snap, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*snapshot).app, nil
}

func (f *frozenContainer) Invalidate() {}

func (f *frozenContainer) Mode() string { return ModeFrozen }
