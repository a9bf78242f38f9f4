package server

import (
	"sync"
	"sync/atomic"

	"github.com/saiset-co/sai-assets/types"
)

type namedBefore struct {
	name string
	hook types.BeforeHook
}

type namedAfter struct {
	name string
	hook types.AfterHook
}

// Pipelines holds the before and after hook lists. Writers replace the lists
// under a mutex; request handling reads them without locking.
type Pipelines struct {
	mu     sync.Mutex
	before atomic.Pointer[[]namedBefore]
	after  atomic.Pointer[[]namedAfter]
}

func NewPipelines() *Pipelines {
	p := &Pipelines{}
	p.before.Store(&[]namedBefore{})
	p.after.Store(&[]namedAfter{})
	return p
}

func (p *Pipelines) AddBeforeToStart(name string, hook types.BeforeHook) {
	p.addBefore(namedBefore{name: name, hook: hook}, true)
}

func (p *Pipelines) AddBeforeToEnd(name string, hook types.BeforeHook) {
	p.addBefore(namedBefore{name: name, hook: hook}, false)
}

func (p *Pipelines) AddAfterToStart(name string, hook types.AfterHook) {
	p.addAfter(namedAfter{name: name, hook: hook}, true)
}

func (p *Pipelines) AddAfterToEnd(name string, hook types.AfterHook) {
	p.addAfter(namedAfter{name: name, hook: hook}, false)
}

func (p *Pipelines) addBefore(entry namedBefore, toStart bool) {
	if entry.hook == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	current := *p.before.Load()
	next := make([]namedBefore, 0, len(current)+1)
	if toStart {
		next = append(next, entry)
		next = append(next, current...)
	} else {
		next = append(next, current...)
		next = append(next, entry)
	}
	p.before.Store(&next)
}

func (p *Pipelines) addAfter(entry namedAfter, toStart bool) {
	if entry.hook == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	current := *p.after.Load()
	next := make([]namedAfter, 0, len(current)+1)
	if toStart {
		next = append(next, entry)
		next = append(next, current...)
	} else {
		next = append(next, current...)
		next = append(next, entry)
	}
	p.after.Store(&next)
}

// BeforeNames returns the before hook names in execution order.
func (p *Pipelines) BeforeNames() []string {
	hooks := *p.before.Load()
	names := make([]string, 0, len(hooks))
	for _, h := range hooks {
		names = append(names, h.name)
	}
	return names
}

// AfterNames returns the after hook names in execution order.
func (p *Pipelines) AfterNames() []string {
	hooks := *p.after.Load()
	names := make([]string, 0, len(hooks))
	for _, h := range hooks {
		names = append(names, h.name)
	}
	return names
}

// runBefore executes before hooks until one handles the request. The name of
// a failing hook is returned with its error.
func (p *Pipelines) runBefore(ctx *types.RequestCtx) (bool, string, error) {
	for _, h := range *p.before.Load() {
		handled, err := h.hook(ctx)
		if err != nil {
			return true, h.name, err
		}
		if handled {
			return true, h.name, nil
		}
	}
	return false, "", nil
}

func (p *Pipelines) runAfter(ctx *types.RequestCtx) (string, error) {
	for _, h := range *p.after.Load() {
		if err := h.hook(ctx); err != nil {
			return h.name, err
		}
	}
	return "", nil
}
