package hostplugin

import (
	"context"
	"errors"
	"fmt"
	goplugin "plugin"
	"sync"
)

// ErrModuleNotFound reports a load for a path no loader knows about.
var ErrModuleNotFound = errors.New("hostplugin: module not found")

// Module is the opaque handle returned by a loader. Lifecycle hooks are
// discovered by interface assertion; a module exposing none is legal.
type Module any

// ModuleLoader resolves a filesystem path to a loaded module handle. It
// is the capability boundary around dynamic loading so tests can
// substitute in-memory fakes for real modules.
type ModuleLoader interface {
	Load(path string) (Module, error)
}

// Initializer is the hook an initializer module may expose. It runs
// during init, before its plugin enters the backend bucket, so the
// extension can register protocol handlers prior to activation.
type Initializer interface {
	DoInitialization(ctx context.Context, host *HostContext, mgr *Manager, p Plugin) error
}

// LoadHook is the hook an initializer module may expose to run right
// before its plugin's entry module is loaded.
type LoadHook interface {
	DoLoad(ctx context.Context, host *HostContext, p Plugin) error
}

// Entry is the hook an entry module may expose to run on activation.
type Entry interface {
	Start(ctx context.Context, host *HostContext, p Plugin) error
}

// GoLoader loads modules built with -buildmode=plugin. The shared object
// must export an Extension symbol; its value is the module handle.
type GoLoader struct{}

func (GoLoader) Load(path string) (Module, error) {
	so, err := goplugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("hostplugin: open module %s: %w", path, err)
	}

	sym, err := so.Lookup("Extension")
	if err != nil {
		return nil, fmt.Errorf("hostplugin: module %s has no Extension symbol: %w", path, err)
	}

	// Lookup on a variable yields a pointer to it; unwrap the common
	// `var Extension hostplugin.Module = ...` shape.
	if m, ok := sym.(*Module); ok {
		return *m, nil
	}
	return sym, nil
}

// Registry is an in-memory ModuleLoader for built-in modules and tests.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]Module
}

func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]Module)}
}

// Add binds a module handle to a path.
func (r *Registry) Add(path string, m Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[path] = m
}

func (r *Registry) Load(path string) (Module, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.modules[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, path)
	}
	return m, nil
}
