package backend

import (
	"fmt"
	"sync"

	"github.com/iristech-systems/quantumgo/qerr"
)

// Factory constructs an Adapter from driver-specific connection config. Each
// driver package registers one via init(), mirroring database/sql's
// blank-import registration idiom — the package that wants a backend
// imports it for side effects (e.g. `_ "github.com/.../backend/clickhouse"`).
//
// Go has no runtime notion of "import failed": an unsatisfiable import is a
// compile error, not a process-time event. So the graceful-absence behavior
// of spec §4.3 is reproduced one level down, at factory-construction time —
// Open recovers a panicking factory and records it as a failed backend
// instead of crashing, so a caller who never names that backend never
// observes the failure.
type Factory func(connCfg map[string]any) (Adapter, error)

// Registry is the process-wide, name-keyed lookup of backend factories.
type Registry struct {
	mu       sync.RWMutex
	drivers  map[string]Factory
	failures map[string]string
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		drivers:  make(map[string]Factory),
		failures: make(map[string]string),
	}
}

// Register records factory under name. Idempotent: the last call for a
// given name wins, matching spec §4.3's register() contract.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[name] = factory
	delete(r.failures, name)
}

// RegisterFailed records that name's driver could not be constructed (e.g.
// its native client library is unavailable in this build), without
// affecting any other registered backend.
func (r *Registry) RegisterFailed(name string, cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[name] = cause.Error()
}

// Get looks up name's factory, or fails with qerr.UnknownBackend.
func (r *Registry) Get(name string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.drivers[name]
	if !ok {
		if msg, failed := r.failures[name]; failed {
			return nil, qerr.New(qerr.UnknownBackend, "registry.Get", fmt.Sprintf("backend %q failed to initialize: %s", name, msg))
		}
		return nil, qerr.New(qerr.UnknownBackend, "registry.Get", fmt.Sprintf("no backend registered under %q", name))
	}
	return f, nil
}

// Open looks up name's factory and constructs an Adapter with connCfg,
// recovering a constructor panic into a RegisterFailed-style error so one
// backend's broken native dependency never takes down an unrelated lookup.
func (r *Registry) Open(name string, connCfg map[string]any) (adapter Adapter, err error) {
	factory, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.RegisterFailed(name, fmt.Errorf("panic constructing backend %q: %v", name, rec))
			err = qerr.New(qerr.Backend, "registry.Open", fmt.Sprintf("backend %q panicked during construction", name))
		}
	}()
	return factory(connCfg)
}

// ListAvailable returns the names of every successfully registered backend.
func (r *Registry) ListAvailable() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.drivers))
	for name := range r.drivers {
		names = append(names, name)
	}
	return names
}

// ListFailed returns a copy of the name → failure-message map.
func (r *Registry) ListFailed() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.failures))
	for name, msg := range r.failures {
		out[name] = msg
	}
	return out
}

// Default is the process-wide registry driver packages register against
// from their init() functions via a blank import.
var Default = NewRegistry()
