package quantumgo

import (
	"context"
	"sync"

	"github.com/go-logr/logr"

	"github.com/iristech-systems/quantumgo/backend"
	"github.com/iristech-systems/quantumgo/connection"
	"github.com/iristech-systems/quantumgo/qerr"
)

// ConnectionRegistry is the process-wide object spec §6.1 calls
// ConnectionRegistry: it ties the backend driver registry (which adapter
// constructs a connection) to the connection manager (which pools the
// connections it constructs), keyed by a caller-chosen connection alias
// rather than by backend name, so one backend can serve several aliases
// with different credentials or pool sizes.
type ConnectionRegistry struct {
	mu       sync.RWMutex
	drivers  *backend.Registry
	manager  *connection.Manager
	logger   logr.Logger
	defaults map[string]string // backend name -> first alias registered for it
	backends map[string]string // alias -> backend name, read by BackendFor
}

// NewConnectionRegistry builds a registry against the process-wide driver
// registry backend.Default.
func NewConnectionRegistry(logger logr.Logger) *ConnectionRegistry {
	return NewConnectionRegistryWithDrivers(logger, backend.Default)
}

// NewConnectionRegistryWithDrivers builds a registry against an explicit
// driver registry, letting tests substitute a registry seeded with
// backend/recording instead of the process-wide real drivers.
func NewConnectionRegistryWithDrivers(logger logr.Logger, drivers *backend.Registry) *ConnectionRegistry {
	return &ConnectionRegistry{
		drivers:  drivers,
		manager:  connection.NewManager(logger),
		logger:   logger,
		defaults: make(map[string]string),
		backends: make(map[string]string),
	}
}

// Logger returns the logger the registry was constructed with, used by
// callers that need to pass it on to per-field serialization (field.ToDB's
// one-shot decimal warning).
func (r *ConnectionRegistry) Logger() logr.Logger { return r.logger }

// BackendFor returns the backend name an alias is routed to, per spec
// §4.2's "delegates per-field using the resolved backend".
func (r *ConnectionRegistry) BackendFor(alias string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.backends[alias]
	return name, ok
}

// CreateConnection registers a pooled connection alias against opts.Backend,
// per spec §6.1's create_connection(backend=, ...). The first alias
// registered for a given backend becomes that backend's default.
func (r *ConnectionRegistry) CreateConnection(ctx context.Context, alias string, opts ConnectionOptions) error {
	factory, err := r.drivers.Get(opts.Backend)
	if err != nil {
		return err
	}

	connFactory := func(ctx context.Context, cfg connection.Config) (connection.Conn, error) {
		adapter, err := factory(map[string]any(cfg))
		if err != nil {
			return nil, err
		}
		conn, ok := adapter.(connection.Conn)
		if !ok {
			return nil, qerr.New(qerr.Backend, "ConnectionRegistry.CreateConnection", "adapter does not implement connection.Conn").WithTable(opts.Backend)
		}
		return conn, nil
	}

	poolCfg := opts.Pool
	if poolCfg.Max == 0 {
		poolCfg = connection.DefaultPoolConfig()
	}
	if err := r.manager.Register(ctx, alias, connection.Config(opts.Params), poolCfg, connFactory); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[alias] = opts.Backend
	if _, ok := r.defaults[opts.Backend]; !ok {
		r.defaults[opts.Backend] = alias
	}
	return nil
}

// DefaultFor returns the first alias registered for backendName, per
// ConnectionRegistry.default_for.
func (r *ConnectionRegistry) DefaultFor(backendName string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	alias, ok := r.defaults[backendName]
	return alias, ok
}

// Acquire checks out a pooled backend.Adapter for alias. The caller must
// call Release with the same adapter once done.
func (r *ConnectionRegistry) Acquire(ctx context.Context, alias string) (backend.Adapter, error) {
	pool, err := r.manager.Pool(alias)
	if err != nil {
		return nil, err
	}
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	adapter, ok := conn.(backend.Adapter)
	if !ok {
		return nil, qerr.New(qerr.Backend, "ConnectionRegistry.Acquire", "pooled connection is not a backend.Adapter").WithTable(alias)
	}
	return adapter, nil
}

// Release returns adapter to alias's pool. fatal marks the connection
// unhealthy instead of idle, and the pool closes and evicts it at once.
func (r *ConnectionRegistry) Release(alias string, adapter backend.Adapter, fatal bool) {
	pool, err := r.manager.Pool(alias)
	if err != nil {
		return
	}
	conn, ok := adapter.(connection.Conn)
	if !ok {
		return
	}
	pool.Release(conn, fatal)
}

// Stats returns a per-alias snapshot of pool health.
func (r *ConnectionRegistry) Stats() map[string]connection.Stats {
	return r.manager.Stats()
}

// CloseAll closes every pooled connection alias.
func (r *ConnectionRegistry) CloseAll(ctx context.Context) error {
	return r.manager.CloseAll(ctx)
}
