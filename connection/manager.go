package connection

import (
	"context"
	"sync"

	"github.com/go-logr/logr"

	"github.com/iristech-systems/quantumgo/qerr"
)

// Manager owns one Pool per named backend instance, mirroring the Python
// ConnectionPoolManager that keyed pools by (backend, connection alias).
type Manager struct {
	mu      sync.RWMutex
	logger  logr.Logger
	pools   map[string]*Pool
	configs map[string]Config
}

// NewManager constructs an empty Manager.
func NewManager(logger logr.Logger) *Manager {
	return &Manager{
		logger:  logger,
		pools:   make(map[string]*Pool),
		configs: make(map[string]Config),
	}
}

// Register creates and registers a Pool for name, using factory to dial new
// connections. Re-registering an existing name replaces its pool after
// closing the old one.
func (m *Manager) Register(ctx context.Context, name string, connCfg Config, poolCfg PoolConfig, factory Factory) error {
	pool, err := New(connCfg, poolCfg, factory, m.logger.WithValues("pool", name))
	if err != nil {
		return err
	}

	m.mu.Lock()
	old := m.pools[name]
	m.pools[name] = pool
	m.configs[name] = connCfg
	m.mu.Unlock()

	if old != nil {
		_ = old.Close(ctx)
	}
	return nil
}

// Pool returns the named pool, or a qerr.UnknownBackend error.
func (m *Manager) Pool(name string) (*Pool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pools[name]
	if !ok {
		return nil, qerr.New(qerr.UnknownBackend, "connection.Manager.Pool", "no pool registered for "+name)
	}
	return p, nil
}

// Acquire is a convenience wrapper around Pool(name).Acquire(ctx).
func (m *Manager) Acquire(ctx context.Context, name string) (Conn, error) {
	p, err := m.Pool(name)
	if err != nil {
		return nil, err
	}
	return p.Acquire(ctx)
}

// Names lists every registered pool name.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.pools))
	for name := range m.pools {
		names = append(names, name)
	}
	return names
}

// Stats returns a snapshot of every registered pool, keyed by name.
func (m *Manager) Stats() map[string]Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Stats, len(m.pools))
	for name, p := range m.pools {
		out[name] = p.Stats()
	}
	return out
}

// CloseAll closes every registered pool, collecting the first error.
func (m *Manager) CloseAll(ctx context.Context) error {
	m.mu.Lock()
	pools := make(map[string]*Pool, len(m.pools))
	for name, p := range m.pools {
		pools[name] = p
	}
	m.pools = make(map[string]*Pool)
	m.mu.Unlock()

	var firstErr error
	for _, p := range pools {
		if err := p.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
