package connection

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/singleflight"

	"github.com/iristech-systems/quantumgo/qerr"
)

// Conn is the minimal contract a pooled driver connection must satisfy.
type Conn interface {
	// Ping performs a cheap liveness check.
	Ping(ctx context.Context) error
	// Close releases the underlying native resource.
	Close() error
}

// Factory creates a new driver connection using cfg.
type Factory func(ctx context.Context, cfg Config) (Conn, error)

type state int

const (
	stateIdle state = iota
	stateInUse
	stateUnhealthy
	stateClosed
)

type entry struct {
	conn  Conn
	state state
	idAt  time.Time // last time the entry became idle
}

// Pool owns a bounded set of driver connections for one backend, per spec
// §4.4. Acquire/Release/Close are safe for concurrent use; the health-check
// loop runs as a background goroutine started by New.
type Pool struct {
	mu      sync.Mutex
	cfg     PoolConfig
	connCfg Config
	factory Factory
	logger  logr.Logger

	entries []*entry
	waiters []chan struct{}

	closing  bool
	closed   bool
	stopHC   chan struct{}
	hcDone   chan struct{}
	creating singleflight.Group
}

// New constructs a Pool and starts its background health-check loop. It does
// not eagerly create Min connections; connections are dialed lazily, one at
// a time, by Acquire calls that find no idle entry while below Max.
func New(connCfg Config, cfg PoolConfig, factory Factory, logger logr.Logger) (*Pool, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	p := &Pool{
		cfg:     cfg,
		connCfg: connCfg,
		factory: factory,
		logger:  logger,
		stopHC:  make(chan struct{}),
		hcDone:  make(chan struct{}),
	}
	go p.healthCheckLoop()
	return p, nil
}

// Acquire hands out an in-use entry within cfg.AcquireTimeout, or
// ctx's own deadline, whichever is sooner, per spec §5 "acquire_timeout is
// independent of the operation deadline; the smaller applies."
func (p *Pool) Acquire(ctx context.Context) (Conn, error) {
	deadline := time.Now().Add(p.cfg.AcquireTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	acqCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	for {
		conn, wait, err := p.tryAcquire(acqCtx)
		if err != nil {
			return nil, err
		}
		if conn != nil {
			return conn, nil
		}
		select {
		case <-wait:
			continue
		case <-acqCtx.Done():
			if ctx.Err() != nil {
				return nil, qerr.New(qerr.Cancelled, "acquire", "context cancelled while waiting for a connection")
			}
			return nil, qerr.New(qerr.AcquireTimeout, "acquire", "timed out waiting for an available connection")
		}
	}
}

// tryAcquire returns (conn, nil, nil) on success, (nil, waitCh, nil) if the
// caller should wait, or (nil, nil, err) on a hard failure.
func (p *Pool) tryAcquire(ctx context.Context) (Conn, chan struct{}, error) {
	p.mu.Lock()
	if p.closing || p.closed {
		p.mu.Unlock()
		return nil, nil, qerr.New(qerr.AcquireTimeout, "acquire", "pool is closed")
	}

	for _, e := range p.entries {
		if e.state == stateIdle {
			if err := e.conn.Ping(ctx); err != nil {
				e.state = stateUnhealthy
				continue
			}
			e.state = stateInUse
			p.mu.Unlock()
			return e.conn, nil, nil
		}
	}

	if p.liveCountLocked() < p.cfg.Max {
		p.mu.Unlock()
		// Collapse concurrent first-connection creation into one factory call.
		v, err, _ := p.creating.Do("create", func() (any, error) {
			return p.factory(ctx, p.connCfg)
		})
		if err != nil {
			return nil, nil, qerr.Wrap(qerr.Transport, "acquire", err)
		}
		conn := v.(Conn)
		p.mu.Lock()
		if p.liveCountLocked() >= p.cfg.Max {
			// Lost the race; drop the extra connection and fall through to wait.
			p.mu.Unlock()
			_ = conn.Close()
		} else {
			p.entries = append(p.entries, &entry{conn: conn, state: stateInUse})
			p.mu.Unlock()
			return conn, nil, nil
		}
		p.mu.Lock()
	}

	wait := make(chan struct{}, 1)
	p.waiters = append(p.waiters, wait)
	p.mu.Unlock()
	return nil, wait, nil
}

func (p *Pool) liveCountLocked() int {
	n := 0
	for _, e := range p.entries {
		if e.state != stateClosed {
			n++
		}
	}
	return n
}

// Release returns conn to the pool. If fatal is true (the caller observed a
// transport-level failure using conn), the entry is marked unhealthy instead
// of idle and scheduled for eviction+replacement.
func (p *Pool) Release(conn Conn, fatal bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.entries {
		if e.conn == conn {
			if fatal {
				e.state = stateUnhealthy
			} else {
				e.state = stateIdle
				e.idAt = time.Now()
			}
			break
		}
	}
	p.evictUnhealthyLocked()
	p.wakeOneLocked()
}

// evictUnhealthyLocked closes and removes unhealthy entries. It creates no
// replacements, so the live count may drop below Min; a later Acquire dials
// a new connection when it finds no idle entry while below Max.
func (p *Pool) evictUnhealthyLocked() {
	kept := p.entries[:0]
	for _, e := range p.entries {
		if e.state == stateUnhealthy {
			_ = e.conn.Close()
			p.logger.V(1).Info("evicted unhealthy connection")
			continue
		}
		kept = append(kept, e)
	}
	p.entries = kept
}

func (p *Pool) wakeOneLocked() {
	if len(p.waiters) == 0 {
		return
	}
	w := p.waiters[0]
	p.waiters = p.waiters[1:]
	select {
	case w <- struct{}{}:
	default:
	}
}

// Close rejects new acquires and force-closes every entry after grace.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closing = true
	p.mu.Unlock()

	close(p.stopHC)
	<-p.hcDone

	grace := time.NewTimer(5 * time.Second)
	defer grace.Stop()
	for {
		p.mu.Lock()
		allIdle := true
		for _, e := range p.entries {
			if e.state == stateInUse {
				allIdle = false
				break
			}
		}
		if allIdle {
			for _, e := range p.entries {
				_ = e.conn.Close()
			}
			p.entries = nil
			p.closed = true
			p.mu.Unlock()
			return nil
		}
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			return p.forceClose()
		case <-grace.C:
			return p.forceClose()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func (p *Pool) forceClose() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.entries {
		_ = e.conn.Close()
	}
	p.entries = nil
	p.closed = true
	return nil
}

// Stats returns a point-in-time snapshot of pool occupancy.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := Stats{Max: p.cfg.Max, Min: p.cfg.Min}
	for _, e := range p.entries {
		switch e.state {
		case stateIdle:
			s.Idle++
		case stateInUse:
			s.InUse++
		case stateUnhealthy:
			s.Unhealthy++
		}
	}
	s.Live = s.Idle + s.InUse + s.Unhealthy
	return s
}

func (p *Pool) healthCheckLoop() {
	defer close(p.hcDone)
	ticker := time.NewTicker(p.cfg.HealthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopHC:
			return
		case <-ticker.C:
			p.runHealthCheck()
		}
	}
}

func (p *Pool) runHealthCheck() {
	p.mu.Lock()
	var toCheck []*entry
	for _, e := range p.entries {
		if e.state == stateIdle {
			toCheck = append(toCheck, e)
		}
	}
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, e := range toCheck {
		if err := e.conn.Ping(ctx); err != nil {
			p.mu.Lock()
			if e.state == stateIdle {
				e.state = stateUnhealthy
			}
			p.mu.Unlock()
		}
	}

	p.mu.Lock()
	p.evictUnhealthyLocked()
	p.mu.Unlock()
}
