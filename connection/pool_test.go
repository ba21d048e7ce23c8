package connection

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-logr/stdr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/iristech-systems/quantumgo/qerr"
)

type fakeConn struct {
	closed atomic.Bool
	fail   atomic.Bool
}

func (c *fakeConn) Ping(ctx context.Context) error {
	if c.fail.Load() {
		return qerr.New(qerr.Transport, "ping", "connection is dead")
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.closed.Store(true)
	return nil
}

func newCountingFactory() (Factory, *atomic.Int32) {
	var created atomic.Int32
	return func(ctx context.Context, cfg Config) (Conn, error) {
		created.Add(1)
		return &fakeConn{}, nil
	}, &created
}

func testPoolConfig() PoolConfig {
	cfg := DefaultPoolConfig()
	cfg.Min = 1
	cfg.Max = 3
	cfg.AcquireTimeout = 200 * time.Millisecond
	cfg.HealthCheckInterval = time.Hour
	return cfg
}

func TestPoolNeverExceedsMax(t *testing.T) {
	factory, created := newCountingFactory()
	p, err := New(Config{}, testPoolConfig(), factory, stdr.New(nil))
	require.NoError(t, err)
	defer p.Close(context.Background())

	var g errgroup.Group
	conns := make(chan Conn, 8)
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			c, err := p.Acquire(context.Background())
			if err == nil {
				conns <- c
			}
			return nil
		})
	}
	_ = g.Wait()
	close(conns)

	var got int
	for range conns {
		got++
	}
	assert.LessOrEqual(t, int(created.Load()), 3)
	assert.LessOrEqual(t, got, 3)
}

func TestPoolReusesReleasedConnection(t *testing.T) {
	factory, created := newCountingFactory()
	p, err := New(Config{}, testPoolConfig(), factory, stdr.New(nil))
	require.NoError(t, err)
	defer p.Close(context.Background())

	ctx := context.Background()
	c1, err := p.Acquire(ctx)
	require.NoError(t, err)
	p.Release(c1, false)

	c2, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.Same(t, c1, c2)
	assert.Equal(t, int32(1), created.Load())
}

func TestPoolAcquireTimesOutWhenExhausted(t *testing.T) {
	factory, _ := newCountingFactory()
	cfg := testPoolConfig()
	cfg.Max = 1
	cfg.AcquireTimeout = 50 * time.Millisecond
	p, err := New(Config{}, cfg, factory, stdr.New(nil))
	require.NoError(t, err)
	defer p.Close(context.Background())

	ctx := context.Background()
	c1, err := p.Acquire(ctx)
	require.NoError(t, err)
	defer p.Release(c1, false)

	_, err = p.Acquire(ctx)
	require.Error(t, err)
	assert.True(t, qerr.IsKind(err, qerr.AcquireTimeout))
}

func TestPoolRecoversFromUnhealthyConnection(t *testing.T) {
	var bad *fakeConn
	factory := func(ctx context.Context, cfg Config) (Conn, error) {
		if bad == nil {
			bad = &fakeConn{}
			return bad, nil
		}
		return &fakeConn{}, nil
	}
	cfg := testPoolConfig()
	cfg.Max = 1
	p, err := New(Config{}, cfg, factory, stdr.New(nil))
	require.NoError(t, err)
	defer p.Close(context.Background())

	ctx := context.Background()
	c1, err := p.Acquire(ctx)
	require.NoError(t, err)
	bad.fail.Store(true)
	p.Release(c1, true)

	c2, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.NotSame(t, c1, c2)
}

func TestPoolCloseRejectsFurtherAcquires(t *testing.T) {
	factory, _ := newCountingFactory()
	p, err := New(Config{}, testPoolConfig(), factory, stdr.New(nil))
	require.NoError(t, err)
	require.NoError(t, p.Close(context.Background()))

	_, err = p.Acquire(context.Background())
	require.Error(t, err)
}
