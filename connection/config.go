// Package connection implements the connection pool (spec component C4):
// a per-driver pool with min/max sizing, idle timeout, health checking, and
// a caller-level retry/backoff wrapper.
package connection

import "time"

// Config is the opaque, driver-specific connection configuration, mirroring
// the Python backend's connection_config map.
type Config map[string]any

// RetryConfig configures the exponential-backoff retry wrapper of spec §4.4.
type RetryConfig struct {
	Attempts      int
	BaseDelay     time.Duration
	BackoffFactor float64
	MaxDelay      time.Duration
}

// DefaultRetryConfig matches the teacher's conservative defaults: a handful
// of attempts with a modest backoff ceiling.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Attempts:      3,
		BaseDelay:     50 * time.Millisecond,
		BackoffFactor: 2.0,
		MaxDelay:      2 * time.Second,
	}
}

// PoolConfig bounds the size and lifecycle of a Pool.
type PoolConfig struct {
	Min                 int
	Max                 int
	IdleTimeout         time.Duration
	AcquireTimeout      time.Duration
	HealthCheckInterval time.Duration
	Retry               RetryConfig
}

// DefaultPoolConfig mirrors sensible defaults used across the Python
// backends' PoolConfig dataclass.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Min:                 1,
		Max:                 10,
		IdleTimeout:         5 * time.Minute,
		AcquireTimeout:      10 * time.Second,
		HealthCheckInterval: 30 * time.Second,
		Retry:               DefaultRetryConfig(),
	}
}

func (c PoolConfig) validate() error {
	if c.Min < 0 {
		return errInvalidPoolConfig("min must be >= 0")
	}
	if c.Max <= 0 {
		return errInvalidPoolConfig("max must be > 0")
	}
	if c.Min > c.Max {
		return errInvalidPoolConfig("min must be <= max")
	}
	return nil
}

type invalidPoolConfigError string

func (e invalidPoolConfigError) Error() string { return "invalid pool config: " + string(e) }

func errInvalidPoolConfig(msg string) error { return invalidPoolConfigError(msg) }
