package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/giantswarm/prealloc/internal/spawn"
	"github.com/prometheus/client_golang/prometheus"
)

// ManagerConfig holds configuration for a Manager. All fields are immutable
// after NewManagerWithConfig.
type ManagerConfig struct {
	// PoolSize is the number of warm or warming workers the pool keeps.
	PoolSize int

	// AcquireTimeout bounds a single Acquire when the caller's context has
	// a later (or no) deadline.
	AcquireTimeout time.Duration

	// WarmTimeout is how long a worker may take to publish its warm-up
	// report before the pool kills it and records it as failed.
	WarmTimeout time.Duration

	// StopTimeout bounds the SIGTERM/SIGKILL sequence for one worker.
	StopTimeout time.Duration

	// ShutdownDrainTimeout bounds how long Shutdown waits for background
	// spawn and watch goroutines after every worker was stopped.
	ShutdownDrainTimeout time.Duration

	// BaseDataDir holds one scratch directory per slot.
	BaseDataDir string

	// ProfileDir is the shared profile bootstrapped by Initialize. Empty
	// means BaseDataDir/profile.
	ProfileDir string

	// BackoffInitial and BackoffMax shape the delay before replacing a
	// worker after consecutive warm-up failures.
	BackoffInitial time.Duration
	BackoffMax     time.Duration

	// Spawner starts workers. Required.
	Spawner spawn.Spawner

	// Registerer receives the pool metrics. Nil leaves them unregistered.
	Registerer prometheus.Registerer
}

// Validate checks every ManagerConfig invariant and reports all violations
// at once.
func (c ManagerConfig) Validate() error {
	var errs []error

	if c.PoolSize < 1 {
		errs = append(errs, fmt.Errorf("pool size must be at least 1, got %d", c.PoolSize))
	}
	if c.AcquireTimeout <= 0 {
		errs = append(errs, fmt.Errorf("acquire timeout must be greater than 0, got %s", c.AcquireTimeout))
	}
	if c.WarmTimeout <= 0 {
		errs = append(errs, fmt.Errorf("warm timeout must be greater than 0, got %s", c.WarmTimeout))
	}
	if c.StopTimeout <= 0 {
		errs = append(errs, fmt.Errorf("stop timeout must be greater than 0, got %s", c.StopTimeout))
	}
	if c.ShutdownDrainTimeout <= 0 {
		errs = append(errs, fmt.Errorf("shutdown drain timeout must be greater than 0, got %s", c.ShutdownDrainTimeout))
	}
	if c.BaseDataDir == "" {
		errs = append(errs, errors.New("base data directory must not be empty"))
	}
	if c.BackoffInitial <= 0 {
		errs = append(errs, fmt.Errorf("backoff initial interval must be greater than 0, got %s", c.BackoffInitial))
	}
	if c.BackoffMax < c.BackoffInitial {
		errs = append(errs, fmt.Errorf("backoff max interval %s must not be below initial interval %s",
			c.BackoffMax, c.BackoffInitial))
	}
	if c.Spawner == nil {
		errs = append(errs, errors.New("spawner must not be nil"))
	}

	return errors.Join(errs...)
}
