package prealloc

import (
	"fmt"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// requirePositive panics if v <= 0 with a descriptive message.
func requirePositive[T int | time.Duration](name string, v T) {
	if v <= 0 {
		panic(fmt.Sprintf("prealloc: %s must be greater than 0, got %v", name, v))
	}
}

// requireNonEmpty panics if s is empty with a descriptive message.
func requireNonEmpty(name, s string) {
	if s == "" {
		panic(fmt.Sprintf("prealloc: %s must not be empty", name))
	}
}

// requireNonNil panics if isNil with a descriptive message.
func requireNonNil(name string, isNil bool) {
	if isNil {
		panic(fmt.Sprintf("prealloc: %s must not be nil", name))
	}
}

// ManagerOption configures a Manager during construction via NewManager.
// Each With* function returns a ManagerOption that sets a specific field.
//
// The With* functions panic on invalid input (zero sizes, empty paths,
// non-positive durations, nil factories). Option values are typically
// constants or package-level variables, so an invalid value is a programmer
// error, the same way [regexp.MustCompile] treats a bad pattern.
type ManagerOption func(*managerConfig)

// WithPoolSize sets the number of warm or warming workers the pool keeps.
// Every Acquire takes one of them and triggers a replacement spawn.
//
// Default: 2.
//
// Panics if size <= 0.
func WithPoolSize(size int) ManagerOption {
	requirePositive("pool size", size)
	return func(c *managerConfig) {
		c.PoolSize = size
	}
}

// WithAcquireTimeout bounds how long Acquire waits for a warm worker.
//
// Default: 30 seconds.
//
// Panics if d <= 0.
func WithAcquireTimeout(d time.Duration) ManagerOption {
	requirePositive("acquire timeout", d)
	return func(c *managerConfig) {
		c.AcquireTimeout = d
	}
}

// WithWarmTimeout sets how long a worker may take to warm every subsystem
// and create its surface. A worker that misses the deadline is killed and
// counted as a failed warm-up.
//
// Default: 1 minute.
//
// Panics if d <= 0.
func WithWarmTimeout(d time.Duration) ManagerOption {
	requirePositive("warm timeout", d)
	return func(c *managerConfig) {
		c.WarmTimeout = d
	}
}

// WithStopTimeout sets the grace period between SIGTERM and SIGKILL when a
// worker is stopped.
//
// Default: 10 seconds.
//
// Panics if d <= 0.
func WithStopTimeout(d time.Duration) ManagerOption {
	requirePositive("stop timeout", d)
	return func(c *managerConfig) {
		c.StopTimeout = d
	}
}

// WithShutdownDrainTimeout sets how long Shutdown waits for background
// spawns after every worker was stopped.
//
// Default: 30 seconds.
//
// Panics if d <= 0.
func WithShutdownDrainTimeout(d time.Duration) ManagerOption {
	requirePositive("shutdown drain timeout", d)
	return func(c *managerConfig) {
		c.ShutdownDrainTimeout = d
	}
}

// WithBaseDataDir sets the directory holding per-worker scratch directories
// and, unless WithProfileDir is used, the shared profile.
// If not set, defaults to filepath.Join(os.TempDir(), "prealloc").
// Panics if dir is empty.
func WithBaseDataDir(dir string) ManagerOption {
	requireNonEmpty("base data directory", dir)
	return func(c *managerConfig) {
		c.BaseDataDir = dir
	}
}

// WithProfileDir sets the shared profile directory every worker warms
// against. Initialize creates it on first use; several managers may share
// one profile.
// Panics if dir is empty.
func WithProfileDir(dir string) ManagerOption {
	requireNonEmpty("profile directory", dir)
	return func(c *managerConfig) {
		c.ProfileDir = dir
	}
}

// WithBackoff shapes the delay before spawning a replacement after
// consecutive failed warm-ups. The delay starts at initial and grows
// exponentially up to maxDelay.
//
// Default: 500 milliseconds, capped at 30 seconds.
//
// Panics if either value is <= 0 or maxDelay < initial.
func WithBackoff(initial, maxDelay time.Duration) ManagerOption {
	requirePositive("backoff initial interval", initial)
	requirePositive("backoff max interval", maxDelay)
	if maxDelay < initial {
		panic(fmt.Sprintf("prealloc: backoff max interval %v must not be below initial interval %v", maxDelay, initial))
	}
	return func(c *managerConfig) {
		c.BackoffInitial = initial
		c.BackoffMax = maxDelay
	}
}

// WithWorkerBinary sets the worker binary and the arguments placed before
// the --slot-id, --data-dir and --profile-dir flags the pool appends. The
// binary must call ServeWorker with those values.
//
// Default: "prealloc worker", looked up in PATH.
//
// Panics if binPath is empty.
func WithWorkerBinary(binPath string, args ...string) ManagerOption {
	requireNonEmpty("worker binary path", binPath)
	args = slices.Clone(args)
	return func(c *managerConfig) {
		c.workerBinary = binPath
		c.workerArgs = args
		c.inProcess = nil
	}
}

// WithWorkerEnv appends environment entries ("KEY=value") to every worker.
func WithWorkerEnv(env ...string) ManagerOption {
	env = slices.Clone(env)
	return func(c *managerConfig) {
		c.workerEnv = append(c.workerEnv, env...)
	}
}

// WithInProcessWorkers warms each slot on a goroutine in the calling process
// instead of a separate worker binary. f supplies the subsystems each slot
// warms; BuiltinSubsystems warms the shared profile.
//
// Panics if f is nil.
func WithInProcessWorkers(f SubsystemFactory) ManagerOption {
	requireNonNil("subsystem factory", f == nil)
	return func(c *managerConfig) {
		c.inProcess = f
	}
}

// WithSurfaceFactory sets how in-process workers create their blank
// surface. It has no effect on workers started from a binary.
//
// Panics if f is nil.
func WithSurfaceFactory(f SurfaceFactory) ManagerOption {
	requireNonNil("surface factory", f == nil)
	return func(c *managerConfig) {
		c.surface = f
	}
}

// WithMetricsRegisterer registers the pool metrics with reg. A Registerer
// can back only one Manager.
//
// Panics if reg is nil.
func WithMetricsRegisterer(reg prometheus.Registerer) ManagerOption {
	requireNonNil("metrics registerer", reg == nil)
	return func(c *managerConfig) {
		c.Registerer = reg
	}
}
