package prealloc

import "time"

// Default configuration values for NewManager.
// These constants are exported so callers can reference the defaults
// when building custom configurations relative to them (e.g.,
// 2 * DefaultWarmTimeout).
const (
	// DefaultPoolSize is the number of warm or warming workers the pool
	// keeps ready.
	DefaultPoolSize = 2

	// DefaultAcquireTimeout bounds how long Acquire waits for a warm worker.
	DefaultAcquireTimeout = 30 * time.Second

	// DefaultWarmTimeout is how long a worker may take to publish its
	// warm-up report before the pool kills it and spawns a replacement.
	DefaultWarmTimeout = time.Minute

	// DefaultStopTimeout is the grace period between SIGTERM and SIGKILL
	// when stopping a worker.
	DefaultStopTimeout = 10 * time.Second

	// DefaultShutdownDrainTimeout is the maximum time Shutdown waits for
	// background spawns to finish after every worker was stopped.
	DefaultShutdownDrainTimeout = 30 * time.Second

	// DefaultBackoffInitial is the delay before the first replacement
	// spawn after a failed warm-up. Consecutive failures grow it up to
	// DefaultBackoffMax; a successful warm-up resets it.
	DefaultBackoffInitial = 500 * time.Millisecond

	// DefaultBackoffMax caps the replacement spawn delay.
	DefaultBackoffMax = 30 * time.Second

	// DefaultBaseDataDirName is the directory name under the system temp
	// directory where worker data and the shared profile are stored. The
	// full path is computed as filepath.Join(os.TempDir(), DefaultBaseDataDirName).
	DefaultBaseDataDirName = "prealloc"

	// DefaultWorkerBinary is the binary name used to locate the worker in PATH.
	DefaultWorkerBinary = "prealloc"

	// DefaultWorkerCommand is the first argument passed to the worker binary.
	DefaultWorkerCommand = "worker"
)
