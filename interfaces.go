package prealloc

import (
	"context"
)

// Manager keeps a pool of pre-spawned, pre-warmed worker processes.
//
// Callers must follow this lifecycle ordering:
//
//	NewManager → Initialize → Acquire (repeatable) → Shutdown
//
// Initialize must be called before Acquire. Shutdown is safe to call at any
// point, including before Initialize.
type Manager interface {
	// Initialize bootstraps the shared profile and spawns the initial
	// workers. It does not wait for them to finish warming.
	// Safe to call multiple times: after a successful initialization,
	// subsequent calls return nil immediately. If initialization fails,
	// subsequent calls retry instead of returning a cached error permanently.
	Initialize(ctx context.Context) error

	// Acquire hands out a worker that has warmed every registered subsystem
	// and created its blank surface. Each worker is handed out at most once;
	// the pool spawns a replacement in the background.
	//
	// Acquire blocks until a worker is warm, the configured acquire timeout
	// passes or ctx is done. On timeout the error wraps ErrAcquireTimeout.
	//
	// Returns ErrNotInitialized if Initialize has not been called.
	// Returns ErrShuttingDown if the manager is shutting down.
	Acquire(ctx context.Context) (Process, error)

	// Stats returns a snapshot of every slot the pool currently tracks.
	Stats() Stats

	// Shutdown stops every worker and unblocks waiting Acquire calls.
	// Safe to call even if Initialize was never called.
	// Returns an error if any worker fails to stop.
	Shutdown() error
}

// Process is a worker handed out by Acquire. The caller owns it from then on
// and attaches its task to the blank surface.
type Process interface {
	// ID returns the slot identifier, unique within a Manager.
	ID() string

	// PID returns the operating-system process id of the worker. Workers
	// started in-process report the host's PID.
	PID() int

	// Report returns the warm-up report the worker published.
	Report() Report

	// Warmed returns the names of the subsystems the worker warmed, sorted.
	Warmed() []string

	// DataDir returns the worker's scratch directory.
	DataDir() string

	// Retire stops the worker and removes its scratch directory.
	// A second call returns ErrProcessRetired.
	Retire() error
}
