package prealloc

import (
	"github.com/giantswarm/prealloc/internal/core"
	"github.com/giantswarm/prealloc/internal/registry"
	"github.com/giantswarm/prealloc/internal/surface"
	"github.com/giantswarm/prealloc/internal/warmer"
)

// Sentinel errors for error inspection with errors.Is.
// These are immutable constants safe for use in wrapped error chain comparison.
const (
	// ErrShuttingDown is returned by Acquire when the manager is shutting down.
	ErrShuttingDown = core.ErrShuttingDown

	// ErrNotInitialized is returned by Acquire when Initialize has not been called.
	ErrNotInitialized = core.ErrNotInitialized

	// ErrPoolClosed is returned when Acquire waits on a pool that is closed
	// during shutdown.
	ErrPoolClosed = core.ErrPoolClosed

	// ErrAcquireTimeout is wrapped by Acquire when no warm worker became
	// available before the deadline. The context error is wrapped as well.
	ErrAcquireTimeout = core.ErrAcquireTimeout

	// ErrProcessRetired is returned by Process.Retire on a second call.
	ErrProcessRetired = core.ErrProcessRetired

	// ErrNotHandedOut is returned when retiring a worker that was never
	// handed out.
	ErrNotHandedOut = core.ErrNotHandedOut

	// ErrReportMissing marks a worker that exited without publishing its
	// warm-up report.
	ErrReportMissing = core.ErrReportMissing

	// ErrRegistryClosed is returned when registering a subsystem after
	// warm-up started.
	ErrRegistryClosed = registry.ErrRegistryClosed

	// ErrDuplicateSubsystem is returned when two subsystems share a name.
	ErrDuplicateSubsystem = registry.ErrDuplicateSubsystem

	// ErrAlreadyInitialized is returned when a worker creates its blank
	// surface twice.
	ErrAlreadyInitialized = surface.ErrAlreadyInitialized

	// ErrAlreadyRun is returned when a worker runs its warm-up twice.
	ErrAlreadyRun = warmer.ErrAlreadyRun
)
