package prealloc

import (
	"github.com/giantswarm/prealloc/internal/core"
	"github.com/giantswarm/prealloc/internal/registry"
	"github.com/giantswarm/prealloc/internal/surface"
	"github.com/giantswarm/prealloc/internal/warmer"
)

// Stats is a snapshot of the pool, ordered by slot creation time.
type Stats = core.Stats

// SlotInfo describes one slot in Stats.
type SlotInfo = core.SlotInfo

// SlotState is the lifecycle state of a slot.
type SlotState = core.SlotState

// Slot states, in lifecycle order.
const (
	SlotForking      = core.SlotForking
	SlotWarming      = core.SlotWarming
	SlotWarmIdle     = core.SlotWarmIdle
	SlotSpecializing = core.SlotSpecializing
	SlotRetired      = core.SlotRetired
	SlotFailed       = core.SlotFailed
)

// Report is the result of one warm-up pass.
type Report = warmer.Report

// Outcome is the result of warming one subsystem.
type Outcome = registry.Outcome

// Descriptor names a subsystem and the function that warms it.
type Descriptor = registry.Descriptor

// SubsystemWarmError attributes a warm-up failure to a subsystem.
type SubsystemWarmError = registry.SubsystemWarmError

// SurfaceInitError wraps a failure to create the blank surface.
type SurfaceInitError = surface.SurfaceInitError

// Surface is the blank, attach-ready rendering surface of a warm worker.
type Surface = surface.Surface

// SurfaceFactory creates the blank surface for a worker.
type SurfaceFactory = surface.Factory

// WorkerRequest identifies the worker a SubsystemFactory builds for.
type WorkerRequest struct {
	SlotID     string
	DataDir    string
	ProfileDir string
}

// SubsystemFactory returns the subsystems one worker warms, in warm-up
// order. cleanup, if non-nil, runs when the worker stops.
type SubsystemFactory func(req WorkerRequest) (descs []Descriptor, cleanup func() error, err error)
