package prealloc

import (
	"context"

	"github.com/giantswarm/prealloc/internal/core"
)

// Compile-time interface satisfaction checks.
var (
	_ Manager = (*managerWrapper)(nil)
	_ Process = (*processWrapper)(nil)
)

// managerWrapper wraps core.Manager to implement the Manager interface.
type managerWrapper struct {
	core *core.Manager
}

// processWrapper wraps core.Slot to implement the Process interface.
type processWrapper struct {
	slot *core.Slot
}

// NewManager creates a Manager with the given options. It performs no I/O:
// call Initialize to bootstrap the profile and spawn workers.
//
// Each call returns an independent Manager. Managers sharing a base data
// directory must use distinct directories for their slots, so give each one
// its own WithBaseDataDir; they may share a WithProfileDir.
//
// By default workers are started from the "prealloc" binary in PATH with the
// "worker" command. Use WithWorkerBinary to point at another binary, or
// WithInProcessWorkers to warm slots inside the calling process.
func NewManager(opts ...ManagerOption) Manager {
	cfg := defaultManagerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &managerWrapper{core: core.NewManagerWithConfig(cfg.toCoreConfig())}
}

// Initialize implements Manager.
func (m *managerWrapper) Initialize(ctx context.Context) error {
	return m.core.Initialize(ctx)
}

// Acquire implements Manager.
func (m *managerWrapper) Acquire(ctx context.Context) (Process, error) {
	slot, err := m.core.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &processWrapper{slot: slot}, nil
}

// Stats implements Manager.
func (m *managerWrapper) Stats() Stats {
	return m.core.Stats()
}

// Shutdown implements Manager.
func (m *managerWrapper) Shutdown() error {
	return m.core.Shutdown()
}

// ID implements Process.
func (p *processWrapper) ID() string {
	return p.slot.ID()
}

// PID implements Process.
func (p *processWrapper) PID() int {
	return p.slot.PID()
}

// Report implements Process. A handed-out slot always carries its report.
func (p *processWrapper) Report() Report {
	r, _ := p.slot.Report()
	return r
}

// Warmed implements Process.
func (p *processWrapper) Warmed() []string {
	return p.slot.Warmed()
}

// DataDir implements Process.
func (p *processWrapper) DataDir() string {
	return p.slot.DataDir()
}

// Retire implements Process.
func (p *processWrapper) Retire() error {
	return p.slot.Retire()
}
