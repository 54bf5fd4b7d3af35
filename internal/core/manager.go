package core

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/giantswarm/prealloc/internal/fileutil"
	"github.com/giantswarm/prealloc/internal/profile"
	"github.com/giantswarm/prealloc/internal/sentinel"
	"github.com/giantswarm/prealloc/internal/spawn"
)

// managerState represents the lifecycle state of a Manager.
type managerState uint32

const (
	managerCreated      managerState = iota // Zero value; NewManagerWithConfig returns in this state
	managerInitializing                     // Initialize in progress
	managerReady                            // Acquire allowed
	managerShuttingDown                     // Shutdown called
)

// ErrShuttingDown is returned by Acquire when the Manager is shutting down.
const ErrShuttingDown = sentinel.Error("manager is shutting down")

// ErrNotInitialized is returned by Acquire when Initialize has not been called.
const ErrNotInitialized = sentinel.Error("manager not initialized")

// ErrReportMissing is re-exported from spawn so the public API imports only
// from core.
const ErrReportMissing = spawn.ErrReportMissing

// Manager owns one Pool and its lifecycle:
// NewManagerWithConfig → Initialize → Acquire (repeatable) → Shutdown.
// It is safe for concurrent use by multiple goroutines.
//
// state is an atomic managerState read by Acquire with a single load. pool
// is set by Initialize and read lock-free. initMu serializes Initialize.
type Manager struct {
	cfg     ManagerConfig
	metrics *Metrics

	pool   atomic.Pointer[Pool]
	state  atomic.Uint32 // managerState; zero value is managerCreated
	initMu sync.Mutex
}

func (m *Manager) loadState() managerState {
	return managerState(m.state.Load())
}

func (m *Manager) storeState(s managerState) {
	m.state.Store(uint32(s))
}

// NewManagerWithConfig creates a Manager. It performs no I/O; call
// Initialize before Acquire. Metrics are registered here, so a Registerer
// may only back one Manager.
//
// Panics if cfg.Validate() reports any errors.
func NewManagerWithConfig(cfg ManagerConfig) *Manager {
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("prealloc: invalid manager config: %v", err))
	}
	return &Manager{
		cfg:     cfg,
		metrics: NewMetrics(cfg.Registerer),
	}
}

// ProfileDir returns the shared profile directory the workers warm against.
func (m *Manager) ProfileDir() string {
	if m.cfg.ProfileDir != "" {
		return m.cfg.ProfileDir
	}
	return filepath.Join(m.cfg.BaseDataDir, "profile")
}

// Initialize creates the data directory, bootstraps the shared profile and
// spawns the initial workers. It does not wait for them to warm.
// Safe to call multiple times: after success later calls return nil; after
// a failure the next call retries from scratch. Once Shutdown has been called,
// including while Initialize is running, it returns ErrShuttingDown and leaves
// no workers behind.
func (m *Manager) Initialize(ctx context.Context) error {
	m.initMu.Lock()
	defer m.initMu.Unlock()

	if m.loadState() == managerReady {
		return nil
	}
	// Only Shutdown moves the state away from created while initMu is held.
	if !m.state.CompareAndSwap(uint32(managerCreated), uint32(managerInitializing)) {
		return ErrShuttingDown
	}

	// Catches a Manager built as a struct literal.
	if err := m.cfg.Validate(); err != nil {
		m.state.CompareAndSwap(uint32(managerInitializing), uint32(managerCreated))
		return fmt.Errorf("invalid config: %w", err)
	}

	if err := m.doInitialize(ctx); err != nil {
		m.stopPool("rollback")
		if !m.state.CompareAndSwap(uint32(managerInitializing), uint32(managerCreated)) {
			if errors.Is(err, ErrShuttingDown) {
				return ErrShuttingDown
			}
			return fmt.Errorf("initialize: %w: %w", ErrShuttingDown, err)
		}
		return fmt.Errorf("initialize: %w", err)
	}

	// Shutdown may have run while the pool was filling; it must stay final.
	if !m.state.CompareAndSwap(uint32(managerInitializing), uint32(managerReady)) {
		m.stopPool("shutdown during initialize")
		return ErrShuttingDown
	}
	return nil
}

// stopPool shuts down and forgets the pool built by a failed or overtaken
// Initialize.
func (m *Manager) stopPool(reason string) {
	p := m.pool.Swap(nil)
	if p == nil {
		return
	}
	//nolint:contextcheck // stopping must not depend on the caller's possibly canceled context
	if err := p.Shutdown(m.cfg.ShutdownDrainTimeout); err != nil {
		Logger().Warn("failed to stop workers", "reason", reason, "error", err)
	}
}

func (m *Manager) doInitialize(ctx context.Context) error {
	if err := fileutil.EnsureDir(m.cfg.BaseDataDir); err != nil {
		return fmt.Errorf("init base dir: %w", err)
	}

	res, err := profile.Ensure(ctx, profile.Config{Dir: m.ProfileDir(), Logger: Logger()})
	if err != nil {
		return fmt.Errorf("ensure profile: %w", err)
	}

	if m.IsShuttingDown() {
		return ErrShuttingDown
	}
	pool := NewPool(PoolConfig{
		Size:           m.cfg.PoolSize,
		Spawner:        m.cfg.Spawner,
		DataDir:        filepath.Join(m.cfg.BaseDataDir, "slots"),
		ProfileDir:     res.Paths.Dir,
		WarmTimeout:    m.cfg.WarmTimeout,
		StopTimeout:    m.cfg.StopTimeout,
		BackoffInitial: m.cfg.BackoffInitial,
		BackoffMax:     m.cfg.BackoffMax,
		Metrics:        m.metrics,
	})
	m.pool.Store(pool)
	// Shutdown stores its state before loading the pool: one of the two sees
	// the other.
	if m.IsShuttingDown() {
		return ErrShuttingDown
	}

	if err := pool.Fill(ctx); err != nil {
		return fmt.Errorf("fill pool: %w", err)
	}
	Logger().Info("pool initialized", "size", m.cfg.PoolSize, "profile", res.Paths.Dir)
	return nil
}

// Acquire hands out a warm worker, waiting at most AcquireTimeout (or until
// ctx is done, whichever is first).
//
// Returns ErrNotInitialized before Initialize, ErrShuttingDown during
// shutdown and an error wrapping ErrAcquireTimeout when the wait expires.
func (m *Manager) Acquire(ctx context.Context) (*Slot, error) {
	switch m.loadState() {
	case managerShuttingDown:
		return nil, ErrShuttingDown
	case managerReady:
	case managerCreated, managerInitializing:
		return nil, ErrNotInitialized
	}

	pool := m.pool.Load()
	if pool == nil {
		return nil, ErrNotInitialized
	}

	acquireCtx, cancel := context.WithTimeout(ctx, m.cfg.AcquireTimeout)
	defer cancel()

	slot, err := pool.Acquire(acquireCtx)
	if err != nil {
		if m.loadState() == managerShuttingDown {
			return nil, ErrShuttingDown
		}
		return nil, fmt.Errorf("acquire process: %w", err)
	}

	// Shutdown may have started while Acquire was waiting. Shutdown retires
	// every slot it sees, so a slot taken after its snapshot is ours to stop.
	if m.loadState() == managerShuttingDown {
		if retireErr := slot.Retire(); retireErr != nil && !errors.Is(retireErr, ErrProcessRetired) {
			slot.log.Warn("failed to stop worker during shutdown", "error", retireErr)
		}
		return nil, ErrShuttingDown
	}

	return slot, nil
}

// Stats returns a snapshot of the pool. The zero Stats is returned before
// Initialize.
func (m *Manager) Stats() Stats {
	pool := m.pool.Load()
	if pool == nil {
		return Stats{Target: m.cfg.PoolSize}
	}
	return pool.Stats()
}

// IsShuttingDown reports whether Shutdown has been called.
func (m *Manager) IsShuttingDown() bool {
	return m.loadState() == managerShuttingDown
}

// Shutdown closes the pool, unblocks waiting Acquire calls and stops every
// worker concurrently. Safe to call without Initialize and more than once;
// only the first call has work to do. Stop errors are joined.
func (m *Manager) Shutdown() error {
	m.storeState(managerShuttingDown)

	pool := m.pool.Load()
	if pool == nil {
		return nil
	}
	return pool.Shutdown(m.cfg.ShutdownDrainTimeout)
}
