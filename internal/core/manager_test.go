package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/giantswarm/prealloc/internal/profile"
	"github.com/giantswarm/prealloc/internal/warmer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func testManagerConfig(t *testing.T, sp *fakeSpawner) ManagerConfig {
	t.Helper()
	cfg := validManagerConfig()
	cfg.BaseDataDir = t.TempDir()
	cfg.AcquireTimeout = 5 * time.Second
	cfg.StopTimeout = time.Second
	cfg.ShutdownDrainTimeout = 5 * time.Second
	cfg.BackoffInitial = time.Millisecond
	cfg.BackoffMax = 10 * time.Millisecond
	cfg.Spawner = sp
	return cfg
}

func TestNewManagerWithConfigPanicsOnInvalidConfig(t *testing.T) {
	t.Parallel()

	requirePanicContains(t, func() {
		NewManagerWithConfig(ManagerConfig{})
	}, "prealloc: invalid manager config: ")
}

func TestManagerAcquireBeforeInitialize(t *testing.T) {
	t.Parallel()

	m := NewManagerWithConfig(testManagerConfig(t, &fakeSpawner{behave: alwaysReady}))
	if _, err := m.Acquire(context.Background()); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Acquire error = %v, want ErrNotInitialized", err)
	}
	if st := m.Stats(); st.Target != 2 || len(st.Slots) != 0 {
		t.Errorf("Stats before Initialize = %+v", st)
	}
}

func TestManagerLifecycle(t *testing.T) {
	t.Parallel()

	sp := &fakeSpawner{behave: alwaysReady}
	m := NewManagerWithConfig(testManagerConfig(t, sp))

	ctx := context.Background()
	if err := m.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := m.Initialize(ctx); err != nil {
		t.Fatalf("second Initialize: %v", err)
	}

	if _, err := os.Stat(filepath.Join(m.ProfileDir(), profile.DatabaseFile)); err != nil {
		t.Errorf("profile not bootstrapped: %v", err)
	}

	s, err := m.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if got := s.Warmed(); len(got) != len(subsystemNames) {
		t.Errorf("Warmed() = %v", got)
	}

	if err := m.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := m.Shutdown(); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
	if !m.IsShuttingDown() {
		t.Error("IsShuttingDown = false after Shutdown")
	}
	if _, err := m.Acquire(ctx); !errors.Is(err, ErrShuttingDown) {
		t.Errorf("Acquire after Shutdown error = %v, want ErrShuttingDown", err)
	}
	if err := m.Initialize(ctx); !errors.Is(err, ErrShuttingDown) {
		t.Errorf("Initialize after Shutdown error = %v, want ErrShuttingDown", err)
	}
	if err := s.Retire(); !errors.Is(err, ErrProcessRetired) {
		t.Errorf("Retire after Shutdown error = %v, want ErrProcessRetired", err)
	}
}

func TestManagerShutdownWithoutInitialize(t *testing.T) {
	t.Parallel()

	m := NewManagerWithConfig(testManagerConfig(t, &fakeSpawner{behave: alwaysReady}))
	if err := m.Shutdown(); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
	if err := m.Initialize(context.Background()); !errors.Is(err, ErrShuttingDown) {
		t.Errorf("Initialize after Shutdown error = %v, want ErrShuttingDown", err)
	}
}

func TestManagerShutdownDuringInitializeIsFinal(t *testing.T) {
	t.Parallel()

	inner := &fakeSpawner{behave: alwaysReady}
	sp := newGatedSpawner(inner)
	cfg := testManagerConfig(t, inner)
	cfg.Spawner = sp
	m := NewManagerWithConfig(cfg)

	initErr := make(chan error, 1)
	go func() { initErr <- m.Initialize(context.Background()) }()

	select {
	case <-sp.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("Initialize never reached Spawn")
	}
	if err := m.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	close(sp.gate)

	select {
	case err := <-initErr:
		if !errors.Is(err, ErrShuttingDown) {
			t.Errorf("overtaken Initialize error = %v, want ErrShuttingDown", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Initialize did not return after Shutdown")
	}

	if !m.IsShuttingDown() {
		t.Error("IsShuttingDown = false after Shutdown")
	}
	if err := m.Initialize(context.Background()); !errors.Is(err, ErrShuttingDown) {
		t.Errorf("second Initialize error = %v, want ErrShuttingDown", err)
	}
	if _, err := m.Acquire(context.Background()); !errors.Is(err, ErrShuttingDown) {
		t.Errorf("Acquire error = %v, want ErrShuttingDown", err)
	}
	if got := len(m.Stats().Slots); got != 0 {
		t.Errorf("Stats has %d slots after Shutdown, want 0", got)
	}
	for _, h := range inner.spawned() {
		if !h.stopped() {
			t.Errorf("worker %d still running after Shutdown", h.pid)
		}
	}
}

func TestManagerInitializeRollsBackOnSpawnFailure(t *testing.T) {
	t.Parallel()

	errSpawn := errors.New("no such binary")
	fail := true
	sp := &fakeSpawner{behave: func(n int, slotID string) (*warmer.Report, error) {
		if fail {
			return nil, errSpawn
		}
		return alwaysReady(n, slotID)
	}}
	m := NewManagerWithConfig(testManagerConfig(t, sp))

	if err := m.Initialize(context.Background()); !errors.Is(err, errSpawn) {
		t.Fatalf("Initialize error = %v, want %v", err, errSpawn)
	}
	if _, err := m.Acquire(context.Background()); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Acquire after failed Initialize error = %v, want ErrNotInitialized", err)
	}

	// Initialize is sequential, so flipping the behavior here is race free.
	fail = false
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("retry Initialize: %v", err)
	}
	t.Cleanup(func() { _ = m.Shutdown() })
	if _, err := m.Acquire(context.Background()); err != nil {
		t.Errorf("Acquire after retry: %v", err)
	}
}

func TestManagerAcquireTimeout(t *testing.T) {
	t.Parallel()

	cfg := testManagerConfig(t, &fakeSpawner{behave: neverReports})
	cfg.AcquireTimeout = 30 * time.Millisecond
	m := NewManagerWithConfig(cfg)
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = m.Shutdown() })

	if _, err := m.Acquire(context.Background()); !errors.Is(err, ErrAcquireTimeout) {
		t.Errorf("Acquire error = %v, want ErrAcquireTimeout", err)
	}
}

func TestManagerShutdownUnblocksAcquire(t *testing.T) {
	t.Parallel()

	m := NewManagerWithConfig(testManagerConfig(t, &fakeSpawner{behave: neverReports}))
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := m.Acquire(context.Background())
		errCh <- err
	}()
	time.Sleep(10 * time.Millisecond)

	if err := m.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	select {
	case err := <-errCh:
		if !errors.Is(err, ErrShuttingDown) {
			t.Errorf("blocked Acquire error = %v, want ErrShuttingDown", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("blocked Acquire did not return after Shutdown")
	}
}

func TestManagerRegistersMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewPedanticRegistry()
	cfg := testManagerConfig(t, &fakeSpawner{behave: alwaysReady})
	cfg.Registerer = reg
	m := NewManagerWithConfig(cfg)
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = m.Shutdown() })

	waitFor(t, "pool warm", func() bool { return m.Stats().Count(SlotWarmIdle) == 2 })

	if got := testutil.ToFloat64(m.metrics.warmups.WithLabelValues(outcomeReady)); got != 2 {
		t.Errorf("warmups{ready} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.metrics.slots.WithLabelValues(SlotWarmIdle.String())); got != 2 {
		t.Errorf("slots{warm-idle} = %v, want 2", got)
	}
	n, err := testutil.GatherAndCount(reg, "prealloc_warmups_total", "prealloc_slots")
	if err != nil {
		t.Fatalf("GatherAndCount: %v", err)
	}
	if n == 0 {
		t.Error("no pool metrics gathered")
	}
}
