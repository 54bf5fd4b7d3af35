package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/giantswarm/prealloc/internal/registry"
	"github.com/giantswarm/prealloc/internal/spawn"
	"github.com/giantswarm/prealloc/internal/warmer"
)

var subsystemNames = []string{"storage", "settings", "cookies", "preferences"}

func readyReport(slotID string) warmer.Report {
	r := warmer.Report{SlotID: slotID, State: warmer.StateReady, Duration: 20 * time.Millisecond}
	for _, name := range subsystemNames {
		r.Outcomes = append(r.Outcomes, registry.Outcome{Name: name, Duration: 5 * time.Millisecond})
	}
	return r
}

func failedReport(slotID, failing string) warmer.Report {
	r := warmer.Report{SlotID: slotID, State: warmer.StateFailed}
	for _, name := range subsystemNames {
		o := registry.Outcome{Name: name}
		if name == failing {
			o.Err = &registry.SubsystemWarmError{Name: name, Cause: errors.New("unavailable")}
		}
		r.Outcomes = append(r.Outcomes, o)
	}
	return r
}

// fakeHandle is a worker whose report and exit are driven by the test.
type fakeHandle struct {
	pid      int
	slotID   string
	reports  chan warmer.Report
	exited   chan struct{}
	exitOnce sync.Once
	stops    atomic.Int32
}

func newFakeHandle(pid int, slotID string) *fakeHandle {
	return &fakeHandle{
		pid:     pid,
		slotID:  slotID,
		reports: make(chan warmer.Report, 1),
		exited:  make(chan struct{}),
	}
}

func (h *fakeHandle) PID() int                { return h.pid }
func (h *fakeHandle) Exited() <-chan struct{} { return h.exited }

func (h *fakeHandle) Report(ctx context.Context) (warmer.Report, error) {
	select {
	case r := <-h.reports:
		return r, nil
	case <-h.exited:
		return warmer.Report{}, spawn.ErrReportMissing
	case <-ctx.Done():
		return warmer.Report{}, ctx.Err()
	}
}

func (h *fakeHandle) Stop(time.Duration) error {
	h.stops.Add(1)
	h.crash()
	return nil
}

// crash simulates the worker process dying.
func (h *fakeHandle) crash() {
	h.exitOnce.Do(func() { close(h.exited) })
}

func (h *fakeHandle) stopped() bool { return h.stops.Load() > 0 }

// behavior decides, for the n-th spawn (starting at 0), which report the
// worker delivers (nil for none) or whether the spawn itself fails.
type behavior func(n int, slotID string) (*warmer.Report, error)

func alwaysReady(_ int, slotID string) (*warmer.Report, error) {
	r := readyReport(slotID)
	return &r, nil
}

func neverReports(int, string) (*warmer.Report, error) { return nil, nil }

type fakeSpawner struct {
	behave behavior

	mu      sync.Mutex
	handles []*fakeHandle
}

func (s *fakeSpawner) Spawn(ctx context.Context, req spawn.Request) (spawn.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	n := len(s.handles)
	h := newFakeHandle(1000+n, req.SlotID)
	report, err := s.behave(n, req.SlotID)
	if err != nil {
		// Count failed spawns so behaviors can key off the attempt number.
		s.handles = append(s.handles, nil)
		s.mu.Unlock()
		return nil, err
	}
	s.handles = append(s.handles, h)
	s.mu.Unlock()

	if report != nil {
		h.reports <- *report
	}
	return h, nil
}

// gatedSpawner blocks every Spawn until gate is closed. entered is closed
// when the first Spawn arrives.
type gatedSpawner struct {
	inner   *fakeSpawner
	entered chan struct{}
	gate    chan struct{}
	once    sync.Once
}

func newGatedSpawner(inner *fakeSpawner) *gatedSpawner {
	return &gatedSpawner{inner: inner, entered: make(chan struct{}), gate: make(chan struct{})}
}

func (s *gatedSpawner) Spawn(ctx context.Context, req spawn.Request) (spawn.Handle, error) {
	s.once.Do(func() { close(s.entered) })
	<-s.gate
	return s.inner.Spawn(ctx, req)
}

func (s *fakeSpawner) spawned() []*fakeHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*fakeHandle, 0, len(s.handles))
	for _, h := range s.handles {
		if h != nil {
			out = append(out, h)
		}
	}
	return out
}

func (s *fakeSpawner) attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

func (s *fakeSpawner) handleFor(slotID string) *fakeHandle {
	for _, h := range s.spawned() {
		if h.slotID == slotID {
			return h
		}
	}
	return nil
}

func testPoolConfig(t *testing.T, size int, sp spawn.Spawner) PoolConfig {
	t.Helper()
	return PoolConfig{
		Size:           size,
		Spawner:        sp,
		DataDir:        t.TempDir(),
		WarmTimeout:    5 * time.Second,
		StopTimeout:    time.Second,
		BackoffInitial: time.Millisecond,
		BackoffMax:     10 * time.Millisecond,
	}
}

// newTestPool creates and fills a pool; it is shut down on cleanup.
func newTestPool(t *testing.T, cfg PoolConfig) *Pool {
	t.Helper()
	p := NewPool(cfg)
	t.Cleanup(func() { _ = p.Shutdown(5 * time.Second) })
	if err := p.Fill(context.Background()); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	return p
}

// waitFor polls cond until it holds or 5s pass.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// requirePanicContains calls fn and fails unless it panics with a message
// containing want.
func requirePanicContains(t *testing.T, fn func(), want string) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		if r == nil {
			t.Fatalf("expected panic containing %q, got none", want)
		}
		if msg := fmt.Sprint(r); !strings.Contains(msg, want) {
			t.Fatalf("panic %q does not contain %q", msg, want)
		}
	}()
	fn()
}
