package spawn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/giantswarm/prealloc/internal/registry"
	"github.com/giantswarm/prealloc/internal/surface"
	"github.com/giantswarm/prealloc/internal/warmer"
	"k8s.io/utils/clock"
)

// RegistryFactory builds the subsystem registry for one spawned worker. The
// returned cleanup, if non-nil, runs when the handle is stopped.
type RegistryFactory func(req Request) (reg *registry.Registry, cleanup func() error, err error)

// InProcessSpawner runs each warm-up pass on its own goroutine inside the
// calling process. Every handle reports the host's PID.
type InProcessSpawner struct {
	NewRegistry RegistryFactory
	// Surface creates the blank surface. Nil uses surface.DefaultFactory.
	Surface surface.Factory
	// Clock is passed to each warmer. Nil uses the wall clock.
	Clock clock.PassiveClock
}

var _ Spawner = (*InProcessSpawner)(nil)

// Spawn builds a registry for req and starts its warmer.
func (s *InProcessSpawner) Spawn(ctx context.Context, req Request) (Handle, error) {
	if s.NewRegistry == nil {
		return nil, errors.New("in-process spawner: registry factory must not be nil")
	}
	if err := req.validate(); err != nil {
		return nil, fmt.Errorf("in-process spawner: invalid request: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reg, cleanup, err := s.NewRegistry(req)
	if err != nil {
		return nil, fmt.Errorf("build registry for slot %s: %w", req.SlotID, err)
	}
	factory := s.Surface
	if factory == nil {
		factory = surface.DefaultFactory
	}

	h := &inProcessHandle{
		reports: make(chan warmer.Report, 1),
		exited:  make(chan struct{}),
		ran:     make(chan struct{}),
		cleanup: cleanup,
		log:     req.logger(),
	}
	w := warmer.New(warmer.Config{
		SlotID:   req.SlotID,
		Registry: reg,
		Surface:  surface.NewInitializer(factory),
		Reporter: channelReporter(h.reports),
		Clock:    s.Clock,
		Logger:   req.logger(),
	})
	go func() {
		defer close(h.ran)
		// The report reaches the pool through the channel; the returned copy
		// is redundant and Run can only fail on a second call.
		_, _ = w.Run()
	}()
	return h, nil
}

// channelReporter forwards the warmer's single report to a buffered channel.
type channelReporter chan<- warmer.Report

func (c channelReporter) ReportReady(_ string, r warmer.Report)  { c <- r }
func (c channelReporter) ReportFailed(_ string, r warmer.Report) { c <- r }

type inProcessHandle struct {
	reports chan warmer.Report
	exited  chan struct{}
	ran     chan struct{} // closed when the warm-up pass returns
	cleanup func() error
	log     *slog.Logger
	once    sync.Once
}

func (h *inProcessHandle) PID() int                { return os.Getpid() }
func (h *inProcessHandle) Exited() <-chan struct{} { return h.exited }

func (h *inProcessHandle) Report(ctx context.Context) (warmer.Report, error) {
	select {
	case r := <-h.reports:
		return r, nil
	case <-h.exited:
		return warmer.Report{}, ErrReportMissing
	case <-ctx.Done():
		return warmer.Report{}, ctx.Err()
	}
}

// Stop marks the worker as gone. A warm-up pass still running is not
// interrupted; its report is dropped. Cleanup never runs under a running
// pass: Stop waits up to timeout for it, then leaves cleanup to the pass.
func (h *inProcessHandle) Stop(timeout time.Duration) error {
	var err error
	h.once.Do(func() {
		close(h.exited)
		if h.cleanup == nil {
			return
		}
		t := time.NewTimer(timeout)
		defer t.Stop()
		select {
		case <-h.ran:
			err = h.cleanup()
		case <-t.C:
			h.log.Warn("warm-up still running after stop; deferring cleanup", "timeout", timeout)
			go func() {
				<-h.ran
				if cerr := h.cleanup(); cerr != nil {
					h.log.Warn("deferred cleanup failed", "error", cerr)
				}
			}()
		}
	})
	return err
}
