package prealloc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/giantswarm/prealloc/internal/core"
	"github.com/giantswarm/prealloc/internal/spawn"
	"github.com/giantswarm/prealloc/internal/surface"
	"github.com/giantswarm/prealloc/internal/warmer"
)

// WorkerConfig configures ServeWorker. SlotID, DataDir and ProfileDir come
// from the --slot-id, --data-dir and --profile-dir flags the pool passes to
// the worker binary.
type WorkerConfig struct {
	SlotID     string
	DataDir    string
	ProfileDir string

	// Subsystems supplies the subsystems to warm. Nil uses BuiltinSubsystems.
	Subsystems SubsystemFactory
	// Surface creates the blank surface. Nil creates an about:blank surface.
	Surface SurfaceFactory
	// Logger defaults to the package logger with a "slot" attribute.
	Logger *slog.Logger
}

func (c WorkerConfig) validate() error {
	var errs []error
	if c.SlotID == "" {
		errs = append(errs, errors.New("slot id must not be empty"))
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("data directory must not be empty"))
	}
	return errors.Join(errs...)
}

// ServeWorker is the body of a worker process. It warms every subsystem,
// creates the blank surface and publishes the warm-up report into DataDir,
// where the pool picks it up. After a successful warm-up it blocks until ctx
// is done (the pool sends SIGTERM when it stops the worker), then releases
// the subsystems.
//
// ServeWorker returns an error when the warm-up failed or the report could
// not be written; the report itself already carries the failure details.
func ServeWorker(ctx context.Context, cfg WorkerConfig) error {
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("invalid worker config: %w", err)
	}
	log := cfg.Logger
	if log == nil {
		log = core.Logger().With("slot", cfg.SlotID)
	}
	factory := cfg.Subsystems
	if factory == nil {
		factory = BuiltinSubsystems
	}
	surfaceFactory := cfg.Surface
	if surfaceFactory == nil {
		surfaceFactory = surface.DefaultFactory
	}

	reg, cleanup, err := buildRegistry(factory, WorkerRequest{
		SlotID:     cfg.SlotID,
		DataDir:    cfg.DataDir,
		ProfileDir: cfg.ProfileDir,
	})
	if err != nil {
		// Without a report the pool only sees the exit.
		return err
	}
	release := func() error {
		if cleanup == nil {
			return nil
		}
		return cleanup()
	}

	reporter := &fileReporter{dir: cfg.DataDir}
	report, err := warmer.New(warmer.Config{
		SlotID:   cfg.SlotID,
		Registry: reg,
		Surface:  surface.NewInitializer(surfaceFactory),
		Reporter: reporter,
		Logger:   log,
	}).Run()
	if err != nil {
		return errors.Join(err, release())
	}
	if err := reporter.error(); err != nil {
		return errors.Join(fmt.Errorf("publish report: %w", err), release())
	}
	if !report.OK() {
		return errors.Join(report.Err(), release())
	}

	log.Info("worker warm, waiting for task", "duration", report.Duration)
	<-ctx.Done()
	log.Info("worker stopping")
	return release()
}

// fileReporter publishes the warmer's report as the slot's report file.
type fileReporter struct {
	dir string

	mu  sync.Mutex
	err error
}

func (f *fileReporter) ReportReady(_ string, r warmer.Report)  { f.write(r) }
func (f *fileReporter) ReportFailed(_ string, r warmer.Report) { f.write(r) }

func (f *fileReporter) write(r warmer.Report) {
	err := spawn.WriteReport(f.dir, r)
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fileReporter) error() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}
