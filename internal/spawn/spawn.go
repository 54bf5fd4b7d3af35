package spawn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/giantswarm/prealloc/internal/fileutil"
	"github.com/giantswarm/prealloc/internal/sentinel"
	"github.com/giantswarm/prealloc/internal/warmer"
)

// ReportFile is the name of the warm-up report a worker writes into its data
// directory.
const ReportFile = "warmup-report.json"

// ErrReportMissing is returned when a worker exits without publishing a
// warm-up report.
const ErrReportMissing = sentinel.Error("worker exited without a warm-up report")

// Request describes one worker to spawn.
type Request struct {
	SlotID     string
	DataDir    string // per-slot scratch directory, created by the caller
	ProfileDir string // shared profile directory
	Logger     *slog.Logger
}

func (r Request) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

func (r Request) validate() error {
	var errs []error
	if r.SlotID == "" {
		errs = append(errs, errors.New("slot id must not be empty"))
	}
	if r.DataDir == "" {
		errs = append(errs, errors.New("data dir must not be empty"))
	}
	return errors.Join(errs...)
}

// Handle is a spawned worker.
type Handle interface {
	// PID returns the operating-system process id of the worker.
	PID() int
	// Report blocks until the worker's warm-up report is available, the
	// worker exits, or ctx is done.
	Report(ctx context.Context) (warmer.Report, error)
	// Exited is closed when the worker is gone.
	Exited() <-chan struct{}
	// Stop terminates the worker within timeout. Stop is idempotent.
	Stop(timeout time.Duration) error
}

// Spawner starts workers.
type Spawner interface {
	Spawn(ctx context.Context, req Request) (Handle, error)
}

// WriteReport publishes r atomically as dir/ReportFile.
func WriteReport(dir string, r warmer.Report) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := fileutil.WriteFileAtomic(filepath.Join(dir, ReportFile), data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// ReadReport reads dir/ReportFile. The bool is false when no report has been
// published yet.
func ReadReport(dir string) (warmer.Report, bool, error) {
	data, err := os.ReadFile(filepath.Join(dir, ReportFile)) //nolint:gosec // G304: path built from the slot data dir
	if errors.Is(err, os.ErrNotExist) {
		return warmer.Report{}, false, nil
	}
	if err != nil {
		return warmer.Report{}, false, fmt.Errorf("read report: %w", err)
	}
	var r warmer.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return warmer.Report{}, false, fmt.Errorf("decode report: %w", err)
	}
	return r, true, nil
}
