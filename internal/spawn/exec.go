package spawn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"sync"
	"time"

	"github.com/giantswarm/prealloc/internal/process"
	"github.com/giantswarm/prealloc/internal/warmer"
)

const (
	// DefaultReportPollInterval is how often ExecSpawner checks for a report.
	DefaultReportPollInterval = 25 * time.Millisecond

	// fallbackReportTimeout bounds Report when ctx carries no deadline.
	fallbackReportTimeout = 10 * time.Minute
)

// ExecSpawner starts Binary once per slot with
//
//	Args... --slot-id <id> --data-dir <dir> --profile-dir <dir>
//
// Stdout and stderr go to log files in the slot data directory.
type ExecSpawner struct {
	Binary       string
	Args         []string
	Env          []string      // extra environment, appended to os.Environ()
	PollInterval time.Duration // zero uses DefaultReportPollInterval
	StopTimeout  time.Duration // bound for the implicit stop in Close paths
}

var _ Spawner = (*ExecSpawner)(nil)

// Spawn starts a worker for req.
func (s *ExecSpawner) Spawn(ctx context.Context, req Request) (Handle, error) {
	if s.Binary == "" {
		return nil, errors.New("exec spawner: binary must not be empty")
	}
	if err := req.validate(); err != nil {
		return nil, fmt.Errorf("exec spawner: invalid request: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	args := slices.Clone(s.Args)
	args = append(args, "--slot-id", req.SlotID, "--data-dir", req.DataDir)
	if req.ProfileDir != "" {
		args = append(args, "--profile-dir", req.ProfileDir)
	}
	// The worker outlives ctx; its lifetime is owned by Stop.
	cmd := exec.Command(s.Binary, args...) //nolint:gosec // G204: binary is operator configuration
	cmd.Env = append(os.Environ(), s.Env...)

	log := req.logger()
	w := process.NewWorker("worker-"+req.SlotID, log, s.StopTimeout)
	if err := w.Start(cmd, req.DataDir); err != nil {
		w.Close()
		return nil, err
	}
	stdout, _ := w.LogPaths()
	log.Debug("worker started", "pid", w.PID(), "binary", s.Binary, "stdout", stdout)

	interval := s.PollInterval
	if interval <= 0 {
		interval = DefaultReportPollInterval
	}
	return &execHandle{worker: w, live: w, dir: req.DataDir, slotID: req.SlotID, interval: interval, log: log}, nil
}

type execHandle struct {
	worker   *process.Worker
	dir      string
	slotID   string
	interval time.Duration
	log      *slog.Logger

	mu   sync.Mutex
	live *process.Worker // nil once stopped
}

func (h *execHandle) PID() int                { return h.worker.PID() }
func (h *execHandle) Exited() <-chan struct{} { return h.worker.Exited() }

func (h *execHandle) Report(ctx context.Context) (warmer.Report, error) {
	timeout := fallbackReportTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout <= 0 {
			return warmer.Report{}, context.DeadlineExceeded
		}
	}

	var report warmer.Report
	err := process.WaitReady(ctx, process.WaitReadyConfig{
		Interval:      h.interval,
		Timeout:       timeout,
		Name:          "report of slot " + h.slotID,
		ProcessExited: h.worker.Exited(),
	}, func(_ context.Context, _ int) (bool, error) {
		r, ok, err := ReadReport(h.dir)
		if err != nil || !ok {
			return false, err
		}
		report = r
		return true, nil
	})
	if errors.Is(err, process.ErrProcessExited) {
		// The worker may have published its report just before exiting.
		if r, ok, readErr := ReadReport(h.dir); readErr == nil && ok {
			return r, nil
		}
		return warmer.Report{}, fmt.Errorf("slot %s: %w: %v", h.slotID, ErrReportMissing, h.worker.ExitErr())
	}
	if err != nil {
		return warmer.Report{}, err
	}
	return report, nil
}

func (h *execHandle) Stop(timeout time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.live == nil {
		return nil
	}
	err := process.StopCloseAndNil(&h.live, timeout)
	h.log.Debug("worker stopped", "slot", h.slotID)
	return err
}
