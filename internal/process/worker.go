package process

import (
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/giantswarm/prealloc/internal/sentinel"
)

// ErrAlreadyStarted is returned by Start on a Worker that is still running.
const ErrAlreadyStarted = sentinel.Error("process already started")

// ErrNilCmd is returned by Start when cmd is nil.
const ErrNilCmd = sentinel.Error("cmd must not be nil")

// ErrEmptyCmdPath is returned by Start when cmd.Path is empty.
const ErrEmptyCmdPath = sentinel.Error("cmd.Path must not be empty")

// ErrEmptyDir is returned by Start when no working directory is given.
const ErrEmptyDir = sentinel.Error("working directory must not be empty")

var _ Stoppable = (*Worker)(nil)

// Worker is one launched worker process.
//
// Worker is not safe for concurrent use; callers serialize Start, Stop and
// Close. Exited, ExitErr and PID may be read from any goroutine once Start
// has returned.
type Worker struct {
	name        string
	log         *slog.Logger
	stopTimeout time.Duration

	cmd     *exec.Cmd
	pid     int
	done    <-chan error
	exited  <-chan struct{}
	exitErr error
	logs    LogFiles
}

// NewWorker returns an unstarted Worker. stopTimeout bounds the implicit stop
// in Close; zero means DefaultStopTimeout. A nil logger uses slog.Default().
// Panics if name is empty.
func NewWorker(name string, logger *slog.Logger, stopTimeout time.Duration) *Worker {
	if name == "" {
		panic("prealloc: worker process name must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if stopTimeout <= 0 {
		stopTimeout = DefaultStopTimeout
	}
	return &Worker{name: name, log: logger, stopTimeout: stopTimeout}
}

// Start runs cmd in dir with stdout and stderr captured to log files in dir.
// Exactly one goroutine calls cmd.Wait; its result feeds Stop, and Exited is
// closed when it returns.
func (w *Worker) Start(cmd *exec.Cmd, dir string) error {
	switch {
	case cmd == nil:
		return ErrNilCmd
	case cmd.Path == "":
		return ErrEmptyCmdPath
	case dir == "":
		return ErrEmptyDir
	case w.cmd != nil:
		return ErrAlreadyStarted
	}

	logs, err := OpenLogFiles(dir, w.name)
	if err != nil {
		return fmt.Errorf("open %s logs: %w", w.name, err)
	}

	cmd.Dir = dir
	cmd.Stdout = logs.stdout
	cmd.Stderr = logs.stderr
	configureSysProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		logs.Close()
		return fmt.Errorf("start %s: %w", w.name, err)
	}

	done := make(chan error, 1)
	exited := make(chan struct{})
	go func() {
		err := cmd.Wait()
		w.exitErr = err
		done <- err
		close(exited)
	}()

	w.cmd = cmd
	w.pid = cmd.Process.Pid
	w.done = done
	w.exited = exited
	w.logs = logs
	return nil
}

// PID returns the operating-system process id, or 0 before Start.
func (w *Worker) PID() int {
	return w.pid
}

// Exited is closed when the process exits for any reason. Nil before Start.
func (w *Worker) Exited() <-chan struct{} {
	return w.exited
}

// ExitErr returns the cmd.Wait result. Only meaningful after Exited is
// closed.
func (w *Worker) ExitErr() error {
	return w.exitErr
}

// IsStarted reports whether the process was started and not yet stopped.
func (w *Worker) IsStarted() bool {
	return w.cmd != nil
}

// LogPaths returns the stdout and stderr log file paths.
func (w *Worker) LogPaths() (stdout, stderr string) {
	return w.logs.StdoutPath(), w.logs.StderrPath()
}

// Stop terminates the process within timeout. After Stop returns the Worker
// is no longer considered started, even on error. A Worker that was never
// started, was already stopped, or already exited on its own returns nil;
// the exit status of the latter stays available from ExitErr.
func (w *Worker) Stop(timeout time.Duration) error {
	if w.cmd == nil {
		return nil
	}
	select {
	case <-w.exited:
		w.log.Debug("worker already exited", "process", w.name, "pid", w.pid, "exit", w.exitErr)
		w.cmd = nil
		w.done = nil
		return nil
	default:
	}
	err := terminate(w.cmd, w.done, timeout, w.name)
	if err != nil {
		w.log.Warn("worker stop failed; process may be orphaned",
			"process", w.name, "pid", w.pid, "error", err)
	}
	w.cmd = nil
	w.done = nil
	return err
}

// Close releases the log files, stopping the process first if the caller
// forgot to.
func (w *Worker) Close() {
	if w.cmd != nil {
		w.log.Warn("worker closed without Stop; stopping now", "process", w.name, "pid", w.pid)
		if err := w.Stop(w.stopTimeout); err != nil {
			w.log.Warn("stop during close failed", "process", w.name, "error", err)
		}
	}
	w.logs.Close()
}
