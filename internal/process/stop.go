package process

import (
	"errors"
	"fmt"
	"os/exec"
	"syscall"
	"time"
)

// DefaultStopTimeout bounds a stop when the caller did not configure one.
const DefaultStopTimeout = 10 * time.Second

// termGracePeriod is how long a worker gets to exit after SIGTERM before it
// is sent SIGKILL. Capped at the overall stop timeout.
const termGracePeriod = 5 * time.Second

// killDrainTimeout bounds the wait for cmd.Wait after SIGKILL. SIGKILL cannot
// be caught, so this only fires if Wait itself is stuck.
const killDrainTimeout = 10 * time.Second

// drainDone waits up to timeout for the single cmd.Wait result. ok is false
// when the timeout fired first.
func drainDone(done <-chan error, timeout time.Duration) (ok bool, err error) {
	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case err := <-done:
		return true, err
	case <-t.C:
		return false, nil
	}
}

// terminate sends SIGTERM, schedules SIGKILL after the grace period and waits
// for the exit reported on done. done must carry the result of the only
// cmd.Wait call for cmd. Worst case it blocks for timeout+killDrainTimeout.
func terminate(cmd *exec.Cmd, done <-chan error, timeout time.Duration, name string) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if done == nil {
		return fmt.Errorf("%s: done channel must not be nil", name)
	}

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// Exited on its own before the signal; that is not a failed stop.
		if ok, _ := drainDone(done, killDrainTimeout); !ok {
			return fmt.Errorf("%s: timed out draining exited process", name)
		}
		return nil
	}

	killTimer := time.AfterFunc(min(termGracePeriod, timeout), func() {
		_ = cmd.Process.Kill()
	})
	defer killTimer.Stop()

	total := time.NewTimer(timeout)
	defer total.Stop()

	select {
	case err := <-done:
		return expectSignalExit(err, name)
	case <-total.C:
		ok, waitErr := drainDone(done, killDrainTimeout)
		if !ok {
			return fmt.Errorf("%s: timed out waiting for exit after SIGKILL", name)
		}
		if err := expectSignalExit(waitErr, name); err != nil {
			return fmt.Errorf("%s stop timeout: %w", name, err)
		}
		return nil
	}
}

// expectSignalExit treats death by SIGTERM or SIGKILL, and a clean exit, as a
// successful stop. A worker that traps SIGTERM and exits 0 lands in the nil
// case.
func expectSignalExit(err error, name string) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if sig := status.Signal(); sig == syscall.SIGTERM || sig == syscall.SIGKILL {
				return nil
			}
		}
	}
	return fmt.Errorf("%s: %w", name, err)
}
