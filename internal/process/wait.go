package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/giantswarm/prealloc/internal/sentinel"
	"k8s.io/apimachinery/pkg/util/wait"
)

// ErrIntervalNotPositive is returned for a non-positive poll interval.
const ErrIntervalNotPositive = sentinel.Error("interval must be positive")

// ErrTimeoutNotPositive is returned for a non-positive timeout.
const ErrTimeoutNotPositive = sentinel.Error("timeout must be positive")

// ErrProcessExited is returned when the watched process exits before the
// check succeeds.
const ErrProcessExited = sentinel.Error("process exited before becoming ready")

// ReadinessCheck is polled by WaitReady. attempt starts at 1. Returning true
// ends polling successfully; returning an error aborts it.
type ReadinessCheck func(ctx context.Context, attempt int) (ready bool, err error)

// WaitReadyConfig configures WaitReady.
type WaitReadyConfig struct {
	Interval time.Duration
	Timeout  time.Duration
	// Name identifies what is being waited for in errors and logs.
	Name   string
	Logger *slog.Logger
	// ProcessExited, when non-nil, aborts the wait as soon as it is closed.
	ProcessExited <-chan struct{}
}

// WaitReady polls check every Interval until it reports ready, fails, the
// watched process exits, ctx is done, or Timeout elapses.
func WaitReady(ctx context.Context, cfg WaitReadyConfig, check ReadinessCheck) error {
	if cfg.Name == "" {
		return errors.New("wait ready: name must not be empty")
	}
	if cfg.Interval <= 0 {
		return fmt.Errorf("wait for %s: %w", cfg.Name, ErrIntervalNotPositive)
	}
	if cfg.Timeout <= 0 {
		return fmt.Errorf("wait for %s: %w", cfg.Name, ErrTimeoutNotPositive)
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	// PollUntilContextTimeout calls the condition sequentially, so attempt
	// needs no synchronization.
	attempt := 0
	err := wait.PollUntilContextTimeout(ctx, cfg.Interval, cfg.Timeout, true,
		func(pollCtx context.Context) (bool, error) {
			if cfg.ProcessExited != nil {
				select {
				case <-cfg.ProcessExited:
					return false, fmt.Errorf("process %s: %w", cfg.Name, ErrProcessExited)
				default:
				}
			}
			attempt++
			ready, err := check(pollCtx, attempt)
			if err != nil {
				return false, err
			}
			if ready {
				log.Debug("wait succeeded", "name", cfg.Name, "attempt", attempt)
			}
			return ready, nil
		})
	if err != nil {
		return fmt.Errorf("wait for %s: %w", cfg.Name, err)
	}
	return nil
}
