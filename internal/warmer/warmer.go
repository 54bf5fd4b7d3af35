// Package warmer runs the one-shot warm-up pass of a freshly spawned worker
// process: warm every registered subsystem, then create the blank surface,
// then report the outcome to the pool.
package warmer

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/giantswarm/prealloc/internal/registry"
	"github.com/giantswarm/prealloc/internal/sentinel"
	"github.com/giantswarm/prealloc/internal/surface"
	"k8s.io/utils/clock"
)

// ErrAlreadyRun is returned by Run on every call after the first.
const ErrAlreadyRun = sentinel.Error("warmer already ran")

// Reporter receives the single report a Warmer produces. It is the
// warmer-facing half of the pool manager.
type Reporter interface {
	ReportReady(slotID string, r Report)
	ReportFailed(slotID string, r Report)
}

// Config wires a Warmer to its collaborators.
type Config struct {
	SlotID   string
	Registry *registry.Registry
	Surface  *surface.Initializer
	Reporter Reporter

	// Clock measures the total duration. Defaults to the wall clock.
	Clock clock.PassiveClock
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (c Config) validate() error {
	var errs []error
	if c.SlotID == "" {
		errs = append(errs, errors.New("slot id must not be empty"))
	}
	if c.Registry == nil {
		errs = append(errs, errors.New("registry must not be nil"))
	}
	if c.Surface == nil {
		errs = append(errs, errors.New("surface initializer must not be nil"))
	}
	if c.Reporter == nil {
		errs = append(errs, errors.New("reporter must not be nil"))
	}
	return errors.Join(errs...)
}

// Warmer drives one process through Start → Warming → (Surfacing →) Ready or
// Failed. It never retries and has no notion of timeouts; the pool enforces
// those from outside by killing the process.
type Warmer struct {
	cfg   Config
	clock clock.PassiveClock
	log   *slog.Logger

	mu      sync.Mutex
	state   State
	visited []State
	ran     bool
}

// New returns a Warmer in StateStart. Panics on an invalid Config.
func New(cfg Config) *Warmer {
	if err := cfg.validate(); err != nil {
		panic("prealloc: invalid warmer config: " + err.Error())
	}
	c := cfg.Clock
	if c == nil {
		c = clock.RealClock{}
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Warmer{
		cfg:     cfg,
		clock:   c,
		log:     log.With("slot", cfg.SlotID),
		state:   StateStart,
		visited: []State{StateStart},
	}
}

// State returns the current state.
func (w *Warmer) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Visited returns every state the warmer has entered, in order.
func (w *Warmer) Visited() []State {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]State, len(w.visited))
	copy(out, w.visited)
	return out
}

func (w *Warmer) enter(s State) {
	w.mu.Lock()
	w.state = s
	w.visited = append(w.visited, s)
	w.mu.Unlock()
	w.log.Debug("warmer state", "state", s.String())
}

// Run performs the warm-up pass and delivers the report to the Reporter
// before returning it. Only the first call does any work.
func (w *Warmer) Run() (Report, error) {
	w.mu.Lock()
	if w.ran {
		w.mu.Unlock()
		return Report{}, ErrAlreadyRun
	}
	w.ran = true
	w.mu.Unlock()

	start := w.clock.Now()
	report := Report{SlotID: w.cfg.SlotID}

	w.enter(StateWarming)
	report.Outcomes = w.cfg.Registry.WarmAll()

	if registry.AllOK(report.Outcomes) {
		w.enter(StateSurfacing)
		if _, err := w.cfg.Surface.CreateBlankSurface(); err != nil {
			report.SurfaceErr = err
			w.enter(StateFailed)
		} else {
			w.enter(StateReady)
		}
	} else {
		w.enter(StateFailed)
	}

	report.State = w.State()
	report.Duration = w.clock.Since(start)

	if report.OK() {
		w.log.Info("warm-up complete",
			"subsystems", len(report.Outcomes),
			"duration", report.Duration)
		w.cfg.Reporter.ReportReady(w.cfg.SlotID, report)
	} else {
		w.log.Warn("warm-up failed",
			"failed_subsystems", len(report.Failures()),
			"duration", report.Duration,
			"error", report.Err())
		w.cfg.Reporter.ReportFailed(w.cfg.SlotID, report)
	}
	return report, nil
}
