package warmer

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/giantswarm/prealloc/internal/registry"
	"github.com/giantswarm/prealloc/internal/surface"
)

// Report is the result of one warm-up pass. The warmer produces exactly one
// per process; the pool consumes it once to decide whether to keep the
// process.
type Report struct {
	SlotID     string
	State      State
	Outcomes   []registry.Outcome
	SurfaceErr error
	Duration   time.Duration
}

// OK reports whether the process may be handed out: the warmer reached Ready,
// every subsystem succeeded and the surface exists.
func (r Report) OK() bool {
	return r.State == StateReady && registry.AllOK(r.Outcomes) && r.SurfaceErr == nil
}

// Failures returns the failed subsystem outcomes in registration order.
func (r Report) Failures() []registry.Outcome {
	var failed []registry.Outcome
	for _, o := range r.Outcomes {
		if !o.OK() {
			failed = append(failed, o)
		}
	}
	return failed
}

// Warmed returns the names of subsystems that warmed successfully.
func (r Report) Warmed() []string {
	names := make([]string, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		if o.OK() {
			names = append(names, o.Name)
		}
	}
	return names
}

// Err joins every failure in the report, or returns nil for a clean report.
func (r Report) Err() error {
	var errs []error
	for _, o := range r.Failures() {
		errs = append(errs, o.Err)
	}
	if r.SurfaceErr != nil {
		errs = append(errs, r.SurfaceErr)
	}
	if len(errs) == 0 && r.State != StateReady {
		errs = append(errs, fmt.Errorf("warmer finished in state %s", r.State))
	}
	return errors.Join(errs...)
}

// wireReport is the JSON form of Report. Errors travel as strings and are
// rebuilt as *registry.SubsystemWarmError and *surface.SurfaceInitError so
// failure attribution survives the process boundary.
type wireReport struct {
	SlotID        string        `json:"slot_id"`
	State         string        `json:"state"`
	Outcomes      []wireOutcome `json:"outcomes"`
	SurfaceFailed bool          `json:"surface_failed,omitempty"`
	SurfaceErr    string        `json:"surface_error,omitempty"`
	DurationNS    int64         `json:"duration_ns"`
}

// Failed, not Err, marks a failure: an error may have empty text.
type wireOutcome struct {
	Name       string `json:"name"`
	Failed     bool   `json:"failed,omitempty"`
	Err        string `json:"error,omitempty"`
	DurationNS int64  `json:"duration_ns"`
}

// unknownCause stands in for a failure whose error text was empty.
const unknownCause = "unknown error"

// MarshalJSON implements json.Marshaler.
func (r Report) MarshalJSON() ([]byte, error) {
	w := wireReport{
		SlotID:     r.SlotID,
		State:      r.State.String(),
		Outcomes:   make([]wireOutcome, len(r.Outcomes)),
		DurationNS: int64(r.Duration),
	}
	for i, o := range r.Outcomes {
		w.Outcomes[i] = wireOutcome{Name: o.Name, DurationNS: int64(o.Duration)}
		if o.Err != nil {
			w.Outcomes[i].Failed = true
			w.Outcomes[i].Err = causeText(o.Err)
		}
	}
	if r.SurfaceErr != nil {
		w.SurfaceFailed = true
		w.SurfaceErr = causeText(r.SurfaceErr)
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Report) UnmarshalJSON(data []byte) error {
	var w wireReport
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode warm-up report: %w", err)
	}
	state, err := parseState(w.State)
	if err != nil {
		return fmt.Errorf("decode warm-up report: %w", err)
	}

	out := Report{
		SlotID:   w.SlotID,
		State:    state,
		Outcomes: make([]registry.Outcome, len(w.Outcomes)),
		Duration: time.Duration(w.DurationNS),
	}
	for i, o := range w.Outcomes {
		out.Outcomes[i] = registry.Outcome{Name: o.Name, Duration: time.Duration(o.DurationNS)}
		if o.Failed || o.Err != "" {
			out.Outcomes[i].Err = &registry.SubsystemWarmError{Name: o.Name, Cause: decodeCause(o.Err)}
		}
	}
	if w.SurfaceFailed || w.SurfaceErr != "" {
		out.SurfaceErr = &surface.SurfaceInitError{Cause: decodeCause(w.SurfaceErr)}
	}
	*r = out
	return nil
}

// causeText strips the attribution wrapper so decoding does not nest it twice.
func causeText(err error) string {
	var warmErr *registry.SubsystemWarmError
	if errors.As(err, &warmErr) && warmErr.Cause != nil {
		return warmErr.Cause.Error()
	}
	var surfErr *surface.SurfaceInitError
	if errors.As(err, &surfErr) && surfErr.Cause != nil {
		return surfErr.Cause.Error()
	}
	return err.Error()
}

func decodeCause(text string) error {
	if text == "" {
		text = unknownCause
	}
	return errors.New(text)
}
