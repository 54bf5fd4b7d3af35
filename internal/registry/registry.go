// Package registry holds the ordered set of subsystems a worker process warms
// before it is offered to the pool.
package registry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/utils/clock"

	"github.com/giantswarm/prealloc/internal/sentinel"
)

// ErrRegistryClosed is returned by Register once the first warm-up pass has
// started.
const ErrRegistryClosed = sentinel.Error("registry is closed")

// ErrDuplicateSubsystem is returned by Register when a descriptor with the
// same name is already registered.
const ErrDuplicateSubsystem = sentinel.Error("subsystem already registered")

// WarmFunc eagerly initializes one subsystem. It takes no arguments and relies
// on nothing beyond the process existing. State it initializes lives for the
// lifetime of the process.
type WarmFunc func() error

// Descriptor names a subsystem and the operation that warms it.
type Descriptor struct {
	Name string
	Warm WarmFunc
}

// Outcome records the result of warming one subsystem.
type Outcome struct {
	Name     string
	Err      error
	Duration time.Duration
}

// OK reports whether the subsystem warmed successfully.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// SubsystemWarmError attributes a warm-up failure to the subsystem that
// produced it.
type SubsystemWarmError struct {
	Name  string
	Cause error
}

func (e *SubsystemWarmError) Error() string {
	return fmt.Sprintf("warm subsystem %q: %v", e.Name, e.Cause)
}

func (e *SubsystemWarmError) Unwrap() error {
	return e.Cause
}

// Registry is an ordered, append-only list of subsystem descriptors.
// Registration closes the moment WarmAll is first called.
//
// It is safe for concurrent use, although a worker process normally drives it
// from a single goroutine.
type Registry struct {
	mu          sync.Mutex
	descriptors []Descriptor
	names       sets.Set[string]
	closed      bool
	clock       clock.PassiveClock
}

// New returns an empty, open Registry timed by the wall clock.
func New() *Registry {
	return NewWithClock(clock.RealClock{})
}

// NewWithClock returns an empty, open Registry that measures warm durations
// with c.
func NewWithClock(c clock.PassiveClock) *Registry {
	if c == nil {
		panic("prealloc: registry clock must not be nil")
	}
	return &Registry{names: sets.New[string](), clock: c}
}

// Register appends d to the warm-up sequence.
func (r *Registry) Register(d Descriptor) error {
	if d.Name == "" {
		return errors.New("register subsystem: name must not be empty")
	}
	if d.Warm == nil {
		return fmt.Errorf("register subsystem %q: warm func must not be nil", d.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("register subsystem %q: %w", d.Name, ErrRegistryClosed)
	}
	if r.names.Has(d.Name) {
		return fmt.Errorf("register subsystem %q: %w", d.Name, ErrDuplicateSubsystem)
	}
	r.names.Insert(d.Name)
	r.descriptors = append(r.descriptors, d)
	return nil
}

// MustRegister is like Register but panics on error. Intended for wiring
// built-in subsystems where a failure is a programmer error.
func (r *Registry) MustRegister(ds ...Descriptor) {
	for _, d := range ds {
		if err := r.Register(d); err != nil {
			panic("prealloc: " + err.Error())
		}
	}
}

// WarmAll closes registration and warms every descriptor in registration
// order. Each Warm call completes before the next begins. A failure does not
// stop the pass: every descriptor is attempted, and the returned outcomes
// line up one-to-one with the registration order.
func (r *Registry) WarmAll() []Outcome {
	r.mu.Lock()
	r.closed = true
	descriptors := make([]Descriptor, len(r.descriptors))
	copy(descriptors, r.descriptors)
	r.mu.Unlock()

	outcomes := make([]Outcome, 0, len(descriptors))
	for _, d := range descriptors {
		start := r.clock.Now()
		err := warmOne(d)
		outcomes = append(outcomes, Outcome{
			Name:     d.Name,
			Err:      err,
			Duration: r.clock.Since(start),
		})
	}
	return outcomes
}

// warmOne runs a single Warm call, converting a panic into a failure so one
// misbehaving subsystem cannot abort the rest of the pass.
func warmOne(d Descriptor) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &SubsystemWarmError{Name: d.Name, Cause: fmt.Errorf("panic: %v", p)}
		}
	}()
	if werr := d.Warm(); werr != nil {
		return &SubsystemWarmError{Name: d.Name, Cause: werr}
	}
	return nil
}

// Names returns the registered subsystem names in registration order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.descriptors))
	for i, d := range r.descriptors {
		names[i] = d.Name
	}
	return names
}

// Len returns the number of registered descriptors.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.descriptors)
}

// Closed reports whether a warm-up pass has started.
func (r *Registry) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// AllOK reports whether every outcome succeeded. An empty slice is OK.
func AllOK(outcomes []Outcome) bool {
	for _, o := range outcomes {
		if !o.OK() {
			return false
		}
	}
	return true
}
