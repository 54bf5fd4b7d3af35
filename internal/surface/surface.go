// Package surface creates the blank rendering surface a warm worker holds
// before it is attached to a task.
package surface

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/giantswarm/prealloc/internal/sentinel"
)

// BlankURL is the address of a content-free surface.
const BlankURL = "about:blank"

// ErrAlreadyInitialized is returned by CreateBlankSurface on every call after
// the first one.
const ErrAlreadyInitialized = sentinel.Error("surface already initialized")

// SurfaceInitError wraps a failure of the surface factory.
type SurfaceInitError struct {
	Cause error
}

func (e *SurfaceInitError) Error() string {
	return fmt.Sprintf("create blank surface: %v", e.Cause)
}

func (e *SurfaceInitError) Unwrap() error {
	return e.Cause
}

// Surface is a minimal view context with no task content attached. It has no
// navigation history and no task identity until specialization.
type Surface struct {
	URL       string
	History   []string
	TaskID    string
	CreatedAt time.Time
}

// Blank reports whether the surface still carries no content.
func (s *Surface) Blank() bool {
	return s.URL == BlankURL && len(s.History) == 0 && s.TaskID == ""
}

// Factory allocates a surface. Hosts with a real view service supply their
// own; DefaultFactory builds a plain blank surface.
type Factory func() (*Surface, error)

// DefaultFactory returns a blank surface stamped with the current time.
func DefaultFactory() (*Surface, error) {
	return &Surface{URL: BlankURL, CreatedAt: time.Now()}, nil
}

// Initializer creates at most one surface per process.
type Initializer struct {
	mu      sync.Mutex
	factory Factory
	surface *Surface
	called  bool
}

// NewInitializer returns an Initializer using factory, or DefaultFactory when
// factory is nil.
func NewInitializer(factory Factory) *Initializer {
	if factory == nil {
		factory = DefaultFactory
	}
	return &Initializer{factory: factory}
}

// CreateBlankSurface allocates the process's surface. Only the first call
// reaches the factory; later calls return ErrAlreadyInitialized and leave the
// existing surface in place, even when the first call failed.
func (i *Initializer) CreateBlankSurface() (*Surface, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.called {
		return nil, ErrAlreadyInitialized
	}
	i.called = true

	s, err := i.factory()
	if err != nil {
		return nil, &SurfaceInitError{Cause: err}
	}
	if s == nil {
		return nil, &SurfaceInitError{Cause: errors.New("factory returned nil surface")}
	}
	i.surface = s
	return s, nil
}

// Surface returns the surface created by CreateBlankSurface, or nil.
func (i *Initializer) Surface() *Surface {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.surface
}
