package prealloc_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/giantswarm/prealloc"
)

// publicErrors lists every exported sentinel error.
var publicErrors = map[string]error{
	"ErrAcquireTimeout":     prealloc.ErrAcquireTimeout,
	"ErrAlreadyInitialized": prealloc.ErrAlreadyInitialized,
	"ErrAlreadyRun":         prealloc.ErrAlreadyRun,
	"ErrDuplicateSubsystem": prealloc.ErrDuplicateSubsystem,
	"ErrNotHandedOut":       prealloc.ErrNotHandedOut,
	"ErrNotInitialized":     prealloc.ErrNotInitialized,
	"ErrPoolClosed":         prealloc.ErrPoolClosed,
	"ErrProcessRetired":     prealloc.ErrProcessRetired,
	"ErrRegistryClosed":     prealloc.ErrRegistryClosed,
	"ErrReportMissing":      prealloc.ErrReportMissing,
	"ErrShuttingDown":       prealloc.ErrShuttingDown,
}

// TestPublicErrorConstants verifies that every exported error constant
// has a message and matches itself directly and when wrapped.
func TestPublicErrorConstants(t *testing.T) {
	t.Parallel()

	for name, sentinel := range publicErrors {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			if sentinel == nil {
				t.Fatalf("%s is nil", name)
			}
			if msg := sentinel.Error(); msg == "" {
				t.Errorf("%s.Error() returned empty string", name)
			}
			if !errors.Is(sentinel, sentinel) {
				t.Errorf("errors.Is(%s, %s) = false, want true (self-match)", name, name)
			}
			wrapped := fmt.Errorf("wrapping: %w", sentinel)
			if !errors.Is(wrapped, sentinel) {
				t.Errorf("errors.Is(wrapped %s) = false, want true", name)
			}
			if errors.Is(sentinel, errors.New("some other error")) {
				t.Errorf("errors.Is(%s, errors.New(...)) = true, want false", name)
			}
		})
	}
}

// TestPublicErrorConstantsAreDistinct verifies that no two exported error
// constants are equal to each other.
func TestPublicErrorConstantsAreDistinct(t *testing.T) {
	t.Parallel()

	for nameA, a := range publicErrors {
		for nameB, b := range publicErrors {
			if nameA == nameB {
				continue
			}
			if errors.Is(a, b) {
				t.Errorf("errors.Is(%s, %s) = true: constants must be distinct", nameA, nameB)
			}
		}
	}
}

func TestStructuredErrorsUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("disk full")

	warmErr := error(&prealloc.SubsystemWarmError{Name: "storage", Cause: cause})
	var gotWarm *prealloc.SubsystemWarmError
	if !errors.As(fmt.Errorf("warm: %w", warmErr), &gotWarm) {
		t.Fatal("errors.As(*SubsystemWarmError) = false, want true")
	}
	if gotWarm.Name != "storage" {
		t.Errorf("Name = %q, want %q", gotWarm.Name, "storage")
	}
	if !errors.Is(warmErr, cause) {
		t.Error("SubsystemWarmError does not unwrap to its cause")
	}

	surfErr := error(&prealloc.SurfaceInitError{Cause: cause})
	var gotSurf *prealloc.SurfaceInitError
	if !errors.As(fmt.Errorf("surface: %w", surfErr), &gotSurf) {
		t.Fatal("errors.As(*SurfaceInitError) = false, want true")
	}
	if !errors.Is(surfErr, cause) {
		t.Error("SurfaceInitError does not unwrap to its cause")
	}
}
