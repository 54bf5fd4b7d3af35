package subsystems

import (
	"github.com/giantswarm/prealloc/internal/profile"
	"github.com/giantswarm/prealloc/internal/registry"
	"github.com/giantswarm/prealloc/internal/sentinel"
)

// ErrNotWarmed is returned by accessors called before Warm succeeded.
const ErrNotWarmed = sentinel.Error("subsystem not warmed")

// ErrClosed is returned by Warm on a subsystem that was already closed.
const ErrClosed = sentinel.Error("subsystem closed")

// Set is the four built-in subsystems for one profile.
type Set struct {
	Storage     *Storage
	Settings    *Settings
	Cookies     *Cookies
	Preferences *Preferences
}

// NewSet returns the built-in subsystems for the profile at paths.
func NewSet(paths profile.Paths) *Set {
	return &Set{
		Storage:     NewStorage(paths.Database()),
		Settings:    NewSettings(paths),
		Cookies:     NewCookies(paths.Database()),
		Preferences: NewPreferences(paths.Preferences()),
	}
}

// Descriptors returns the descriptors in warm-up order.
func (s *Set) Descriptors() []registry.Descriptor {
	return []registry.Descriptor{
		s.Storage.Descriptor(),
		s.Settings.Descriptor(),
		s.Cookies.Descriptor(),
		s.Preferences.Descriptor(),
	}
}

// Close releases resources held by warmed subsystems.
func (s *Set) Close() error {
	return s.Storage.Close()
}
