package subsystems

import (
	"fmt"
	"os"
	"sync"

	"github.com/giantswarm/prealloc/internal/profile"
	"github.com/giantswarm/prealloc/internal/registry"
)

// PreferencesName is the registry name of the preferences subsystem.
const PreferencesName = "preferences"

// Preferences holds the parsed prefs.yaml document.
type Preferences struct {
	path string

	mu    sync.Mutex
	prefs *profile.Preferences
}

// NewPreferences returns a preferences subsystem reading the file at path.
func NewPreferences(path string) *Preferences {
	return &Preferences{path: path}
}

// Descriptor returns the registry descriptor for p.
func (p *Preferences) Descriptor() registry.Descriptor {
	return registry.Descriptor{Name: PreferencesName, Warm: p.Warm}
}

// Warm reads and validates the preferences document.
func (p *Preferences) Warm() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("read preferences: %w", err)
	}
	prefs, err := profile.DecodePreferences(data)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prefs = &prefs
	return nil
}

// Get returns the warmed preferences.
func (p *Preferences) Get() (profile.Preferences, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.prefs == nil {
		return profile.Preferences{}, ErrNotWarmed
	}
	return *p.prefs, nil
}
