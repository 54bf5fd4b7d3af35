package subsystems

import (
	"context"
	"fmt"
	"maps"
	"os"
	"sync"

	"github.com/giantswarm/prealloc/internal/profile"
	"github.com/giantswarm/prealloc/internal/registry"
)

// SettingsName is the registry name of the settings subsystem.
const SettingsName = "settings"

// Settings combines the settings.toml document with per-profile overrides
// stored in the settings table.
type Settings struct {
	paths profile.Paths

	mu        sync.Mutex
	warmed    bool
	doc       profile.Settings
	overrides map[string]string
}

// NewSettings returns a settings subsystem for the profile at paths.
func NewSettings(paths profile.Paths) *Settings {
	return &Settings{paths: paths}
}

// Descriptor returns the registry descriptor for s.
func (s *Settings) Descriptor() registry.Descriptor {
	return registry.Descriptor{Name: SettingsName, Warm: s.Warm}
}

// Warm parses settings.toml and loads the override rows.
func (s *Settings) Warm() error {
	data, err := os.ReadFile(s.paths.Settings())
	if err != nil {
		return fmt.Errorf("read settings: %w", err)
	}
	doc, err := profile.DecodeSettings(data)
	if err != nil {
		return err
	}

	db, err := profile.Open(s.paths.Database())
	if err != nil {
		return err
	}
	defer db.Close()

	rows, err := db.QueryContext(context.Background(), `SELECT name, value FROM settings`)
	if err != nil {
		return fmt.Errorf("query settings table: %w", err)
	}
	defer rows.Close()

	overrides := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return fmt.Errorf("scan settings row: %w", err)
		}
		overrides[name] = value
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate settings table: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = doc
	s.overrides = overrides
	s.warmed = true
	return nil
}

// Document returns the parsed settings document.
func (s *Settings) Document() (profile.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.warmed {
		return profile.Settings{}, ErrNotWarmed
	}
	return s.doc, nil
}

// Overrides returns a copy of the override rows.
func (s *Settings) Overrides() (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.warmed {
		return nil, ErrNotWarmed
	}
	return maps.Clone(s.overrides), nil
}
