package profile

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Settings is the settings document stored in settings.toml.
type Settings struct {
	Homepage       string   `toml:"homepage"`
	Language       string   `toml:"language"`
	SearchEngine   string   `toml:"search_engine"`
	DownloadDir    string   `toml:"download_dir"`
	BlockedHosts   []string `toml:"blocked_hosts"`
	RestoreSession bool     `toml:"restore_session"`
}

// DefaultSettings returns the settings written into a fresh profile.
func DefaultSettings() Settings {
	return Settings{
		Homepage:     "about:blank",
		Language:     "en-US",
		SearchEngine: "default",
		BlockedHosts: []string{},
	}
}

// Preferences is the preferences document stored in prefs.yaml.
type Preferences struct {
	Theme       string            `yaml:"theme"`
	FontSize    int               `yaml:"font_size"`
	ZoomPercent int               `yaml:"zoom_percent"`
	Extras      map[string]string `yaml:"extras,omitempty"`
}

// DefaultPreferences returns the preferences written into a fresh profile.
func DefaultPreferences() Preferences {
	return Preferences{
		Theme:       "system",
		FontSize:    16,
		ZoomPercent: 100,
	}
}

// Validate reports every invalid preference at once.
func (p Preferences) Validate() error {
	var errs []error
	if p.FontSize <= 0 {
		errs = append(errs, fmt.Errorf("font_size must be positive, got %d", p.FontSize))
	}
	if p.ZoomPercent < 25 || p.ZoomPercent > 500 {
		errs = append(errs, fmt.Errorf("zoom_percent must be within [25, 500], got %d", p.ZoomPercent))
	}
	return errors.Join(errs...)
}

// DecodeSettings parses a settings.toml document. Unknown keys are rejected.
func DecodeSettings(data []byte) (Settings, error) {
	var s Settings
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	return s, nil
}

// DecodePreferences parses a prefs.yaml document and validates it.
func DecodePreferences(data []byte) (Preferences, error) {
	var p Preferences
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Preferences{}, fmt.Errorf("decode preferences: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Preferences{}, fmt.Errorf("invalid preferences: %w", err)
	}
	return p, nil
}

func encodeSettings(s Settings) ([]byte, error) {
	data, err := toml.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode settings: %w", err)
	}
	return data, nil
}

func encodePreferences(p Preferences) ([]byte, error) {
	data, err := yaml.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode preferences: %w", err)
	}
	return data, nil
}
