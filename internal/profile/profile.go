package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/giantswarm/prealloc/internal/fileutil"
)

// File names inside a profile directory.
const (
	DatabaseFile    = "profile.db"
	SettingsFile    = "settings.toml"
	PreferencesFile = "prefs.yaml"
	readyMarker     = ".ready"
	lockFile        = ".lock"
)

// Paths locates the files of a profile rooted at Dir.
type Paths struct {
	Dir string
}

// Database returns the path of the SQLite profile database.
func (p Paths) Database() string { return filepath.Join(p.Dir, DatabaseFile) }

// Settings returns the path of the settings document.
func (p Paths) Settings() string { return filepath.Join(p.Dir, SettingsFile) }

// Preferences returns the path of the preferences document.
func (p Paths) Preferences() string { return filepath.Join(p.Dir, PreferencesFile) }

func (p Paths) ready() string { return filepath.Join(p.Dir, readyMarker) }
func (p Paths) lock() string  { return filepath.Join(p.Dir, lockFile) }

// Config holds configuration for profile bootstrap.
type Config struct {
	Dir         string        // Profile directory, created if missing
	Settings    *Settings     // Settings for a fresh profile (nil uses DefaultSettings)
	Preferences *Preferences  // Preferences for a fresh profile (nil uses DefaultPreferences)
	Timeout     time.Duration // Upper bound on lock wait plus creation (zero means no bound)
	Logger      *slog.Logger  // Logger for operational messages (nil uses slog.Default)
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c Config) validate() error {
	if c.Dir == "" {
		return errors.New("profile dir must not be empty")
	}
	if c.Timeout < 0 {
		return errors.New("timeout must not be negative")
	}
	if c.Preferences != nil {
		if err := c.Preferences.Validate(); err != nil {
			return fmt.Errorf("preferences: %w", err)
		}
	}
	return nil
}

// Result describes the profile after Ensure.
type Result struct {
	Paths   Paths
	Created bool // true if this call created the profile
}

// Ensure makes sure a complete profile exists in cfg.Dir and creates it if
// not. Concurrent callers, in this process or others, serialize on a file
// lock; only one of them creates the profile.
func Ensure(ctx context.Context, cfg Config) (*Result, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger := cfg.logger()
	paths := Paths{Dir: cfg.Dir}

	if ok, err := isReady(paths); err != nil {
		return nil, err
	} else if ok {
		logger.Debug("using existing profile", "dir", cfg.Dir)
		return &Result{Paths: paths}, nil
	}

	if err := fileutil.EnsureDir(cfg.Dir); err != nil {
		return nil, err
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	logger.Debug("acquiring profile lock", "lock_path", paths.lock())
	lock, err := acquireFileLock(ctx, paths.lock())
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	defer releaseFileLock(logger, lock)

	// Another process may have finished the profile while we waited.
	if ok, err := isReady(paths); err != nil {
		return nil, err
	} else if ok {
		logger.Info("using existing profile (created while waiting)", "dir", cfg.Dir)
		return &Result{Paths: paths}, nil
	}

	start := time.Now()
	if err := create(ctx, cfg, paths); err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}
	logger.Info("profile created", "dir", cfg.Dir, "elapsed", time.Since(start).Round(time.Millisecond))
	return &Result{Paths: paths, Created: true}, nil
}

func isReady(paths Paths) (bool, error) {
	_, err := os.Stat(paths.ready())
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat %s: %w", paths.ready(), err)
	}
}

// create writes the database schema and the default documents, then the
// ready marker. Documents that already exist are left alone so a profile
// interrupted mid-creation keeps any edits made to them.
func create(ctx context.Context, cfg Config, paths Paths) error {
	db, err := Open(paths.Database())
	if err != nil {
		return err
	}
	schemaErr := createSchema(ctx, db)
	if closeErr := db.Close(); closeErr != nil && schemaErr == nil {
		schemaErr = fmt.Errorf("close sqlite: %w", closeErr)
	}
	if schemaErr != nil {
		return schemaErr
	}

	settings := DefaultSettings()
	if cfg.Settings != nil {
		settings = *cfg.Settings
	}
	settingsData, err := encodeSettings(settings)
	if err != nil {
		return err
	}
	if _, err := fileutil.WriteFileIfMissing(paths.Settings(), settingsData, 0o644); err != nil {
		return err
	}

	prefs := DefaultPreferences()
	if cfg.Preferences != nil {
		prefs = *cfg.Preferences
	}
	prefsData, err := encodePreferences(prefs)
	if err != nil {
		return err
	}
	if _, err := fileutil.WriteFileIfMissing(paths.Preferences(), prefsData, 0o644); err != nil {
		return err
	}

	return fileutil.WriteFileAtomic(paths.ready(), []byte(time.Now().UTC().Format(time.RFC3339)+"\n"), 0o644)
}
