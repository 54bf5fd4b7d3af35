package profile

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestEnsureCreatesProfile(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "profile")
	res, err := Ensure(context.Background(), Config{Dir: dir})
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if !res.Created {
		t.Error("Created = false on fresh directory")
	}

	for _, p := range []string{res.Paths.Database(), res.Paths.Settings(), res.Paths.Preferences()} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("missing %s: %v", p, err)
		}
	}

	db, err := Open(res.Paths.Database())
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	for _, table := range []string{"kv", "settings", "cookies"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s: %v", table, err)
		}
	}

	data, err := os.ReadFile(res.Paths.Settings())
	if err != nil {
		t.Fatal(err)
	}
	s, err := DecodeSettings(data)
	if err != nil {
		t.Fatalf("DecodeSettings: %v", err)
	}
	if s.Homepage != "about:blank" {
		t.Errorf("Homepage = %q", s.Homepage)
	}

	data, err = os.ReadFile(res.Paths.Preferences())
	if err != nil {
		t.Fatal(err)
	}
	p, err := DecodePreferences(data)
	if err != nil {
		t.Fatalf("DecodePreferences: %v", err)
	}
	want := DefaultPreferences()
	if p.Theme != want.Theme || p.FontSize != want.FontSize || p.ZoomPercent != want.ZoomPercent {
		t.Errorf("preferences = %+v, want %+v", p, want)
	}
}

func TestEnsureReusesProfile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if _, err := Ensure(context.Background(), Config{Dir: dir}); err != nil {
		t.Fatal(err)
	}
	res, err := Ensure(context.Background(), Config{Dir: dir})
	if err != nil {
		t.Fatalf("second Ensure: %v", err)
	}
	if res.Created {
		t.Error("Created = true on existing profile")
	}
}

func TestEnsureConcurrent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	const callers = 8

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		errs    []error
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := Ensure(context.Background(), Config{Dir: dir})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if res.Created {
				created++
			}
		}()
	}
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("Ensure errors: %v", errs)
	}
	if created != 1 {
		t.Errorf("profile created %d times, want 1", created)
	}
}

func TestEnsureKeepsExistingDocuments(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	custom := "homepage = \"https://example.com\"\n"
	if err := os.WriteFile(filepath.Join(dir, SettingsFile), []byte(custom), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Ensure(context.Background(), Config{Dir: dir}); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(filepath.Join(dir, SettingsFile))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != custom {
		t.Errorf("settings overwritten: %q", got)
	}
}

func TestEnsureInvalidConfig(t *testing.T) {
	t.Parallel()

	tests := map[string]Config{
		"empty dir":        {},
		"negative timeout": {Dir: "x", Timeout: -1},
		"bad preferences":  {Dir: "x", Preferences: &Preferences{FontSize: 0, ZoomPercent: 100}},
	}

	for name, cfg := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := Ensure(context.Background(), cfg)
			if err == nil || !strings.Contains(err.Error(), "invalid config") {
				t.Errorf("error = %v, want invalid config", err)
			}
		})
	}
}

func TestDecodeSettingsRejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	if _, err := DecodeSettings([]byte("homepage = \"x\"\nbogus = 1\n")); err == nil {
		t.Error("DecodeSettings accepted an unknown key")
	}
}

func TestPreferencesValidate(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		prefs   Preferences
		wantErr []string
	}{
		"defaults":  {prefs: DefaultPreferences()},
		"font size": {prefs: Preferences{FontSize: 0, ZoomPercent: 100}, wantErr: []string{"font_size"}},
		"both": {
			prefs:   Preferences{FontSize: -1, ZoomPercent: 10},
			wantErr: []string{"font_size", "zoom_percent"},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			err := tc.prefs.Validate()
			if len(tc.wantErr) == 0 {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate returned nil")
			}
			for _, want := range tc.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error %q missing %q", err, want)
				}
			}
		})
	}
}
