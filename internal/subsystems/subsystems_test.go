package subsystems

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/giantswarm/prealloc/internal/profile"
	"github.com/giantswarm/prealloc/internal/registry"
)

func newProfile(t *testing.T) profile.Paths {
	t.Helper()

	res, err := profile.Ensure(context.Background(), profile.Config{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("profile.Ensure: %v", err)
	}
	return res.Paths
}

func TestSetWarmsInOrder(t *testing.T) {
	t.Parallel()

	set := NewSet(newProfile(t))
	t.Cleanup(func() { _ = set.Close() })

	r := registry.New()
	r.MustRegister(set.Descriptors()...)

	want := []string{StorageName, SettingsName, CookiesName, PreferencesName}
	names := r.Names()
	if len(names) != len(want) {
		t.Fatalf("Names() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, names[i], want[i])
		}
	}

	outcomes := r.WarmAll()
	if !registry.AllOK(outcomes) {
		t.Fatalf("WarmAll outcomes = %+v", outcomes)
	}
}

func TestAccessorsBeforeWarm(t *testing.T) {
	t.Parallel()

	set := NewSet(newProfile(t))

	if _, _, err := set.Storage.Get(context.Background(), "k"); !errors.Is(err, ErrNotWarmed) {
		t.Errorf("Storage.Get error = %v, want ErrNotWarmed", err)
	}
	if _, err := set.Settings.Document(); !errors.Is(err, ErrNotWarmed) {
		t.Errorf("Settings.Document error = %v, want ErrNotWarmed", err)
	}
	if _, err := set.Cookies.Jar(); !errors.Is(err, ErrNotWarmed) {
		t.Errorf("Cookies.Jar error = %v, want ErrNotWarmed", err)
	}
	if _, err := set.Preferences.Get(); !errors.Is(err, ErrNotWarmed) {
		t.Errorf("Preferences.Get error = %v, want ErrNotWarmed", err)
	}
}

func TestStoragePutGet(t *testing.T) {
	t.Parallel()

	s := NewStorage(newProfile(t).Database())
	if err := s.Warm(); err != nil {
		t.Fatalf("Warm: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	if _, ok, err := s.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("Get(missing) = %v, %v", ok, err)
	}
	if err := s.Put(ctx, "k", []byte("v1")); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, "k", []byte("v2")); err != nil {
		t.Fatal(err)
	}
	v, ok, err := s.Get(ctx, "k")
	if err != nil || !ok || string(v) != "v2" {
		t.Errorf("Get(k) = %q, %v, %v; want v2", v, ok, err)
	}
}

func TestSettingsOverrides(t *testing.T) {
	t.Parallel()

	paths := newProfile(t)
	db, err := profile.Open(paths.Database())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`INSERT INTO settings (name, value) VALUES ('language', 'de-DE')`); err != nil {
		t.Fatal(err)
	}
	_ = db.Close()

	s := NewSettings(paths)
	if err := s.Warm(); err != nil {
		t.Fatalf("Warm: %v", err)
	}
	doc, err := s.Document()
	if err != nil {
		t.Fatal(err)
	}
	if doc.Homepage != "about:blank" {
		t.Errorf("Homepage = %q", doc.Homepage)
	}
	ov, err := s.Overrides()
	if err != nil {
		t.Fatal(err)
	}
	if ov["language"] != "de-DE" {
		t.Errorf("overrides = %v", ov)
	}
}

func TestCookiesRestoreUnexpired(t *testing.T) {
	t.Parallel()

	paths := newProfile(t)
	db, err := profile.Open(paths.Database())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(StoreCookie(ctx, db, "example.com", &http.Cookie{Name: "session", Value: "abc"}))
	must(StoreCookie(ctx, db, "example.com", &http.Cookie{
		Name: "stale", Value: "old", Expires: time.Now().Add(-time.Hour),
	}))
	must(StoreCookie(ctx, db, "secure.example.org", &http.Cookie{
		Name: "token", Value: "t", Secure: true, Expires: time.Now().Add(time.Hour),
	}))
	_ = db.Close()

	c := NewCookies(paths.Database())
	if err := c.Warm(); err != nil {
		t.Fatalf("Warm: %v", err)
	}
	if c.Loaded() != 2 {
		t.Errorf("Loaded() = %d, want 2", c.Loaded())
	}

	jar, err := c.Jar()
	if err != nil {
		t.Fatal(err)
	}
	got := jar.Cookies(&url.URL{Scheme: "http", Host: "example.com", Path: "/"})
	if len(got) != 1 || got[0].Name != "session" {
		t.Errorf("example.com cookies = %v, want [session]", got)
	}
	got = jar.Cookies(&url.URL{Scheme: "https", Host: "secure.example.org", Path: "/"})
	if len(got) != 1 || got[0].Name != "token" {
		t.Errorf("secure.example.org cookies = %v, want [token]", got)
	}
}

func TestPreferencesWarmFailures(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		content *string
	}{
		"missing file": {},
		"invalid yaml": {content: ptr("theme: [unterminated\n")},
		"invalid zoom": {content: ptr("theme: dark\nfont_size: 12\nzoom_percent: 1\n")},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			paths := newProfile(t)
			if tc.content == nil {
				if err := os.Remove(paths.Preferences()); err != nil {
					t.Fatal(err)
				}
			} else if err := os.WriteFile(paths.Preferences(), []byte(*tc.content), 0o644); err != nil {
				t.Fatal(err)
			}

			p := NewPreferences(paths.Preferences())
			if err := p.Warm(); err == nil {
				t.Fatal("Warm succeeded")
			}
			if _, err := p.Get(); !errors.Is(err, ErrNotWarmed) {
				t.Errorf("Get error = %v, want ErrNotWarmed", err)
			}
		})
	}
}

func TestSetFailureIsAttributed(t *testing.T) {
	t.Parallel()

	paths := newProfile(t)
	if err := os.WriteFile(paths.Settings(), []byte("not toml ==="), 0o644); err != nil {
		t.Fatal(err)
	}

	set := NewSet(paths)
	t.Cleanup(func() { _ = set.Close() })
	r := registry.New()
	r.MustRegister(set.Descriptors()...)

	for _, o := range r.WarmAll() {
		wantOK := o.Name != SettingsName
		if o.OK() != wantOK {
			t.Errorf("outcome %s OK = %v, want %v (err %v)", o.Name, o.OK(), wantOK, o.Err)
		}
	}
}

func TestStorageWarmAfterCloseFails(t *testing.T) {
	t.Parallel()

	s := NewStorage(newProfile(t).Database())
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Warm(); !errors.Is(err, ErrClosed) {
		t.Errorf("Warm after Close error = %v, want ErrClosed", err)
	}
	if _, _, err := s.Get(context.Background(), "k"); !errors.Is(err, ErrNotWarmed) {
		t.Errorf("Get after Close error = %v, want ErrNotWarmed", err)
	}
}

func ptr(s string) *string { return &s }
