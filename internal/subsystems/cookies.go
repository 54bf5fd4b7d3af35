package subsystems

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"github.com/giantswarm/prealloc/internal/profile"
	"github.com/giantswarm/prealloc/internal/registry"
	"golang.org/x/net/publicsuffix"
)

// CookiesName is the registry name of the cookie subsystem.
const CookiesName = "cookies"

// Cookies is a cookie jar restored from the cookies table of the profile
// database. Expired rows are skipped.
type Cookies struct {
	path string

	mu     sync.Mutex
	jar    *cookiejar.Jar
	loaded int
}

// NewCookies returns a cookie subsystem over the profile database at path.
func NewCookies(path string) *Cookies {
	return &Cookies{path: path}
}

// Descriptor returns the registry descriptor for c.
func (c *Cookies) Descriptor() registry.Descriptor {
	return registry.Descriptor{Name: CookiesName, Warm: c.Warm}
}

// Warm builds the jar and loads every unexpired persisted cookie into it.
func (c *Cookies) Warm() error {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return fmt.Errorf("create cookie jar: %w", err)
	}

	db, err := profile.Open(c.path)
	if err != nil {
		return err
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	n, err := loadCookies(context.Background(), db, jar, time.Now())
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.jar = jar
	c.loaded = n
	return nil
}

// Jar returns the warmed cookie jar.
func (c *Cookies) Jar() (http.CookieJar, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.jar == nil {
		return nil, ErrNotWarmed
	}
	return c.jar, nil
}

// Loaded returns the number of cookies restored during Warm.
func (c *Cookies) Loaded() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

// StoreCookie persists ck for host. A zero Expires stores a session cookie.
func StoreCookie(ctx context.Context, db *sql.DB, host string, ck *http.Cookie) error {
	path := ck.Path
	if path == "" {
		path = "/"
	}
	var expires int64
	if !ck.Expires.IsZero() {
		expires = ck.Expires.Unix()
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO cookies (host, name, value, path, secure, http_only, expires)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(host, name, path) DO UPDATE SET
		   value = excluded.value, secure = excluded.secure,
		   http_only = excluded.http_only, expires = excluded.expires`,
		host, ck.Name, ck.Value, path, ck.Secure, ck.HttpOnly, expires)
	if err != nil {
		return fmt.Errorf("store cookie %s for %s: %w", ck.Name, host, err)
	}
	return nil
}

func loadCookies(ctx context.Context, db *sql.DB, jar *cookiejar.Jar, now time.Time) (int, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT host, name, value, path, secure, http_only, expires FROM cookies
		 WHERE expires = 0 OR expires > ?`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("query cookies table: %w", err)
	}
	defer rows.Close()

	byURL := make(map[string][]*http.Cookie)
	urls := make(map[string]*url.URL)
	n := 0
	for rows.Next() {
		var (
			host, name, value, path string
			secure, httpOnly        bool
			expires                 int64
		)
		if err := rows.Scan(&host, &name, &value, &path, &secure, &httpOnly, &expires); err != nil {
			return 0, fmt.Errorf("scan cookie row: %w", err)
		}
		ck := &http.Cookie{Name: name, Value: value, Path: path, Secure: secure, HttpOnly: httpOnly}
		if expires > 0 {
			ck.Expires = time.Unix(expires, 0)
		}
		scheme := "http"
		if secure {
			scheme = "https"
		}
		key := scheme + "://" + host
		if _, ok := urls[key]; !ok {
			urls[key] = &url.URL{Scheme: scheme, Host: host, Path: "/"}
		}
		byURL[key] = append(byURL[key], ck)
		n++
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate cookies table: %w", err)
	}

	for key, cookies := range byURL {
		jar.SetCookies(urls[key], cookies)
	}
	return n, nil
}
