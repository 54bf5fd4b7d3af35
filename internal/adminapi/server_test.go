package adminapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/giantswarm/prealloc"
)

type fakeProcess struct {
	id string

	mu      sync.Mutex
	retired int
}

func (p *fakeProcess) ID() string      { return p.id }
func (p *fakeProcess) PID() int        { return 4242 }
func (p *fakeProcess) DataDir() string { return "/data/" + p.id }
func (p *fakeProcess) Warmed() []string {
	return []string{"cookies", "storage"}
}

func (p *fakeProcess) Report() prealloc.Report {
	return prealloc.Report{SlotID: p.id, Duration: 1500 * time.Millisecond}
}

func (p *fakeProcess) retiredCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.retired
}

func (p *fakeProcess) Retire() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.retired++
	if p.retired > 1 {
		return prealloc.ErrProcessRetired
	}
	return nil
}

type fakePool struct {
	mu    sync.Mutex
	next  int
	err   error
	procs []*fakeProcess
	stats prealloc.Stats
}

func (f *fakePool) Acquire(context.Context) (prealloc.Process, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.next++
	p := &fakeProcess{id: fmt.Sprintf("slot-%d", f.next)}
	f.procs = append(f.procs, p)
	return p, nil
}

func (f *fakePool) Stats() prealloc.Stats { return f.stats }

func (f *fakePool) acquired() []*fakeProcess {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeProcess(nil), f.procs...)
}

func newTestServer(t *testing.T, pool *fakePool) (*Server, *httptest.Server) {
	t.Helper()
	s := New(Config{
		Pool:     pool,
		Gatherer: prometheus.NewRegistry(),
		Memory: func(_ context.Context, pid int) (uint64, error) {
			if pid == 1 {
				return 0, errors.New("gone")
			}
			return 1 << 20, nil
		},
	})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func do(t *testing.T, method, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestAcquireAndRetire(t *testing.T) {
	t.Parallel()

	pool := &fakePool{}
	_, ts := newTestServer(t, pool)

	resp := do(t, http.MethodPost, ts.URL+"/v1/processes")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST status = %d, want 201", resp.StatusCode)
	}
	var got processResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != "slot-1" || got.PID != 4242 || got.WarmupMillis != 1500 {
		t.Errorf("response = %+v", got)
	}

	if resp := do(t, http.MethodGet, ts.URL+"/v1/processes/slot-1"); resp.StatusCode != http.StatusOK {
		t.Errorf("GET status = %d, want 200", resp.StatusCode)
	}
	if resp := do(t, http.MethodDelete, ts.URL+"/v1/processes/slot-1"); resp.StatusCode != http.StatusNoContent {
		t.Errorf("DELETE status = %d, want 204", resp.StatusCode)
	}
	if n := pool.acquired()[0].retiredCount(); n != 1 {
		t.Errorf("retired = %d, want 1", n)
	}
	if resp := do(t, http.MethodDelete, ts.URL+"/v1/processes/slot-1"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("second DELETE status = %d, want 404", resp.StatusCode)
	}
}

func TestAcquireErrors(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		err  error
		want int
	}{
		"timeout":       {err: fmt.Errorf("acquire: %w", prealloc.ErrAcquireTimeout), want: http.StatusServiceUnavailable},
		"shutting_down": {err: prealloc.ErrShuttingDown, want: http.StatusServiceUnavailable},
		"other":         {err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, ts := newTestServer(t, &fakePool{err: tc.err})
			resp := do(t, http.MethodPost, ts.URL+"/v1/processes")
			if resp.StatusCode != tc.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tc.want)
			}
		})
	}
}

func TestListSlots(t *testing.T) {
	t.Parallel()

	pool := &fakePool{stats: prealloc.Stats{
		Target:  2,
		Pending: 1,
		Slots: []prealloc.SlotInfo{
			{ID: "a", State: "warm-idle", PID: 7},
			{ID: "b", State: "warming", PID: 1},
			{ID: "c", State: "forking"},
		},
	}}
	_, ts := newTestServer(t, pool)

	resp := do(t, http.MethodGet, ts.URL+"/v1/slots")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var got slotsResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Target != 2 || got.Pending != 1 || len(got.Slots) != 3 {
		t.Fatalf("response = %+v", got)
	}
	wantRSS := map[string]uint64{"a": 1 << 20, "b": 0, "c": 0}
	for _, s := range got.Slots {
		if s.RSSBytes != wantRSS[s.ID] {
			t.Errorf("slot %s rss = %d, want %d", s.ID, s.RSSBytes, wantRSS[s.ID])
		}
	}
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()

	_, ts := newTestServer(t, &fakePool{})
	for _, path := range []string{"/healthz", "/metrics"} {
		if resp := do(t, http.MethodGet, ts.URL+path); resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, resp.StatusCode)
		}
	}
}

func TestRetireAll(t *testing.T) {
	t.Parallel()

	pool := &fakePool{}
	s, ts := newTestServer(t, pool)
	for range 3 {
		do(t, http.MethodPost, ts.URL+"/v1/processes")
	}

	if err := s.RetireAll(); err != nil {
		t.Fatalf("RetireAll() error = %v", err)
	}
	for _, p := range pool.acquired() {
		if n := p.retiredCount(); n != 1 {
			t.Errorf("%s retired %d times, want 1", p.id, n)
		}
	}
	resp := do(t, http.MethodGet, ts.URL+"/v1/processes/slot-1")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET after RetireAll status = %d, want 404", resp.StatusCode)
	}
}

func TestNewPanicsWithoutPool(t *testing.T) {
	t.Parallel()

	defer func() {
		r := recover()
		if r == nil || !strings.Contains(fmt.Sprint(r), "pool must not be nil") {
			t.Fatalf("recover() = %v, want pool panic", r)
		}
	}()
	New(Config{})
}

func TestProcessRSS(t *testing.T) {
	t.Parallel()

	rss, err := ProcessRSS(context.Background(), os.Getpid())
	if err != nil {
		t.Skipf("process memory not readable here: %v", err)
	}
	if rss == 0 {
		t.Error("ProcessRSS(self) = 0, want > 0")
	}
	if _, err := ProcessRSS(context.Background(), 0); err == nil {
		t.Error("ProcessRSS(0) error = nil, want error")
	}
}
