// Package adminapi serves the HTTP admin surface of `prealloc serve`:
// acquiring and retiring warm processes, listing slots, health and metrics.
package adminapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/giantswarm/prealloc"
)

// Pool is the subset of prealloc.Manager the admin API drives.
type Pool interface {
	Acquire(ctx context.Context) (prealloc.Process, error)
	Stats() prealloc.Stats
}

// MemoryFunc returns the resident set size of pid in bytes.
type MemoryFunc func(ctx context.Context, pid int) (uint64, error)

// Config wires a Server.
type Config struct {
	Pool Pool
	// Gatherer backs /metrics. Nil serves the default registry.
	Gatherer prometheus.Gatherer
	// Memory samples worker RSS for /v1/slots. Nil uses ProcessRSS.
	Memory MemoryFunc
	Logger *slog.Logger
}

// Server tracks the processes it handed out so they can be retired by id.
type Server struct {
	pool     Pool
	gatherer prometheus.Gatherer
	memory   MemoryFunc
	log      *slog.Logger

	mu        sync.Mutex
	handedOut map[string]prealloc.Process
}

// New returns a Server. Panics if cfg.Pool is nil.
func New(cfg Config) *Server {
	if cfg.Pool == nil {
		panic("prealloc: admin api pool must not be nil")
	}
	s := &Server{
		pool:      cfg.Pool,
		gatherer:  cfg.Gatherer,
		memory:    cfg.Memory,
		log:       cfg.Logger,
		handedOut: make(map[string]prealloc.Process),
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	if s.memory == nil {
		s.memory = ProcessRSS
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/slots", s.listSlots)
		r.Post("/processes", s.acquire)
		r.Get("/processes/{id}", s.getProcess)
		r.Delete("/processes/{id}", s.retire)
	})
	return r
}

// RetireAll retires every process still handed out. Errors are joined.
func (s *Server) RetireAll() error {
	s.mu.Lock()
	procs := s.handedOut
	s.handedOut = make(map[string]prealloc.Process)
	s.mu.Unlock()

	var errs []error
	for _, p := range procs {
		if err := p.Retire(); err != nil && !errors.Is(err, prealloc.ErrProcessRetired) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// processResponse describes a handed-out process.
type processResponse struct {
	ID              string   `json:"id"`
	PID             int      `json:"pid"`
	DataDir         string   `json:"data_dir"`
	Warmed          []string `json:"warmed"`
	WarmupMillis    int64    `json:"warmup_ms"`
	WarmupSucceeded bool     `json:"warmup_ok"`
}

func newProcessResponse(p prealloc.Process) processResponse {
	report := p.Report()
	return processResponse{
		ID:              p.ID(),
		PID:             p.PID(),
		DataDir:         p.DataDir(),
		Warmed:          p.Warmed(),
		WarmupMillis:    report.Duration.Milliseconds(),
		WarmupSucceeded: report.OK(),
	}
}

func (s *Server) acquire(w http.ResponseWriter, r *http.Request) {
	p, err := s.pool.Acquire(r.Context())
	switch {
	case errors.Is(err, prealloc.ErrAcquireTimeout),
		errors.Is(err, prealloc.ErrShuttingDown),
		errors.Is(err, prealloc.ErrNotInitialized):
		writeJSONError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.mu.Lock()
	s.handedOut[p.ID()] = p
	s.mu.Unlock()

	s.log.Info("process handed out", "slot", p.ID(), "pid", p.PID())
	writeJSON(w, http.StatusCreated, newProcessResponse(p))
}

func (s *Server) getProcess(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	p, ok := s.handedOut[id]
	s.mu.Unlock()
	if !ok {
		writeJSONError(w, http.StatusNotFound, "unknown process "+id)
		return
	}
	writeJSON(w, http.StatusOK, newProcessResponse(p))
}

func (s *Server) retire(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	p, ok := s.handedOut[id]
	delete(s.handedOut, id)
	s.mu.Unlock()
	if !ok {
		writeJSONError(w, http.StatusNotFound, "unknown process "+id)
		return
	}

	if err := p.Retire(); err != nil && !errors.Is(err, prealloc.ErrProcessRetired) {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.log.Info("process retired", "slot", id)
	w.WriteHeader(http.StatusNoContent)
}

// slotResponse is a SlotInfo plus sampled memory.
type slotResponse struct {
	prealloc.SlotInfo
	RSSBytes uint64 `json:"rss_bytes,omitempty"`
}

type slotsResponse struct {
	Target  int            `json:"target"`
	Pending int            `json:"pending"`
	Slots   []slotResponse `json:"slots"`
}

func (s *Server) listSlots(w http.ResponseWriter, r *http.Request) {
	stats := s.pool.Stats()

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := slotsResponse{
		Target:  stats.Target,
		Pending: stats.Pending,
		Slots:   make([]slotResponse, 0, len(stats.Slots)),
	}
	for _, info := range stats.Slots {
		sr := slotResponse{SlotInfo: info}
		if info.PID > 0 {
			rss, err := s.memory(ctx, info.PID)
			if err != nil {
				s.log.Debug("failed to sample worker memory", "slot", info.ID, "pid", info.PID, "error", err)
			} else {
				sr.RSSBytes = rss
			}
		}
		resp.Slots = append(resp.Slots, sr)
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
		"code":  status,
	})
}
