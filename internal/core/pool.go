package core

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/giantswarm/prealloc/internal/fileutil"
	"github.com/giantswarm/prealloc/internal/sentinel"
	"github.com/giantswarm/prealloc/internal/spawn"
	"github.com/giantswarm/prealloc/internal/warmer"
	"golang.org/x/sync/errgroup"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/utils/clock"
)

// ErrPoolClosed is returned when the pool was closed, for example during
// shutdown.
const ErrPoolClosed = sentinel.Error("pool is closed")

// ErrAcquireTimeout is returned by Acquire when no warm worker became
// available before the context was done. The context error is wrapped too.
const ErrAcquireTimeout = sentinel.Error("no warm process available before the deadline")

// ErrProcessRetired is returned by Retire on a slot that is already retired.
const ErrProcessRetired = sentinel.Error("process already retired")

// ErrNotHandedOut is returned by Retire on a slot that was never acquired.
const ErrNotHandedOut = sentinel.Error("process was not handed out")

// PoolConfig configures a Pool.
type PoolConfig struct {
	Size           int
	Spawner        spawn.Spawner
	DataDir        string // parent of the per-slot directories
	ProfileDir     string
	WarmTimeout    time.Duration
	StopTimeout    time.Duration
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	Metrics        *Metrics           // nil creates unregistered collectors
	Clock          clock.PassiveClock // slot timestamps; nil uses the wall clock
}

func (c PoolConfig) validate() error {
	var errs []error
	if c.Size < 1 {
		errs = append(errs, fmt.Errorf("size must be at least 1, got %d", c.Size))
	}
	if c.Spawner == nil {
		errs = append(errs, errors.New("spawner must not be nil"))
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("data dir must not be empty"))
	}
	if c.WarmTimeout <= 0 {
		errs = append(errs, errors.New("warm timeout must be positive"))
	}
	if c.StopTimeout <= 0 {
		errs = append(errs, errors.New("stop timeout must be positive"))
	}
	if c.BackoffInitial <= 0 || c.BackoffMax < c.BackoffInitial {
		errs = append(errs, fmt.Errorf("invalid backoff range [%s, %s]", c.BackoffInitial, c.BackoffMax))
	}
	return errors.Join(errs...)
}

// Pool keeps Size workers forking, warming or warm and hands warm ones out
// in the order they became ready. Every handout, failure or idle crash
// schedules a replacement; consecutive failures delay it with exponential
// backoff.
//
// It is safe for concurrent use by multiple goroutines.
type Pool struct {
	cfg     PoolConfig
	clock   clock.PassiveClock
	metrics *Metrics

	// mu guards every field below and the mutable fields of each Slot.
	mu sync.Mutex
	// slots holds every non-terminal slot.
	slots map[string]*Slot
	// idle is the FIFO of warm-idle slots.
	idle    []*Slot
	nextIdx int
	// pending counts replacement spawns scheduled but not yet registered.
	pending int
	closed  bool
	// changed is closed and replaced on every state change; Acquire waits
	// on it.
	changed chan struct{}
	backoff *backoff.ExponentialBackOff

	// ctx is canceled by Close and bounds every background operation.
	ctx    context.Context
	cancel context.CancelFunc
	// wg tracks replenish and watch goroutines. Add is only called under mu
	// while the pool is open.
	wg sync.WaitGroup
}

// NewPool creates an empty pool. Call Fill to spawn the initial workers.
// Panics if cfg is invalid.
func NewPool(cfg PoolConfig) *Pool {
	if err := cfg.validate(); err != nil {
		panic(fmt.Sprintf("prealloc: invalid pool config: %v", err))
	}

	c := cfg.Clock
	if c == nil {
		c = clock.RealClock{}
	}
	m := cfg.Metrics
	if m == nil {
		m = NewMetrics(nil)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.BackoffInitial
	b.MaxInterval = cfg.BackoffMax
	b.Reset()

	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		cfg:     cfg,
		clock:   c,
		metrics: m,
		slots:   make(map[string]*Slot, cfg.Size),
		idle:    make([]*Slot, 0, cfg.Size),
		changed: make(chan struct{}),
		backoff: b,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// genID generates a random 8-character hex ID for slot naming.
func genID() string {
	return fmt.Sprintf(
		"%08x",
		rand.Uint32(), //nolint:gosec // G404: slot IDs need uniqueness, not cryptographic strength
	)
}

// Fill spawns workers until the pool holds Size live slots. Spawns run
// concurrently; Fill returns once every worker was started, without waiting
// for warm-up. The first spawn error is returned.
func (p *Pool) Fill(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	deficit := p.cfg.Size - p.liveLocked() - p.pending
	slots := make([]*Slot, 0, max(deficit, 0))
	for range deficit {
		slots = append(slots, p.newSlotLocked())
	}
	p.notifyLocked()
	p.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range slots {
		g.Go(func() error {
			return p.start(gctx, s)
		})
	}
	return g.Wait()
}

// Acquire hands out the longest-waiting warm worker, blocking until one is
// available, the pool closes, or ctx is done. Each slot is handed out at
// most once and a failed slot never is.
func (p *Pool) Acquire(ctx context.Context) (*Slot, error) {
	if err := ctx.Err(); err != nil {
		p.metrics.acquireTimeouts.Inc()
		return nil, fmt.Errorf("%w: %w", ErrAcquireTimeout, err)
	}

	start := time.Now()
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}
		if len(p.idle) > 0 {
			s := p.idle[0]
			p.idle[0] = nil
			p.idle = p.idle[1:]
			s.setStateLocked(SlotSpecializing)
			p.replenishLocked(0)
			p.notifyLocked()
			p.mu.Unlock()

			p.metrics.acquireWait.Observe(time.Since(start).Seconds())
			s.log.Info("worker handed out")
			return s, nil
		}
		changed := p.changed
		p.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			p.metrics.acquireTimeouts.Inc()
			return nil, fmt.Errorf("%w: %w", ErrAcquireTimeout, ctx.Err())
		}
	}
}

// ReportReady records a successful warm-up for slotID. Reports for unknown
// slots, or slots no longer warming, are ignored. A report that does not
// show every subsystem warmed and the surface created is handled as failed.
func (p *Pool) ReportReady(slotID string, r warmer.Report) {
	if !r.OK() {
		p.ReportFailed(slotID, r)
		return
	}

	p.mu.Lock()
	s, ok := p.slots[slotID]
	if !ok || s.state != SlotWarming {
		p.mu.Unlock()
		Logger().Debug("ignoring ready report", "slot", slotID)
		return
	}
	s.report = &r
	s.warmed = sets.New(r.Warmed()...)
	s.setStateLocked(SlotWarmIdle)
	p.idle = append(p.idle, s)
	p.backoff.Reset()
	p.notifyLocked()
	p.mu.Unlock()

	p.metrics.warmups.WithLabelValues(outcomeReady).Inc()
	p.metrics.warmDuration.Observe(r.Duration.Seconds())
	s.log.Info("worker warm", "subsystems", len(r.Outcomes), "duration", r.Duration)
}

// ReportFailed records a failed warm-up for slotID, discards the slot and
// schedules a replacement. Reports for slots no longer warming are ignored.
func (p *Pool) ReportFailed(slotID string, r warmer.Report) {
	p.mu.Lock()
	s, ok := p.slots[slotID]
	p.mu.Unlock()
	if !ok {
		Logger().Debug("ignoring failed report", "slot", slotID)
		return
	}
	p.fail(s, &r, outcomeFailed)
}

// Stats returns a snapshot of every live or handed-out slot, oldest first.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	st := Stats{
		Target:  p.cfg.Size,
		Pending: p.pending,
		Slots:   make([]SlotInfo, 0, len(p.slots)),
	}
	for _, s := range p.slots {
		st.Slots = append(st.Slots, s.infoLocked())
	}
	p.mu.Unlock()

	sortSlotInfos(st.Slots)
	return st
}

// Close stops handing out workers and spawning replacements, and wakes
// every blocked Acquire with ErrPoolClosed. Workers keep running; see
// Shutdown. Safe to call multiple times.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.idle = nil
	p.notifyLocked()
	p.mu.Unlock()
	p.cancel()
}

// Shutdown closes the pool, then retires and stops every worker
// concurrently, including handed-out ones. It waits up to drainTimeout for
// background goroutines and returns the joined stop errors.
func (p *Pool) Shutdown(drainTimeout time.Duration) error {
	p.Close()

	p.mu.Lock()
	type victim struct {
		slot   *Slot
		handle spawn.Handle
	}
	victims := make([]victim, 0, len(p.slots))
	for _, s := range p.slots {
		if s.state == SlotSpecializing {
			s.log.Warn("stopping worker that is still handed out")
		}
		s.setStateLocked(SlotRetired)
		victims = append(victims, victim{slot: s, handle: s.handle})
	}
	clear(p.slots)
	p.notifyLocked()
	p.mu.Unlock()

	errs := make([]error, len(victims))
	var wg sync.WaitGroup
	for idx, v := range victims {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[idx] = p.stopHandle(v.slot, v.handle, true)
		}()
	}
	wg.Wait()

	drained := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(drained)
	}()
	timer := time.NewTimer(drainTimeout)
	defer timer.Stop()
	select {
	case <-drained:
	case <-timer.C:
		Logger().Warn("shutdown: timed out waiting for background pool goroutines; proceeding",
			"timeout", drainTimeout)
	}

	return errors.Join(errs...)
}

// newSlotLocked registers a fresh forking slot.
func (p *Pool) newSlotLocked() *Slot {
	idx := p.nextIdx
	p.nextIdx++
	id := fmt.Sprintf("slot-%d-%s", idx, genID())
	s := newSlot(p, id, filepath.Join(p.cfg.DataDir, id), p.clock.Now())
	p.slots[id] = s
	return s
}

func (p *Pool) liveLocked() int {
	n := 0
	for _, s := range p.slots {
		if s.state.live() {
			n++
		}
	}
	return n
}

// notifyLocked wakes every Acquire waiter and refreshes the slot gauge.
func (p *Pool) notifyLocked() {
	close(p.changed)
	p.changed = make(chan struct{})

	counts := make(map[SlotState]int, 4)
	for _, s := range p.slots {
		counts[s.state]++
	}
	p.metrics.setSlotCounts(counts)
}

// replenishLocked schedules enough spawns, each after delay, to bring the
// live slots back to Size.
func (p *Pool) replenishLocked(delay time.Duration) {
	if p.closed {
		return
	}
	for range p.cfg.Size - p.liveLocked() - p.pending {
		p.pending++
		p.wg.Add(1)
		go p.replenish(delay)
	}
}

func (p *Pool) replenish(delay time.Duration) {
	defer p.wg.Done()

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-p.ctx.Done():
			p.mu.Lock()
			p.pending--
			p.mu.Unlock()
			return
		}
	}

	p.mu.Lock()
	p.pending--
	if p.closed {
		p.mu.Unlock()
		return
	}
	s := p.newSlotLocked()
	p.notifyLocked()
	p.mu.Unlock()

	if err := p.start(p.ctx, s); err != nil {
		p.mu.Lock()
		p.replenishLocked(p.backoff.NextBackOff())
		p.mu.Unlock()
	}
}

// start spawns the worker for a forking slot and begins watching it.
func (p *Pool) start(ctx context.Context, s *Slot) error {
	if err := fileutil.EnsureDir(s.dataDir); err != nil {
		p.spawnFailed(s, err)
		return err
	}

	h, err := p.cfg.Spawner.Spawn(ctx, spawn.Request{
		SlotID:     s.id,
		DataDir:    s.dataDir,
		ProfileDir: p.cfg.ProfileDir,
		Logger:     s.log,
	})
	if err != nil {
		p.spawnFailed(s, err)
		return fmt.Errorf("spawn slot %s: %w", s.id, err)
	}

	p.mu.Lock()
	if p.closed || s.state != SlotForking {
		p.mu.Unlock()
		// Shutdown already retired the slot while it was forking.
		_ = p.stopHandle(s, h, true)
		return ErrPoolClosed
	}
	s.handle = h
	s.setStateLocked(SlotWarming)
	p.notifyLocked()
	p.wg.Add(1)
	p.mu.Unlock()

	s.log.Debug("worker spawned", "pid", h.PID())
	go p.watch(s, h)
	return nil
}

func (p *Pool) spawnFailed(s *Slot, err error) {
	p.mu.Lock()
	if s.state == SlotForking {
		s.setStateLocked(SlotFailed)
		delete(p.slots, s.id)
		p.notifyLocked()
	}
	p.mu.Unlock()

	p.metrics.warmups.WithLabelValues(outcomeSpawn).Inc()
	s.log.Warn("failed to spawn worker", "error", err)
}

// watch waits for the slot's warm-up report within WarmTimeout, then keeps
// watching a warm worker for an unexpected exit.
func (p *Pool) watch(s *Slot, h spawn.Handle) {
	defer p.wg.Done()

	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.WarmTimeout)
	report, err := h.Report(ctx)
	cancel()
	if err != nil {
		if p.ctx.Err() != nil {
			return
		}
		if errors.Is(err, context.DeadlineExceeded) {
			s.log.Warn("worker missed warm timeout; killing", "timeout", p.cfg.WarmTimeout)
			p.fail(s, nil, outcomeTimeout)
		} else {
			s.log.Warn("worker produced no warm-up report", "error", err)
			p.fail(s, nil, outcomeFailed)
		}
		return
	}

	if report.SlotID != "" && report.SlotID != s.id {
		s.log.Warn("worker reported for another slot", "reported_slot", report.SlotID)
		p.fail(s, &report, outcomeFailed)
		return
	}
	if report.OK() {
		p.ReportReady(s.id, report)
	} else {
		p.ReportFailed(s.id, report)
	}

	select {
	case <-h.Exited():
		p.workerExited(s, h)
	case <-s.done:
	case <-p.ctx.Done():
	}
}

// fail discards a forking or warming slot and schedules a replacement after
// the next backoff delay.
func (p *Pool) fail(s *Slot, r *warmer.Report, outcome string) {
	p.mu.Lock()
	if s.state != SlotWarming && s.state != SlotForking {
		p.mu.Unlock()
		return
	}
	if r != nil {
		s.report = r
	}
	s.setStateLocked(SlotFailed)
	delete(p.slots, s.id)
	h := s.handle
	delay := p.backoff.NextBackOff()
	p.replenishLocked(delay)
	p.notifyLocked()
	p.mu.Unlock()

	p.metrics.warmups.WithLabelValues(outcome).Inc()
	args := []any{"outcome", outcome, "retry_in", delay}
	if r != nil {
		args = append(args, "error", r.Err())
	}
	s.log.Warn("worker discarded", args...)
	_ = p.stopHandle(s, h, false)
}

// workerExited retires a slot whose worker died on its own. A warm-idle
// slot is replaced; a handed-out one belongs to its caller and is not.
func (p *Pool) workerExited(s *Slot, h spawn.Handle) {
	p.mu.Lock()
	switch s.state {
	case SlotWarmIdle:
		p.idle = slices.DeleteFunc(p.idle, func(x *Slot) bool { return x == s })
		s.setStateLocked(SlotRetired)
		delete(p.slots, s.id)
		p.replenishLocked(0)
		p.notifyLocked()
		p.mu.Unlock()
		p.metrics.crashes.Inc()
		s.log.Warn("warm worker exited; replacing")
	case SlotSpecializing:
		s.setStateLocked(SlotRetired)
		delete(p.slots, s.id)
		p.notifyLocked()
		p.mu.Unlock()
		s.log.Info("handed-out worker exited")
	default:
		p.mu.Unlock()
		return
	}
	_ = p.stopHandle(s, h, true)
}

func (p *Pool) retire(s *Slot) error {
	p.mu.Lock()
	switch s.state {
	case SlotRetired:
		p.mu.Unlock()
		return ErrProcessRetired
	case SlotSpecializing:
	default:
		state := s.state
		p.mu.Unlock()
		return fmt.Errorf("retire slot %s in state %s: %w", s.id, state, ErrNotHandedOut)
	}
	s.setStateLocked(SlotRetired)
	delete(p.slots, s.id)
	h := s.handle
	p.notifyLocked()
	p.mu.Unlock()

	s.log.Info("worker retired")
	return p.stopHandle(s, h, true)
}

// stopHandle stops the worker. removeDir also deletes the slot directory;
// failed slots keep theirs so the worker logs can be inspected.
func (p *Pool) stopHandle(s *Slot, h spawn.Handle, removeDir bool) error {
	var err error
	if h != nil {
		if err = h.Stop(p.cfg.StopTimeout); err != nil {
			s.log.Warn("failed to stop worker", "error", err)
			err = fmt.Errorf("stop slot %s: %w", s.id, err)
		}
	}
	if removeDir {
		if rmErr := os.RemoveAll(s.dataDir); rmErr != nil {
			s.log.Debug("failed to remove slot dir", "dir", s.dataDir, "err", rmErr)
		}
	}
	return err
}
