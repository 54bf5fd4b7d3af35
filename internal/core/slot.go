package core

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/giantswarm/prealloc/internal/spawn"
	"github.com/giantswarm/prealloc/internal/warmer"
	"k8s.io/apimachinery/pkg/util/sets"
)

// SlotState is the lifecycle state of a pool slot.
type SlotState int

const (
	SlotForking      SlotState = iota // worker being spawned
	SlotWarming                       // worker running its warm-up pass
	SlotWarmIdle                      // warmed and waiting for a task
	SlotSpecializing                  // handed out to a caller
	SlotRetired                       // stopped by shutdown, crash or the caller
	SlotFailed                        // warm-up failed or timed out
)

// String returns the lower-case state name.
func (s SlotState) String() string {
	switch s {
	case SlotForking:
		return "forking"
	case SlotWarming:
		return "warming"
	case SlotWarmIdle:
		return "warm-idle"
	case SlotSpecializing:
		return "specializing"
	case SlotRetired:
		return "retired"
	case SlotFailed:
		return "failed"
	default:
		return fmt.Sprintf("SlotState(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s SlotState) Terminal() bool {
	return s == SlotRetired || s == SlotFailed
}

// live reports whether the slot counts towards the pool target.
func (s SlotState) live() bool {
	return s == SlotForking || s == SlotWarming || s == SlotWarmIdle
}

// Slot is the pool's record of one worker process. Fields below pool are
// guarded by pool.mu.
type Slot struct {
	id        string
	dataDir   string
	createdAt time.Time
	log       *slog.Logger
	pool      *Pool

	state  SlotState
	handle spawn.Handle
	warmed sets.Set[string]
	report *warmer.Report
	// done is closed when the slot reaches a terminal state.
	done chan struct{}
}

func newSlot(p *Pool, id, dataDir string, now time.Time) *Slot {
	return &Slot{
		id:        id,
		dataDir:   dataDir,
		createdAt: now,
		log:       slotLogger(id),
		pool:      p,
		state:     SlotForking,
		warmed:    sets.New[string](),
		done:      make(chan struct{}),
	}
}

// ID returns the slot identifier.
func (s *Slot) ID() string { return s.id }

// DataDir returns the slot's scratch directory.
func (s *Slot) DataDir() string { return s.dataDir }

// CreatedAt returns when the slot was created.
func (s *Slot) CreatedAt() time.Time { return s.createdAt }

// State returns the current slot state.
func (s *Slot) State() SlotState {
	s.pool.mu.Lock()
	defer s.pool.mu.Unlock()
	return s.state
}

// PID returns the worker's process id, or 0 before the worker was spawned.
func (s *Slot) PID() int {
	s.pool.mu.Lock()
	defer s.pool.mu.Unlock()
	if s.handle == nil {
		return 0
	}
	return s.handle.PID()
}

// Report returns the warm-up report. The bool is false until one arrived.
func (s *Slot) Report() (warmer.Report, bool) {
	s.pool.mu.Lock()
	defer s.pool.mu.Unlock()
	if s.report == nil {
		return warmer.Report{}, false
	}
	return *s.report, true
}

// Warmed returns the sorted names of the subsystems the worker warmed.
func (s *Slot) Warmed() []string {
	s.pool.mu.Lock()
	defer s.pool.mu.Unlock()
	return sets.List(s.warmed)
}

// Retire stops a handed-out worker. It returns ErrProcessRetired if the slot
// was already retired, and an error for slots that were never handed out.
func (s *Slot) Retire() error {
	return s.pool.retire(s)
}

// setStateLocked moves the slot to next. Callers hold pool.mu.
func (s *Slot) setStateLocked(next SlotState) {
	prev := s.state
	s.state = next
	if next.Terminal() && !prev.Terminal() {
		close(s.done)
	}
	s.log.Debug("slot state changed", "from", prev.String(), "to", next.String())
}

// SlotInfo is a point-in-time view of a slot.
type SlotInfo struct {
	ID        string    `json:"id"`
	State     string    `json:"state"`
	PID       int       `json:"pid,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Warmed    []string  `json:"warmed,omitempty"`
}

func (s *Slot) infoLocked() SlotInfo {
	info := SlotInfo{
		ID:        s.id,
		State:     s.state.String(),
		CreatedAt: s.createdAt,
		Warmed:    sets.List(s.warmed),
	}
	if s.handle != nil {
		info.PID = s.handle.PID()
	}
	return info
}

// Stats is a snapshot of the pool.
type Stats struct {
	Target  int        `json:"target"`
	Pending int        `json:"pending"` // replacement spawns not yet started
	Slots   []SlotInfo `json:"slots"`
}

// Count returns the number of slots in state.
func (s Stats) Count(state SlotState) int {
	name := state.String()
	n := 0
	for _, si := range s.Slots {
		if si.State == name {
			n++
		}
	}
	return n
}

func sortSlotInfos(infos []SlotInfo) {
	slices.SortFunc(infos, func(a, b SlotInfo) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
