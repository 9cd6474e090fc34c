package core

import (
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// CycleStore owns the cycle history, the active cycle pointer and the elapsed
// counter. It is the only writer of cycle data; every mutation is applied under
// one lock so at most one cycle is running at any observable instant.
type CycleStore struct {
	clock  func() time.Time
	logger *slog.Logger

	// txMu serializes mutations together with their event delivery, so listeners
	// see transitions in the order they were applied.
	txMu sync.Mutex

	mu       sync.RWMutex
	cycles   []Cycle
	index    map[string]int
	activeID string
	elapsed  int

	listenerMu sync.RWMutex
	listeners  []Listener
}

// StoreOption customizes store construction.
type StoreOption func(*CycleStore)

// WithClock overrides the wall clock used for start and terminal timestamps.
func WithClock(clock func() time.Time) StoreOption {
	return func(s *CycleStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the logger used for transition traces.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *CycleStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewCycleStore constructs an empty store.
func NewCycleStore(opts ...StoreOption) *CycleStore {
	s := &CycleStore{
		clock:  func() time.Time { return time.Now().UTC() },
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		index:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers a listener for cycle events. Listeners run synchronously
// on the mutating goroutine and must not call back into store mutations.
func (s *CycleStore) Subscribe(l Listener) {
	if l == nil {
		return
	}
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	s.listeners = append(s.listeners, l)
}

// CreateCycle appends a new running cycle, makes it active and resets the
// elapsed counter. A cycle that is still running is interrupted first.
func (s *CycleStore) CreateCycle(in CreateCycleInput) (Cycle, error) {
	task, err := validateCreate(in)
	if err != nil {
		return Cycle{}, err
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	now := s.clock()
	var events []Event
	if ended, ok := s.endActiveLocked(CycleStatusInterrupted, now); ok {
		events = append(events, Event{Kind: EventInterrupted, Cycle: ended, ElapsedSeconds: s.elapsed})
	}
	cycle := Cycle{
		ID:            NewID(),
		Task:          task,
		MinutesAmount: in.MinutesAmount,
		StartDate:     now,
		Status:        CycleStatusRunning,
	}
	s.index[cycle.ID] = len(s.cycles)
	s.cycles = append(s.cycles, cycle)
	s.activeID = cycle.ID
	s.elapsed = 0
	events = append(events, Event{Kind: EventCreated, Cycle: cycle})
	s.mu.Unlock()

	s.logger.Debug("cycle created", "cycle_id", cycle.ID, "minutes", cycle.MinutesAmount)
	s.publish(events...)
	return cycle, nil
}

// InterruptActiveCycle stops the active cycle early. It reports false and leaves
// the state untouched when no cycle is active.
func (s *CycleStore) InterruptActiveCycle() (Cycle, bool) {
	return s.endActive(CycleStatusInterrupted, "")
}

// MarkActiveCycleFinished records natural completion of the active cycle. It is
// a no-op when no cycle is active, which makes repeated calls idempotent.
func (s *CycleStore) MarkActiveCycleFinished() (Cycle, bool) {
	return s.endActive(CycleStatusCompleted, "")
}

// FinishCycle completes the cycle only if id is still the active cycle.
func (s *CycleStore) FinishCycle(id string) (Cycle, bool) {
	if id == "" {
		return Cycle{}, false
	}
	return s.endActive(CycleStatusCompleted, id)
}

// SetElapsedSeconds overwrites the elapsed counter. Negative values clamp to 0.
func (s *CycleStore) SetElapsedSeconds(seconds int) {
	if seconds < 0 {
		seconds = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.elapsed = seconds
}

// ApplyElapsed overwrites the elapsed counter only if id is still the active
// cycle, so a sample taken for a stale cycle is dropped.
func (s *CycleStore) ApplyElapsed(id string, seconds int) bool {
	if seconds < 0 {
		seconds = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == "" || s.activeID != id {
		return false
	}
	s.elapsed = seconds
	return true
}

// Cycles returns a copy of the full history in insertion order.
func (s *CycleStore) Cycles() []Cycle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Cycle, len(s.cycles))
	copy(out, s.cycles)
	return out
}

// Cycle looks up a cycle by id.
func (s *CycleStore) Cycle(id string) (Cycle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.index[id]
	if !ok {
		return Cycle{}, false
	}
	return s.cycles[idx], true
}

// ActiveCycleID returns the id of the running cycle, if any.
func (s *CycleStore) ActiveCycleID() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID, s.activeID != ""
}

// ActiveCycle returns the running cycle, if any.
func (s *CycleStore) ActiveCycle() (Cycle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeLocked()
}

// ElapsedSeconds returns the elapsed counter of the active cycle.
func (s *CycleStore) ElapsedSeconds() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.elapsed
}

// Countdown derives the display digits for the active cycle. With no active
// cycle it shows 00:00.
func (s *CycleStore) Countdown() Countdown {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countdownLocked()
}

// Snapshot returns every read accessor taken under a single lock.
func (s *CycleStore) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := State{
		Cycles:         make([]Cycle, len(s.cycles)),
		ActiveCycleID:  s.activeID,
		ElapsedSeconds: s.elapsed,
		Countdown:      s.countdownLocked(),
	}
	copy(st.Cycles, s.cycles)
	if active, ok := s.activeLocked(); ok {
		st.ActiveCycle = &active
	}
	return st
}

func (s *CycleStore) endActive(status CycleStatus, expectID string) (Cycle, bool) {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	if expectID != "" && s.activeID != expectID {
		s.mu.Unlock()
		return Cycle{}, false
	}
	ended, ok := s.endActiveLocked(status, s.clock())
	elapsed := s.elapsed
	s.mu.Unlock()
	if !ok {
		return Cycle{}, false
	}

	kind := EventInterrupted
	if status == CycleStatusCompleted {
		kind = EventFinished
	}
	s.logger.Debug("cycle ended", "cycle_id", ended.ID, "status", ended.Status, "elapsed", elapsed)
	s.publish(Event{Kind: kind, Cycle: ended, ElapsedSeconds: elapsed})
	return ended, true
}

// endActiveLocked moves the active cycle into a terminal status and clears the
// active pointer. Terminal cycles are never touched again.
func (s *CycleStore) endActiveLocked(status CycleStatus, at time.Time) (Cycle, bool) {
	if s.activeID == "" {
		return Cycle{}, false
	}
	idx, ok := s.index[s.activeID]
	s.activeID = ""
	if !ok || s.cycles[idx].IsTerminal() {
		return Cycle{}, false
	}
	cycle := &s.cycles[idx]
	if at.Before(cycle.StartDate) {
		at = cycle.StartDate
	}
	cycle.Status = status
	cycle.EndedAt = at
	return *cycle, true
}

func (s *CycleStore) activeLocked() (Cycle, bool) {
	if s.activeID == "" {
		return Cycle{}, false
	}
	idx, ok := s.index[s.activeID]
	if !ok {
		return Cycle{}, false
	}
	return s.cycles[idx], true
}

func (s *CycleStore) countdownLocked() Countdown {
	active, ok := s.activeLocked()
	if !ok {
		return DeriveCountdown(0, 0)
	}
	return DeriveCountdown(active.TargetSeconds(), s.elapsed)
}

func (s *CycleStore) publish(events ...Event) {
	s.listenerMu.RLock()
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.listenerMu.RUnlock()
	for _, ev := range events {
		for _, l := range listeners {
			l.HandleCycleEvent(ev)
		}
	}
}

func validateCreate(in CreateCycleInput) (string, error) {
	task := strings.TrimSpace(in.Task)
	if task == "" {
		return "", &ValidationError{Field: "task", Message: "task is required"}
	}
	if in.MinutesAmount < MinMinutesAmount || in.MinutesAmount > MaxMinutesAmount {
		return "", &ValidationError{
			Field:   "minutes_amount",
			Message: "must be between 5 and 60 minutes",
		}
	}
	return task, nil
}
