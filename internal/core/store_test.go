package core

import (
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t0 time.Time) *fakeClock {
	return &fakeClock{now: t0}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func TestCreateCycleStartsActiveCycle(t *testing.T) {
	clock := newFakeClock(t0)
	store := NewCycleStore(WithClock(clock.Now))
	store.SetElapsedSeconds(17)

	cycle, err := store.CreateCycle(CreateCycleInput{Task: "write changelog", MinutesAmount: 5})
	if err != nil {
		t.Fatalf("create cycle: %v", err)
	}
	if cycle.ID == "" {
		t.Fatalf("expected id to be assigned")
	}
	if !cycle.StartDate.Equal(t0) {
		t.Fatalf("start date = %v, want %v", cycle.StartDate, t0)
	}
	if _, ok := cycle.FinishedDate(); ok {
		t.Fatalf("new cycle must not be finished")
	}
	if _, ok := cycle.InterruptedDate(); ok {
		t.Fatalf("new cycle must not be interrupted")
	}
	if id, ok := store.ActiveCycleID(); !ok || id != cycle.ID {
		t.Fatalf("active id = %q, want %q", id, cycle.ID)
	}
	if got := store.ElapsedSeconds(); got != 0 {
		t.Fatalf("elapsed = %d, want 0", got)
	}
	if got := len(store.Cycles()); got != 1 {
		t.Fatalf("expected 1 cycle, got %d", got)
	}
}

func TestCreateCycleTrimsTask(t *testing.T) {
	store := NewCycleStore()
	cycle, err := store.CreateCycle(CreateCycleInput{Task: "  review  ", MinutesAmount: 25})
	if err != nil {
		t.Fatalf("create cycle: %v", err)
	}
	if cycle.Task != "review" {
		t.Fatalf("task = %q, want review", cycle.Task)
	}
}

func TestCreateCycleRejectsInvalidInput(t *testing.T) {
	cases := []struct {
		name  string
		in    CreateCycleInput
		field string
	}{
		{name: "empty task", in: CreateCycleInput{Task: "", MinutesAmount: 10}, field: "task"},
		{name: "blank task", in: CreateCycleInput{Task: "   ", MinutesAmount: 10}, field: "task"},
		{name: "zero minutes", in: CreateCycleInput{Task: "task", MinutesAmount: 0}, field: "minutes_amount"},
		{name: "below minimum", in: CreateCycleInput{Task: "task", MinutesAmount: 4}, field: "minutes_amount"},
		{name: "above maximum", in: CreateCycleInput{Task: "task", MinutesAmount: 61}, field: "minutes_amount"},
		{name: "negative", in: CreateCycleInput{Task: "task", MinutesAmount: -5}, field: "minutes_amount"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := NewCycleStore()
			_, err := store.CreateCycle(tc.in)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Field != tc.field {
				t.Fatalf("field = %q, want %q", ve.Field, tc.field)
			}
			if len(store.Cycles()) != 0 {
				t.Fatalf("invalid input must not append a cycle")
			}
			if _, ok := store.ActiveCycleID(); ok {
				t.Fatalf("invalid input must not set an active cycle")
			}
		})
	}
}

func TestCreateCycleAcceptsBounds(t *testing.T) {
	store := NewCycleStore()
	for _, minutes := range []int{MinMinutesAmount, MaxMinutesAmount} {
		if _, err := store.CreateCycle(CreateCycleInput{Task: "bound", MinutesAmount: minutes}); err != nil {
			t.Fatalf("minutes %d: %v", minutes, err)
		}
	}
}

func TestInterruptActiveCycle(t *testing.T) {
	clock := newFakeClock(t0)
	store := NewCycleStore(WithClock(clock.Now))
	cycle, err := store.CreateCycle(CreateCycleInput{Task: "deep work", MinutesAmount: 10})
	if err != nil {
		t.Fatalf("create cycle: %v", err)
	}
	clock.Advance(42 * time.Second)

	ended, ok := store.InterruptActiveCycle()
	if !ok {
		t.Fatalf("expected interrupt to apply")
	}
	if ended.ID != cycle.ID {
		t.Fatalf("interrupted %q, want %q", ended.ID, cycle.ID)
	}
	at, ok := ended.InterruptedDate()
	if !ok || !at.Equal(t0.Add(42*time.Second)) {
		t.Fatalf("interrupted date = %v (%v), want %v", at, ok, t0.Add(42*time.Second))
	}
	if _, ok := ended.FinishedDate(); ok {
		t.Fatalf("interrupted cycle must not be finished")
	}
	if _, ok := store.ActiveCycleID(); ok {
		t.Fatalf("active id must be cleared")
	}
	if _, ok := store.ActiveCycle(); ok {
		t.Fatalf("active cycle must be absent")
	}
}

func TestInterruptWithoutActiveCycleIsNoop(t *testing.T) {
	store := NewCycleStore()
	if _, ok := store.InterruptActiveCycle(); ok {
		t.Fatalf("interrupt on empty store must be a no-op")
	}

	if _, err := store.CreateCycle(CreateCycleInput{Task: "a", MinutesAmount: 5}); err != nil {
		t.Fatalf("create cycle: %v", err)
	}
	store.InterruptActiveCycle()
	before := store.Snapshot()
	if _, ok := store.InterruptActiveCycle(); ok {
		t.Fatalf("second interrupt must be a no-op")
	}
	assertSameState(t, before, store.Snapshot())
}

func TestMarkFinishedIsIdempotent(t *testing.T) {
	clock := newFakeClock(t0)
	store := NewCycleStore(WithClock(clock.Now))
	if _, err := store.CreateCycle(CreateCycleInput{Task: "a", MinutesAmount: 5}); err != nil {
		t.Fatalf("create cycle: %v", err)
	}
	clock.Advance(5 * time.Minute)
	first, ok := store.MarkActiveCycleFinished()
	if !ok {
		t.Fatalf("expected finish to apply")
	}
	before := store.Snapshot()
	clock.Advance(time.Minute)
	if _, ok := store.MarkActiveCycleFinished(); ok {
		t.Fatalf("second finish must be a no-op")
	}
	assertSameState(t, before, store.Snapshot())
	at, _ := first.FinishedDate()
	if !at.Equal(t0.Add(5 * time.Minute)) {
		t.Fatalf("finished date = %v", at)
	}
}

func TestTerminalStateIsSticky(t *testing.T) {
	clock := newFakeClock(t0)
	store := NewCycleStore(WithClock(clock.Now))
	first, _ := store.CreateCycle(CreateCycleInput{Task: "first", MinutesAmount: 5})
	clock.Advance(10 * time.Second)
	store.InterruptActiveCycle()

	clock.Advance(10 * time.Second)
	store.MarkActiveCycleFinished()
	store.InterruptActiveCycle()
	if _, ok := store.FinishCycle(first.ID); ok {
		t.Fatalf("finishing an interrupted cycle must be rejected")
	}

	got, ok := store.Cycle(first.ID)
	if !ok {
		t.Fatalf("cycle missing from history")
	}
	if got.Status != CycleStatusInterrupted {
		t.Fatalf("status = %s, want interrupted", got.Status)
	}
	if !got.EndedAt.Equal(t0.Add(10 * time.Second)) {
		t.Fatalf("ended at moved to %v", got.EndedAt)
	}
}

func TestCreateWhileActiveInterruptsPrevious(t *testing.T) {
	clock := newFakeClock(t0)
	store := NewCycleStore(WithClock(clock.Now))
	var kinds []EventKind
	store.Subscribe(ListenerFunc(func(ev Event) { kinds = append(kinds, ev.Kind) }))

	first, _ := store.CreateCycle(CreateCycleInput{Task: "first", MinutesAmount: 5})
	clock.Advance(30 * time.Second)
	second, err := store.CreateCycle(CreateCycleInput{Task: "second", MinutesAmount: 5})
	if err != nil {
		t.Fatalf("create second: %v", err)
	}

	prev, _ := store.Cycle(first.ID)
	if prev.Status != CycleStatusInterrupted {
		t.Fatalf("previous cycle status = %s, want interrupted", prev.Status)
	}
	if id, _ := store.ActiveCycleID(); id != second.ID {
		t.Fatalf("active id = %q, want %q", id, second.ID)
	}
	want := []EventKind{EventCreated, EventInterrupted, EventCreated}
	if len(kinds) != len(want) {
		t.Fatalf("events = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("events = %v, want %v", kinds, want)
		}
	}
}

func TestHistoryIsAppendOnly(t *testing.T) {
	store := NewCycleStore()
	var ids []string
	for _, task := range []string{"a", "b", "c"} {
		c, err := store.CreateCycle(CreateCycleInput{Task: task, MinutesAmount: 5})
		if err != nil {
			t.Fatalf("create %s: %v", task, err)
		}
		ids = append(ids, c.ID)
	}
	store.InterruptActiveCycle()
	cycles := store.Cycles()
	if len(cycles) != len(ids) {
		t.Fatalf("expected %d cycles, got %d", len(ids), len(cycles))
	}
	for i, c := range cycles {
		if c.ID != ids[i] {
			t.Fatalf("cycle %d = %q, want %q", i, c.ID, ids[i])
		}
	}

	cycles[0].Task = "mutated"
	if got, _ := store.Cycle(ids[0]); got.Task != "a" {
		t.Fatalf("snapshot mutation leaked into store")
	}
}

func TestApplyElapsedIgnoresStaleCycle(t *testing.T) {
	store := NewCycleStore()
	first, _ := store.CreateCycle(CreateCycleInput{Task: "first", MinutesAmount: 5})
	second, _ := store.CreateCycle(CreateCycleInput{Task: "second", MinutesAmount: 5})

	if store.ApplyElapsed(first.ID, 120) {
		t.Fatalf("stale sample must be rejected")
	}
	if got := store.ElapsedSeconds(); got != 0 {
		t.Fatalf("elapsed = %d, want 0", got)
	}
	if !store.ApplyElapsed(second.ID, 3) {
		t.Fatalf("sample for active cycle must apply")
	}
	if got := store.ElapsedSeconds(); got != 3 {
		t.Fatalf("elapsed = %d, want 3", got)
	}
}

func TestSnapshotCountdown(t *testing.T) {
	store := NewCycleStore()
	if got := store.Countdown().Title(); got != "00:00" {
		t.Fatalf("idle countdown = %s, want 00:00", got)
	}
	store.CreateCycle(CreateCycleInput{Task: "a", MinutesAmount: 25})
	store.SetElapsedSeconds(61)
	snap := store.Snapshot()
	if snap.ActiveCycle == nil {
		t.Fatalf("expected active cycle in snapshot")
	}
	if got := snap.Countdown.Title(); got != "23:59" {
		t.Fatalf("countdown = %s, want 23:59", got)
	}
}

// Random operation sequences must never leave more than one running cycle, and
// the running cycle must always be the one the active pointer names.
func TestAtMostOneRunningCycle(t *testing.T) {
	clock := newFakeClock(t0)
	store := NewCycleStore(WithClock(clock.Now))
	rng := rand.New(rand.NewSource(7))
	terminal := make(map[string]Cycle)

	for i := 0; i < 500; i++ {
		clock.Advance(time.Duration(rng.Intn(90)) * time.Second)
		switch rng.Intn(5) {
		case 0:
			store.CreateCycle(CreateCycleInput{Task: "t", MinutesAmount: 5 + rng.Intn(56)})
		case 1:
			store.CreateCycle(CreateCycleInput{Task: "", MinutesAmount: rng.Intn(100)})
		case 2:
			store.InterruptActiveCycle()
		case 3:
			store.MarkActiveCycleFinished()
		case 4:
			store.SetElapsedSeconds(rng.Intn(3600))
		}

		snap := store.Snapshot()
		running := 0
		for _, c := range snap.Cycles {
			if c.IsTerminal() {
				if prev, seen := terminal[c.ID]; seen && (prev.Status != c.Status || !prev.EndedAt.Equal(c.EndedAt)) {
					t.Fatalf("terminal cycle %s changed: %+v -> %+v", c.ID, prev, c)
				}
				terminal[c.ID] = c
				if c.EndedAt.Before(c.StartDate) {
					t.Fatalf("cycle %s ended before it started", c.ID)
				}
				continue
			}
			running++
			if c.ID != snap.ActiveCycleID {
				t.Fatalf("running cycle %s is not the active cycle %q", c.ID, snap.ActiveCycleID)
			}
		}
		if running > 1 {
			t.Fatalf("step %d: %d running cycles", i, running)
		}
		if snap.ActiveCycleID != "" && running != 1 {
			t.Fatalf("step %d: active pointer set without a running cycle", i)
		}
	}
}

func assertSameState(t *testing.T, want, got State) {
	t.Helper()
	if want.ActiveCycleID != got.ActiveCycleID {
		t.Fatalf("active id changed: %q -> %q", want.ActiveCycleID, got.ActiveCycleID)
	}
	if want.ElapsedSeconds != got.ElapsedSeconds {
		t.Fatalf("elapsed changed: %d -> %d", want.ElapsedSeconds, got.ElapsedSeconds)
	}
	if len(want.Cycles) != len(got.Cycles) {
		t.Fatalf("cycle count changed: %d -> %d", len(want.Cycles), len(got.Cycles))
	}
	for i := range want.Cycles {
		if want.Cycles[i] != got.Cycles[i] {
			t.Fatalf("cycle %d changed: %+v -> %+v", i, want.Cycles[i], got.Cycles[i])
		}
	}
}
