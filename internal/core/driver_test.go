package core

import (
	"io"
	"log/slog"
	"testing"
	"time"
)

func newTestDriver(t *testing.T) (*CycleStore, *Driver, *fakeClock) {
	t.Helper()
	clock := newFakeClock(t0)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := NewCycleStore(WithClock(clock.Now), WithLogger(logger))
	driver := NewDriver(store, logger, WithDriverClock(clock.Now))
	store.Subscribe(driver)
	return store, driver, clock
}

func TestDriverCompletesCycleAtTarget(t *testing.T) {
	store, driver, clock := newTestDriver(t)
	cycle, err := store.CreateCycle(CreateCycleInput{Task: "write changelog", MinutesAmount: 5})
	if err != nil {
		t.Fatalf("create cycle: %v", err)
	}
	if attached, ok := driver.Attached(); !ok || attached.ID != cycle.ID {
		t.Fatalf("driver should attach to the new cycle")
	}

	clock.Advance(299 * time.Second)
	driver.Tick()
	if got := store.ElapsedSeconds(); got != 299 {
		t.Fatalf("elapsed = %d, want 299", got)
	}
	if got := store.Countdown().Title(); got != "00:01" {
		t.Fatalf("countdown = %s, want 00:01", got)
	}

	clock.Advance(time.Second)
	driver.Tick()
	finished, _ := store.Cycle(cycle.ID)
	at, ok := finished.FinishedDate()
	if !ok {
		t.Fatalf("expected cycle to be finished, status %s", finished.Status)
	}
	if !at.Equal(t0.Add(300 * time.Second)) {
		t.Fatalf("finished date = %v, want %v", at, t0.Add(300*time.Second))
	}
	if _, ok := store.ActiveCycleID(); ok {
		t.Fatalf("active id must be cleared on completion")
	}
	if got := store.Countdown().Title(); got != "00:00" {
		t.Fatalf("countdown = %s, want 00:00", got)
	}
	if _, ok := driver.Attached(); ok {
		t.Fatalf("driver must stop sampling after completion")
	}
}

func TestDriverElapsedIsDriftFree(t *testing.T) {
	store, driver, clock := newTestDriver(t)
	if _, err := store.CreateCycle(CreateCycleInput{Task: "focus", MinutesAmount: 10}); err != nil {
		t.Fatalf("create cycle: %v", err)
	}
	driver.Tick()
	clock.Advance(125*time.Second + 400*time.Millisecond)
	driver.Tick()
	if got := store.ElapsedSeconds(); got != 125 {
		t.Fatalf("elapsed = %d, want 125", got)
	}
}

func TestDriverLateTickClampsToTarget(t *testing.T) {
	store, driver, clock := newTestDriver(t)
	cycle, _ := store.CreateCycle(CreateCycleInput{Task: "late", MinutesAmount: 5})
	clock.Advance(time.Hour)
	driver.Tick()

	got, _ := store.Cycle(cycle.ID)
	if got.Status != CycleStatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
	if elapsed := store.ElapsedSeconds(); elapsed != cycle.TargetSeconds() {
		t.Fatalf("elapsed = %d, want %d", elapsed, cycle.TargetSeconds())
	}
}

func TestDriverDetachesOnInterrupt(t *testing.T) {
	store, driver, clock := newTestDriver(t)
	cycle, _ := store.CreateCycle(CreateCycleInput{Task: "focus", MinutesAmount: 10})
	clock.Advance(42 * time.Second)
	driver.Tick()
	store.InterruptActiveCycle()

	if _, ok := driver.Attached(); ok {
		t.Fatalf("interrupt must detach the driver")
	}
	clock.Advance(time.Hour)
	driver.Tick()
	got, _ := store.Cycle(cycle.ID)
	if got.Status != CycleStatusInterrupted {
		t.Fatalf("status = %s, want interrupted", got.Status)
	}
	if !got.EndedAt.Equal(t0.Add(42 * time.Second)) {
		t.Fatalf("interrupted date = %v", got.EndedAt)
	}
}

func TestDriverGhostTickDoesNotTouchNewCycle(t *testing.T) {
	store, driver, clock := newTestDriver(t)
	first, _ := store.CreateCycle(CreateCycleInput{Task: "first", MinutesAmount: 5})
	clock.Advance(10 * time.Second)
	store.InterruptActiveCycle()
	second, _ := store.CreateCycle(CreateCycleInput{Task: "second", MinutesAmount: 5})

	// A sample for the first cycle that was already in flight when it ended.
	clock.Advance(10 * time.Minute)
	driver.sample(first, clock.Now())

	if got := store.ElapsedSeconds(); got != 0 {
		t.Fatalf("ghost tick overwrote elapsed: %d", got)
	}
	active, ok := store.ActiveCycle()
	if !ok || active.ID != second.ID || active.IsTerminal() {
		t.Fatalf("ghost tick must not finish the new cycle")
	}
	if attached, ok := driver.Attached(); !ok || attached.ID != second.ID {
		t.Fatalf("ghost tick must not detach the current cycle")
	}
}

func TestDriverReattachReplacesEntry(t *testing.T) {
	store, driver, _ := newTestDriver(t)
	store.CreateCycle(CreateCycleInput{Task: "first", MinutesAmount: 5})
	second, _ := store.CreateCycle(CreateCycleInput{Task: "second", MinutesAmount: 5})

	entries := driver.cron.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected a single sampling entry, got %d", len(entries))
	}
	if attached, _ := driver.Attached(); attached.ID != second.ID {
		t.Fatalf("attached %q, want %q", attached.ID, second.ID)
	}

	driver.Detach()
	driver.Detach()
	if len(driver.cron.Entries()) != 0 {
		t.Fatalf("detach must remove the sampling entry")
	}
}

func TestDriverSyncAttachesExistingCycle(t *testing.T) {
	clock := newFakeClock(t0)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := NewCycleStore(WithClock(clock.Now))
	cycle, _ := store.CreateCycle(CreateCycleInput{Task: "before driver", MinutesAmount: 5})

	driver := NewDriver(store, logger, WithDriverClock(clock.Now))
	driver.Sync()
	if attached, ok := driver.Attached(); !ok || attached.ID != cycle.ID {
		t.Fatalf("sync should attach the active cycle")
	}
	store.InterruptActiveCycle()
	driver.Sync()
	if _, ok := driver.Attached(); ok {
		t.Fatalf("sync should detach when nothing is active")
	}
}

func TestDriverRunsOnScheduler(t *testing.T) {
	if testing.Short() {
		t.Skip("waits on the real scheduler")
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	start := time.Now().UTC().Add(-5*time.Minute + 500*time.Millisecond)
	store := NewCycleStore(WithClock(func() time.Time { return start }))
	driver := NewDriver(store, logger)
	store.Subscribe(driver)
	driver.Start()
	defer driver.Stop()

	cycle, _ := store.CreateCycle(CreateCycleInput{Task: "almost done", MinutesAmount: 5})
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if got, _ := store.Cycle(cycle.ID); got.Status == CycleStatusCompleted {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("cycle was not completed by the scheduled sample")
}
