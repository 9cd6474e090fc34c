package core

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultTickInterval is the sampling cadence of the countdown driver.
const DefaultTickInterval = time.Second

// CycleSampler is the narrow slice of the cycle store the driver may touch.
type CycleSampler interface {
	ActiveCycle() (Cycle, bool)
	ApplyElapsed(id string, seconds int) bool
	FinishCycle(id string) (Cycle, bool)
}

// Driver samples the wall clock for the active cycle on a fixed cadence, feeds
// the elapsed seconds back into the store and completes the cycle once its
// duration is reached. It keeps no state beyond the recurring entry handle.
type Driver struct {
	store    CycleSampler
	logger   *slog.Logger
	clock    func() time.Time
	interval time.Duration

	cron *cron.Cron

	mu       sync.Mutex
	entryID  cron.EntryID
	attached *Cycle
}

// DriverOption customizes driver construction.
type DriverOption func(*Driver)

// WithDriverClock overrides the wall clock used for samples.
func WithDriverClock(clock func() time.Time) DriverOption {
	return func(d *Driver) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// WithTickInterval overrides the sampling cadence. The scheduler rounds it to
// whole seconds with a one second minimum.
func WithTickInterval(interval time.Duration) DriverOption {
	return func(d *Driver) {
		if interval > 0 {
			d.interval = interval
		}
	}
}

// NewDriver constructs a countdown driver for the given store.
func NewDriver(store CycleSampler, logger *slog.Logger, opts ...DriverOption) *Driver {
	d := &Driver{
		store:    store,
		logger:   logger,
		clock:    func() time.Time { return time.Now().UTC() },
		interval: DefaultTickInterval,
	}
	for _, opt := range opts {
		opt(d)
	}
	cronLogger := NewCronLogger(logger)
	d.cron = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger)),
	)
	return d
}

// Start begins the sampling loop.
func (d *Driver) Start() {
	d.cron.Start()
}

// Stop halts sampling and returns a context that is done once in-flight
// samples have returned.
func (d *Driver) Stop() context.Context {
	d.Detach()
	return d.cron.Stop()
}

// Sync attaches to whatever cycle the store currently considers active, or
// detaches when there is none.
func (d *Driver) Sync() {
	if active, ok := d.store.ActiveCycle(); ok {
		d.Attach(active)
		return
	}
	d.Detach()
}

// Attach starts sampling the given cycle. Any previous sample is removed first.
func (d *Driver) Attach(cycle Cycle) {
	if cycle.IsTerminal() {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detachLocked()
	c := cycle
	d.attached = &c
	d.entryID = d.cron.Schedule(cron.Every(d.interval), cron.FuncJob(func() {
		d.sample(c, d.clock())
	}))
	d.logger.Debug("countdown attached", "cycle_id", c.ID, "target_s", c.TargetSeconds())
}

// Detach stops the recurring sample. It is safe to call repeatedly.
func (d *Driver) Detach() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detachLocked()
}

// Attached returns the cycle currently being sampled, if any.
func (d *Driver) Attached() (Cycle, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.attached == nil {
		return Cycle{}, false
	}
	return *d.attached, true
}

// Tick takes one sample of the attached cycle at the current clock time.
func (d *Driver) Tick() {
	cycle, ok := d.Attached()
	if !ok {
		return
	}
	d.sample(cycle, d.clock())
}

// HandleCycleEvent keeps the sampling entry in step with the store: a new
// cycle is attached and a terminal transition detaches in the same call that
// cleared the active pointer.
func (d *Driver) HandleCycleEvent(ev Event) {
	switch ev.Kind {
	case EventCreated:
		d.Attach(ev.Cycle)
	case EventFinished, EventInterrupted:
		d.detachIf(ev.Cycle.ID)
	}
}

func (d *Driver) sample(cycle Cycle, now time.Time) {
	elapsed := ElapsedSince(cycle.StartDate, now)
	target := cycle.TargetSeconds()
	if elapsed >= target {
		if !d.store.ApplyElapsed(cycle.ID, target) {
			d.detachIf(cycle.ID)
			return
		}
		if finished, ok := d.store.FinishCycle(cycle.ID); ok {
			d.logger.Info("cycle finished", "cycle_id", finished.ID, "task", finished.Task)
		}
		d.detachIf(cycle.ID)
		return
	}
	if !d.store.ApplyElapsed(cycle.ID, elapsed) {
		d.logger.Debug("dropping stale sample", "cycle_id", cycle.ID)
		d.detachIf(cycle.ID)
	}
}

func (d *Driver) detachIf(cycleID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.attached == nil || d.attached.ID != cycleID {
		return
	}
	d.detachLocked()
}

func (d *Driver) detachLocked() {
	if d.attached == nil {
		return
	}
	d.cron.Remove(d.entryID)
	d.logger.Debug("countdown detached", "cycle_id", d.attached.ID)
	d.attached = nil
	d.entryID = 0
}
