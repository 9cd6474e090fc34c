package store

import (
	"context"
	"log/slog"
	"time"

	"focuscycle/internal/core"
)

const journalWriteTimeout = 5 * time.Second

// Journal mirrors cycle transitions into the database. It only writes; the
// cycle store never reads its state back from here.
type Journal struct {
	store  *Store
	logger *slog.Logger
}

// NewJournal returns a cycle listener backed by the store.
func NewJournal(store *Store, logger *slog.Logger) *Journal {
	return &Journal{store: store, logger: logger}
}

// HandleCycleEvent records one transition. Failures are logged, never returned,
// so a broken journal cannot block the countdown.
func (j *Journal) HandleCycleEvent(ev core.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), journalWriteTimeout)
	defer cancel()

	switch ev.Kind {
	case core.EventCreated:
		if err := j.store.InsertCycle(ctx, ev.Cycle); err != nil {
			j.logger.Error("journal insert cycle", "cycle_id", ev.Cycle.ID, "err", err)
			return
		}
		if pruned, err := j.store.PruneCycles(ctx); err != nil {
			j.logger.Warn("journal prune", "err", err)
		} else if pruned > 0 {
			j.logger.Debug("journal pruned", "rows", pruned)
		}
	case core.EventFinished, core.EventInterrupted:
		if err := j.store.MarkCycleEnded(ctx, ev.Cycle.ID, ev.Cycle.Status, ev.Cycle.EndedAt, ev.ElapsedSeconds); err != nil {
			j.logger.Error("journal mark cycle ended", "cycle_id", ev.Cycle.ID, "status", ev.Cycle.Status, "err", err)
		}
	}
}
