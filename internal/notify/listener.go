package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"focuscycle/internal/core"
)

const sendTimeout = 15 * time.Second

// CompletionListener pushes a notification whenever a cycle runs to its full
// duration. Interrupted cycles are not announced.
type CompletionListener struct {
	notifier Notifier
	logger   *slog.Logger
	wg       sync.WaitGroup
}

func NewCompletionListener(notifier Notifier, logger *slog.Logger) *CompletionListener {
	return &CompletionListener{notifier: notifier, logger: logger}
}

// HandleCycleEvent sends in the background so a slow push endpoint never holds
// up the store.
func (l *CompletionListener) HandleCycleEvent(ev core.Event) {
	if ev.Kind != core.EventFinished {
		return
	}
	title, body := completionMessage(ev.Cycle)
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		if err := l.notifier.Send(ctx, title, body); err != nil {
			l.logger.Warn("send completion notification", "cycle_id", ev.Cycle.ID, "err", err)
		}
	}()
}

// Wait blocks until pending notifications have been sent.
func (l *CompletionListener) Wait() {
	l.wg.Wait()
}

func completionMessage(c core.Cycle) (string, string) {
	return "Cycle finished", fmt.Sprintf("%s (%d min) is done", c.Task, c.MinutesAmount)
}
