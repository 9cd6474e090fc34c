package core

import (
	"time"
)

// CycleStatus describes the lifecycle state of a cycle.
type CycleStatus string

const (
	CycleStatusRunning     CycleStatus = "running"
	CycleStatusCompleted   CycleStatus = "completed"
	CycleStatusInterrupted CycleStatus = "interrupted"
)

// Duration bounds accepted by CreateCycle, in minutes.
const (
	MinMinutesAmount = 5
	MaxMinutesAmount = 60
)

// Cycle is one attempted focus session. A cycle leaves the running status at most
// once; EndedAt is zero while it runs and holds the terminal timestamp afterwards.
type Cycle struct {
	ID            string
	Task          string
	MinutesAmount int
	StartDate     time.Time
	Status        CycleStatus
	EndedAt       time.Time
}

// TargetSeconds is the nominal duration of the cycle in seconds.
func (c Cycle) TargetSeconds() int {
	return c.MinutesAmount * 60
}

// IsTerminal reports whether the cycle has completed or been interrupted.
func (c Cycle) IsTerminal() bool {
	return c.Status == CycleStatusCompleted || c.Status == CycleStatusInterrupted
}

// FinishedDate returns the completion timestamp, if the cycle ran to its duration.
func (c Cycle) FinishedDate() (time.Time, bool) {
	if c.Status != CycleStatusCompleted {
		return time.Time{}, false
	}
	return c.EndedAt, true
}

// InterruptedDate returns the interruption timestamp, if the cycle was stopped early.
func (c Cycle) InterruptedDate() (time.Time, bool) {
	if c.Status != CycleStatusInterrupted {
		return time.Time{}, false
	}
	return c.EndedAt, true
}

// CreateCycleInput carries the user-supplied fields of a new cycle.
type CreateCycleInput struct {
	Task          string
	MinutesAmount int
}

// State is a consistent read model of the store taken under a single lock.
type State struct {
	Cycles         []Cycle
	ActiveCycleID  string
	ActiveCycle    *Cycle
	ElapsedSeconds int
	Countdown      Countdown
}

// EventKind names a cycle transition.
type EventKind string

const (
	EventCreated     EventKind = "created"
	EventFinished    EventKind = "finished"
	EventInterrupted EventKind = "interrupted"
)

// Event is published by the store after a transition has been applied.
type Event struct {
	Kind  EventKind
	Cycle Cycle
	// ElapsedSeconds is the store's elapsed counter at the time of the transition.
	ElapsedSeconds int
}

// Listener receives cycle events in the order transitions were applied.
type Listener interface {
	HandleCycleEvent(Event)
}

// ListenerFunc adapts a plain function to Listener.
type ListenerFunc func(Event)

func (f ListenerFunc) HandleCycleEvent(ev Event) {
	f(ev)
}
