package engine

import (
	"context"
	"time"
)

// EventKind identifies a side effect emitted by a run
type EventKind string

const (
	// EventPlayer asks the presentation layer to render the player
	EventPlayer EventKind = "player"
	// EventTile asks the presentation layer to redraw one cell
	EventTile EventKind = "tile"
	// EventScore reports points gained
	EventScore EventKind = "score"
	// EventOutcome is the single terminal notification of a run
	EventOutcome EventKind = "outcome"
)

// Event is one side effect of a run. Fields are set according to Kind.
type Event struct {
	Kind       EventKind    `json:"kind"`
	RunID      string       `json:"run_id"`
	Step       int          `json:"step"`
	Command    string       `json:"command,omitempty"`
	Player     *PlayerState `json:"player,omitempty"`
	Position   *Position    `json:"position,omitempty"`
	Tile       *TileKind    `json:"tile,omitempty"`
	Delta      int          `json:"delta,omitempty"`
	Outcome    *RunOutcome  `json:"outcome,omitempty"`
	ScoreDelta int          `json:"score_delta,omitempty"`
}

// Observer receives run events in emission order
type Observer interface {
	Observe(ev Event)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(ev Event)

func (f ObserverFunc) Observe(ev Event) { f(ev) }

// MultiObserver fans events out to several observers
type MultiObserver []Observer

func (m MultiObserver) Observe(ev Event) {
	for _, o := range m {
		if o != nil {
			o.Observe(ev)
		}
	}
}

// Pacer decides when the next step may run. It is the hook a presentation
// layer uses to let an animation finish.
type Pacer interface {
	Wait(ctx context.Context, last StepResult) error
}

// PacerFunc adapts a function to Pacer
type PacerFunc func(ctx context.Context, last StepResult) error

func (f PacerFunc) Wait(ctx context.Context, last StepResult) error { return f(ctx, last) }

// DelayPacer waits a fixed duration between steps
func DelayPacer(d time.Duration) Pacer {
	return PacerFunc(func(ctx context.Context, _ StepResult) error {
		if d <= 0 {
			return ctx.Err()
		}
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	})
}

// Execute drives a run to completion. Events reach the observer after each
// step, then the pacer is consulted before the next one. If ctx ends first
// the run is cancelled and no outcome is emitted.
func Execute(ctx context.Context, run *Run, observer Observer, pacer Pacer) (RunOutcome, error) {
	for !run.Done() {
		if err := ctx.Err(); err != nil {
			run.Cancel()
			return InProgress, err
		}

		res, err := run.Step()
		if err != nil {
			return run.Outcome(), err
		}
		if observer != nil {
			for _, ev := range res.Events {
				observer.Observe(ev)
			}
		}
		if res.Done {
			break
		}
		if pacer != nil {
			if err := pacer.Wait(ctx, res); err != nil {
				run.Cancel()
				return InProgress, err
			}
		}
	}
	if run.Status() == Cancelled {
		return InProgress, ErrRunCancelled
	}
	return run.Outcome(), nil
}
