package engine

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrRunFinished  = errors.New("run already finished")
	ErrRunCancelled = errors.New("run cancelled")
)

// RunStatus is the lifecycle state of a Run
type RunStatus int

const (
	Idle RunStatus = iota
	Running
	Halted
	Completed
	Cancelled
)

var statusNames = [...]string{"idle", "running", "halted", "completed", "cancelled"}

func (s RunStatus) String() string {
	if s < Idle || s > Cancelled {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

// Terminal reports whether no further steps will be applied
func (s RunStatus) Terminal() bool {
	return s == Halted || s == Completed || s == Cancelled
}

func (s RunStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *RunStatus) UnmarshalText(text []byte) error {
	for i, name := range statusNames {
		if name == string(text) {
			*s = RunStatus(i)
			return nil
		}
	}
	return fmt.Errorf("unknown run status %q", text)
}

// StepResult describes what one Step applied
type StepResult struct {
	Step int `json:"step"`
	// Command is nil for the final-position check
	Command *Command    `json:"command,omitempty"`
	State   PlayerState `json:"state"`
	Moved   bool        `json:"moved"`
	Events  []Event     `json:"events"`
	Done    bool        `json:"done"`
	Outcome RunOutcome  `json:"outcome"`
}

// Run interprets one command sequence against a grid, one command per Step.
// Each return from Step is a suspension point: nothing else happens until
// the caller steps again or cancels. The grid is mutated in place when
// treasure is collected.
type Run struct {
	id         string
	grid       *Grid
	state      PlayerState
	commands   []Command
	next       int
	steps      int
	status     RunStatus
	outcome    RunOutcome
	hazard     TileKind
	scoreDelta int
	events     []Event
}

// NewRun prepares a run in the Idle state. The command slice is copied.
func NewRun(grid *Grid, start PlayerState, commands []Command) *Run {
	program := make([]Command, len(commands))
	copy(program, commands)
	return &Run{
		id:       uuid.NewString(),
		grid:     grid,
		state:    start,
		commands: program,
		outcome:  InProgress,
	}
}

func (r *Run) ID() string { return r.id }
func (r *Run) Status() RunStatus { return r.status }
func (r *Run) Outcome() RunOutcome { return r.outcome }
func (r *Run) State() PlayerState { return r.state }
func (r *Run) ScoreDelta() int { return r.scoreDelta }
func (r *Run) Steps() int { return r.steps }
func (r *Run) Commands() []Command { return r.commands }
func (r *Run) Done() bool { return r.status.Terminal() }
func (r *Run) Grid() *Grid { return r.grid }
func (r *Run) Remaining() int { return len(r.commands) - r.next }

// Hazard returns the tile that ended the run when the outcome is HazardHit
func (r *Run) Hazard() TileKind { return r.hazard }

// Events returns every event emitted so far
func (r *Run) Events() []Event {
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Cancel aborts the run between steps. Pending commands are discarded and
// no outcome is emitted. It reports false if the run had already ended.
func (r *Run) Cancel() bool {
	if r.status.Terminal() {
		return false
	}
	r.status = Cancelled
	return true
}

// Step applies the next command, or the final-position check once the
// program is exhausted.
func (r *Run) Step() (StepResult, error) {
	switch r.status {
	case Cancelled:
		return StepResult{}, ErrRunCancelled
	case Halted, Completed:
		return StepResult{}, ErrRunFinished
	}
	r.status = Running
	r.steps++
	mark := len(r.events)

	res := StepResult{Step: r.steps}
	if r.next >= len(r.commands) {
		r.finish()
	} else {
		cmd := r.commands[r.next]
		r.next++
		res.Command = &cmd
		res.Moved = r.apply(cmd)
	}

	res.State = r.state
	res.Events = append([]Event(nil), r.events[mark:]...)
	res.Done = r.status.Terminal()
	res.Outcome = r.outcome
	return res, nil
}

func (r *Run) apply(cmd Command) bool {
	switch cmd {
	case Advance:
		next, moved := AdvanceState(r.state, r.grid)
		if !moved {
			r.halt(OutOfBounds)
			return false
		}
		r.state = next
		r.emitPlayer(cmd)
		r.applyTile()
		return true
	case TurnRight:
		r.state = TurnRightState(r.state)
		r.emitPlayer(cmd)
	case TurnLeft:
		r.state = TurnLeftState(r.state)
		r.emitPlayer(cmd)
	}
	return false
}

// applyTile evaluates the per-step effect of the cell the player entered
func (r *Run) applyTile() {
	kind, err := r.grid.At(r.state.X, r.state.Y)
	if err != nil {
		r.halt(OutOfBounds)
		return
	}
	switch kind {
	case Treasure:
		if ok, _ := r.grid.Consume(r.state.X, r.state.Y); ok {
			pos := r.state.Pos()
			empty := Empty
			r.emit(Event{Kind: EventTile, Position: &pos, Tile: &empty})
			r.scoreDelta++
			r.emit(Event{Kind: EventScore, Position: &pos, Delta: 1})
		}
	case Enemy, Trap:
		r.hazard = kind
		r.halt(HazardHit)
	}
}

// finish runs the final-position check
func (r *Run) finish() {
	kind, err := r.grid.At(r.state.X, r.state.Y)
	switch {
	case err != nil:
		r.halt(OutOfBounds)
		return
	case kind == End:
		r.outcome = GoalReached
	default:
		r.outcome = GoalMissed
	}
	r.status = Completed
	r.emitOutcome()
}

func (r *Run) halt(outcome RunOutcome) {
	r.outcome = outcome
	r.status = Halted
	r.emitOutcome()
}

func (r *Run) emitPlayer(cmd Command) {
	state := r.state
	r.emit(Event{Kind: EventPlayer, Command: cmd.String(), Player: &state})
}

func (r *Run) emitOutcome() {
	outcome := r.outcome
	ev := Event{Kind: EventOutcome, Outcome: &outcome, ScoreDelta: r.scoreDelta}
	if outcome == HazardHit {
		hazard := r.hazard
		ev.Tile = &hazard
	}
	r.emit(ev)
}

func (r *Run) emit(ev Event) {
	ev.RunID = r.id
	ev.Step = r.steps
	r.events = append(r.events, ev)
}

// Result summarizes a run for transports
type Result struct {
	RunID      string      `json:"run_id"`
	Status     RunStatus   `json:"status"`
	Outcome    RunOutcome  `json:"outcome"`
	Steps      int         `json:"steps"`
	Executed   int         `json:"commands_executed"`
	Requested  int         `json:"commands_requested"`
	ScoreDelta int         `json:"score_delta"`
	Final      PlayerState `json:"final"`
	Events     []Event     `json:"events"`
}

// Result returns a snapshot of the run
func (r *Run) Result() *Result {
	return &Result{
		RunID:      r.id,
		Status:     r.status,
		Outcome:    r.outcome,
		Steps:      r.steps,
		Executed:   r.next,
		Requested:  len(r.commands),
		ScoreDelta: r.scoreDelta,
		Final:      r.state,
		Events:     r.Events(),
	}
}
