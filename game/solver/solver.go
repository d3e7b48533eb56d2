// Package solver finds the shortest program that wins a level.
package solver

import (
	"context"
	"errors"
	"fmt"

	"github.com/zyedidia/generic/mapset"

	"github.com/wricardo/command-quest/game/engine"
)

var (
	ErrUnsolvable        = errors.New("level cannot be won with the offered commands")
	ErrTooManyTreasures  = errors.New("too many treasures to search for all of them")
	ErrVerificationError = errors.New("solution failed verification")
	ErrSearchLimit       = errors.New("search limit reached")
)

const (
	// maxTreasureBits bounds the collected-treasure mask used by CollectAll
	maxTreasureBits = 20
	// DefaultMaxStates is the search budget used when Options.MaxStates is 0
	DefaultMaxStates = 500_000
	// ctxCheckInterval is how many expanded states pass between context checks
	ctxCheckInterval = 1024
)

// Options tune the search
type Options struct {
	// CollectAll requires every treasure to be collected before the final check
	CollectAll bool
	// MaxLength bounds the program length; 0 means engine.MaxProgramSize
	MaxLength int
	// MaxStates bounds the number of distinct states discovered; 0 means DefaultMaxStates
	MaxStates int
}

// Solution is a winning program for a level
type Solution struct {
	Program   []engine.Command `json:"program"`
	Treasures int              `json:"treasures"`
	Explored  int              `json:"explored"`
}

// node is one search state
type node struct {
	x, y   int
	facing engine.Direction
	mask   uint32
}

type step struct {
	parent int
	cmd    engine.Command
	node   node
	depth  int
}

// Solve runs a breadth-first search over player position, facing and
// collected treasure, using only the commands the level offers. Advancing
// off the board or onto a hazard is a dead end. The program always holds at
// least one command, since sessions reject empty programs, so a player who
// starts on the goal still needs a move that ends there. The result is
// replayed through engine.Run before it is returned.
//
// The search stops with ErrSearchLimit once more than opts.MaxStates states
// are discovered, and with the context's error when ctx ends.
func Solve(ctx context.Context, def *engine.LevelDefinition, opts Options) (*Solution, error) {
	grid, start := engine.LoadLevel(def, nil)
	maxLen := opts.MaxLength
	if maxLen <= 0 {
		maxLen = engine.MaxProgramSize
	}
	maxStates := opts.MaxStates
	if maxStates <= 0 {
		maxStates = DefaultMaxStates
	}

	treasures := make(map[engine.Position]uint32)
	if opts.CollectAll {
		for y := 0; y < grid.Height(); y++ {
			for x := 0; x < grid.Width(); x++ {
				if kind, _ := grid.At(x, y); kind == engine.Treasure {
					if len(treasures) == maxTreasureBits {
						return nil, fmt.Errorf("%w: more than %d", ErrTooManyTreasures, maxTreasureBits)
					}
					treasures[engine.Position{X: x, Y: y}] = 1 << len(treasures)
				}
			}
		}
	}
	full := uint32(1)<<len(treasures) - 1

	commands := offered(def)
	won := func(n node) bool {
		kind, err := grid.At(n.x, n.y)
		return err == nil && kind == engine.End && n.mask == full
	}

	root := node{x: start.X, y: start.Y, facing: start.Facing}
	steps := []step{{parent: -1, node: root}}
	visited := mapset.New[node]()
	visited.Put(root)

	for i := 0; i < len(steps); i++ {
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		cur := steps[i]
		if cur.depth > 0 && won(cur.node) {
			program := trace(steps, i)
			return verify(grid, start, program, len(steps))
		}
		if cur.depth == maxLen {
			continue
		}
		for _, cmd := range commands {
			next, ok := apply(grid, cur.node, cmd, treasures)
			if !ok || visited.Has(next) {
				continue
			}
			if len(steps) >= maxStates {
				return nil, fmt.Errorf("%w: more than %d states", ErrSearchLimit, maxStates)
			}
			visited.Put(next)
			steps = append(steps, step{parent: i, cmd: cmd, node: next, depth: cur.depth + 1})
		}
	}
	return nil, ErrUnsolvable
}

// offered returns the level's commands in declaration order without repeats
func offered(def *engine.LevelDefinition) []engine.Command {
	var out []engine.Command
	for _, cmd := range engine.AllCommands {
		if def.Offers(cmd) {
			out = append(out, cmd)
		}
	}
	return out
}

// apply mirrors the engine's per-command rules for one search state
func apply(grid *engine.Grid, n node, cmd engine.Command, treasures map[engine.Position]uint32) (node, bool) {
	state := engine.PlayerState{X: n.x, Y: n.y, Facing: n.facing}
	switch cmd {
	case engine.TurnRight:
		state = engine.TurnRightState(state)
	case engine.TurnLeft:
		state = engine.TurnLeftState(state)
	case engine.Advance:
		next, moved := engine.AdvanceState(state, grid)
		if !moved {
			return n, false
		}
		kind, _ := grid.At(next.X, next.Y)
		if kind.IsHazard() {
			return n, false
		}
		state = next
	default:
		return n, false
	}
	out := node{x: state.X, y: state.Y, facing: state.Facing, mask: n.mask}
	out.mask |= treasures[state.Pos()]
	return out, true
}

func trace(steps []step, i int) []engine.Command {
	var program []engine.Command
	for ; steps[i].parent >= 0; i = steps[i].parent {
		program = append(program, steps[i].cmd)
	}
	for l, r := 0, len(program)-1; l < r; l, r = l+1, r-1 {
		program[l], program[r] = program[r], program[l]
	}
	return program
}

// verify replays program on a copy of the decoded level, leaving grid untouched
func verify(grid *engine.Grid, start engine.PlayerState, program []engine.Command, explored int) (*Solution, error) {
	outcome, score := replay(grid.Clone(), start, program)
	if outcome != engine.GoalReached {
		return nil, fmt.Errorf("%w: replay ended with %v", ErrVerificationError, outcome)
	}
	return &Solution{Program: program, Treasures: score, Explored: explored}, nil
}

// Replay runs program against def and returns the outcome and points scored
func Replay(def *engine.LevelDefinition, program []engine.Command) (engine.RunOutcome, int) {
	grid, start := engine.LoadLevel(def, nil)
	return replay(grid, start, program)
}

func replay(grid *engine.Grid, start engine.PlayerState, program []engine.Command) (engine.RunOutcome, int) {
	run := engine.NewRun(grid, start, program)
	for !run.Done() {
		if _, err := run.Step(); err != nil {
			break
		}
	}
	return run.Outcome(), run.ScoreDelta()
}
