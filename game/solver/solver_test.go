package solver

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/wricardo/command-quest/game/engine"
)

var all = []engine.Command{engine.Advance, engine.TurnRight, engine.TurnLeft}

func level(facing engine.Direction, commands []engine.Command, rows ...string) *engine.LevelDefinition {
	return &engine.LevelDefinition{
		ID:                1,
		StartDirection:    facing,
		Width:             len(rows[0]),
		Height:            len(rows),
		Layout:            rows,
		AvailableCommands: commands,
	}
}

func TestSolve_DefaultPack(t *testing.T) {
	pack := engine.DefaultPack()
	want := [][]engine.Command{
		{engine.Advance, engine.Advance, engine.Advance},
		{engine.TurnLeft, engine.Advance, engine.Advance},
	}
	for i := range pack.Levels {
		sol, err := Solve(t.Context(), &pack.Levels[i], Options{})
		if err != nil {
			t.Fatalf("level %d: %v", pack.Levels[i].ID, err)
		}
		if !reflect.DeepEqual(sol.Program, want[i]) {
			t.Errorf("level %d: expected %v, got %v", pack.Levels[i].ID, want[i], sol.Program)
		}
		if sol.Treasures != 1 {
			t.Errorf("level %d: expected the treasure on the way, got %d", pack.Levels[i].ID, sol.Treasures)
		}
	}
}

func TestSolve_AvoidsHazards(t *testing.T) {
	// The direct route east runs into an enemy; the detour goes north.
	def := level(engine.East, all,
		"SME",
		"...",
	)
	sol, err := Solve(t.Context(), def, Options{})
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	outcome, _ := Replay(def, sol.Program)
	if outcome != engine.GoalReached {
		t.Fatalf("replay ended with %v", outcome)
	}
	for i, cmd := range sol.Program {
		if cmd == engine.Advance && i == 0 {
			t.Errorf("first move should not advance into the enemy: %v", sol.Program)
		}
	}
}

func TestSolve_WallsAreWalkable(t *testing.T) {
	sol, err := Solve(t.Context(), level(engine.East, []engine.Command{engine.Advance}, "S#E"), Options{})
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	if len(sol.Program) != 2 {
		t.Errorf("expected to walk through the wall, got %v", sol.Program)
	}
}

func TestSolve_OnlyOfferedCommands(t *testing.T) {
	// Goal is behind the player and turning is not offered.
	_, err := Solve(t.Context(), level(engine.East, []engine.Command{engine.Advance}, "E.S"), Options{})
	if !errors.Is(err, ErrUnsolvable) {
		t.Errorf("Expected ErrUnsolvable, got %v", err)
	}

	sol, err := Solve(t.Context(), level(engine.East, all, "E.S"), Options{})
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	if len(sol.Program) != 4 {
		t.Errorf("expected two turns and two moves, got %v", sol.Program)
	}
}

func TestSolve_Unsolvable(t *testing.T) {
	tests := []struct {
		name string
		def  *engine.LevelDefinition
	}{
		{"no goal", level(engine.East, all, "S..")},
		{"goal walled by traps", level(engine.East, all, "SXE", "XX.")},
		{"no commands", level(engine.East, nil, "SE")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Solve(t.Context(), tt.def, Options{}); !errors.Is(err, ErrUnsolvable) {
				t.Errorf("Expected ErrUnsolvable, got %v", err)
			}
		})
	}
}

func TestSolve_StartOnGoal(t *testing.T) {
	// Missing start places the player at (0,0), here the goal itself.
	sol, err := Solve(t.Context(), level(engine.East, all, "E.."), Options{})
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	want := []engine.Command{engine.TurnRight}
	if !reflect.DeepEqual(sol.Program, want) {
		t.Errorf("expected %v, got %v", want, sol.Program)
	}
}

func TestSolve_StartOnGoalNeedsOneCommand(t *testing.T) {
	// Advancing away and back takes a turn too, so advance alone cannot win.
	if _, err := Solve(t.Context(), level(engine.East, []engine.Command{engine.Advance}, "E.."), Options{}); !errors.Is(err, ErrUnsolvable) {
		t.Errorf("expected ErrUnsolvable, got %v", err)
	}
}

func TestSolve_MaxLength(t *testing.T) {
	def := level(engine.East, []engine.Command{engine.Advance}, "S...E")
	if _, err := Solve(t.Context(), def, Options{MaxLength: 3}); !errors.Is(err, ErrUnsolvable) {
		t.Errorf("Expected ErrUnsolvable with a short limit, got %v", err)
	}
	if sol, err := Solve(t.Context(), def, Options{MaxLength: 4}); err != nil || len(sol.Program) != 4 {
		t.Errorf("Expected a four-move solution, got %v, %v", sol, err)
	}
}

func TestSolve_CollectAll(t *testing.T) {
	def := level(engine.East, all,
		"SE.",
		"..T",
	)
	short, err := Solve(t.Context(), def, Options{})
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	if short.Treasures != 0 || len(short.Program) != 1 {
		t.Errorf("shortest route should skip the treasure, got %+v", short)
	}

	greedy, err := Solve(t.Context(), def, Options{CollectAll: true})
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	if greedy.Treasures != 1 {
		t.Errorf("expected the treasure collected, got %+v", greedy)
	}
	if outcome, score := Replay(def, greedy.Program); outcome != engine.GoalReached || score != 1 {
		t.Errorf("replay gave %v with %d points", outcome, score)
	}
}

func TestReplay(t *testing.T) {
	def := level(engine.East, all, "S.TE")
	outcome, score := Replay(def, []engine.Command{engine.Advance, engine.Advance, engine.Advance})
	if outcome != engine.GoalReached || score != 1 {
		t.Errorf("expected goal with one point, got %v and %d", outcome, score)
	}
	if outcome, _ := Replay(def, []engine.Command{engine.TurnRight, engine.Advance}); outcome != engine.OutOfBounds {
		t.Errorf("expected out of bounds, got %v", outcome)
	}
}

// treasureField is an open board with no goal and a row of treasures, so a
// CollectAll search has to exhaust every treasure combination
func treasureField(size, treasures int) *engine.LevelDefinition {
	rows := make([]string, size)
	rows[0] = "S" + strings.Repeat("T", treasures) + strings.Repeat(".", size-1-treasures)
	for y := 1; y < size; y++ {
		rows[y] = strings.Repeat(".", size)
	}
	return level(engine.East, all, rows...)
}

func TestSolve_StopsAtStateLimit(t *testing.T) {
	tests := []struct {
		name string
		def  *engine.LevelDefinition
		opts Options
	}{
		{"explicit limit", treasureField(20, 12), Options{CollectAll: true, MaxStates: 10_000}},
		{"default limit on the largest board", treasureField(engine.MaxGridSize, maxTreasureBits), Options{CollectAll: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Solve(t.Context(), tt.def, tt.opts)
			if !errors.Is(err, ErrSearchLimit) {
				t.Errorf("expected ErrSearchLimit, got %v", err)
			}
		})
	}
}

func TestSolve_SmallLevelsFitTheLimit(t *testing.T) {
	def := level(engine.East, all, "S.T", "...", "T.E")
	sol, err := Solve(t.Context(), def, Options{CollectAll: true, MaxStates: 200})
	if err != nil {
		t.Fatalf("expected a solution within 200 states, got %v", err)
	}
	if sol.Treasures != 2 || sol.Explored > 200 {
		t.Errorf("unexpected solution %+v", sol)
	}
}

func TestSolve_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	if _, err := Solve(ctx, treasureField(20, 12), Options{CollectAll: true}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
