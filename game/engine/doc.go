// Package engine provides the core program execution logic for Command Quest.
//
// The engine package implements:
//   - Tile grids decoded from character layouts
//   - Player position and facing with advance/turn transitions
//   - The run state machine that interprets a command program
//   - Per-tile effects (treasure, enemies, traps) and the goal check
//   - Level and level-pack definitions with validation and linting
//
// Core Types:
//
// Grid holds the tile kinds of one level. LevelDefinition is authored level
// data and LoadLevel turns it into a Grid plus the initial PlayerState.
// Run interprets a []Command one Step at a time and emits Events describing
// what the presentation layer should show.
//
// Usage:
//
//	grid, start := engine.LoadLevel(&pack.Levels[0], logger)
//	run := engine.NewRun(grid, start, []engine.Command{engine.Advance, engine.Advance})
//	for !run.Done() {
//		res, err := run.Step()
//		if err != nil {
//			break
//		}
//		// animate res.Events, then continue
//	}
//	fmt.Println(run.Outcome())
//
// Or let Execute drive the loop with an Observer and a Pacer.
//
// Game Rules:
//
// Advancing off the board or onto an enemy or trap halts the run at once.
// Treasure is collected for one point and removed from the grid. When every
// command has been applied the player wins only if standing on an end tile.
// Walls are scenery: nothing blocks movement except the board edge.
package engine
