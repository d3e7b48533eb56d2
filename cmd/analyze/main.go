// Command analyze prints per-level statistics for level packs: board size,
// start, counts of each tile kind, and the shortest winning program with
// and without collecting every treasure.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/wricardo/command-quest/game/config"
	"github.com/wricardo/command-quest/game/engine"
	"github.com/wricardo/command-quest/game/solver"
)

// tileKinds are reported in this order
var tileKinds = []engine.TileKind{
	engine.Start, engine.End, engine.Treasure, engine.Wall, engine.Enemy, engine.Trap, engine.Empty,
}

// LevelAnalysis summarizes one level
type LevelAnalysis struct {
	ID       int                `json:"id"`
	Name     string             `json:"name"`
	Width    int                `json:"width"`
	Height   int                `json:"height"`
	Start    engine.PlayerState `json:"start"`
	Tiles    map[string]int     `json:"tiles"`
	Offered  []engine.Command   `json:"offered"`
	Shortest []engine.Command   `json:"shortest,omitempty"`
	// AllTreasure is the shortest program that also collects every treasure
	AllTreasure []engine.Command `json:"all_treasure,omitempty"`
	Warnings    []string         `json:"warnings,omitempty"`
	Unsolvable  bool             `json:"unsolvable"`
	// SearchError is set when the solver gave up before deciding
	SearchError string `json:"search_error,omitempty"`
}

// PackAnalysis summarizes a pack
type PackAnalysis struct {
	Pack        string          `json:"pack"`
	Name        string          `json:"name"`
	Levels      []LevelAnalysis `json:"levels"`
	MaxScore    int             `json:"max_score"`
	Unsolvable  int             `json:"unsolvable"`
	ResetPolicy string          `json:"reset_policy"`
}

func analyzeLevel(ctx context.Context, def *engine.LevelDefinition) LevelAnalysis {
	grid, start := engine.LoadLevel(def, nil)
	a := LevelAnalysis{
		ID:       def.ID,
		Name:     def.Name,
		Width:    grid.Width(),
		Height:   grid.Height(),
		Start:    start,
		Tiles:    make(map[string]int, len(tileKinds)),
		Offered:  def.AvailableCommands,
		Warnings: engine.LintLevel(def),
	}
	for _, kind := range tileKinds {
		a.Tiles[kind.String()] = grid.Count(kind)
	}

	sol, err := solver.Solve(ctx, def, solver.Options{})
	switch {
	case errors.Is(err, solver.ErrUnsolvable):
		a.Unsolvable = true
		return a
	case err != nil:
		a.SearchError = err.Error()
		return a
	}
	a.Shortest = sol.Program
	if a.Tiles[engine.Treasure.String()] > 0 {
		all, err := solver.Solve(ctx, def, solver.Options{CollectAll: true})
		if err == nil {
			a.AllTreasure = all.Program
		} else if !errors.Is(err, solver.ErrUnsolvable) {
			a.SearchError = err.Error()
		}
	}
	return a
}

func analyzePack(ctx context.Context, id string, pack *engine.LevelPack) PackAnalysis {
	out := PackAnalysis{Pack: id, Name: pack.Name, ResetPolicy: "keep score"}
	if pack.ScoreResetOnRetry {
		out.ResetPolicy = "restore entry score"
	}
	for i := range pack.Levels {
		level := analyzeLevel(ctx, &pack.Levels[i])
		if level.Unsolvable {
			out.Unsolvable++
		} else if level.AllTreasure != nil {
			out.MaxScore += level.Tiles[engine.Treasure.String()]
		}
		out.Levels = append(out.Levels, level)
	}
	return out
}

func program(cmds []engine.Command) string {
	names := make([]string, len(cmds))
	for i, cmd := range cmds {
		names[i] = cmd.String()
	}
	return fmt.Sprintf("%d: %s", len(cmds), strings.Join(names, " "))
}

func printPack(w io.Writer, a PackAnalysis) {
	fmt.Fprintf(w, "\n=== Analyzing %s ===\n", a.Pack)
	fmt.Fprintf(w, "Name: %s\n", a.Name)
	fmt.Fprintf(w, "Levels: %d\n", len(a.Levels))
	fmt.Fprintf(w, "Retry policy: %s\n", a.ResetPolicy)
	fmt.Fprintf(w, "Max score: %d\n", a.MaxScore)

	for _, l := range a.Levels {
		fmt.Fprintf(w, "\n-- Level %d: %s (%dx%d)\n", l.ID, l.Name, l.Width, l.Height)
		fmt.Fprintf(w, "Start: (%d, %d) facing %s\n", l.Start.X, l.Start.Y, l.Start.Facing)
		counts := make([]string, 0, len(tileKinds))
		for _, kind := range tileKinds {
			counts = append(counts, fmt.Sprintf("%s=%d", kind, l.Tiles[kind.String()]))
		}
		fmt.Fprintf(w, "Tiles: %s\n", strings.Join(counts, " "))
		for _, warning := range l.Warnings {
			fmt.Fprintf(w, "⚠️  %s\n", warning)
		}
		if l.Unsolvable {
			fmt.Fprintf(w, "⚠️  CRITICAL: no program wins this level with the offered commands\n")
			continue
		}
		if l.SearchError != "" {
			fmt.Fprintf(w, "⚠️  Search stopped: %s\n", l.SearchError)
		}
		if l.Shortest == nil {
			continue
		}
		fmt.Fprintf(w, "✅ Shortest program %s\n", program(l.Shortest))
		if l.AllTreasure != nil {
			fmt.Fprintf(w, "✅ Collecting all treasure %s\n", program(l.AllTreasure))
		}
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	manager, err := config.NewManager(cmd.String("levels-dir"), nil)
	if err != nil {
		return err
	}

	names := cmd.Args().Slice()
	if len(names) == 0 {
		packs, err := manager.ListPacks()
		if err != nil {
			return err
		}
		for _, p := range packs {
			names = append(names, p.PackID)
		}
	}

	out := cmd.Root().Writer
	var analyses []PackAnalysis
	var errs []error
	for _, name := range names {
		pack, err := manager.LoadPack(name)
		if err != nil {
			errs = append(errs, err)
			fmt.Fprintf(out, "\nError loading %s: %v\n", name, err)
			continue
		}
		analysis := analyzePack(ctx, name, pack)
		if cmd.Bool("json") {
			analyses = append(analyses, analysis)
		} else {
			printPack(out, analysis)
		}
	}

	if cmd.Bool("json") {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(analyses); err != nil {
			return err
		}
	}
	return errors.Join(errs...)
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:      "analyze",
		Usage:     "print per-level statistics and shortest winning programs",
		ArgsUsage: "[pack ...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "levels-dir",
				Value:   "levels",
				Usage:   "directory containing level pack JSON files",
				Sources: cli.EnvVars("LEVELS_DIR"),
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "emit the analysis as JSON",
			},
		},
		Action: run,
	}
}

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
