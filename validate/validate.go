// Command validate strictly checks level pack JSON files. Anything the
// server would only warn about is an error here:
//   - JSON structure, known commands and directions, unique level ids
//   - exactly one start (S) and at least one goal (E) per level
//   - only known layout characters, and no rows or columns beyond the board
//   - at least one offered command
//   - every level can be won with the commands it offers
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/wricardo/command-quest/game/engine"
	"github.com/wricardo/command-quest/game/solver"
)

// ValidationResult captures the outcome of validating a single file.
// Errors holds the problems found; Info holds ✓ lines for valid parts.
type ValidationResult struct {
	File   string
	Valid  bool
	Errors []string
	Info   []string
}

func (r *ValidationResult) fail(format string, args ...interface{}) {
	r.Valid = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// validatePack loads and validates a single level pack file
func validatePack(ctx context.Context, filePath string) ValidationResult {
	result := ValidationResult{
		File:  filepath.Base(filePath),
		Valid: true,
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		result.fail("Failed to read file: %v", err)
		return result
	}

	var pack engine.LevelPack
	if err := json.Unmarshal(data, &pack); err != nil {
		result.fail("Invalid JSON: %v", err)
		return result
	}
	if err := engine.ValidatePack(&pack); err != nil {
		result.fail("%v", err)
		return result
	}

	result.Info = append(result.Info, fmt.Sprintf("✓ Name: %s", pack.Name))
	result.Info = append(result.Info, fmt.Sprintf("✓ Levels: %d", len(pack.Levels)))
	for i := range pack.Levels {
		validateLevel(ctx, &result, i, &pack.Levels[i])
	}
	return result
}

// validateLevel treats every lint warning as an error and then checks
// that the level can be won
func validateLevel(ctx context.Context, result *ValidationResult, index int, def *engine.LevelDefinition) {
	label := fmt.Sprintf("Level %d (id %d", index+1, def.ID)
	if def.Name != "" {
		label += ", " + def.Name
	}
	label += ")"

	warnings := engine.LintLevel(def)
	for _, w := range warnings {
		result.fail("%s: %s", label, w)
	}
	if len(warnings) > 0 {
		return
	}

	sol, err := solver.Solve(ctx, def, solver.Options{})
	if err != nil {
		result.fail("%s: %v", label, err)
		return
	}
	width, height := def.Size()
	result.Info = append(result.Info, fmt.Sprintf("✓ %s: %dx%d, solvable in %d commands", label, width, height, len(sol.Program)))
}

// report prints one result and returns whether it was valid
func report(w io.Writer, result ValidationResult) bool {
	fmt.Fprintf(w, "\n%s %s\n", strings.Repeat("=", 20), result.File)
	if result.Valid {
		fmt.Fprintln(w, "✅ VALID")
		for _, info := range result.Info {
			fmt.Fprintln(w, "  "+info)
		}
		return true
	}
	fmt.Fprintln(w, "❌ INVALID")
	for _, err := range result.Errors {
		fmt.Fprintln(w, "  ❌ "+err)
	}
	return false
}

// packFiles expands the arguments into JSON files; directories contribute
// their *.json entries
func packFiles(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		matches, err := filepath.Glob(filepath.Join(arg, "*.json"))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	return files, nil
}

func run(ctx context.Context, cmd *cli.Command) error {
	args := cmd.Args().Slice()
	if len(args) == 0 {
		args = []string{cmd.String("levels-dir")}
	}
	files, err := packFiles(args)
	if err != nil {
		return fmt.Errorf("finding level packs: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no level packs found in %s", strings.Join(args, ", "))
	}

	out := cmd.Root().Writer
	allValid := true
	for _, file := range files {
		if !report(out, validatePack(ctx, file)) {
			allValid = false
		}
	}

	fmt.Fprintf(out, "\n%s\n", strings.Repeat("=", 40))
	if !allValid {
		fmt.Fprintln(out, "❌ Some level packs have errors")
		return errors.New("validation failed")
	}
	fmt.Fprintln(out, "✅ All level packs are valid!")
	return nil
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "strictly validate level pack JSON files",
		ArgsUsage: "[file or directory ...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "levels-dir",
				Value:   "../levels",
				Usage:   "directory scanned when no arguments are given",
				Sources: cli.EnvVars("LEVELS_DIR"),
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
