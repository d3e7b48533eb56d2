package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/wricardo/command-quest/game/engine"
)

func TestAnalyzeLevel(t *testing.T) {
	def := &engine.LevelDefinition{
		ID:                1,
		Name:              "detour",
		StartDirection:    engine.East,
		Width:             3,
		Height:            2,
		Layout:            []string{"SE.", "#XT"},
		AvailableCommands: []engine.Command{engine.Advance, engine.TurnLeft, engine.TurnRight},
	}

	a := analyzeLevel(t.Context(), def)
	if a.Width != 3 || a.Height != 2 {
		t.Errorf("Expected 3x2, got %dx%d", a.Width, a.Height)
	}
	want := map[string]int{"start": 1, "end": 1, "treasure": 1, "wall": 1, "enemy": 0, "trap": 1, "empty": 1}
	if !reflect.DeepEqual(a.Tiles, want) {
		t.Errorf("Expected tiles %v, got %v", want, a.Tiles)
	}
	if len(a.Shortest) != 1 || a.Shortest[0] != engine.Advance {
		t.Errorf("Expected a single advance, got %v", a.Shortest)
	}
	if len(a.AllTreasure) == 0 {
		t.Error("Expected a route collecting the treasure")
	}
	if a.Unsolvable || len(a.Warnings) != 0 {
		t.Errorf("Unexpected problems: %+v", a)
	}
}

func TestAnalyzeLevel_Unsolvable(t *testing.T) {
	a := analyzeLevel(t.Context(), &engine.LevelDefinition{
		ID:                2,
		StartDirection:    engine.West,
		Width:             2,
		Height:            1,
		Layout:            []string{"SE"},
		AvailableCommands: []engine.Command{engine.Advance},
	})
	if !a.Unsolvable || a.Shortest != nil {
		t.Errorf("Expected unsolvable level, got %+v", a)
	}
}

func TestAnalyzePack_DefaultPack(t *testing.T) {
	a := analyzePack(t.Context(), "tutorial", engine.DefaultPack())
	if len(a.Levels) != 2 || a.Unsolvable != 0 {
		t.Fatalf("Expected two solvable levels, got %+v", a)
	}
	if a.MaxScore != 2 {
		t.Errorf("Expected max score 2, got %d", a.MaxScore)
	}
	if a.ResetPolicy != "keep score" {
		t.Errorf("Unexpected reset policy %q", a.ResetPolicy)
	}
}

func TestPrintPack(t *testing.T) {
	var out bytes.Buffer
	printPack(&out, analyzePack(t.Context(), "tutorial", engine.DefaultPack()))
	for _, want := range []string{
		"=== Analyzing tutorial ===",
		"-- Level 1: Tutorial 1: Move Forward (4x4)",
		"Start: (0, 0) facing east",
		"treasure=1",
		"✅ Shortest program 3: advance advance advance",
		"✅ Shortest program 3: turn_left advance advance",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("Expected %q in output:\n%s", want, out.String())
		}
	}
}

func TestRun_JSON(t *testing.T) {
	var out bytes.Buffer
	cmd := newCommand()
	cmd.Writer = &out
	if err := cmd.Run(context.Background(), []string{"analyze", "--levels-dir", t.TempDir(), "--json"}); err != nil {
		t.Fatalf("analyze failed: %v", err)
	}

	var analyses []PackAnalysis
	if err := json.Unmarshal(out.Bytes(), &analyses); err != nil {
		t.Fatalf("Invalid JSON output: %v\n%s", err, out.String())
	}
	if len(analyses) != 1 || analyses[0].Pack != "tutorial" {
		t.Errorf("Expected the built-in tutorial, got %+v", analyses)
	}
}

func TestRun_ShippedPacks(t *testing.T) {
	var out bytes.Buffer
	cmd := newCommand()
	cmd.Writer = &out
	if err := cmd.Run(context.Background(), []string{"analyze", "--levels-dir", "../../levels", "classic"}); err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if strings.Contains(out.String(), "CRITICAL") {
		t.Errorf("Shipped pack has unsolvable levels:\n%s", out.String())
	}
}

func TestRun_UnknownPack(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0644)

	var out bytes.Buffer
	cmd := newCommand()
	cmd.Writer = &out
	err := cmd.Run(context.Background(), []string{"analyze", "--levels-dir", dir, "missing", "broken"})
	if err == nil {
		t.Fatal("Expected errors for missing and broken packs")
	}
	if strings.Count(out.String(), "Error loading") != 2 {
		t.Errorf("Expected two load errors:\n%s", out.String())
	}
}
