package engine

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/zyedidia/generic/mapset"
)

// ErrConfiguration marks level data that cannot start a session
var ErrConfiguration = errors.New("configuration error")

// Messages are the player-facing notices of a level pack
type Messages struct {
	Welcome      string `json:"welcome"`
	Executing    string `json:"executing"`
	Treasure     string `json:"treasure"`
	HazardEnemy  string `json:"hazard_enemy"`
	HazardTrap   string `json:"hazard_trap"`
	OutOfBounds  string `json:"out_of_bounds"`
	GoalReached  string `json:"goal_reached"`
	GoalMissed   string `json:"goal_missed"`
	GameComplete string `json:"game_complete"`
	Reset        string `json:"reset"`
	Rejected     string `json:"rejected"`
}

// DefaultMessages returns the notices used when a pack leaves one empty
func DefaultMessages() Messages {
	return Messages{
		Welcome:      "Build a program and press run!",
		Executing:    "Executing: {command}...",
		Treasure:     "Treasure collected! Score: {score}",
		HazardEnemy:  "You ran into an enemy! Game over.",
		HazardTrap:   "You fell into a trap! Game over.",
		OutOfBounds:  "You left the board! Game over.",
		GoalReached:  "Congratulations! You reached the end of the level!",
		GoalMissed:   "Your program did not reach the end. Try again!",
		GameComplete: "You completed every level! Thanks for playing!",
		Reset:        "Level restarted. Try again!",
		Rejected:     "No commands to run or commands already running.",
	}
}

// WithDefaults fills empty notices from DefaultMessages
func (m Messages) WithDefaults() Messages {
	d := DefaultMessages()
	fill := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	fill(&m.Welcome, d.Welcome)
	fill(&m.Executing, d.Executing)
	fill(&m.Treasure, d.Treasure)
	fill(&m.HazardEnemy, d.HazardEnemy)
	fill(&m.HazardTrap, d.HazardTrap)
	fill(&m.OutOfBounds, d.OutOfBounds)
	fill(&m.GoalReached, d.GoalReached)
	fill(&m.GoalMissed, d.GoalMissed)
	fill(&m.GameComplete, d.GameComplete)
	fill(&m.Reset, d.Reset)
	fill(&m.Rejected, d.Rejected)
	return m
}

// ExecutingFor fills {command} in the executing notice
func (m Messages) ExecutingFor(cmd Command) string {
	return strings.NewReplacer("{command}", cmd.String()).Replace(m.Executing)
}

// TreasureFor fills {score} in the treasure notice
func (m Messages) TreasureFor(score int) string {
	return strings.NewReplacer("{score}", strconv.Itoa(score)).Replace(m.Treasure)
}

// LevelPack is an ordered campaign of levels
type LevelPack struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	// ScoreResetOnRetry rolls the score back to its value at level entry
	// when the level is reset
	ScoreResetOnRetry bool              `json:"score_reset_on_retry"`
	Messages          Messages          `json:"messages"`
	Levels            []LevelDefinition `json:"levels"`
}

// ValidatePack checks the fields a session needs to start. Missing Start
// or End tiles are reported by LintLevel, not here.
func ValidatePack(pack *LevelPack) error {
	if pack == nil {
		return fmt.Errorf("%w: pack is nil", ErrConfiguration)
	}
	if pack.Name == "" {
		return fmt.Errorf("%w: name is required", ErrConfiguration)
	}
	if len(pack.Levels) == 0 {
		return fmt.Errorf("%w: pack %q defines no levels", ErrConfiguration, pack.Name)
	}

	ids := mapset.New[int]()
	for i := range pack.Levels {
		level := &pack.Levels[i]
		if ids.Has(level.ID) {
			return fmt.Errorf("%w: level %d: duplicate id %d", ErrConfiguration, i+1, level.ID)
		}
		ids.Put(level.ID)

		if level.Width < 0 || level.Width > MaxGridSize || level.Height < 0 || level.Height > MaxGridSize {
			return fmt.Errorf("%w: level %d: board must be at most %dx%d, got %dx%d",
				ErrConfiguration, i+1, MaxGridSize, MaxGridSize, level.Width, level.Height)
		}
		if level.StartDirection < North || level.StartDirection > West {
			return fmt.Errorf("%w: level %d: invalid start direction", ErrConfiguration, i+1)
		}
		for _, cmd := range level.AvailableCommands {
			if cmd < Advance || cmd > TurnLeft {
				return fmt.Errorf("%w: level %d: invalid command %d", ErrConfiguration, i+1, int(cmd))
			}
		}
	}
	return nil
}

// LintLevel returns human-readable warnings about a level that still loads
// but is unlikely to play as intended
func LintLevel(def *LevelDefinition) []string {
	var warnings []string
	width, height := def.Size()
	grid := DecodeLayout(def.Layout, width, height)

	switch starts := grid.Count(Start); {
	case starts == 0:
		warnings = append(warnings, "no start tile (S); player will start at (0,0)")
	case starts > 1:
		warnings = append(warnings, fmt.Sprintf("%d start tiles; the first one in row order is used", starts))
	}
	if grid.Count(End) == 0 {
		warnings = append(warnings, "no end tile (E); the level cannot be won")
	}
	if len(def.Layout) > height {
		warnings = append(warnings, fmt.Sprintf("layout has %d rows, only %d are used", len(def.Layout), height))
	}
	for y, row := range def.Layout {
		if len(row) > width {
			warnings = append(warnings, fmt.Sprintf("row %d has %d characters, only %d are used", y, len(row), width))
		}
	}
	for _, pos := range unknownChars(def.Layout, width, height) {
		warnings = append(warnings, fmt.Sprintf("unknown character %q at (%d,%d) treated as empty",
			def.Layout[pos.Y][pos.X], pos.X, pos.Y))
	}
	if len(def.AvailableCommands) == 0 {
		warnings = append(warnings, "no commands offered")
	}
	return warnings
}

// DefaultPack returns the built-in tutorial campaign
func DefaultPack() *LevelPack {
	return &LevelPack{
		Name:        "tutorial",
		Description: "Built-in tutorial levels",
		Messages:    DefaultMessages(),
		Levels: []LevelDefinition{
			{
				ID:              1,
				Name:            "Tutorial 1: Move Forward",
				TutorialMessage: "Drag the advance block into the program and press run to reach the flag.",
				StartDirection:  East,
				Width:           4,
				Height:          4,
				Layout: []string{
					"S.TE",
					"....",
					"....",
					"....",
				},
				AvailableCommands: []Command{Advance},
			},
			{
				ID:              2,
				Name:            "Tutorial 2: Turning",
				TutorialMessage: "Turn to face the goal before moving. Watch out for the trap!",
				StartDirection:  East,
				Width:           4,
				Height:          4,
				Layout: []string{
					"S.X.",
					"T...",
					"E...",
					"....",
				},
				AvailableCommands: []Command{Advance, TurnRight, TurnLeft},
			},
		},
	}
}
