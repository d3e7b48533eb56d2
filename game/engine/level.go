package engine

import (
	"github.com/zyedidia/generic/mapset"
	"go.uber.org/zap"

	"github.com/wricardo/command-quest/logging"
)

// LevelDefinition is authored, read-only level data
type LevelDefinition struct {
	ID                int       `json:"id"`
	Name              string    `json:"name"`
	TutorialMessage   string    `json:"tutorial_message"`
	StartDirection    Direction `json:"start_direction"`
	Width             int       `json:"width,omitempty"`
	Height            int       `json:"height,omitempty"`
	Layout            []string  `json:"layout"`
	AvailableCommands []Command `json:"available_commands"`
}

// Size returns the board dimensions, substituting DefaultGridSize for
// unset values
func (l *LevelDefinition) Size() (width, height int) {
	width, height = l.Width, l.Height
	if width <= 0 {
		width = DefaultGridSize
	}
	if height <= 0 {
		height = DefaultGridSize
	}
	return width, height
}

// Offers reports whether the level's palette contains the command
func (l *LevelDefinition) Offers(cmd Command) bool {
	return l.offered().Has(cmd)
}

// NotOffered returns the distinct commands of a program that the level
// does not offer, in first-seen order
func (l *LevelDefinition) NotOffered(commands []Command) []Command {
	offered := l.offered()
	seen := mapset.New[Command]()
	var missing []Command
	for _, cmd := range commands {
		if offered.Has(cmd) || seen.Has(cmd) {
			continue
		}
		seen.Put(cmd)
		missing = append(missing, cmd)
	}
	return missing
}

func (l *LevelDefinition) offered() mapset.Set[Command] {
	set := mapset.New[Command]()
	for _, cmd := range l.AvailableCommands {
		set.Put(cmd)
	}
	return set
}

// DecodeLayout turns layout rows into a width x height grid. Characters
// outside the tile alphabet decode as Empty, short rows leave trailing
// cells Empty and rows or columns beyond the board are ignored.
func DecodeLayout(rows []string, width, height int) *Grid {
	grid := NewGrid(width, height)
	for y := 0; y < height && y < len(rows); y++ {
		row := rows[y]
		for x := 0; x < width && x < len(row); x++ {
			kind, _ := TileFromChar(row[x])
			grid.cells[y*width+x] = kind
		}
	}
	return grid
}

// unknownChars lists the in-board positions whose character fell back to Empty
func unknownChars(rows []string, width, height int) []Position {
	var out []Position
	for y := 0; y < height && y < len(rows); y++ {
		row := rows[y]
		for x := 0; x < width && x < len(row); x++ {
			if _, ok := TileFromChar(row[x]); !ok {
				out = append(out, Position{X: x, Y: y})
			}
		}
	}
	return out
}

// LoadLevel builds a fresh grid and the initial player state for a level.
// A level without a Start tile places the player at (0,0).
func LoadLevel(def *LevelDefinition, logger *zap.Logger) (*Grid, PlayerState) {
	logger = logging.OrNop(logger)
	width, height := def.Size()
	grid := DecodeLayout(def.Layout, width, height)

	if unknown := unknownChars(def.Layout, width, height); len(unknown) > 0 {
		logger.Warn("layout contains unknown characters, decoded as empty",
			zap.Int("level_id", def.ID), zap.Int("count", len(unknown)))
	}

	state := PlayerState{Facing: def.StartDirection}
	if pos, ok := grid.Find(Start); ok {
		state.X, state.Y = pos.X, pos.Y
	} else {
		logger.Warn("level has no start tile, placing player at (0,0)",
			zap.Int("level_id", def.ID), zap.String("level", def.Name))
	}
	return grid, state
}
