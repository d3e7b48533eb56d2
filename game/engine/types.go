package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownCommand   = errors.New("unknown command")
	ErrUnknownDirection = errors.New("unknown direction")
)

// TileKind represents the semantic category of a grid cell
type TileKind int

const (
	Empty TileKind = iota
	Start
	End
	Treasure
	Wall
	Enemy
	Trap
)

const (
	// DefaultGridSize is used when a level leaves width or height unset
	DefaultGridSize = 4
	MaxGridSize     = 50
	MaxProgramSize  = 200
)

var tileNames = [...]string{"empty", "start", "end", "treasure", "wall", "enemy", "trap"}

// tileChars maps each kind back to its layout character
var tileChars = [...]byte{'.', 'S', 'E', 'T', '#', 'M', 'X'}

func (k TileKind) String() string {
	if k < Empty || k > Trap {
		return fmt.Sprintf("tile(%d)", int(k))
	}
	return tileNames[k]
}

// Char returns the layout character for the kind
func (k TileKind) Char() byte {
	if k < Empty || k > Trap {
		return '.'
	}
	return tileChars[k]
}

// IsHazard reports whether stepping on the tile ends the run
func (k TileKind) IsHazard() bool {
	return k == Enemy || k == Trap
}

func (k TileKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *TileKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for i, name := range tileNames {
		if name == s {
			*k = TileKind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown tile kind %q", s)
}

// TileFromChar decodes a layout character. Unknown characters decode as
// Empty and report ok=false.
func TileFromChar(c byte) (kind TileKind, ok bool) {
	switch c {
	case 'S':
		return Start, true
	case 'E':
		return End, true
	case 'T':
		return Treasure, true
	case '#':
		return Wall, true
	case 'X':
		return Trap, true
	case 'M':
		return Enemy, true
	case '.':
		return Empty, true
	}
	return Empty, false
}

// Direction is the player's facing. North is y+1.
type Direction int

const (
	North Direction = iota
	East
	South
	West
)

var directionNames = [...]string{"north", "east", "south", "west"}

func (d Direction) String() string {
	if d < North || d > West {
		return fmt.Sprintf("direction(%d)", int(d))
	}
	return directionNames[d]
}

// Right returns the direction after a clockwise quarter turn
func (d Direction) Right() Direction {
	return (d + 1) % 4
}

// Left returns the direction after a counter-clockwise quarter turn
func (d Direction) Left() Direction {
	return (d + 3) % 4
}

// Delta returns the unit offset of one step forward
func (d Direction) Delta() (dx, dy int) {
	switch d {
	case North:
		return 0, 1
	case East:
		return 1, 0
	case South:
		return 0, -1
	case West:
		return -1, 0
	}
	return 0, 0
}

// ParseDirection accepts the lower-case direction names
func ParseDirection(s string) (Direction, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range directionNames {
		if name == s {
			return Direction(i), nil
		}
	}
	return North, fmt.Errorf("%w: %q", ErrUnknownDirection, s)
}

func (d Direction) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Direction) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDirection(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Command is one atomic player instruction
type Command int

const (
	Advance Command = iota
	TurnRight
	TurnLeft
)

var commandNames = [...]string{"advance", "turn_right", "turn_left"}

// AllCommands lists every command kind in declaration order
var AllCommands = []Command{Advance, TurnRight, TurnLeft}

func (c Command) String() string {
	if c < Advance || c > TurnLeft {
		return fmt.Sprintf("command(%d)", int(c))
	}
	return commandNames[c]
}

// ParseCommand accepts the canonical names plus a few aliases used by
// block editors ("forward", "right", "left").
func ParseCommand(s string) (Command, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "advance", "forward", "move_forward":
		return Advance, nil
	case "turn_right", "right":
		return TurnRight, nil
	case "turn_left", "left":
		return TurnLeft, nil
	}
	return Advance, fmt.Errorf("%w: %q", ErrUnknownCommand, s)
}

// ParseProgram parses every word, failing on the first unknown one
func ParseProgram(words []string) ([]Command, error) {
	commands := make([]Command, 0, len(words))
	for i, w := range words {
		cmd, err := ParseCommand(w)
		if err != nil {
			return nil, fmt.Errorf("command %d: %w", i+1, err)
		}
		commands = append(commands, cmd)
	}
	return commands, nil
}

func (c Command) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Command) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseCommand(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Position represents x,y coordinates
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// PlayerState is the player's cell and facing
type PlayerState struct {
	X      int       `json:"x"`
	Y      int       `json:"y"`
	Facing Direction `json:"facing"`
}

// Pos returns the player's cell
func (p PlayerState) Pos() Position {
	return Position{X: p.X, Y: p.Y}
}

// RunOutcome is the terminal result of one run
type RunOutcome int

const (
	InProgress RunOutcome = iota
	OutOfBounds
	HazardHit
	GoalReached
	GoalMissed
)

var outcomeNames = [...]string{"in_progress", "out_of_bounds", "hazard_hit", "goal_reached", "goal_missed"}

func (o RunOutcome) String() string {
	if o < InProgress || o > GoalMissed {
		return fmt.Sprintf("outcome(%d)", int(o))
	}
	return outcomeNames[o]
}

// Halted reports whether the outcome ended the run before the program finished
func (o RunOutcome) Halted() bool {
	return o == OutOfBounds || o == HazardHit
}

func (o RunOutcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.String())
}

func (o *RunOutcome) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for i, name := range outcomeNames {
		if name == s {
			*o = RunOutcome(i)
			return nil
		}
	}
	return fmt.Errorf("unknown run outcome %q", s)
}
