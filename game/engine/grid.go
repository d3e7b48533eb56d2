package engine

import (
	"errors"
	"fmt"
)

var ErrOutOfBounds = errors.New("coordinates out of bounds")

// Grid owns the tile kinds for one level. Cells are addressed as (x, y)
// with row y of the layout at index y.
type Grid struct {
	width  int
	height int
	cells  []TileKind
}

// NewGrid creates a grid of Empty cells
func NewGrid(width, height int) *Grid {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Grid{
		width:  width,
		height: height,
		cells:  make([]TileKind, width*height),
	}
}

// Width returns the number of columns
func (g *Grid) Width() int { return g.width }

// Height returns the number of rows
func (g *Grid) Height() int { return g.height }

// InBounds checks x,y against [0,width) x [0,height)
func (g *Grid) InBounds(x, y int) bool {
	return x >= 0 && x < g.width && y >= 0 && y < g.height
}

// At returns the tile at x,y
func (g *Grid) At(x, y int) (TileKind, error) {
	if !g.InBounds(x, y) {
		return Empty, fmt.Errorf("%w: (%d,%d) outside %dx%d grid", ErrOutOfBounds, x, y, g.width, g.height)
	}
	return g.cells[y*g.width+x], nil
}

// Set overwrites the tile at x,y. Only the decoder and tests place tiles;
// runs mutate the grid through Consume.
func (g *Grid) Set(x, y int, kind TileKind) error {
	if !g.InBounds(x, y) {
		return fmt.Errorf("%w: (%d,%d) outside %dx%d grid", ErrOutOfBounds, x, y, g.width, g.height)
	}
	g.cells[y*g.width+x] = kind
	return nil
}

// Consume turns a Treasure at x,y into Empty. It reports false when the
// cell holds anything else.
func (g *Grid) Consume(x, y int) (bool, error) {
	kind, err := g.At(x, y)
	if err != nil {
		return false, err
	}
	if kind != Treasure {
		return false, nil
	}
	g.cells[y*g.width+x] = Empty
	return true, nil
}

// Find returns the first cell of the given kind, scanning row by row
func (g *Grid) Find(kind TileKind) (Position, bool) {
	for y := 0; y < g.height; y++ {
		for x := 0; x < g.width; x++ {
			if g.cells[y*g.width+x] == kind {
				return Position{X: x, Y: y}, true
			}
		}
	}
	return Position{}, false
}

// Count counts cells of the given kind
func (g *Grid) Count(kind TileKind) int {
	count := 0
	for _, c := range g.cells {
		if c == kind {
			count++
		}
	}
	return count
}

// Clone returns an independent copy
func (g *Grid) Clone() *Grid {
	cells := make([]TileKind, len(g.cells))
	copy(cells, g.cells)
	return &Grid{width: g.width, height: g.height, cells: cells}
}

// Rows encodes the grid back into layout rows
func (g *Grid) Rows() []string {
	rows := make([]string, g.height)
	buf := make([]byte, g.width)
	for y := 0; y < g.height; y++ {
		for x := 0; x < g.width; x++ {
			buf[x] = g.cells[y*g.width+x].Char()
		}
		rows[y] = string(buf)
	}
	return rows
}
