package world

import (
	"errors"
	"fmt"
)

// Cell classifies one terrain tile.
type Cell byte

const (
	CellOpen  Cell = '.' // walkable, transparent
	CellWall  Cell = '#' // blocks every sight line
	CellChasm Cell = '~' // blocks melee sight lines only; projectiles cross it
)

// Terrain is a row-major tile grid implementing Sight.
//
// Invariant: len(cells) == Width*Height. Tiles outside the grid are walls.
type Terrain struct {
	Width  int
	Height int
	cells  []Cell
}

// ParseTerrain builds a Terrain from text rows using '.', '#' and '~'.
//
// Precondition: rows is non-empty and every row has the same length.
// Postcondition: returns an error naming the first bad row or tile.
func ParseTerrain(rows []string) (*Terrain, error) {
	if len(rows) == 0 {
		return nil, errors.New("world.ParseTerrain: no rows")
	}
	width := len(rows[0])
	if width == 0 {
		return nil, errors.New("world.ParseTerrain: empty first row")
	}
	t := &Terrain{Width: width, Height: len(rows), cells: make([]Cell, 0, width*len(rows))}
	for y, row := range rows {
		if len(row) != width {
			return nil, fmt.Errorf("world.ParseTerrain: row %d has %d tiles, want %d", y, len(row), width)
		}
		for x := 0; x < width; x++ {
			c := Cell(row[x])
			switch c {
			case CellOpen, CellWall, CellChasm:
			default:
				return nil, fmt.Errorf("world.ParseTerrain: unknown tile %q at (%d,%d)", row[x], x, y)
			}
			t.cells = append(t.cells, c)
		}
	}
	return t, nil
}

// At returns the tile at p; CellWall outside the grid.
func (t *Terrain) At(p Point) Cell {
	if p.X < 0 || p.Y < 0 || p.X >= t.Width || p.Y >= t.Height {
		return CellWall
	}
	return t.cells[p.Y*t.Width+p.X]
}

func (t *Terrain) blocks(kind LOSKind, p Point) bool {
	switch t.At(p) {
	case CellWall:
		return true
	case CellChasm:
		return kind == LOSMelee
	default:
		return false
	}
}

// LineOfSight walks the Bresenham line from a to b. The endpoints are the
// observers' own tiles and are not tested.
func (t *Terrain) LineOfSight(kind LOSKind, a, b Point) bool {
	dx := abs(b.X - a.X)
	dy := -abs(b.Y - a.Y)
	sx, sy := 1, 1
	if a.X > b.X {
		sx = -1
	}
	if a.Y > b.Y {
		sy = -1
	}
	err := dx + dy
	x, y := a.X, a.Y
	for {
		if x == b.X && y == b.Y {
			return true
		}
		if (x != a.X || y != a.Y) && t.blocks(kind, Point{X: x, Y: y}) {
			return false
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x += sx
		}
		if e2 <= dx {
			err += dx
			y += sy
		}
	}
}

// Distance returns the Euclidean distance between a and b.
func (t *Terrain) Distance(a, b Point) float64 {
	return a.Distance(b)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
