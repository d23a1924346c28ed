// Package minefield generates minesweeper boards and answers questions about them.
package minefield

import (
	"github.com/samber/lo"
)

// Mine is the cell value used for a mined cell
const Mine = -1

// Cell is a single square of the board. Value is Mine or the number of
// mined neighbours (0..8).
type Cell struct {
	Value    int  `json:"value"`
	Revealed bool `json:"revealed"`
	Flagged  bool `json:"flagged"`
}

// IsMine reports whether the cell holds a mine
func (c Cell) IsMine() bool {
	return c.Value == Mine
}

// Pos addresses a cell by row and column
type Pos struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Grid is a square matrix of cells indexed [row][col]
type Grid [][]Cell

var offsets = [8][2]int{
	{-1, -1}, {-1, 0}, {-1, 1},
	{0, -1}, {0, 1},
	{1, -1}, {1, 0}, {1, 1},
}

// New returns an empty size×size grid
func New(size int) Grid {
	if size < 0 {
		size = 0
	}
	return lo.Times(size, func(_ int) []Cell {
		return make([]Cell, size)
	})
}

// Size returns the side length of the grid
func (g Grid) Size() int {
	return len(g)
}

// InBounds reports whether (row, col) lies on the grid
func (g Grid) InBounds(row, col int) bool {
	return row >= 0 && row < len(g) && col >= 0 && col < len(g[row])
}

// At returns a pointer to the cell at p. p must be in bounds.
func (g Grid) At(p Pos) *Cell {
	return &g[p.Row][p.Col]
}

// Neighbors returns the in-bounds 8-neighbourhood of (row, col)
func (g Grid) Neighbors(row, col int) []Pos {
	out := make([]Pos, 0, len(offsets))
	for _, d := range offsets {
		r, c := row+d[0], col+d[1]
		if g.InBounds(r, c) {
			out = append(out, Pos{Row: r, Col: c})
		}
	}
	return out
}

// CountMines returns the number of mined cells on the grid
func (g Grid) CountMines() int {
	return lo.SumBy(g, func(row []Cell) int {
		return lo.CountBy(row, Cell.IsMine)
	})
}

// CountRevealed returns the number of revealed cells on the grid
func (g Grid) CountRevealed() int {
	return lo.SumBy(g, func(row []Cell) int {
		return lo.CountBy(row, func(c Cell) bool { return c.Revealed })
	})
}

// CountFlaggedAround returns how many neighbours of (row, col) carry a flag
func (g Grid) CountFlaggedAround(row, col int) int {
	return lo.CountBy(g.Neighbors(row, col), func(p Pos) bool {
		return g.At(p).Flagged
	})
}

// RevealAll discloses every cell of the board
func (g Grid) RevealAll() {
	for r := range g {
		for c := range g[r] {
			g[r][c].Revealed = true
		}
	}
}

// AllSafeRevealed reports whether every cell is either a mine or revealed
func (g Grid) AllSafeRevealed() bool {
	return lo.EveryBy(g, func(row []Cell) bool {
		return lo.EveryBy(row, func(c Cell) bool {
			return c.IsMine() || c.Revealed
		})
	})
}

// computeValues fills in the neighbour mine count of every non-mine cell
func (g Grid) computeValues() {
	for r := range g {
		for c := range g[r] {
			if g[r][c].IsMine() {
				continue
			}
			g[r][c].Value = lo.CountBy(g.Neighbors(r, c), func(p Pos) bool {
				return g.At(p).IsMine()
			})
		}
	}
}
