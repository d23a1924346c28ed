package minefield

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertNeighbourCounts(t *testing.T, g Grid) {
	t.Helper()
	for r := range g {
		for c := range g[r] {
			if g[r][c].IsMine() {
				continue
			}
			want := 0
			for _, p := range g.Neighbors(r, c) {
				if g.At(p).IsMine() {
					want++
				}
			}
			assert.Equalf(t, want, g[r][c].Value, "cell (%d,%d)", r, c)
		}
	}
}

func TestGenerateMineCount(t *testing.T) {
	for seed := uint64(0); seed < 20; seed++ {
		g := Generate(20, 70, NewRand(seed))
		require.Equal(t, 20, g.Size())
		assert.Equal(t, 70, g.CountMines())
		assertNeighbourCounts(t, g)
		assert.Zero(t, g.CountRevealed())
	}
}

func TestGenerateClampsMineCount(t *testing.T) {
	g := Generate(3, 50, NewRand(1))
	assert.Equal(t, 9, g.CountMines())

	g = Generate(1, 0, NewRand(1))
	require.Equal(t, 1, g.Size())
	assert.Equal(t, 0, g[0][0].Value)
}

func TestGenerateSafeKeepsNeighbourhoodClear(t *testing.T) {
	clicks := []Pos{{0, 0}, {0, 19}, {19, 0}, {19, 19}, {10, 10}, {0, 7}, {13, 19}}
	for i, click := range clicks {
		g := GenerateSafe(20, 70, click.Row, click.Col, NewRand(uint64(i)))
		assert.False(t, g.At(click).IsMine())
		assert.Equal(t, 0, g.At(click).Value, "safe cell must be empty")
		for _, p := range g.Neighbors(click.Row, click.Col) {
			assert.Falsef(t, g.At(p).IsMine(), "mine next to first click at %v", p)
		}
		assert.Equal(t, 70, g.CountMines())
		assertNeighbourCounts(t, g)
	}
}

func TestGenerateSafeDegradesWhenCrowded(t *testing.T) {
	// 16 cells, 9 of them reserved: at most 7 mines can ever fit.
	g := GenerateSafe(4, 12, 1, 1, NewRand(3))
	assert.LessOrEqual(t, g.CountMines(), 7)
	for _, p := range append(g.Neighbors(1, 1), Pos{1, 1}) {
		assert.False(t, g.At(p).IsMine())
	}
	assertNeighbourCounts(t, g)
}

func TestGenerateDeterministicForSeed(t *testing.T) {
	a := Generate(12, 30, NewRand(42))
	b := Generate(12, 30, NewRand(42))
	assert.Equal(t, a, b)
}

func TestGridHelpers(t *testing.T) {
	g := New(3)
	g[0][0].Value = Mine
	g.computeValues()

	assert.Len(t, g.Neighbors(0, 0), 3)
	assert.Len(t, g.Neighbors(1, 1), 8)
	assert.Len(t, g.Neighbors(0, 1), 5)
	assert.True(t, g.InBounds(2, 2))
	assert.False(t, g.InBounds(3, 0))
	assert.False(t, g.InBounds(0, -1))

	assert.False(t, g.AllSafeRevealed())
	g[1][0].Flagged = true
	assert.Equal(t, 1, g.CountFlaggedAround(0, 0))
	assert.Equal(t, 1, g.CountFlaggedAround(1, 1))

	g.RevealAll()
	assert.True(t, g.AllSafeRevealed())
	assert.Equal(t, 9, g.CountRevealed())
}
