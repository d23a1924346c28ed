package minefield

import (
	"math/rand/v2"
)

// NewRand returns a deterministic random source for the given seed
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Generate places mineCount mines uniformly at random on a size×size grid and
// computes the neighbour counts. mineCount is clamped to the number of cells.
// A nil rng falls back to the global source.
func Generate(size, mineCount int, rng *rand.Rand) Grid {
	g := New(size)
	mineCount = clampMines(size, mineCount)

	placed := 0
	for placed < mineCount {
		r, c := intN(rng, size), intN(rng, size)
		if g[r][c].IsMine() {
			continue
		}
		g[r][c].Value = Mine
		placed++
	}

	g.computeValues()
	return g
}

// GenerateSafe is Generate with the 3×3 neighbourhood of (safeRow, safeCol)
// kept free of mines. Placement gives up after 2*mineCount attempts, so the
// board may carry fewer mines than requested.
func GenerateSafe(size, mineCount, safeRow, safeCol int, rng *rand.Rand) Grid {
	g := New(size)
	mineCount = clampMines(size, mineCount)

	inSafeZone := func(r, c int) bool {
		return abs(r-safeRow) <= 1 && abs(c-safeCol) <= 1
	}

	placed, attempts := 0, 0
	maxAttempts := mineCount * 2
	for placed < mineCount && attempts < maxAttempts {
		attempts++
		r, c := intN(rng, size), intN(rng, size)
		if inSafeZone(r, c) || g[r][c].IsMine() {
			continue
		}
		g[r][c].Value = Mine
		placed++
	}

	g.computeValues()
	return g
}

func clampMines(size, mineCount int) int {
	if size <= 0 || mineCount < 0 {
		return 0
	}
	return min(mineCount, size*size)
}

func intN(rng *rand.Rand, n int) int {
	if rng == nil {
		return rand.IntN(n)
	}
	return rng.IntN(n)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
