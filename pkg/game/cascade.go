package game

import (
	"github.com/gammazero/deque"

	"github.com/tecu23/minesweeper-server/pkg/minefield"
)

// Level is one wave of a flood fill: cells that are revealed together
type Level []minefield.Pos

// PlanCascade works out, breadth first, the waves in which the empty region
// around the seeds is disclosed. Each level holds the unrevealed, unflagged
// neighbours of the previous level's empty cells. The grid is not modified.
func PlanCascade(grid minefield.Grid, seeds ...minefield.Pos) []Level {
	visited := make(map[minefield.Pos]struct{}, len(seeds))
	var frontier deque.Deque[minefield.Pos]
	for _, seed := range seeds {
		visited[seed] = struct{}{}
		frontier.PushBack(seed)
	}

	var levels []Level
	for frontier.Len() > 0 {
		var next Level
		for n := frontier.Len(); n > 0; n-- {
			p := frontier.PopFront()
			for _, nb := range grid.Neighbors(p.Row, p.Col) {
				if _, seen := visited[nb]; seen {
					continue
				}
				visited[nb] = struct{}{}

				cell := grid.At(nb)
				if cell.Flagged || cell.Revealed {
					continue
				}
				next = append(next, nb)
			}
		}

		if len(next) == 0 {
			break
		}
		levels = append(levels, next)

		// only empty cells keep the fill going
		for _, p := range next {
			if grid.At(p).Value == 0 {
				frontier.PushBack(p)
			}
		}
	}

	return levels
}

// MergeLevels combines independent cascades that share one delay schedule:
// level i of the result is the union of level i of every plan.
func MergeLevels(plans ...[]Level) []Level {
	depth := 0
	for _, plan := range plans {
		depth = max(depth, len(plan))
	}

	merged := make([]Level, 0, depth)
	seen := make(map[minefield.Pos]struct{})
	for i := 0; i < depth; i++ {
		var level Level
		for _, plan := range plans {
			if i >= len(plan) {
				continue
			}
			for _, p := range plan[i] {
				if _, dup := seen[p]; dup {
					continue
				}
				seen[p] = struct{}{}
				level = append(level, p)
			}
		}
		merged = append(merged, level)
	}

	return merged
}
