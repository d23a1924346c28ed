package game

import (
	"github.com/samber/lo"

	"github.com/tecu23/minesweeper-server/pkg/minefield"
	"github.com/tecu23/minesweeper-server/pkg/results"
)

// Result describes what an action did to the session
type Result struct {
	// Changed is false when the action was ignored
	Changed bool
	// Cascade holds flood fill levels still to be applied, in order. When it
	// is not empty the caller must apply every level with ApplyLevel and then
	// call FinishCascade.
	Cascade []Level
	// Outcome is set when the action ended the game and a report is due
	Outcome *results.Outcome
}

// Reveal opens the cell at (row, col). Out of range positions, finished games
// and revealed or flagged cells are ignored. The first reveal of a session
// relays the mines so that the clicked cell and its neighbours are safe.
func (s *Session) Reveal(row, col int) Result {
	if s.Terminal() || !s.Grid.InBounds(row, col) {
		return Result{}
	}
	if cell := s.Grid[row][col]; cell.Revealed || cell.Flagged {
		return Result{}
	}

	if s.Status == StatusFresh {
		s.start(row, col)
	}

	cell := &s.Grid[row][col]
	cell.Revealed = true
	s.CellsRevealed++

	switch {
	case cell.IsMine():
		return Result{Changed: true, Outcome: s.lose()}
	case cell.Value == 0:
		return s.cascade(PlanCascade(s.Grid, minefield.Pos{Row: row, Col: col}))
	default:
		return Result{Changed: true, Outcome: s.checkWin()}
	}
}

// Chord reveals the hidden neighbours of a revealed number once as many flags
// surround it as its value. Hitting an unflagged mine loses the game.
// candidates is only consulted when the rules trust the caller's list.
func (s *Session) Chord(row, col int, candidates []minefield.Pos) Result {
	if s.Terminal() || !s.Grid.InBounds(row, col) {
		return Result{}
	}
	origin := s.Grid[row][col]
	if !origin.Revealed || origin.Value <= 0 {
		return Result{}
	}
	if s.Grid.CountFlaggedAround(row, col) != origin.Value {
		return Result{}
	}

	targets := s.chordTargets(row, col, candidates)
	if len(targets) == 0 {
		return Result{}
	}

	if lo.SomeBy(targets, func(p minefield.Pos) bool { return s.Grid.At(p).IsMine() }) {
		return Result{Changed: true, Outcome: s.lose()}
	}

	var seeds []minefield.Pos
	for _, p := range targets {
		cell := s.Grid.At(p)
		cell.Revealed = true
		s.CellsRevealed++
		if cell.Value == 0 {
			seeds = append(seeds, p)
		}
	}

	plans := lo.Map(seeds, func(seed minefield.Pos, _ int) []Level {
		return PlanCascade(s.Grid, seed)
	})
	return s.cascade(MergeLevels(plans...))
}

// ToggleFlag puts or removes a flag on a hidden cell. No more flags than mines
// can be placed. It reports whether anything changed.
func (s *Session) ToggleFlag(row, col int) bool {
	if s.Terminal() || !s.Grid.InBounds(row, col) {
		return false
	}

	cell := &s.Grid[row][col]
	switch {
	case cell.Revealed:
		return false
	case cell.Flagged:
		cell.Flagged = false
		s.RemainingFlags++
	case s.RemainingFlags > 0:
		cell.Flagged = true
		s.RemainingFlags--
		s.FlagsPlaced++
		s.NoFlagUse = false
	default:
		return false
	}

	return true
}

// ApplyLevel reveals the cells of one cascade level that are still hidden and
// unflagged, returning how many were opened. Finished games are left alone.
func (s *Session) ApplyLevel(level Level) int {
	if s.Terminal() {
		return 0
	}

	opened := 0
	for _, p := range level {
		if !s.Grid.InBounds(p.Row, p.Col) {
			continue
		}
		cell := s.Grid.At(p)
		if cell.Revealed || cell.Flagged {
			continue
		}
		cell.Revealed = true
		opened++
	}
	s.CellsRevealed += opened

	return opened
}

// FinishCascade runs the win check once the last cascade level is applied
func (s *Session) FinishCascade() *results.Outcome {
	return s.checkWin()
}

// Restart returns a brand new session for the same player. The restart count
// carries over. Restarting a game in progress yields a "restarted" report.
func (s *Session) Restart() (*Session, *results.Outcome) {
	var outcome *results.Outcome
	if s.Active() {
		outcome = s.outcome(results.StatusRestarted)
	}

	next := NewSession(s.Player, s.rules, s.opts...)
	next.GameRestarts = s.GameRestarts + 1

	return next, outcome
}

// Abandon returns the report for a game in progress whose player went away.
// The session itself is unchanged.
func (s *Session) Abandon() *results.Outcome {
	if !s.Active() {
		return nil
	}
	return s.outcome(results.StatusAbandoned)
}

func (s *Session) start(row, col int) {
	s.Grid = minefield.GenerateSafe(s.rules.Size, s.rules.MineCount, row, col, s.rng)
	s.RemainingFlags = s.Grid.CountMines()
	s.CellsRevealed = 0
	now := s.now()
	s.StartTime = &now
	s.Status = StatusActive
}

func (s *Session) cascade(levels []Level) Result {
	if len(levels) == 0 {
		return Result{Changed: true, Outcome: s.checkWin()}
	}
	return Result{Changed: true, Cascade: levels}
}

func (s *Session) chordTargets(row, col int, candidates []minefield.Pos) []minefield.Pos {
	hidden := func(p minefield.Pos, _ int) bool {
		cell := s.Grid.At(p)
		return !cell.Flagged && !cell.Revealed
	}

	neighbors := s.Grid.Neighbors(row, col)
	if !s.rules.TrustChordCandidates {
		return lo.Filter(neighbors, hidden)
	}

	// client lists may only pick among the chorded cell's neighbours
	adjacent := lo.Filter(lo.Uniq(candidates), func(p minefield.Pos, _ int) bool {
		return lo.Contains(neighbors, p)
	})
	return lo.Filter(adjacent, hidden)
}

func (s *Session) lose() *results.Outcome {
	s.Grid.RevealAll()
	s.Status = StatusLost
	s.BombsExploded++
	elapsed := s.Elapsed()
	s.GameTime = &elapsed

	return s.outcome(results.StatusDefeat)
}

func (s *Session) checkWin() *results.Outcome {
	if s.Terminal() || !s.Grid.AllSafeRevealed() {
		return nil
	}

	s.Status = StatusWon
	elapsed := s.Elapsed()
	s.GameTime = &elapsed
	winTime := elapsed
	s.WinTime = &winTime

	return s.outcome(results.StatusSuccess)
}
