// Package game holds the rules of a single player's minesweeper game
package game

import (
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/tecu23/minesweeper-server/pkg/messages"
	"github.com/tecu23/minesweeper-server/pkg/minefield"
	"github.com/tecu23/minesweeper-server/pkg/results"
)

// Status is the state of a game session
type Status string

const (
	StatusFresh  Status = "fresh"  // board generated, no reveal yet
	StatusActive Status = "active" // first reveal done
	StatusWon    Status = "won"
	StatusLost   Status = "lost"
)

// Rules configures the board of a session
type Rules struct {
	Size      int
	MineCount int
	// TrustChordCandidates makes Chord use the caller's candidate list instead
	// of recomputing the neighbours of the chorded cell.
	TrustChordCandidates bool
}

// Player is the display identity attached to a session
type Player struct {
	ID    string
	Name  string
	Image string
}

// Option customises a new session
type Option func(*Session)

// WithRand sets the random source used to lay mines
func WithRand(rng *rand.Rand) Option {
	return func(s *Session) { s.rng = rng }
}

// WithClock sets the time source used for timing the game
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// Session is one player's game. It is not safe for concurrent use; callers
// serialise access.
type Session struct {
	GameID uuid.UUID // changes on every restart
	Player Player
	Grid   minefield.Grid
	Status Status

	RemainingFlags int
	FlagsPlaced    int
	BombsExploded  int
	CellsRevealed  int
	GameRestarts   int
	NoFlagUse      bool

	StartTime *time.Time
	GameTime  *int64 // milliseconds, set once the game is over
	WinTime   *int64

	rules Rules
	rng   *rand.Rand
	now   func() time.Time
	opts  []Option
}

// NewSession creates a fresh session. The board is laid out but not yet made
// safe; that happens on the first reveal.
func NewSession(player Player, rules Rules, opts ...Option) *Session {
	s := &Session{
		GameID:         uuid.New(),
		Player:         player,
		Status:         StatusFresh,
		RemainingFlags: rules.MineCount,
		NoFlagUse:      true,
		rules:          rules,
		now:            time.Now,
		opts:           opts,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.Grid = minefield.Generate(rules.Size, rules.MineCount, s.rng)
	return s
}

// Rules returns the board configuration of the session
func (s *Session) Rules() Rules {
	return s.rules
}

// Started reports whether the first reveal has happened
func (s *Session) Started() bool {
	return s.Status != StatusFresh
}

// Terminal reports whether the game is won or lost
func (s *Session) Terminal() bool {
	return s.Status == StatusWon || s.Status == StatusLost
}

// Active reports whether the game is started and not yet over
func (s *Session) Active() bool {
	return s.Status == StatusActive
}

// Elapsed returns the milliseconds since the first reveal, or 0 before it
func (s *Session) Elapsed() int64 {
	if s.StartTime == nil {
		return 0
	}
	return s.now().Sub(*s.StartTime).Milliseconds()
}

// Snapshot returns the full game state as sent to the client
func (s *Session) Snapshot() messages.GameStatePayload {
	grid := make(minefield.Grid, len(s.Grid))
	for r := range s.Grid {
		grid[r] = append([]minefield.Cell(nil), s.Grid[r]...)
	}

	var startTime *int64
	if s.StartTime != nil {
		ms := s.StartTime.UnixMilli()
		startTime = &ms
	}

	return messages.GameStatePayload{
		Grid:           grid,
		GameOver:       s.Status == StatusLost,
		GameWon:        s.Status == StatusWon,
		RemainingFlags: s.RemainingFlags,
		UserID:         s.Player.ID,
		GameStarted:    s.Started(),
		StartTime:      startTime,
		FlagsPlaced:    s.FlagsPlaced,
		BombsExploded:  s.BombsExploded,
		NoFlagUse:      s.NoFlagUse,
		GameTime:       s.GameTime,
		Time:           s.GameTime,
		CellsRevealed:  s.CellsRevealed,
		GameRestarts:   s.GameRestarts,
		WinTime:        s.WinTime,
	}
}

// outcome builds the report body for the given status, shaped the way the
// stats backend expects it
func (s *Session) outcome(status results.Status) *results.Outcome {
	elapsed := s.Elapsed()
	if s.GameTime != nil {
		elapsed = *s.GameTime
	}

	o := &results.Outcome{
		UserID:        s.Player.ID,
		UserName:      s.Player.Name,
		Status:        status,
		UsedFlags:     s.FlagsPlaced,
		BombsExploded: s.BombsExploded,
		TimePlayed:    elapsed,
		CellsRevealed: s.CellsRevealed,
	}
	if o.UserName == "" {
		o.UserName = s.Player.ID
	}
	if s.Player.Image != "" {
		image := s.Player.Image
		o.UserImage = &image
	}

	switch status {
	case results.StatusSuccess:
		noFlagWin := s.NoFlagUse
		o.SuccessTime = &elapsed
		o.NoFlagWin = &noFlagWin
	case results.StatusAbandoned:
		restarts := s.GameRestarts
		o.Time = &elapsed
		o.GameRestarts = &restarts
	default:
		o.Time = &elapsed
	}

	return o
}
