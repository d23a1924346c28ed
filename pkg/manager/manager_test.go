package manager

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tecu23/minesweeper-server/internal/schedtest"
	"github.com/tecu23/minesweeper-server/pkg/events"
	"github.com/tecu23/minesweeper-server/pkg/game"
	"github.com/tecu23/minesweeper-server/pkg/messages"
	"github.com/tecu23/minesweeper-server/pkg/minefield"
	"github.com/tecu23/minesweeper-server/pkg/repository"
	"github.com/tecu23/minesweeper-server/pkg/results"
)

const levelDelay = 50 * time.Millisecond

type recordingNotifier struct {
	sent map[string][]messages.GameStatePayload
}

func (n *recordingNotifier) SendState(sessionID string, state messages.GameStatePayload) {
	n.sent[sessionID] = append(n.sent[sessionID], state)
}

func (n *recordingNotifier) last(sessionID string) messages.GameStatePayload {
	states := n.sent[sessionID]
	return states[len(states)-1]
}

type fakeReporter struct {
	outcomes []results.Outcome
	settlers []func()
}

func (r *fakeReporter) Submit(outcome results.Outcome, onSettled func()) {
	r.outcomes = append(r.outcomes, outcome)
	r.settlers = append(r.settlers, onSettled)
}

type fakeJanitor struct {
	scheduled []string
}

func (j *fakeJanitor) ScheduleRemoval(sessionID string) {
	j.scheduled = append(j.scheduled, sessionID)
}

type fixture struct {
	sched     *schedtest.Scheduler
	repo      *repository.InMemorySessionRepository
	notifier  *recordingNotifier
	reporter  *fakeReporter
	janitor   *fakeJanitor
	publisher *events.Publisher
	mgr       *Manager
}

func newFixture() *fixture {
	sched := schedtest.New(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	f := &fixture{
		sched:     sched,
		repo:      repository.NewInMemoryRepository(zap.NewNop(), repository.WithClock(sched.Now)),
		notifier:  &recordingNotifier{sent: make(map[string][]messages.GameStatePayload)},
		reporter:  &fakeReporter{},
		janitor:   &fakeJanitor{},
		publisher: events.NewPublisher(),
	}
	f.mgr = NewManager(
		f.repo, sched, f.notifier, f.reporter, f.janitor, f.publisher,
		Settings{Rules: game.Rules{Size: 5, MineCount: 1}, LevelDelay: levelDelay},
		zap.NewNop(),
		WithGameOptions(game.WithClock(sched.Now), game.WithRand(minefield.NewRand(7))),
	)
	return f
}

// drawGrid builds a board from rows of text, '*' marking mines
func drawGrid(t *testing.T, rows ...string) (minefield.Grid, int) {
	t.Helper()

	grid := minefield.New(len(rows))
	mines := 0
	for r, row := range rows {
		require.Len(t, row, len(rows))
		for c, ch := range row {
			if ch == '*' {
				grid[r][c].Value = minefield.Mine
				mines++
			}
		}
	}
	for r := range grid {
		for c := range grid[r] {
			if grid[r][c].IsMine() {
				continue
			}
			for _, p := range grid.Neighbors(r, c) {
				if grid.At(p).IsMine() {
					grid[r][c].Value++
				}
			}
		}
	}
	return grid, mines
}

// startOn swaps a started game over grid into session s
func startOn(s *game.Session, grid minefield.Grid, mines int, at time.Time) {
	s.Grid = grid
	s.Status = game.StatusActive
	s.RemainingFlags = mines
	s.StartTime = &at
}

// plant connects sessionID and swaps in a started game over a hand drawn
// board.
func (f *fixture) plant(t *testing.T, sessionID string, rows ...string) *game.Session {
	t.Helper()
	f.mgr.Connect(sessionID, "Ada", "")

	grid, mines := drawGrid(t, rows...)
	s, err := f.repo.GetSession(sessionID)
	require.NoError(t, err)
	startOn(s, grid, mines, f.sched.Now())
	return s
}

var cornerMine = []string{
	".....",
	".....",
	".....",
	".....",
	"....*",
}

func TestConnectCreatesOnceAndEmits(t *testing.T) {
	f := newFixture()

	var mu sync.Mutex
	var seen []events.EventType
	done := make(chan struct{}, 4)
	f.publisher.SubscribeAll(func(e events.Event) {
		mu.Lock()
		seen = append(seen, e.Type)
		mu.Unlock()
		done <- struct{}{}
	})

	f.mgr.Connect("a", "Ada", "https://example.com/ada.png")
	require.Len(t, f.notifier.sent["a"], 1)
	state := f.notifier.last("a")
	assert.Equal(t, "a", state.UserID)
	assert.False(t, state.GameStarted)
	assert.Equal(t, 1, state.RemainingFlags)
	assert.Len(t, state.Grid, 5)

	first, err := f.repo.GetSession("a")
	require.NoError(t, err)

	f.mgr.Connect("a", "Ada Lovelace", "")
	second, err := f.repo.GetSession("a")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, "Ada Lovelace", second.Player.Name)
	assert.Equal(t, "https://example.com/ada.png", second.Player.Image)
	assert.Len(t, f.notifier.sent["a"], 2)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("no lifecycle event published")
	}
	mu.Lock()
	assert.Equal(t, []events.EventType{events.EventSessionCreated}, seen)
	mu.Unlock()
}

func TestActionsOnUnknownSession(t *testing.T) {
	f := newFixture()

	assert.ErrorIs(t, f.mgr.Reveal("ghost", 0, 0), repository.ErrSessionNotFound)
	assert.ErrorIs(t, f.mgr.Chord("ghost", 0, 0, nil), repository.ErrSessionNotFound)
	assert.ErrorIs(t, f.mgr.ToggleFlag("ghost", 0, 0), repository.ErrSessionNotFound)
	assert.ErrorIs(t, f.mgr.Restart("ghost"), repository.ErrSessionNotFound)
	f.mgr.Disconnect("ghost")

	games, _ := f.repo.Counts()
	assert.Zero(t, games)
	assert.Empty(t, f.notifier.sent)
	assert.Empty(t, f.janitor.scheduled)
}

func TestFirstRevealStartsGame(t *testing.T) {
	f := newFixture()
	f.mgr.Connect("a", "Ada", "")

	require.NoError(t, f.mgr.Reveal("a", 2, 2))
	state := f.notifier.last("a")
	assert.True(t, state.GameStarted)
	require.NotNil(t, state.StartTime)
	assert.Equal(t, f.sched.Now().UnixMilli(), *state.StartTime)
	assert.True(t, state.Grid[2][2].Revealed)
	assert.False(t, state.Grid[2][2].IsMine())
}

func TestCascadeIsStagedAndWins(t *testing.T) {
	f := newFixture()
	f.plant(t, "a", cornerMine...)
	emitted := len(f.notifier.sent["a"])

	require.NoError(t, f.mgr.Reveal("a", 0, 0))
	require.Len(t, f.notifier.sent["a"], emitted+1)
	assert.Equal(t, 1, f.notifier.last("a").CellsRevealed)
	assert.Equal(t, 1, f.sched.Pending(), "levels are queued one at a time")

	f.sched.Advance(levelDelay - time.Millisecond)
	assert.Len(t, f.notifier.sent["a"], emitted+1)

	f.sched.Advance(time.Millisecond)
	require.Len(t, f.notifier.sent["a"], emitted+2)
	assert.Equal(t, 4, f.notifier.last("a").CellsRevealed)
	assert.False(t, f.notifier.last("a").GameWon)

	f.sched.Advance(3 * levelDelay)
	require.Len(t, f.notifier.sent["a"], emitted+5)
	final := f.notifier.last("a")
	assert.True(t, final.GameWon)
	assert.False(t, final.GameOver)
	assert.Equal(t, 24, final.CellsRevealed)
	require.NotNil(t, final.WinTime)
	assert.Equal(t, (4 * levelDelay).Milliseconds(), *final.WinTime)

	require.Len(t, f.reporter.outcomes, 1)
	outcome := f.reporter.outcomes[0]
	assert.Equal(t, results.StatusSuccess, outcome.Status)
	assert.Equal(t, 24, outcome.CellsRevealed)
	require.NotNil(t, outcome.NoFlagWin)
	assert.True(t, *outcome.NoFlagWin)

	f.reporter.settlers[0]()
	f.sched.Advance(0)
	assert.Len(t, f.notifier.sent["a"], emitted+6)
}

func TestRestartDropsQueuedLevels(t *testing.T) {
	f := newFixture()
	f.plant(t, "a", cornerMine...)

	require.NoError(t, f.mgr.Reveal("a", 0, 0))
	require.NoError(t, f.mgr.Restart("a"))
	emitted := len(f.notifier.sent["a"])

	state := f.notifier.last("a")
	assert.False(t, state.GameStarted)
	assert.Equal(t, 1, state.GameRestarts)
	assert.Zero(t, state.CellsRevealed)

	require.Len(t, f.reporter.outcomes, 1)
	assert.Equal(t, results.StatusRestarted, f.reporter.outcomes[0].Status)

	f.sched.RunAll()
	assert.Len(t, f.notifier.sent["a"], emitted)

	s, err := f.repo.GetSession("a")
	require.NoError(t, err)
	assert.Zero(t, s.Grid.CountRevealed())
}

func TestRestartOfFreshGameIsNotReported(t *testing.T) {
	f := newFixture()
	f.mgr.Connect("a", "Ada", "")

	require.NoError(t, f.mgr.Restart("a"))
	assert.Empty(t, f.reporter.outcomes)
	assert.Equal(t, 1, f.notifier.last("a").GameRestarts)
}

func TestLossReportsAndSkipsStaleFollowUp(t *testing.T) {
	f := newFixture()
	f.plant(t, "a", cornerMine...)

	f.sched.Advance(2 * time.Second)
	require.NoError(t, f.mgr.Reveal("a", 4, 4))
	state := f.notifier.last("a")
	assert.True(t, state.GameOver)
	assert.Equal(t, 1, state.BombsExploded)
	require.NotNil(t, state.GameTime)
	assert.Equal(t, int64(2000), *state.GameTime)

	require.Len(t, f.reporter.outcomes, 1)
	outcome := f.reporter.outcomes[0]
	assert.Equal(t, results.StatusDefeat, outcome.Status)
	require.NotNil(t, outcome.Time)
	assert.Equal(t, int64(2000), *outcome.Time)

	require.NoError(t, f.mgr.Reveal("a", 0, 0))
	assert.Zero(t, f.sched.Pending(), "finished games ignore reveals")

	require.NoError(t, f.mgr.Restart("a"))
	emitted := len(f.notifier.sent["a"])

	f.reporter.settlers[0]()
	f.sched.Advance(0)
	assert.Len(t, f.notifier.sent["a"], emitted)
}

func TestToggleFlagEmitsOnlyOnChange(t *testing.T) {
	f := newFixture()
	f.plant(t, "a", cornerMine...)
	emitted := len(f.notifier.sent["a"])

	require.NoError(t, f.mgr.ToggleFlag("a", 4, 4))
	require.Len(t, f.notifier.sent["a"], emitted+1)
	assert.True(t, f.notifier.last("a").Grid[4][4].Flagged)
	assert.Zero(t, f.notifier.last("a").RemainingFlags)
	assert.False(t, f.notifier.last("a").NoFlagUse)

	require.NoError(t, f.mgr.ToggleFlag("a", 0, 0))
	assert.Len(t, f.notifier.sent["a"], emitted+1, "no flags left")
}

func TestChordThroughManager(t *testing.T) {
	f := newFixture()
	f.plant(t, "a", cornerMine...)

	require.NoError(t, f.mgr.Reveal("a", 3, 3))
	require.NoError(t, f.mgr.ToggleFlag("a", 4, 4))
	emitted := len(f.notifier.sent["a"])

	require.NoError(t, f.mgr.Chord("a", 3, 3, nil))
	require.Len(t, f.notifier.sent["a"], emitted+1)
	state := f.notifier.last("a")
	assert.True(t, state.Grid[2][2].Revealed)
	assert.True(t, state.Grid[4][3].Revealed)

	f.sched.RunAll()
	assert.True(t, f.notifier.last("a").GameWon)
	require.Len(t, f.reporter.outcomes, 1)
	assert.Equal(t, results.StatusSuccess, f.reporter.outcomes[0].Status)
	require.NotNil(t, f.reporter.outcomes[0].NoFlagWin)
	assert.False(t, *f.reporter.outcomes[0].NoFlagWin)
}

func TestDisconnect(t *testing.T) {
	f := newFixture()
	f.plant(t, "active", cornerMine...)
	f.mgr.Connect("fresh", "", "")

	f.mgr.Disconnect("active")
	f.mgr.Disconnect("fresh")

	require.Len(t, f.reporter.outcomes, 1)
	outcome := f.reporter.outcomes[0]
	assert.Equal(t, results.StatusAbandoned, outcome.Status)
	assert.Equal(t, "active", outcome.UserID)
	require.NotNil(t, outcome.GameRestarts)
	assert.Zero(t, *outcome.GameRestarts)

	assert.Equal(t, []string{"active", "fresh"}, f.janitor.scheduled)
}
