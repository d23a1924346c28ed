// Package manager applies player actions to sessions and drives the timed
// side effects: cascade levels, state pushes and outcome reports.
//
// A Manager is not safe for concurrent use. Every method, and every callback
// it hands to its Scheduler, must run on the same loop.
package manager

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tecu23/minesweeper-server/pkg/events"
	"github.com/tecu23/minesweeper-server/pkg/game"
	"github.com/tecu23/minesweeper-server/pkg/messages"
	"github.com/tecu23/minesweeper-server/pkg/minefield"
	"github.com/tecu23/minesweeper-server/pkg/repository"
	"github.com/tecu23/minesweeper-server/pkg/results"
)

// Scheduler runs f on the manager's loop once d has passed
type Scheduler interface {
	AfterFunc(d time.Duration, f func())
}

// Notifier pushes game state to whoever plays the session
type Notifier interface {
	SendState(sessionID string, state messages.GameStatePayload)
}

// Reporter delivers outcomes in the background. onSettled is called once
// the report is done or given up on, from any goroutine.
type Reporter interface {
	Submit(outcome results.Outcome, onSettled func())
}

// Janitor removes sessions whose player left
type Janitor interface {
	ScheduleRemoval(sessionID string)
}

// Settings configures new sessions and cascade pacing
type Settings struct {
	Rules      game.Rules
	LevelDelay time.Duration
}

// Option customises a Manager
type Option func(*Manager)

// WithGameOptions passes opts to every session the manager creates
func WithGameOptions(opts ...game.Option) Option {
	return func(m *Manager) { m.gameOpts = append(m.gameOpts, opts...) }
}

type Manager struct {
	repo      *repository.InMemorySessionRepository
	scheduler Scheduler
	notifier  Notifier
	reporter  Reporter
	janitor   Janitor
	publisher *events.Publisher
	settings  Settings
	gameOpts  []game.Option
	logger    *zap.Logger
}

// NewManager creates a manager over repo
func NewManager(
	repo *repository.InMemorySessionRepository,
	scheduler Scheduler,
	notifier Notifier,
	reporter Reporter,
	janitor Janitor,
	publisher *events.Publisher,
	settings Settings,
	logger *zap.Logger,
	opts ...Option,
) *Manager {
	m := &Manager{
		repo:      repo,
		scheduler: scheduler,
		notifier:  notifier,
		reporter:  reporter,
		janitor:   janitor,
		publisher: publisher,
		settings:  settings,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Connect attaches a player to their session, creating it on first contact,
// and sends them the current state.
func (m *Manager) Connect(sessionID, userName, userImage string) {
	s, created := m.repo.GetOrCreate(sessionID, func() *game.Session {
		player := game.Player{ID: sessionID}
		return game.NewSession(player, m.settings.Rules, m.gameOpts...)
	})

	if userName != "" {
		s.Player.Name = userName
	}
	if userImage != "" {
		s.Player.Image = userImage
	}

	if created {
		m.logger.Info("new game session",
			zap.String("session_id", sessionID),
			zap.String("game_id", s.GameID.String()))
		m.publish(events.EventSessionCreated, sessionID, s)
	} else {
		m.logger.Debug("player rejoined session", zap.String("session_id", sessionID))
	}

	m.emit(sessionID, s)
}

// Reveal opens a cell
func (m *Manager) Reveal(sessionID string, row, col int) error {
	s, err := m.resolve(sessionID)
	if err != nil {
		return err
	}

	wasStarted := s.Started()
	res := s.Reveal(row, col)
	if !wasStarted && s.Started() {
		m.publish(events.EventGameStarted, sessionID, s)
	}

	m.apply(sessionID, s, res)
	return nil
}

// Chord reveals around a satisfied number
func (m *Manager) Chord(sessionID string, row, col int, candidates []minefield.Pos) error {
	s, err := m.resolve(sessionID)
	if err != nil {
		return err
	}

	m.apply(sessionID, s, s.Chord(row, col, candidates))
	return nil
}

// ToggleFlag flags or unflags a hidden cell
func (m *Manager) ToggleFlag(sessionID string, row, col int) error {
	s, err := m.resolve(sessionID)
	if err != nil {
		return err
	}

	if s.ToggleFlag(row, col) {
		m.emit(sessionID, s)
	}
	return nil
}

// Restart replaces the session's game with a new one. Cascades still queued
// for the old game are dropped when they fire.
func (m *Manager) Restart(sessionID string) error {
	s, err := m.resolve(sessionID)
	if err != nil {
		return err
	}

	next, outcome := s.Restart()
	m.repo.SaveSession(sessionID, next)

	m.logger.Info("game restarted",
		zap.String("session_id", sessionID),
		zap.String("game_id", next.GameID.String()),
		zap.Int("restarts", next.GameRestarts))
	m.publish(events.EventGameRestarted, sessionID, next)

	if outcome != nil {
		m.reporter.Submit(*outcome, func() {})
	}

	m.emit(sessionID, next)
	return nil
}

// Disconnect reports an unfinished game as abandoned and hands the session
// to the janitor.
func (m *Manager) Disconnect(sessionID string) {
	s, err := m.repo.GetSession(sessionID)
	if err != nil {
		return
	}
	m.repo.Touch(sessionID)

	if outcome := s.Abandon(); outcome != nil {
		m.logger.Info("game abandoned", zap.String("session_id", sessionID))
		m.publish(events.EventSessionAbandoned, sessionID, s)
		m.reporter.Submit(*outcome, func() {})
	}

	m.janitor.ScheduleRemoval(sessionID)
}

// State returns the current state of a session
func (m *Manager) State(sessionID string) (messages.GameStatePayload, error) {
	s, err := m.repo.GetSession(sessionID)
	if err != nil {
		return messages.GameStatePayload{}, err
	}
	return s.Snapshot(), nil
}

func (m *Manager) resolve(sessionID string) (*game.Session, error) {
	s, err := m.repo.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	m.repo.Touch(sessionID)
	return s, nil
}

// current returns the session only while it still plays the game gameID
func (m *Manager) current(sessionID string, gameID uuid.UUID) (*game.Session, bool) {
	s, err := m.repo.GetSession(sessionID)
	if err != nil || s.GameID != gameID {
		return nil, false
	}
	return s, true
}

func (m *Manager) apply(sessionID string, s *game.Session, res game.Result) {
	if !res.Changed {
		return
	}

	m.emit(sessionID, s)

	if res.Outcome != nil {
		m.finish(sessionID, s, *res.Outcome)
	}
	if len(res.Cascade) > 0 {
		m.scheduleCascade(sessionID, s.GameID, res.Cascade)
	}
}

// scheduleCascade applies the levels one level delay apart. Each level queues
// the next, so they land in order whatever the scheduler does with ties or
// late callbacks. The win check runs after the final level. A level is
// skipped, along with the rest, once its game is gone, replaced or over.
func (m *Manager) scheduleCascade(sessionID string, gameID uuid.UUID, levels []game.Level) {
	if len(levels) == 0 {
		return
	}

	m.scheduler.AfterFunc(m.settings.LevelDelay, func() {
		s, ok := m.current(sessionID, gameID)
		if !ok || s.Terminal() {
			return
		}

		s.ApplyLevel(levels[0])
		rest := levels[1:]

		var outcome *results.Outcome
		if len(rest) == 0 {
			outcome = s.FinishCascade()
		}

		m.emit(sessionID, s)
		if outcome != nil {
			m.finish(sessionID, s, *outcome)
			return
		}
		m.scheduleCascade(sessionID, gameID, rest)
	})
}

// finish announces a won or lost game and reports it. The state is sent
// again once the report settles.
func (m *Manager) finish(sessionID string, s *game.Session, outcome results.Outcome) {
	eventType := events.EventGameLost
	if s.Status == game.StatusWon {
		eventType = events.EventGameWon
	}

	m.logger.Info("game over",
		zap.String("session_id", sessionID),
		zap.String("status", string(s.Status)),
		zap.Int64("time_played", outcome.TimePlayed))
	m.publish(eventType, sessionID, s)

	gameID := s.GameID
	m.reporter.Submit(outcome, func() {
		m.scheduler.AfterFunc(0, func() {
			if s, ok := m.current(sessionID, gameID); ok {
				m.emit(sessionID, s)
			}
		})
	})
}

func (m *Manager) emit(sessionID string, s *game.Session) {
	m.notifier.SendState(sessionID, s.Snapshot())
}

func (m *Manager) publish(t events.EventType, sessionID string, s *game.Session) {
	if m.publisher == nil {
		return
	}
	m.publisher.Publish(events.Event{
		Type:      t,
		SessionID: sessionID,
		Payload: map[string]string{
			"game_id": s.GameID.String(),
			"user_id": s.Player.ID,
		},
	})
}
