// Package janitor reclaims memory held by finished and forgotten sessions
package janitor

import (
	"context"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/tecu23/minesweeper-server/pkg/events"
	"github.com/tecu23/minesweeper-server/pkg/repository"
)

// Scheduler runs f on the session loop once d has passed
type Scheduler interface {
	AfterFunc(d time.Duration, f func())
}

// Settings controls when sessions are evicted
type Settings struct {
	DisconnectGrace    time.Duration // how long a dropped player may take to come back
	SweepInterval      time.Duration
	IdleThreshold      time.Duration // idle time after which the sweep evicts
	SweepDelay         time.Duration // wait between picking and evicting sweep candidates
	ForceIdleThreshold time.Duration // idle time after which a forced cleanup evicts
}

// Counts is the size of the session store at one point in time
type Counts struct {
	Games          int `json:"games"`
	LastAccessTime int `json:"lastAccessTime"`
}

// CleanupReport describes the effect of a forced cleanup
type CleanupReport struct {
	Removed int    `json:"removed"`
	Before  Counts `json:"before"`
	After   Counts `json:"after"`
}

// Janitor evicts sessions from the repository
type Janitor struct {
	repo      *repository.InMemorySessionRepository
	scheduler Scheduler
	publisher *events.Publisher
	settings  Settings
	logger    *zap.Logger
}

// New creates a janitor
func New(
	repo *repository.InMemorySessionRepository,
	scheduler Scheduler,
	publisher *events.Publisher,
	settings Settings,
	logger *zap.Logger,
) *Janitor {
	return &Janitor{
		repo:      repo,
		scheduler: scheduler,
		publisher: publisher,
		settings:  settings,
		logger:    logger,
	}
}

// ScheduleRemoval evicts the session once the disconnect grace period has
// passed, unless it was used again in the meantime.
func (j *Janitor) ScheduleRemoval(sessionID string) {
	j.scheduler.AfterFunc(j.settings.DisconnectGrace, func() {
		last, ok := j.repo.LastAccess(sessionID)
		if !ok {
			return
		}
		if j.repo.Now().Sub(last) < j.settings.DisconnectGrace {
			j.logger.Debug("session reused within grace period, keeping it",
				zap.String("session_id", sessionID))
			return
		}
		j.evict(sessionID, "disconnected")
	})
}

// Sweep picks the sessions that are over or idle beyond the threshold and
// evicts them after the sweep delay if they still qualify then.
func (j *Janitor) Sweep() {
	threshold := j.settings.IdleThreshold
	now := j.repo.Now()
	candidates := lo.FilterMap(j.repo.Entries(), func(e repository.Entry, _ int) (string, bool) {
		return e.ID, expired(e, now, threshold)
	})
	if len(candidates) == 0 {
		return
	}

	j.logger.Info("sessions marked for cleanup", zap.Int("count", len(candidates)))

	j.scheduler.AfterFunc(j.settings.SweepDelay, func() {
		now := j.repo.Now()
		removed := 0
		for _, id := range candidates {
			s, err := j.repo.GetSession(id)
			if err != nil {
				continue
			}
			last, _ := j.repo.LastAccess(id)
			if !expired(repository.Entry{ID: id, Session: s, LastAccess: last}, now, threshold) {
				continue
			}
			j.evict(id, "swept")
			removed++
		}
		j.logger.Info("sweep finished", zap.Int("removed", removed))
	})
}

// ForceCleanup evicts every session that is over or idle beyond the forced
// threshold right away. A non-positive idle overrides nothing.
func (j *Janitor) ForceCleanup(idle time.Duration) CleanupReport {
	if idle <= 0 {
		idle = j.settings.ForceIdleThreshold
	}

	report := CleanupReport{Before: j.counts()}
	now := j.repo.Now()
	for _, e := range j.repo.Entries() {
		if expired(e, now, idle) {
			j.evict(e.ID, "forced")
			report.Removed++
		}
	}
	report.After = j.counts()

	j.logger.Info("forced cleanup finished",
		zap.Int("removed", report.Removed),
		zap.Int("games_before", report.Before.Games),
		zap.Int("games_after", report.After.Games))
	return report
}

// Run triggers a sweep every sweep interval until ctx is done
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.settings.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.scheduler.AfterFunc(0, j.Sweep)
		}
	}
}

func (j *Janitor) evict(id, reason string) {
	if !j.repo.RemoveSession(id) {
		return
	}

	j.logger.Info("evicted game session",
		zap.String("session_id", id),
		zap.String("reason", reason))

	j.publisher.Publish(events.Event{
		Type:      events.EventSessionEvicted,
		SessionID: id,
		Payload:   map[string]string{"reason": reason},
	})
}

func (j *Janitor) counts() Counts {
	games, tracked := j.repo.Counts()
	return Counts{Games: games, LastAccessTime: tracked}
}

func expired(e repository.Entry, now time.Time, idle time.Duration) bool {
	return e.Session.Terminal() || now.Sub(e.LastAccess) > idle
}
