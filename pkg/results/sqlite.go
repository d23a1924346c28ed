package results

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// LedgerEntry is one outcome row read back from the ledger
type LedgerEntry struct {
	ID        int64
	Outcome   Outcome
	CreatedAt time.Time
}

// Ledger keeps a local record of every reported outcome in SQLite
type Ledger struct {
	db *sql.DB
}

// OpenLedger creates or opens the ledger database at path and runs migrations
func OpenLedger(path string) (*Ledger, error) {
	if path != "" && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("ledger: cannot expand home directory: %w", err)
		}
		path = filepath.Join(home, path[1:])
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ledger: cannot create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ledger: cannot open database: %w", err)
	}

	// one writer at a time, reports arrive from several goroutines
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: cannot connect to database: %w", err)
	}

	l := &Ledger{db: db}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: migration failed: %w", err)
	}

	return l, nil
}

func (l *Ledger) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS game_outcomes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			user_name TEXT NOT NULL,
			user_image TEXT,
			status TEXT NOT NULL,
			time_ms INTEGER,
			success_time_ms INTEGER,
			used_flags INTEGER NOT NULL DEFAULT 0,
			no_flag_win INTEGER,
			bombs_exploded INTEGER NOT NULL DEFAULT 0,
			time_played_ms INTEGER NOT NULL DEFAULT 0,
			cells_revealed INTEGER NOT NULL DEFAULT 0,
			game_restarts INTEGER,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_game_outcomes_user ON game_outcomes(user_id, created_at DESC);
	`

	_, err := l.db.Exec(schema)
	return err
}

// Close closes the database connection
func (l *Ledger) Close() error {
	if l.db != nil {
		return l.db.Close()
	}
	return nil
}

// Report stores the outcome
func (l *Ledger) Report(ctx context.Context, o Outcome) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO game_outcomes (
			user_id, user_name, user_image, status, time_ms, success_time_ms,
			used_flags, no_flag_win, bombs_exploded, time_played_ms, cells_revealed,
			game_restarts, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.UserID, o.UserName, o.UserImage, string(o.Status), o.Time, o.SuccessTime,
		o.UsedFlags, o.NoFlagWin, o.BombsExploded, o.TimePlayed, o.CellsRevealed,
		o.GameRestarts, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("ledger: cannot save outcome: %w", err)
	}
	return nil
}

// Recent returns up to limit outcomes of a user, newest first
func (l *Ledger) Recent(ctx context.Context, userID string, limit int) ([]LedgerEntry, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT id, user_id, user_name, user_image, status, time_ms, success_time_ms,
			used_flags, no_flag_win, bombs_exploded, time_played_ms, cells_revealed,
			game_restarts, created_at
		 FROM game_outcomes
		 WHERE user_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ledger: cannot query outcomes: %w", err)
	}
	defer rows.Close()

	var entries []LedgerEntry
	for rows.Next() {
		var (
			e           LedgerEntry
			status      string
			image       sql.NullString
			timeMs      sql.NullInt64
			successMs   sql.NullInt64
			noFlagWin   sql.NullBool
			restarts    sql.NullInt64
			createdAtMs int64
		)
		if err := rows.Scan(
			&e.ID, &e.Outcome.UserID, &e.Outcome.UserName, &image, &status, &timeMs, &successMs,
			&e.Outcome.UsedFlags, &noFlagWin, &e.Outcome.BombsExploded, &e.Outcome.TimePlayed,
			&e.Outcome.CellsRevealed, &restarts, &createdAtMs,
		); err != nil {
			return nil, fmt.Errorf("ledger: cannot scan row: %w", err)
		}

		e.Outcome.Status = Status(status)
		if image.Valid {
			e.Outcome.UserImage = &image.String
		}
		if timeMs.Valid {
			e.Outcome.Time = &timeMs.Int64
		}
		if successMs.Valid {
			e.Outcome.SuccessTime = &successMs.Int64
		}
		if noFlagWin.Valid {
			e.Outcome.NoFlagWin = &noFlagWin.Bool
		}
		if restarts.Valid {
			n := int(restarts.Int64)
			e.Outcome.GameRestarts = &n
		}
		e.CreatedAt = time.UnixMilli(createdAtMs)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: row iteration error: %w", err)
	}

	return entries, nil
}
