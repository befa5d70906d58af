// Package archive keeps the final standings of finished games in SQLite.
package archive

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrNotFound is returned when no game was recorded for a room
var ErrNotFound = errors.New("no recorded game")

// Entry is one player's line in a finished game
type Entry struct {
	UserID     string `json:"userId"`
	Nickname   string `json:"nickname"`
	Score      int    `json:"score"`
	UpperTotal int    `json:"upperTotal"`
	Bonus      int    `json:"bonus"`
	Place      int    `json:"place"`
}

// GameResult is the final standings of one game
type GameResult struct {
	GameID     string    `json:"gameId"`
	RoomCode   string    `json:"roomCode"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Entries    []Entry   `json:"entries"`
}

// GameID names a game by its room and start time, since room codes are
// reused once a room is deleted
func GameID(roomCode string, startedAt time.Time) string {
	return fmt.Sprintf("%s-%d", roomCode, startedAt.UnixMilli())
}

// Store is a SQLite-backed results archive
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens (creating if missing) the database at path and applies
// pending migrations
func Open(path string, logger zerolog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate applies embedded migrations in lexical order, recording each in
// _migrations so it runs once
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS _migrations (name TEXT PRIMARY KEY);`); err != nil {
		return fmt.Errorf("create _migrations: %w", err)
	}

	files, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(files)

	for _, f := range files {
		var done int
		err := s.db.QueryRow(`SELECT 1 FROM _migrations WHERE name=?`, f).Scan(&done)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("query _migrations: %w", err)
		}

		body, err := migrations.ReadFile(f)
		if err != nil {
			return fmt.Errorf("read %s: %w", f, err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(string(body)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply %s: %w", f, err)
		}
		if _, err := tx.Exec(`INSERT INTO _migrations(name) VALUES (?)`, f); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record %s: %w", f, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit %s: %w", f, err)
		}
		s.logger.Info().Str("migration", f).Msg("applied")
	}
	return nil
}

// RecordResult stores a finished game. Recording the same game again is a
// no-op, so every client that saw the game end may call it.
func (s *Store) RecordResult(ctx context.Context, r GameResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, e := range r.Entries {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO game_results
				(game_id, room_code, user_id, nickname, score, upper_total, bonus, place, started_at, finished_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.GameID, r.RoomCode, e.UserID, e.Nickname, e.Score, e.UpperTotal, e.Bonus, e.Place,
			r.StartedAt.UnixMilli(), r.FinishedAt.UnixMilli(),
		); err != nil {
			return fmt.Errorf("insert result %s/%s: %w", r.GameID, e.UserID, err)
		}
	}
	return tx.Commit()
}

const selectResults = `
	SELECT game_id, room_code, started_at, finished_at, user_id, nickname, score, upper_total, bonus, place
	FROM game_results`

// Recent returns the most recently finished games, newest first
func (s *Store) Recent(ctx context.Context, limit int) ([]GameResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, selectResults+`
		WHERE game_id IN (
			SELECT game_id FROM game_results
			GROUP BY game_id
			ORDER BY MAX(finished_at) DESC
			LIMIT ?)
		ORDER BY finished_at DESC, game_id, place, user_id`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanResults(rows)
}

// Room returns the latest finished game played in the room
func (s *Store) Room(ctx context.Context, roomCode string) (GameResult, error) {
	rows, err := s.db.QueryContext(ctx, selectResults+`
		WHERE game_id = (
			SELECT game_id FROM game_results
			WHERE room_code = ?
			ORDER BY finished_at DESC
			LIMIT 1)
		ORDER BY place, user_id`, roomCode)
	if err != nil {
		return GameResult{}, err
	}
	defer rows.Close()

	results, err := scanResults(rows)
	if err != nil {
		return GameResult{}, err
	}
	if len(results) == 0 {
		return GameResult{}, ErrNotFound
	}
	return results[0], nil
}

// scanResults groups consecutive rows of the same game
func scanResults(rows *sql.Rows) ([]GameResult, error) {
	out := make([]GameResult, 0)
	for rows.Next() {
		var (
			r                   GameResult
			e                   Entry
			startedMs, finishMs int64
		)
		if err := rows.Scan(&r.GameID, &r.RoomCode, &startedMs, &finishMs,
			&e.UserID, &e.Nickname, &e.Score, &e.UpperTotal, &e.Bonus, &e.Place); err != nil {
			return nil, err
		}
		if n := len(out); n > 0 && out[n-1].GameID == r.GameID {
			out[n-1].Entries = append(out[n-1].Entries, e)
			continue
		}
		r.StartedAt = time.UnixMilli(startedMs)
		r.FinishedAt = time.UnixMilli(finishMs)
		r.Entries = []Entry{e}
		out = append(out, r)
	}
	return out, rows.Err()
}
