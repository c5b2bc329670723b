// Package db persists game saves in SQLite. One auto-save slot per user and
// world; saving again overwrites the slot.
package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nhkhanh/cardfall/internal/game"
)

var (
	// ErrSaveNotFound is returned when no save exists for the slot.
	ErrSaveNotFound = errors.New("save not found")
	// ErrSaveMalformed is returned when a stored save cannot be decoded.
	ErrSaveMalformed = errors.New("save is malformed")
)

// DB wraps the SQLite connection.
type DB struct {
	conn *sql.DB
}

// SaveMeta is one row of the save list.
type SaveMeta struct {
	WorldSlug   string    `json:"world_slug"`
	WorldName   string    `json:"world_name"`
	LifeNumber  int       `json:"life_number"`
	ElapsedDays int       `json:"elapsed_days"`
	SavedAt     time.Time `json:"saved_at"`
}

// Open opens the database and runs migrations.
func Open(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	// SQLite serializes writers; a single connection avoids lock errors.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		return nil, err
	}
	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS saves (
		user_id      TEXT NOT NULL,
		world_slug   TEXT NOT NULL,
		world_name   TEXT NOT NULL,
		state_json   TEXT NOT NULL,
		events_json  TEXT NOT NULL,
		fired_json   TEXT NOT NULL,
		life_number  INTEGER NOT NULL,
		elapsed_days INTEGER NOT NULL,
		saved_at     DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (user_id, world_slug)
	);

	CREATE INDEX IF NOT EXISTS idx_saves_user_id ON saves(user_id);
	`
	if _, err := db.conn.Exec(schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// PutSave upserts the user's auto-save slot for the world.
func (db *DB) PutSave(userID string, save *game.SaveData) error {
	firedJSON, err := json.Marshal(save.FiredNodes)
	if err != nil {
		return fmt.Errorf("marshal fired nodes: %w", err)
	}

	_, err = db.conn.Exec(`
		INSERT INTO saves (user_id, world_slug, world_name, state_json, events_json, fired_json, life_number, elapsed_days, saved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id, world_slug) DO UPDATE SET
			world_name   = excluded.world_name,
			state_json   = excluded.state_json,
			events_json  = excluded.events_json,
			fired_json   = excluded.fired_json,
			life_number  = excluded.life_number,
			elapsed_days = excluded.elapsed_days,
			saved_at     = CURRENT_TIMESTAMP
	`, userID, save.WorldSlug, save.WorldName, string(save.State), string(save.Events), string(firedJSON), save.LifeNumber, save.ElapsedDays)
	if err != nil {
		return fmt.Errorf("put save: %w", err)
	}
	return nil
}

// GetSave loads the user's save for the world slug.
func (db *DB) GetSave(userID, worldSlug string) (*game.SaveData, error) {
	var (
		save      game.SaveData
		stateJSON string
		eventsStr string
		firedStr  string
	)
	err := db.conn.QueryRow(`
		SELECT world_slug, world_name, state_json, events_json, fired_json, life_number, elapsed_days
		FROM saves WHERE user_id = ? AND world_slug = ?
	`, userID, worldSlug).Scan(&save.WorldSlug, &save.WorldName, &stateJSON, &eventsStr, &firedStr, &save.LifeNumber, &save.ElapsedDays)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSaveNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get save: %w", err)
	}

	if !json.Valid([]byte(stateJSON)) || !json.Valid([]byte(eventsStr)) {
		return nil, ErrSaveMalformed
	}
	save.State = json.RawMessage(stateJSON)
	save.Events = json.RawMessage(eventsStr)
	if err := json.Unmarshal([]byte(firedStr), &save.FiredNodes); err != nil {
		return nil, ErrSaveMalformed
	}
	return &save, nil
}

// ListSaves returns the user's saves, most recent first.
func (db *DB) ListSaves(userID string) ([]SaveMeta, error) {
	rows, err := db.conn.Query(`
		SELECT world_slug, world_name, life_number, elapsed_days, saved_at
		FROM saves WHERE user_id = ? ORDER BY saved_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list saves: %w", err)
	}
	defer rows.Close()

	var metas []SaveMeta
	for rows.Next() {
		var m SaveMeta
		if err := rows.Scan(&m.WorldSlug, &m.WorldName, &m.LifeNumber, &m.ElapsedDays, &m.SavedAt); err != nil {
			return nil, fmt.Errorf("scan save: %w", err)
		}
		metas = append(metas, m)
	}
	return metas, rows.Err()
}

// DeleteSave removes the slot. Deleting a missing slot is not an error.
func (db *DB) DeleteSave(userID, worldSlug string) error {
	if _, err := db.conn.Exec(`DELETE FROM saves WHERE user_id = ? AND world_slug = ?`, userID, worldSlug); err != nil {
		return fmt.Errorf("delete save: %w", err)
	}
	return nil
}
