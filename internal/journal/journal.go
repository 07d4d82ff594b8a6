// Package journal provides durable storage for a room's finalized operation
// stream.
//
// The journal exists for catch-up and crash recovery, not history: a session
// reconnecting mid-room replays the stream to rebuild its replica, and a
// restarted room rebuilds its authoritative state the same way. When a room
// closes, its rows are truncated.
//
// Uses SQLite with WAL mode for concurrent read access.
package journal

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/klikkflow/collab/internal/op"
)

//go:embed schema.sql
var schemaSQL string

// Journal is a SQLite-backed operation log shared by the rooms of one
// process.
type Journal struct {
	db *sql.DB
}

// Open creates or opens a journal database at the given path.
// Applies required pragmas and the schema automatically; safe to call on an
// existing database.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open journal: %w", err)
	}

	// SQLite supports one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent room loops.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("open journal: apply schema: %w", err)
	}
	if err := stampVersions(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("open journal: %w", err)
	}

	return &Journal{db: db}, nil
}

// stampVersions records the wire and core versions in journal_meta. A
// journal written with a different wire format holds operation bodies this
// build cannot decode, so opening it is refused.
func stampVersions(db *sql.DB) error {
	var existing string
	err := db.QueryRow(`SELECT value FROM journal_meta WHERE key = 'wire_version'`).Scan(&existing)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("read wire version: %w", err)
	case existing != op.WireVersion:
		return fmt.Errorf("journal wire version %s, this build writes %s", existing, op.WireVersion)
	}

	_, err = db.Exec(`
		INSERT INTO journal_meta (key, value) VALUES
			('wire_version', ?),
			('core_version', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, op.WireVersion, op.CoreVersion)
	if err != nil {
		return fmt.Errorf("stamp versions: %w", err)
	}
	return nil
}

// Versions returns the wire and core versions stamped into the journal.
func (j *Journal) Versions() (wire, core string, err error) {
	if err := j.db.QueryRow(`SELECT value FROM journal_meta WHERE key = 'wire_version'`).Scan(&wire); err != nil {
		return "", "", fmt.Errorf("journal versions: %w", err)
	}
	if err := j.db.QueryRow(`SELECT value FROM journal_meta WHERE key = 'core_version'`).Scan(&core); err != nil {
		return "", "", fmt.Errorf("journal versions: %w", err)
	}
	return wire, core, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

// ForRoom binds the journal to one room id. The binding satisfies the room
// package's Journal interface.
func (j *Journal) ForRoom(roomID string) *RoomJournal {
	return &RoomJournal{journal: j, roomID: roomID}
}

// RoomJournal is a Journal scoped to a single room.
type RoomJournal struct {
	journal *Journal
	roomID  string
}

// RoomID returns the bound room id.
func (r *RoomJournal) RoomID() string { return r.roomID }
