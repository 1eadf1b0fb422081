// Package audit records data set lifecycle events in a local sqlite
// database. It subscribes to the registry as a listener; inserts are
// best-effort and never fail the mutation that triggered them.
package audit

import (
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/dashfold/dashfold/api"
	"github.com/dashfold/dashfold/internal/registry"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	ts       INTEGER NOT NULL,
	kind     TEXT NOT NULL,
	uuid     TEXT NOT NULL,
	provider TEXT NOT NULL,
	author   TEXT NOT NULL,
	message  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS events_uuid ON events(uuid);
`

// Event kinds.
const (
	KindRegistered = "registered"
	KindRemoved    = "removed"
)

// Event is one recorded lifecycle event.
type Event struct {
	ID       int64
	Time     time.Time
	Kind     string
	UUID     string
	Provider string
	Author   string
	Message  string
}

// Log is a sqlite-backed audit trail of registry mutations.
type Log struct {
	db  *sql.DB
	log *zap.Logger
}

// Open creates (or reopens) the audit database at path.
func Open(path string, logger *zap.Logger) (*Log, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit db %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init audit db %s: %w", path, err)
	}
	return &Log{db: db, log: logger}, nil
}

// Close closes the underlying database.
func (l *Log) Close() error {
	return l.db.Close()
}

// OnDataSetDefRegistered implements registry.Listener.
func (l *Log) OnDataSetDefRegistered(def *api.DataSetDef, author, message string) {
	l.insert(KindRegistered, def, author, message)
}

// OnDataSetDefRemoved implements registry.Listener.
func (l *Log) OnDataSetDefRemoved(def *api.DataSetDef, author, message string) {
	l.insert(KindRemoved, def, author, message)
}

func (l *Log) insert(kind string, def *api.DataSetDef, author, message string) {
	_, err := l.db.Exec(
		`INSERT INTO events (ts, kind, uuid, provider, author, message) VALUES (?, ?, ?, ?, ?, ?)`,
		time.Now().UnixMilli(), kind, def.UUID, string(def.Provider), author, message,
	)
	if err != nil {
		l.log.Error("audit insert failed",
			zap.String("kind", kind), zap.String("uuid", def.UUID), zap.Error(err))
	}
}

// Recent returns up to n events, newest first.
func (l *Log) Recent(n int) ([]Event, error) {
	rows, err := l.db.Query(
		`SELECT id, ts, kind, uuid, provider, author, message FROM events ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("audit query: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var ts int64
		if err := rows.Scan(&e.ID, &ts, &e.Kind, &e.UUID, &e.Provider, &e.Author, &e.Message); err != nil {
			return nil, fmt.Errorf("audit scan: %w", err)
		}
		e.Time = time.UnixMilli(ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

var _ registry.Listener = (*Log)(nil)
