// Package eventlog provides an in-process structured log of conductor
// lifecycle events. The conductor records worker spawns and spawn
// failures, client dispatches and its own shutdown; worker kills, reserve
// churn and pool purges are not recorded. It is grounded on the teacher's internal/db package but backed by an in-memory
// SQLite database: spec.md's "Non-goals: persistence across reboots"
// means nothing here touches disk, while the conductor still gets queryable
// structured history for diagnostics during its own lifetime.
package eventlog

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Log wraps an in-memory SQLite connection recording conductor events.
type Log struct {
	conn *sql.DB
}

// Event is one recorded row.
type Event struct {
	ID        int64
	Time      time.Time
	Category  string // the conductor uses "worker", "client", "conductor"
	Subject   string // worker id, project path, etc.
	EventType string
	Details   string
}

// Open creates a fresh in-memory event log.
func Open() (*Log, error) {
	conn, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("eventlog: open: %w", err)
	}

	l := &Log{conn: conn}
	if err := l.initSchema(); err != nil {
		conn.Close()
		return nil, err
	}
	return l, nil
}

// Close closes the underlying connection. Since the database is in-memory,
// this discards all recorded events.
func (l *Log) Close() error {
	return l.conn.Close()
}

func (l *Log) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		occurred_at TEXT NOT NULL,
		category TEXT NOT NULL,
		subject TEXT NOT NULL,
		event_type TEXT NOT NULL,
		details TEXT NOT NULL
	);
	`
	_, err := l.conn.Exec(schema)
	return err
}

// Record inserts one event.
func (l *Log) Record(category, subject, eventType, details string) error {
	_, err := l.conn.Exec(
		`INSERT INTO events (occurred_at, category, subject, event_type, details) VALUES (?, ?, ?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339Nano), category, subject, eventType, details,
	)
	return err
}

// Recent returns the most recent n events across all categories, newest
// first.
func (l *Log) Recent(n int) ([]Event, error) {
	rows, err := l.conn.Query(
		`SELECT id, occurred_at, category, subject, event_type, details FROM events ORDER BY id DESC LIMIT ?`, n,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var occurredAt string
		if err := rows.Scan(&e.ID, &occurredAt, &e.Category, &e.Subject, &e.EventType, &e.Details); err != nil {
			return nil, err
		}
		e.Time, _ = time.Parse(time.RFC3339Nano, occurredAt)
		events = append(events, e)
	}
	return events, rows.Err()
}

// ForSubject returns all events recorded for a given subject (e.g. one
// project path or worker id), oldest first.
func (l *Log) ForSubject(subject string) ([]Event, error) {
	rows, err := l.conn.Query(
		`SELECT id, occurred_at, category, subject, event_type, details FROM events WHERE subject = ? ORDER BY id ASC`, subject,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var occurredAt string
		if err := rows.Scan(&e.ID, &occurredAt, &e.Category, &e.Subject, &e.EventType, &e.Details); err != nil {
			return nil, err
		}
		e.Time, _ = time.Parse(time.RFC3339Nano, occurredAt)
		events = append(events, e)
	}
	return events, rows.Err()
}
