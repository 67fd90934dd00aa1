// Package journal persists alert transitions to SQLite.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/teslashibe/go-dms/pkg/session"
)

// DefaultLimit caps Recent when called with a non-positive limit.
const DefaultLimit = 100

// ErrClosed is returned after Close.
var ErrClosed = errors.New("journal: closed")

// Entry is one stored alert.
type Entry struct {
	ID string `json:"id"`
	session.Alert
}

// Journal is an append-only alert log.
type Journal struct {
	conn *sql.DB
}

// Open opens or creates the journal database at path.
func Open(path string) (*Journal, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	// sqlite3 serialises writers; one connection avoids SQLITE_BUSY
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping journal: %w", err)
	}

	j := &Journal{conn: conn}
	if err := j.createTables(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return j, nil
}

func (j *Journal) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		stream_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		active INTEGER NOT NULL,
		frame INTEGER NOT NULL,
		closed_time REAL NOT NULL,
		distracted_time REAL NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_alerts_stream_created ON alerts (stream_id, created_at);
	`

	_, err := j.conn.Exec(query)
	return err
}

// Record stores an alert and returns its ID.
func (j *Journal) Record(ctx context.Context, a session.Alert) (string, error) {
	if j.conn == nil {
		return "", ErrClosed
	}
	if a.At.IsZero() {
		a.At = time.Now()
	}

	id := uuid.New().String()
	query := `
		INSERT INTO alerts (
			id, stream_id, kind, active, frame, closed_time, distracted_time, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := j.conn.ExecContext(ctx, query,
		id,
		a.Stream,
		string(a.Kind),
		a.Active,
		int64(a.Frame),
		a.ClosedTime,
		a.DistractedTime,
		a.At.UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to record alert: %w", err)
	}
	return id, nil
}

// HandleAlert implements session.AlertSink.
func (j *Journal) HandleAlert(ctx context.Context, a session.Alert) error {
	_, err := j.Record(ctx, a)
	return err
}

// Recent returns the newest alerts first. An empty streamID matches every
// stream.
func (j *Journal) Recent(ctx context.Context, streamID string, limit int) ([]Entry, error) {
	if j.conn == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	query := `
		SELECT id, stream_id, kind, active, frame, closed_time, distracted_time, created_at
		FROM alerts`
	args := []any{}
	if streamID != "" {
		query += ` WHERE stream_id = ?`
		args = append(args, streamID)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := j.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e     Entry
			kind  string
			frame int64
		)
		if err := rows.Scan(
			&e.ID,
			&e.Stream,
			&kind,
			&e.Active,
			&frame,
			&e.ClosedTime,
			&e.DistractedTime,
			&e.At,
		); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		e.Kind = session.AlertKind(kind)
		e.Frame = uint64(frame)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Count returns the number of stored alerts.
func (j *Journal) Count(ctx context.Context) (int, error) {
	if j.conn == nil {
		return 0, ErrClosed
	}
	var n int
	err := j.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM alerts`).Scan(&n)
	return n, err
}

// Close closes the database.
func (j *Journal) Close() error {
	if j.conn == nil {
		return nil
	}
	err := j.conn.Close()
	j.conn = nil
	return err
}
