package store

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

// AuditEntry is one row of the gateway audit log.
type AuditEntry struct {
	ID         int64
	OccurredAt time.Time
	RequestID  string
	Caller     string
	Method     string
	Path       string
	Status     int
	ErrorKind  string
}

// AuditLog persists an append-only record of mutating requests in SQLite.
type AuditLog struct {
	db *sql.DB
}

func OpenAuditLog(path string) (*AuditLog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps :memory: databases coherent.
	db.SetMaxOpenConns(1)
	log := &AuditLog{db: db}
	if err := log.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return log, nil
}

func (a *AuditLog) init() error {
	_, err := a.db.Exec(`CREATE TABLE IF NOT EXISTS audit_log (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            occurred_at TIMESTAMP NOT NULL,
            request_id TEXT,
            caller TEXT,
            method TEXT NOT NULL,
            path TEXT NOT NULL,
            status INTEGER NOT NULL,
            error_kind TEXT
        );`)
	return err
}

func (a *AuditLog) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}

// Record appends entry. OccurredAt defaults to now.
func (a *AuditLog) Record(ctx context.Context, entry AuditEntry) error {
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now()
	}
	_, err := a.db.ExecContext(ctx, `INSERT INTO audit_log
        (occurred_at, request_id, caller, method, path, status, error_kind)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.OccurredAt.UTC(), entry.RequestID, entry.Caller, entry.Method, entry.Path, entry.Status, entry.ErrorKind)
	return err
}

// Recent returns up to limit entries, newest first.
func (a *AuditLog) Recent(ctx context.Context, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := a.db.QueryContext(ctx, `SELECT id, occurred_at, request_id, caller, method, path, status, error_kind
        FROM audit_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AuditEntry
	for rows.Next() {
		var (
			entry             AuditEntry
			requestID, caller sql.NullString
			errorKind         sql.NullString
		)
		if err := rows.Scan(&entry.ID, &entry.OccurredAt, &requestID, &caller, &entry.Method, &entry.Path, &entry.Status, &errorKind); err != nil {
			return nil, err
		}
		entry.RequestID = requestID.String
		entry.Caller = caller.String
		entry.ErrorKind = errorKind.String
		out = append(out, entry)
	}
	return out, rows.Err()
}
