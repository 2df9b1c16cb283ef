package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/glebarez/sqlite"
	"github.com/google/uuid"
)

// Entry is one immutable audit row describing an attempted engine operation.
type Entry struct {
	ID        string
	Timestamp time.Time
	Operation string
	Account   string
	Asset     string
	AmountWei string
	Outcome   string
	Detail    string
}

// ErrPathRequired is returned when the backing store DSN is missing.
var ErrPathRequired = errors.New("audit: store path must be configured")

const schema = `
CREATE TABLE IF NOT EXISTS audit_log (
    id TEXT PRIMARY KEY,
    ts TEXT NOT NULL,
    op TEXT NOT NULL,
    account TEXT NOT NULL,
    asset TEXT NOT NULL DEFAULT '',
    amount_wei TEXT NOT NULL DEFAULT '',
    outcome TEXT NOT NULL,
    detail TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_audit_log_ts ON audit_log(ts);
CREATE INDEX IF NOT EXISTS idx_audit_log_account ON audit_log(account);
`

// Store wraps the sqlite-backed audit trail.
type Store struct {
	db *sql.DB
}

// Open initialises the backing store using a sqlite-compatible DSN.
func Open(dsn string) (*Store, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("open audit store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply audit schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases database resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record appends one row to the audit trail. A zero ID or timestamp is filled
// in; everything else is stored verbatim.
func (s *Store) Record(ctx context.Context, entry Entry) (Entry, error) {
	if strings.TrimSpace(entry.ID) == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, ts, op, account, asset, amount_wei, outcome, detail)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.Timestamp.UTC().Format(time.RFC3339Nano),
		entry.Operation,
		entry.Account,
		entry.Asset,
		entry.AmountWei,
		entry.Outcome,
		entry.Detail,
	)
	if err != nil {
		return Entry{}, fmt.Errorf("record audit entry: %w", err)
	}
	return entry, nil
}

// Recent returns the newest rows, most recent first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ts, op, account, asset, amount_wei, outcome, detail
		 FROM audit_log ORDER BY ts DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var entry Entry
		var ts string
		if err := rows.Scan(&entry.ID, &ts, &entry.Operation, &entry.Account, &entry.Asset, &entry.AmountWei, &entry.Outcome, &entry.Detail); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse audit timestamp: %w", err)
		}
		entry.Timestamp = parsed
		out = append(out, entry)
	}
	return out, rows.Err()
}

// ByAccount returns the newest rows touching one account, most recent first.
func (s *Store) ByAccount(ctx context.Context, account string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ts, op, account, asset, amount_wei, outcome, detail
		 FROM audit_log WHERE account = ? ORDER BY ts DESC LIMIT ?`, account, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var entry Entry
		var ts string
		if err := rows.Scan(&entry.ID, &ts, &entry.Operation, &entry.Account, &entry.Asset, &entry.AmountWei, &entry.Outcome, &entry.Detail); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse audit timestamp: %w", err)
		}
		entry.Timestamp = parsed
		out = append(out, entry)
	}
	return out, rows.Err()
}
