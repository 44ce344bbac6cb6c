package deliverylog

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Outcome classifies how a webhook request ended
type Outcome string

const (
	OutcomeReplied Outcome = "replied"
	OutcomeEmpty   Outcome = "empty"
	OutcomeFailed  Outcome = "failed"
)

// Delivery is the operational record of one webhook request. The message
// text itself is never stored, only its fingerprint.
type Delivery struct {
	SessionID     string
	CorrelationID string
	StartedAt     time.Time
	Duration      time.Duration
	Outcome       Outcome
	ReplyCount    int
	HTTPStatus    int
	Fingerprint   string
	Error         string
}

// Summary aggregates deliveries per outcome
type Summary struct {
	Total       int
	ByOutcome   map[Outcome]int
	AvgDuration time.Duration
	Since       time.Time
}

// Fingerprint returns the hex sha256 of a message text
func Fingerprint(text string) string {
	h := sha256.New()
	h.Write([]byte(text))
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Store is a SQLite backed delivery log
type Store struct {
	db *sql.DB
}

// Open opens (and creates if needed) the delivery log at path
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	createDeliveriesTable := `
	CREATE TABLE IF NOT EXISTS deliveries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT,
		correlation_id TEXT,
		started_at DATETIME,
		duration_ms INTEGER,
		outcome TEXT,
		reply_count INTEGER,
		http_status INTEGER,
		fingerprint TEXT,
		error TEXT
	);`

	createOutcomeIndex := `CREATE INDEX IF NOT EXISTS idx_deliveries_outcome ON deliveries(outcome);`

	if _, err := db.Exec(createDeliveriesTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create deliveries table: %w", err)
	}

	if _, err := db.Exec(createOutcomeIndex); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create outcome index: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends one delivery
func (s *Store) Record(ctx context.Context, d Delivery) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO deliveries (session_id, correlation_id, started_at, duration_ms, outcome, reply_count, http_status, fingerprint, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.SessionID, d.CorrelationID, d.StartedAt.UTC(), d.Duration.Milliseconds(),
		string(d.Outcome), d.ReplyCount, d.HTTPStatus, d.Fingerprint, d.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to record delivery: %w", err)
	}
	return nil
}

// Recent returns up to limit deliveries, newest first
func (s *Store) Recent(ctx context.Context, limit int) ([]Delivery, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, correlation_id, started_at, duration_ms, outcome, reply_count, http_status, fingerprint, error
		FROM deliveries ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load deliveries: %w", err)
	}
	defer rows.Close()

	deliveries := []Delivery{}
	for rows.Next() {
		var d Delivery
		var durationMs int64
		var outcome string
		if err := rows.Scan(&d.SessionID, &d.CorrelationID, &d.StartedAt, &durationMs, &outcome,
			&d.ReplyCount, &d.HTTPStatus, &d.Fingerprint, &d.Error); err != nil {
			return nil, fmt.Errorf("failed to scan delivery: %w", err)
		}
		d.Duration = time.Duration(durationMs) * time.Millisecond
		d.Outcome = Outcome(outcome)
		deliveries = append(deliveries, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate deliveries: %w", err)
	}
	return deliveries, nil
}

// Summarize aggregates every delivery started at or after since. A zero since
// covers the whole log.
func (s *Store) Summarize(ctx context.Context, since time.Time) (Summary, error) {
	sum := Summary{ByOutcome: map[Outcome]int{}, Since: since}

	rows, err := s.db.QueryContext(ctx,
		`SELECT outcome, COUNT(*), COALESCE(SUM(duration_ms), 0)
		FROM deliveries WHERE started_at >= ? GROUP BY outcome`,
		since.UTC(),
	)
	if err != nil {
		return sum, fmt.Errorf("failed to summarize deliveries: %w", err)
	}
	defer rows.Close()

	var totalMs int64
	for rows.Next() {
		var outcome string
		var count int
		var ms int64
		if err := rows.Scan(&outcome, &count, &ms); err != nil {
			return sum, fmt.Errorf("failed to scan summary: %w", err)
		}
		sum.ByOutcome[Outcome(outcome)] = count
		sum.Total += count
		totalMs += ms
	}
	if err := rows.Err(); err != nil {
		return sum, fmt.Errorf("failed to iterate summary: %w", err)
	}

	if sum.Total > 0 {
		sum.AvgDuration = time.Duration(totalMs/int64(sum.Total)) * time.Millisecond
	}
	return sum, nil
}
