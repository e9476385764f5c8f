package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/headline-goat/variant-goat/internal/experiment"
)

type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS assignments (
    test_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    variant_id TEXT NOT NULL,
    assigned_at INTEGER NOT NULL,
    PRIMARY KEY (test_id, user_id)
);

CREATE TABLE IF NOT EXISTS events (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT UNIQUE NOT NULL,
    test_id TEXT NOT NULL,
    variant_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    session_id TEXT NOT NULL DEFAULT '',
    event_type TEXT NOT NULL,
    event_value REAL,
    metadata TEXT,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_test ON events(test_id);
CREATE INDEX IF NOT EXISTS idx_events_test_variant ON events(test_id, variant_id);
`

// sqliteBusyTimeout applies to every pooled connection, so concurrent
// writers (and other processes on the same file) wait instead of failing
// with SQLITE_BUSY.
const sqliteBusyTimeout = "_pragma=busy_timeout(5000)"

func OpenSQLite(dbPath string) (*SQLiteStore, error) {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite", dbPath+sep+sqliteBusyTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetAssignment(ctx context.Context, testID, userID string) (string, error) {
	var variantID string
	err := s.db.QueryRowContext(ctx,
		`SELECT variant_id FROM assignments WHERE test_id = ? AND user_id = ?`,
		testID, userID,
	).Scan(&variantID)

	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get assignment: %w", err)
	}
	return variantID, nil
}

func (s *SQLiteStore) CreateAssignment(ctx context.Context, a experiment.Assignment) (string, bool, error) {
	assignedAt := a.AssignedAt
	if assignedAt.IsZero() {
		assignedAt = time.Now()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO assignments (test_id, user_id, variant_id, assigned_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(test_id, user_id) DO NOTHING`,
		a.TestID, a.UserID, a.VariantID, assignedAt.UnixNano(),
	)
	if err != nil {
		return "", false, fmt.Errorf("failed to create assignment: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return "", false, fmt.Errorf("failed to create assignment: %w", err)
	}
	if n == 1 {
		return a.VariantID, true, nil
	}

	// Another writer got there first
	existing, err := s.GetAssignment(ctx, a.TestID, a.UserID)
	if err != nil {
		return "", false, err
	}
	return existing, false, nil
}

func (s *SQLiteStore) AppendEvent(ctx context.Context, e experiment.Event) error {
	var metadata sql.NullString
	if len(e.Metadata) > 0 {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metadata = sql.NullString{String: string(b), Valid: true}
	}

	var value sql.NullFloat64
	if e.Value != nil {
		value = sql.NullFloat64{Float64: *e.Value, Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (id, test_id, variant_id, user_id, session_id, event_type, event_value, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.TestID, e.VariantID, e.UserID, e.SessionID, string(e.Type), value, metadata, e.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListEvents(ctx context.Context, testID string) ([]experiment.Event, error) {
	query := `SELECT id, test_id, variant_id, user_id, session_id, event_type, event_value, metadata, created_at
		 FROM events`
	var args []any
	if testID != "" {
		query += ` WHERE test_id = ?`
		args = append(args, testID)
	}
	query += ` ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()

	var events []experiment.Event
	for rows.Next() {
		var e experiment.Event
		var eventType string
		var value sql.NullFloat64
		var metadata sql.NullString
		var createdAt int64

		if err := rows.Scan(&e.ID, &e.TestID, &e.VariantID, &e.UserID, &e.SessionID, &eventType, &value, &metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		e.Type = experiment.EventType(eventType)
		if value.Valid {
			v := value.Float64
			e.Value = &v
		}
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &e.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		e.Timestamp = time.Unix(0, createdAt)

		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}

	return events, nil
}
