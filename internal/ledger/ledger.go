// ABOUTME: SQLite-backed audit trail of every deletion the bot performs
// ABOUTME: Records reason and attempt count per deletion, read back by the !status command

package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"maunium.net/go/mautrix/id"
	_ "modernc.org/sqlite"
)

// Deletion reasons recorded in the ledger.
const (
	ReasonDuplicate  = "duplicate"   // removed on arrival: content already seen
	ReasonExpired    = "expired"     // fleeting-message window elapsed
	ReasonDeadLetter = "dead_letter" // retry ceiling reached, deletion abandoned
)

// Entry is one row of the deletion ledger.
type Entry struct {
	ID        string
	RoomID    string
	EventID   string
	Reason    string
	Attempts  int
	DeletedAt time.Time
}

// Ledger persists deletion outcomes to SQLite. Writes are best-effort
// from the caller's point of view: a failed ledger write is logged and
// never interrupts moderation.
type Ledger struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates or opens the ledger database at the given path. Parent
// directories are created if needed and the schema is applied
// automatically.
func Open(path string) (*Ledger, error) {
	logger := slog.Default().With("component", "ledger")

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger database: %w", err)
	}

	// WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	l := &Ledger{db: db, logger: logger}
	if err := l.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating ledger schema: %w", err)
	}

	logger.Info("deletion ledger opened", "path", path)
	return l, nil
}

func (l *Ledger) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS deletions (
			id         TEXT PRIMARY KEY,
			room_id    TEXT NOT NULL,
			event_id   TEXT NOT NULL,
			reason     TEXT NOT NULL,
			attempts   INTEGER NOT NULL,
			deleted_at TEXT NOT NULL,

			CHECK (reason IN ('duplicate', 'expired', 'dead_letter'))
		);

		CREATE INDEX IF NOT EXISTS idx_deletions_deleted_at ON deletions(deleted_at);
		CREATE INDEX IF NOT EXISTS idx_deletions_reason ON deletions(reason);
	`
	_, err := l.db.Exec(schema)
	return err
}

// RecordDeletion appends a deletion outcome to the ledger.
func (l *Ledger) RecordDeletion(ctx context.Context, room id.RoomID, eventID id.EventID, reason string, attempts int) error {
	query := `
		INSERT INTO deletions (id, room_id, event_id, reason, attempts, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := l.db.ExecContext(ctx, query,
		uuid.New().String(),
		room.String(),
		eventID.String(),
		reason,
		attempts,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting ledger entry: %w", err)
	}

	l.logger.Debug("recorded deletion",
		"event", eventID.String(),
		"reason", reason,
		"attempts", attempts,
	)
	return nil
}

// Recent returns the most recent ledger entries, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, room_id, event_id, reason, attempts, deleted_at
		FROM deletions
		ORDER BY deleted_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying ledger: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var deletedAt string
		if err := rows.Scan(&e.ID, &e.RoomID, &e.EventID, &e.Reason, &e.Attempts, &deletedAt); err != nil {
			return nil, fmt.Errorf("scanning ledger entry: %w", err)
		}
		ts, err := time.Parse(time.RFC3339, deletedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing ledger timestamp: %w", err)
		}
		e.DeletedAt = ts
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Counts returns the number of ledger entries per deletion reason.
func (l *Ledger) Counts(ctx context.Context) (map[string]int, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT reason, COUNT(*) FROM deletions GROUP BY reason
	`)
	if err != nil {
		return nil, fmt.Errorf("counting ledger entries: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var reason string
		var n int
		if err := rows.Scan(&reason, &n); err != nil {
			return nil, fmt.Errorf("scanning ledger count: %w", err)
		}
		counts[reason] = n
	}
	return counts, rows.Err()
}

// Close releases the underlying database handle.
func (l *Ledger) Close() error {
	return l.db.Close()
}
