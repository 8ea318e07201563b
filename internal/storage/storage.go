// Package storage provides SQLite-backed persistence for outcome histories,
// pattern statistics, suggestions and bankroll cycles.
//
// Every table is keyed by account, so accounts never share rows. Outcomes get
// a monotonically increasing sequence number on insert; it is never reused,
// even after undo or rotation, which lets incremental learning keep a
// watermark. Bankroll cycles carry a version and SaveCycle is a
// compare-and-swap on it.
//
// Times are stored as Unix nanoseconds and money as decimal text.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rewired-gh/crashoracle/internal/models"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // pure Go SQLite driver
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

const schema = `
CREATE TABLE IF NOT EXISTS outcomes (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL UNIQUE,
	account_id TEXT NOT NULL,
	is_win     INTEGER NOT NULL,
	multiplier TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_outcomes_account ON outcomes(account_id, created_at, seq);

CREATE TABLE IF NOT EXISTS pattern_stats (
	account_id  TEXT NOT NULL,
	pattern_key TEXT NOT NULL,
	occurrences INTEGER NOT NULL,
	wins        INTEGER NOT NULL,
	last_seen   INTEGER NOT NULL,
	PRIMARY KEY (account_id, pattern_key)
);

CREATE TABLE IF NOT EXISTS pattern_watermarks (
	account_id TEXT PRIMARY KEY,
	last_seq   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS identified_patterns (
	account_id      TEXT NOT NULL,
	rank            INTEGER NOT NULL,
	pattern_key     TEXT NOT NULL,
	occurrences     INTEGER NOT NULL,
	wins            INTEGER NOT NULL,
	win_rate        REAL NOT NULL,
	expected_result TEXT NOT NULL,
	source          TEXT NOT NULL,
	PRIMARY KEY (account_id, rank)
);

CREATE TABLE IF NOT EXISTS suggestions (
	id                 TEXT PRIMARY KEY,
	account_id         TEXT NOT NULL,
	triggering_pattern TEXT NOT NULL,
	outcome            TEXT NOT NULL,
	confidence         REAL NOT NULL,
	created_at         INTEGER NOT NULL,
	resolved_outcome   TEXT
);
CREATE INDEX IF NOT EXISTS idx_suggestions_account ON suggestions(account_id, created_at);

CREATE TABLE IF NOT EXISTS bank_settings (
	account_id        TEXT PRIMARY KEY,
	initial_bankroll  TEXT NOT NULL,
	profit_target     TEXT NOT NULL,
	initial_stake     TEXT NOT NULL,
	stop_loss_percent TEXT NOT NULL,
	multiplier        TEXT NOT NULL,
	is_active         INTEGER NOT NULL,
	current_bankroll  TEXT,
	current_stake     TEXT,
	loss_streak       INTEGER NOT NULL DEFAULT 0,
	last_bankroll     TEXT,
	version           INTEGER NOT NULL,
	updated_at        INTEGER NOT NULL
);
`

// Storage is a SQLite store. It is safe for concurrent use.
type Storage struct {
	db *sql.DB
}

// New opens (creating if needed) the database at dbPath and applies the
// schema. Pass MemoryPath for a throwaway database.
func New(dbPath string) (*Storage, error) {
	connStr := dbPath
	if dbPath != MemoryPath {
		absPath, err := filepath.Abs(dbPath)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve database path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		connStr = absPath +
			"?_pragma=journal_mode(WAL)" +
			"&_pragma=synchronous(NORMAL)" +
			"&_pragma=busy_timeout(5000)" +
			"&_pragma=foreign_keys(1)"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer; one connection also keeps an
	// in-memory database alive and shared.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Storage{db: db}, nil
}

// Close closes the database.
func (s *Storage) Close() error {
	return s.db.Close()
}

// AppendOutcome inserts o and sets o.Seq to its assigned sequence number.
func (s *Storage) AppendOutcome(ctx context.Context, o *models.Outcome) error {
	if err := o.Validate(); err != nil {
		return fmt.Errorf("invalid outcome: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO outcomes (id, account_id, is_win, multiplier, created_at) VALUES (?, ?, ?, ?, ?)`,
		o.ID, o.AccountID, o.IsWin, o.Multiplier.String(), o.Timestamp.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to insert outcome: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read outcome sequence: %w", err)
	}
	o.Seq = seq
	return nil
}

const outcomeColumns = `seq, id, account_id, is_win, multiplier, created_at`

// LoadHistory returns every outcome of the account in chronological order.
func (s *Storage) LoadHistory(ctx context.Context, accountID string) ([]models.Outcome, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+outcomeColumns+` FROM outcomes WHERE account_id = ? ORDER BY created_at, seq`,
		accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	return scanOutcomes(rows)
}

// RecentOutcomes returns the newest n outcomes of the account in
// chronological order.
func (s *Storage) RecentOutcomes(ctx context.Context, accountID string, n int) ([]models.Outcome, error) {
	if n <= 0 {
		return []models.Outcome{}, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+outcomeColumns+` FROM (
			SELECT `+outcomeColumns+` FROM outcomes WHERE account_id = ?
			ORDER BY created_at DESC, seq DESC LIMIT ?
		) ORDER BY created_at, seq`,
		accountID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent outcomes: %w", err)
	}
	return scanOutcomes(rows)
}

// DeleteLastOutcome removes and returns the newest outcome of the account.
// Returns models.ErrNotFound when the history is empty.
func (s *Storage) DeleteLastOutcome(ctx context.Context, accountID string) (models.Outcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Outcome{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT `+outcomeColumns+` FROM outcomes WHERE account_id = ?
		ORDER BY created_at DESC, seq DESC LIMIT 1`,
		accountID)
	last, err := scanOutcome(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Outcome{}, fmt.Errorf("no outcomes for account %s: %w", accountID, models.ErrNotFound)
	}
	if err != nil {
		return models.Outcome{}, fmt.Errorf("failed to read last outcome: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM outcomes WHERE seq = ?`, last.Seq); err != nil {
		return models.Outcome{}, fmt.Errorf("failed to delete outcome: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return models.Outcome{}, fmt.Errorf("failed to commit: %w", err)
	}
	return last, nil
}

// ClearHistory deletes every outcome of the account and returns how many
// were removed.
func (s *Storage) ClearHistory(ctx context.Context, accountID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM outcomes WHERE account_id = ?`, accountID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear history: %w", err)
	}
	return res.RowsAffected()
}

// RotateOutcomes keeps the newest max outcomes of every account and deletes
// the rest. A max of zero or less disables rotation.
func (s *Storage) RotateOutcomes(ctx context.Context, max int) (int64, error) {
	if max <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM outcomes WHERE seq IN (
			SELECT seq FROM (
				SELECT seq, ROW_NUMBER() OVER (
					PARTITION BY account_id ORDER BY created_at DESC, seq DESC
				) AS rn FROM outcomes
			) WHERE rn > ?
		)`, max)
	if err != nil {
		return 0, fmt.Errorf("failed to rotate outcomes: %w", err)
	}
	return res.RowsAffected()
}

// Accounts lists every account that has at least one outcome.
func (s *Storage) Accounts(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT account_id FROM outcomes ORDER BY account_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	accounts := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, id)
	}
	return accounts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOutcome(row rowScanner) (models.Outcome, error) {
	var (
		o          models.Outcome
		multiplier string
		createdAt  int64
	)
	if err := row.Scan(&o.Seq, &o.ID, &o.AccountID, &o.IsWin, &multiplier, &createdAt); err != nil {
		return models.Outcome{}, err
	}
	m, err := decimal.NewFromString(multiplier)
	if err != nil {
		return models.Outcome{}, fmt.Errorf("bad multiplier %q: %w", multiplier, err)
	}
	o.Multiplier = m
	o.Timestamp = fromNanos(createdAt)
	return o, nil
}

func scanOutcomes(rows *sql.Rows) ([]models.Outcome, error) {
	defer rows.Close()

	outcomes := []models.Outcome{}
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate outcomes: %w", err)
	}
	return outcomes, nil
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
