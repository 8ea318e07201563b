package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rewired-gh/crashoracle/internal/models"
)

// LoadPatternBook returns the account's pattern statistics. An account that
// never learned gets an empty book.
func (s *Storage) LoadPatternBook(ctx context.Context, accountID string) (models.PatternBook, error) {
	book := models.NewPatternBook()

	err := s.db.QueryRowContext(ctx,
		`SELECT last_seq FROM pattern_watermarks WHERE account_id = ?`, accountID).Scan(&book.LastSeq)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return models.PatternBook{}, fmt.Errorf("failed to read watermark: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT pattern_key, occurrences, wins, last_seen FROM pattern_stats WHERE account_id = ?`,
		accountID)
	if err != nil {
		return models.PatternBook{}, fmt.Errorf("failed to query pattern stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			st       models.PatternStat
			lastSeen int64
		)
		if err := rows.Scan(&st.Key, &st.Occurrences, &st.Wins, &lastSeen); err != nil {
			return models.PatternBook{}, fmt.Errorf("failed to scan pattern stat: %w", err)
		}
		st.LastSeen = fromNanos(lastSeen)
		book.Stats[st.Key] = st
	}
	if err := rows.Err(); err != nil {
		return models.PatternBook{}, fmt.Errorf("failed to iterate pattern stats: %w", err)
	}
	return book, nil
}

// SavePatternBook replaces the account's statistics and watermark with book.
func (s *Storage) SavePatternBook(ctx context.Context, accountID string, book models.PatternBook) error {
	if err := validateBook(book); err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return savePatternBook(ctx, tx, accountID, book)
	})
}

// ReplaceIdentifiedPatterns swaps the account's Top-N table for top.
func (s *Storage) ReplaceIdentifiedPatterns(ctx context.Context, accountID string, top []models.RankedPattern) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return replaceIdentifiedPatterns(ctx, tx, accountID, top)
	})
}

// SaveLearning stores the outcome of a learning pass, the book and the Top-N
// table, in one transaction.
func (s *Storage) SaveLearning(ctx context.Context, accountID string, book models.PatternBook, top []models.RankedPattern) error {
	if err := validateBook(book); err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := savePatternBook(ctx, tx, accountID, book); err != nil {
			return err
		}
		return replaceIdentifiedPatterns(ctx, tx, accountID, top)
	})
}

func validateBook(book models.PatternBook) error {
	for _, st := range book.Stats {
		if err := st.Validate(); err != nil {
			return fmt.Errorf("invalid pattern stat %s: %w", st.Key, err)
		}
	}
	return nil
}

func savePatternBook(ctx context.Context, tx *sql.Tx, accountID string, book models.PatternBook) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM pattern_stats WHERE account_id = ?`, accountID); err != nil {
		return fmt.Errorf("failed to clear pattern stats: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO pattern_stats (account_id, pattern_key, occurrences, wins, last_seen) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for key, st := range book.Stats {
		if _, err := stmt.ExecContext(ctx, accountID, string(key), st.Occurrences, st.Wins, st.LastSeen.UnixNano()); err != nil {
			return fmt.Errorf("failed to insert pattern stat %s: %w", key, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO pattern_watermarks (account_id, last_seq) VALUES (?, ?)
		ON CONFLICT(account_id) DO UPDATE SET last_seq = excluded.last_seq`,
		accountID, book.LastSeq); err != nil {
		return fmt.Errorf("failed to save watermark: %w", err)
	}
	return nil
}

func replaceIdentifiedPatterns(ctx context.Context, tx *sql.Tx, accountID string, top []models.RankedPattern) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM identified_patterns WHERE account_id = ?`, accountID); err != nil {
		return fmt.Errorf("failed to clear identified patterns: %w", err)
	}
	for _, rp := range top {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO identified_patterns
			(account_id, rank, pattern_key, occurrences, wins, win_rate, expected_result, source)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			accountID, rp.Rank, string(rp.Key), rp.Occurrences, rp.Wins, rp.WinRate, rp.ExpectedResult, rp.Source); err != nil {
			return fmt.Errorf("failed to insert identified pattern %s: %w", rp.Key, err)
		}
	}
	return nil
}

// LoadIdentifiedPatterns returns the account's Top-N table by rank.
func (s *Storage) LoadIdentifiedPatterns(ctx context.Context, accountID string) ([]models.RankedPattern, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT rank, pattern_key, occurrences, wins, win_rate, expected_result, source
		FROM identified_patterns WHERE account_id = ? ORDER BY rank`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query identified patterns: %w", err)
	}
	defer rows.Close()

	patterns := []models.RankedPattern{}
	for rows.Next() {
		var rp models.RankedPattern
		if err := rows.Scan(&rp.Rank, &rp.Key, &rp.Occurrences, &rp.Wins, &rp.WinRate, &rp.ExpectedResult, &rp.Source); err != nil {
			return nil, fmt.Errorf("failed to scan identified pattern: %w", err)
		}
		patterns = append(patterns, rp)
	}
	return patterns, rows.Err()
}

func (s *Storage) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}
