package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rewired-gh/crashoracle/internal/models"
)

const suggestionColumns = `id, account_id, triggering_pattern, outcome, confidence, created_at, resolved_outcome`

// AppendSuggestion adds sg to the account's suggestion log.
func (s *Storage) AppendSuggestion(ctx context.Context, sg *models.Suggestion) error {
	if err := sg.Validate(); err != nil {
		return fmt.Errorf("invalid suggestion: %w", err)
	}

	var resolved sql.NullString
	if sg.ResolvedOutcome != nil {
		resolved = sql.NullString{String: string(*sg.ResolvedOutcome), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO suggestions (`+suggestionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sg.ID, sg.AccountID, string(sg.TriggeringPattern), string(sg.Outcome), sg.Confidence,
		sg.Timestamp.UnixNano(), resolved)
	if err != nil {
		return fmt.Errorf("failed to insert suggestion: %w", err)
	}
	return nil
}

// LoadSuggestions returns the account's suggestions, newest first. A limit of
// zero or less returns all of them.
func (s *Storage) LoadSuggestions(ctx context.Context, accountID string, limit int) ([]models.Suggestion, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+suggestionColumns+` FROM suggestions WHERE account_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query suggestions: %w", err)
	}
	defer rows.Close()

	suggestions := []models.Suggestion{}
	for rows.Next() {
		sg, err := scanSuggestion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan suggestion: %w", err)
		}
		suggestions = append(suggestions, sg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate suggestions: %w", err)
	}
	return suggestions, nil
}

// ResolveSuggestion records the actual result of a suggestion and returns
// the updated record. Returns models.ErrNotFound for an unknown ID.
func (s *Storage) ResolveSuggestion(ctx context.Context, accountID, id string, res models.Resolution) (models.Suggestion, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE suggestions SET resolved_outcome = ? WHERE account_id = ? AND id = ?`,
		string(res), accountID, id)
	if err != nil {
		return models.Suggestion{}, fmt.Errorf("failed to resolve suggestion: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return models.Suggestion{}, fmt.Errorf("suggestion %s: %w", id, models.ErrNotFound)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+suggestionColumns+` FROM suggestions WHERE account_id = ? AND id = ?`, accountID, id)
	sg, err := scanSuggestion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Suggestion{}, fmt.Errorf("suggestion %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return models.Suggestion{}, fmt.Errorf("failed to read suggestion: %w", err)
	}
	return sg, nil
}

// ClearSuggestions deletes the account's suggestion log.
func (s *Storage) ClearSuggestions(ctx context.Context, accountID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM suggestions WHERE account_id = ?`, accountID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear suggestions: %w", err)
	}
	return res.RowsAffected()
}

func scanSuggestion(row rowScanner) (models.Suggestion, error) {
	var (
		sg        models.Suggestion
		createdAt int64
		resolved  sql.NullString
	)
	if err := row.Scan(&sg.ID, &sg.AccountID, &sg.TriggeringPattern, &sg.Outcome, &sg.Confidence, &createdAt, &resolved); err != nil {
		return models.Suggestion{}, err
	}
	sg.Timestamp = fromNanos(createdAt)
	if resolved.Valid {
		r := models.Resolution(resolved.String)
		sg.ResolvedOutcome = &r
	}
	return sg, nil
}
