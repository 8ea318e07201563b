package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rewired-gh/crashoracle/internal/models"
)

// LoadCycle returns the account's bankroll cycle, or models.ErrNotFound when
// none was saved yet.
func (s *Storage) LoadCycle(ctx context.Context, accountID string) (models.BankrollCycle, error) {
	var (
		c         models.BankrollCycle
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT account_id, initial_bankroll, profit_target, initial_stake, stop_loss_percent, multiplier,
			is_active, current_bankroll, current_stake, loss_streak, last_bankroll, version, updated_at
		FROM bank_settings WHERE account_id = ?`, accountID).Scan(
		&c.AccountID, &c.InitialBankroll, &c.ProfitTarget, &c.InitialStake, &c.StopLossPercent, &c.Multiplier,
		&c.IsActive, &c.CurrentBankroll, &c.CurrentStake, &c.LossStreak, &c.LastBankroll, &c.Version, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.BankrollCycle{}, fmt.Errorf("bank settings for %s: %w", accountID, models.ErrNotFound)
	}
	if err != nil {
		return models.BankrollCycle{}, fmt.Errorf("failed to read bank settings: %w", err)
	}
	c.UpdatedAt = fromNanos(updatedAt)
	return c, nil
}

// SaveCycle stores c if its version still matches the stored one, then bumps
// c.Version. A cycle with version 0 is inserted and must not exist yet.
// Returns models.ErrConflict when another writer saved first.
func (s *Storage) SaveCycle(ctx context.Context, c *models.BankrollCycle) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid bankroll cycle: %w", err)
	}

	var (
		res sql.Result
		err error
	)
	if c.Version == 0 {
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO bank_settings (account_id, initial_bankroll, profit_target, initial_stake, stop_loss_percent,
				multiplier, is_active, current_bankroll, current_stake, loss_streak, last_bankroll, version, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)
			ON CONFLICT(account_id) DO NOTHING`,
			c.AccountID, c.InitialBankroll, c.ProfitTarget, c.InitialStake, c.StopLossPercent,
			c.Multiplier, c.IsActive, c.CurrentBankroll, c.CurrentStake, c.LossStreak, c.LastBankroll, c.UpdatedAt.UnixNano())
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE bank_settings SET initial_bankroll = ?, profit_target = ?, initial_stake = ?,
				stop_loss_percent = ?, multiplier = ?, is_active = ?, current_bankroll = ?, current_stake = ?,
				loss_streak = ?, last_bankroll = ?, version = version + 1, updated_at = ?
			WHERE account_id = ? AND version = ?`,
			c.InitialBankroll, c.ProfitTarget, c.InitialStake, c.StopLossPercent, c.Multiplier,
			c.IsActive, c.CurrentBankroll, c.CurrentStake, c.LossStreak, c.LastBankroll, c.UpdatedAt.UnixNano(),
			c.AccountID, c.Version)
	}
	if err != nil {
		return fmt.Errorf("failed to save bank settings: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to save bank settings: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("bank settings for %s at version %d: %w", c.AccountID, c.Version, models.ErrConflict)
	}
	c.Version++
	return nil
}
