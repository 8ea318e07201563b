package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// CycleStatus reports what a result did to the running cycle.
type CycleStatus string

const (
	StatusContinuing    CycleStatus = "CONTINUING"
	StatusStoppedLoss   CycleStatus = "STOPPED_LOSS"
	StatusStoppedProfit CycleStatus = "STOPPED_PROFIT"
)

// BankrollCycle holds the bank management settings of one account together
// with the live state of the running cycle, if any.
//
// CurrentBankroll and CurrentStake are both valid iff IsActive is true.
// LossStreak counts the consecutive losses of the running cycle and picks the
// ladder rung of CurrentStake; it is 0 while inactive.
// LastBankroll keeps the closing bankroll of the most recent finished cycle.
// Version is bumped on every save and guards against lost updates.
type BankrollCycle struct {
	AccountID       string              `json:"account_id"`
	InitialBankroll decimal.Decimal     `json:"initial_bankroll"`
	ProfitTarget    decimal.Decimal     `json:"profit_target"`
	InitialStake    decimal.Decimal     `json:"initial_stake"`
	StopLossPercent decimal.Decimal     `json:"stop_loss_percent"`
	Multiplier      decimal.Decimal     `json:"multiplier"`
	IsActive        bool                `json:"is_active"`
	CurrentBankroll decimal.NullDecimal `json:"current_bankroll"`
	CurrentStake    decimal.NullDecimal `json:"current_stake"`
	LossStreak      int                 `json:"loss_streak"`
	LastBankroll    decimal.NullDecimal `json:"last_bankroll"`
	Version         int64               `json:"version"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// Validate checks the active/current-values invariant. Settings are checked
// by the bankroll package, which owns their rules.
func (c *BankrollCycle) Validate() error {
	if c.AccountID == "" {
		return errors.New("account ID must not be empty")
	}
	if c.IsActive != c.CurrentBankroll.Valid || c.IsActive != c.CurrentStake.Valid {
		return errors.New("current bankroll and stake must be set iff the cycle is active")
	}
	if c.LossStreak < 0 {
		return errors.New("loss streak must not be negative")
	}
	if !c.IsActive && c.LossStreak != 0 {
		return errors.New("loss streak must be 0 while the cycle is inactive")
	}
	return nil
}
