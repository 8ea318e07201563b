package bankroll

import (
	"errors"
	"fmt"

	"github.com/rewired-gh/crashoracle/internal/models"
	"github.com/shopspring/decimal"
)

// Settings are the user-editable parameters of a cycle.
type Settings struct {
	InitialBankroll decimal.Decimal `json:"initial_bankroll"`
	ProfitTarget    decimal.Decimal `json:"profit_target"`
	InitialStake    decimal.Decimal `json:"initial_stake"`
	StopLossPercent decimal.Decimal `json:"stop_loss_percent"`
	Multiplier      decimal.Decimal `json:"multiplier"`
}

// DefaultSettings returns 500 bankroll, +400 target, 25 stake, 20% stop-loss
// and a 2.0 cash-out multiplier.
func DefaultSettings() Settings {
	return Settings{
		InitialBankroll: decimal.NewFromInt(500),
		ProfitTarget:    decimal.NewFromInt(400),
		InitialStake:    decimal.NewFromInt(25),
		StopLossPercent: decimal.NewFromInt(20),
		Multiplier:      decimal.NewFromInt(2),
	}
}

// Validate checks the settings. Errors wrap models.ErrInvalidConfiguration.
// ProfitTarget is not constrained.
func (s Settings) Validate() error {
	if err := s.validate(); err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidConfiguration, err)
	}
	return nil
}

func (s Settings) validate() error {
	if !s.InitialBankroll.IsPositive() {
		return errors.New("initial bankroll must be positive")
	}
	if !s.InitialStake.IsPositive() {
		return errors.New("initial stake must be positive")
	}
	if s.StopLossPercent.IsNegative() || s.StopLossPercent.GreaterThan(hundred) {
		return errors.New("stop loss percent must be between 0 and 100")
	}
	if s.Multiplier.LessThanOrEqual(decimal.NewFromInt(1)) {
		return errors.New("multiplier must be greater than 1")
	}
	return nil
}

// StopLossFloor is the bankroll at or below which a cycle stops.
func (s Settings) StopLossFloor() decimal.Decimal {
	keep := hundred.Sub(s.StopLossPercent).Div(hundred)
	return s.InitialBankroll.Mul(keep)
}

// ProfitGoal is the bankroll at or above which a cycle stops.
func (s Settings) ProfitGoal() decimal.Decimal {
	return s.InitialBankroll.Add(s.ProfitTarget)
}

// SettingsOf extracts the settings stored on a cycle.
func SettingsOf(c models.BankrollCycle) Settings {
	return Settings{
		InitialBankroll: c.InitialBankroll,
		ProfitTarget:    c.ProfitTarget,
		InitialStake:    c.InitialStake,
		StopLossPercent: c.StopLossPercent,
		Multiplier:      c.Multiplier,
	}
}

// NewCycle returns an inactive cycle for accountID carrying s.
func NewCycle(accountID string, s Settings) models.BankrollCycle {
	return s.apply(models.BankrollCycle{AccountID: accountID})
}

func (s Settings) apply(c models.BankrollCycle) models.BankrollCycle {
	c.InitialBankroll = s.InitialBankroll
	c.ProfitTarget = s.ProfitTarget
	c.InitialStake = s.InitialStake
	c.StopLossPercent = s.StopLossPercent
	c.Multiplier = s.Multiplier
	return c
}
