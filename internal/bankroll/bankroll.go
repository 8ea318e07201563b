// Package bankroll provides the staking cycle engine.
//
// A cycle is either INACTIVE or ACTIVE. While active every reported result
// moves the bankroll and picks the next stake from a soft-martingale ladder:
//
//	loss streak  0   1    2    3    4    5    6    7    8+
//	factor       1   1.2  1.8  2.8  4    6    9    14   20
//
// A win pays stake*(multiplier-1) and resets the stake to the initial one.
// After each result the stop-loss floor is checked first, then the profit
// goal; hitting either one ends the cycle.
//
// All functions are pure: they take a cycle value and return a new one, and a
// failed call returns the input unchanged together with an error.
package bankroll

import (
	"fmt"

	"github.com/rewired-gh/crashoracle/internal/models"
	"github.com/shopspring/decimal"
)

// rungFactors are the cumulative stake factors of the ladder. Consecutive
// rungs grow by 6/5, 3/2, 14/9, 10/7, 3/2, 3/2, 14/9, 10/7.
var rungFactors = []decimal.Decimal{
	decimal.NewFromInt(1),
	decimal.RequireFromString("1.2"),
	decimal.RequireFromString("1.8"),
	decimal.RequireFromString("2.8"),
	decimal.NewFromInt(4),
	decimal.NewFromInt(6),
	decimal.NewFromInt(9),
	decimal.NewFromInt(14),
	decimal.NewFromInt(20),
}

// MaxRung is the loss streak at which the ladder stops climbing.
const MaxRung = 8

var hundred = decimal.NewFromInt(100)

// Ladder returns the stake after lossStreak consecutive losses, rounded to
// cents. Streaks past MaxRung stay on the top rung; negative streaks are
// treated as zero.
func Ladder(initialStake decimal.Decimal, lossStreak int) decimal.Decimal {
	if lossStreak < 0 {
		lossStreak = 0
	}
	if lossStreak > MaxRung {
		lossStreak = MaxRung
	}
	return initialStake.Mul(rungFactors[lossStreak]).Round(2)
}

// Report describes one ReportResult step.
type Report struct {
	Status        models.CycleStatus  `json:"status"`
	Won           bool                `json:"won"`
	StakePlayed   decimal.Decimal     `json:"stake_played"`
	Bankroll      decimal.Decimal     `json:"bankroll"`
	NextStake     decimal.NullDecimal `json:"next_stake"`
	StopLossFloor decimal.Decimal     `json:"stop_loss_floor"`
	ProfitGoal    decimal.Decimal     `json:"profit_goal"`
}

// Activate starts a new cycle from the configured settings.
func Activate(c models.BankrollCycle) (models.BankrollCycle, error) {
	if c.IsActive {
		return c, fmt.Errorf("%w: cycle is already active", models.ErrInvalidState)
	}
	if err := SettingsOf(c).Validate(); err != nil {
		return c, err
	}
	next := c
	next.IsActive = true
	next.LossStreak = 0
	next.CurrentBankroll = decimal.NewNullDecimal(c.InitialBankroll)
	next.CurrentStake = decimal.NewNullDecimal(Ladder(c.InitialStake, 0))
	return next, nil
}

// Deactivate stops the cycle and clears its live values. Deactivating an
// inactive cycle is a no-op.
func Deactivate(c models.BankrollCycle) models.BankrollCycle {
	if !c.IsActive {
		return c
	}
	next := c
	next.IsActive = false
	next.LastBankroll = c.CurrentBankroll
	next.CurrentBankroll = decimal.NullDecimal{}
	next.CurrentStake = decimal.NullDecimal{}
	next.LossStreak = 0
	return next
}

// ReportResult applies a win or a loss at the current stake and checks the
// cutoffs.
func ReportResult(c models.BankrollCycle, isWin bool) (models.BankrollCycle, Report, error) {
	if !c.IsActive || !c.CurrentBankroll.Valid || !c.CurrentStake.Valid {
		return c, Report{}, fmt.Errorf("%w: no active cycle", models.ErrInvalidState)
	}

	settings := SettingsOf(c)
	stake := c.CurrentStake.Decimal
	bankroll := c.CurrentBankroll.Decimal

	streak := 0
	if isWin {
		bankroll = bankroll.Add(stake.Mul(c.Multiplier)).Sub(stake)
	} else {
		bankroll = bankroll.Sub(stake)
		streak = c.LossStreak + 1
		if streak > MaxRung {
			streak = MaxRung
		}
	}
	nextStake := Ladder(c.InitialStake, streak)

	report := Report{
		Status:        models.StatusContinuing,
		Won:           isWin,
		StakePlayed:   stake,
		Bankroll:      bankroll,
		StopLossFloor: settings.StopLossFloor(),
		ProfitGoal:    settings.ProfitGoal(),
	}

	switch {
	case bankroll.LessThanOrEqual(report.StopLossFloor):
		report.Status = models.StatusStoppedLoss
	case bankroll.GreaterThanOrEqual(report.ProfitGoal):
		report.Status = models.StatusStoppedProfit
	}

	next := c
	if report.Status == models.StatusContinuing {
		next.CurrentBankroll = decimal.NewNullDecimal(bankroll)
		next.CurrentStake = decimal.NewNullDecimal(nextStake)
		next.LossStreak = streak
		report.NextStake = decimal.NewNullDecimal(nextStake)
		return next, report, nil
	}

	next.IsActive = false
	next.CurrentBankroll = decimal.NullDecimal{}
	next.CurrentStake = decimal.NullDecimal{}
	next.LossStreak = 0
	next.LastBankroll = decimal.NewNullDecimal(bankroll)
	return next, report, nil
}

// UpdateSettings replaces the settings of an inactive cycle.
func UpdateSettings(c models.BankrollCycle, s Settings) (models.BankrollCycle, error) {
	if c.IsActive {
		return c, fmt.Errorf("%w: settings cannot change while a cycle is running", models.ErrInvalidState)
	}
	if err := s.Validate(); err != nil {
		return c, err
	}
	return s.apply(c), nil
}
