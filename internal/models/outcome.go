// Package models defines the core domain entities for the crashoracle application.
// These models represent recorded game outcomes, learned sequence statistics,
// suggestions derived from them, and the state of a staking cycle.
// All models include built-in validation to ensure data integrity throughout the application.
//
// Terminology:
//   - Outcome: one recorded round, a win or a loss with its payout multiplier.
//   - Pattern: a fixed-length run of outcomes written as G (win) and B (loss).
//   - Cycle: one activation span of bankroll management, from activation to a stop.
package models

import (
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Outcome is a single recorded round of the game for one account.
// Outcomes are immutable once recorded; Seq is assigned by storage and breaks
// ties between outcomes recorded at the same instant.
type Outcome struct {
	ID         string          `json:"id"`
	AccountID  string          `json:"account_id"`
	Seq        int64           `json:"seq"`
	IsWin      bool            `json:"is_win"`
	Multiplier decimal.Decimal `json:"multiplier"` // crash multiplier, >= 1.00
	Timestamp  time.Time       `json:"timestamp"`
}

var minMultiplier = decimal.NewFromInt(1)

// Validate checks that all outcome fields are valid.
func (o *Outcome) Validate() error {
	if o.ID == "" {
		return errors.New("outcome ID must not be empty")
	}
	if o.AccountID == "" {
		return errors.New("account ID must not be empty")
	}
	if o.Multiplier.LessThan(minMultiplier) {
		return errors.New("multiplier must be at least 1.00")
	}
	if o.Timestamp.IsZero() {
		return errors.New("timestamp must be set")
	}
	return nil
}

// Symbol returns the pattern symbol for this outcome.
func (o Outcome) Symbol() byte {
	if o.IsWin {
		return SymbolWin
	}
	return SymbolLoss
}

// SortOutcomes orders outcomes chronologically, breaking timestamp ties by Seq.
func SortOutcomes(outcomes []Outcome) {
	sort.SliceStable(outcomes, func(i, j int) bool {
		if !outcomes[i].Timestamp.Equal(outcomes[j].Timestamp) {
			return outcomes[i].Timestamp.Before(outcomes[j].Timestamp)
		}
		return outcomes[i].Seq < outcomes[j].Seq
	})
}
