package bankroll

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
)

func TestBankrollProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("ladder never decreases and stops at the top rung", prop.ForAll(
		func(cents int64, streak int) bool {
			initial := decimal.New(cents, -2)
			cur := Ladder(initial, streak)
			next := Ladder(initial, streak+1)
			if next.LessThan(cur) {
				return false
			}
			return !next.GreaterThan(Ladder(initial, MaxRung))
		},
		gen.Int64Range(1, 100000),
		gen.IntRange(0, 20),
	))

	properties.Property("cycle state stays consistent across any result sequence", prop.ForAll(
		func(results []bool, stopLoss int64) bool {
			s := DefaultSettings()
			s.StopLossPercent = decimal.NewFromInt(stopLoss)
			c, err := Activate(NewCycle("acc-1", s))
			if err != nil {
				return false
			}
			for _, win := range results {
				if !c.IsActive {
					if _, _, err := ReportResult(c, win); err == nil {
						return false
					}
					continue
				}
				prev := c.CurrentBankroll.Decimal
				var rep Report
				c, rep, err = ReportResult(c, win)
				if err != nil || c.Validate() != nil {
					return false
				}
				if win != rep.Bankroll.GreaterThan(prev) {
					return false
				}
				if c.IsActive && !c.CurrentStake.Decimal.Equal(Ladder(s.InitialStake, c.LossStreak)) {
					return false
				}
				if win && c.LossStreak != 0 {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Bool()),
		gen.Int64Range(0, 100),
	))

	properties.TestingRun(t)
}
