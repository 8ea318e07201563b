package main

import (
	"fmt"

	"github.com/rewired-gh/crashoracle/internal/bankroll"
	"github.com/rewired-gh/crashoracle/internal/learning"
	"github.com/rewired-gh/crashoracle/internal/models"
	"github.com/shopspring/decimal"
)

// simulation holds the replay parameters.
type simulation struct {
	Train      int // rounds used for the initial learning pass
	LearnEvery int // re-learn after this many replayed rounds; 0 never
	Learning   learning.Config
	Bank       bankroll.Settings
}

// cycleSummary is one staking cycle of the replay.
type cycleSummary struct {
	Status   models.CycleStatus
	Bankroll decimal.Decimal
	Bets     int
}

// replayReport collects what happened during a replay.
type replayReport struct {
	Rounds   int
	Trained  int
	Replayed int
	Relearns int

	Learned learning.Result // the last learning pass

	Suggestions  map[models.SuggestedOutcome]int
	NoSuggestion int
	EnterHits    int // ENTER followed by a win
	AvoidHits    int // AVOID followed by a loss

	Bets    int
	BetWins int
	Cycles  []cycleSummary

	NetProfit decimal.Decimal
}

// accuracy returns hits/total, or 0 when nothing was suggested.
func accuracy(hits, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// simulate learns from the first Train rounds, then walks the rest one round
// at a time: it asks for a suggestion from the rounds seen so far, stakes the
// ladder on every ENTER, and only then reveals the round. A stopped cycle is
// recorded and a fresh one started with the same settings.
func simulate(rounds []models.Outcome, sim simulation) (replayReport, error) {
	if err := sim.Learning.Validate(); err != nil {
		return replayReport{}, err
	}
	if err := sim.Bank.Validate(); err != nil {
		return replayReport{}, err
	}
	if sim.Train < sim.Learning.PatternLength+1 || sim.Train >= len(rounds) {
		return replayReport{}, fmt.Errorf("need between %d and %d training rounds, got %d",
			sim.Learning.PatternLength+1, len(rounds)-1, sim.Train)
	}

	report := replayReport{
		Rounds:      len(rounds),
		Trained:     sim.Train,
		Replayed:    len(rounds) - sim.Train,
		Suggestions: make(map[models.SuggestedOutcome]int),
		NetProfit:   decimal.Zero,
	}

	res, err := learning.Learn(rounds[:sim.Train], models.PatternBook{}, sim.Learning)
	if err != nil {
		return replayReport{}, err
	}
	report.Learned = res

	cycle, err := bankroll.Activate(bankroll.NewCycle(replayAccount, sim.Bank))
	if err != nil {
		return replayReport{}, err
	}
	bets := 0

	for i := sim.Train; i < len(rounds); i++ {
		round := rounds[i]
		recent := rounds[i-sim.Learning.PatternLength : i]

		sg, err := learning.Suggest(recent, res.Book, sim.Learning, round.Timestamp)
		if err != nil {
			return replayReport{}, err
		}

		if sg == nil {
			report.NoSuggestion++
		} else {
			report.Suggestions[sg.Outcome]++
			switch {
			case sg.Outcome == models.OutcomeEnter && round.IsWin:
				report.EnterHits++
			case sg.Outcome == models.OutcomeAvoid && !round.IsWin:
				report.AvoidHits++
			}
		}

		if sg != nil && sg.Outcome == models.OutcomeEnter {
			next, result, err := bankroll.ReportResult(cycle, round.IsWin)
			if err != nil {
				return replayReport{}, err
			}
			report.Bets++
			bets++
			if result.Won {
				report.BetWins++
			}

			cycle = next
			if result.Status != models.StatusContinuing {
				report.Cycles = append(report.Cycles, cycleSummary{Status: result.Status, Bankroll: result.Bankroll, Bets: bets})
				report.NetProfit = report.NetProfit.Add(result.Bankroll.Sub(sim.Bank.InitialBankroll))
				bets = 0
				if cycle, err = bankroll.Activate(cycle); err != nil {
					return replayReport{}, err
				}
			}
		}

		replayed := i - sim.Train + 1
		if sim.LearnEvery > 0 && replayed%sim.LearnEvery == 0 {
			if res, err = learning.Learn(rounds[:i+1], res.Book, sim.Learning); err != nil {
				return replayReport{}, err
			}
			report.Learned = res
			report.Relearns++
		}
	}

	open := cycle.CurrentBankroll.Decimal
	report.Cycles = append(report.Cycles, cycleSummary{Status: models.StatusContinuing, Bankroll: open, Bets: bets})
	report.NetProfit = report.NetProfit.Add(open.Sub(sim.Bank.InitialBankroll))

	return report, nil
}
