package main

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rewired-gh/crashoracle/internal/bankroll"
	"github.com/rewired-gh/crashoracle/internal/learning"
	"github.com/rewired-gh/crashoracle/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC)

// csvOf renders results such as "WWL" as replay input, one round a minute.
func csvOf(results string) string {
	var b strings.Builder
	b.WriteString("timestamp,result,multiplier\n")
	for i, r := range results {
		res, mult := "LOSS", "1.20"
		if r == 'W' {
			res, mult = "WIN", "2.40"
		}
		fmt.Fprintf(&b, "%s,%s,%s\n", t0.Add(time.Duration(i)*time.Minute).Format(time.RFC3339), res, mult)
	}
	return b.String()
}

func mustRounds(t *testing.T, results string) []models.Outcome {
	t.Helper()
	rounds, err := readRounds(strings.NewReader(csvOf(results)))
	require.NoError(t, err)
	return rounds
}

func shortConfig() learning.Config {
	cfg := learning.DefaultConfig()
	cfg.PatternLength = 2
	cfg.MinOccurrences = 2
	return cfg
}

func TestReadRounds(t *testing.T) {
	input := "timestamp,result,multiplier\n" +
		"2026-05-01T20:02:00Z, b, 1.05\n" +
		"# comment lines are skipped\n" +
		"2026-05-01T20:00:00Z,WIN,2.31\n" +
		"2026-05-01T20:01:00+02:00,l,1.00\n"

	rounds, err := readRounds(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, rounds, 3)

	// 20:01+02:00 is 18:01 UTC, the earliest round.
	assert.False(t, rounds[0].IsWin)
	assert.Equal(t, time.Date(2026, 5, 1, 18, 1, 0, 0, time.UTC), rounds[0].Timestamp)
	assert.True(t, rounds[1].IsWin)
	assert.True(t, rounds[1].Multiplier.Equal(decimal.RequireFromString("2.31")))
	assert.False(t, rounds[2].IsWin)

	for i, r := range rounds {
		assert.Equal(t, int64(i+1), r.Seq)
		assert.Equal(t, fmt.Sprintf("replay-%d", i+1), r.ID)
		assert.Equal(t, replayAccount, r.AccountID)
	}
}

func TestReadRoundsErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"header only", "timestamp,result,multiplier\n"},
		{"bad timestamp", "yesterday,WIN,2.0\n"},
		{"bad result", "2026-05-01T20:00:00Z,DRAW,2.0\n"},
		{"bad multiplier", "2026-05-01T20:00:00Z,WIN,lots\n"},
		{"multiplier below one", "2026-05-01T20:00:00Z,WIN,0.5\n"},
		{"missing column", "2026-05-01T20:00:00Z,WIN\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := readRounds(strings.NewReader(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestSimulatePeriodicHistory(t *testing.T) {
	// WWL repeats: GB and BG are always followed by a win, GG by a loss.
	rounds := mustRounds(t, strings.Repeat("WWL", 10))

	report, err := simulate(rounds, simulation{
		Train:    15,
		Learning: shortConfig(),
		Bank:     bankroll.DefaultSettings(),
	})
	require.NoError(t, err)

	assert.Equal(t, 30, report.Rounds)
	assert.Equal(t, 15, report.Replayed)
	assert.Equal(t, 10, report.Suggestions[models.OutcomeEnter])
	assert.Equal(t, 5, report.Suggestions[models.OutcomeAvoid])
	assert.Equal(t, 10, report.EnterHits)
	assert.Equal(t, 5, report.AvoidHits)
	assert.Zero(t, report.NoSuggestion)

	assert.Equal(t, 10, report.Bets)
	assert.Equal(t, 10, report.BetWins)
	require.Len(t, report.Cycles, 1)
	assert.Equal(t, models.StatusContinuing, report.Cycles[0].Status)
	assert.True(t, report.Cycles[0].Bankroll.Equal(decimal.NewFromInt(750)), report.Cycles[0].Bankroll.String())
	assert.True(t, report.NetProfit.Equal(decimal.NewFromInt(250)))
}

func TestSimulateRestartsStoppedCycle(t *testing.T) {
	rounds := mustRounds(t, strings.Repeat("W", 10)+"LLLL")
	bank := bankroll.DefaultSettings()
	bank.InitialStake = decimal.NewFromInt(100)

	report, err := simulate(rounds, simulation{Train: 10, Learning: shortConfig(), Bank: bank})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Suggestions[models.OutcomeEnter])
	assert.Zero(t, report.EnterHits)
	assert.Equal(t, 3, report.NoSuggestion)

	require.Len(t, report.Cycles, 2)
	assert.Equal(t, models.StatusStoppedLoss, report.Cycles[0].Status)
	assert.True(t, report.Cycles[0].Bankroll.Equal(decimal.NewFromInt(400)))
	assert.Equal(t, 1, report.Cycles[0].Bets)
	assert.Equal(t, models.StatusContinuing, report.Cycles[1].Status)
	assert.True(t, report.Cycles[1].Bankroll.Equal(decimal.NewFromInt(500)))
	assert.True(t, report.NetProfit.Equal(decimal.NewFromInt(-100)))
}

func TestSimulateRelearns(t *testing.T) {
	rounds := mustRounds(t, strings.Repeat("WWL", 10))
	report, err := simulate(rounds, simulation{
		Train:      15,
		LearnEvery: 5,
		Learning:   shortConfig(),
		Bank:       bankroll.DefaultSettings(),
	})
	require.NoError(t, err)

	assert.Equal(t, 3, report.Relearns)
	assert.Equal(t, 28, report.Learned.Windows, "the last pass covers every round")
}

func TestSimulateRejectsBadInput(t *testing.T) {
	rounds := mustRounds(t, strings.Repeat("WL", 5))

	_, err := simulate(rounds, simulation{Train: 2, Learning: shortConfig(), Bank: bankroll.DefaultSettings()})
	assert.Error(t, err, "too little training data")

	_, err = simulate(rounds, simulation{Train: 10, Learning: shortConfig(), Bank: bankroll.DefaultSettings()})
	assert.Error(t, err, "nothing left to replay")

	bad := shortConfig()
	bad.TopN = -1
	_, err = simulate(rounds, simulation{Train: 5, Learning: bad, Bank: bankroll.DefaultSettings()})
	assert.ErrorIs(t, err, models.ErrInvalidConfiguration)
}

func TestAccuracyAndSigned(t *testing.T) {
	assert.Zero(t, accuracy(3, 0))
	assert.InDelta(t, 0.75, accuracy(3, 4), 1e-9)
	assert.Equal(t, "+12.50", signed("12.50"))
	assert.Equal(t, "-3.00", signed("-3.00"))
}
