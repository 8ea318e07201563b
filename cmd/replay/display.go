package main

import (
	"fmt"
	"strings"

	"github.com/rewired-gh/crashoracle/internal/bankroll"
	"github.com/rewired-gh/crashoracle/internal/learning"
	"github.com/rewired-gh/crashoracle/internal/models"
)

// printReport displays the replay results
func printReport(r replayReport, cfg learning.Config, bank bankroll.Settings, top int) {
	fmt.Println("=" + strings.Repeat("=", 79))
	fmt.Println("CRASH ORACLE REPLAY")
	fmt.Println("=" + strings.Repeat("=", 79))

	printParameters(cfg, bank)
	printLearning(r, top)
	printSuggestions(r)
	printStaking(r, bank)

	fmt.Println("\n" + strings.Repeat("=", 80))
}

func printParameters(cfg learning.Config, bank bankroll.Settings) {
	fmt.Println("\nPARAMETERS:")
	fmt.Println(strings.Repeat("-", 80))
	fmt.Printf("  Pattern length: %d, min occurrences: %d, top N: %d, merge: %s\n",
		cfg.PatternLength, cfg.MinOccurrences, cfg.TopN, cfg.MergePolicy)
	fmt.Printf("  Thresholds: table %.2f, enter %.2f, avoid %.2f\n",
		cfg.TableThreshold, cfg.EnterThreshold, cfg.AvoidThreshold)
	fmt.Printf("  Bank: %s start, %s stake, %s%% stop-loss, +%s target, %sx cash-out\n",
		bank.InitialBankroll.StringFixed(2), bank.InitialStake.StringFixed(2),
		bank.StopLossPercent.String(), bank.ProfitTarget.StringFixed(2), bank.Multiplier.StringFixed(2))
}

func printLearning(r replayReport, top int) {
	fmt.Println("\nLEARNING:")
	fmt.Println(strings.Repeat("-", 80))
	fmt.Printf("  Rounds: %d (trained on %d, replayed %d, re-learned %d times)\n",
		r.Rounds, r.Trained, r.Replayed, r.Relearns)
	fmt.Printf("  Distinct patterns: %d, reliable: %d, in table: %d\n",
		len(r.Learned.Book.Stats), len(r.Learned.Ranked), len(r.Learned.Top))

	if len(r.Learned.Top) == 0 {
		fmt.Println("  No pattern reached the table threshold")
		return
	}
	fmt.Println("\n  Top patterns:")
	for i, p := range r.Learned.Top {
		if i >= top {
			break
		}
		fmt.Printf("    %2d. %s  %5.1f%%  (%d/%d)\n", p.Rank, p.Key, p.WinRate*100, p.Wins, p.Occurrences)
	}
}

func printSuggestions(r replayReport) {
	enter := r.Suggestions[models.OutcomeEnter]
	avoid := r.Suggestions[models.OutcomeAvoid]

	fmt.Println("\nSUGGESTIONS:")
	fmt.Println(strings.Repeat("-", 80))
	fmt.Printf("  ENTER: %d (%.1f%% followed by a win)\n", enter, accuracy(r.EnterHits, enter)*100)
	fmt.Printf("  AVOID: %d (%.1f%% followed by a loss)\n", avoid, accuracy(r.AvoidHits, avoid)*100)
	fmt.Printf("  WAIT:  %d\n", r.Suggestions[models.OutcomeWait])
	fmt.Printf("  None:  %d\n", r.NoSuggestion)
}

func printStaking(r replayReport, bank bankroll.Settings) {
	fmt.Println("\nSTAKING:")
	fmt.Println(strings.Repeat("-", 80))
	fmt.Printf("  Bets: %d, won: %d (%.1f%%)\n", r.Bets, r.BetWins, accuracy(r.BetWins, r.Bets)*100)

	for i, c := range r.Cycles {
		status := string(c.Status)
		if c.Status == models.StatusContinuing {
			status = "OPEN"
		}
		diff := c.Bankroll.Sub(bank.InitialBankroll)
		fmt.Printf("    Cycle %d: %-14s bankroll %s (%s) after %d bets\n",
			i+1, status, c.Bankroll.StringFixed(2), signed(diff.StringFixed(2)), c.Bets)
	}

	fmt.Printf("\n  Net result: %s\n", signed(r.NetProfit.StringFixed(2)))
}

func signed(s string) string {
	if strings.HasPrefix(s, "-") {
		return s
	}
	return "+" + s
}
