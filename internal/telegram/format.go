package telegram

import (
	"fmt"
	"strings"

	"github.com/rewired-gh/crashoracle/internal/bankroll"
	"github.com/rewired-gh/crashoracle/internal/learning"
	"github.com/rewired-gh/crashoracle/internal/models"
	"github.com/shopspring/decimal"
)

func helpText() string {
	lines := []string{
		"*Crash Oracle*",
		"",
		escapeMarkdownV2("/win <multiplier> - record a won round"),
		escapeMarkdownV2("/loss <multiplier> - record a lost round"),
		escapeMarkdownV2("/undo - remove the last round"),
		escapeMarkdownV2("/clear - remove every round"),
		escapeMarkdownV2("/learn - learn patterns from your rounds"),
		escapeMarkdownV2("/top - show the top patterns"),
		escapeMarkdownV2("/suggest - suggest the next move"),
		escapeMarkdownV2("/resolve <id> win|loss - record how a suggestion went"),
		escapeMarkdownV2("/bank - show the staking cycle"),
		escapeMarkdownV2("/activate - start a staking cycle"),
		escapeMarkdownV2("/stop - stop the staking cycle"),
		escapeMarkdownV2("/result win|loss - report a staked round"),
	}
	return strings.Join(lines, "\n")
}

func formatOutcome(verb string, o models.Outcome) string {
	result := "LOSS"
	if o.IsWin {
		result = "WIN"
	}
	return escapeMarkdownV2(verb+" ") + bold(result) + escapeMarkdownV2(fmt.Sprintf(" at %sx", o.Multiplier.StringFixed(2)))
}

func formatLearn(res learning.Result) string {
	if res.Insufficient {
		return escapeMarkdownV2("Not enough rounds to learn from yet. Keep recording.")
	}
	var b strings.Builder
	b.WriteString("🧠 ")
	b.WriteString(bold("Learning complete"))
	b.WriteString("\n")
	b.WriteString(escapeMarkdownV2(fmt.Sprintf("Windows: %d, reliable patterns: %d, top patterns: %d",
		res.Windows, len(res.Ranked), len(res.Top))))
	return b.String()
}

func formatTop(patterns []models.RankedPattern) string {
	if len(patterns) == 0 {
		return escapeMarkdownV2("No top patterns yet. Use /learn after recording more rounds.")
	}
	var b strings.Builder
	b.WriteString("🏆 ")
	b.WriteString(bold("Top patterns"))
	b.WriteString("\n\n")
	for _, p := range patterns {
		b.WriteString(escapeMarkdownV2(fmt.Sprintf("%d. ", p.Rank)))
		b.WriteString(code(string(p.Key)))
		b.WriteString(escapeMarkdownV2(fmt.Sprintf(" %.1f%% (%d/%d)", p.WinRate*100, p.Wins, p.Occurrences)))
		b.WriteString("\n")
	}
	return b.String()
}

func formatSuggestion(sg *models.Suggestion) string {
	if sg == nil {
		return escapeMarkdownV2("No suggestion: the latest rounds do not match a reliable pattern.")
	}

	emoji := "⏳"
	switch sg.Outcome {
	case models.OutcomeEnter:
		emoji = "🟢"
	case models.OutcomeAvoid:
		emoji = "🔴"
	}

	var b strings.Builder
	b.WriteString(emoji + " ")
	b.WriteString(bold(string(sg.Outcome)))
	b.WriteString("\n")
	b.WriteString(escapeMarkdownV2("Pattern: "))
	b.WriteString(code(string(sg.TriggeringPattern)))
	b.WriteString("\n")
	b.WriteString(escapeMarkdownV2(fmt.Sprintf("Confidence: %.1f%%", sg.Confidence*100)))
	b.WriteString("\n")
	b.WriteString(escapeMarkdownV2("ID: "))
	b.WriteString(code(sg.ID))
	return b.String()
}

func formatCycle(c models.BankrollCycle) string {
	s := bankroll.SettingsOf(c)

	var b strings.Builder
	b.WriteString("💰 ")
	if c.IsActive {
		b.WriteString(bold("Cycle active"))
	} else {
		b.WriteString(bold("Cycle inactive"))
	}
	b.WriteString("\n")

	if c.IsActive {
		b.WriteString(escapeMarkdownV2(fmt.Sprintf("Bankroll: %s, stake: %s, loss streak: %d",
			money(c.CurrentBankroll.Decimal), money(c.CurrentStake.Decimal), c.LossStreak)))
		b.WriteString("\n")
	} else if c.LastBankroll.Valid {
		b.WriteString(escapeMarkdownV2("Last bankroll: " + money(c.LastBankroll.Decimal)))
		b.WriteString("\n")
	}

	b.WriteString(escapeMarkdownV2(fmt.Sprintf("Start: %s, stake: %s, cash-out: %sx",
		money(s.InitialBankroll), money(s.InitialStake), s.Multiplier.StringFixed(2))))
	b.WriteString("\n")
	b.WriteString(escapeMarkdownV2(fmt.Sprintf("Stop-loss floor: %s, profit goal: %s",
		money(s.StopLossFloor()), money(s.ProfitGoal()))))
	return b.String()
}

func formatReport(r bankroll.Report) string {
	result := "Loss"
	if r.Won {
		result = "Win"
	}
	head := escapeMarkdownV2(fmt.Sprintf("%s on a %s stake. Bankroll: %s.", result, money(r.StakePlayed), money(r.Bankroll)))

	switch r.Status {
	case models.StatusStoppedLoss:
		return "🛑 " + head + "\n" + bold("Stop-loss reached") + escapeMarkdownV2(", the cycle is stopped.")
	case models.StatusStoppedProfit:
		return "🎉 " + head + "\n" + bold("Profit target reached") + escapeMarkdownV2(", the cycle is stopped.")
	}
	return head + "\n" + escapeMarkdownV2("Next stake: "+money(r.NextStake.Decimal))
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func bold(text string) string {
	return "*" + escapeMarkdownV2(text) + "*"
}

// code wraps text in an inline code span, where only ` and \ need escaping.
func code(text string) string {
	r := strings.NewReplacer("\\", "\\\\", "`", "\\`")
	return "`" + r.Replace(text) + "`"
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
