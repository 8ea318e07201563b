package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rewired-gh/crashoracle/internal/bankroll"
	"github.com/rewired-gh/crashoracle/internal/learning"
	"github.com/rewired-gh/crashoracle/internal/models"
	"github.com/shopspring/decimal"
)

// Service is the subset of the tracker the bot drives.
type Service interface {
	RecordOutcome(ctx context.Context, accountID string, isWin bool, multiplier decimal.Decimal) (models.Outcome, error)
	UndoLastOutcome(ctx context.Context, accountID string) (models.Outcome, error)
	ClearHistory(ctx context.Context, accountID string) (int64, error)
	Learn(ctx context.Context, accountID string) (learning.Result, error)
	IdentifiedPatterns(ctx context.Context, accountID string) ([]models.RankedPattern, error)
	Suggest(ctx context.Context, accountID string) (*models.Suggestion, []models.Suggestion, error)
	ResolveSuggestion(ctx context.Context, accountID, id string, res models.Resolution) (models.Suggestion, error)
	Cycle(ctx context.Context, accountID string) (models.BankrollCycle, error)
	Activate(ctx context.Context, accountID string) (models.BankrollCycle, error)
	Deactivate(ctx context.Context, accountID string) (models.BankrollCycle, error)
	ReportResult(ctx context.Context, accountID string, isWin bool) (models.BankrollCycle, bankroll.Report, error)
}

// Handler turns chat commands into tracker calls and MarkdownV2 replies.
type Handler struct {
	svc     Service
	allowed map[int64]bool
}

// NewHandler creates a handler. An empty allowedChatIDs list accepts every chat.
func NewHandler(svc Service, allowedChatIDs []int64) *Handler {
	allowed := make(map[int64]bool, len(allowedChatIDs))
	for _, id := range allowedChatIDs {
		allowed[id] = true
	}
	return &Handler{svc: svc, allowed: allowed}
}

// Allowed reports whether commands from chatID are served.
func (h *Handler) Allowed(chatID int64) bool {
	return len(h.allowed) == 0 || h.allowed[chatID]
}

// AccountID is the tracker account that backs a chat.
func AccountID(chatID int64) string {
	return "tg:" + strconv.FormatInt(chatID, 10)
}

// Handle runs one command and returns the reply text.
func (h *Handler) Handle(ctx context.Context, chatID int64, command, args string) string {
	account := AccountID(chatID)
	fields := strings.Fields(args)

	reply, err := h.dispatch(ctx, account, strings.ToLower(command), fields)
	if err != nil {
		return formatError(err)
	}
	return reply
}

func (h *Handler) dispatch(ctx context.Context, account, command string, args []string) (string, error) {
	switch command {
	case "start", "help":
		return helpText(), nil

	case "win", "loss":
		if len(args) != 1 {
			return "", fmt.Errorf("%w: usage /%s <multiplier>", models.ErrInvalidInput, command)
		}
		mult, err := decimal.NewFromString(strings.TrimSuffix(strings.ToLower(args[0]), "x"))
		if err != nil {
			return "", fmt.Errorf("%w: %q is not a multiplier", models.ErrInvalidInput, args[0])
		}
		o, err := h.svc.RecordOutcome(ctx, account, command == "win", mult)
		if err != nil {
			return "", err
		}
		return formatOutcome("Recorded", o), nil

	case "undo":
		o, err := h.svc.UndoLastOutcome(ctx, account)
		if err != nil {
			return "", err
		}
		return formatOutcome("Removed", o), nil

	case "clear":
		n, err := h.svc.ClearHistory(ctx, account)
		if err != nil {
			return "", err
		}
		return escapeMarkdownV2(fmt.Sprintf("Cleared %d outcomes.", n)), nil

	case "learn":
		res, err := h.svc.Learn(ctx, account)
		if err != nil {
			return "", err
		}
		return formatLearn(res), nil

	case "top":
		patterns, err := h.svc.IdentifiedPatterns(ctx, account)
		if err != nil {
			return "", err
		}
		return formatTop(patterns), nil

	case "suggest":
		current, _, err := h.svc.Suggest(ctx, account)
		if err != nil {
			return "", err
		}
		return formatSuggestion(current), nil

	case "resolve":
		if len(args) != 2 {
			return "", fmt.Errorf("%w: usage /resolve <id> win|loss", models.ErrInvalidInput)
		}
		res, err := models.ParseResolution(args[1])
		if err != nil {
			return "", fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
		}
		sg, err := h.svc.ResolveSuggestion(ctx, account, args[0], res)
		if err != nil {
			return "", err
		}
		return escapeMarkdownV2(fmt.Sprintf("Suggestion %s resolved as %s.", sg.ID, res)), nil

	case "bank":
		c, err := h.svc.Cycle(ctx, account)
		if err != nil {
			return "", err
		}
		return formatCycle(c), nil

	case "activate":
		c, err := h.svc.Activate(ctx, account)
		if err != nil {
			return "", err
		}
		return formatCycle(c), nil

	case "stop":
		c, err := h.svc.Deactivate(ctx, account)
		if err != nil {
			return "", err
		}
		return formatCycle(c), nil

	case "result":
		if len(args) != 1 {
			return "", fmt.Errorf("%w: usage /result win|loss", models.ErrInvalidInput)
		}
		res, err := models.ParseResolution(args[0])
		if err != nil {
			return "", fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
		}
		_, report, err := h.svc.ReportResult(ctx, account, res == models.ResolutionWin)
		if err != nil {
			return "", err
		}
		return formatReport(report), nil
	}

	return "", fmt.Errorf("%w: unknown command /%s, try /help", models.ErrInvalidInput, command)
}

func formatError(err error) string {
	switch {
	case errors.Is(err, models.ErrNotFound),
		errors.Is(err, models.ErrInvalidInput),
		errors.Is(err, models.ErrInvalidConfiguration),
		errors.Is(err, models.ErrInvalidState):
		return "⚠️ " + escapeMarkdownV2(err.Error())
	default:
		return "❌ " + escapeMarkdownV2("Something went wrong, please try again later.")
	}
}
