// Package tracker orchestrates per-account work: it loads an account's data
// from a Store, runs the learning or staking engine over it and saves the
// result.
//
// Every operation on one account runs under that account's lock, so a
// load-compute-save sequence never interleaves with another one for the same
// account. Different accounts proceed in parallel. Bankroll cycles are also
// saved with a version check, which covers several processes sharing a store.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rewired-gh/crashoracle/internal/bankroll"
	"github.com/rewired-gh/crashoracle/internal/learning"
	"github.com/rewired-gh/crashoracle/internal/logger"
	"github.com/rewired-gh/crashoracle/internal/models"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Store persists everything the tracker works with.
type Store interface {
	AppendOutcome(ctx context.Context, o *models.Outcome) error
	LoadHistory(ctx context.Context, accountID string) ([]models.Outcome, error)
	RecentOutcomes(ctx context.Context, accountID string, n int) ([]models.Outcome, error)
	DeleteLastOutcome(ctx context.Context, accountID string) (models.Outcome, error)
	ClearHistory(ctx context.Context, accountID string) (int64, error)
	RotateOutcomes(ctx context.Context, max int) (int64, error)
	Accounts(ctx context.Context) ([]string, error)

	LoadPatternBook(ctx context.Context, accountID string) (models.PatternBook, error)
	SaveLearning(ctx context.Context, accountID string, book models.PatternBook, top []models.RankedPattern) error
	LoadIdentifiedPatterns(ctx context.Context, accountID string) ([]models.RankedPattern, error)

	AppendSuggestion(ctx context.Context, s *models.Suggestion) error
	LoadSuggestions(ctx context.Context, accountID string, limit int) ([]models.Suggestion, error)
	ResolveSuggestion(ctx context.Context, accountID, id string, res models.Resolution) (models.Suggestion, error)
	ClearSuggestions(ctx context.Context, accountID string) (int64, error)

	LoadCycle(ctx context.Context, accountID string) (models.BankrollCycle, error)
	SaveCycle(ctx context.Context, c *models.BankrollCycle) error
}

// DefaultSuggestionHistoryLimit is the number of suggestions returned when no
// limit is given.
const DefaultSuggestionHistoryLimit = 50

// Options configure a Tracker.
type Options struct {
	Learning               learning.Config
	Bank                   bankroll.Settings // settings of a new account's cycle
	SuggestionHistoryLimit int
	MaxOutcomesPerAccount  int // 0 keeps everything; needs MergeAccumulate
}

// Tracker handles account operations against a Store.
type Tracker struct {
	store Store
	opts  Options
	log   zerolog.Logger
	now   func() time.Time
	newID func() string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a Tracker. Learning parameters and default bank settings are
// validated once here.
func New(store Store, opts Options) (*Tracker, error) {
	if err := opts.Learning.Validate(); err != nil {
		return nil, err
	}
	if err := opts.Bank.Validate(); err != nil {
		return nil, err
	}
	// Recompute would rebuild the book from the trimmed history and drop
	// every pattern seen only in rotated outcomes.
	if opts.MaxOutcomesPerAccount < 0 ||
		(opts.MaxOutcomesPerAccount > 0 && opts.Learning.MergePolicy != learning.MergeAccumulate) {
		return nil, fmt.Errorf("%w: history rotation requires the %s merge policy",
			models.ErrInvalidConfiguration, learning.MergeAccumulate)
	}
	if opts.SuggestionHistoryLimit <= 0 {
		opts.SuggestionHistoryLimit = DefaultSuggestionHistoryLimit
	}
	return &Tracker{
		store: store,
		opts:  opts,
		log:   logger.Component("tracker"),
		now:   time.Now,
		newID: uuid.NewString,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

// lock acquires the account's mutex and returns its unlock function.
func (t *Tracker) lock(accountID string) func() {
	t.mu.Lock()
	m, ok := t.locks[accountID]
	if !ok {
		m = &sync.Mutex{}
		t.locks[accountID] = m
	}
	t.mu.Unlock()

	m.Lock()
	return m.Unlock
}

func checkAccount(accountID string) error {
	if accountID == "" {
		return fmt.Errorf("%w: account ID must not be empty", models.ErrInvalidInput)
	}
	return nil
}

// RecordOutcome appends a round result to the account's history.
func (t *Tracker) RecordOutcome(ctx context.Context, accountID string, isWin bool, multiplier decimal.Decimal) (models.Outcome, error) {
	if err := checkAccount(accountID); err != nil {
		return models.Outcome{}, err
	}
	o := models.Outcome{
		ID:         t.newID(),
		AccountID:  accountID,
		IsWin:      isWin,
		Multiplier: multiplier,
		Timestamp:  t.now().UTC(),
	}
	if err := o.Validate(); err != nil {
		return models.Outcome{}, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}

	defer t.lock(accountID)()
	if err := t.store.AppendOutcome(ctx, &o); err != nil {
		return models.Outcome{}, fmt.Errorf("failed to record outcome: %w", err)
	}
	t.log.Debug().Str("account", accountID).Bool("win", isWin).Str("multiplier", multiplier.String()).Msg("outcome recorded")
	return o, nil
}

// UndoLastOutcome removes the newest outcome of the account.
func (t *Tracker) UndoLastOutcome(ctx context.Context, accountID string) (models.Outcome, error) {
	if err := checkAccount(accountID); err != nil {
		return models.Outcome{}, err
	}
	defer t.lock(accountID)()
	return t.store.DeleteLastOutcome(ctx, accountID)
}

// ClearHistory removes every outcome of the account.
func (t *Tracker) ClearHistory(ctx context.Context, accountID string) (int64, error) {
	if err := checkAccount(accountID); err != nil {
		return 0, err
	}
	defer t.lock(accountID)()
	n, err := t.store.ClearHistory(ctx, accountID)
	if err != nil {
		return 0, err
	}
	t.log.Info().Str("account", accountID).Int64("removed", n).Msg("history cleared")
	return n, nil
}

// History returns the account's outcomes in chronological order.
func (t *Tracker) History(ctx context.Context, accountID string) ([]models.Outcome, error) {
	if err := checkAccount(accountID); err != nil {
		return nil, err
	}
	return t.store.LoadHistory(ctx, accountID)
}

// RotateOutcomes trims every account's history to MaxOutcomesPerAccount.
func (t *Tracker) RotateOutcomes(ctx context.Context) (int64, error) {
	n, err := t.store.RotateOutcomes(ctx, t.opts.MaxOutcomesPerAccount)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		t.log.Info().Int64("removed", n).Int("max_per_account", t.opts.MaxOutcomesPerAccount).Msg("outcomes rotated")
	}
	return n, nil
}

// AccountError is a per-account failure of a batch operation.
type AccountError struct {
	AccountID string
	Err       error
}

func (e AccountError) Error() string {
	return fmt.Sprintf("account %s: %v", e.AccountID, e.Err)
}

func (e AccountError) Unwrap() error { return e.Err }

// Learn runs a learning pass for the account and stores the new statistics
// and Top-N table. With too little history nothing is stored and the result
// is flagged Insufficient.
func (t *Tracker) Learn(ctx context.Context, accountID string) (learning.Result, error) {
	if err := checkAccount(accountID); err != nil {
		return learning.Result{}, err
	}
	defer t.lock(accountID)()

	history, err := t.store.LoadHistory(ctx, accountID)
	if err != nil {
		return learning.Result{}, fmt.Errorf("failed to load history: %w", err)
	}
	prior, err := t.store.LoadPatternBook(ctx, accountID)
	if err != nil {
		return learning.Result{}, fmt.Errorf("failed to load pattern book: %w", err)
	}

	res, err := learning.Learn(history, prior, t.opts.Learning)
	if err != nil {
		return learning.Result{}, err
	}
	if res.Insufficient {
		t.log.Debug().Str("account", accountID).Int("outcomes", len(history)).Msg("not enough history to learn")
		return res, nil
	}

	if err := t.store.SaveLearning(ctx, accountID, res.Book, res.Top); err != nil {
		return learning.Result{}, fmt.Errorf("failed to save learning result: %w", err)
	}
	t.log.Info().
		Str("account", accountID).
		Int("windows", res.Windows).
		Int("patterns", len(res.Book.Stats)).
		Int("reliable", len(res.Ranked)).
		Int("top", len(res.Top)).
		Msg("learning pass complete")
	return res, nil
}

// LearnAll runs Learn for every account with history. Per-account failures
// are returned separately and do not stop the batch.
func (t *Tracker) LearnAll(ctx context.Context) (map[string]learning.Result, []AccountError, error) {
	accounts, err := t.store.Accounts(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	results := make(map[string]learning.Result, len(accounts))
	var accountErrors []AccountError
	for _, id := range accounts {
		if err := ctx.Err(); err != nil {
			return results, accountErrors, err
		}
		res, err := t.Learn(ctx, id)
		if err != nil {
			accountErrors = append(accountErrors, AccountError{AccountID: id, Err: err})
			t.log.Warn().Str("account", id).Err(err).Msg("learning pass failed")
			continue
		}
		results[id] = res
	}
	return results, accountErrors, nil
}

// IdentifiedPatterns returns the account's stored Top-N table.
func (t *Tracker) IdentifiedPatterns(ctx context.Context, accountID string) ([]models.RankedPattern, error) {
	if err := checkAccount(accountID); err != nil {
		return nil, err
	}
	return t.store.LoadIdentifiedPatterns(ctx, accountID)
}

// Suggest evaluates the account's most recent outcomes against its learned
// statistics. A produced suggestion is logged and returned together with the
// recent suggestion history; current is nil when there is nothing to say.
func (t *Tracker) Suggest(ctx context.Context, accountID string) (current *models.Suggestion, history []models.Suggestion, err error) {
	if err := checkAccount(accountID); err != nil {
		return nil, nil, err
	}
	defer t.lock(accountID)()

	book, err := t.store.LoadPatternBook(ctx, accountID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load pattern book: %w", err)
	}
	recent, err := t.store.RecentOutcomes(ctx, accountID, t.opts.Learning.PatternLength)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load recent outcomes: %w", err)
	}

	current, err = learning.Suggest(recent, book, t.opts.Learning, t.now().UTC())
	if err != nil {
		return nil, nil, err
	}
	if current != nil {
		current.ID = t.newID()
		current.AccountID = accountID
		if err := t.store.AppendSuggestion(ctx, current); err != nil {
			return nil, nil, fmt.Errorf("failed to save suggestion: %w", err)
		}
		t.log.Debug().
			Str("account", accountID).
			Str("pattern", string(current.TriggeringPattern)).
			Str("outcome", string(current.Outcome)).
			Float64("confidence", current.Confidence).
			Msg("suggestion issued")
	}

	history, err = t.store.LoadSuggestions(ctx, accountID, t.opts.SuggestionHistoryLimit)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load suggestions: %w", err)
	}
	return current, history, nil
}

// Suggestions returns the account's suggestion log, newest first. A limit of
// zero or less uses the configured history limit.
func (t *Tracker) Suggestions(ctx context.Context, accountID string, limit int) ([]models.Suggestion, error) {
	if err := checkAccount(accountID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = t.opts.SuggestionHistoryLimit
	}
	return t.store.LoadSuggestions(ctx, accountID, limit)
}

// ResolveSuggestion records what actually happened after a suggestion.
func (t *Tracker) ResolveSuggestion(ctx context.Context, accountID, id string, res models.Resolution) (models.Suggestion, error) {
	if err := checkAccount(accountID); err != nil {
		return models.Suggestion{}, err
	}
	if res != models.ResolutionWin && res != models.ResolutionLoss {
		return models.Suggestion{}, fmt.Errorf("%w: resolution must be WIN or LOSS", models.ErrInvalidInput)
	}
	defer t.lock(accountID)()
	return t.store.ResolveSuggestion(ctx, accountID, id, res)
}

// ClearSuggestions removes the account's suggestion log.
func (t *Tracker) ClearSuggestions(ctx context.Context, accountID string) (int64, error) {
	if err := checkAccount(accountID); err != nil {
		return 0, err
	}
	defer t.lock(accountID)()
	return t.store.ClearSuggestions(ctx, accountID)
}

// Cycle returns the account's bankroll cycle, creating it from the default
// settings on first access.
func (t *Tracker) Cycle(ctx context.Context, accountID string) (models.BankrollCycle, error) {
	if err := checkAccount(accountID); err != nil {
		return models.BankrollCycle{}, err
	}
	defer t.lock(accountID)()
	return t.loadCycle(ctx, accountID)
}

func (t *Tracker) loadCycle(ctx context.Context, accountID string) (models.BankrollCycle, error) {
	c, err := t.store.LoadCycle(ctx, accountID)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return models.BankrollCycle{}, fmt.Errorf("failed to load bank settings: %w", err)
	}

	c = bankroll.NewCycle(accountID, t.opts.Bank)
	c.UpdatedAt = t.now().UTC()
	if err := t.store.SaveCycle(ctx, &c); err != nil {
		if errors.Is(err, models.ErrConflict) {
			// Another process created it first.
			return t.store.LoadCycle(ctx, accountID)
		}
		return models.BankrollCycle{}, fmt.Errorf("failed to create bank settings: %w", err)
	}
	return c, nil
}

// updateCycle loads the account's cycle, applies fn and saves the result.
func (t *Tracker) updateCycle(ctx context.Context, accountID string, fn func(models.BankrollCycle) (models.BankrollCycle, error)) (models.BankrollCycle, error) {
	if err := checkAccount(accountID); err != nil {
		return models.BankrollCycle{}, err
	}
	defer t.lock(accountID)()

	c, err := t.loadCycle(ctx, accountID)
	if err != nil {
		return models.BankrollCycle{}, err
	}
	next, err := fn(c)
	if err != nil {
		return c, err
	}
	next.UpdatedAt = t.now().UTC()
	if err := t.store.SaveCycle(ctx, &next); err != nil {
		return c, fmt.Errorf("failed to save bank settings: %w", err)
	}
	return next, nil
}

// UpdateSettings replaces the bank settings of an inactive cycle.
func (t *Tracker) UpdateSettings(ctx context.Context, accountID string, s bankroll.Settings) (models.BankrollCycle, error) {
	return t.updateCycle(ctx, accountID, func(c models.BankrollCycle) (models.BankrollCycle, error) {
		return bankroll.UpdateSettings(c, s)
	})
}

// Activate starts a bankroll cycle.
func (t *Tracker) Activate(ctx context.Context, accountID string) (models.BankrollCycle, error) {
	c, err := t.updateCycle(ctx, accountID, bankroll.Activate)
	if err == nil {
		t.log.Info().Str("account", accountID).Str("bankroll", c.CurrentBankroll.Decimal.String()).Msg("cycle activated")
	}
	return c, err
}

// Deactivate stops the running cycle, if any.
func (t *Tracker) Deactivate(ctx context.Context, accountID string) (models.BankrollCycle, error) {
	return t.updateCycle(ctx, accountID, func(c models.BankrollCycle) (models.BankrollCycle, error) {
		return bankroll.Deactivate(c), nil
	})
}

// ReportResult applies a round result to the running cycle.
func (t *Tracker) ReportResult(ctx context.Context, accountID string, isWin bool) (models.BankrollCycle, bankroll.Report, error) {
	var report bankroll.Report
	c, err := t.updateCycle(ctx, accountID, func(c models.BankrollCycle) (models.BankrollCycle, error) {
		next, rep, err := bankroll.ReportResult(c, isWin)
		report = rep
		return next, err
	})
	if err != nil {
		return c, bankroll.Report{}, err
	}
	if report.Status != models.StatusContinuing {
		t.log.Info().
			Str("account", accountID).
			Str("status", string(report.Status)).
			Str("bankroll", report.Bankroll.String()).
			Msg("cycle stopped")
	}
	return c, report, nil
}
