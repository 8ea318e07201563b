// Package learning provides the pattern-learning engine.
//
// A learning pass slides a window of PatternLength outcomes over an account's
// history and, for every window, counts whether the outcome that followed it
// was a win:
//
//	history  G G B G G G | G   → key "GGBGGG", next = win
//	           G B G G G G | B → key "GBGGGG", next = loss
//
// The per-key counters form a PatternBook. Keys seen at least MinOccurrences
// times are ranked by win rate and the best of them (win rate at or above
// TableThreshold, at most TopN) form the Top-N table.
//
// Suggest looks up the key of the most recent window and turns its win rate
// into an ENTER / AVOID / WAIT suggestion.
//
// Both operations are pure: they read their inputs, never mutate them, and
// return the same output for the same input.
package learning

import (
	"errors"
	"math"
	"sort"
	"time"

	"github.com/rewired-gh/crashoracle/internal/models"
)

// SourceLearned marks ranked patterns that passed the reliability filter.
const SourceLearned = "ai_learned"

// Result is the outcome of one learning pass.
type Result struct {
	Book         models.PatternBook     // statistics after the merge
	Ranked       []models.RankedPattern // every reliable key, best first
	Top          []models.RankedPattern // the Top-N table that replaces the previous one
	Windows      int                    // windows tallied in this pass
	Insufficient bool                   // history too short; Book is the prior book untouched
}

// tally holds the counters of one pass.
type tally map[models.PatternKey]*models.PatternStat

// Learn runs one learning pass over history and merges it into prior
// according to cfg.MergePolicy. History is expected in chronological order;
// a sorted copy is used.
//
// A history shorter than PatternLength+1 is not an error: the result is empty
// and flagged Insufficient.
func Learn(history []models.Outcome, prior models.PatternBook, cfg Config) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}

	events := make([]models.Outcome, len(history))
	copy(events, history)
	models.SortOutcomes(events)

	if len(events) < cfg.PatternLength+1 {
		return Result{
			Book:         cloneBook(prior),
			Ranked:       []models.RankedPattern{},
			Top:          []models.RankedPattern{},
			Insufficient: true,
		}, nil
	}

	var watermark int64
	if cfg.MergePolicy == MergeAccumulate {
		for _, e := range events {
			if e.Seq <= 0 {
				return Result{}, errors.New("accumulate merge policy requires stored outcomes with sequence numbers")
			}
		}
		watermark = prior.LastSeq
	}

	counts := make(tally)
	windows := 0
	for i := 0; i+cfg.PatternLength < len(events); i++ {
		next := events[i+cfg.PatternLength]
		if cfg.MergePolicy == MergeAccumulate && next.Seq <= watermark {
			continue
		}
		key := models.KeyOf(events[i : i+cfg.PatternLength])
		st, ok := counts[key]
		if !ok {
			st = &models.PatternStat{Key: key}
			counts[key] = st
		}
		st.Occurrences++
		if next.IsWin {
			st.Wins++
		}
		if next.Timestamp.After(st.LastSeen) {
			st.LastSeen = next.Timestamp
		}
		windows++
	}

	book := merge(prior, counts, cfg.MergePolicy)
	book.LastSeq = maxSeq(prior.LastSeq, events)

	ranked := Rank(book, cfg.MinOccurrences)
	return Result{
		Book:    book,
		Ranked:  ranked,
		Top:     TopN(ranked, cfg.TableThreshold, cfg.TopN),
		Windows: windows,
	}, nil
}

func merge(prior models.PatternBook, counts tally, policy MergePolicy) models.PatternBook {
	var book models.PatternBook
	if policy == MergeAccumulate {
		book = cloneBook(prior)
	} else {
		book = models.NewPatternBook()
	}

	for key, st := range counts {
		cur := book.Stats[key]
		cur.Key = key
		cur.Occurrences += st.Occurrences
		cur.Wins += st.Wins
		if st.LastSeen.After(cur.LastSeen) {
			cur.LastSeen = st.LastSeen
		}
		book.Stats[key] = cur
	}
	return book
}

func cloneBook(b models.PatternBook) models.PatternBook {
	out := models.PatternBook{
		Stats:   make(map[models.PatternKey]models.PatternStat, len(b.Stats)),
		LastSeq: b.LastSeq,
	}
	for k, v := range b.Stats {
		out.Stats[k] = v
	}
	return out
}

func maxSeq(start int64, events []models.Outcome) int64 {
	m := start
	for _, e := range events {
		if e.Seq > m {
			m = e.Seq
		}
	}
	return m
}

// Rank returns every key with at least minOccurrences occurrences, ordered by
// win rate descending, then occurrences descending, then key ascending.
// Win rates are compared exactly by cross-multiplying the counters.
func Rank(book models.PatternBook, minOccurrences int) []models.RankedPattern {
	stats := make([]models.PatternStat, 0, len(book.Stats))
	for _, st := range book.Stats {
		if st.Occurrences >= minOccurrences && st.Occurrences > 0 {
			stats = append(stats, st)
		}
	}

	sort.Slice(stats, func(i, j int) bool {
		a, b := stats[i], stats[j]
		lhs := a.Wins * b.Occurrences
		rhs := b.Wins * a.Occurrences
		if lhs != rhs {
			return lhs > rhs
		}
		if a.Occurrences != b.Occurrences {
			return a.Occurrences > b.Occurrences
		}
		return a.Key < b.Key
	})

	ranked := make([]models.RankedPattern, len(stats))
	for i, st := range stats {
		rate, _ := st.WinRate()
		ranked[i] = models.RankedPattern{
			Rank:           i + 1,
			Key:            st.Key,
			Occurrences:    st.Occurrences,
			Wins:           st.Wins,
			WinRate:        rate,
			ExpectedResult: string(models.SymbolWin),
			Source:         SourceLearned,
		}
	}
	return ranked
}

// TopN selects the ranked patterns with a win rate of at least threshold and
// keeps the first n of them. Returns an empty (non-nil) slice when nothing
// qualifies or n <= 0.
func TopN(ranked []models.RankedPattern, threshold float64, n int) []models.RankedPattern {
	top := []models.RankedPattern{}
	if n <= 0 {
		return top
	}
	for _, rp := range ranked {
		if rp.WinRate < threshold {
			continue
		}
		rp.Rank = len(top) + 1
		rp.Source = models.SourceTop
		top = append(top, rp)
		if len(top) == n {
			break
		}
	}
	return top
}

// Suggest builds the key of the most recent PatternLength outcomes and turns
// its learned win rate into a suggestion. recent is normally exactly
// PatternLength long; a longer window is sorted and only its newest
// PatternLength outcomes are used. It returns nil when the window is too
// short or the key has not been seen at least MinOccurrences times.
//
// The returned suggestion has no ID or account; the caller owns the log.
func Suggest(recent []models.Outcome, book models.PatternBook, cfg Config, now time.Time) (*models.Suggestion, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(recent) < cfg.PatternLength {
		return nil, nil
	}

	window := make([]models.Outcome, len(recent))
	copy(window, recent)
	models.SortOutcomes(window)
	window = window[len(window)-cfg.PatternLength:]

	key := models.KeyOf(window)
	st, ok := book.Lookup(key)
	if !ok || st.Occurrences < cfg.MinOccurrences {
		return nil, nil
	}
	rate, ok := st.WinRate()
	if !ok {
		return nil, nil
	}

	outcome, confidence := Classify(rate, cfg)
	return &models.Suggestion{
		TriggeringPattern: key,
		Outcome:           outcome,
		Confidence:        confidence,
		Timestamp:         now,
	}, nil
}

// Classify maps a win rate onto the suggestion bands.
func Classify(rate float64, cfg Config) (models.SuggestedOutcome, float64) {
	switch {
	case rate >= cfg.EnterThreshold:
		return models.OutcomeEnter, rate
	case rate <= cfg.AvoidThreshold:
		return models.OutcomeAvoid, 1 - rate
	default:
		return models.OutcomeWait, math.Abs(0.5 - rate)
	}
}
