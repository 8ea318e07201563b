package models

import (
	"errors"
	"fmt"
	"time"
)

// Pattern symbols
const (
	SymbolWin  byte = 'G' // green
	SymbolLoss byte = 'B' // black
)

// SourceTop marks identified patterns produced by the Top-N learning table.
const SourceTop = "ai_top"

// PatternKey is an ordered run of outcome symbols, oldest first.
type PatternKey string

// KeyOf builds the pattern key for the given outcomes in the order given.
func KeyOf(outcomes []Outcome) PatternKey {
	buf := make([]byte, len(outcomes))
	for i, o := range outcomes {
		buf[i] = o.Symbol()
	}
	return PatternKey(buf)
}

// Validate checks that the key is non-empty and uses only G and B.
func (k PatternKey) Validate() error {
	if len(k) == 0 {
		return errors.New("pattern key must not be empty")
	}
	for i := 0; i < len(k); i++ {
		if k[i] != SymbolWin && k[i] != SymbolLoss {
			return fmt.Errorf("pattern key %q contains invalid symbol %q", string(k), k[i])
		}
	}
	return nil
}

// PatternStat holds the cumulative counters for one pattern key: how often the
// key was followed by another outcome, and how often that outcome was a win.
type PatternStat struct {
	Key         PatternKey `json:"key"`
	Occurrences int        `json:"occurrences"`
	Wins        int        `json:"wins"`
	LastSeen    time.Time  `json:"last_seen"`
}

// WinRate returns Wins/Occurrences. ok is false when there are no occurrences.
func (s PatternStat) WinRate() (rate float64, ok bool) {
	if s.Occurrences <= 0 {
		return 0, false
	}
	return float64(s.Wins) / float64(s.Occurrences), true
}

// Validate checks the counter invariant 0 <= wins <= occurrences.
func (s *PatternStat) Validate() error {
	if err := s.Key.Validate(); err != nil {
		return err
	}
	if s.Occurrences < 0 {
		return errors.New("occurrences must not be negative")
	}
	if s.Wins < 0 || s.Wins > s.Occurrences {
		return errors.New("wins must be between 0 and occurrences")
	}
	return nil
}

// PatternBook is the account-scoped statistics aggregate that learning passes
// read and replace. LastSeq is the highest outcome Seq already folded into the
// counters; it is only advanced by the accumulate merge policy.
type PatternBook struct {
	Stats   map[PatternKey]PatternStat `json:"stats"`
	LastSeq int64                      `json:"last_seq"`
}

// NewPatternBook returns an empty book.
func NewPatternBook() PatternBook {
	return PatternBook{Stats: make(map[PatternKey]PatternStat)}
}

// Lookup returns the stat for key, if any.
func (b PatternBook) Lookup(key PatternKey) (PatternStat, bool) {
	s, ok := b.Stats[key]
	return s, ok
}

// RankedPattern is a read-only projection of a PatternStat that passed the
// reliability filter.
type RankedPattern struct {
	Rank           int        `json:"rank"`
	Key            PatternKey `json:"pattern"`
	Occurrences    int        `json:"occurrences"`
	Wins           int        `json:"wins"`
	WinRate        float64    `json:"win_rate"`
	ExpectedResult string     `json:"expected_result"`
	Source         string     `json:"source"`
}
