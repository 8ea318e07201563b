package learning

import (
	"errors"
	"fmt"

	"github.com/rewired-gh/crashoracle/internal/models"
)

// MergePolicy decides how a learning pass folds its tally into the prior book.
type MergePolicy string

const (
	// MergeRecompute rebuilds the book from the full history on every pass.
	// Re-running over an unchanged history yields identical statistics.
	MergeRecompute MergePolicy = "recompute"
	// MergeAccumulate adds only windows whose predicted outcome is newer than
	// the book's watermark, so history rotated out of storage keeps counting.
	MergeAccumulate MergePolicy = "accumulate"
)

// Config holds the learning and suggestion parameters.
type Config struct {
	PatternLength  int
	MinOccurrences int
	TopN           int
	TableThreshold float64 // minimum win rate for the Top-N table
	EnterThreshold float64 // win rate at or above which a suggestion says ENTER
	AvoidThreshold float64 // win rate at or below which a suggestion says AVOID
	MergePolicy    MergePolicy
}

// DefaultConfig returns the stock parameters.
func DefaultConfig() Config {
	return Config{
		PatternLength:  6,
		MinOccurrences: 5,
		TopN:           17,
		TableThreshold: 0.80,
		EnterThreshold: 0.75,
		AvoidThreshold: 0.35,
		MergePolicy:    MergeRecompute,
	}
}

// Validate checks every parameter. Errors wrap models.ErrInvalidConfiguration.
func (c Config) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidConfiguration, err)
	}
	return nil
}

func (c Config) validate() error {
	if c.PatternLength < 1 {
		return errors.New("pattern length must be at least 1")
	}
	if c.MinOccurrences < 1 {
		return errors.New("min occurrences must be at least 1")
	}
	if c.TopN < 0 {
		return errors.New("top n must not be negative")
	}
	thresholds := []struct {
		name string
		v    float64
	}{
		{"table threshold", c.TableThreshold},
		{"enter threshold", c.EnterThreshold},
		{"avoid threshold", c.AvoidThreshold},
	}
	for _, th := range thresholds {
		if th.v < 0.0 || th.v > 1.0 {
			return fmt.Errorf("%s must be between 0.0 and 1.0", th.name)
		}
	}
	if c.AvoidThreshold > c.EnterThreshold {
		return errors.New("avoid threshold must not exceed enter threshold")
	}
	if c.MergePolicy != MergeRecompute && c.MergePolicy != MergeAccumulate {
		return errors.New("merge policy must be one of: recompute, accumulate")
	}
	return nil
}
