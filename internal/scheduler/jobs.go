package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rewired-gh/crashoracle/internal/learning"
	"github.com/rewired-gh/crashoracle/internal/tracker"
	"github.com/rs/zerolog"
)

// DefaultJobTimeout bounds a single run of a job.
const DefaultJobTimeout = 2 * time.Minute

// Learner re-learns every account.
type Learner interface {
	LearnAll(ctx context.Context) (map[string]learning.Result, []tracker.AccountError, error)
}

// Rotator trims stored outcome histories.
type Rotator interface {
	RotateOutcomes(ctx context.Context) (int64, error)
}

// LearningJob refreshes the pattern statistics and Top-N table of every
// account that has recorded outcomes.
type LearningJob struct {
	learner Learner
	timeout time.Duration
	log     zerolog.Logger
}

// NewLearningJob creates a learning job. A non-positive timeout uses
// DefaultJobTimeout.
func NewLearningJob(learner Learner, timeout time.Duration, log zerolog.Logger) *LearningJob {
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}
	return &LearningJob{
		learner: learner,
		timeout: timeout,
		log:     log.With().Str("job", "learn_patterns").Logger(),
	}
}

// Name returns the job name
func (j *LearningJob) Name() string {
	return "learn_patterns"
}

// Run learns every account. Accounts that fail are logged and reported
// together; they do not stop the others.
func (j *LearningJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	start := time.Now()
	results, failed, err := j.learner.LearnAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to learn accounts: %w", err)
	}

	insufficient := 0
	for _, res := range results {
		if res.Insufficient {
			insufficient++
		}
	}

	errs := make([]error, 0, len(failed))
	for _, f := range failed {
		j.log.Warn().Err(f.Err).Str("account", f.AccountID).Msg("Learning failed for account")
		errs = append(errs, f)
	}

	j.log.Info().
		Int("learned", len(results)-insufficient).
		Int("insufficient", insufficient).
		Int("failed", len(failed)).
		Dur("duration", time.Since(start)).
		Msg("Learning pass complete")

	return errors.Join(errs...)
}

// RotationJob drops the oldest outcomes of accounts over the history cap.
type RotationJob struct {
	rotator Rotator
	timeout time.Duration
	log     zerolog.Logger
}

// NewRotationJob creates a rotation job. A non-positive timeout uses
// DefaultJobTimeout.
func NewRotationJob(rotator Rotator, timeout time.Duration, log zerolog.Logger) *RotationJob {
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}
	return &RotationJob{
		rotator: rotator,
		timeout: timeout,
		log:     log.With().Str("job", "rotate_outcomes").Logger(),
	}
}

// Name returns the job name
func (j *RotationJob) Name() string {
	return "rotate_outcomes"
}

// Run executes the rotation
func (j *RotationJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	removed, err := j.rotator.RotateOutcomes(ctx)
	if err != nil {
		return fmt.Errorf("failed to rotate outcomes: %w", err)
	}
	if removed > 0 {
		j.log.Debug().Int64("removed", removed).Msg("Rotated old outcomes")
	}
	return nil
}
