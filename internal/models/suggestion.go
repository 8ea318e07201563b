package models

import (
	"errors"
	"strings"
	"time"
)

// SuggestedOutcome is the action a suggestion recommends for the next round.
type SuggestedOutcome string

const (
	OutcomeEnter SuggestedOutcome = "ENTER"
	OutcomeAvoid SuggestedOutcome = "AVOID"
	OutcomeWait  SuggestedOutcome = "WAIT"
)

// Resolution is the confirmed result of the round a suggestion was issued for.
type Resolution string

const (
	ResolutionWin  Resolution = "WIN"
	ResolutionLoss Resolution = "LOSS"
)

// ParseResolution accepts WIN/LOSS in any case.
func ParseResolution(s string) (Resolution, error) {
	switch Resolution(strings.ToUpper(strings.TrimSpace(s))) {
	case ResolutionWin:
		return ResolutionWin, nil
	case ResolutionLoss:
		return ResolutionLoss, nil
	}
	return "", errors.New("resolution must be WIN or LOSS")
}

// Suggestion is an entry of the append-only suggestion log.
type Suggestion struct {
	ID                string           `json:"id"`
	AccountID         string           `json:"account_id"`
	TriggeringPattern PatternKey       `json:"triggering_pattern"`
	Outcome           SuggestedOutcome `json:"suggested_outcome"`
	Confidence        float64          `json:"confidence"`
	Timestamp         time.Time        `json:"timestamp"`
	ResolvedOutcome   *Resolution      `json:"resolved_outcome,omitempty"`
}

// Validate checks that all suggestion fields are valid.
func (s *Suggestion) Validate() error {
	if s.ID == "" {
		return errors.New("suggestion ID must not be empty")
	}
	if s.AccountID == "" {
		return errors.New("account ID must not be empty")
	}
	if err := s.TriggeringPattern.Validate(); err != nil {
		return err
	}
	switch s.Outcome {
	case OutcomeEnter, OutcomeAvoid, OutcomeWait:
	default:
		return errors.New("suggested outcome must be ENTER, AVOID or WAIT")
	}
	if s.Confidence < 0.0 || s.Confidence > 1.0 {
		return errors.New("confidence must be between 0.0 and 1.0")
	}
	if s.ResolvedOutcome != nil && *s.ResolvedOutcome != ResolutionWin && *s.ResolvedOutcome != ResolutionLoss {
		return errors.New("resolved outcome must be WIN or LOSS")
	}
	return nil
}
