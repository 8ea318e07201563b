package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rewired-gh/crashoracle/internal/models"
	"github.com/shopspring/decimal"
)

const replayAccount = "replay"

// readRounds parses timestamp,result,multiplier rows. A leading header row is
// skipped. Results accept WIN/LOSS, W/L and G/B in any case.
func readRounds(r io.Reader) ([]models.Outcome, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 3
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	var rounds []models.Outcome
	line := 0
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read rounds: %w", err)
		}
		line++
		if line == 1 && strings.EqualFold(strings.TrimSpace(record[0]), "timestamp") {
			continue
		}

		o, err := parseRound(record, int64(len(rounds)+1))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		rounds = append(rounds, o)
	}

	if len(rounds) == 0 {
		return nil, errors.New("no rounds in input")
	}
	models.SortOutcomes(rounds)
	for i := range rounds {
		seq := int64(i + 1)
		rounds[i].Seq = seq
		rounds[i].ID = fmt.Sprintf("%s-%d", replayAccount, seq)
	}
	return rounds, nil
}

func parseRound(record []string, seq int64) (models.Outcome, error) {
	ts, err := time.Parse(time.RFC3339, strings.TrimSpace(record[0]))
	if err != nil {
		return models.Outcome{}, fmt.Errorf("invalid timestamp %q: %w", record[0], err)
	}

	var isWin bool
	switch strings.ToUpper(strings.TrimSpace(record[1])) {
	case "WIN", "W", "G":
		isWin = true
	case "LOSS", "L", "B":
		isWin = false
	default:
		return models.Outcome{}, fmt.Errorf("invalid result %q", record[1])
	}

	mult, err := decimal.NewFromString(strings.TrimSpace(record[2]))
	if err != nil {
		return models.Outcome{}, fmt.Errorf("invalid multiplier %q: %w", record[2], err)
	}

	o := models.Outcome{
		ID:         fmt.Sprintf("%s-%d", replayAccount, seq),
		AccountID:  replayAccount,
		Seq:        seq,
		IsWin:      isWin,
		Multiplier: mult,
		Timestamp:  ts.UTC(),
	}
	if err := o.Validate(); err != nil {
		return models.Outcome{}, err
	}
	return o, nil
}
