// Command replay walks a recorded round history through the pattern engine
// and the staking ladder, to see how the suggestions would have played out.
//
// The input is a CSV file with the columns timestamp,result,multiplier:
//
//	timestamp,result,multiplier
//	2026-05-01T20:00:00Z,WIN,2.31
//	2026-05-01T20:00:41Z,LOSS,1.12
package main

import (
	"fmt"
	"math"
	"os"

	"github.com/rewired-gh/crashoracle/internal/bankroll"
	"github.com/rewired-gh/crashoracle/internal/config"
	"github.com/rewired-gh/crashoracle/internal/learning"
	"github.com/rewired-gh/crashoracle/internal/logger"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "replay",
		Usage: "replay a round history against the pattern engine and staking ladder",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "input",
				Aliases:  []string{"i"},
				Usage:    "CSV file with timestamp,result,multiplier rows",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "service config file for learning and bank settings (defaults when empty)",
			},
			&cli.Float64Flag{
				Name:  "train-ratio",
				Usage: "share of the history used for the initial learning pass",
				Value: 0.5,
			},
			&cli.IntFlag{
				Name:  "learn-every",
				Usage: "re-learn after this many replayed rounds (0 learns once)",
			},
			&cli.IntFlag{
				Name:  "top",
				Usage: "top patterns to print",
				Value: 10,
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		logger.Fatal("replay failed: %v", err)
	}
}

func run(c *cli.Context) error {
	logger.Init("warn", "text")

	learningCfg := learning.DefaultConfig()
	bank := bankroll.DefaultSettings()
	if path := c.String("config"); path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		if learningCfg, err = cfg.LearningParams(); err != nil {
			return err
		}
		if bank, err = cfg.BankSettings(); err != nil {
			return err
		}
	}

	ratio := c.Float64("train-ratio")
	if ratio <= 0 || ratio >= 1 {
		return fmt.Errorf("train-ratio must be between 0 and 1, got %v", ratio)
	}
	if c.Int("learn-every") < 0 {
		return fmt.Errorf("learn-every must not be negative")
	}

	f, err := os.Open(c.String("input"))
	if err != nil {
		return err
	}
	defer f.Close()

	rounds, err := readRounds(f)
	if err != nil {
		return err
	}

	train := int(math.Round(float64(len(rounds)) * ratio))
	report, err := simulate(rounds, simulation{
		Train:      train,
		LearnEvery: c.Int("learn-every"),
		Learning:   learningCfg,
		Bank:       bank,
	})
	if err != nil {
		return err
	}

	printReport(report, learningCfg, bank, c.Int("top"))
	return nil
}
