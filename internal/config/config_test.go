package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rewired-gh/crashoracle/internal/learning"
	"github.com/shopspring/decimal"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAndValidate(t *testing.T) {
	content := `
learning:
  pattern_length: 5
  min_occurrences: 4
  top_n: 10
  table_threshold: 0.85
  enter_threshold: 0.70
  avoid_threshold: 0.30
  merge_policy: accumulate

bank:
  initial_bankroll: 1000
  profit_target: 250.50
  initial_stake: 10
  stop_loss_percent: 25
  multiplier: 1.9

storage:
  db_path: "./data/test.db"
  max_outcomes_per_account: 5000

scheduler:
  enabled: true
  learn_schedule: "@every 5m"

telegram:
  enabled: true
  bot_token: "test_token"
  allowed_chat_ids: [42, 43]

logging:
  level: "debug"
  format: "text"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Learning.PatternLength != 5 {
		t.Errorf("Unexpected pattern length: %d", cfg.Learning.PatternLength)
	}
	if cfg.Learning.SuggestionHistoryLimit != 50 {
		t.Errorf("Expected default suggestion history limit 50, got %d", cfg.Learning.SuggestionHistoryLimit)
	}
	if cfg.Scheduler.RotateSchedule == "" {
		t.Error("Expected default rotate schedule")
	}
	if cfg.Telegram.RetryDelayBase != time.Second {
		t.Errorf("Expected default retry delay 1s, got %v", cfg.Telegram.RetryDelayBase)
	}
	if len(cfg.Telegram.AllowedChatIDs) != 2 || cfg.Telegram.AllowedChatIDs[1] != 43 {
		t.Errorf("Unexpected allowed chat IDs: %v", cfg.Telegram.AllowedChatIDs)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	lc, err := cfg.LearningParams()
	if err != nil {
		t.Fatalf("LearningParams failed: %v", err)
	}
	if lc.MergePolicy != learning.MergeAccumulate {
		t.Errorf("Unexpected merge policy: %s", lc.MergePolicy)
	}

	bank, err := cfg.BankSettings()
	if err != nil {
		t.Fatalf("BankSettings failed: %v", err)
	}
	if !bank.ProfitTarget.Equal(decimal.RequireFromString("250.5")) {
		t.Errorf("Unexpected profit target: %s", bank.ProfitTarget)
	}
	if !bank.Multiplier.Equal(decimal.RequireFromString("1.9")) {
		t.Errorf("Unexpected multiplier: %s", bank.Multiplier)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "logging:\n  level: info\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	lc, _ := cfg.LearningParams()
	if lc != learning.DefaultConfig() {
		t.Errorf("Expected default learning config, got %+v", lc)
	}

	bank, _ := cfg.BankSettings()
	if !bank.InitialBankroll.Equal(decimal.NewFromInt(500)) || !bank.InitialStake.Equal(decimal.NewFromInt(25)) {
		t.Errorf("Unexpected default bank settings: %+v", bank)
	}
}

func TestEnvironmentOverride(t *testing.T) {
	t.Setenv("CRASH_ORACLE_TELEGRAM_BOT_TOKEN", "from_env")
	t.Setenv("CRASH_ORACLE_LEARNING_TOP_N", "3")

	cfg, err := Load(writeConfig(t, "telegram:\n  bot_token: from_file\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Telegram.BotToken != "from_env" {
		t.Errorf("Expected env override, got %s", cfg.Telegram.BotToken)
	}
	if cfg.Learning.TopN != 3 {
		t.Errorf("Expected top_n 3 from env, got %d", cfg.Learning.TopN)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func validConfig() *Config {
	return &Config{
		Learning: LearningConfig{
			PatternLength:          6,
			MinOccurrences:         5,
			TopN:                   17,
			TableThreshold:         0.8,
			EnterThreshold:         0.75,
			AvoidThreshold:         0.35,
			MergePolicy:            "recompute",
			SuggestionHistoryLimit: 50,
		},
		Bank: BankConfig{
			InitialBankroll: "500",
			ProfitTarget:    "400",
			InitialStake:    "25",
			StopLossPercent: "20",
			Multiplier:      "2.0",
		},
		Storage: StorageConfig{DBPath: "./data/test.db"},
		Scheduler: SchedulerConfig{
			Enabled:        true,
			LearnSchedule:  "0 */10 * * * *",
			RotateSchedule: "0 30 3 * * *",
		},
		HTTP:    HTTPConfig{Enabled: true, Address: ":8080"},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing telegram token when enabled", func(c *Config) {
			c.Telegram = TelegramConfig{Enabled: true, RetryDelayBase: time.Second}
		}, true},
		{"invalid table threshold", func(c *Config) { c.Learning.TableThreshold = 1.5 }, true},
		{"avoid above enter", func(c *Config) { c.Learning.AvoidThreshold = 0.9 }, true},
		{"unknown merge policy", func(c *Config) { c.Learning.MergePolicy = "sum" }, true},
		{"zero pattern length", func(c *Config) { c.Learning.PatternLength = 0 }, true},
		{"zero suggestion limit", func(c *Config) { c.Learning.SuggestionHistoryLimit = 0 }, true},
		{"bank amount not a number", func(c *Config) { c.Bank.InitialStake = "lots" }, true},
		{"bank multiplier too low", func(c *Config) { c.Bank.Multiplier = "1" }, true},
		{"negative profit target is allowed", func(c *Config) { c.Bank.ProfitTarget = "-100" }, false},
		{"missing db path", func(c *Config) { c.Storage.DBPath = "" }, true},
		{"negative max outcomes", func(c *Config) { c.Storage.MaxOutcomesPerAccount = -1 }, true},
		{"rotation with recompute", func(c *Config) { c.Storage.MaxOutcomesPerAccount = 100 }, true},
		{"rotation with accumulate", func(c *Config) {
			c.Storage.MaxOutcomesPerAccount = 100
			c.Learning.MergePolicy = "Accumulate"
		}, false},
		{"bad cron schedule", func(c *Config) { c.Scheduler.LearnSchedule = "every now and then" }, true},
		{"bad schedule ignored when disabled", func(c *Config) {
			c.Scheduler.Enabled = false
			c.Scheduler.LearnSchedule = "nope"
		}, false},
		{"missing http address", func(c *Config) { c.HTTP.Address = "" }, true},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, true},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
