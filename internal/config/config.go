package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rewired-gh/crashoracle/internal/bankroll"
	"github.com/rewired-gh/crashoracle/internal/learning"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g.
// CRASH_ORACLE_TELEGRAM_BOT_TOKEN for telegram.bot_token.
const EnvPrefix = "CRASH_ORACLE"

// Config represents the complete application configuration
type Config struct {
	Learning  LearningConfig  `mapstructure:"learning"`
	Bank      BankConfig      `mapstructure:"bank"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// LearningConfig holds the pattern-learning parameters
type LearningConfig struct {
	PatternLength          int     `mapstructure:"pattern_length"`
	MinOccurrences         int     `mapstructure:"min_occurrences"`
	TopN                   int     `mapstructure:"top_n"`
	TableThreshold         float64 `mapstructure:"table_threshold"`
	EnterThreshold         float64 `mapstructure:"enter_threshold"`
	AvoidThreshold         float64 `mapstructure:"avoid_threshold"`
	MergePolicy            string  `mapstructure:"merge_policy"`
	SuggestionHistoryLimit int     `mapstructure:"suggestion_history_limit"`
}

// BankConfig holds the bank settings given to new accounts. Amounts are kept
// as text so they convert to decimals without float rounding.
type BankConfig struct {
	InitialBankroll string `mapstructure:"initial_bankroll"`
	ProfitTarget    string `mapstructure:"profit_target"`
	InitialStake    string `mapstructure:"initial_stake"`
	StopLossPercent string `mapstructure:"stop_loss_percent"`
	Multiplier      string `mapstructure:"multiplier"`
}

// StorageConfig holds persistence configuration
type StorageConfig struct {
	DBPath                string `mapstructure:"db_path"`
	MaxOutcomesPerAccount int    `mapstructure:"max_outcomes_per_account"`
}

// SchedulerConfig holds the periodic job schedules (cron with seconds)
type SchedulerConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	LearnSchedule  string `mapstructure:"learn_schedule"`
	RotateSchedule string `mapstructure:"rotate_schedule"`
}

// HTTPConfig holds the REST API configuration
type HTTPConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Address        string   `mapstructure:"address"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// TelegramConfig holds Telegram bot configuration
type TelegramConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BotToken       string        `mapstructure:"bot_token"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
	AllowedChatIDs []int64       `mapstructure:"allowed_chat_ids"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables. A .env file
// in the working directory, if present, is loaded into the environment first.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	// Set config file
	v.SetConfigFile(path)

	// Set defaults
	setDefaults(v)

	// Enable environment variable override
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Learning defaults
	lc := learning.DefaultConfig()
	v.SetDefault("learning.pattern_length", lc.PatternLength)
	v.SetDefault("learning.min_occurrences", lc.MinOccurrences)
	v.SetDefault("learning.top_n", lc.TopN)
	v.SetDefault("learning.table_threshold", lc.TableThreshold)
	v.SetDefault("learning.enter_threshold", lc.EnterThreshold)
	v.SetDefault("learning.avoid_threshold", lc.AvoidThreshold)
	v.SetDefault("learning.merge_policy", string(lc.MergePolicy))
	v.SetDefault("learning.suggestion_history_limit", 50)

	// Bank defaults
	bs := bankroll.DefaultSettings()
	v.SetDefault("bank.initial_bankroll", bs.InitialBankroll.String())
	v.SetDefault("bank.profit_target", bs.ProfitTarget.String())
	v.SetDefault("bank.initial_stake", bs.InitialStake.String())
	v.SetDefault("bank.stop_loss_percent", bs.StopLossPercent.String())
	v.SetDefault("bank.multiplier", bs.Multiplier.StringFixed(1))

	// Storage defaults
	v.SetDefault("storage.db_path", "./data/crashoracle.db")
	v.SetDefault("storage.max_outcomes_per_account", 0)

	// Scheduler defaults
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.learn_schedule", "0 */10 * * * *")
	v.SetDefault("scheduler.rotate_schedule", "0 30 3 * * *")

	// HTTP defaults
	v.SetDefault("http.enabled", true)
	v.SetDefault("http.address", ":8080")
	v.SetDefault("http.allowed_origins", []string{"*"})

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Learning config
	if _, err := c.LearningParams(); err != nil {
		return fmt.Errorf("learning: %w", err)
	}
	if c.Learning.SuggestionHistoryLimit < 1 {
		return fmt.Errorf("learning.suggestion_history_limit must be at least 1")
	}

	// Validate Bank config
	if _, err := c.BankSettings(); err != nil {
		return fmt.Errorf("bank: %w", err)
	}

	// Validate Storage config
	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}
	if c.Storage.MaxOutcomesPerAccount < 0 {
		return fmt.Errorf("storage.max_outcomes_per_account must not be negative")
	}
	if c.Storage.MaxOutcomesPerAccount > 0 &&
		learning.MergePolicy(strings.ToLower(c.Learning.MergePolicy)) != learning.MergeAccumulate {
		return fmt.Errorf("storage.max_outcomes_per_account requires learning.merge_policy %q", learning.MergeAccumulate)
	}

	// Validate Scheduler config
	if c.Scheduler.Enabled {
		parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
		if _, err := parser.Parse(c.Scheduler.LearnSchedule); err != nil {
			return fmt.Errorf("scheduler.learn_schedule is invalid: %w", err)
		}
		if _, err := parser.Parse(c.Scheduler.RotateSchedule); err != nil {
			return fmt.Errorf("scheduler.rotate_schedule is invalid: %w", err)
		}
	}

	// Validate HTTP config
	if c.HTTP.Enabled && c.HTTP.Address == "" {
		return fmt.Errorf("http.address is required when http is enabled")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.MaxRetries < 0 {
			return fmt.Errorf("telegram.max_retries must not be negative")
		}
		if c.Telegram.RetryDelayBase <= 0 {
			return fmt.Errorf("telegram.retry_delay_base must be positive")
		}
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// LearningParams converts the learning section into engine parameters.
func (c *Config) LearningParams() (learning.Config, error) {
	lc := learning.Config{
		PatternLength:  c.Learning.PatternLength,
		MinOccurrences: c.Learning.MinOccurrences,
		TopN:           c.Learning.TopN,
		TableThreshold: c.Learning.TableThreshold,
		EnterThreshold: c.Learning.EnterThreshold,
		AvoidThreshold: c.Learning.AvoidThreshold,
		MergePolicy:    learning.MergePolicy(strings.ToLower(c.Learning.MergePolicy)),
	}
	if err := lc.Validate(); err != nil {
		return learning.Config{}, err
	}
	return lc, nil
}

type amountField struct {
	name string
	raw  string
	dst  *decimal.Decimal
}

// BankSettings converts the bank section into bankroll settings.
func (c *Config) BankSettings() (bankroll.Settings, error) {
	var s bankroll.Settings
	fields := []amountField{
		{"initial_bankroll", c.Bank.InitialBankroll, &s.InitialBankroll},
		{"profit_target", c.Bank.ProfitTarget, &s.ProfitTarget},
		{"initial_stake", c.Bank.InitialStake, &s.InitialStake},
		{"stop_loss_percent", c.Bank.StopLossPercent, &s.StopLossPercent},
		{"multiplier", c.Bank.Multiplier, &s.Multiplier},
	}

	var errs []error
	for _, f := range fields {
		d, err := decimal.NewFromString(strings.TrimSpace(f.raw))
		if err != nil {
			errs = append(errs, fmt.Errorf("bank.%s is not a number: %q", f.name, f.raw))
			continue
		}
		*f.dst = d
	}
	if err := errors.Join(errs...); err != nil {
		return bankroll.Settings{}, err
	}
	if err := s.Validate(); err != nil {
		return bankroll.Settings{}, err
	}
	return s, nil
}
