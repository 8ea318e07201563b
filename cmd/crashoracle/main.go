package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rewired-gh/crashoracle/internal/config"
	"github.com/rewired-gh/crashoracle/internal/httpapi"
	"github.com/rewired-gh/crashoracle/internal/logger"
	"github.com/rewired-gh/crashoracle/internal/scheduler"
	"github.com/rewired-gh/crashoracle/internal/storage"
	"github.com/rewired-gh/crashoracle/internal/telegram"
	"github.com/rewired-gh/crashoracle/internal/tracker"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

const shutdownTimeout = 10 * time.Second

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Setup logging with level support
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	learningCfg, err := cfg.LearningParams()
	if err != nil {
		logger.Fatal("Invalid learning configuration: %v", err)
	}
	bankSettings, err := cfg.BankSettings()
	if err != nil {
		logger.Fatal("Invalid bank configuration: %v", err)
	}

	// Initialize storage
	store, err := storage.New(cfg.Storage.DBPath)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	// Initialize tracker
	tr, err := tracker.New(store, tracker.Options{
		Learning:               learningCfg,
		Bank:                   bankSettings,
		SuggestionHistoryLimit: cfg.Learning.SuggestionHistoryLimit,
		MaxOutcomesPerAccount:  cfg.Storage.MaxOutcomesPerAccount,
	})
	if err != nil {
		logger.Fatal("Failed to initialize tracker: %v", err)
	}
	logger.Info("Tracker ready (pattern_length: %d, min_occurrences: %d, top_n: %d, merge_policy: %s)",
		learningCfg.PatternLength, learningCfg.MinOccurrences, learningCfg.TopN, learningCfg.MergePolicy)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup

	// Start scheduler
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched = scheduler.New(logger.Base())
		if err := sched.AddJob(cfg.Scheduler.LearnSchedule, scheduler.NewLearningJob(tr, 0, logger.Component("scheduler"))); err != nil {
			logger.Fatal("Failed to register learning job: %v", err)
		}
		if cfg.Storage.MaxOutcomesPerAccount > 0 {
			if err := sched.AddJob(cfg.Scheduler.RotateSchedule, scheduler.NewRotationJob(tr, 0, logger.Component("scheduler"))); err != nil {
				logger.Fatal("Failed to register rotation job: %v", err)
			}
		}
		sched.Start()
	} else {
		logger.Debug("Scheduler disabled")
	}

	// Start HTTP API
	var server *httpapi.Server
	if cfg.HTTP.Enabled {
		server = httpapi.New(tr, cfg.HTTP.Address, cfg.HTTP.AllowedOrigins)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server failed: %v", err)
				cancel()
			}
		}()
	} else {
		logger.Debug("HTTP API disabled")
	}

	// Start Telegram command listener
	if cfg.Telegram.Enabled {
		telegramClient, err := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		logger.Info("Telegram client initialized successfully")

		handler := telegram.NewHandler(tr, cfg.Telegram.AllowedChatIDs)
		wg.Add(1)
		go func() {
			defer wg.Done()
			telegramClient.Listen(ctx, handler)
		}()
	} else {
		logger.Debug("Telegram bot disabled")
	}

	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, cleaning up...")
	case <-ctx.Done():
	}
	cancel()

	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown failed: %v", err)
		}
		shutdownCancel()
	}
	if sched != nil {
		sched.Stop()
	}
	wg.Wait()

	logger.Info("Service stopped")
}
