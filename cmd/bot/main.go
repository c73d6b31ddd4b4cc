package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/user/replacementbot/internal/api"
	"github.com/user/replacementbot/internal/config"
	"github.com/user/replacementbot/internal/extract"
	"github.com/user/replacementbot/internal/notifier"
	"github.com/user/replacementbot/internal/poller"
	"github.com/user/replacementbot/internal/source"
	"github.com/user/replacementbot/internal/storage"
	"github.com/user/replacementbot/internal/telegram"
	"github.com/user/replacementbot/pkg/logger"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		// Basic logger for error output
		logger.Init("info", "")
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.File); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	logger.Info().Msg("Starting replacement bot")

	// Subscriber registry and notification ledger
	db, err := storage.NewDatabase(cfg.Storage.DatabasePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	subscribers := storage.NewSubscriberStore(db)
	logger.Info().Str("path", cfg.Storage.DatabasePath).Msg("Database initialized")

	// Snapshot file with a read cache shared by the bot, the API and the poller
	snapshotStore, err := storage.NewSnapshotStore(cfg.Storage.SnapshotPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize snapshot store")
	}
	snapshots := storage.NewSnapshotCache(snapshotStore, cfg.Storage.CacheTTL)

	// Fetch strategies: lightweight endpoint first, headless browser as fallback
	var strategies []source.Strategy
	if cfg.Source.FragmentURL != "" {
		strategies = append(strategies, source.NewHTTPStrategy(cfg.Source.FragmentURL, cfg.Source.HTTPTimeout))
	}
	if cfg.Source.BrowserEnabled {
		strategies = append(strategies, source.NewBrowserStrategy(source.BrowserOptions{
			PageURL:     cfg.Source.PageURL,
			Container:   cfg.Source.Container,
			WaitTimeout: cfg.Source.BrowserTimeout,
			SettleDelay: cfg.Source.SettleDelay,
			ExecPath:    cfg.Source.BrowserPath,
		}))
	}
	fetcher := source.NewFetcher(strategies...)

	extractor := extract.New(extract.Options{
		Container:    cfg.Source.Container,
		HeaderLabel:  cfg.Extract.HeaderLabel,
		AdminMarkers: cfg.Extract.AdminMarkers,
		NoiseMarkers: cfg.Extract.NoiseMarkers,
	})

	// Initialize Telegram bot
	bot, err := telegram.NewBot(cfg.Telegram.Token, cfg.Telegram.Debug, subscribers, snapshots)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize Telegram bot")
	}

	dispatcher := notifier.NewDispatcher(bot, subscribers, cfg.Notify.RatePerSec)

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid time zone")
	}

	p := poller.NewPoller(fetcher, extractor, snapshots, dispatcher, poller.Options{
		Cadence: poller.Cadence{
			PublishHour: cfg.Poll.PublishHour,
			Location:    loc,
			Peak:        cfg.Poll.PeakInterval,
			Regular:     cfg.Poll.RegularInterval,
			Backoff:     cfg.Poll.FailureBackoff,
		},
		CycleTimeout:     cfg.Poll.CycleTimeout,
		AnnounceTimeout:  cfg.Poll.AnnounceTimeout,
		HousekeepingSpec: cfg.Poll.HousekeepingCron,
		LedgerRetention:  cfg.Poll.LedgerRetention,
	})
	p.SetHousekeeper(subscribers)

	// Read-only HTTP API
	var server *http.Server
	if cfg.Server.Enabled {
		server = &http.Server{
			Addr:    cfg.ServerAddress(),
			Handler: api.NewHandler(snapshots, subscribers).Router(30 * time.Second),
		}

		go func() {
			logger.Info().Str("address", cfg.ServerAddress()).Msg("Starting HTTP server")
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Fatal().Err(err).Msg("HTTP server error")
			}
		}()
	}

	if err := p.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start poller")
	}

	// Start Telegram bot
	bot.Start()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("Shutting down...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	p.Stop()

	if server != nil {
		if err := server.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("HTTP server shutdown error")
		}
	}

	bot.Stop()

	logger.Info().Msg("Shutdown complete")
}
