// Command voicegate is the restaurant voice-ordering gateway. It bridges
// inbound phone calls to a generative speech agent and persists the
// resulting call and order records.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/spicebay/voicegate/internal/config"
	"github.com/spicebay/voicegate/internal/gateway"
	"github.com/spicebay/voicegate/internal/menu"
	"github.com/spicebay/voicegate/internal/model"
	"github.com/spicebay/voicegate/internal/observe"
	"github.com/spicebay/voicegate/internal/session"
	"github.com/spicebay/voicegate/internal/store"
	"github.com/spicebay/voicegate/internal/telephony"
)

const version = "0.3.0"

// shutdownDeadline is the hard cap on graceful shutdown: listener drain plus
// live-session close. Beyond it the process force-exits with code 1.
const shutdownDeadline = 30 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voicegate: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("voicegate starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"restaurant", cfg.Restaurant.ID,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Metrics pipeline ──────────────────────────────────────────────────────
	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "voicegate",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("metrics init failed", "err", err)
		return 1
	}
	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Error("metrics instruments failed", "err", err)
		return 1
	}

	// ── Database ──────────────────────────────────────────────────────────────
	db, err := store.NewPostgres(ctx, cfg.Database.DSN)
	if err != nil {
		slog.Error("database connect failed", "err", err)
		return 1
	}
	defer db.Close()

	// ── External collaborators ────────────────────────────────────────────────
	modelClient := model.NewClient(cfg.Model.APIKey,
		model.WithModel(cfg.Model.Model),
		model.WithVoice(cfg.Model.Voice),
		model.WithBaseURL(cfg.Model.BaseURL),
		model.WithLogger(logger),
	)
	transfer := telephony.NewTransferController(
		cfg.Telephony.AccountSID,
		cfg.Telephony.AuthToken,
		cfg.Restaurant.TransferNumber,
		logger,
		telephony.WithRESTBaseURL(cfg.Telephony.BaseURL),
	)
	if !transfer.Enabled() {
		slog.Warn("call transfer disabled: telephony credentials or transfer number missing")
	}

	// ── Server ────────────────────────────────────────────────────────────────
	srv := gateway.New(gateway.Config{
		ListenAddr:     cfg.Server.ListenAddr,
		PublicHost:     cfg.Server.PublicHost,
		Logger:         logger,
		Metrics:        metrics,
		Gateway:        db,
		Model:          modelClient,
		Transfer:       transfer,
		Prices:         menu.SpiceBay(),
		Registry:       session.NewRegistry(),
		RestaurantID:   cfg.Restaurant.ID,
		RestaurantName: "Spice Bay Irvine",
		Readiness:      db.Ping,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })

	waitErr := make(chan error, 1)
	go func() { waitErr <- g.Wait() }()

	var runErr error
	select {
	case runErr = <-waitErr:
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining sessions")
		select {
		case runErr = <-waitErr:
		case <-time.After(shutdownDeadline):
			slog.Error("shutdown deadline exceeded, forcing exit")
			return 1
		}
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
		return 1
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownMetrics(flushCtx); err != nil {
		slog.Warn("metrics shutdown", "err", err)
	}

	slog.Info("goodbye")
	return 0
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
