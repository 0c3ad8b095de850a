package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"

	"github.com/wallwatch/wallwatch/internal/config"
	"github.com/wallwatch/wallwatch/internal/clock"
	"github.com/wallwatch/wallwatch/internal/sink"
	"github.com/wallwatch/wallwatch/internal/supervisor"
	"github.com/wallwatch/wallwatch/internal/transport/wsfeed"
	"github.com/wallwatch/wallwatch/internal/wallerr"
)

func newRunCmd() *cobra.Command {
	var symbolOverride []string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the ingestion loop and run until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWallwatch(configPath, symbolOverride)
		},
	}
	cmd.Flags().StringSliceVar(&symbolOverride, "symbols", nil, "override the symbol list from the config file")
	return cmd
}

func runWallwatch(path string, symbolOverride []string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return exitWith(err)
	}

	logger := config.NewLogger(cfg.LogLevel)
	logger.Info("wallwatch starting",
		"transport_url", cfg.TransportURL,
		"symbols", cfg.Symbols,
	)

	symbols := cfg.Symbols
	if len(symbolOverride) > 0 {
		symbols = symbolOverride
	}

	res, err := cfg.BuildResolver()
	if err != nil {
		return exitWith(err)
	}

	feed := wsfeed.New(cfg.TransportURL, cfg.RetryBackoffInitial(), cfg.RetryBackoffMax(), logger)

	sinks, err := buildSinks(cfg.Sinks)
	if err != nil {
		return exitWith(err)
	}
	dispatcher := sink.NewDispatcher(logger, cfg.Sinks.QueueLength, sinks...)

	sup := supervisor.New(logger, feed, res, dispatcher, clock.Real{}, cfg.Detector, cfg.StreamIdleSleep())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go dispatcher.Run(ctx)

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- sup.Run(ctx, symbols) }()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigc:
		logger.Info("wallwatch: shutdown signal received")
		cancel()
		select {
		case <-runErrCh:
		case <-time.After(8 * time.Second):
			logger.Warn("wallwatch: supervisor did not stop within grace period")
		}
	case err := <-runErrCh:
		if err != nil {
			return exitWith(err)
		}
	}

	logger.Info("wallwatch: bye")
	return nil
}

func buildSinks(cfg config.SinkConfig) ([]sink.Sink, error) {
	var sinks []sink.Sink
	if cfg.Console {
		sinks = append(sinks, sink.NewConsole(nil))
	}
	if cfg.TelegramEnabled {
		token := os.Getenv("TELEGRAM_BOT_TOKEN")
		if token == "" {
			return nil, fmt.Errorf("%w: TELEGRAM_BOT_TOKEN not set in environment", wallerr.ErrConfig)
		}
		bot, err := tgbotapi.NewBotAPI(token)
		if err != nil {
			return nil, fmt.Errorf("%w: telegram: %v", wallerr.ErrConfig, err)
		}
		rate := cfg.TelegramRate
		if rate <= 0 {
			rate = 1
		}
		burst := cfg.TelegramBurst
		if burst <= 0 {
			burst = 1
		}
		sinks = append(sinks, sink.NewTelegram(bot, cfg.TelegramChatID, rate, burst))
	}
	return sinks, nil
}

func exitWith(err error) error {
	os.Exit(wallerr.ExitCode(err))
	return err
}
