package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"

	"reminder-bot/internal/bot"
	"reminder-bot/internal/config"
	"reminder-bot/internal/httpapi"
	"reminder-bot/internal/logger"
	"reminder-bot/internal/model"
	"reminder-bot/internal/notifier"
	"reminder-bot/internal/repository"
	"reminder-bot/internal/service"
	"reminder-bot/internal/timeparse"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "reminderbot: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log := logger.New(cfg.LogLevel, cfg.LogPretty)

	db, err := repository.NewDB(cfg.DatabaseURL, logger.Component(log, "gorm"))
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	store := repository.NewReminderRepository(db)

	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	log.Info().Str("username", api.Self.UserName).Msg("authorized on telegram")

	// Deliveries use a client bounded by the delivery timeout; polling keeps
	// the default one.
	sendAPI, err := notifier.NewBotAPI(cfg.TelegramToken, tgbotapi.APIEndpoint, cfg.DeliveryTimeout)
	if err != nil {
		return fmt.Errorf("telegram sender: %w", err)
	}

	engine := service.NewEngine(
		store,
		service.NewTimerRegistry(logger.Component(log, "timers")),
		notifier.NewTelegram(sendAPI, cfg.NotifyRatePerSec, logger.Component(log, "notifier")),
		logger.Component(log, "engine"),
		service.WithFormatter(bot.FormatDelivery(cfg.DisplayTimezone)),
		service.WithDeliveryTimeout(cfg.DeliveryTimeout),
	)

	// Rebuild timers before anything can create or cancel reminders.
	recovered, err := engine.RecoverPending(ctx)
	if err != nil {
		return err
	}
	log.Info().Int("count", recovered).Msg("pending reminders re-armed")
	engine.Start()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		engine.Shutdown(shutdownCtx)
	}()

	parser := timeparse.New(cfg.DisplayTimezone)
	telegramBot := bot.New(api, engine, parser, cfg.DisplayTimezone, logger.Component(log, "bot"))
	server := httpapi.NewServer(cfg.HTTPAddr, httpapi.Deps{
		Reminders:        engine,
		Parser:           parser,
		AliceDestination: model.Destination{ChatID: cfg.ChatID, ThreadID: cfg.ThreadID},
		Location:         cfg.DisplayTimezone,
		Log:              logger.Component(log, "http"),
	})

	g, groupCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := telegramBot.Start(groupCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(server.Start)
	g.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	log.Info().Str("http_addr", cfg.HTTPAddr).Msg("reminder bot started")
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("shutdown complete")
	return nil
}
