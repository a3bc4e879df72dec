package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	tgbot "github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"

	"mindconnect_booking/internal/booking"
	"mindconnect_booking/internal/bot"
	botservice "mindconnect_booking/internal/bot/service"
	"mindconnect_booking/internal/config"
	"mindconnect_booking/internal/middleware"
	"mindconnect_booking/internal/scheduler"
	"mindconnect_booking/internal/scheduler/memory"
	"mindconnect_booking/internal/server"
	"mindconnect_booking/internal/storage/sqlite"
	"mindconnect_booking/pkg/logger"
)

// globalTelegramRPS общий лимит входящих обновлений в секунду
const globalTelegramRPS = 30

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "mindconnect: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := newLogger(cfg.Log)
	logger.SetDefault(log)
	defer func() { _ = log.Sync() }()

	log.Info("Configuration loaded",
		logger.String("timezone", cfg.Schedule.Timezone),
		logger.Bool("telegram", cfg.Telegram.Enabled()),
	)

	loc, err := cfg.Schedule.Location()
	if err != nil {
		return fmt.Errorf("failed to load timezone: %w", err)
	}

	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("Error closing storage", logger.Error(err))
		}
	}()
	log.Info("Storage initialized", logger.String("path", cfg.Database.Path))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Диспетчер создается после бота, но нужен ему как обработчик long polling
	var dispatcher *bot.Dispatcher

	var telegramBot *tgbot.Bot
	var sender scheduler.ReminderSender = scheduler.NewLogSender(log)
	if cfg.Telegram.Enabled() {
		telegramBot, err = tgbot.New(cfg.Telegram.Token,
			tgbot.WithDefaultHandler(func(ctx context.Context, _ *tgbot.Bot, update *tgmodels.Update) {
				dispatcher.HandleUpdate(ctx, update)
			}),
		)
		if err != nil {
			return fmt.Errorf("failed to create telegram bot: %w", err)
		}
		sender = botservice.NewReminderSender(telegramBot, store, log)
		log.Info("Telegram bot created")
	}

	reminders := memory.NewMemoryScheduler(sender, store, log)
	if err := reminders.Start(ctx); err != nil {
		return fmt.Errorf("failed to start reminder scheduler: %w", err)
	}
	defer func() {
		if err := reminders.Stop(); err != nil {
			log.Error("Error stopping reminder scheduler", logger.Error(err))
		}
	}()

	bookings := booking.NewService(store, reminders, booking.Options{
		Location:            loc,
		ReminderLead:        time.Duration(cfg.Schedule.ReminderMins) * time.Minute,
		DefaultWorkStart:    cfg.Schedule.DefaultWorkStart,
		DefaultWorkEnd:      cfg.Schedule.DefaultWorkEnd,
		DefaultIntervalMins: cfg.Schedule.DefaultIntervalMins,
	}, log)

	if n, err := bookings.ReschedulePendingReminders(ctx, time.Now()); err != nil {
		log.Error("Failed to reschedule pending reminders", logger.Error(err))
	} else {
		log.Info("Pending reminders rescheduled", logger.Int("count", n))
	}

	var updates server.UpdateHandler
	if telegramBot != nil {
		limiter := middleware.NewChatRateLimiter(cfg.Telegram.ChatRateLimit, globalTelegramRPS, log)
		defer limiter.Close()

		svc := botservice.NewService(telegramBot, bookings, cfg, log)
		dispatcher = bot.NewDispatcher(svc, limiter, log)
		updates = dispatcher

		if cfg.Telegram.WebhookURL != "" {
			if err := setupWebhook(ctx, telegramBot, cfg.Telegram); err != nil {
				return fmt.Errorf("failed to setup webhook: %w", err)
			}
			log.Info("Webhook configured", logger.String("url", cfg.Telegram.WebhookURL))
		} else {
			if _, err := telegramBot.DeleteWebhook(ctx, &tgbot.DeleteWebhookParams{}); err != nil {
				log.Warn("Failed to delete existing webhook", logger.Error(err))
			}
			go telegramBot.Start(ctx)
			log.Info("Telegram long polling started")
		}
	}

	srv := server.New(cfg, log, bookings, store, updates)
	if err := srv.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("Server stopped gracefully")
	return nil
}

// newLogger создает логгер по настройкам формата и уровня
func newLogger(cfg config.LogConfig) *logger.Logger {
	level := logger.ParseLevel(cfg.Level)
	if cfg.Format == "console" {
		return logger.NewDevelopment(level)
	}
	return logger.New(level)
}

// setupWebhook перенастраивает webhook Telegram бота на наш адрес
func setupWebhook(ctx context.Context, b *tgbot.Bot, cfg config.TelegramConfig) error {
	if _, err := b.DeleteWebhook(ctx, &tgbot.DeleteWebhookParams{}); err != nil {
		logger.Warn("Failed to delete existing webhook", logger.Error(err))
	}

	_, err := b.SetWebhook(ctx, &tgbot.SetWebhookParams{
		URL:         cfg.WebhookURL,
		SecretToken: cfg.SecretToken,
	})
	return err
}
