package main

import (
	"anonchat/backend/internal/api/handler"
	"anonchat/backend/internal/chathub"
	"anonchat/backend/internal/clock"
	"anonchat/backend/internal/complaint"
	"anonchat/backend/internal/config"
	"anonchat/backend/internal/engine"
	"anonchat/backend/internal/localization"
	"anonchat/backend/internal/moderation"
	"anonchat/backend/internal/storage"
	"anonchat/backend/internal/telegram"
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func setupLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

// setupStorage picks postgres (plus redis for the queue) when configured and
// falls back to in-memory storage otherwise.
func setupStorage(ctx context.Context, cfg *config.Config) (storage.Storage, func()) {
	if cfg.DatabaseURL == "" {
		log.Warn().Str("module", "main").Msg("DATABASE_URL is empty, using in-memory storage")
		return storage.NewMemoryStorage(), func() {}
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		log.Fatal().Str("module", "main").Err(err).Msg("failed to connect PostgreSQL")
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Str("module", "main").Err(err).Msg("failed to connect Redis")
		}
	} else {
		log.Warn().Str("module", "main").Msg("REDIS_ADDR is empty, the search queue will not survive restarts")
	}

	s := storage.NewStorageService(db, rdb)
	if err := s.AutoMigrate(); err != nil {
		log.Fatal().Str("module", "main").Err(err).Msg("failed to run migrations")
	}
	log.Info().Str("module", "main").Msg("database connections established, migrations complete")

	return s, func() {
		if rdb != nil {
			rdb.Close()
		}
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Str("module", "main").Err(err).Msg("failed to load config")
	}
	setupLogger(cfg)
	log.Info().Str("module", "main").Msg("starting anonchat backend")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore := setupStorage(ctx, cfg)
	defer closeStore()

	loc, err := localization.NewDefaultLocalizer(cfg.DefaultLanguage)
	if err != nil {
		log.Fatal().Str("module", "main").Err(err).Msg("failed to load translations")
	}

	hub := chathub.NewManagerService(moderation.NewFilter(), loc)
	eng := engine.NewEngine(store, hub, hub, clock.Real(), cfg.Policy)
	hub.Engine = eng
	hub.Complaints = complaint.NewService(store, eng)
	hub.OnDisconnect = hub.Disconnected

	if cfg.TelegramBotToken != "" {
		bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
		if err != nil {
			log.Fatal().Str("module", "main").Err(err).Msg("failed to start Telegram bot")
		}
		log.Info().Str("module", "main").Str("account", bot.Self.UserName).Msg("authorized on Telegram")

		botService := telegram.NewBotService(bot, hub, eng, loc, cfg.DefaultLanguage, bot.Self.UserName)
		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		updates := bot.GetUpdatesChan(u)
		go func() {
			<-ctx.Done()
			bot.StopReceivingUpdates()
		}()
		go botService.Run(ctx, updates)
	} else {
		log.Warn().Str("module", "main").Msg("TELEGRAM_BOT_TOKEN is empty, Telegram transport disabled")
	}

	// Restore after the bot registered its client restorer, so restored
	// sessions can reach Telegram users.
	if err := eng.Restore(ctx); err != nil {
		log.Fatal().Str("module", "main").Err(err).Msg("failed to restore engine state")
	}

	go hub.Run(ctx)

	var server *http.Server
	if cfg.HTTPAddr != "" {
		gin.SetMode(gin.ReleaseMode)
		h := handler.NewHandler(hub, eng, cfg.JWTSecret, cfg.AdminPassword, cfg.DefaultLanguage)
		server = &http.Server{
			Addr:           cfg.HTTPAddr,
			Handler:        h.Router(),
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   10 * time.Second,
			MaxHeaderBytes: 1 << 20,
		}
		go func() {
			log.Info().Str("module", "main").Str("addr", cfg.HTTPAddr).Msg("HTTP server listening")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal().Str("module", "main").Err(err).Msg("HTTP server failed")
			}
		}()
	} else {
		log.Warn().Str("module", "main").Msg("HTTP_ADDR is empty, HTTP API and WebSocket transport disabled")
	}

	<-ctx.Done()
	log.Info().Str("module", "main").Msg("shutting down")

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Str("module", "main").Err(err).Msg("HTTP shutdown failed")
		}
	}
	eng.Close()
}
