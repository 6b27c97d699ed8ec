package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"gh-notify-bot/internal/adapters/enrich"
	"gh-notify-bot/internal/adapters/render"
	"gh-notify-bot/internal/adapters/repo"
	"gh-notify-bot/internal/adapters/telegram"
	"gh-notify-bot/internal/domain"
	"gh-notify-bot/internal/infra/config"
	"gh-notify-bot/internal/infra/db"
	"gh-notify-bot/internal/infra/log"
	"gh-notify-bot/internal/infra/metrics"
	"gh-notify-bot/internal/infra/queue"
	"gh-notify-bot/internal/usecase/notify"
)

func main() {
	cfg := config.Load()
	logger := log.Component(log.NewLogger(cfg.AppEnv), "notifier")

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
		<-stop
		logger.Info().Msg("notifier: остановка")
		cancel()
	}()

	metrics.StartServer(ctx, logger, cfg.MetricsAddr)

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("notifier: нет подключения к БД")
	}
	defer pool.Close()

	store := repo.NewPostgres(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		logger.Fatal().Err(err).Msg("notifier: не удалось подготовить схему")
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("notifier: не удалось создать бота")
	}
	sink := telegram.NewSender(botAPI, logger)

	formatter := notify.NewFormatter(render.NewMarkdown(), enrich.NewStatic())
	service := notify.NewService(store, sink, formatter, logger)

	var batches domain.BatchQueue
	if cfg.AMQPURL != "" {
		rabbit, err := queue.NewRabbitBatchQueue(cfg.AMQPURL, cfg.Queues.Batches)
		if err != nil {
			logger.Fatal().Err(err).Msg("notifier: нет подключения к RabbitMQ")
		}
		defer rabbit.Close()
		batches = rabbit
	} else {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		batches = queue.NewRedisBatchQueue(redisClient, cfg.Queues.Batches)
	}

	logger.Info().Str("queue", cfg.Queues.Batches).Msg("notifier: запущен")
	for {
		batch, ack, err := batches.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			logger.Error().Err(err).Msg("notifier: ошибка чтения очереди")
			continue
		}

		admin := repo.NewAdminRoom(store, batch.RoomID, batch.UserID)
		report := service.ProcessBatch(ctx, batch, admin)
		logger.Info().
			Str("batch", batch.ID).
			Str("room", batch.RoomID).
			Int("events", len(batch.Events)).
			Int("failed", report.Failed()).
			Bool("cursor_updated", report.CursorUpdated).
			Msg("notifier: пачка обработана")

		// Пачка считается обработанной даже при отказах отдельных событий:
		// политика изоляции не допускает повторной доставки всей пачки.
		if err := ack(true); err != nil {
			logger.Warn().Err(err).Str("batch", batch.ID).Msg("notifier: не удалось подтвердить пачку")
		}
	}
}
