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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"gh-notify-bot/internal/adapters/httpapi"
	"gh-notify-bot/internal/domain"
	"gh-notify-bot/internal/infra/cache"
	"gh-notify-bot/internal/infra/config"
	infrahttp "gh-notify-bot/internal/infra/http"
	"gh-notify-bot/internal/infra/log"
	"gh-notify-bot/internal/infra/metrics"
	"gh-notify-bot/internal/infra/queue"
)

func main() {
	cfg := config.Load()
	logger := log.Component(log.NewLogger(cfg.AppEnv), "gateway")

	metrics.MustRegister(prometheus.DefaultRegisterer)

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	onceCache := cache.NewRedis(redisClient)

	var batches domain.BatchQueue
	if cfg.AMQPURL != "" {
		rabbit, err := queue.NewRabbitBatchQueue(cfg.AMQPURL, cfg.Queues.Batches)
		if err != nil {
			logger.Fatal().Err(err).Msg("gateway: нет подключения к RabbitMQ")
		}
		defer rabbit.Close()
		batches = rabbit
	} else {
		batches = queue.NewRedisBatchQueue(redisClient, cfg.Queues.Batches)
	}

	handler := httpapi.NewBatchHandler(onceCache, batches, cfg.Gateway.OnceTTL, logger)

	srv := infrahttp.NewServer(logger)
	srv.Router.Post("/batches", handler.Create)

	go func() {
		if err := srv.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("gateway: HTTP сервер остановлен")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop
	logger.Info().Msg("gateway: остановка")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
