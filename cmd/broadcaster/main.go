package main

import (
	"context"
	"errors"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"tg-movie-bot/internal/adapters/telegram"
	"tg-movie-bot/internal/app"
	"tg-movie-bot/internal/infra/config"
	"tg-movie-bot/internal/infra/log"
	"tg-movie-bot/internal/infra/metrics"
	"tg-movie-bot/internal/usecase/broadcast"
	"tg-movie-bot/internal/usecase/users"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)
	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := app.OpenStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("broadcaster: нет подключения к хранилищу")
	}
	defer closeStore()

	redisClient, _, err := app.OpenRedis(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("broadcaster: нет подключения к Redis")
	}
	if redisClient != nil {
		defer redisClient.Close()
	}
	q, closeQueue, err := app.OpenQueue(cfg, redisClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("broadcaster: нет подключения к очереди")
	}
	defer closeQueue()
	if q == nil {
		logger.Fatal().Msg("broadcaster: очередь не настроена, задайте RABBITMQ_URL или REDIS_ADDR")
	}

	botAPI, err := telegram.NewBot(cfg.Telegram.Token, "", cfg.Broadcast.Timeout)
	if err != nil {
		logger.Fatal().Err(err).Msg("broadcaster: не удалось создать бота")
	}

	metrics.StartServer(ctx, logger, ":"+strconv.Itoa(cfg.Port))

	service := broadcast.NewService(q, users.NewDirectory(store), telegram.NewSender(botAPI), broadcast.Options{
		Concurrency:  cfg.Broadcast.Concurrency,
		Timeout:      cfg.Broadcast.Timeout,
		PruneBlocked: cfg.Broadcast.PruneBlocked,
	}, logger)
	logger.Info().Str("queue", cfg.Queues.Broadcast).Msg("broadcaster: ожидание задач")
	if err := service.Worker(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("broadcaster: остановлен с ошибкой")
	}
}
