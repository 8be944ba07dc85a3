package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus"

	"tg-movie-bot/internal/adapters/bot"
	"tg-movie-bot/internal/adapters/telegram"
	"tg-movie-bot/internal/app"
	"tg-movie-bot/internal/domain"
	"tg-movie-bot/internal/infra/config"
	"tg-movie-bot/internal/infra/log"
	"tg-movie-bot/internal/infra/metrics"
	"tg-movie-bot/internal/usecase/raffle"
	"tg-movie-bot/internal/usecase/users"
)

const tickInterval = time.Minute

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)
	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// На хосте работает только один планировщик; между хостами повтор отсекает Redis и хранилище.
	lock := flock.New(cfg.Raffle.LockFile)
	locked, err := lock.TryLock()
	if err != nil {
		logger.Fatal().Err(err).Str("file", cfg.Raffle.LockFile).Msg("scheduler: не удалось взять блокировку")
	}
	if !locked {
		logger.Fatal().Str("file", cfg.Raffle.LockFile).Msg("scheduler: уже запущен другой экземпляр")
	}
	defer lock.Unlock()

	store, closeStore, err := app.OpenStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: нет подключения к хранилищу")
	}
	defer closeStore()

	redisClient, once, err := app.OpenRedis(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: нет подключения к Redis")
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	botAPI, err := telegram.NewBot(cfg.Telegram.Token, "", cfg.Broadcast.Timeout)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось создать бота")
	}
	announcer := bot.NewRaffleAnnouncer(telegram.NewSender(botAPI), domain.NewAdmins(cfg.Telegram.AdminIDs))
	service := raffle.NewService(users.NewDirectory(store), store, announcer, logger)
	scheduler := raffle.NewScheduler(service, once, cfg.Raffle.Day, cfg.Raffle.Hour, logger)

	logger.Info().Int("day", cfg.Raffle.Day).Int("hour", cfg.Raffle.Hour).Msg("scheduler: запущен")
	if err := scheduler.Run(ctx, tickInterval); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("scheduler: остановлен с ошибкой")
	}
}
