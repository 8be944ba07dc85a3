package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"tg-movie-bot/internal/adapters/bot"
	"tg-movie-bot/internal/adapters/telegram"
	"tg-movie-bot/internal/adapters/webapi"
	"tg-movie-bot/internal/app"
	"tg-movie-bot/internal/domain"
	"tg-movie-bot/internal/infra/config"
	httpinfra "tg-movie-bot/internal/infra/http"
	"tg-movie-bot/internal/infra/log"
	"tg-movie-bot/internal/infra/metrics"
	"tg-movie-bot/internal/usecase/broadcast"
	"tg-movie-bot/internal/usecase/raffle"
	"tg-movie-bot/internal/usecase/reactions"
	"tg-movie-bot/internal/usecase/resolver"
	"tg-movie-bot/internal/usecase/support"
	"tg-movie-bot/internal/usecase/users"
)

const pollSeconds = 60

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)
	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := app.OpenStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось подключиться к хранилищу")
	}
	defer closeStore()

	catalogSrc, _, closeCatalog, err := app.OpenCatalog(ctx, cfg, store)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось открыть каталог")
	}
	defer closeCatalog()

	redisClient, cacheStore, err := app.OpenRedis(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось подключиться к Redis")
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	broadcastQueue, closeQueue, err := app.OpenQueue(cfg, redisClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось подключиться к очереди")
	}
	defer closeQueue()

	movieResolver, err := resolver.Load(ctx, catalogSrc, app.NewTranslator(cfg, cacheStore, logger), cfg.Match.Threshold)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось загрузить каталог")
	}
	logger.Info().Int("movies", movieResolver.Size()).Str("source", cfg.Catalog.Source).Msg("каталог загружен")

	clientTimeout := cfg.Broadcast.Timeout
	if cfg.Telegram.Mode == "polling" {
		clientTimeout = telegram.PollingTimeout(pollSeconds, cfg.Broadcast.Timeout)
	}
	botAPI, err := telegram.NewBot(cfg.Telegram.Token, "", clientTimeout)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось создать бота")
	}
	sender := telegram.NewSender(botAPI)
	admins := domain.NewAdmins(cfg.Telegram.AdminIDs)

	dir := users.NewDirectory(store)
	raffleService := raffle.NewService(dir, store, bot.NewRaffleAnnouncer(sender, admins), logger)
	svc := bot.Services{
		Resolver:  movieResolver,
		Reactions: reactions.NewService(store),
		Users:     dir,
		Support:   support.NewService(dir, store),
		Raffle:    raffleService,
		Broadcast: broadcast.NewService(broadcastQueue, dir, sender, broadcastOptions(cfg), logger),
	}
	h := bot.NewHandler(sender, logger, admins, svc)

	server := httpinfra.NewServer(logger)
	webapi.New(dir, movieResolver, raffleService, logger).Mount(server.Router, cfg.Telegram.Token, admins)

	var inflight sync.WaitGroup
	switch cfg.Telegram.Mode {
	case "webhook":
		server.Router.Post("/bot/webhook", func(w http.ResponseWriter, r *http.Request) {
			var update tgbotapi.Update
			if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			h.HandleUpdate(r.Context(), update)
			w.WriteHeader(http.StatusOK)
		})
		if cfg.Telegram.WebhookURL != "" {
			wh, err := tgbotapi.NewWebhook(cfg.Telegram.WebhookURL)
			if err != nil {
				logger.Fatal().Err(err).Msg("некорректный TG_WEBHOOK_URL")
			}
			if _, err := botAPI.Request(wh); err != nil {
				logger.Fatal().Err(err).Msg("не удалось установить вебхук")
			}
		}
	case "polling":
		if _, err := botAPI.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
			logger.Warn().Err(err).Msg("не удалось снять вебхук")
		}
		inflight.Add(1)
		go func() {
			defer inflight.Done()
			poll(ctx, botAPI, h, logger, &inflight)
		}()
	}

	go func() {
		if err := server.Start(":" + strconv.Itoa(cfg.Port)); err != nil {
			logger.Error().Err(err).Msg("HTTP сервер остановлен")
			stop()
		}
	}()
	logger.Info().Str("mode", cfg.Telegram.Mode).Msg("бот-гейтвей запущен")

	<-ctx.Done()
	logger.Info().Msg("остановка бота")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP сервер не остановился корректно")
	}
	inflight.Wait()
}

func poll(ctx context.Context, botAPI *tgbotapi.BotAPI, h *bot.Handler, logger zerolog.Logger, inflight *sync.WaitGroup) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollSeconds
	updates := botAPI.GetUpdatesChan(u)
	defer botAPI.StopReceivingUpdates()
	logger.Info().Msg("получение апдейтов через long polling")
	for {
		select {
		case <-ctx.Done():
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			inflight.Add(1)
			go func() {
				defer inflight.Done()
				h.HandleUpdate(context.WithoutCancel(ctx), upd)
			}()
		}
	}
}

func broadcastOptions(cfg config.AppConfig) broadcast.Options {
	return broadcast.Options{
		Concurrency:  cfg.Broadcast.Concurrency,
		Timeout:      cfg.Broadcast.Timeout,
		PruneBlocked: cfg.Broadcast.PruneBlocked,
	}
}
