package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	ResolveTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "movie_resolve_total",
		Help: "Результаты поиска фильма по шагу, на котором найдено совпадение",
	}, []string{"step"})

	TranslationFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "translation_fallback_total",
		Help: "Запросы, для которых перевод не удался и использован исходный текст",
	})

	ReactionToggles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reaction_toggles_total",
		Help: "Переключения реакций по виду и направлению",
	}, []string{"kind", "direction"})

	VersionConflicts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "store_version_conflicts_total",
		Help: "Повторы read-modify-write из-за конфликта версий",
	}, []string{"entity"})

	BroadcastDeliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "broadcast_deliveries_total",
		Help: "Доставка сообщений рассылки по статусу",
	}, []string{"status"})

	RaffleDraws = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "raffle_draws_total",
		Help: "Розыгрыши по исходу",
	}, []string{"outcome"})

	BotSendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_send_errors_total",
		Help: "Ошибки отправки сообщений ботом",
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		ResolveTotal,
		TranslationFallbacks,
		ReactionToggles,
		VersionConflicts,
		BroadcastDeliveries,
		RaffleDraws,
		BotSendErrors,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// IncResolve отмечает шаг, на котором резолвер нашёл фильм ("miss" — не найден).
func IncResolve(step string) {
	ResolveTotal.WithLabelValues(step).Inc()
}

// IncReactionToggle учитывает включение или снятие реакции.
func IncReactionToggle(kind string, on bool) {
	direction := "off"
	if on {
		direction = "on"
	}
	ReactionToggles.WithLabelValues(kind, direction).Inc()
}

// IncVersionConflict учитывает повтор записи из-за конфликта версий.
func IncVersionConflict(entity string) {
	VersionConflicts.WithLabelValues(entity).Inc()
}

// IncBroadcastDelivery учитывает доставку одного сообщения рассылки.
func IncBroadcastDelivery(status string) {
	BroadcastDeliveries.WithLabelValues(status).Inc()
}

// IncRaffleDraw учитывает исход розыгрыша.
func IncRaffleDraw(outcome string) {
	RaffleDraws.WithLabelValues(outcome).Inc()
}
