package webapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"tg-movie-bot/internal/domain"
	httpinfra "tg-movie-bot/internal/infra/http"
	"tg-movie-bot/internal/usecase/resolver"
	"tg-movie-bot/internal/usecase/users"
)

const (
	statsTop     = 10
	initDataTTL  = 24 * time.Hour
	suggestLimit = 5
)

// StatsSource отдаёт статистику посещений.
type StatsSource interface {
	Stats(ctx context.Context, now time.Time, top int) (users.Stats, error)
}

// MovieLookup ищет фильм по запросу.
type MovieLookup interface {
	Resolve(ctx context.Context, query string) (resolver.Result, error)
	Suggest(query string, n int) []domain.Movie
}

// ParticipantsSource отдаёт участников текущего розыгрыша.
type ParticipantsSource interface {
	Participants(ctx context.Context) ([]domain.User, error)
}

// API — административные эндпоинты WebApp.
type API struct {
	stats        StatsSource
	movies       MovieLookup
	participants ParticipantsSource
	log          zerolog.Logger
	now          func() time.Time
}

// New создаёт API.
func New(stats StatsSource, movies MovieLookup, participants ParticipantsSource, log zerolog.Logger) *API {
	return &API{stats: stats, movies: movies, participants: participants, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// Mount регистрирует маршруты /api/v1 за проверкой initData администратора.
func (a *API) Mount(r chi.Router, botToken string, admins domain.Admins) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httpinfra.WebAppAuthMiddleware(botToken, initDataTTL, admins.Contains))
		a.Routes(r)
	})
}

// Routes регистрирует обработчики без авторизации.
func (a *API) Routes(r chi.Router) {
	r.Get("/stats", a.handleStats)
	r.Get("/movies/resolve", a.handleResolve)
	r.Get("/raffle/participants", a.handleParticipants)
}

type userView struct {
	ID          int64      `json:"id"`
	DisplayName string     `json:"display_name"`
	Visits      int        `json:"visits"`
	LastActive  *time.Time `json:"last_active,omitempty"`
}

type statsView struct {
	Users       int        `json:"users"`
	Visits      int        `json:"visits"`
	OptedIn     int        `json:"raffle_opted_in"`
	ActiveDay   int        `json:"active_day"`
	ActiveMonth int        `json:"active_month"`
	Top         []userView `json:"top"`
}

type resolveView struct {
	Found       bool           `json:"found"`
	Step        string         `json:"step,omitempty"`
	Score       float64        `json:"score,omitempty"`
	Movie       *domain.Movie  `json:"movie,omitempty"`
	Suggestions []domain.Movie `json:"suggestions,omitempty"`
}

func toView(u domain.User) userView {
	return userView{ID: u.ID, DisplayName: u.DisplayName, Visits: u.VisitCount, LastActive: u.LastActive}
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.stats.Stats(r.Context(), a.now(), statsTop)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	view := statsView{
		Users:       stats.Users,
		Visits:      stats.Visits,
		OptedIn:     stats.OptedIn,
		ActiveDay:   stats.ActiveDay,
		ActiveMonth: stats.ActiveMonth,
		Top:         make([]userView, 0, len(stats.Top)),
	}
	for _, u := range stats.Top {
		view.Top = append(view.Top, toView(u))
	}
	httpinfra.WriteJSON(w, http.StatusOK, view)
}

func (a *API) handleResolve(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		httpinfra.WriteError(w, http.StatusBadRequest, errors.New("параметр q обязателен"))
		return
	}
	res, err := a.movies.Resolve(r.Context(), query)
	switch {
	case errors.Is(err, resolver.ErrNotFound):
		httpinfra.WriteJSON(w, http.StatusOK, resolveView{Suggestions: a.movies.Suggest(query, suggestLimit)})
	case err != nil:
		a.fail(w, r, err)
	default:
		movie := res.Movie
		httpinfra.WriteJSON(w, http.StatusOK, resolveView{Found: true, Step: string(res.Step), Score: res.Score, Movie: &movie})
	}
}

func (a *API) handleParticipants(w http.ResponseWriter, r *http.Request) {
	list, err := a.participants.Participants(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out := make([]userView, 0, len(list))
	for _, u := range list {
		out = append(out, toView(u))
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{"count": len(out), "participants": out})
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	a.log.Error().Err(err).Str("path", r.URL.Path).Str("request_id", httpinfra.RequestID(r)).Msg("api: ошибка запроса")
	httpinfra.WriteError(w, http.StatusInternalServerError, errors.New("внутренняя ошибка"))
}
