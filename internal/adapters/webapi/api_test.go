package webapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"tg-movie-bot/internal/domain"
	httpinfra "tg-movie-bot/internal/infra/http"
	"tg-movie-bot/internal/usecase/resolver"
	"tg-movie-bot/internal/usecase/users"
)

type fakeStats struct {
	stats users.Stats
	err   error
}

func (f fakeStats) Stats(context.Context, time.Time, int) (users.Stats, error) { return f.stats, f.err }

type fakeParticipants []domain.User

func (f fakeParticipants) Participants(context.Context) ([]domain.User, error) { return f, nil }

func newRouter(stats StatsSource) http.Handler {
	movies := resolver.New([]domain.Movie{
		{Code: "101", Title: "Inception"},
		{Code: "102", Title: "The Matrix"},
	}, nil, resolver.DefaultThreshold)
	api := New(stats, movies, fakeParticipants{{ID: 5, DisplayName: "Ann"}}, zerolog.Nop())
	r := chi.NewRouter()
	api.Routes(r)
	return r
}

func get(t *testing.T, h http.Handler, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestStats(t *testing.T) {
	h := newRouter(fakeStats{stats: users.Stats{Users: 3, Visits: 10, OptedIn: 1, Top: []domain.User{{ID: 1, VisitCount: 7}}}})
	rec, body := get(t, h, "/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 3, body["users"])
	require.EqualValues(t, 10, body["visits"])
	require.Len(t, body["top"], 1)
}

func TestStatsFailure(t *testing.T) {
	h := newRouter(fakeStats{err: errors.New("db down")})
	rec, body := get(t, h, "/stats")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, body["error"], "db down")
}

func TestResolve(t *testing.T) {
	h := newRouter(fakeStats{})

	rec, body := get(t, h, "/movies/resolve?q=101")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, body["found"])
	require.Equal(t, "code", body["step"])

	rec, body = get(t, h, "/movies/resolve?q="+url.QueryEscape("zzzzzz qqqq"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, false, body["found"])

	rec, _ = get(t, h, "/movies/resolve")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestParticipants(t *testing.T) {
	rec, body := get(t, newRouter(fakeStats{}), "/raffle/participants")
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 1, body["count"])
}

func TestMountRequiresAdmin(t *testing.T) {
	const token = "123:abc"
	api := New(fakeStats{}, resolver.New(nil, nil, resolver.DefaultThreshold), fakeParticipants{}, zerolog.Nop())
	r := chi.NewRouter()
	api.Mount(r, token, domain.NewAdmins([]int64{42}))

	sign := func(userID int64) string {
		values := url.Values{}
		values.Set("auth_date", strconv.FormatInt(time.Now().Unix(), 10))
		values.Set("user", `{"id":`+strconv.FormatInt(userID, 10)+`}`)
		values.Set("hash", httpinfra.SignInitData(values, token))
		return values.Encode()
	}

	for userID, status := range map[int64]int{42: http.StatusOK, 7: http.StatusForbidden} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
		req.Header.Set("X-Telegram-Init-Data", sign(userID))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		require.Equal(t, status, rec.Code, "user %d", userID)
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
