package repo

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tg-movie-bot/internal/domain"
	"tg-movie-bot/internal/infra/db"
)

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	ctx := context.Background()
	conn, err := db.OpenSQLite(ctx, filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	store := NewSQLite(conn)
	require.NoError(t, store.EnsureSchema(ctx))
	return store
}

func TestSQLiteMovies(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	n, err := store.UpsertMovies(ctx, []domain.Movie{
		{Code: "102", Title: "The Matrix"},
		{Code: "101", Title: "Inception", Link: "https://example.com/101"},
	})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	_, err = store.UpsertMovies(ctx, []domain.Movie{{Code: "102", Title: "The Matrix Reloaded"}})
	require.NoError(t, err)

	movies, err := store.ListMovies(ctx)
	require.NoError(t, err)
	require.Len(t, movies, 2)
	require.Equal(t, "101", movies[0].Code)
	require.Equal(t, "The Matrix Reloaded", movies[1].Title)
}

func TestSQLiteUserVersioning(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()
	now := time.Date(2026, time.October, 1, 12, 0, 0, 0, time.UTC)

	_, err := store.GetUser(ctx, 1)
	require.ErrorIs(t, err, domain.ErrNotFound)

	user := domain.User{ID: 1, DisplayName: "Alice", VisitCount: 1, LastActive: &now, CreatedAt: now,
		State: domain.AwaitingSupportText(domain.SupportTopicRequest)}
	version, err := store.PutUser(ctx, user)
	require.NoError(t, err)
	require.Equal(t, int64(1), version)

	_, err = store.PutUser(ctx, user)
	require.ErrorIs(t, err, domain.ErrConflict)

	stored, err := store.GetUser(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "Alice", stored.DisplayName)
	require.Equal(t, domain.ConversationAwaitingSupport, stored.State.Kind)
	require.Equal(t, domain.SupportTopicRequest, stored.State.Topic)
	require.True(t, stored.LastActive.Equal(now))

	stored.VisitCount = 2
	stored.RaffleOptIn = true
	version, err = store.PutUser(ctx, stored)
	require.NoError(t, err)
	require.Equal(t, int64(2), version)

	stale := stored
	stale.VisitCount = 10
	_, err = store.PutUser(ctx, stale)
	require.ErrorIs(t, err, domain.ErrConflict)

	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.Equal(t, 2, users[0].VisitCount)
	require.True(t, users[0].RaffleOptIn)

	require.NoError(t, store.DeleteUser(ctx, 1))
	require.ErrorIs(t, store.DeleteUser(ctx, 1), domain.ErrNotFound)
}

func TestSQLiteReactions(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	rec, err := store.GetReactions(ctx, "101")
	require.NoError(t, err)
	require.Zero(t, rec.Version)
	require.Zero(t, rec.Counts()[domain.ReactionLike])

	rec.Members[domain.ReactionLike][5] = struct{}{}
	rec.Members[domain.ReactionHeart][6] = struct{}{}
	version, err := store.PutReactions(ctx, rec)
	require.NoError(t, err)
	require.Equal(t, int64(1), version)

	_, err = store.PutReactions(ctx, rec)
	require.ErrorIs(t, err, domain.ErrConflict)

	loaded, err := store.GetReactions(ctx, "101")
	require.NoError(t, err)
	require.True(t, loaded.Has(domain.ReactionLike, 5))
	require.True(t, loaded.Has(domain.ReactionHeart, 6))
	require.Equal(t, 1, loaded.Counts()[domain.ReactionLike])
	require.Equal(t, int64(1), loaded.Version)
}

func TestSQLiteTickets(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()
	base := time.Date(2026, time.October, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.CreateTicket(ctx, domain.Ticket{ID: "a", UserID: 1, Topic: domain.SupportTopicRequest, Message: "first", CreatedAt: base}))
	require.NoError(t, store.CreateTicket(ctx, domain.Ticket{ID: "b", UserID: 1, Topic: domain.SupportTopicWinnerClaim, Message: "second", CreatedAt: base.Add(time.Minute)}))

	latest, err := store.LatestOpenTicket(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "b", latest.ID)
	require.Equal(t, domain.SupportTopicWinnerClaim, latest.Topic)

	require.NoError(t, store.AnswerTicket(ctx, "b", "ok", base.Add(time.Hour)))
	require.ErrorIs(t, store.AnswerTicket(ctx, "b", "again", base.Add(2*time.Hour)), domain.ErrNotFound)

	open, err := store.ListOpenTickets(ctx, 10)
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Equal(t, "a", open[0].ID)
	require.Nil(t, open[0].AdminReply)

	_, err = store.LatestOpenTicket(ctx, 2)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSQLiteRaffleDraws(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	_, err := store.LatestDraw(ctx)
	require.ErrorIs(t, err, domain.ErrNotFound)

	draw := domain.RaffleDraw{ID: "d1", Period: "2026-08", WinnerID: 2, Participants: []int64{1, 2, 3},
		DrawnAt: time.Date(2026, time.September, 1, 12, 0, 0, 0, time.UTC)}
	require.NoError(t, store.SaveDraw(ctx, draw))
	require.ErrorIs(t, store.SaveDraw(ctx, draw), domain.ErrConflict)
	require.NoError(t, store.SaveDraw(ctx, domain.RaffleDraw{ID: "d2", Period: "2026-09", WinnerID: 1, Participants: []int64{1},
		DrawnAt: time.Date(2026, time.October, 1, 12, 0, 0, 0, time.UTC)}))

	got, err := store.GetDraw(ctx, "2026-08")
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2, 3}, got.Participants)
	require.Equal(t, int64(2), got.WinnerID)

	latest, err := store.LatestDraw(ctx)
	require.NoError(t, err)
	require.Equal(t, "d2", latest.ID)
}
