package users

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tg-movie-bot/internal/domain"
)

type memoryRepo struct {
	mu        sync.Mutex
	users     map[int64]domain.User
	conflicts int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{users: make(map[int64]domain.User)}
}

func (m *memoryRepo) GetUser(_ context.Context, id int64) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (m *memoryRepo) PutUser(_ context.Context, u domain.User) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conflicts > 0 {
		m.conflicts--
		return 0, domain.ErrConflict
	}
	if m.users[u.ID].Version != u.Version {
		return 0, domain.ErrConflict
	}
	u.Version++
	m.users[u.ID] = u
	return u.Version, nil
}

func (m *memoryRepo) ListUsers(context.Context) ([]domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	return out, nil
}

func (m *memoryRepo) DeleteUser(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.users, id)
	return nil
}

func TestTouchCreatesThenIncrements(t *testing.T) {
	dir := NewDirectory(newMemoryRepo())
	ctx := context.Background()

	u, err := dir.Touch(ctx, 1, "Alice")
	require.NoError(t, err)
	require.Equal(t, 1, u.VisitCount)
	require.Equal(t, "Alice", u.DisplayName)
	require.NotNil(t, u.LastActive)

	u, err = dir.Touch(ctx, 1, "Alice")
	require.NoError(t, err)
	require.Equal(t, 2, u.VisitCount)
	require.Equal(t, "Alice", u.DisplayName)
}

func TestTouchRefreshesDisplayName(t *testing.T) {
	dir := NewDirectory(newMemoryRepo())
	ctx := context.Background()

	_, err := dir.Touch(ctx, 1, "Alice")
	require.NoError(t, err)
	u, err := dir.Touch(ctx, 1, "Alice B.")
	require.NoError(t, err)
	require.Equal(t, "Alice B.", u.DisplayName)

	u, err = dir.Touch(ctx, 1, "  ")
	require.NoError(t, err)
	require.Equal(t, "Alice B.", u.DisplayName, "empty name keeps the previous one")
}

func TestTouchConcurrentLosesNoVisits(t *testing.T) {
	dir := NewDirectory(newMemoryRepo())
	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := dir.Touch(context.Background(), 7, "Bob"); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	u, err := dir.Get(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, 30, u.VisitCount)
}

func TestTouchRetriesOnConflict(t *testing.T) {
	repo := newMemoryRepo()
	repo.conflicts = 3
	dir := NewDirectory(repo)
	u, err := dir.Touch(context.Background(), 1, "Alice")
	require.NoError(t, err)
	require.Equal(t, 1, u.VisitCount)
}

func TestOptIntoRaffleReportsChange(t *testing.T) {
	dir := NewDirectory(newMemoryRepo())
	ctx := context.Background()
	_, err := dir.Touch(ctx, 1, "Alice")
	require.NoError(t, err)

	changed, err := dir.OptIntoRaffle(ctx, 1)
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = dir.OptIntoRaffle(ctx, 1)
	require.NoError(t, err)
	require.False(t, changed)

	participants, err := dir.RaffleParticipants(ctx)
	require.NoError(t, err)
	require.Len(t, participants, 1)

	changed, err = dir.ClearRaffleOptIn(ctx, 1)
	require.NoError(t, err)
	require.True(t, changed)
}

func TestOptIntoRaffleUnknownUser(t *testing.T) {
	dir := NewDirectory(newMemoryRepo())
	_, err := dir.OptIntoRaffle(context.Background(), 42)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestConversationState(t *testing.T) {
	dir := NewDirectory(newMemoryRepo())
	ctx := context.Background()

	state, err := dir.State(ctx, 1)
	require.NoError(t, err)
	require.True(t, state.IsIdle())

	_, err = dir.Touch(ctx, 1, "Alice")
	require.NoError(t, err)
	require.NoError(t, dir.SetState(ctx, 1, domain.AwaitingSupportText(domain.SupportTopicRequest)))

	state, err = dir.State(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, domain.ConversationAwaitingSupport, state.Kind)
	require.Equal(t, domain.SupportTopicRequest, state.Topic)

	previous, err := dir.ClearState(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, domain.SupportTopicRequest, previous.Topic)

	state, err = dir.State(ctx, 1)
	require.NoError(t, err)
	require.True(t, state.IsIdle())

	u, err := dir.Get(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 1, u.VisitCount, "state changes must not count as visits")
}

func TestForgetAndListAll(t *testing.T) {
	dir := NewDirectory(newMemoryRepo())
	ctx := context.Background()
	for _, id := range []int64{3, 1, 2} {
		_, err := dir.Touch(ctx, id, "")
		require.NoError(t, err)
	}
	all, err := dir.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, int64(1), all[0].ID)

	require.NoError(t, dir.Forget(ctx, 2))
	require.NoError(t, dir.Forget(ctx, 2))
	all, err = dir.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestSummarize(t *testing.T) {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	hourAgo := now.Add(-time.Hour)
	weekAgo := now.Add(-7 * 24 * time.Hour)
	yearAgo := now.Add(-365 * 24 * time.Hour)
	all := []domain.User{
		{ID: 1, VisitCount: 5, LastActive: &hourAgo, RaffleOptIn: true},
		{ID: 2, VisitCount: 9, LastActive: &weekAgo},
		{ID: 3, VisitCount: 1, LastActive: &yearAgo},
		{ID: 4, VisitCount: 9},
	}
	stats := Summarize(all, now, 2)
	require.Equal(t, 4, stats.Users)
	require.Equal(t, 24, stats.Visits)
	require.Equal(t, 1, stats.OptedIn)
	require.Equal(t, 1, stats.ActiveDay)
	require.Equal(t, 2, stats.ActiveMonth)
	require.Len(t, stats.Top, 2)
	require.Equal(t, int64(2), stats.Top[0].ID)
	require.Equal(t, int64(4), stats.Top[1].ID)
}
