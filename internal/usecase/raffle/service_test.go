package raffle

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"tg-movie-bot/internal/domain"
)

type fakeUsers struct {
	mu      sync.Mutex
	optedIn map[int64]bool
	onList  func()
}

func newFakeUsers(ids ...int64) *fakeUsers {
	f := &fakeUsers{optedIn: make(map[int64]bool)}
	for _, id := range ids {
		f.optedIn[id] = true
	}
	return f
}

func (f *fakeUsers) RaffleParticipants(context.Context) ([]domain.User, error) {
	if f.onList != nil {
		f.onList()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.User
	for id, in := range f.optedIn {
		if in {
			out = append(out, domain.User{ID: id, RaffleOptIn: true})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeUsers) OptIntoRaffle(_ context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.optedIn[id] {
		return false, nil
	}
	f.optedIn[id] = true
	return true, nil
}

func (f *fakeUsers) ClearRaffleOptIn(_ context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	was := f.optedIn[id]
	f.optedIn[id] = false
	return was, nil
}

type memoryDraws struct {
	mu      sync.Mutex
	draws   map[string]domain.RaffleDraw
	saveErr error
}

func newMemoryDraws() *memoryDraws {
	return &memoryDraws{draws: make(map[string]domain.RaffleDraw)}
}

func (m *memoryDraws) SaveDraw(_ context.Context, d domain.RaffleDraw) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	if _, ok := m.draws[d.Period]; ok {
		return domain.ErrConflict
	}
	m.draws[d.Period] = d
	return nil
}

func (m *memoryDraws) GetDraw(_ context.Context, period string) (domain.RaffleDraw, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.draws[period]
	if !ok {
		return domain.RaffleDraw{}, domain.ErrNotFound
	}
	return d, nil
}

func (m *memoryDraws) LatestDraw(context.Context) (domain.RaffleDraw, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest domain.RaffleDraw
	for _, d := range m.draws {
		if d.Period > latest.Period {
			latest = d
		}
	}
	if latest.Period == "" {
		return domain.RaffleDraw{}, domain.ErrNotFound
	}
	return latest, nil
}

type recordingAnnouncer struct {
	winners []domain.RaffleDraw
	empty   []string
	err     error
}

func (r *recordingAnnouncer) AnnounceWinner(_ context.Context, d domain.RaffleDraw) error {
	r.winners = append(r.winners, d)
	return r.err
}

func (r *recordingAnnouncer) AnnounceNoParticipants(_ context.Context, period string) error {
	r.empty = append(r.empty, period)
	return r.err
}

func TestDrawWithoutParticipants(t *testing.T) {
	ann := &recordingAnnouncer{}
	draws := newMemoryDraws()
	svc := NewService(newFakeUsers(), draws, ann, zerolog.Nop())

	out, err := svc.Draw(context.Background(), "2026-09")
	require.NoError(t, err)
	require.Equal(t, StatusNoParticipants, out.Status)
	require.Equal(t, []string{"2026-09"}, ann.empty)
	require.Empty(t, ann.winners)
	stored, err := draws.GetDraw(context.Background(), "2026-09")
	require.NoError(t, err)
	require.False(t, stored.HasWinner())
	require.Empty(t, stored.Participants)
	require.Equal(t, PhaseIdle, svc.Phase())

	out, err = svc.Draw(context.Background(), "2026-09")
	require.NoError(t, err)
	require.Equal(t, StatusAlreadyDrawn, out.Status)
	require.False(t, out.Draw.HasWinner())
	require.Len(t, ann.empty, 1)
}

func TestEmptyPeriodKeepsLateOptInsForNextCycle(t *testing.T) {
	users := newFakeUsers()
	draws := newMemoryDraws()
	svc := NewService(users, draws, &recordingAnnouncer{}, zerolog.Nop())
	ctx := context.Background()

	out, err := svc.Draw(ctx, "2026-09")
	require.NoError(t, err)
	require.Equal(t, StatusNoParticipants, out.Status)

	_, err = svc.Join(ctx, 7)
	require.NoError(t, err)

	out, err = svc.Draw(ctx, "2026-09")
	require.NoError(t, err)
	require.Equal(t, StatusAlreadyDrawn, out.Status)
	list, err := svc.Participants(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	out, err = svc.Draw(ctx, "2026-10")
	require.NoError(t, err)
	require.Equal(t, StatusDrawn, out.Status)
	require.Equal(t, int64(7), out.Draw.WinnerID)
}

func TestDrawPicksParticipantAndClearsOptIns(t *testing.T) {
	for i := 0; i < 3; i++ {
		users := newFakeUsers(10, 20, 30)
		ann := &recordingAnnouncer{}
		svc := NewService(users, newMemoryDraws(), ann, zerolog.Nop())
		idx := i
		svc.pick = func(n int) (int, error) {
			require.Equal(t, 3, n)
			return idx, nil
		}

		out, err := svc.Draw(context.Background(), "2026-09")
		require.NoError(t, err)
		require.Equal(t, StatusDrawn, out.Status)
		require.Equal(t, []int64{10, 20, 30}[i], out.Draw.WinnerID)
		require.ElementsMatch(t, []int64{10, 20, 30}, out.Draw.Participants)
		require.Len(t, ann.winners, 1)

		left, err := users.RaffleParticipants(context.Background())
		require.NoError(t, err)
		require.Empty(t, left)
	}
}

func TestDrawWithCryptoRandStaysInSet(t *testing.T) {
	for i := 0; i < 20; i++ {
		svc := NewService(newFakeUsers(1, 2, 3), newMemoryDraws(), &recordingAnnouncer{}, zerolog.Nop())
		out, err := svc.Draw(context.Background(), "2026-09")
		require.NoError(t, err)
		require.Contains(t, []int64{1, 2, 3}, out.Draw.WinnerID)
	}
}

func TestDrawIsIdempotentPerPeriod(t *testing.T) {
	users := newFakeUsers(1, 2)
	ann := &recordingAnnouncer{}
	svc := NewService(users, newMemoryDraws(), ann, zerolog.Nop())
	ctx := context.Background()

	first, err := svc.Draw(ctx, "2026-09")
	require.NoError(t, err)
	require.Equal(t, StatusDrawn, first.Status)

	_, err = svc.Join(ctx, 3)
	require.NoError(t, err)

	second, err := svc.Draw(ctx, "2026-09")
	require.NoError(t, err)
	require.Equal(t, StatusAlreadyDrawn, second.Status)
	require.Equal(t, first.Draw.ID, second.Draw.ID)
	require.Len(t, ann.winners, 1)

	left, err := svc.Participants(ctx)
	require.NoError(t, err)
	require.Len(t, left, 1)
}

func TestAnnouncementFailureKeepsDraw(t *testing.T) {
	users := newFakeUsers(7)
	draws := newMemoryDraws()
	svc := NewService(users, draws, &recordingAnnouncer{err: errors.New("blocked")}, zerolog.Nop())

	out, err := svc.Draw(context.Background(), "2026-09")
	require.NoError(t, err)
	require.Equal(t, int64(7), out.Draw.WinnerID)

	stored, err := svc.LastDraw(context.Background())
	require.NoError(t, err)
	require.Equal(t, out.Draw.ID, stored.ID)
	left, _ := users.RaffleParticipants(context.Background())
	require.Empty(t, left)
}

func TestSaveFailureKeepsOptIns(t *testing.T) {
	users := newFakeUsers(1, 2)
	draws := newMemoryDraws()
	draws.saveErr = errors.New("disk full")
	ann := &recordingAnnouncer{}
	svc := NewService(users, draws, ann, zerolog.Nop())

	_, err := svc.Draw(context.Background(), "2026-09")
	require.Error(t, err)
	left, _ := users.RaffleParticipants(context.Background())
	require.Len(t, left, 2)
	require.Empty(t, ann.winners)
}

func TestJoinRejectedWhileDrawing(t *testing.T) {
	users := newFakeUsers(1)
	svc := NewService(users, newMemoryDraws(), &recordingAnnouncer{}, zerolog.Nop())
	var joinErr error
	users.onList = func() {
		_, joinErr = svc.Join(context.Background(), 2)
	}

	_, err := svc.Draw(context.Background(), "2026-09")
	require.NoError(t, err)
	require.ErrorIs(t, joinErr, ErrDrawInProgress)
}

func TestJoinMovesToCollecting(t *testing.T) {
	svc := NewService(newFakeUsers(), newMemoryDraws(), &recordingAnnouncer{}, zerolog.Nop())
	require.Equal(t, PhaseIdle, svc.Phase())

	changed, err := svc.Join(context.Background(), 5)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, PhaseCollecting, svc.Phase())

	changed, err = svc.Join(context.Background(), 5)
	require.NoError(t, err)
	require.False(t, changed)
}

func TestPeriods(t *testing.T) {
	now := time.Date(2026, time.January, 15, 10, 0, 0, 0, time.UTC)
	require.Equal(t, "2026-01", PeriodOf(now))
	require.Equal(t, "2025-12", PreviousPeriod(now))
	require.Equal(t, "2026-02", PreviousPeriod(time.Date(2026, time.March, 31, 0, 0, 0, 0, time.UTC)))
}
