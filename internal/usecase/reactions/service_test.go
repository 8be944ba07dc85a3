package reactions

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"tg-movie-bot/internal/domain"
)

type memoryRepo struct {
	mu        sync.Mutex
	records   map[string]domain.ReactionRecord
	conflicts int
	puts      int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{records: make(map[string]domain.ReactionRecord)}
}

func (m *memoryRepo) GetReactions(_ context.Context, code string) (domain.ReactionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[code]
	if !ok {
		return domain.ReactionRecord{}, domain.ErrNotFound
	}
	return clone(rec), nil
}

func (m *memoryRepo) PutReactions(_ context.Context, rec domain.ReactionRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conflicts > 0 {
		m.conflicts--
		return 0, domain.ErrConflict
	}
	if m.records[rec.MovieCode].Version != rec.Version {
		return 0, domain.ErrConflict
	}
	m.puts++
	rec = clone(rec)
	rec.Version++
	m.records[rec.MovieCode] = rec
	return rec.Version, nil
}

func clone(rec domain.ReactionRecord) domain.ReactionRecord {
	out := domain.NewReactionRecord(rec.MovieCode)
	out.Version = rec.Version
	for kind, members := range rec.Members {
		out.Members[kind] = make(map[int64]struct{}, len(members))
		for id := range members {
			out.Members[kind][id] = struct{}{}
		}
	}
	return out
}

func TestToggleTwiceRestoresState(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	before, err := svc.Counts(ctx, "101")
	require.NoError(t, err)

	res, err := svc.Toggle(ctx, "101", 1, domain.ReactionLike)
	require.NoError(t, err)
	require.True(t, res.Active)
	require.Equal(t, 1, res.Counts[domain.ReactionLike])

	res, err = svc.Toggle(ctx, "101", 1, domain.ReactionLike)
	require.NoError(t, err)
	require.False(t, res.Active)
	require.Equal(t, before, res.Counts)
}

func TestToggleIsExclusivePerUser(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	_, err := svc.Toggle(ctx, "101", 1, domain.ReactionLike)
	require.NoError(t, err)
	res, err := svc.Toggle(ctx, "101", 1, domain.ReactionDislike)
	require.NoError(t, err)

	require.Equal(t, 0, res.Counts[domain.ReactionLike])
	require.Equal(t, 1, res.Counts[domain.ReactionDislike])
	rec := repo.records["101"]
	require.True(t, rec.Has(domain.ReactionDislike, 1))
	require.False(t, rec.Has(domain.ReactionLike, 1))
}

func TestToggleKeepsOtherUsers(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	_, err := svc.Toggle(ctx, "101", 1, domain.ReactionHeart)
	require.NoError(t, err)
	res, err := svc.Toggle(ctx, "101", 2, domain.ReactionHeart)
	require.NoError(t, err)
	require.Equal(t, 2, res.Counts[domain.ReactionHeart])

	res, err = svc.Toggle(ctx, "101", 1, domain.ReactionHeart)
	require.NoError(t, err)
	require.Equal(t, 1, res.Counts[domain.ReactionHeart])
}

func TestToggleRejectsInvalidInput(t *testing.T) {
	svc := NewService(newMemoryRepo())
	_, err := svc.Toggle(context.Background(), "101", 1, domain.ReactionKind("wow"))
	require.ErrorIs(t, err, ErrUnknownReaction)
	_, err = svc.Toggle(context.Background(), " ", 1, domain.ReactionLike)
	require.ErrorIs(t, err, ErrEmptyMovieCode)
}

func TestToggleRetriesOnConflict(t *testing.T) {
	repo := newMemoryRepo()
	repo.conflicts = 2
	svc := NewService(repo)

	res, err := svc.Toggle(context.Background(), "101", 1, domain.ReactionLaugh)
	require.NoError(t, err)
	require.Equal(t, 1, res.Counts[domain.ReactionLaugh])
	require.Equal(t, 1, repo.puts)
}

func TestToggleGivesUpAfterPersistentConflict(t *testing.T) {
	repo := newMemoryRepo()
	repo.conflicts = maxWriteAttempts
	svc := NewService(repo)

	_, err := svc.Toggle(context.Background(), "101", 1, domain.ReactionLaugh)
	require.True(t, errors.Is(err, domain.ErrConflict))
}

func TestToggleConcurrentUsersLoseNoUpdates(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	var wg sync.WaitGroup
	for i := int64(1); i <= 40; i++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			if _, err := svc.Toggle(context.Background(), "101", userID, domain.ReactionLike); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	counts, err := svc.Counts(context.Background(), "101")
	require.NoError(t, err)
	require.Equal(t, 40, counts[domain.ReactionLike])
}
