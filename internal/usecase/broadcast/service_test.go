package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"tg-movie-bot/internal/domain"
)

type stubRecipients struct {
	mu        sync.Mutex
	users     []domain.User
	forgotten []int64
}

func (s *stubRecipients) ListAll(context.Context) ([]domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.User(nil), s.users...), nil
}

func (s *stubRecipients) Forget(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forgotten = append(s.forgotten, id)
	return nil
}

type stubNotifier struct {
	mu       sync.Mutex
	sent     map[int64][]string
	failures map[int64]error
	delay    time.Duration
	inFlight atomic.Int32
	peak     atomic.Int32
}

func newStubNotifier() *stubNotifier {
	return &stubNotifier{sent: make(map[int64][]string), failures: make(map[int64]error)}
}

func (n *stubNotifier) Notify(ctx context.Context, chatID int64, text string) error {
	cur := n.inFlight.Add(1)
	defer n.inFlight.Add(-1)
	for {
		peak := n.peak.Load()
		if cur <= peak || n.peak.CompareAndSwap(peak, cur) {
			break
		}
	}
	if n.delay > 0 {
		select {
		case <-time.After(n.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.failures[chatID]; err != nil {
		return err
	}
	n.sent[chatID] = append(n.sent[chatID], text)
	return nil
}

type memoryQueue struct {
	jobs []domain.BroadcastJob
}

func (q *memoryQueue) Enqueue(_ context.Context, job domain.BroadcastJob) error {
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *memoryQueue) Receive(ctx context.Context) (domain.BroadcastJob, domain.AckFunc, error) {
	<-ctx.Done()
	return domain.BroadcastJob{}, nil, ctx.Err()
}

func users(ids ...int64) []domain.User {
	out := make([]domain.User, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.User{ID: id})
	}
	return out
}

func TestRequestRejectsEmptyText(t *testing.T) {
	svc := NewService(&memoryQueue{}, &stubRecipients{}, newStubNotifier(), Options{}, zerolog.Nop())
	_, err := svc.Request(context.Background(), 1, 1, "  \n")
	require.ErrorIs(t, err, ErrEmptyText)
}

func TestRequestEnqueuesJob(t *testing.T) {
	q := &memoryQueue{}
	svc := NewService(q, &stubRecipients{}, newStubNotifier(), Options{}, zerolog.Nop())
	job, err := svc.Request(context.Background(), 7, 70, " Новинки недели ")
	require.NoError(t, err)
	require.Len(t, q.jobs, 1)
	require.Equal(t, job.ID, q.jobs[0].ID)
	require.Equal(t, "Новинки недели", q.jobs[0].Text)
	require.Equal(t, int64(70), q.jobs[0].ReplyChatID)
}

func TestDeliverContinuesAfterFailures(t *testing.T) {
	recipients := &stubRecipients{users: users(1, 2, 3, 4)}
	notifier := newStubNotifier()
	notifier.failures[2] = errors.New("boom")
	notifier.failures[3] = fmt.Errorf("send: %w", domain.ErrRecipientBlocked)
	svc := NewService(nil, recipients, notifier, Options{Concurrency: 2}, zerolog.Nop())

	report, err := svc.Deliver(context.Background(), domain.BroadcastJob{ID: "j", Text: "hi"})
	require.NoError(t, err)
	require.Equal(t, 4, report.Total)
	require.Equal(t, 2, report.Delivered)
	require.Len(t, report.Failed, 2)
	require.Zero(t, report.Pruned)
	require.Empty(t, recipients.forgotten)
	require.Equal(t, []string{"hi"}, notifier.sent[4])
}

func TestDeliverPrunesBlockedWhenEnabled(t *testing.T) {
	recipients := &stubRecipients{users: users(1, 2)}
	notifier := newStubNotifier()
	notifier.failures[2] = fmt.Errorf("send: %w", domain.ErrRecipientBlocked)
	svc := NewService(nil, recipients, notifier, Options{PruneBlocked: true}, zerolog.Nop())

	report, err := svc.Deliver(context.Background(), domain.BroadcastJob{ID: "j", Text: "hi"})
	require.NoError(t, err)
	require.Equal(t, 1, report.Pruned)
	require.Equal(t, []int64{2}, recipients.forgotten)
}

func TestDeliverRespectsConcurrencyLimit(t *testing.T) {
	ids := make([]int64, 0, 20)
	for i := int64(1); i <= 20; i++ {
		ids = append(ids, i)
	}
	notifier := newStubNotifier()
	notifier.delay = 5 * time.Millisecond
	svc := NewService(nil, &stubRecipients{users: users(ids...)}, notifier, Options{Concurrency: 3}, zerolog.Nop())

	report, err := svc.Deliver(context.Background(), domain.BroadcastJob{ID: "j", Text: "hi"})
	require.NoError(t, err)
	require.Equal(t, 20, report.Delivered)
	require.LessOrEqual(t, notifier.peak.Load(), int32(3))
}

func TestDeliverTimesOutSlowRecipient(t *testing.T) {
	notifier := newStubNotifier()
	notifier.delay = time.Second
	svc := NewService(nil, &stubRecipients{users: users(1)}, notifier, Options{Timeout: 10 * time.Millisecond}, zerolog.Nop())

	report, err := svc.Deliver(context.Background(), domain.BroadcastJob{ID: "j", Text: "hi"})
	require.NoError(t, err)
	require.Len(t, report.Failed, 1)
	require.ErrorIs(t, report.Failed[0].Err, context.DeadlineExceeded)
}

func TestProcessReportsToAdmin(t *testing.T) {
	notifier := newStubNotifier()
	svc := NewService(nil, &stubRecipients{users: users(1, 2)}, notifier, Options{}, zerolog.Nop())

	_, err := svc.Process(context.Background(), domain.BroadcastJob{ID: "j", Text: "hi", ReplyChatID: 500})
	require.NoError(t, err)
	require.Equal(t, []string{"Рассылка завершена: доставлено 2 из 2"}, notifier.sent[500])
}

func TestWorkerStopsOnCancel(t *testing.T) {
	svc := NewService(&memoryQueue{}, &stubRecipients{}, newStubNotifier(), Options{}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, svc.Worker(ctx), context.Canceled)
}
