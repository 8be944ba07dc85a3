package broadcast

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"tg-movie-bot/internal/domain"
	"tg-movie-bot/internal/infra/metrics"
)

// ErrEmptyText — рассылка без текста.
var ErrEmptyText = errors.New("пустой текст рассылки")

// Recipients — справочник получателей рассылки.
type Recipients interface {
	ListAll(ctx context.Context) ([]domain.User, error)
	Forget(ctx context.Context, userID int64) error
}

// Options задаёт параметры доставки.
type Options struct {
	Concurrency  int
	Timeout      time.Duration
	PruneBlocked bool
}

// Failure описывает недоставленное сообщение.
type Failure struct {
	UserID int64
	Err    error
}

// Report — итог рассылки.
type Report struct {
	JobID     string
	Total     int
	Delivered int
	Failed    []Failure
	Pruned    int
}

// Summary формирует текст отчёта для администратора.
func (r Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Рассылка завершена: доставлено %d из %d", r.Delivered, r.Total)
	if len(r.Failed) > 0 {
		fmt.Fprintf(&b, ", ошибок: %d", len(r.Failed))
	}
	if r.Pruned > 0 {
		fmt.Fprintf(&b, ", удалено заблокировавших: %d", r.Pruned)
	}
	return b.String()
}

// Service ставит рассылки в очередь и доставляет их.
type Service struct {
	queue    domain.BroadcastQueue
	users    Recipients
	notifier domain.Notifier
	opts     Options
	log      zerolog.Logger
	now      func() time.Time
}

// NewService создаёт сервис рассылки. Если queue == nil, рассылка выполняется в фоне этого процесса.
func NewService(queue domain.BroadcastQueue, users Recipients, notifier domain.Notifier, opts Options, log zerolog.Logger) *Service {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Service{
		queue:    queue,
		users:    users,
		notifier: notifier,
		opts:     opts,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Request регистрирует рассылку от администратора.
func (s *Service) Request(ctx context.Context, adminID, replyChatID int64, text string) (domain.BroadcastJob, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.BroadcastJob{}, ErrEmptyText
	}
	job := domain.BroadcastJob{
		ID:          uuid.NewString(),
		Text:        text,
		RequestedBy: adminID,
		ReplyChatID: replyChatID,
		RequestedAt: s.now(),
	}
	if s.queue == nil {
		go func() {
			if _, err := s.Process(context.WithoutCancel(ctx), job); err != nil {
				s.log.Error().Err(err).Str("job", job.ID).Msg("broadcast: рассылка не выполнена")
			}
		}()
		return job, nil
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		return domain.BroadcastJob{}, fmt.Errorf("постановка рассылки в очередь: %w", err)
	}
	return job, nil
}

// Process доставляет рассылку и отправляет отчёт запросившему администратору.
func (s *Service) Process(ctx context.Context, job domain.BroadcastJob) (Report, error) {
	report, err := s.Deliver(ctx, job)
	if err != nil {
		return report, err
	}
	if job.ReplyChatID != 0 {
		if err := s.notifier.Notify(ctx, job.ReplyChatID, report.Summary()); err != nil {
			s.log.Error().Err(err).Str("job", job.ID).Msg("broadcast: не удалось отправить отчёт")
		}
	}
	return report, nil
}

// Deliver отправляет текст всем пользователям из снимка справочника.
// Ошибка одного получателя не прерывает рассылку.
func (s *Service) Deliver(ctx context.Context, job domain.BroadcastJob) (Report, error) {
	recipients, err := s.users.ListAll(ctx)
	if err != nil {
		return Report{JobID: job.ID}, fmt.Errorf("получатели рассылки: %w", err)
	}

	report := Report{JobID: job.ID, Total: len(recipients)}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for _, user := range recipients {
		userID := user.ID
		g.Go(func() error {
			sendCtx, cancel := context.WithTimeout(gctx, s.opts.Timeout)
			err := s.notifier.Notify(sendCtx, userID, job.Text)
			cancel()

			pruned := false
			if errors.Is(err, domain.ErrRecipientBlocked) && s.opts.PruneBlocked {
				if forgetErr := s.users.Forget(gctx, userID); forgetErr != nil {
					s.log.Error().Err(forgetErr).Int64("user", userID).Msg("broadcast: не удалось удалить пользователя")
				} else {
					pruned = true
				}
			}

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				report.Delivered++
				metrics.IncBroadcastDelivery("delivered")
			case errors.Is(err, domain.ErrRecipientBlocked):
				report.Failed = append(report.Failed, Failure{UserID: userID, Err: err})
				metrics.IncBroadcastDelivery("blocked")
			default:
				report.Failed = append(report.Failed, Failure{UserID: userID, Err: err})
				metrics.IncBroadcastDelivery("failed")
			}
			if pruned {
				report.Pruned++
			}
			return nil
		})
	}
	_ = g.Wait()
	s.log.Info().Str("job", job.ID).Int("total", report.Total).Int("delivered", report.Delivered).
		Int("failed", len(report.Failed)).Int("pruned", report.Pruned).Msg("broadcast: рассылка завершена")
	return report, nil
}

// Worker обрабатывает задачи из очереди до отмены контекста.
func (s *Service) Worker(ctx context.Context) error {
	if s.queue == nil {
		return errors.New("очередь рассылок не настроена")
	}
	for {
		job, ack, err := s.queue.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Error().Err(err).Msg("broadcast: ошибка чтения очереди")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}
		_, procErr := s.Process(ctx, job)
		if procErr != nil {
			s.log.Error().Err(procErr).Str("job", job.ID).Msg("broadcast: рассылка будет повторена")
		}
		if err := ack(procErr == nil); err != nil {
			s.log.Error().Err(err).Str("job", job.ID).Msg("broadcast: не удалось подтвердить задачу")
		}
	}
}
