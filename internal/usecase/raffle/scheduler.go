package raffle

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"tg-movie-bot/internal/domain"
)

const drawOnceTTL = 45 * 24 * time.Hour

// Drawer — то, что планировщик вызывает в момент розыгрыша.
type Drawer interface {
	Draw(ctx context.Context, period string) (Outcome, error)
}

// Scheduler раз в месяц запускает розыгрыш за прошедший месяц.
type Scheduler struct {
	drawer Drawer
	once   domain.Cache
	day    int
	hour   int
	log    zerolog.Logger
}

// NewScheduler создаёт планировщик. once может быть nil: повтор за период отсекает хранилище.
func NewScheduler(drawer Drawer, once domain.Cache, day, hour int, log zerolog.Logger) *Scheduler {
	return &Scheduler{drawer: drawer, once: once, day: day, hour: hour, log: log}
}

// Due сообщает, пора ли разыгрывать, и за какой период.
func (s *Scheduler) Due(now time.Time) (string, bool) {
	now = now.UTC()
	if now.Day() < s.day || (now.Day() == s.day && now.Hour() < s.hour) {
		return "", false
	}
	return PreviousPeriod(now), true
}

// Tick выполняет одну проверку расписания.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) error {
	period, ok := s.Due(now)
	if !ok {
		return nil
	}
	run := func() error {
		out, err := s.drawer.Draw(ctx, period)
		if err != nil {
			return err
		}
		s.log.Info().Str("period", period).Str("status", string(out.Status)).Msg("scheduler: розыгрыш обработан")
		return nil
	}
	if s.once == nil {
		return run()
	}
	return s.once.Once(ctx, "raffle:draw:"+period, drawOnceTTL, run)
}

// Run проверяет расписание с заданным интервалом до отмены контекста.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := s.Tick(ctx, time.Now()); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Error().Err(err).Msg("scheduler: ошибка розыгрыша")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
