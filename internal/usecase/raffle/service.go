package raffle

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tg-movie-bot/internal/domain"
	"tg-movie-bot/internal/infra/metrics"
)

// ErrDrawInProgress возвращается, если запись на розыгрыш пришла во время жеребьёвки.
var ErrDrawInProgress = errors.New("идёт розыгрыш")

// Phase — этап цикла розыгрыша.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseCollecting
	PhaseDrawing
	PhaseAnnouncing
)

func (p Phase) String() string {
	switch p {
	case PhaseCollecting:
		return "collecting"
	case PhaseDrawing:
		return "drawing"
	case PhaseAnnouncing:
		return "announcing"
	default:
		return "idle"
	}
}

// Status описывает исход жеребьёвки.
type Status string

const (
	StatusDrawn          Status = "drawn"
	StatusNoParticipants Status = "no_participants"
	StatusAlreadyDrawn   Status = "already_drawn"
)

// Outcome — результат Draw.
type Outcome struct {
	Status Status
	Draw   domain.RaffleDraw
}

// Participants — справочник пользователей в части розыгрыша.
type Participants interface {
	RaffleParticipants(ctx context.Context) ([]domain.User, error)
	OptIntoRaffle(ctx context.Context, userID int64) (bool, error)
	ClearRaffleOptIn(ctx context.Context, userID int64) (bool, error)
}

// Announcer сообщает результат розыгрыша. Ошибки только логируются.
type Announcer interface {
	AnnounceWinner(ctx context.Context, draw domain.RaffleDraw) error
	AnnounceNoParticipants(ctx context.Context, period string) error
}

// Service проводит ежемесячный розыгрыш среди записавшихся пользователей.
type Service struct {
	users     Participants
	draws     domain.RaffleRepo
	announcer Announcer
	log       zerolog.Logger

	mu    sync.Mutex
	phase atomic.Int32
	pick  func(n int) (int, error)
	now   func() time.Time
}

// NewService создаёт сервис розыгрыша.
func NewService(users Participants, draws domain.RaffleRepo, announcer Announcer, log zerolog.Logger) *Service {
	return &Service{
		users:     users,
		draws:     draws,
		announcer: announcer,
		log:       log,
		pick:      cryptoPick,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Phase возвращает текущий этап цикла в этом процессе.
func (s *Service) Phase() Phase {
	return Phase(s.phase.Load())
}

// Join записывает пользователя на розыгрыш. Возвращает false, если он уже участвует.
func (s *Service) Join(ctx context.Context, userID int64) (bool, error) {
	switch s.Phase() {
	case PhaseDrawing, PhaseAnnouncing:
		return false, ErrDrawInProgress
	}
	changed, err := s.users.OptIntoRaffle(ctx, userID)
	if err != nil {
		return false, err
	}
	s.phase.CompareAndSwap(int32(PhaseIdle), int32(PhaseCollecting))
	return changed, nil
}

// Participants возвращает текущих участников.
func (s *Service) Participants(ctx context.Context) ([]domain.User, error) {
	return s.users.RaffleParticipants(ctx)
}

// LastDraw возвращает последний проведённый розыгрыш.
func (s *Service) LastDraw(ctx context.Context) (domain.RaffleDraw, error) {
	return s.draws.LatestDraw(ctx)
}

// Draw проводит жеребьёвку за период. Победитель сохраняется до того, как снимаются
// отметки участия; повторный вызов за тот же период возвращает сохранённый результат.
func (s *Service) Draw(ctx context.Context, period string) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.draws.GetDraw(ctx, period)
	if err == nil {
		return Outcome{Status: StatusAlreadyDrawn, Draw: existing}, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return Outcome{}, fmt.Errorf("проверка розыгрыша %s: %w", period, err)
	}

	s.phase.Store(int32(PhaseDrawing))
	participants, err := s.users.RaffleParticipants(ctx)
	if err != nil {
		s.phase.Store(int32(PhaseCollecting))
		return Outcome{}, fmt.Errorf("участники розыгрыша: %w", err)
	}
	if len(participants) == 0 {
		return s.closeEmpty(ctx, period)
	}

	idx, err := s.pick(len(participants))
	if err != nil {
		s.phase.Store(int32(PhaseCollecting))
		return Outcome{}, fmt.Errorf("выбор победителя: %w", err)
	}
	ids := make([]int64, 0, len(participants))
	for _, p := range participants {
		ids = append(ids, p.ID)
	}
	draw := domain.RaffleDraw{
		ID:           uuid.NewString(),
		Period:       period,
		WinnerID:     participants[idx].ID,
		Participants: ids,
		DrawnAt:      s.now(),
	}
	if err := s.draws.SaveDraw(ctx, draw); err != nil {
		s.phase.Store(int32(PhaseCollecting))
		if errors.Is(err, domain.ErrConflict) {
			if stored, getErr := s.draws.GetDraw(ctx, period); getErr == nil {
				return Outcome{Status: StatusAlreadyDrawn, Draw: stored}, nil
			}
		}
		return Outcome{}, fmt.Errorf("сохранение розыгрыша: %w", err)
	}

	s.phase.Store(int32(PhaseAnnouncing))
	for _, id := range ids {
		if _, err := s.users.ClearRaffleOptIn(ctx, id); err != nil && !errors.Is(err, domain.ErrNotFound) {
			s.log.Error().Err(err).Int64("user", id).Msg("raffle: не удалось сбросить участие")
		}
	}
	metrics.IncRaffleDraw(string(StatusDrawn))
	if err := s.announcer.AnnounceWinner(ctx, draw); err != nil {
		s.log.Error().Err(err).Int64("winner", draw.WinnerID).Msg("raffle: не удалось уведомить победителя")
	}
	s.phase.Store(int32(PhaseIdle))
	s.log.Info().Str("period", period).Int64("winner", draw.WinnerID).Int("participants", len(ids)).Msg("raffle: победитель выбран")
	return Outcome{Status: StatusDrawn, Draw: draw}, nil
}

// closeEmpty записывает период без участников, чтобы он не разыгрывался повторно.
func (s *Service) closeEmpty(ctx context.Context, period string) (Outcome, error) {
	draw := domain.RaffleDraw{ID: uuid.NewString(), Period: period, Participants: []int64{}, DrawnAt: s.now()}
	if err := s.draws.SaveDraw(ctx, draw); err != nil {
		s.phase.Store(int32(PhaseCollecting))
		if errors.Is(err, domain.ErrConflict) {
			if stored, getErr := s.draws.GetDraw(ctx, period); getErr == nil {
				return Outcome{Status: StatusAlreadyDrawn, Draw: stored}, nil
			}
		}
		return Outcome{}, fmt.Errorf("сохранение пустого розыгрыша: %w", err)
	}
	s.phase.Store(int32(PhaseIdle))
	metrics.IncRaffleDraw(string(StatusNoParticipants))
	if err := s.announcer.AnnounceNoParticipants(ctx, period); err != nil {
		s.log.Error().Err(err).Str("period", period).Msg("raffle: не удалось сообщить об отсутствии участников")
	}
	return Outcome{Status: StatusNoParticipants, Draw: draw}, nil
}

func cryptoPick(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}

// PeriodOf возвращает период розыгрыша (YYYY-MM) для момента времени.
func PeriodOf(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// PreviousPeriod возвращает предыдущий месяц относительно t.
func PreviousPeriod(t time.Time) string {
	t = t.UTC()
	firstOfMonth := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return PeriodOf(firstOfMonth.AddDate(0, -1, 0))
}
