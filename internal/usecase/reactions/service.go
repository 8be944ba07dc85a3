package reactions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tg-movie-bot/internal/domain"
	"tg-movie-bot/internal/infra/keylock"
	"tg-movie-bot/internal/infra/metrics"
)

const maxWriteAttempts = 5

var (
	// ErrUnknownReaction возвращается для реакции вне фиксированного набора.
	ErrUnknownReaction = errors.New("неизвестная реакция")
	// ErrEmptyMovieCode возвращается, если код фильма не указан.
	ErrEmptyMovieCode = errors.New("не указан код фильма")
)

// Result описывает состояние реакций после переключения.
type Result struct {
	Counts domain.ReactionCounts
	// Active — пользователь отмечен выбранной реакцией после переключения.
	Active bool
}

// Service ведёт учёт реакций: у пользователя не больше одной реакции на фильм.
type Service struct {
	repo  domain.ReactionRepo
	locks *keylock.Locker[string]
}

// NewService создаёт сервис реакций.
func NewService(repo domain.ReactionRepo) *Service {
	return &Service{repo: repo, locks: keylock.New[string]()}
}

// Toggle снимает остальные реакции пользователя на фильм и переключает выбранную:
// повторный выбор той же реакции снимает её. Запись сохраняется до возврата.
func (s *Service) Toggle(ctx context.Context, movieCode string, userID int64, kind domain.ReactionKind) (Result, error) {
	movieCode = strings.TrimSpace(movieCode)
	if movieCode == "" {
		return Result{}, ErrEmptyMovieCode
	}
	if !kind.Valid() {
		return Result{}, ErrUnknownReaction
	}
	unlock, err := s.locks.Lock(ctx, movieCode)
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		rec, err := s.load(ctx, movieCode)
		if err != nil {
			return Result{}, err
		}
		active := apply(&rec, userID, kind)
		version, err := s.repo.PutReactions(ctx, rec)
		if errors.Is(err, domain.ErrConflict) {
			metrics.IncVersionConflict("reactions")
			continue
		}
		if err != nil {
			return Result{}, fmt.Errorf("сохранение реакций: %w", err)
		}
		rec.Version = version
		metrics.IncReactionToggle(string(kind), active)
		return Result{Counts: rec.Counts(), Active: active}, nil
	}
	return Result{}, fmt.Errorf("сохранение реакций %s: %w", movieCode, domain.ErrConflict)
}

// Counts возвращает текущие счётчики реакций фильма.
func (s *Service) Counts(ctx context.Context, movieCode string) (domain.ReactionCounts, error) {
	rec, err := s.load(ctx, strings.TrimSpace(movieCode))
	if err != nil {
		return nil, err
	}
	return rec.Counts(), nil
}

func (s *Service) load(ctx context.Context, movieCode string) (domain.ReactionRecord, error) {
	rec, err := s.repo.GetReactions(ctx, movieCode)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NewReactionRecord(movieCode), nil
	}
	if err != nil {
		return domain.ReactionRecord{}, fmt.Errorf("чтение реакций: %w", err)
	}
	if rec.Members == nil {
		rec.Members = make(map[domain.ReactionKind]map[int64]struct{}, len(domain.ReactionKinds))
	}
	for _, k := range domain.ReactionKinds {
		if rec.Members[k] == nil {
			rec.Members[k] = make(map[int64]struct{})
		}
	}
	rec.MovieCode = movieCode
	return rec, nil
}

// apply изменяет запись и сообщает, включена ли реакция kind у пользователя.
func apply(rec *domain.ReactionRecord, userID int64, kind domain.ReactionKind) bool {
	for _, other := range domain.ReactionKinds {
		if other != kind {
			delete(rec.Members[other], userID)
		}
	}
	if _, ok := rec.Members[kind][userID]; ok {
		delete(rec.Members[kind], userID)
		return false
	}
	rec.Members[kind][userID] = struct{}{}
	return true
}
