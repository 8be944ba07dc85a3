package users

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"tg-movie-bot/internal/domain"
	"tg-movie-bot/internal/infra/keylock"
	"tg-movie-bot/internal/infra/metrics"
)

const maxWriteAttempts = 5

// Directory хранит профили пользователей и счётчики визитов.
// Изменения одного пользователя сериализуются, запись защищена версией.
type Directory struct {
	repo  domain.UserRepo
	locks *keylock.Locker[int64]
	now   func() time.Time
}

// NewDirectory создаёт справочник пользователей.
func NewDirectory(repo domain.UserRepo) *Directory {
	return &Directory{repo: repo, locks: keylock.New[int64](), now: func() time.Time { return time.Now().UTC() }}
}

// Touch создаёт пользователя при первом обращении или увеличивает счётчик визитов
// и обновляет отображаемое имя.
func (d *Directory) Touch(ctx context.Context, userID int64, displayName string) (domain.User, error) {
	name := strings.TrimSpace(displayName)
	user, _, err := d.update(ctx, userID, true, func(u *domain.User) bool {
		now := d.now()
		if u.Version == 0 {
			u.CreatedAt = now
		}
		u.VisitCount++
		if name != "" {
			u.DisplayName = name
		}
		u.LastActive = &now
		return true
	})
	return user, err
}

// Get возвращает пользователя или domain.ErrNotFound.
func (d *Directory) Get(ctx context.Context, userID int64) (domain.User, error) {
	return d.repo.GetUser(ctx, userID)
}

// ListAll возвращает снимок всех пользователей, упорядоченный по ID.
func (d *Directory) ListAll(ctx context.Context) ([]domain.User, error) {
	users, err := d.repo.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("список пользователей: %w", err)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

// OptIntoRaffle отмечает участие в розыгрыше. Возвращает false, если пользователь уже участвует.
func (d *Directory) OptIntoRaffle(ctx context.Context, userID int64) (bool, error) {
	_, changed, err := d.update(ctx, userID, false, func(u *domain.User) bool {
		if u.RaffleOptIn {
			return false
		}
		u.RaffleOptIn = true
		return true
	})
	return changed, err
}

// ClearRaffleOptIn снимает отметку участия. Возвращает false, если её не было.
func (d *Directory) ClearRaffleOptIn(ctx context.Context, userID int64) (bool, error) {
	_, changed, err := d.update(ctx, userID, false, func(u *domain.User) bool {
		if !u.RaffleOptIn {
			return false
		}
		u.RaffleOptIn = false
		return true
	})
	return changed, err
}

// RaffleParticipants возвращает пользователей, участвующих в текущем розыгрыше.
func (d *Directory) RaffleParticipants(ctx context.Context) ([]domain.User, error) {
	all, err := d.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	participants := make([]domain.User, 0)
	for _, u := range all {
		if u.RaffleOptIn {
			participants = append(participants, u)
		}
	}
	return participants, nil
}

// State возвращает состояние диалога. Для неизвестного пользователя — Idle.
func (d *Directory) State(ctx context.Context, userID int64) (domain.ConversationState, error) {
	user, err := d.repo.GetUser(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.IdleState(), nil
	}
	if err != nil {
		return domain.ConversationState{}, err
	}
	return user.State, nil
}

// SetState переводит диалог пользователя в новое состояние.
func (d *Directory) SetState(ctx context.Context, userID int64, state domain.ConversationState) error {
	_, _, err := d.update(ctx, userID, false, func(u *domain.User) bool {
		if u.State == state {
			return false
		}
		u.State = state
		return true
	})
	return err
}

// ClearState возвращает диалог в Idle. Возвращает предыдущее состояние.
func (d *Directory) ClearState(ctx context.Context, userID int64) (domain.ConversationState, error) {
	var previous domain.ConversationState
	_, _, err := d.update(ctx, userID, false, func(u *domain.User) bool {
		previous = u.State
		if u.State.IsIdle() {
			return false
		}
		u.State = domain.IdleState()
		return true
	})
	if errors.Is(err, domain.ErrNotFound) {
		return domain.IdleState(), nil
	}
	return previous, err
}

// Forget удаляет пользователя из справочника. Явная операция отписки,
// вызывается только при блокировке бота пользователем.
func (d *Directory) Forget(ctx context.Context, userID int64) error {
	unlock, err := d.locks.Lock(ctx, userID)
	if err != nil {
		return err
	}
	defer unlock()
	if err := d.repo.DeleteUser(ctx, userID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("удаление пользователя: %w", err)
	}
	return nil
}

// update выполняет read-modify-write под блокировкой пользователя с повтором при конфликте версий.
// mutate возвращает false, если запись не требуется.
func (d *Directory) update(ctx context.Context, userID int64, create bool, mutate func(u *domain.User) bool) (domain.User, bool, error) {
	unlock, err := d.locks.Lock(ctx, userID)
	if err != nil {
		return domain.User{}, false, err
	}
	defer unlock()

	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		user, err := d.repo.GetUser(ctx, userID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			if !create {
				return domain.User{}, false, domain.ErrNotFound
			}
			user = domain.User{ID: userID}
		case err != nil:
			return domain.User{}, false, fmt.Errorf("чтение пользователя: %w", err)
		}
		if !mutate(&user) {
			return user, false, nil
		}
		version, err := d.repo.PutUser(ctx, user)
		if errors.Is(err, domain.ErrConflict) {
			metrics.IncVersionConflict("users")
			continue
		}
		if err != nil {
			return domain.User{}, false, fmt.Errorf("сохранение пользователя: %w", err)
		}
		user.Version = version
		return user, true, nil
	}
	return domain.User{}, false, fmt.Errorf("сохранение пользователя %d: %w", userID, domain.ErrConflict)
}
