package domain

import (
	"context"
	"time"
)

// CatalogRepo отдаёт каталог фильмов. Читается один раз при старте.
type CatalogRepo interface {
	ListMovies(ctx context.Context) ([]Movie, error)
}

// CatalogWriter загружает фильмы в хранилище (используется только утилитой импорта).
type CatalogWriter interface {
	UpsertMovies(ctx context.Context, movies []Movie) (int, error)
}

// UserRepo хранит пользователей целиком: запись всегда заменяет значение полностью.
type UserRepo interface {
	GetUser(ctx context.Context, id int64) (User, error)
	// PutUser сохраняет пользователя, если версия в хранилище совпадает с user.Version,
	// и возвращает новую версию. При несовпадении возвращает ErrConflict.
	PutUser(ctx context.Context, user User) (int64, error)
	ListUsers(ctx context.Context) ([]User, error)
	DeleteUser(ctx context.Context, id int64) error
}

// ReactionRepo хранит записи реакций по коду фильма.
type ReactionRepo interface {
	GetReactions(ctx context.Context, movieCode string) (ReactionRecord, error)
	// PutReactions работает так же, как PutUser: оптимистичная блокировка по Version.
	PutReactions(ctx context.Context, rec ReactionRecord) (int64, error)
}

// TicketRepo хранит обращения в поддержку.
type TicketRepo interface {
	CreateTicket(ctx context.Context, ticket Ticket) error
	LatestOpenTicket(ctx context.Context, userID int64) (Ticket, error)
	AnswerTicket(ctx context.Context, id, reply string, at time.Time) error
	ListOpenTickets(ctx context.Context, limit int) ([]Ticket, error)
}

// RaffleRepo хранит результаты розыгрышей.
type RaffleRepo interface {
	SaveDraw(ctx context.Context, draw RaffleDraw) error
	GetDraw(ctx context.Context, period string) (RaffleDraw, error)
	LatestDraw(ctx context.Context) (RaffleDraw, error)
}

// Translator приводит текст к рабочему языку каталога. Никогда не возвращает ошибку:
// при сбое отдаётся исходный текст.
type Translator interface {
	Translate(ctx context.Context, text string) string
}

// Notifier доставляет текстовые сообщения в чат.
type Notifier interface {
	Notify(ctx context.Context, chatID int64, text string) error
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Once(ctx context.Context, key string, ttl time.Duration, fn func() error) error
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
}
