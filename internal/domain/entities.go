package domain

import (
	"errors"
	"time"
)

var (
	// ErrNotFound возвращается репозиториями, если запись отсутствует.
	ErrNotFound = errors.New("not found")
	// ErrConflict означает, что запись изменилась с момента чтения (не совпала версия).
	ErrConflict = errors.New("version conflict")
	// ErrRecipientBlocked возвращается Notifier, если пользователь заблокировал бота.
	ErrRecipientBlocked = errors.New("recipient blocked the bot")
)

// Movie описывает фильм из каталога. После загрузки каталога не изменяется.
type Movie struct {
	Code        string `json:"code" bson:"code"`
	Title       string `json:"title" bson:"title"`
	Description string `json:"description" bson:"description"`
	Link        string `json:"link" bson:"link"`
}

// User описывает пользователя бота и его счётчики.
type User struct {
	ID          int64
	DisplayName string
	VisitCount  int
	LastActive  *time.Time
	RaffleOptIn bool
	State       ConversationState
	CreatedAt   time.Time
	// Version увеличивается при каждой записи и используется для оптимистичной блокировки.
	// Нулевая версия означает, что пользователь ещё не сохранён.
	Version int64
}

// SupportTopic задаёт тему обращения в поддержку.
type SupportTopic string

const (
	SupportTopicRequest       SupportTopic = "request"
	SupportTopicCollaboration SupportTopic = "collaboration"
	SupportTopicWinnerClaim   SupportTopic = "winner_claim"
)

// SupportTopics перечисляет темы в порядке показа.
var SupportTopics = []SupportTopic{SupportTopicRequest, SupportTopicCollaboration, SupportTopicWinnerClaim}

// Valid сообщает, известна ли тема.
func (t SupportTopic) Valid() bool {
	for _, known := range SupportTopics {
		if t == known {
			return true
		}
	}
	return false
}

// Ticket представляет обращение пользователя в поддержку.
type Ticket struct {
	ID         string
	UserID     int64
	Topic      SupportTopic
	Message    string
	Answered   bool
	AdminReply *string
	CreatedAt  time.Time
	AnsweredAt *time.Time
}

// RaffleDraw фиксирует результат розыгрыша за период (формат периода YYYY-MM).
// Период без участников тоже записывается, с нулевым WinnerID.
type RaffleDraw struct {
	ID           string
	Period       string
	WinnerID     int64
	Participants []int64
	DrawnAt      time.Time
}

// HasWinner сообщает, был ли в розыгрыше победитель.
func (d RaffleDraw) HasWinner() bool {
	return d.WinnerID != 0
}
