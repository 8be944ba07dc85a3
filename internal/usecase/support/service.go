package support

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"tg-movie-bot/internal/domain"
)

var (
	// ErrNoPendingState — от пользователя сейчас не ждут этого сообщения.
	ErrNoPendingState = errors.New("нет ожидающего диалога")
	// ErrEmptyMessage — пустой текст обращения или ответа.
	ErrEmptyMessage = errors.New("пустое сообщение")
	// ErrUnknownTopic — тема обращения не из списка.
	ErrUnknownTopic = errors.New("неизвестная тема обращения")
	// ErrStateReset — обращение или ответ сохранены, но диалог не вернулся в Idle.
	// Результат вызова действителен.
	ErrStateReset = errors.New("не удалось сбросить состояние диалога")
)

// States — хранилище состояния диалога пользователя.
type States interface {
	State(ctx context.Context, userID int64) (domain.ConversationState, error)
	SetState(ctx context.Context, userID int64, state domain.ConversationState) error
	ClearState(ctx context.Context, userID int64) (domain.ConversationState, error)
}

// Service ведёт обращения в поддержку и ответы администраторов.
type Service struct {
	states  States
	tickets domain.TicketRepo
	now     func() time.Time
}

// NewService создаёт сервис поддержки.
func NewService(states States, tickets domain.TicketRepo) *Service {
	return &Service{states: states, tickets: tickets, now: func() time.Time { return time.Now().UTC() }}
}

// Begin переводит пользователя в ожидание текста обращения.
func (s *Service) Begin(ctx context.Context, userID int64, topic domain.SupportTopic) error {
	if !topic.Valid() {
		return ErrUnknownTopic
	}
	return s.states.SetState(ctx, userID, domain.AwaitingSupportText(topic))
}

// Submit сохраняет обращение и возвращает диалог в Idle. При ErrStateReset обращение уже сохранено.
func (s *Service) Submit(ctx context.Context, userID int64, text string) (domain.Ticket, error) {
	state, err := s.states.State(ctx, userID)
	if err != nil {
		return domain.Ticket{}, err
	}
	if state.Kind != domain.ConversationAwaitingSupport {
		return domain.Ticket{}, ErrNoPendingState
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Ticket{}, ErrEmptyMessage
	}
	ticket := domain.Ticket{
		ID:        uuid.NewString(),
		UserID:    userID,
		Topic:     state.Topic,
		Message:   text,
		CreatedAt: s.now(),
	}
	if err := s.tickets.CreateTicket(ctx, ticket); err != nil {
		return domain.Ticket{}, fmt.Errorf("сохранение обращения: %w", err)
	}
	if _, err := s.states.ClearState(ctx, userID); err != nil {
		return ticket, fmt.Errorf("%w: %w", ErrStateReset, err)
	}
	return ticket, nil
}

// BeginReply переводит администратора в ожидание ответа пользователю target.
func (s *Service) BeginReply(ctx context.Context, adminID, target int64) error {
	return s.states.SetState(ctx, adminID, domain.AwaitingAdminReply(target))
}

// Reply отмечает последнее открытое обращение пользователя отвеченным. Возвращает адресата
// ответа и обращение, если оно было (ответить можно и без обращения).
func (s *Service) Reply(ctx context.Context, adminID int64, text string) (int64, *domain.Ticket, error) {
	state, err := s.states.State(ctx, adminID)
	if err != nil {
		return 0, nil, err
	}
	if state.Kind != domain.ConversationAwaitingAdminReply {
		return 0, nil, ErrNoPendingState
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, nil, ErrEmptyMessage
	}

	var answered *domain.Ticket
	ticket, err := s.tickets.LatestOpenTicket(ctx, state.Target)
	switch {
	case err == nil:
		at := s.now()
		if err := s.tickets.AnswerTicket(ctx, ticket.ID, text, at); err != nil {
			return 0, nil, fmt.Errorf("ответ на обращение: %w", err)
		}
		ticket.Answered = true
		ticket.AdminReply = &text
		ticket.AnsweredAt = &at
		answered = &ticket
	case errors.Is(err, domain.ErrNotFound):
	default:
		return 0, nil, fmt.Errorf("поиск обращения: %w", err)
	}

	if _, err := s.states.ClearState(ctx, adminID); err != nil {
		return state.Target, answered, fmt.Errorf("%w: %w", ErrStateReset, err)
	}
	return state.Target, answered, nil
}

// Cancel возвращает диалог в Idle и сообщает, что именно было отменено.
func (s *Service) Cancel(ctx context.Context, userID int64) (domain.ConversationState, error) {
	return s.states.ClearState(ctx, userID)
}

// Open возвращает неотвеченные обращения, старые первыми.
func (s *Service) Open(ctx context.Context, limit int) ([]domain.Ticket, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.tickets.ListOpenTickets(ctx, limit)
}
