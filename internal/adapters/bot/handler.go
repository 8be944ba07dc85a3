package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"tg-movie-bot/internal/domain"
	"tg-movie-bot/internal/usecase/broadcast"
	"tg-movie-bot/internal/usecase/raffle"
	"tg-movie-bot/internal/usecase/reactions"
	"tg-movie-bot/internal/usecase/resolver"
	"tg-movie-bot/internal/usecase/support"
	"tg-movie-bot/internal/usecase/users"
)

const (
	suggestionsLimit = 3
	statsTopLimit    = 10
	ticketsLimit     = 10
)

const noPermission = "Недостаточно прав"

// Messenger — исходящая сторона чата.
type Messenger interface {
	Send(ctx context.Context, chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) error
	Edit(ctx context.Context, chatID int64, messageID int, text string, keyboard *tgbotapi.InlineKeyboardMarkup) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// Services — сценарии, которые вызывает обработчик.
type Services struct {
	Resolver  *resolver.Resolver
	Reactions *reactions.Service
	Users     *users.Directory
	Support   *support.Service
	Raffle    *raffle.Service
	Broadcast *broadcast.Service
}

// Handler обслуживает апдейты бота.
type Handler struct {
	out    Messenger
	log    zerolog.Logger
	admins domain.Admins
	svc    Services
	now    func() time.Time
}

// NewHandler создаёт обработчик.
func NewHandler(out Messenger, log zerolog.Logger, admins domain.Admins, svc Services) *Handler {
	return &Handler{out: out, log: log, admins: admins, svc: svc, now: func() time.Time { return time.Now().UTC() }}
}

// HandleUpdate обрабатывает входящий апдейт.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message != nil {
		h.handleMessage(ctx, upd.Message)
	} else if upd.CallbackQuery != nil {
		h.handleCallback(ctx, upd.CallbackQuery)
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil {
		return
	}
	chatID, userID := msg.Chat.ID, msg.From.ID
	if _, err := h.svc.Users.Touch(ctx, userID, userName(msg.From)); err != nil {
		h.log.Error().Err(err).Int64("user", userID).Msg("bot: не удалось обновить пользователя")
	}

	cmd, arg := splitCommand(msg.Text)
	if cmd == "" {
		h.handleText(ctx, chatID, userID, arg)
		return
	}
	switch cmd {
	case "/start":
		h.reply(ctx, chatID, startMessage(msg.From.FirstName), mainKeyboard())
	case "/help":
		h.reply(ctx, chatID, helpMessage(h.admins.Contains(userID)), nil)
	case "/movie":
		if arg == "" {
			h.reply(ctx, chatID, "Отправьте /movie <код или название>", nil)
			return
		}
		h.handleLookup(ctx, chatID, userID, arg)
	case "/support":
		h.reply(ctx, chatID, "Выберите тему обращения:", supportKeyboard())
	case "/cancel":
		h.handleCancel(ctx, chatID, userID)
	case "/raffle":
		h.handleRaffleJoin(ctx, chatID, userID)
	case "/stats", "/broadcast", "/raffle_list", "/raffle_draw", "/tickets", "/reply":
		if !h.admins.Contains(userID) {
			h.reply(ctx, chatID, noPermission, nil)
			return
		}
		h.handleAdminCommand(ctx, chatID, userID, cmd, arg)
	default:
		h.reply(ctx, chatID, "Неизвестная команда. Используйте /help", nil)
	}
}

// handleText направляет текст по состоянию диалога: обращение, ответ администратора или поиск.
func (h *Handler) handleText(ctx context.Context, chatID, userID int64, text string) {
	if text == "" {
		return
	}
	state, err := h.svc.Users.State(ctx, userID)
	if err != nil {
		h.log.Error().Err(err).Int64("user", userID).Msg("bot: не удалось прочитать состояние диалога")
		h.reply(ctx, chatID, "Что-то пошло не так, попробуйте позже", nil)
		return
	}
	switch state.Kind {
	case domain.ConversationAwaitingSupport:
		h.handleSupportText(ctx, chatID, userID, text)
	case domain.ConversationAwaitingAdminReply:
		if !h.admins.Contains(userID) {
			_, _ = h.svc.Users.ClearState(ctx, userID)
			h.handleLookup(ctx, chatID, userID, text)
			return
		}
		h.handleAdminReplyText(ctx, chatID, userID, text)
	default:
		h.handleLookup(ctx, chatID, userID, text)
	}
}

func (h *Handler) handleLookup(ctx context.Context, chatID, userID int64, query string) {
	res, err := h.svc.Resolver.Resolve(ctx, query)
	if errors.Is(err, resolver.ErrNotFound) {
		text := "Фильм не найден 😔 Проверьте код или название."
		suggestions := h.svc.Resolver.Suggest(query, suggestionsLimit)
		if len(suggestions) > 0 {
			text += "\n\nВозможно, вы искали:"
		}
		h.reply(ctx, chatID, text, suggestionKeyboard(suggestions))
		return
	}
	if err != nil {
		h.log.Error().Err(err).Int64("user", userID).Msg("bot: ошибка поиска фильма")
		h.reply(ctx, chatID, "Не удалось выполнить поиск, попробуйте позже", nil)
		return
	}
	h.log.Debug().Str("query", query).Str("code", res.Movie.Code).Str("step", string(res.Step)).Msg("bot: фильм найден")
	h.sendMovie(ctx, chatID, res.Movie)
}

func (h *Handler) sendMovie(ctx context.Context, chatID int64, movie domain.Movie) {
	counts, err := h.svc.Reactions.Counts(ctx, movie.Code)
	if err != nil {
		h.log.Error().Err(err).Str("code", movie.Code).Msg("bot: не удалось получить реакции")
		counts = domain.ReactionCounts{}
	}
	h.reply(ctx, chatID, movieCard(movie), reactionKeyboard(movie.Code, counts))
}

func (h *Handler) handleCancel(ctx context.Context, chatID, userID int64) {
	prev, err := h.svc.Support.Cancel(ctx, userID)
	if err != nil {
		h.log.Error().Err(err).Int64("user", userID).Msg("bot: не удалось сбросить состояние")
		h.reply(ctx, chatID, "Что-то пошло не так, попробуйте позже", nil)
		return
	}
	if prev.IsIdle() {
		h.reply(ctx, chatID, "Нечего отменять", nil)
		return
	}
	h.reply(ctx, chatID, "Отменено", nil)
}

func (h *Handler) handleRaffleJoin(ctx context.Context, chatID, userID int64) {
	changed, err := h.svc.Raffle.Join(ctx, userID)
	switch {
	case errors.Is(err, raffle.ErrDrawInProgress):
		h.reply(ctx, chatID, "Сейчас идёт розыгрыш, попробуйте чуть позже", nil)
	case err != nil:
		h.log.Error().Err(err).Int64("user", userID).Msg("bot: не удалось записать на розыгрыш")
		h.reply(ctx, chatID, "Не удалось записаться, попробуйте позже", nil)
	case changed:
		h.reply(ctx, chatID, "🎁 Вы участвуете в розыгрыше! Итоги подводятся раз в месяц.", nil)
	default:
		h.reply(ctx, chatID, "Вы уже участвуете в розыгрыше", nil)
	}
}

func (h *Handler) handleSupportText(ctx context.Context, chatID, userID int64, text string) {
	ticket, err := h.svc.Support.Submit(ctx, userID, text)
	switch {
	case errors.Is(err, support.ErrStateReset):
		h.log.Warn().Err(err).Int64("user", userID).Msg("bot: обращение сохранено, состояние не сброшено")
	case errors.Is(err, support.ErrEmptyMessage):
		h.reply(ctx, chatID, "Напишите текст обращения или /cancel", nil)
		return
	case err != nil:
		h.log.Error().Err(err).Int64("user", userID).Msg("bot: не удалось сохранить обращение")
		h.reply(ctx, chatID, "Не удалось отправить обращение, попробуйте позже", nil)
		return
	}
	h.reply(ctx, chatID, "Спасибо! Мы ответим вам здесь.", nil)

	from, err := h.svc.Users.Get(ctx, userID)
	if err != nil {
		from = domain.User{ID: userID}
	}
	for _, adminID := range h.admins.IDs() {
		if err := h.out.Send(ctx, adminID, ticketMessage(ticket, from), replyKeyboard(userID)); err != nil {
			h.log.Warn().Err(err).Int64("admin", adminID).Msg("bot: не удалось уведомить администратора")
		}
	}
}

func (h *Handler) handleAdminReplyText(ctx context.Context, chatID, adminID int64, text string) {
	target, ticket, err := h.svc.Support.Reply(ctx, adminID, text)
	switch {
	case errors.Is(err, support.ErrStateReset):
		h.log.Warn().Err(err).Int64("admin", adminID).Msg("bot: ответ сохранён, состояние не сброшено")
	case errors.Is(err, support.ErrEmptyMessage):
		h.reply(ctx, chatID, "Напишите текст ответа или /cancel", nil)
		return
	case err != nil:
		h.log.Error().Err(err).Int64("admin", adminID).Msg("bot: не удалось сохранить ответ")
		h.reply(ctx, chatID, "Не удалось отправить ответ, попробуйте позже", nil)
		return
	}
	if err := h.out.Send(ctx, target, "💬 Ответ поддержки:\n\n"+strings.TrimSpace(text), nil); err != nil {
		h.log.Warn().Err(err).Int64("user", target).Msg("bot: ответ не доставлен")
		h.reply(ctx, chatID, "Ответ сохранён, но доставить его пользователю не удалось", nil)
		return
	}
	confirm := fmt.Sprintf("Ответ отправлен пользователю %d", target)
	if ticket == nil {
		confirm += " (открытых обращений не было)"
	}
	h.reply(ctx, chatID, confirm, nil)
}

func (h *Handler) handleAdminCommand(ctx context.Context, chatID, adminID int64, cmd, arg string) {
	switch cmd {
	case "/stats":
		stats, err := h.svc.Users.Stats(ctx, h.now(), statsTopLimit)
		if err != nil {
			h.log.Error().Err(err).Msg("bot: не удалось посчитать статистику")
			h.reply(ctx, chatID, "Не удалось получить статистику", nil)
			return
		}
		h.reply(ctx, chatID, statsMessage(stats), nil)
	case "/broadcast":
		job, err := h.svc.Broadcast.Request(ctx, adminID, chatID, arg)
		if errors.Is(err, broadcast.ErrEmptyText) {
			h.reply(ctx, chatID, "Отправьте /broadcast <текст>", nil)
			return
		}
		if err != nil {
			h.log.Error().Err(err).Msg("bot: не удалось запустить рассылку")
			h.reply(ctx, chatID, "Не удалось запустить рассылку", nil)
			return
		}
		h.log.Info().Str("job", job.ID).Int64("admin", adminID).Msg("bot: рассылка запрошена")
		h.reply(ctx, chatID, "📣 Рассылка запущена, по завершении придёт отчёт", nil)
	case "/raffle_list":
		list, err := h.svc.Raffle.Participants(ctx)
		if err != nil {
			h.log.Error().Err(err).Msg("bot: не удалось получить участников")
			h.reply(ctx, chatID, "Не удалось получить участников", nil)
			return
		}
		h.reply(ctx, chatID, participantsMessage(list), nil)
	case "/raffle_draw":
		period := raffle.PeriodOf(h.now())
		out, err := h.svc.Raffle.Draw(ctx, period)
		if err != nil {
			h.log.Error().Err(err).Str("period", period).Msg("bot: розыгрыш не проведён")
			h.reply(ctx, chatID, "Не удалось провести розыгрыш", nil)
			return
		}
		switch out.Status {
		case raffle.StatusNoParticipants:
			h.reply(ctx, chatID, "Участников нет, розыгрыш не проведён", nil)
		case raffle.StatusAlreadyDrawn:
			if !out.Draw.HasWinner() {
				h.reply(ctx, chatID, fmt.Sprintf("Розыгрыш за %s уже закрыт: участников не было", period), nil)
				return
			}
			h.reply(ctx, chatID, fmt.Sprintf("Розыгрыш за %s уже проведён, победитель: %d", period, out.Draw.WinnerID), nil)
		default:
			h.reply(ctx, chatID, fmt.Sprintf("🏆 Победитель: %d (участников: %d)", out.Draw.WinnerID, len(out.Draw.Participants)), nil)
		}
	case "/tickets":
		h.handleTickets(ctx, chatID)
	case "/reply":
		target, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || target == 0 {
			h.reply(ctx, chatID, "Отправьте /reply <user_id>", nil)
			return
		}
		h.beginReply(ctx, chatID, adminID, target)
	}
}

func (h *Handler) handleTickets(ctx context.Context, chatID int64) {
	tickets, err := h.svc.Support.Open(ctx, ticketsLimit)
	if err != nil {
		h.log.Error().Err(err).Msg("bot: не удалось получить обращения")
		h.reply(ctx, chatID, "Не удалось получить обращения", nil)
		return
	}
	if len(tickets) == 0 {
		h.reply(ctx, chatID, "Открытых обращений нет", nil)
		return
	}
	for _, t := range tickets {
		from, err := h.svc.Users.Get(ctx, t.UserID)
		if err != nil {
			from = domain.User{ID: t.UserID}
		}
		h.reply(ctx, chatID, ticketMessage(t, from), replyKeyboard(t.UserID))
	}
}

func (h *Handler) beginReply(ctx context.Context, chatID, adminID, target int64) {
	if err := h.svc.Support.BeginReply(ctx, adminID, target); err != nil {
		h.log.Error().Err(err).Int64("admin", adminID).Msg("bot: не удалось начать ответ")
		h.reply(ctx, chatID, "Что-то пошло не так, попробуйте позже", nil)
		return
	}
	h.reply(ctx, chatID, fmt.Sprintf("Напишите ответ пользователю %d. /cancel — отмена", target), nil)
}

func (h *Handler) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.From == nil {
		return
	}
	var chatID int64
	if cb.Message != nil && cb.Message.Chat != nil {
		chatID = cb.Message.Chat.ID
	}
	data, err := parseCallback(cb.Data)
	if err != nil {
		h.answer(ctx, cb.ID, "Кнопка устарела")
		return
	}

	switch data.Action {
	case actionReact:
		h.handleReaction(ctx, cb, data)
	case actionMovie:
		h.answer(ctx, cb.ID, "")
		movie, ok := h.svc.Resolver.ByCode(data.MovieCode)
		if !ok || chatID == 0 {
			return
		}
		h.sendMovie(ctx, chatID, movie)
	case actionSupport:
		h.answer(ctx, cb.ID, "")
		h.ensureUser(ctx, cb.From)
		if err := h.svc.Support.Begin(ctx, cb.From.ID, data.Topic); err != nil {
			h.log.Error().Err(err).Int64("user", cb.From.ID).Msg("bot: не удалось начать обращение")
			return
		}
		h.reply(ctx, chatID, fmt.Sprintf("%s\nОпишите ваш вопрос одним сообщением. /cancel — отмена", topicTitle(data.Topic)), nil)
	case actionReply:
		if !h.admins.Contains(cb.From.ID) {
			h.answer(ctx, cb.ID, noPermission)
			return
		}
		h.answer(ctx, cb.ID, "")
		h.ensureUser(ctx, cb.From)
		h.beginReply(ctx, chatID, cb.From.ID, data.Target)
	case actionRaffle:
		h.answer(ctx, cb.ID, "")
		h.ensureUser(ctx, cb.From)
		h.handleRaffleJoin(ctx, chatID, cb.From.ID)
	}
}

func (h *Handler) handleReaction(ctx context.Context, cb *tgbotapi.CallbackQuery, data callback) {
	res, err := h.svc.Reactions.Toggle(ctx, data.MovieCode, cb.From.ID, data.Reaction)
	if err != nil {
		h.log.Error().Err(err).Str("code", data.MovieCode).Int64("user", cb.From.ID).Msg("bot: не удалось сохранить реакцию")
		h.answer(ctx, cb.ID, "Не удалось сохранить реакцию")
		return
	}
	if res.Active {
		h.answer(ctx, cb.ID, data.Reaction.Emoji()+" учтено")
	} else {
		h.answer(ctx, cb.ID, "Реакция снята")
	}
	if cb.Message == nil || cb.Message.Chat == nil {
		return
	}
	text := cb.Message.Text
	if movie, ok := h.svc.Resolver.ByCode(data.MovieCode); ok {
		text = movieCard(movie)
	}
	if err := h.out.Edit(ctx, cb.Message.Chat.ID, cb.Message.MessageID, text, reactionKeyboard(data.MovieCode, res.Counts)); err != nil {
		h.log.Warn().Err(err).Msg("bot: не удалось обновить карточку")
	}
}

func (h *Handler) ensureUser(ctx context.Context, from *tgbotapi.User) {
	if _, err := h.svc.Users.Get(ctx, from.ID); errors.Is(err, domain.ErrNotFound) {
		if _, err := h.svc.Users.Touch(ctx, from.ID, userName(from)); err != nil {
			h.log.Error().Err(err).Int64("user", from.ID).Msg("bot: не удалось создать пользователя")
		}
	}
}

func (h *Handler) answer(ctx context.Context, callbackID, text string) {
	if err := h.out.AnswerCallback(ctx, callbackID, text); err != nil {
		h.log.Debug().Err(err).Msg("bot: не удалось ответить на нажатие")
	}
}

func (h *Handler) reply(ctx context.Context, chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	if chatID == 0 {
		return
	}
	if err := h.out.Send(ctx, chatID, text, keyboard); err != nil {
		h.log.Error().Err(err).Int64("chat", chatID).Msg("не удалось отправить сообщение")
	}
}

func userName(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name == "" && u.UserName != "" {
		name = "@" + u.UserName
	}
	return name
}
