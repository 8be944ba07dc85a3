package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tg-movie-bot/internal/domain"
	"tg-movie-bot/internal/infra/metrics"
)

// pollSlack — запас к таймауту long polling, чтобы клиент не обрывал getUpdates.
const pollSlack = 15 * time.Second

const defaultClientTimeout = 10 * time.Second

// NewBot создаёт клиента Bot API с ограниченным по времени HTTP-клиентом.
// endpoint пустой — используется tgbotapi.APIEndpoint.
func NewBot(token, endpoint string, timeout time.Duration) (*tgbotapi.BotAPI, error) {
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}
	return tgbotapi.NewBotAPIWithClient(token, endpoint, &http.Client{Timeout: timeout})
}

// PollingTimeout возвращает таймаут HTTP-клиента для long polling с ожиданием pollSeconds.
func PollingTimeout(pollSeconds int, sendTimeout time.Duration) time.Duration {
	if poll := time.Duration(pollSeconds)*time.Second + pollSlack; poll > sendTimeout {
		return poll
	}
	return sendTimeout
}

// BotAPI — часть tgbotapi.BotAPI, которой пользуется Sender.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Sender отправляет сообщения через Bot API.
type Sender struct {
	bot BotAPI
}

// NewSender создаёт отправителя.
func NewSender(bot BotAPI) *Sender {
	return &Sender{bot: bot}
}

// Send отправляет текст, разбивая его на части; клавиатура прикрепляется к первой части.
func (s *Sender) Send(ctx context.Context, chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) error {
	for i, part := range SplitMessage(text) {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(chatID, part)
		if i == 0 && keyboard != nil {
			msg.ReplyMarkup = keyboard
		}
		start := time.Now()
		_, err := within(ctx, func() (tgbotapi.Message, error) { return s.bot.Send(msg) })
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(chatID, 10), start, err)
		if err != nil {
			metrics.BotSendErrors.Inc()
			return classify(err)
		}
	}
	return nil
}

// Notify реализует domain.Notifier.
func (s *Sender) Notify(ctx context.Context, chatID int64, text string) error {
	return s.Send(ctx, chatID, text, nil)
}

// Edit заменяет текст и клавиатуру сообщения. Отсутствие изменений ошибкой не считается.
func (s *Sender) Edit(ctx context.Context, chatID int64, messageID int, text string, keyboard *tgbotapi.InlineKeyboardMarkup) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var edit tgbotapi.EditMessageTextConfig
	if keyboard != nil {
		edit = tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, *keyboard)
	} else {
		edit = tgbotapi.NewEditMessageText(chatID, messageID, text)
	}
	start := time.Now()
	_, err := within(ctx, func() (*tgbotapi.APIResponse, error) { return s.bot.Request(edit) })
	if err != nil && strings.Contains(err.Error(), "message is not modified") {
		err = nil
	}
	metrics.ObserveNetworkRequest("telegram_bot", "edit_message", strconv.FormatInt(chatID, 10), start, err)
	if err != nil {
		metrics.BotSendErrors.Inc()
		return classify(err)
	}
	return nil
}

// AnswerCallback снимает индикатор загрузки с кнопки, text показывается всплывающим уведомлением.
func (s *Sender) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	_, err := within(ctx, func() (*tgbotapi.APIResponse, error) {
		return s.bot.Request(tgbotapi.NewCallback(callbackID, text))
	})
	metrics.ObserveNetworkRequest("telegram_bot", "answer_callback", "callback", start, err)
	return err
}

// within ограничивает вызов Bot API контекстом: tgbotapi контекст не принимает.
// Ответ, пришедший после дедлайна, отбрасывается.
func within[T any](ctx context.Context, call func() (T, error)) (T, error) {
	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		v, err := call()
		done <- result{value: v, err: err}
	}()
	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// classify переводит ответ 403 (бот заблокирован) в domain.ErrRecipientBlocked.
func classify(err error) error {
	if IsBlocked(err) {
		return fmt.Errorf("%w: %v", domain.ErrRecipientBlocked, err)
	}
	return err
}

// IsBlocked сообщает, что Telegram отказал в доставке из-за блокировки бота пользователем.
func IsBlocked(err error) bool {
	var ptr *tgbotapi.Error
	if errors.As(err, &ptr) {
		return ptr.Code == http.StatusForbidden
	}
	var val tgbotapi.Error
	if errors.As(err, &val) {
		return val.Code == http.StatusForbidden
	}
	return false
}
