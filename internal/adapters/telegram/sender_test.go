package telegram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"

	"tg-movie-bot/internal/domain"
)

type fakeBot struct {
	sent     []tgbotapi.MessageConfig
	requests []tgbotapi.Chattable
	sendErr  error
	reqErr   error
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.sendErr != nil {
		return tgbotapi.Message{}, f.sendErr
	}
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.requests = append(f.requests, c)
	if f.reqErr != nil {
		return nil, f.reqErr
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func TestSendSplitsLongText(t *testing.T) {
	bot := &fakeBot{}
	keyboard := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("x", "y")))
	text := strings.Repeat("a", messageLimit) + "\n" + "tail"

	require.NoError(t, NewSender(bot).Send(context.Background(), 1, text, &keyboard))
	require.Len(t, bot.sent, 2)
	require.NotNil(t, bot.sent[0].ReplyMarkup)
	require.Nil(t, bot.sent[1].ReplyMarkup)
}

func TestNotifyMapsForbiddenToBlocked(t *testing.T) {
	bot := &fakeBot{sendErr: &tgbotapi.Error{Code: 403, Message: "Forbidden: bot was blocked by the user"}}
	err := NewSender(bot).Notify(context.Background(), 1, "hi")
	require.ErrorIs(t, err, domain.ErrRecipientBlocked)
}

func TestNotifyKeepsOtherErrors(t *testing.T) {
	bot := &fakeBot{sendErr: errors.New("network down")}
	err := NewSender(bot).Notify(context.Background(), 1, "hi")
	require.Error(t, err)
	require.NotErrorIs(t, err, domain.ErrRecipientBlocked)
}

func TestEditIgnoresNotModified(t *testing.T) {
	bot := &fakeBot{reqErr: &tgbotapi.Error{Code: 400, Message: "Bad Request: message is not modified"}}
	require.NoError(t, NewSender(bot).Edit(context.Background(), 1, 2, "same", nil))
	require.Len(t, bot.requests, 1)
}

// slowTelegram отвечает на getMe сразу, а на остальные методы — только через delay.
func slowTelegram(t *testing.T, delay time.Duration) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.HasSuffix(r.URL.Path, "/getMe") {
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"bot","username":"movie_bot"}}`))
			return
		}
		select {
		case <-r.Context().Done():
			return
		case <-time.After(delay):
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":1,"type":"private"}}}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNotifyHonoursDeadlineOfHungRequest(t *testing.T) {
	srv := slowTelegram(t, 2*time.Second)
	bot, err := NewBot("token", srv.URL+"/bot%s/%s", 10*time.Second)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	err = NewSender(bot).Notify(ctx, 1, "hi")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), time.Second)
}

func TestNewBotBoundsHTTPClient(t *testing.T) {
	srv := slowTelegram(t, 2*time.Second)
	bot, err := NewBot("token", srv.URL+"/bot%s/%s", 200*time.Millisecond)
	require.NoError(t, err)

	start := time.Now()
	err = NewSender(bot).Notify(context.Background(), 1, "hi")
	require.Error(t, err)
	require.Less(t, time.Since(start), 1500*time.Millisecond)
}

func TestPollingTimeout(t *testing.T) {
	require.Equal(t, 75*time.Second, PollingTimeout(60, 10*time.Second))
	require.Equal(t, 90*time.Second, PollingTimeout(60, 90*time.Second))
}
