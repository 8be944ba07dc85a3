package bot

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tg-movie-bot/internal/domain"
	"tg-movie-bot/internal/usecase/users"
)

var topicTitles = map[domain.SupportTopic]string{
	domain.SupportTopicRequest:       "🎬 Запрос фильма",
	domain.SupportTopicCollaboration: "🤝 Сотрудничество",
	domain.SupportTopicWinnerClaim:   "🏆 Я победитель",
}

func topicTitle(topic domain.SupportTopic) string {
	if title, ok := topicTitles[topic]; ok {
		return title
	}
	return string(topic)
}

func movieCard(m domain.Movie) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🎬 %s", m.Title)
	if m.Description != "" {
		fmt.Fprintf(&b, "\n\n%s", m.Description)
	}
	if m.Link != "" {
		fmt.Fprintf(&b, "\n\n▶️ %s", m.Link)
	}
	fmt.Fprintf(&b, "\n\nКод: %s", m.Code)
	return b.String()
}

// reactionKeyboard — один ряд кнопок реакций со счётчиками.
func reactionKeyboard(code string, counts domain.ReactionCounts) *tgbotapi.InlineKeyboardMarkup {
	row := make([]tgbotapi.InlineKeyboardButton, 0, len(domain.ReactionKinds))
	for _, kind := range domain.ReactionKinds {
		payload := reactPayload(code, kind)
		if !fitsCallback(payload) {
			return nil
		}
		label := kind.Emoji()
		if n := counts[kind]; n > 0 {
			label = fmt.Sprintf("%s %d", label, n)
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, payload))
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(row)
	return &markup
}

func suggestionKeyboard(movies []domain.Movie) *tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, m := range movies {
		payload := moviePayload(m.Code)
		if !fitsCallback(payload) {
			continue
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(m.Title, payload)))
	}
	if len(rows) == 0 {
		return nil
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}

func supportKeyboard() *tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(domain.SupportTopics))
	for _, topic := range domain.SupportTopics {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(topicTitle(topic), supportPayload(topic))))
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}

func replyKeyboard(userID int64) *tgbotapi.InlineKeyboardMarkup {
	markup := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("✉️ Ответить", replyPayload(userID)),
	))
	return &markup
}

func mainKeyboard() *tgbotapi.InlineKeyboardMarkup {
	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🎁 Участвовать в розыгрыше", raffleJoinPayload()),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(topicTitle(domain.SupportTopicRequest), supportPayload(domain.SupportTopicRequest)),
			tgbotapi.NewInlineKeyboardButtonData(topicTitle(domain.SupportTopicCollaboration), supportPayload(domain.SupportTopicCollaboration)),
		),
	)
	return &markup
}

func startMessage(name string) string {
	greeting := "Привет!"
	if name != "" {
		greeting = fmt.Sprintf("Привет, %s!", name)
	}
	return greeting + "\n\nОтправьте код или название фильма, и я пришлю карточку с ссылкой. " +
		"Оценивайте фильмы реакциями под карточкой.\n\n/help — список команд"
}

func helpMessage(admin bool) string {
	lines := []string{
		"Команды:",
		"/movie <код или название> — найти фильм (можно просто отправить текст)",
		"/raffle — участвовать в ежемесячном розыгрыше",
		"/support — написать в поддержку",
		"/cancel — отменить текущее действие",
	}
	if admin {
		lines = append(lines,
			"",
			"Администратор:",
			"/stats — статистика пользователей",
			"/broadcast <текст> — рассылка всем пользователям",
			"/raffle_list — участники розыгрыша",
			"/raffle_draw — провести розыгрыш за текущий месяц",
			"/tickets — открытые обращения",
			"/reply <user_id> — ответить пользователю",
		)
	}
	return strings.Join(lines, "\n")
}

func displayName(u domain.User) string {
	if u.DisplayName != "" {
		return fmt.Sprintf("%s (%d)", u.DisplayName, u.ID)
	}
	return fmt.Sprintf("%d", u.ID)
}

func statsMessage(s users.Stats) string {
	var b strings.Builder
	b.WriteString("📊 Статистика\n")
	fmt.Fprintf(&b, "Пользователей: %d\n", s.Users)
	fmt.Fprintf(&b, "Визитов: %d\n", s.Visits)
	fmt.Fprintf(&b, "Активны за сутки: %d\n", s.ActiveDay)
	fmt.Fprintf(&b, "Активны за 30 дней: %d\n", s.ActiveMonth)
	fmt.Fprintf(&b, "Участвуют в розыгрыше: %d", s.OptedIn)
	if len(s.Top) > 0 {
		b.WriteString("\n\nСамые активные:")
		for i, u := range s.Top {
			fmt.Fprintf(&b, "\n%d. %s — %d", i+1, displayName(u), u.VisitCount)
		}
	}
	return b.String()
}

func participantsMessage(list []domain.User) string {
	if len(list) == 0 {
		return "В розыгрыше пока нет участников."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Участники розыгрыша (%d):", len(list))
	for i, u := range list {
		fmt.Fprintf(&b, "\n%d. %s", i+1, displayName(u))
	}
	return b.String()
}

func ticketMessage(t domain.Ticket, from domain.User) string {
	return fmt.Sprintf("📨 Обращение: %s\nОт: %s\n\n%s", topicTitle(t.Topic), displayName(from), t.Message)
}
