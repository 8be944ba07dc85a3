package bot

import (
	"errors"
	"strconv"
	"strings"

	"tg-movie-bot/internal/domain"
)

// Telegram ограничивает callback_data 64 байтами.
const maxCallbackData = 64

const (
	actionReact   = "react"
	actionMovie   = "movie"
	actionSupport = "support"
	actionReply   = "reply"
	actionRaffle  = "raffle"
)

var errBadPayload = errors.New("некорректные данные кнопки")

// callback — разобранные данные нажатой кнопки.
type callback struct {
	Action    string
	MovieCode string
	Reaction  domain.ReactionKind
	Topic     domain.SupportTopic
	Target    int64
}

func reactPayload(code string, kind domain.ReactionKind) string {
	return actionReact + "|" + code + "|" + string(kind)
}

func moviePayload(code string) string {
	return actionMovie + "|" + code
}

func supportPayload(topic domain.SupportTopic) string {
	return actionSupport + "|" + string(topic)
}

func replyPayload(userID int64) string {
	return actionReply + "|" + strconv.FormatInt(userID, 10)
}

func raffleJoinPayload() string {
	return actionRaffle + "|join"
}

func fitsCallback(payload string) bool {
	return len(payload) <= maxCallbackData
}

func parseCallback(data string) (callback, error) {
	parts := strings.Split(data, "|")
	switch parts[0] {
	case actionReact:
		if len(parts) != 3 || parts[1] == "" {
			return callback{}, errBadPayload
		}
		kind := domain.ReactionKind(parts[2])
		if !kind.Valid() {
			return callback{}, errBadPayload
		}
		return callback{Action: actionReact, MovieCode: parts[1], Reaction: kind}, nil
	case actionMovie:
		if len(parts) != 2 || parts[1] == "" {
			return callback{}, errBadPayload
		}
		return callback{Action: actionMovie, MovieCode: parts[1]}, nil
	case actionSupport:
		if len(parts) != 2 {
			return callback{}, errBadPayload
		}
		topic := domain.SupportTopic(parts[1])
		if !topic.Valid() {
			return callback{}, errBadPayload
		}
		return callback{Action: actionSupport, Topic: topic}, nil
	case actionReply:
		if len(parts) != 2 {
			return callback{}, errBadPayload
		}
		target, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || target == 0 {
			return callback{}, errBadPayload
		}
		return callback{Action: actionReply, Target: target}, nil
	case actionRaffle:
		if len(parts) != 2 || parts[1] != "join" {
			return callback{}, errBadPayload
		}
		return callback{Action: actionRaffle}, nil
	default:
		return callback{}, errBadPayload
	}
}

// splitCommand отделяет команду от аргумента: "/reply@bot 42" -> ("/reply", "42").
func splitCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", text
	}
	cmd, arg, _ := strings.Cut(text, " ")
	if at := strings.Index(cmd, "@"); at >= 0 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd), strings.TrimSpace(arg)
}
