package bot

import (
	"context"
	"errors"
	"fmt"

	"tg-movie-bot/internal/domain"
)

// RaffleAnnouncer сообщает итоги розыгрыша победителю и администраторам.
type RaffleAnnouncer struct {
	notifier domain.Notifier
	admins   domain.Admins
}

// NewRaffleAnnouncer создаёт объявителя итогов.
func NewRaffleAnnouncer(notifier domain.Notifier, admins domain.Admins) *RaffleAnnouncer {
	return &RaffleAnnouncer{notifier: notifier, admins: admins}
}

// AnnounceWinner уведомляет победителя и администраторов. Возвращает ошибку доставки победителю.
func (a *RaffleAnnouncer) AnnounceWinner(ctx context.Context, draw domain.RaffleDraw) error {
	winnerText := fmt.Sprintf("🎉 Поздравляем! Вы победили в розыгрыше за %s.\n"+
		"Чтобы получить приз, напишите в поддержку: /support → «%s».", draw.Period, topicTitle(domain.SupportTopicWinnerClaim))
	winnerErr := a.notifier.Notify(ctx, draw.WinnerID, winnerText)

	adminText := fmt.Sprintf("🏆 Розыгрыш за %s: победитель %d, участников %d.", draw.Period, draw.WinnerID, len(draw.Participants))
	if winnerErr != nil {
		adminText += "\nУведомить победителя не удалось."
	}
	var errs []error
	if winnerErr != nil {
		errs = append(errs, fmt.Errorf("победитель %d: %w", draw.WinnerID, winnerErr))
	}
	for _, id := range a.admins.IDs() {
		if err := a.notifier.Notify(ctx, id, adminText); err != nil {
			errs = append(errs, fmt.Errorf("администратор %d: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// AnnounceNoParticipants сообщает администраторам, что разыгрывать было не среди кого.
func (a *RaffleAnnouncer) AnnounceNoParticipants(ctx context.Context, period string) error {
	var errs []error
	for _, id := range a.admins.IDs() {
		if err := a.notifier.Notify(ctx, id, fmt.Sprintf("Розыгрыш за %s не проведён: участников нет.", period)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
