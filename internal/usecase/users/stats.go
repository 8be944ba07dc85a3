package users

import (
	"context"
	"sort"
	"time"

	"tg-movie-bot/internal/domain"
)

// Stats — агрегированная статистика посещений для администратора.
type Stats struct {
	Users       int
	Visits      int
	OptedIn     int
	ActiveDay   int
	ActiveMonth int
	Top         []domain.User
}

// Stats считает статистику по снимку справочника. top ограничивает список самых активных.
func (d *Directory) Stats(ctx context.Context, now time.Time, top int) (Stats, error) {
	all, err := d.ListAll(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Summarize(all, now, top), nil
}

// Summarize считает статистику по списку пользователей.
func Summarize(all []domain.User, now time.Time, top int) Stats {
	stats := Stats{Users: len(all)}
	for _, u := range all {
		stats.Visits += u.VisitCount
		if u.RaffleOptIn {
			stats.OptedIn++
		}
		if u.LastActive == nil {
			continue
		}
		age := now.Sub(*u.LastActive)
		if age <= 24*time.Hour {
			stats.ActiveDay++
		}
		if age <= 30*24*time.Hour {
			stats.ActiveMonth++
		}
	}
	if top > 0 {
		ranked := append([]domain.User(nil), all...)
		sort.SliceStable(ranked, func(i, j int) bool {
			if ranked[i].VisitCount != ranked[j].VisitCount {
				return ranked[i].VisitCount > ranked[j].VisitCount
			}
			return ranked[i].ID < ranked[j].ID
		})
		if len(ranked) > top {
			ranked = ranked[:top]
		}
		stats.Top = ranked
	}
	return stats
}
