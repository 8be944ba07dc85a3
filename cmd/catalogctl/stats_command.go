package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"tg-movie-bot/internal/usecase/users"
)

func newStatsCommand(ctx *commandContext) *cobra.Command {
	var top int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Статистика посещений бота",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore(cmd.Context())
			if err != nil {
				return err
			}
			stats, err := users.NewDirectory(store).Stats(cmd.Context(), time.Now().UTC(), top)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable([]string{"Показатель", "Значение"}, [][]string{
				{"Пользователей", strconv.Itoa(stats.Users)},
				{"Посещений", strconv.Itoa(stats.Visits)},
				{"Активны за сутки", strconv.Itoa(stats.ActiveDay)},
				{"Активны за месяц", strconv.Itoa(stats.ActiveMonth)},
				{"Участвуют в розыгрыше", strconv.Itoa(stats.OptedIn)},
			}, 2))
			if len(stats.Top) == 0 {
				return nil
			}
			rows := make([][]string, 0, len(stats.Top))
			for i, u := range stats.Top {
				name := u.DisplayName
				if name == "" {
					name = strconv.FormatInt(u.ID, 10)
				}
				rows = append(rows, []string{strconv.Itoa(i + 1), name, strconv.Itoa(u.VisitCount)})
			}
			fmt.Fprintln(out, renderTable([]string{"#", "Пользователь", "Посещений"}, rows, 1, 3))
			return nil
		},
	}
	cmd.Flags().IntVar(&top, "top", 10, "Размер списка самых активных")
	return cmd
}
