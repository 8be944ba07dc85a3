package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"tg-movie-bot/internal/adapters/catalog"
	"tg-movie-bot/internal/app"
	"tg-movie-bot/internal/domain"
	"tg-movie-bot/internal/usecase/resolver"
)

const suggestLimit = 5

func newImportCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "import <file.json>",
		Short: "Загрузить фильмы из JSON в каталог",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			movies, err := catalog.NewFile(args[0]).ListMovies(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if dryRun {
				fmt.Fprintf(out, "Фильмов в файле: %d\n", len(movies))
				return nil
			}
			_, writer, err := ctx.openCatalog(cmd.Context())
			if err != nil {
				return err
			}
			if writer == nil {
				return errors.New("источник каталога доступен только на чтение, укажите CATALOG_SOURCE=store или mongo")
			}
			n, err := writer.UpsertMovies(cmd.Context(), movies)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Загружено фильмов: %d\n", n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Только проверить файл")
	return cmd
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Показать фильмы каталога",
		RunE: func(cmd *cobra.Command, args []string) error {
			src, _, err := ctx.openCatalog(cmd.Context())
			if err != nil {
				return err
			}
			movies, err := src.ListMovies(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(movies) == 0 {
				fmt.Fprintln(out, "Каталог пуст")
				return nil
			}
			if limit > 0 && len(movies) > limit {
				movies = movies[:limit]
			}
			rows := make([][]string, 0, len(movies))
			for _, m := range movies {
				rows = append(rows, []string{m.Code, m.Title, m.Link})
			}
			fmt.Fprintln(out, renderTable([]string{"Код", "Название", "Ссылка"}, rows))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Сколько фильмов показать (0 — все)")
	return cmd
}

func newResolveCommand(ctx *commandContext) *cobra.Command {
	var translate bool
	cmd := &cobra.Command{
		Use:   "resolve <запрос>",
		Short: "Проверить, какой фильм бот найдёт по запросу",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.config()
			if err != nil {
				return err
			}
			src, _, err := ctx.openCatalog(cmd.Context())
			if err != nil {
				return err
			}
			var tr domain.Translator
			if translate {
				tr = app.NewTranslator(cfg, nil, zerolog.Nop())
			}
			res, err := resolver.Load(cmd.Context(), src, tr, cfg.Match.Threshold)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			found, err := res.Resolve(cmd.Context(), args[0])
			if errors.Is(err, resolver.ErrNotFound) {
				fmt.Fprintln(out, "Не найдено")
				suggestions := res.Suggest(args[0], suggestLimit)
				if len(suggestions) == 0 {
					return nil
				}
				rows := make([][]string, 0, len(suggestions))
				for _, m := range suggestions {
					rows = append(rows, []string{m.Code, m.Title})
				}
				fmt.Fprintln(out, renderTable([]string{"Код", "Возможно, вы искали"}, rows))
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Код", "Название", "Шаг", "Оценка"},
				[][]string{{found.Movie.Code, found.Movie.Title, string(found.Step), strconv.FormatFloat(found.Score, 'f', 2, 64)}},
				4,
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&translate, "translate", false, "Переводить запрос через TRANSLATE_URL")
	return cmd
}
