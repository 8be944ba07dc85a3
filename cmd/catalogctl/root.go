package main

import (
	"context"
	"sync"

	"github.com/spf13/cobra"

	"tg-movie-bot/internal/app"
	"tg-movie-bot/internal/domain"
	"tg-movie-bot/internal/infra/config"
)

// commandContext лениво открывает хранилище и каталог для подкоманд.
type commandContext struct {
	mu      sync.Mutex
	cfg     *config.AppConfig
	store   app.Store
	catalog domain.CatalogRepo
	writer  domain.CatalogWriter
	closers []func()
}

func (c *commandContext) config() (config.AppConfig, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cfg == nil {
		cfg, err := config.ParseStorage()
		if err != nil {
			return config.AppConfig{}, err
		}
		c.cfg = &cfg
	}
	return *c.cfg, nil
}

func (c *commandContext) openStore(ctx context.Context) (app.Store, error) {
	cfg, err := c.config()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		store, closeFn, err := app.OpenStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		c.store = store
		c.closers = append(c.closers, closeFn)
	}
	return c.store, nil
}

func (c *commandContext) openCatalog(ctx context.Context) (domain.CatalogRepo, domain.CatalogWriter, error) {
	cfg, err := c.config()
	if err != nil {
		return nil, nil, err
	}
	var store app.Store
	if cfg.Catalog.Source == "store" {
		if store, err = c.openStore(ctx); err != nil {
			return nil, nil, err
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.catalog == nil {
		src, writer, closeFn, err := app.OpenCatalog(ctx, cfg, store)
		if err != nil {
			return nil, nil, err
		}
		c.catalog, c.writer = src, writer
		c.closers = append(c.closers, closeFn)
	}
	return c.catalog, c.writer, nil
}

func (c *commandContext) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "catalogctl",
		Short:         "Управление каталогом фильмов и статистикой бота",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			ctx.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(newImportCommand(ctx))
	rootCmd.AddCommand(newListCommand(ctx))
	rootCmd.AddCommand(newResolveCommand(ctx))
	rootCmd.AddCommand(newStatsCommand(ctx))

	return rootCmd
}
