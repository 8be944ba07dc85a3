// Package app собирает адаптеры по конфигу. Общий код для всех бинарников.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"tg-movie-bot/internal/adapters/catalog"
	"tg-movie-bot/internal/adapters/repo"
	"tg-movie-bot/internal/adapters/translator"
	"tg-movie-bot/internal/domain"
	"tg-movie-bot/internal/infra/cache"
	"tg-movie-bot/internal/infra/config"
	"tg-movie-bot/internal/infra/db"
	"tg-movie-bot/internal/infra/libretranslate"
	"tg-movie-bot/internal/infra/queue"
)

// Store — все репозитории, которые реализует хранилище.
type Store interface {
	domain.CatalogRepo
	domain.CatalogWriter
	domain.UserRepo
	domain.ReactionRepo
	domain.TicketRepo
	domain.RaffleRepo
	EnsureSchema(ctx context.Context) error
}

var (
	_ Store = (*repo.Postgres)(nil)
	_ Store = (*repo.SQLite)(nil)
)

// OpenStore подключает хранилище по STORE_DRIVER и создаёт схему.
func OpenStore(ctx context.Context, cfg config.AppConfig) (Store, func(), error) {
	var (
		store   Store
		closeFn func()
	)
	switch cfg.Store.Driver {
	case "postgres":
		pool, err := db.Connect(ctx, cfg.Store.PGDSN)
		if err != nil {
			return nil, nil, err
		}
		store, closeFn = repo.NewPostgres(pool, cfg.Store.Timeout), pool.Close
	case "sqlite":
		conn, err := db.OpenSQLite(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		store, closeFn = repo.NewSQLite(conn), func() { _ = conn.Close() }
	default:
		return nil, nil, fmt.Errorf("неизвестный драйвер хранилища %q", cfg.Store.Driver)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("создание схемы: %w", err)
	}
	return store, closeFn, nil
}

// OpenCatalog выбирает источник каталога по CATALOG_SOURCE. Файл доступен только на чтение,
// поэтому для json writer равен nil.
func OpenCatalog(ctx context.Context, cfg config.AppConfig, store Store) (domain.CatalogRepo, domain.CatalogWriter, func(), error) {
	switch cfg.Catalog.Source {
	case "store":
		return store, store, func() {}, nil
	case "json":
		return catalog.NewFile(cfg.Catalog.File), nil, func() {}, nil
	case "mongo":
		m, err := catalog.NewMongo(ctx, cfg.Catalog.MongoURI, cfg.Catalog.MongoDatabase, cfg.Catalog.MongoCollection)
		if err != nil {
			return nil, nil, nil, err
		}
		closeFn := func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = m.Close(ctx)
		}
		return m, m, closeFn, nil
	default:
		return nil, nil, nil, fmt.Errorf("неизвестный источник каталога %q", cfg.Catalog.Source)
	}
}

// OpenRedis подключается к Redis, если задан REDIS_ADDR. Без адреса возвращает nil.
func OpenRedis(ctx context.Context, cfg config.AppConfig) (*redis.Client, domain.Cache, error) {
	if cfg.RedisAddr == "" {
		return nil, nil, nil
	}
	client, err := cache.NewClient(ctx, cfg.RedisAddr)
	if err != nil {
		return nil, nil, err
	}
	return client, cache.NewRedis(client), nil
}

// OpenQueue выбирает очередь рассылок: RabbitMQ, затем Redis. Без обоих возвращает nil,
// и рассылка выполняется в процессе бота.
func OpenQueue(cfg config.AppConfig, client *redis.Client) (domain.BroadcastQueue, func(), error) {
	if cfg.RabbitURL != "" {
		q, err := queue.NewRabbitBroadcastQueue(cfg.RabbitURL, cfg.Queues.Broadcast)
		if err != nil {
			return nil, nil, err
		}
		return q, func() { _ = q.Close() }, nil
	}
	if client != nil {
		return queue.NewRedisBroadcastQueue(client, cfg.Queues.Broadcast), func() {}, nil
	}
	return nil, func() {}, nil
}

// NewTranslator создаёт переводчик запросов. Без TRANSLATE_URL запросы не переводятся.
func NewTranslator(cfg config.AppConfig, c domain.Cache, log zerolog.Logger) domain.Translator {
	if cfg.Translator.URL == "" {
		return translator.Identity{}
	}
	client := libretranslate.NewClient(cfg.Translator.URL, cfg.Translator.APIKey, cfg.Translator.Timeout)
	return translator.NewRemote(client, c, cfg.Translator.Target, cfg.Translator.Timeout, cfg.Translator.CacheTTL, log)
}
