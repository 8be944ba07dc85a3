package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	Port   int    `envconfig:"PORT" default:"8080"`

	Telegram struct {
		Token      string  `envconfig:"TG_BOT_TOKEN"`
		WebhookURL string  `envconfig:"TG_WEBHOOK_URL"`
		Mode       string  `envconfig:"TG_MODE" default:"webhook"`
		AdminIDs   []int64 `envconfig:"ADMIN_IDS"`
	} `envconfig:""`

	Store struct {
		Driver     string        `envconfig:"STORE_DRIVER" default:"postgres"`
		PGDSN      string        `envconfig:"PG_DSN"`
		SQLitePath string        `envconfig:"SQLITE_PATH" default:"moviebot.db"`
		Timeout    time.Duration `envconfig:"STORE_TIMEOUT" default:"5s"`
	} `envconfig:""`

	Catalog struct {
		Source          string `envconfig:"CATALOG_SOURCE" default:"store"`
		File            string `envconfig:"CATALOG_FILE" default:"movies.json"`
		MongoURI        string `envconfig:"MONGODB_URI"`
		MongoDatabase   string `envconfig:"MONGODB_DATABASE" default:"moviebot"`
		MongoCollection string `envconfig:"MONGODB_COLLECTION" default:"movies"`
	} `envconfig:""`

	RedisAddr string `envconfig:"REDIS_ADDR"`
	RabbitURL string `envconfig:"RABBITMQ_URL"`

	Queues struct {
		Broadcast string `envconfig:"BROADCAST_QUEUE_KEY" default:"broadcast_jobs"`
	} `envconfig:""`

	Translator struct {
		URL      string        `envconfig:"TRANSLATE_URL"`
		APIKey   string        `envconfig:"TRANSLATE_API_KEY"`
		Target   string        `envconfig:"CATALOG_LANG" default:"en"`
		Timeout  time.Duration `envconfig:"TRANSLATE_TIMEOUT" default:"3s"`
		CacheTTL time.Duration `envconfig:"TRANSLATE_CACHE_TTL" default:"168h"`
	} `envconfig:""`

	Match struct {
		Threshold float64 `envconfig:"MATCH_THRESHOLD" default:"0.6"`
	} `envconfig:""`

	Raffle struct {
		Day      int    `envconfig:"RAFFLE_DAY" default:"1"`
		Hour     int    `envconfig:"RAFFLE_HOUR" default:"12"`
		LockFile string `envconfig:"SCHEDULER_LOCK_FILE" default:"/tmp/moviebot-scheduler.lock"`
	} `envconfig:""`

	Broadcast struct {
		Concurrency  int           `envconfig:"BROADCAST_CONCURRENCY" default:"8"`
		Timeout      time.Duration `envconfig:"BROADCAST_TIMEOUT" default:"10s"`
		PruneBlocked bool          `envconfig:"BROADCAST_PRUNE_BLOCKED" default:"false"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения (и .env, если он есть). Некорректный конфиг фатален.
func Load() AppConfig {
	cfg, err := Parse()
	if err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}

// Parse читает конфиг без завершения процесса.
func Parse() (AppConfig, error) {
	cfg, err := read()
	if err != nil {
		return AppConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// ParseStorage читает конфиг и проверяет только хранилище и каталог.
// Нужен утилитам, которым не требуется токен бота.
func ParseStorage() (AppConfig, error) {
	cfg, err := read()
	if err != nil {
		return AppConfig{}, err
	}
	if err := errors.Join(cfg.storageErrors()...); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func read() (AppConfig, error) {
	_ = godotenv.Load()
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// Validate проверяет обязательные параметры.
func (c AppConfig) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Telegram.Token) == "" {
		errs = append(errs, errors.New("TG_BOT_TOKEN не задан"))
	}
	if len(c.Telegram.AdminIDs) == 0 {
		errs = append(errs, errors.New("ADMIN_IDS не задан"))
	}
	switch c.Telegram.Mode {
	case "webhook", "polling":
	default:
		errs = append(errs, fmt.Errorf("TG_MODE: неизвестный режим %q", c.Telegram.Mode))
	}
	errs = append(errs, c.storageErrors()...)
	if c.Raffle.Day < 1 || c.Raffle.Day > 28 {
		errs = append(errs, fmt.Errorf("RAFFLE_DAY должен быть от 1 до 28, получено %d", c.Raffle.Day))
	}
	if c.Raffle.Hour < 0 || c.Raffle.Hour > 23 {
		errs = append(errs, fmt.Errorf("RAFFLE_HOUR должен быть от 0 до 23, получено %d", c.Raffle.Hour))
	}
	return errors.Join(errs...)
}

func (c AppConfig) storageErrors() []error {
	var errs []error
	switch c.Store.Driver {
	case "postgres":
		if c.Store.PGDSN == "" {
			errs = append(errs, errors.New("PG_DSN не задан для STORE_DRIVER=postgres"))
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH не задан для STORE_DRIVER=sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER: неизвестный драйвер %q", c.Store.Driver))
	}
	switch c.Catalog.Source {
	case "store":
	case "json":
		if c.Catalog.File == "" {
			errs = append(errs, errors.New("CATALOG_FILE не задан для CATALOG_SOURCE=json"))
		}
	case "mongo":
		if c.Catalog.MongoURI == "" {
			errs = append(errs, errors.New("MONGODB_URI не задан для CATALOG_SOURCE=mongo"))
		}
	default:
		errs = append(errs, fmt.Errorf("CATALOG_SOURCE: неизвестный источник %q", c.Catalog.Source))
	}
	if c.Match.Threshold <= 0 || c.Match.Threshold > 1 {
		errs = append(errs, fmt.Errorf("MATCH_THRESHOLD должен быть в (0, 1], получено %v", c.Match.Threshold))
	}
	return errs
}
