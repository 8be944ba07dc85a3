package translator

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tg-movie-bot/internal/domain"
	"tg-movie-bot/internal/infra/libretranslate"
	"tg-movie-bot/internal/infra/metrics"
)

type translateClient interface {
	Translate(ctx context.Context, text, target string) (libretranslate.TranslateResponse, error)
}

// Remote реализует domain.Translator через внешний сервис. При любой ошибке
// возвращает исходный текст, удачные переводы кэширует.
type Remote struct {
	client   translateClient
	cache    domain.Cache
	target   string
	timeout  time.Duration
	cacheTTL time.Duration
	log      zerolog.Logger
}

// NewRemote создаёт переводчик. cache может быть nil.
func NewRemote(client translateClient, cache domain.Cache, target string, timeout, cacheTTL time.Duration, log zerolog.Logger) *Remote {
	if target == "" {
		target = "en"
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Remote{client: client, cache: cache, target: target, timeout: timeout, cacheTTL: cacheTTL, log: log}
}

// Translate реализует domain.Translator.
func (r *Remote) Translate(ctx context.Context, text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return text
	}
	key := r.cacheKey(text)
	if r.cache != nil {
		if cached, err := r.cache.Get(ctx, key); err == nil && len(cached) > 0 {
			return string(cached)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	resp, err := r.client.Translate(callCtx, text, r.target)
	translated := strings.TrimSpace(resp.TranslatedText)
	if err != nil || translated == "" {
		metrics.TranslationFallbacks.Inc()
		r.log.Warn().Err(err).Msg("translator: перевод недоступен, используется исходный текст")
		return text
	}
	if r.cache != nil && r.cacheTTL > 0 {
		if err := r.cache.Set(ctx, key, []byte(translated), r.cacheTTL); err != nil {
			r.log.Debug().Err(err).Msg("translator: не удалось сохранить перевод в кэш")
		}
	}
	return translated
}

func (r *Remote) cacheKey(text string) string {
	sum := sha1.Sum([]byte(strings.ToLower(text)))
	return "translate:" + r.target + ":" + hex.EncodeToString(sum[:])
}

// Identity возвращает текст без изменений; используется, если сервис перевода не настроен.
type Identity struct{}

// Translate реализует domain.Translator.
func (Identity) Translate(_ context.Context, text string) string {
	return text
}
