package resolver

import (
	"context"
	"errors"
	"strings"

	"tg-movie-bot/internal/domain"
	"tg-movie-bot/internal/infra/metrics"
)

// ErrNotFound — ни один шаг поиска не дал результата. Ожидаемый исход, а не сбой.
var ErrNotFound = errors.New("фильм не найден")

// Result описывает найденный фильм и шаг, на котором он найден.
type Result struct {
	Movie domain.Movie
	Step  Step
	Score float64
}

// Resolver сопоставляет запрос пользователя с фильмом каталога.
type Resolver struct {
	matcher    *Matcher
	translator domain.Translator
}

// New создаёт резолвер. translator может быть nil: тогда запрос не переводится.
func New(movies []domain.Movie, translator domain.Translator, threshold float64) *Resolver {
	return &Resolver{matcher: NewMatcher(movies, threshold), translator: translator}
}

// Load читает каталог из хранилища один раз и строит резолвер.
func Load(ctx context.Context, catalog domain.CatalogRepo, translator domain.Translator, threshold float64) (*Resolver, error) {
	movies, err := catalog.ListMovies(ctx)
	if err != nil {
		return nil, err
	}
	return New(movies, translator, threshold), nil
}

// Resolve ищет фильм строго по порядку: код, точное название, перевод запроса,
// вхождение подстроки, приблизительное совпадение. Побочных эффектов нет.
func (r *Resolver) Resolve(ctx context.Context, rawQuery string) (Result, error) {
	query := strings.TrimSpace(rawQuery)
	if query == "" {
		return Result{}, ErrNotFound
	}
	if movie, ok := r.matcher.ByCode(query); ok {
		return r.hit(Result{Movie: movie, Step: StepCode, Score: 1})
	}
	if movie, ok := r.matcher.ByTitle(query); ok {
		return r.hit(Result{Movie: movie, Step: StepTitle, Score: 1})
	}

	translated := query
	if r.translator != nil {
		if out := strings.TrimSpace(r.translator.Translate(ctx, query)); out != "" {
			translated = out
		}
	}

	if movie, ok := r.matcher.BySubstring(translated); ok {
		return r.hit(Result{Movie: movie, Step: StepSubstring, Score: 1})
	}
	if candidate, ok := r.matcher.Approximate(translated); ok {
		return r.hit(Result{Movie: candidate.Movie, Step: StepFuzzy, Score: candidate.Score})
	}
	metrics.IncResolve("miss")
	return Result{}, ErrNotFound
}

func (r *Resolver) hit(res Result) (Result, error) {
	metrics.IncResolve(string(res.Step))
	return res, nil
}

// ByCode возвращает фильм по коду (для данных кнопок).
func (r *Resolver) ByCode(code string) (domain.Movie, bool) {
	return r.matcher.ByCode(code)
}

// Suggest возвращает похожие фильмы для подсказки «возможно, вы искали».
func (r *Resolver) Suggest(query string, n int) []domain.Movie {
	candidates := r.matcher.Suggest(query, n)
	movies := make([]domain.Movie, 0, len(candidates))
	for _, c := range candidates {
		movies = append(movies, c.Movie)
	}
	return movies
}

// Size возвращает количество фильмов в каталоге.
func (r *Resolver) Size() int {
	return r.matcher.Len()
}
