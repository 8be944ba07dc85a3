package resolver

import (
	"sort"
	"strings"

	"github.com/hbollon/go-edlib"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"tg-movie-bot/internal/domain"
)

// DefaultThreshold — минимальная похожесть для приблизительного совпадения.
const DefaultThreshold = 0.6

// Step описывает шаг поиска, на котором найден фильм.
type Step string

const (
	StepCode      Step = "code"
	StepTitle     Step = "title"
	StepSubstring Step = "substring"
	StepFuzzy     Step = "fuzzy"
)

type entry struct {
	movie domain.Movie
	key   string
}

// Matcher ищет фильм по коду и названию. Неизменяем после создания и безопасен
// для конкурентного использования.
type Matcher struct {
	byCode    map[string]domain.Movie
	entries   []entry
	threshold float64
}

// Candidate — фильм с оценкой похожести.
type Candidate struct {
	Movie domain.Movie
	Score float64
}

// NewMatcher строит индекс каталога. При повторе кода побеждает первая запись.
func NewMatcher(movies []domain.Movie, threshold float64) *Matcher {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	m := &Matcher{
		byCode:    make(map[string]domain.Movie, len(movies)),
		entries:   make([]entry, 0, len(movies)),
		threshold: threshold,
	}
	for _, movie := range movies {
		code := strings.TrimSpace(movie.Code)
		if code == "" {
			continue
		}
		if _, dup := m.byCode[code]; dup {
			continue
		}
		movie.Code = code
		m.byCode[code] = movie
		m.entries = append(m.entries, entry{movie: movie, key: Normalize(movie.Title)})
	}
	// Порядок по названию делает выбор среди равных кандидатов детерминированным.
	sort.SliceStable(m.entries, func(i, j int) bool {
		if m.entries[i].key != m.entries[j].key {
			return m.entries[i].key < m.entries[j].key
		}
		return m.entries[i].movie.Code < m.entries[j].movie.Code
	})
	return m
}

// Normalize приводит строку к виду для сравнения: NFC, свёртка регистра, схлопнутые пробелы.
func Normalize(s string) string {
	s = norm.NFC.String(s)
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}

// Len возвращает размер каталога.
func (m *Matcher) Len() int {
	return len(m.entries)
}

// ByCode ищет фильм по точному коду.
func (m *Matcher) ByCode(code string) (domain.Movie, bool) {
	movie, ok := m.byCode[strings.TrimSpace(code)]
	return movie, ok
}

// ByTitle ищет точное совпадение названия без учёта регистра.
func (m *Matcher) ByTitle(query string) (domain.Movie, bool) {
	key := Normalize(query)
	if key == "" {
		return domain.Movie{}, false
	}
	for _, e := range m.entries {
		if e.key == key {
			return e.movie, true
		}
	}
	return domain.Movie{}, false
}

// BySubstring возвращает первое по алфавиту название, содержащее запрос.
func (m *Matcher) BySubstring(query string) (domain.Movie, bool) {
	key := Normalize(query)
	if key == "" {
		return domain.Movie{}, false
	}
	for _, e := range m.entries {
		if strings.Contains(e.key, key) {
			return e.movie, true
		}
	}
	return domain.Movie{}, false
}

// Approximate возвращает самое похожее название, если его оценка не ниже порога.
func (m *Matcher) Approximate(query string) (Candidate, bool) {
	key := Normalize(query)
	if key == "" {
		return Candidate{}, false
	}
	var (
		best  Candidate
		found bool
	)
	for _, e := range m.entries {
		score := Similarity(key, e.key)
		if !found || score > best.Score {
			best = Candidate{Movie: e.movie, Score: score}
			found = true
		}
	}
	if !found || best.Score < m.threshold {
		return Candidate{}, false
	}
	return best, true
}

// Suggest возвращает до n наиболее похожих фильмов с оценкой не ниже половины порога.
func (m *Matcher) Suggest(query string, n int) []Candidate {
	key := Normalize(query)
	if key == "" || n <= 0 {
		return nil
	}
	candidates := make([]Candidate, 0, len(m.entries))
	for _, e := range m.entries {
		if score := Similarity(key, e.key); score >= m.threshold/2 {
			candidates = append(candidates, Candidate{Movie: e.movie, Score: score})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates
}

// Similarity оценивает похожесть двух нормализованных строк в диапазоне [0, 1]:
// максимум из похожести по Левенштейну и коэффициента Жаккара по словам.
func Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	var score float64
	if lev, err := edlib.StringsSimilarity(a, b, edlib.Levenshtein); err == nil {
		score = float64(lev)
	}
	if jac := float64(edlib.JaccardSimilarity(a, b, 0)); jac > score {
		score = jac
	}
	return score
}
