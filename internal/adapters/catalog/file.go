package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"tg-movie-bot/internal/domain"
)

// File читает каталог из JSON-файла.
type File struct {
	path string
}

// NewFile создаёт источник каталога из файла.
func NewFile(path string) *File {
	return &File{path: path}
}

// ListMovies реализует domain.CatalogRepo.
func (f *File) ListMovies(ctx context.Context) ([]domain.Movie, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("чтение каталога %s: %w", f.path, err)
	}
	return Parse(data)
}

type fileMovie struct {
	Code        string          `json:"code"`
	ID          json.RawMessage `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Link        string          `json:"link"`
}

func (m fileMovie) toDomain(key string) domain.Movie {
	code := strings.TrimSpace(m.Code)
	if code == "" {
		code = rawID(m.ID)
	}
	if code == "" {
		code = key
	}
	return domain.Movie{
		Code:        code,
		Title:       strings.TrimSpace(m.Title),
		Description: strings.TrimSpace(m.Description),
		Link:        strings.TrimSpace(m.Link),
	}
}

// rawID принимает id как строкой, так и числом.
func rawID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// Parse разбирает каталог: массив фильмов или объект, где ключ — код фильма.
// Записи без кода или названия отбрасываются.
func Parse(data []byte) ([]domain.Movie, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("пустой каталог")
	}
	var movies []domain.Movie
	switch data[0] {
	case '[':
		var list []fileMovie
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("разбор каталога: %w", err)
		}
		for _, m := range list {
			movies = append(movies, m.toDomain(""))
		}
	case '{':
		var byCode map[string]fileMovie
		if err := json.Unmarshal(data, &byCode); err != nil {
			return nil, fmt.Errorf("разбор каталога: %w", err)
		}
		keys := make([]string, 0, len(byCode))
		for k := range byCode {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			movies = append(movies, byCode[k].toDomain(strings.TrimSpace(k)))
		}
	default:
		return nil, errors.New("каталог должен быть массивом или объектом")
	}

	out := movies[:0]
	for _, m := range movies {
		if m.Code == "" || m.Title == "" {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}
