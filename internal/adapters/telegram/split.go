package telegram

import "strings"

const messageLimit = 4096

// cardHeading — первая строка карточки фильма (см. bot.movieCard).
const cardHeading = "🎬"

const (
	paragraphSep = "\n\n"
	lineSep      = "\n"
)

// piece — фрагмент текста и разделитель, которым он приклеивается к предыдущему.
type piece struct {
	text string
	sep  string
}

func (p piece) size() int { return len([]rune(p.text)) }

func (p piece) heading() bool {
	return p.sep == paragraphSep && strings.HasPrefix(p.text, cardHeading) && !strings.Contains(p.text, lineSep)
}

// SplitMessage режет текст на части не длиннее лимита Telegram.
// Карточки делятся по абзацам: описание не отрывается от ссылки посреди строки,
// а заголовок фильма не остаётся последней строкой части без своей карточки.
// Абзац длиннее лимита режется по строкам, строка длиннее лимита — по символам.
func SplitMessage(text string) []string {
	trimmed := strings.TrimSpace(strings.ReplaceAll(text, "\r\n", lineSep))
	if trimmed == "" {
		return nil
	}
	if len([]rune(trimmed)) <= messageLimit {
		return []string{trimmed}
	}

	var (
		parts []string
		cur   []piece
		size  int
	)
	flush := func() {
		if len(cur) == 0 {
			return
		}
		var b strings.Builder
		for i, p := range cur {
			if i > 0 {
				b.WriteString(p.sep)
			}
			b.WriteString(p.text)
		}
		parts = append(parts, b.String())
		cur, size = nil, 0
	}

	for _, p := range pieces(trimmed) {
		if len(cur) > 0 && size+len([]rune(p.sep))+p.size() > messageLimit {
			var carry []piece
			last := cur[len(cur)-1]
			if len(cur) > 1 && last.heading() && last.size()+len([]rune(p.sep))+p.size() <= messageLimit {
				carry = []piece{last}
				cur = cur[:len(cur)-1]
			}
			flush()
			for _, c := range carry {
				cur = append(cur, c)
				size = c.size()
			}
		}
		if len(cur) > 0 {
			size += len([]rune(p.sep))
		}
		cur = append(cur, p)
		size += p.size()
	}
	flush()

	return parts
}

// pieces раскладывает текст на абзацы, а слишком длинные абзацы — на строки и куски строк.
func pieces(text string) []piece {
	var out []piece
	for _, para := range strings.Split(text, paragraphSep) {
		para = strings.Trim(para, lineSep)
		if para == "" {
			continue
		}
		if len([]rune(para)) <= messageLimit {
			out = append(out, piece{text: para, sep: paragraphSep})
			continue
		}
		sep := paragraphSep
		for _, line := range strings.Split(para, lineSep) {
			for _, chunk := range hardCut(line) {
				out = append(out, piece{text: chunk, sep: sep})
				sep = lineSep
			}
		}
	}
	return out
}

func hardCut(line string) []string {
	runes := []rune(line)
	if len(runes) <= messageLimit {
		return []string{line}
	}
	var out []string
	for len(runes) > messageLimit {
		out = append(out, string(runes[:messageLimit]))
		runes = runes[messageLimit:]
	}
	if len(runes) > 0 {
		out = append(out, string(runes))
	}
	return out
}
