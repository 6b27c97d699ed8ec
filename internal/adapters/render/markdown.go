package render

import (
	"html"
	"regexp"
	"strings"

	"gh-notify-bot/internal/domain"
)

// Markdown — чистый рендерер markdown-подмножества в HTML для rich-text
// доставки: ссылки, жирный текст, inline-код и цитаты. Никакой state,
// никаких побочных эффектов.
type Markdown struct{}

var _ domain.Renderer = (*Markdown)(nil)

// NewMarkdown создаёт рендерер.
func NewMarkdown() *Markdown {
	return &Markdown{}
}

var (
	linkRe = regexp.MustCompile(`\[([^\]]+)\]\(([^)\s]+)\)`)
	boldRe = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	codeRe = regexp.MustCompile("`([^`]+)`")
)

// Render преобразует текст в HTML. Спецсимволы экранируются до применения
// разметки, поэтому содержимое уведомлений не ломает выходной HTML.
func (m *Markdown) Render(markdown string) string {
	lines := strings.Split(markdown, "\n")
	var out []string
	var quote []string

	flushQuote := func() {
		if len(quote) == 0 {
			return
		}
		out = append(out, "<blockquote>"+strings.Join(quote, "\n")+"</blockquote>")
		quote = nil
	}

	for _, line := range lines {
		if body, ok := strings.CutPrefix(line, "> "); ok {
			quote = append(quote, renderInline(body))
			continue
		}
		if line == ">" {
			quote = append(quote, "")
			continue
		}
		flushQuote()
		out = append(out, renderInline(line))
	}
	flushQuote()

	return strings.Join(out, "\n")
}

func renderInline(line string) string {
	escaped := html.EscapeString(line)
	escaped = linkRe.ReplaceAllString(escaped, `<a href="$2">$1</a>`)
	escaped = boldRe.ReplaceAllString(escaped, "<b>$1</b>")
	escaped = codeRe.ReplaceAllString(escaped, "<code>$1</code>")
	return escaped
}
