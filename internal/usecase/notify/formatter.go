package notify

import (
	"fmt"
	"strings"

	"gh-notify-bot/internal/domain"
)

// Глифы по типу субъекта для визуальной навигации по ленте.
const (
	glyphIssue       = "📝"
	glyphPullRequest = "🔀"
	glyphVulnAlert   = "⚠️"
	glyphFallback    = "🔔"
)

// GlyphFor возвращает глиф для типа субъекта. Тотальная функция
// с запасным глифом для нераспознанных типов.
func GlyphFor(kind domain.SubjectKind) string {
	switch kind {
	case domain.SubjectIssue:
		return glyphIssue
	case domain.SubjectPullRequest:
		return glyphPullRequest
	case domain.SubjectVulnerabilityAlert:
		return glyphVulnAlert
	default:
		return glyphFallback
	}
}

// Formatter собирает текст сообщения из уведомления и диффа.
type Formatter struct {
	render domain.Renderer
	enrich domain.Enricher
}

// NewFormatter создаёт форматтер.
func NewFormatter(render domain.Renderer, enrich domain.Enricher) *Formatter {
	return &Formatter{render: render, enrich: enrich}
}

// Notification форматирует обычное уведомление: заголовок, блок изменений
// и цитату нового комментария. Пустой дифф не даёт блока изменений.
func (f *Formatter) Notification(n domain.Notification, diff *domain.IssueDiff, hasNewComment bool) domain.Message {
	var b strings.Builder

	b.WriteString(headline(n))

	if diff != nil {
		writeDiffBlock(&b, *diff)
	}

	// hasNewComment без ссылки на комментарий — нарушение контракта вызывающим;
	// деградируем до сообщения без цитаты.
	if hasNewComment && n.Comment != nil {
		writeCommentBlock(&b, *n.Comment)
	}

	plain := strings.TrimRight(b.String(), "\n")
	msg := domain.Message{
		Kind:   domain.MessageNotice,
		Plain:  plain,
		Rich:   f.render.Render(plain),
		Format: domain.RichFormatHTML,
	}
	if f.enrich != nil && n.Repo != nil {
		if hasNewComment && n.Comment != nil {
			msg.Extra = f.enrich.CommentFields(*n.Comment, *n.Repo, n.Issue)
		} else if n.Issue != nil {
			msg.Extra = f.enrich.IssueFields(*n.Issue, *n.Repo)
		}
	}
	return msg
}

// VulnerabilityAlert форматирует предупреждение безопасности: глиф, заголовок
// и ссылка на репозиторий. Ни диффа, ни комментария — даже если событие их несёт.
func (f *Formatter) VulnerabilityAlert(n domain.Notification) domain.Message {
	var b strings.Builder
	b.WriteString(glyphVulnAlert)
	b.WriteString(" ")
	b.WriteString(n.Title)
	if n.Repo != nil {
		fmt.Fprintf(&b, " for [%s](%s)", n.Repo.FullName, n.Repo.URL)
	}

	plain := b.String()
	msg := domain.Message{
		Kind:   domain.MessageAlert,
		Plain:  plain,
		Rich:   f.render.Render(plain),
		Format: domain.RichFormatHTML,
	}
	if f.enrich != nil && n.Repo != nil {
		msg.Extra = f.enrich.RepoFields(*n.Repo)
	}
	return msg
}

func headline(n domain.Notification) string {
	var b strings.Builder
	b.WriteString(GlyphFor(n.Kind))
	fmt.Fprintf(&b, " [%s](%s)", n.Title, n.URL)
	if n.Issue != nil && n.Issue.Number > 0 {
		fmt.Fprintf(&b, " #%d", n.Issue.Number)
	}
	if n.Repo != nil {
		fmt.Fprintf(&b, " for **[%s](%s)**", n.Repo.FullName, n.Repo.URL)
	}
	b.WriteString("\n")
	return b.String()
}

func writeDiffBlock(b *strings.Builder, diff domain.IssueDiff) {
	if diff.State != nil {
		fmt.Fprintf(b, "State changed to: %s\n", *diff.State)
	}
	if diff.Title != nil {
		fmt.Fprintf(b, "Title changed to: %s\n", *diff.Title)
	}
	if diff.Assignee != nil {
		if diff.Assignee.To != nil {
			fmt.Fprintf(b, "Assigned to: [%s](%s)\n", diff.Assignee.To.Login, diff.Assignee.To.URL)
		} else {
			b.WriteString("Unassigned\n")
		}
	}
}

func writeCommentBlock(b *strings.Builder, c domain.Comment) {
	fmt.Fprintf(b, "[%s](%s) said:\n", c.AuthorLogin, c.AuthorURL)
	for _, line := range strings.Split(strings.TrimRight(c.Body, "\n"), "\n") {
		b.WriteString("> " + line + "\n")
	}
}
