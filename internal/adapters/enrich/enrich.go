package enrich

import (
	"strconv"

	"gh-notify-bot/internal/domain"
)

// Static возвращает дополнительные поля исходящего сообщения,
// производные от репозитория, issue и комментария. Чистые функции.
type Static struct{}

var _ domain.Enricher = (*Static)(nil)

// NewStatic создаёт обогатитель.
func NewStatic() *Static {
	return &Static{}
}

// RepoFields возвращает поля для сообщения о репозитории.
func (s *Static) RepoFields(repo domain.Repository) map[string]string {
	return map[string]string{
		"repository":     repo.FullName,
		"repository_url": repo.URL,
	}
}

// CommentFields возвращает поля для сообщения с комментарием.
func (s *Static) CommentFields(comment domain.Comment, repo domain.Repository, issue *domain.IssueSnapshot) map[string]string {
	fields := s.RepoFields(repo)
	fields["comment_url"] = comment.URL
	fields["comment_author"] = comment.AuthorLogin
	if issue != nil && issue.Number > 0 {
		fields["issue_number"] = strconv.Itoa(issue.Number)
	}
	return fields
}

// IssueFields возвращает поля для сообщения об issue или pull request.
func (s *Static) IssueFields(issue domain.IssueSnapshot, repo domain.Repository) map[string]string {
	fields := s.RepoFields(repo)
	if issue.Number > 0 {
		fields["issue_number"] = strconv.Itoa(issue.Number)
	}
	if issue.State != "" {
		fields["issue_state"] = issue.State
	}
	return fields
}
