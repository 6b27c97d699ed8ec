package notify

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"gh-notify-bot/internal/domain"
)

// Diff сравнивает свежий снапшот с сохранённым и возвращает изменившиеся поля.
// Чистая функция: отсутствующие опциональные поля считаются отсутствием, не ошибкой.
func Diff(current, previous domain.IssueSnapshot) domain.IssueDiff {
	var diff domain.IssueDiff

	if !strings.EqualFold(current.State, previous.State) {
		state := capitalize(current.State)
		diff.State = &state
	}

	if assigneeChanged(current.Assignee, previous.Assignee) {
		diff.Assignee = &domain.AssigneeDelta{To: current.Assignee}
	}

	if current.Title != previous.Title {
		title := current.Title
		diff.Title = &title
	}

	return diff
}

// assigneeChanged сравнивает исполнителей по идентификатору,
// допуская отсутствие с любой стороны.
func assigneeChanged(current, previous *domain.Assignee) bool {
	switch {
	case current == nil && previous == nil:
		return false
	case current == nil || previous == nil:
		return true
	default:
		return current.ID != previous.ID
	}
}

// capitalize переводит первую букву в верхний регистр, остальные — в нижний.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}
