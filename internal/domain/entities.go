package domain

import (
	"strings"
	"time"
)

// SubjectKind описывает тип субъекта уведомления.
type SubjectKind string

const (
	// SubjectIssue — уведомление об issue.
	SubjectIssue SubjectKind = "Issue"
	// SubjectPullRequest — уведомление о pull request.
	SubjectPullRequest SubjectKind = "PullRequest"
	// SubjectVulnerabilityAlert — предупреждение безопасности репозитория.
	SubjectVulnerabilityAlert SubjectKind = "RepositoryVulnerabilityAlert"
	// SubjectOther — любой нераспознанный тип субъекта.
	SubjectOther SubjectKind = "Other"
)

// ParseSubjectKind приводит строковый тип субъекта к закрытому перечислению.
// Нераспознанные значения сводятся к SubjectOther.
func ParseSubjectKind(raw string) SubjectKind {
	switch SubjectKind(strings.TrimSpace(raw)) {
	case SubjectIssue:
		return SubjectIssue
	case SubjectPullRequest:
		return SubjectPullRequest
	case SubjectVulnerabilityAlert:
		return SubjectVulnerabilityAlert
	default:
		return SubjectOther
	}
}

// Assignee описывает назначенного исполнителя issue или pull request.
type Assignee struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	URL   string `json:"html_url"`
}

// IssueSnapshot — срез изменяемых полей issue/PR на момент уведомления.
// Идентичность для диффа — (репозиторий, номер, комната), никогда не URL.
type IssueSnapshot struct {
	State    string    `json:"state"`
	Title    string    `json:"title"`
	Assignee *Assignee `json:"assignee,omitempty"`
	Number   int       `json:"number"`
	URL      string    `json:"html_url"`
}

// Repository описывает репозиторий, к которому относится уведомление.
type Repository struct {
	FullName string `json:"full_name"`
	URL      string `json:"html_url"`
}

// Comment описывает последний комментарий по субъекту уведомления.
type Comment struct {
	AuthorLogin string `json:"author_login"`
	AuthorURL   string `json:"author_url"`
	Body        string `json:"body"`
	URL         string `json:"html_url"`
}

// Notification — одно событие уведомления пользователя.
type Notification struct {
	Kind    SubjectKind    `json:"kind"`
	Title   string         `json:"title"`
	URL     string         `json:"url"`
	Issue   *IssueSnapshot `json:"issue,omitempty"`
	Repo    *Repository    `json:"repository,omitempty"`
	Comment *Comment       `json:"latest_comment,omitempty"`
}

// AssigneeDelta описывает смену исполнителя. To == nil означает,
// что исполнитель снят.
type AssigneeDelta struct {
	To *Assignee
}

// IssueDiff содержит только изменившиеся поля снапшота.
// Неизменившееся поле остаётся nil.
type IssueDiff struct {
	State    *string
	Title    *string
	Assignee *AssigneeDelta
}

// Empty возвращает true, если ни одно поле не изменилось.
func (d IssueDiff) Empty() bool {
	return d.State == nil && d.Title == nil && d.Assignee == nil
}

// NotificationBatch — пачка уведомлений одного пользователя для одной комнаты.
type NotificationBatch struct {
	ID        string         `json:"batch_id,omitempty"`
	RoomID    string         `json:"room_id"`
	UserID    int64          `json:"user_id"`
	Events    []Notification `json:"events"`
	ReadUntil time.Time      `json:"read_until"`
}

// MessageKind помечает разновидность исходящего сообщения.
type MessageKind string

const (
	// MessageNotice — обычное уведомление.
	MessageNotice MessageKind = "notice"
	// MessageAlert — предупреждение безопасности.
	MessageAlert MessageKind = "alert"
)

// RichFormatHTML — маркер формата rich-text представления.
const RichFormatHTML = "HTML"

// Message — подготовленное к доставке сообщение.
type Message struct {
	Kind   MessageKind
	Plain  string
	Rich   string
	Format string
	Extra  map[string]string
}

// EventResult фиксирует исход обработки одного события пачки.
type EventResult struct {
	Index     int
	Kind      SubjectKind
	Delivered bool
	Err       error
}

// BatchReport агрегирует исходы обработки пачки.
type BatchReport struct {
	Results       []EventResult
	CursorUpdated bool
}

// Failed возвращает количество событий, завершившихся ошибкой.
func (r BatchReport) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Err != nil {
			n++
		}
	}
	return n
}
