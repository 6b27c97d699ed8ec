package domain

import (
	"context"
	"errors"
	"time"
)

// ErrDuplicate возвращается, когда идемпотентный замок уже захвачен.
var ErrDuplicate = errors.New("дубликат: ключ уже обработан")

// SnapshotKey идентифицирует отслеживаемый элемент в рамках комнаты.
type SnapshotKey struct {
	Repo   string
	Number string
	RoomID string
}

// SnapshotRepo хранит последние увиденные снапшоты и URL последнего
// показанного комментария. Единственный источник истины между вызовами.
type SnapshotRepo interface {
	GetSnapshot(ctx context.Context, key SnapshotKey) (IssueSnapshot, bool, error)
	UpsertSnapshot(ctx context.Context, key SnapshotKey, snap IssueSnapshot) error
	GetLastCommentURL(ctx context.Context, key SnapshotKey) (string, bool, error)
	SetLastCommentURL(ctx context.Context, key SnapshotKey, url string) error
}

// DeliverySink принимает готовое сообщение для доставки в комнату.
type DeliverySink interface {
	Send(ctx context.Context, roomID string, msg Message) error
}

// Enricher возвращает дополнительные поля исходящего сообщения.
// Чистые функции без побочных эффектов.
type Enricher interface {
	RepoFields(repo Repository) map[string]string
	CommentFields(comment Comment, repo Repository, issue *IssueSnapshot) map[string]string
	IssueFields(issue IssueSnapshot, repo Repository) map[string]string
}

// AdminRoom управляет служебным состоянием комнаты уведомлений.
type AdminRoom interface {
	UserID() int64
	SetNotificationsCursor(ctx context.Context, ts time.Time) error
}

// Renderer преобразует markdown-разметку в rich-text представление.
type Renderer interface {
	Render(markdown string) string
}

// BatchAckFunc подтверждает успешную обработку или запрашивает повтор доставки пачки.
type BatchAckFunc func(success bool) error

// BatchQueue описывает очередь пачек уведомлений между шлюзом и воркером.
type BatchQueue interface {
	Enqueue(ctx context.Context, batch NotificationBatch) error
	Receive(ctx context.Context) (NotificationBatch, BatchAckFunc, error)
}

// Cache реализует идемпотентный замок с TTL: fn выполняется только для
// первого вызова с данным ключом, повтор получает ErrDuplicate.
type Cache interface {
	Once(key string, ttl time.Duration, fn func() error) error
}
