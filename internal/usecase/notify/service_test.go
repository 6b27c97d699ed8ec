package notify

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"gh-notify-bot/internal/domain"
)

type memStore struct {
	snapshots   map[domain.SnapshotKey]domain.IssueSnapshot
	comments    map[domain.SnapshotKey]string
	getErr      error
	upsertCalls int
}

func newMemStore() *memStore {
	return &memStore{
		snapshots: make(map[domain.SnapshotKey]domain.IssueSnapshot),
		comments:  make(map[domain.SnapshotKey]string),
	}
}

func (m *memStore) GetSnapshot(_ context.Context, key domain.SnapshotKey) (domain.IssueSnapshot, bool, error) {
	if m.getErr != nil {
		return domain.IssueSnapshot{}, false, m.getErr
	}
	snap, ok := m.snapshots[key]
	return snap, ok, nil
}

func (m *memStore) UpsertSnapshot(_ context.Context, key domain.SnapshotKey, snap domain.IssueSnapshot) error {
	m.upsertCalls++
	m.snapshots[key] = snap
	return nil
}

func (m *memStore) GetLastCommentURL(_ context.Context, key domain.SnapshotKey) (string, bool, error) {
	url, ok := m.comments[key]
	return url, ok, nil
}

func (m *memStore) SetLastCommentURL(_ context.Context, key domain.SnapshotKey, url string) error {
	m.comments[key] = url
	return nil
}

type captureSink struct {
	sent    []domain.Message
	rooms   []string
	failIdx int // индекс отправки, на которой вернуть ошибку; -1 — не падать
	calls   int
}

func (c *captureSink) Send(_ context.Context, roomID string, msg domain.Message) error {
	idx := c.calls
	c.calls++
	if c.failIdx >= 0 && idx == c.failIdx {
		return errors.New("доставка отвергнута")
	}
	c.sent = append(c.sent, msg)
	c.rooms = append(c.rooms, roomID)
	return nil
}

type stubAdmin struct {
	userID  int64
	cursor  time.Time
	calls   int
	failErr error
}

func (a *stubAdmin) UserID() int64 { return a.userID }

func (a *stubAdmin) SetNotificationsCursor(_ context.Context, ts time.Time) error {
	a.calls++
	if a.failErr != nil {
		return a.failErr
	}
	a.cursor = ts
	return nil
}

func newTestService(store *memStore, sink *captureSink) *Service {
	return NewService(store, sink, newTestFormatter(), zerolog.Nop())
}

func issueBatchEvent(number int, title string) domain.Notification {
	return domain.Notification{
		Kind:  domain.SubjectIssue,
		Title: title,
		URL:   "https://github.com/org/repo/issues/" + strconv.Itoa(number),
		Issue: &domain.IssueSnapshot{State: "open", Title: title, Number: number, URL: "https://github.com/org/repo/issues/" + strconv.Itoa(number)},
		Repo:  &domain.Repository{FullName: "org/repo", URL: "https://github.com/org/repo"},
	}
}

func TestProcessBatchFaultIsolation(t *testing.T) {
	store := newMemStore()
	sink := &captureSink{failIdx: 1}
	service := newTestService(store, sink)

	batch := domain.NotificationBatch{
		RoomID: "100",
		Events: []domain.Notification{
			issueBatchEvent(1, "первое"),
			issueBatchEvent(2, "отравленное"),
			issueBatchEvent(3, "третье"),
		},
	}

	report := service.ProcessBatch(context.Background(), batch, nil)

	if len(sink.sent) != 2 {
		t.Fatalf("ожидали 2 доставки, получили %d", len(sink.sent))
	}
	if report.Failed() != 1 {
		t.Fatalf("ожидали 1 отказ, получили %d", report.Failed())
	}
	if report.Results[1].Err == nil || report.Results[1].Delivered {
		t.Fatalf("второе событие должно быть помечено отказом: %+v", report.Results[1])
	}
	// Снапшоты пишутся для всех событий с номером — и для отравленного тоже.
	if store.upsertCalls != 3 {
		t.Fatalf("ожидали 3 записи снапшотов, получили %d", store.upsertCalls)
	}
}

func TestProcessBatchSecondRunQuiet(t *testing.T) {
	store := newMemStore()
	sink := &captureSink{failIdx: -1}
	service := newTestService(store, sink)

	ev := issueBatchEvent(42, "снова открыт")
	ev.Issue.State = "closed"
	ev.Comment = &domain.Comment{AuthorLogin: "bob", AuthorURL: "https://github.com/bob", Body: "готово", URL: "https://github.com/org/repo/issues/42#c1"}

	key := domain.SnapshotKey{Repo: "org/repo", Number: "42", RoomID: "100"}
	store.snapshots[key] = domain.IssueSnapshot{State: "open", Title: "снова открыт", Number: 42}

	batch := domain.NotificationBatch{RoomID: "100", Events: []domain.Notification{ev}}

	service.ProcessBatch(context.Background(), batch, nil)
	if len(sink.sent) != 1 {
		t.Fatalf("ожидали доставку, получили %d", len(sink.sent))
	}
	mustContain(t, sink.sent[0].Plain, "State changed to: Closed")
	mustContain(t, sink.sent[0].Plain, "said:")

	// Второй прогон того же события видит записанное состояние:
	// ни диффа, ни нового комментария.
	service.ProcessBatch(context.Background(), batch, nil)
	if len(sink.sent) != 2 {
		t.Fatalf("ожидали вторую доставку, получили %d", len(sink.sent))
	}
	mustNotContain(t, sink.sent[1].Plain, "State changed to")
	mustNotContain(t, sink.sent[1].Plain, "said:")
}

func TestProcessBatchFirstSighting(t *testing.T) {
	store := newMemStore()
	sink := &captureSink{failIdx: -1}
	service := newTestService(store, sink)

	ev := issueBatchEvent(42, "Починить гонку")
	ev.Comment = &domain.Comment{AuthorLogin: "bob", AuthorURL: "https://github.com/bob", Body: "смотрю", URL: "https://github.com/org/repo/issues/42#c7"}

	batch := domain.NotificationBatch{RoomID: "100", Events: []domain.Notification{ev}}
	service.ProcessBatch(context.Background(), batch, nil)

	if len(sink.sent) != 1 {
		t.Fatalf("ожидали одну доставку, получили %d", len(sink.sent))
	}
	plain := sink.sent[0].Plain
	mustContain(t, plain, "#42")
	mustContain(t, plain, "org/repo")
	mustContain(t, plain, "📝")
	mustContain(t, plain, "[bob](https://github.com/bob) said:")
	mustContain(t, plain, "> смотрю")

	key := domain.SnapshotKey{Repo: "org/repo", Number: "42", RoomID: "100"}
	if _, ok := store.snapshots[key]; !ok {
		t.Fatalf("снапшот должен быть записан для %+v", key)
	}
	if store.comments[key] != "https://github.com/org/repo/issues/42#c7" {
		t.Fatalf("URL комментария не записан: %q", store.comments[key])
	}
}

func TestProcessBatchVulnerabilityAlertPath(t *testing.T) {
	store := newMemStore()
	sink := &captureSink{failIdx: -1}
	service := newTestService(store, sink)

	ev := domain.Notification{
		Kind:    domain.SubjectVulnerabilityAlert,
		Title:   "CVE-2024-0001",
		Repo:    &domain.Repository{FullName: "org/repo", URL: "https://github.com/org/repo"},
		Comment: &domain.Comment{AuthorLogin: "bob", Body: "noise", URL: "https://example.com/c"},
	}
	batch := domain.NotificationBatch{RoomID: "100", Events: []domain.Notification{ev}}
	service.ProcessBatch(context.Background(), batch, nil)

	if len(sink.sent) != 1 {
		t.Fatalf("ожидали доставку, получили %d", len(sink.sent))
	}
	mustContain(t, sink.sent[0].Plain, "⚠️")
	mustNotContain(t, sink.sent[0].Plain, "said:")
	if store.upsertCalls != 0 {
		t.Fatalf("событие без номера не должно писать снапшот")
	}
}

func TestProcessBatchUnknownKindGenericPath(t *testing.T) {
	store := newMemStore()
	sink := &captureSink{failIdx: -1}
	service := newTestService(store, sink)

	ev := domain.Notification{Kind: domain.SubjectKind("Discussion"), Title: "обсуждение", URL: "https://example.com/d"}
	batch := domain.NotificationBatch{RoomID: "100", Events: []domain.Notification{ev}}
	report := service.ProcessBatch(context.Background(), batch, nil)

	if report.Results[0].Kind != domain.SubjectOther {
		t.Fatalf("нераспознанный тип должен сводиться к Other: %q", report.Results[0].Kind)
	}
	mustContain(t, sink.sent[0].Plain, "🔔")
}

func TestProcessBatchCursorUpdate(t *testing.T) {
	store := newMemStore()
	sink := &captureSink{failIdx: -1}
	service := newTestService(store, sink)

	readUntil := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	admin := &stubAdmin{userID: 7}
	batch := domain.NotificationBatch{RoomID: "100", Events: []domain.Notification{issueBatchEvent(1, "x")}, ReadUntil: readUntil}

	report := service.ProcessBatch(context.Background(), batch, admin)

	if admin.calls != 1 || !admin.cursor.Equal(readUntil) {
		t.Fatalf("курсор должен быть сдвинут на ReadUntil: %+v", admin)
	}
	if !report.CursorUpdated {
		t.Fatalf("отчёт должен отмечать сдвиг курсора")
	}
}

func TestProcessBatchCursorFailureNonFatal(t *testing.T) {
	store := newMemStore()
	sink := &captureSink{failIdx: -1}
	service := newTestService(store, sink)

	admin := &stubAdmin{userID: 7, failErr: errors.New("api down")}
	batch := domain.NotificationBatch{RoomID: "100", Events: []domain.Notification{issueBatchEvent(1, "x")}, ReadUntil: time.Now()}

	report := service.ProcessBatch(context.Background(), batch, admin)

	if report.Failed() != 0 {
		t.Fatalf("сбой курсора не должен отмечать события отказами")
	}
	if report.CursorUpdated {
		t.Fatalf("отчёт не должен отмечать сдвиг курсора при ошибке")
	}
}

func TestProcessBatchStoreErrorStillPersists(t *testing.T) {
	store := newMemStore()
	store.getErr = errors.New("БД недоступна")
	sink := &captureSink{failIdx: -1}
	service := newTestService(store, sink)

	batch := domain.NotificationBatch{RoomID: "100", Events: []domain.Notification{issueBatchEvent(1, "x")}}
	report := service.ProcessBatch(context.Background(), batch, nil)

	if report.Failed() != 1 {
		t.Fatalf("ошибка чтения хранилища должна давать отказ события")
	}
	if store.upsertCalls != 1 {
		t.Fatalf("снапшот пишется и после отказа: %d", store.upsertCalls)
	}
}
