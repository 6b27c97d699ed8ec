package notify

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"gh-notify-bot/internal/domain"
	"gh-notify-bot/internal/infra/metrics"
)

// Service реализует обработку пачек уведомлений: классификация,
// дифф, форматирование, доставка и запись состояния.
type Service struct {
	store     domain.SnapshotRepo
	sink      domain.DeliverySink
	formatter *Formatter
	log       zerolog.Logger
}

// NewService создаёт сервис обработки уведомлений.
func NewService(store domain.SnapshotRepo, sink domain.DeliverySink, formatter *Formatter, log zerolog.Logger) *Service {
	return &Service{store: store, sink: sink, formatter: formatter, log: log}
}

// ProcessBatch последовательно обрабатывает события пачки. Ошибка одного
// события логируется и не прерывает обработку остальных. Снапшот элемента
// пишется после обработки независимо от её исхода. После пачки курсор
// прочитанных уведомлений сдвигается на ReadUntil; сбой сдвига не фатален.
func (s *Service) ProcessBatch(ctx context.Context, batch domain.NotificationBatch, admin domain.AdminRoom) domain.BatchReport {
	start := time.Now()
	report := domain.BatchReport{Results: make([]domain.EventResult, 0, len(batch.Events))}

	for i, ev := range batch.Events {
		kind := domain.ParseSubjectKind(string(ev.Kind))
		res := domain.EventResult{Index: i, Kind: kind}
		metrics.IncEvent(string(kind))

		if err := s.processEvent(ctx, batch.RoomID, ev, kind); err != nil {
			res.Err = err
			metrics.IncEventFailure(string(kind))
			s.log.Error().Err(err).
				Str("room", batch.RoomID).
				Str("kind", string(kind)).
				Str("subject", ev.Title).
				Msg("notify: событие не обработано")
		} else {
			res.Delivered = true
		}

		s.persistEvent(ctx, batch.RoomID, ev)
		report.Results = append(report.Results, res)
	}

	if admin != nil && !batch.ReadUntil.IsZero() {
		if err := admin.SetNotificationsCursor(ctx, batch.ReadUntil); err != nil {
			metrics.IncCursorFailure()
			s.log.Warn().Err(err).
				Str("room", batch.RoomID).
				Int64("user", admin.UserID()).
				Msg("notify: не удалось сдвинуть курсор прочитанного")
		} else {
			report.CursorUpdated = true
		}
	}

	metrics.ObserveBatch(start, len(batch.Events))
	return report
}

func (s *Service) processEvent(ctx context.Context, roomID string, ev domain.Notification, kind domain.SubjectKind) error {
	switch kind {
	case domain.SubjectVulnerabilityAlert:
		msg := s.formatter.VulnerabilityAlert(ev)
		return s.deliver(ctx, roomID, msg)
	case domain.SubjectIssue, domain.SubjectPullRequest:
		return s.processIssueEvent(ctx, roomID, ev)
	default:
		msg := s.formatter.Notification(ev, nil, false)
		return s.deliver(ctx, roomID, msg)
	}
}

// processIssueEvent — полный конвейер для issue/PR: поиск прежнего снапшота,
// дифф и определение нового комментария.
func (s *Service) processIssueEvent(ctx context.Context, roomID string, ev domain.Notification) error {
	key, haveKey := snapshotKey(roomID, ev)

	var diff *domain.IssueDiff
	hasNewComment := false

	if haveKey {
		prev, found, err := s.store.GetSnapshot(ctx, key)
		if err != nil {
			return fmt.Errorf("чтение снапшота %s#%s: %w", key.Repo, key.Number, err)
		}
		if found && ev.Issue != nil {
			d := Diff(*ev.Issue, prev)
			diff = &d
		}

		if ev.Comment != nil && ev.Comment.URL != "" {
			stored, ok, err := s.store.GetLastCommentURL(ctx, key)
			if err != nil {
				return fmt.Errorf("чтение последнего комментария %s#%s: %w", key.Repo, key.Number, err)
			}
			// Отсутствие сохранённого URL означает первый увиденный комментарий.
			hasNewComment = !ok || stored != ev.Comment.URL
		}
	}

	msg := s.formatter.Notification(ev, diff, hasNewComment)
	return s.deliver(ctx, roomID, msg)
}

func (s *Service) deliver(ctx context.Context, roomID string, msg domain.Message) error {
	if err := s.sink.Send(ctx, roomID, msg); err != nil {
		metrics.IncDeliveryError()
		return fmt.Errorf("доставка в комнату %s: %w", roomID, err)
	}
	metrics.IncDelivery()
	return nil
}

// persistEvent пишет снапшот и URL последнего комментария независимо от того,
// удалась ли обработка события. Ошибки записи логируются и не всплывают.
func (s *Service) persistEvent(ctx context.Context, roomID string, ev domain.Notification) {
	key, ok := snapshotKey(roomID, ev)
	if !ok {
		return
	}

	if err := s.store.UpsertSnapshot(ctx, key, *ev.Issue); err != nil {
		s.log.Error().Err(err).
			Str("repo", key.Repo).
			Str("number", key.Number).
			Str("room", roomID).
			Msg("notify: не удалось сохранить снапшот")
	} else {
		metrics.IncSnapshotUpsert()
	}

	if ev.Comment != nil && ev.Comment.URL != "" {
		if err := s.store.SetLastCommentURL(ctx, key, ev.Comment.URL); err != nil {
			s.log.Error().Err(err).
				Str("repo", key.Repo).
				Str("number", key.Number).
				Str("room", roomID).
				Msg("notify: не удалось сохранить URL комментария")
		}
	}
}

// snapshotKey возвращает ключ хранения для события, несущего числовой
// идентификатор элемента и репозиторий.
func snapshotKey(roomID string, ev domain.Notification) (domain.SnapshotKey, bool) {
	if ev.Issue == nil || ev.Issue.Number <= 0 || ev.Repo == nil || ev.Repo.FullName == "" {
		return domain.SnapshotKey{}, false
	}
	return domain.SnapshotKey{
		Repo:   ev.Repo.FullName,
		Number: strconv.Itoa(ev.Issue.Number),
		RoomID: roomID,
	}, true
}
