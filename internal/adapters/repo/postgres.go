package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"gh-notify-bot/internal/domain"
	"gh-notify-bot/internal/infra/metrics"
)

// Postgres реализует хранилище снапшотов на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ domain.SnapshotRepo = (*Postgres)(nil)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// EnsureSchema создаёт таблицы хранилища, если их ещё нет.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	_, err := p.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS issue_snapshots (
    repo           TEXT NOT NULL,
    number         TEXT NOT NULL,
    room_id        TEXT NOT NULL,
    state          TEXT NOT NULL DEFAULT '',
    title          TEXT NOT NULL DEFAULT '',
    url            TEXT NOT NULL DEFAULT '',
    assignee_id    BIGINT,
    assignee_login TEXT,
    assignee_url   TEXT,
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (repo, number, room_id)
);
CREATE TABLE IF NOT EXISTS room_comments (
    repo        TEXT NOT NULL,
    number      TEXT NOT NULL,
    room_id     TEXT NOT NULL,
    comment_url TEXT NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (repo, number, room_id)
);
CREATE TABLE IF NOT EXISTS rooms (
    room_id      TEXT PRIMARY KEY,
    user_id      BIGINT NOT NULL DEFAULT 0,
    last_read_at TIMESTAMPTZ
);
`)
	if err != nil {
		return fmt.Errorf("создание схемы: %w", err)
	}
	return nil
}

// GetSnapshot возвращает последний сохранённый снапшот элемента.
func (p *Postgres) GetSnapshot(ctx context.Context, key domain.SnapshotKey) (domain.IssueSnapshot, bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var (
		snap          domain.IssueSnapshot
		number        string
		assigneeID    sql.NullInt64
		assigneeLogin sql.NullString
		assigneeURL   sql.NullString
	)
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT number, state, title, url, assignee_id, assignee_login, assignee_url
FROM issue_snapshots WHERE repo=$1 AND number=$2 AND room_id=$3
`, key.Repo, key.Number, key.RoomID).Scan(&number, &snap.State, &snap.Title, &snap.URL, &assigneeID, &assigneeLogin, &assigneeURL)
	metrics.ObserveNetworkRequest("postgres", "snapshot_get", "issue_snapshots", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.IssueSnapshot{}, false, nil
	}
	if err != nil {
		return domain.IssueSnapshot{}, false, err
	}
	snap.Number, _ = strconv.Atoi(number)
	if assigneeID.Valid {
		snap.Assignee = &domain.Assignee{
			ID:    assigneeID.Int64,
			Login: assigneeLogin.String,
			URL:   assigneeURL.String,
		}
	}
	return snap, true, nil
}

// UpsertSnapshot перезаписывает снапшот элемента при каждом появлении.
func (p *Postgres) UpsertSnapshot(ctx context.Context, key domain.SnapshotKey, snap domain.IssueSnapshot) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var (
		assigneeID    sql.NullInt64
		assigneeLogin sql.NullString
		assigneeURL   sql.NullString
	)
	if snap.Assignee != nil {
		assigneeID = sql.NullInt64{Int64: snap.Assignee.ID, Valid: true}
		assigneeLogin = sql.NullString{String: snap.Assignee.Login, Valid: true}
		assigneeURL = sql.NullString{String: snap.Assignee.URL, Valid: true}
	}

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO issue_snapshots (repo, number, room_id, state, title, url, assignee_id, assignee_login, assignee_url, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
ON CONFLICT (repo, number, room_id) DO UPDATE SET
    state = EXCLUDED.state,
    title = EXCLUDED.title,
    url = EXCLUDED.url,
    assignee_id = EXCLUDED.assignee_id,
    assignee_login = EXCLUDED.assignee_login,
    assignee_url = EXCLUDED.assignee_url,
    updated_at = now()
`, key.Repo, key.Number, key.RoomID, snap.State, snap.Title, snap.URL, assigneeID, assigneeLogin, assigneeURL)
	metrics.ObserveNetworkRequest("postgres", "snapshot_upsert", "issue_snapshots", start, err)
	return err
}

// GetLastCommentURL возвращает URL последнего показанного комментария.
func (p *Postgres) GetLastCommentURL(ctx context.Context, key domain.SnapshotKey) (string, bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var url string
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT comment_url FROM room_comments WHERE repo=$1 AND number=$2 AND room_id=$3
`, key.Repo, key.Number, key.RoomID).Scan(&url)
	metrics.ObserveNetworkRequest("postgres", "comment_get", "room_comments", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return url, true, nil
}

// SetLastCommentURL перезаписывает URL последнего показанного комментария.
func (p *Postgres) SetLastCommentURL(ctx context.Context, key domain.SnapshotKey, url string) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO room_comments (repo, number, room_id, comment_url, updated_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (repo, number, room_id) DO UPDATE SET comment_url = EXCLUDED.comment_url, updated_at = now()
`, key.Repo, key.Number, key.RoomID, url)
	metrics.ObserveNetworkRequest("postgres", "comment_set", "room_comments", start, err)
	return err
}

// SetRoomCursor сдвигает отметку прочитанных уведомлений комнаты.
func (p *Postgres) SetRoomCursor(ctx context.Context, roomID string, userID int64, ts time.Time) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO rooms (room_id, user_id, last_read_at)
VALUES ($1, $2, $3)
ON CONFLICT (room_id) DO UPDATE SET user_id = EXCLUDED.user_id, last_read_at = EXCLUDED.last_read_at
`, roomID, userID, ts)
	metrics.ObserveNetworkRequest("postgres", "room_cursor_set", "rooms", start, err)
	return err
}

// AdminRoom связывает комнату и пользователя со служебным состоянием в БД.
type AdminRoom struct {
	repo   *Postgres
	roomID string
	userID int64
}

var _ domain.AdminRoom = (*AdminRoom)(nil)

// NewAdminRoom создаёт административный объект комнаты.
func NewAdminRoom(repo *Postgres, roomID string, userID int64) *AdminRoom {
	return &AdminRoom{repo: repo, roomID: roomID, userID: userID}
}

// UserID возвращает идентификатор пользователя комнаты.
func (a *AdminRoom) UserID() int64 { return a.userID }

// SetNotificationsCursor сдвигает отметку прочитанного для комнаты.
func (a *AdminRoom) SetNotificationsCursor(ctx context.Context, ts time.Time) error {
	return a.repo.SetRoomCursor(ctx, a.roomID, a.userID, ts)
}
