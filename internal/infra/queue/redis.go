package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"gh-notify-bot/internal/domain"
	"gh-notify-bot/internal/infra/metrics"
)

// RedisBatchQueue реализует очередь пачек уведомлений на базе Redis lists.
type RedisBatchQueue struct {
	client *redis.Client
	key    string
}

var _ domain.BatchQueue = (*RedisBatchQueue)(nil)

// NewRedisBatchQueue создаёт очередь по указанному ключу.
func NewRedisBatchQueue(client *redis.Client, key string) *RedisBatchQueue {
	return &RedisBatchQueue{client: client, key: key}
}

// Enqueue публикует пачку в очередь.
func (q *RedisBatchQueue) Enqueue(ctx context.Context, batch domain.NotificationBatch) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}
	start := time.Now()
	err = q.client.LPush(ctx, q.key, payload).Err()
	metrics.ObserveNetworkRequest("redis", "lpush", q.key, start, err)
	if err != nil {
		return fmt.Errorf("push batch: %w", err)
	}
	return nil
}

// Receive блокирующе читает пачку из очереди. Ack с success=false
// возвращает пачку в очередь.
func (q *RedisBatchQueue) Receive(ctx context.Context) (domain.NotificationBatch, domain.BatchAckFunc, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.NotificationBatch{}, nil, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.NotificationBatch{}, nil, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.NotificationBatch{}, nil, err
		}
		if len(res) != 2 {
			return domain.NotificationBatch{}, nil, errors.New("redis queue: unexpected response")
		}

		raw := []byte(res[1])
		var batch domain.NotificationBatch
		if err := json.Unmarshal(raw, &batch); err != nil {
			return domain.NotificationBatch{}, nil, fmt.Errorf("decode batch: %w", err)
		}

		ack := func(success bool) error {
			if success {
				return nil
			}
			return q.client.LPush(context.Background(), q.key, raw).Err()
		}
		return batch, ack, nil
	}
}
