package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"gh-notify-bot/internal/domain"
	"gh-notify-bot/internal/infra/metrics"
)

// RabbitBatchQueue реализует очередь пачек уведомлений поверх AMQP.
type RabbitBatchQueue struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	queue      string
	deliveries <-chan amqp.Delivery
}

var _ domain.BatchQueue = (*RabbitBatchQueue)(nil)

// NewRabbitBatchQueue подключается к брокеру и объявляет долговечную очередь.
func NewRabbitBatchQueue(amqpURL, queue string) (*RabbitBatchQueue, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queue == "" {
		return nil, errors.New("queue name is empty")
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	return &RabbitBatchQueue{conn: conn, ch: ch, queue: queue}, nil
}

// Enqueue публикует пачку в очередь.
func (q *RabbitBatchQueue) Enqueue(ctx context.Context, batch domain.NotificationBatch) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}
	start := time.Now()
	err = q.ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         payload,
	})
	metrics.ObserveNetworkRequest("rabbitmq", "publish", q.queue, start, err)
	if err != nil {
		return fmt.Errorf("publish batch: %w", err)
	}
	return nil
}

// Receive блокирующе читает пачку из очереди. Ack с success=false
// возвращает сообщение брокеру для повторной доставки.
func (q *RabbitBatchQueue) Receive(ctx context.Context) (domain.NotificationBatch, domain.BatchAckFunc, error) {
	if q.deliveries == nil {
		if err := q.ch.Qos(1, 0, false); err != nil {
			return domain.NotificationBatch{}, nil, fmt.Errorf("set qos: %w", err)
		}
		deliveries, err := q.ch.Consume(q.queue, "", false, false, false, false, nil)
		if err != nil {
			return domain.NotificationBatch{}, nil, fmt.Errorf("consume: %w", err)
		}
		q.deliveries = deliveries
	}

	select {
	case <-ctx.Done():
		return domain.NotificationBatch{}, nil, ctx.Err()
	case d, ok := <-q.deliveries:
		if !ok {
			return domain.NotificationBatch{}, nil, errors.New("rabbitmq queue: consumer channel closed")
		}
		var batch domain.NotificationBatch
		if err := json.Unmarshal(d.Body, &batch); err != nil {
			// Непарсящееся сообщение не возвращаем в очередь.
			_ = d.Nack(false, false)
			return domain.NotificationBatch{}, nil, fmt.Errorf("decode batch: %w", err)
		}
		ack := func(success bool) error {
			if success {
				return d.Ack(false)
			}
			return d.Nack(false, true)
		}
		return batch, ack, nil
	}
}

// Close закрывает канал и соединение.
func (q *RabbitBatchQueue) Close() error {
	if err := q.ch.Close(); err != nil {
		_ = q.conn.Close()
		return err
	}
	return q.conn.Close()
}
