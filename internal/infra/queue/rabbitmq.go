package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"tg-movie-bot/internal/domain"
	"tg-movie-bot/internal/infra/metrics"
)

// RabbitBroadcastQueue реализует очередь рассылок поверх AMQP.
type RabbitBroadcastQueue struct {
	conn    *amqp.Connection
	publish *amqp.Channel
	queue   string

	consumeOnce sync.Once
	consumeErr  error
	consume     *amqp.Channel
	deliveries  <-chan amqp.Delivery
}

// NewRabbitBroadcastQueue подключается к брокеру и объявляет durable-очередь.
func NewRabbitBroadcastQueue(amqpURL, queue string) (*RabbitBroadcastQueue, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queue == "" {
		return nil, errors.New("queue name is empty")
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	return &RabbitBroadcastQueue{conn: conn, publish: ch, queue: queue}, nil
}

// Close закрывает соединение с брокером.
func (q *RabbitBroadcastQueue) Close() error {
	return q.conn.Close()
}

// Enqueue публикует задачу в очередь.
func (q *RabbitBroadcastQueue) Enqueue(ctx context.Context, job domain.BroadcastJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	start := time.Now()
	err = q.publish.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID,
		Timestamp:    job.RequestedAt,
		Body:         payload,
	})
	metrics.ObserveNetworkRequest("rabbitmq", "publish", q.queue, start, err)
	if err != nil {
		return fmt.Errorf("publish job: %w", err)
	}
	return nil
}

// Receive ждёт следующую задачу. Задача подтверждается через AckFunc.
func (q *RabbitBroadcastQueue) Receive(ctx context.Context) (domain.BroadcastJob, domain.AckFunc, error) {
	q.consumeOnce.Do(q.startConsumer)
	if q.consumeErr != nil {
		return domain.BroadcastJob{}, nil, q.consumeErr
	}
	for {
		select {
		case <-ctx.Done():
			return domain.BroadcastJob{}, nil, ctx.Err()
		case d, ok := <-q.deliveries:
			if !ok {
				return domain.BroadcastJob{}, nil, errors.New("rabbitmq: delivery channel closed")
			}
			var job domain.BroadcastJob
			if err := json.Unmarshal(d.Body, &job); err != nil {
				// Битое сообщение не вернётся в очередь.
				_ = d.Nack(false, false)
				continue
			}
			ack := func(success bool) error {
				if success {
					return d.Ack(false)
				}
				return d.Nack(false, true)
			}
			return job, ack, nil
		}
	}
}

func (q *RabbitBroadcastQueue) startConsumer() {
	ch, err := q.conn.Channel()
	if err != nil {
		q.consumeErr = fmt.Errorf("open consume channel: %w", err)
		return
	}
	if err := ch.Qos(1, 0, false); err != nil {
		q.consumeErr = fmt.Errorf("set qos: %w", err)
		return
	}
	deliveries, err := ch.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		q.consumeErr = fmt.Errorf("consume: %w", err)
		return
	}
	q.consume = ch
	q.deliveries = deliveries
}
