package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

const (
	retryHeader       = "x-retry-count"
	DefaultMaxRetries = 3
)

// AMQPQueue carries jobs over RabbitMQ. One durable queue per topic; a failed
// job is republished with an incremented retry header until MaxRetries.
type AMQPQueue struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	mu   sync.Mutex

	MaxRetries int
	logger     *zap.Logger
}

func DialAMQP(url string, logger *zap.Logger) (*AMQPQueue, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	return &AMQPQueue{
		conn:       conn,
		ch:         ch,
		MaxRetries: DefaultMaxRetries,
		logger:     logger.With(zap.String("module", "amqp_queue")),
	}, nil
}

func (q *AMQPQueue) declare(topic string) error {
	_, err := q.ch.QueueDeclare(
		topic, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", topic, err)
	}
	return nil
}

func (q *AMQPQueue) Publish(ctx context.Context, topic string, job LeadJob) error {
	return q.publish(topic, job, 0)
}

func (q *AMQPQueue) publish(topic string, job LeadJob, retries int) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.declare(topic); err != nil {
		return err
	}
	return q.ch.Publish("", topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Headers:      amqp.Table{retryHeader: int32(retries)},
		Body:         body,
	})
}

// Subscribe starts consuming in the background. Deliveries are acked after the
// handler returns.
func (q *AMQPQueue) Subscribe(topic string, handler Handler) error {
	q.mu.Lock()
	if err := q.declare(topic); err != nil {
		q.mu.Unlock()
		return err
	}
	msgs, err := q.ch.Consume(
		topic,
		"",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	q.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	go func() {
		for d := range msgs {
			q.handle(topic, d, handler)
		}
		q.logger.Info("consumer stopped", zap.String("topic", topic))
	}()
	return nil
}

func (q *AMQPQueue) handle(topic string, d amqp.Delivery, handler Handler) {
	var job LeadJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		q.logger.Warn("invalid job", zap.Error(err))
		_ = d.Ack(false)
		return
	}

	err := handler(context.Background(), job)
	if err == nil {
		_ = d.Ack(false)
		return
	}

	retries := retryCount(d.Headers)
	log := q.logger.With(zap.String("lead_id", job.LeadID), zap.Int("retry", retries), zap.Error(err))
	if retries < q.MaxRetries {
		if perr := q.publish(topic, job, retries+1); perr != nil {
			log.Error("failed to requeue job", zap.NamedError("publish_error", perr))
			_ = d.Nack(false, true)
			return
		}
		log.Warn("job failed, requeued")
	} else {
		log.Error("job permanently failed")
	}
	_ = d.Ack(false)
}

func retryCount(h amqp.Table) int {
	switch v := h[retryHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func (q *AMQPQueue) Close() error {
	if err := q.ch.Close(); err != nil {
		_ = q.conn.Close()
		return err
	}
	return q.conn.Close()
}
