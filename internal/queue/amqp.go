package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

const retryHeader = "x-retry-count"

// AMQPQueue publishes JSON messages to durable RabbitMQ queues named after the topic.
type AMQPQueue struct {
	ctx        context.Context
	log        logrus.FieldLogger
	maxRetries int

	conn *amqp.Connection
	pub  *amqp.Channel
	mu   sync.Mutex // guards pub

	consumers sync.WaitGroup
}

func NewAMQPQueue(ctx context.Context, url string, maxRetries int, log logrus.FieldLogger) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	return &AMQPQueue{ctx: ctx, log: log, maxRetries: maxRetries, conn: conn, pub: ch}, nil
}

func declare(ch *amqp.Channel, topic string) (amqp.Queue, error) {
	return ch.QueueDeclare(
		topic, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
}

func (q *AMQPQueue) Publish(topic string, payload any) error {
	return q.publish(topic, payload, 0)
}

func (q *AMQPQueue) publish(topic string, payload any, retry int) error {
	var body []byte
	switch v := payload.(type) {
	case []byte:
		body = v
	case json.RawMessage:
		body = v
	default:
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode payload: %w", err)
		}
		body = b
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if _, err := declare(q.pub, topic); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", topic, err)
	}
	return q.pub.Publish(
		"",
		topic,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    uuid.NewString(),
			Timestamp:    time.Now(),
			Headers:      amqp.Table{retryHeader: int32(retry)},
			Body:         body,
		},
	)
}

// Subscribe consumes the topic on a dedicated channel with manual acks. Failed messages are
// republished with an incremented retry header until maxRetries, then dropped.
func (q *AMQPQueue) Subscribe(topic string, handler Handler) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open a channel: %w", err)
	}
	if _, err := declare(ch, topic); err != nil {
		_ = ch.Close()
		return fmt.Errorf("failed to declare queue %s: %w", topic, err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		return err
	}
	msgs, err := ch.Consume(
		topic,
		"",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	q.consumers.Add(1)
	go func() {
		defer q.consumers.Done()
		defer ch.Close()
		for {
			select {
			case <-q.ctx.Done():
				return
			case d, ok := <-msgs:
				if !ok {
					q.log.Warnf("consumer channel for %s closed", topic)
					return
				}
				q.handle(topic, handler, d)
			}
		}
	}()
	return nil
}

func (q *AMQPQueue) handle(topic string, handler Handler, d amqp.Delivery) {
	log := q.log.WithFields(logrus.Fields{"topic": topic, "message_id": d.MessageId})
	err := handler(q.ctx, json.RawMessage(d.Body))
	if err == nil {
		_ = d.Ack(false)
		return
	}

	retry := retryCount(d.Headers)
	log.WithError(err).Warnf("job failed (attempt %d/%d)", retry+1, q.maxRetries+1)
	if retry < q.maxRetries {
		if perr := q.publish(topic, d.Body, retry+1); perr != nil {
			log.WithError(perr).Error("failed to requeue job, leaving it on the broker")
			_ = d.Nack(false, true)
			return
		}
	} else {
		log.Errorf("job permanently failed after %d attempts", retry+1)
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
	case int16:
		return int(v)
	case int8:
		return int(v)
	}
	return 0
}

// Wait blocks until every consumer goroutine has exited.
func (q *AMQPQueue) Wait() {
	q.consumers.Wait()
}

func (q *AMQPQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	_ = q.pub.Close()
	return q.conn.Close()
}

var _ Queue = (*AMQPQueue)(nil)
