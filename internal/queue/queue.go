package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Handler processes one message. A non-nil error asks the queue to retry it.
type Handler func(ctx context.Context, payload any) error

// Queue interface
type Queue interface {
	Publish(topic string, payload any) error
	Subscribe(topic string, handler Handler) error
}

// InMemoryQueue runs every handler in its own goroutine with retry and backoff
type InMemoryQueue struct {
	ctx        context.Context
	log        logrus.FieldLogger
	maxRetries int
	// Backoff is multiplied by the attempt number before each retry
	Backoff time.Duration

	mu       sync.Mutex
	handlers map[string][]Handler
	inflight sync.WaitGroup
}

// NewInMemoryQueue creates a new queue. Cancelling ctx stops pending retries.
func NewInMemoryQueue(ctx context.Context, maxRetries int, log logrus.FieldLogger) *InMemoryQueue {
	return &InMemoryQueue{
		ctx:        ctx,
		log:        log,
		maxRetries: maxRetries,
		Backoff:    500 * time.Millisecond,
		handlers:   make(map[string][]Handler),
	}
}

// JobPayload wraps a message payload with retry info
type JobPayload struct {
	Payload    any
	RetryCount int
	MaxRetries int
}

// Publish sends a message to all subscribers
func (q *InMemoryQueue) Publish(topic string, payload any) error {
	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	job := JobPayload{
		Payload:    payload,
		RetryCount: 0,
		MaxRetries: q.maxRetries,
	}

	for _, handler := range handlers {
		q.inflight.Add(1)
		go q.processJob(topic, handler, job)
	}

	return nil
}

// processJob handles retries and errors
func (q *InMemoryQueue) processJob(topic string, handler Handler, job JobPayload) {
	defer q.inflight.Done()
	log := q.log.WithField("topic", topic)

	for job.RetryCount <= job.MaxRetries {
		err := handler(q.ctx, job.Payload)
		if err == nil {
			log.Debugf("job processed successfully: %+v", job.Payload)
			return // ACK
		}

		job.RetryCount++
		log.WithError(err).Warnf("job failed (attempt %d/%d): %+v", job.RetryCount, job.MaxRetries+1, job.Payload)

		if job.RetryCount > job.MaxRetries {
			log.Errorf("job permanently failed after %d attempts: %+v", job.RetryCount, job.Payload)
			return // No requeue
		}

		// linear backoff before retry
		select {
		case <-q.ctx.Done():
			log.Warnf("queue stopped, dropping job %+v", job.Payload)
			return
		case <-time.After(time.Duration(job.RetryCount) * q.Backoff):
		}
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Drain blocks until every published job finished or ctx is done.
func (q *InMemoryQueue) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		q.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ Queue = (*InMemoryQueue)(nil)
