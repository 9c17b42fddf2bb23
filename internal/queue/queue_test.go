package queue

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.Out = io.Discard
	return l
}

func TestInMemoryQueueRetriesUntilSuccess(t *testing.T) {
	q := NewInMemoryQueue(context.Background(), 3, quietLogger())
	q.Backoff = time.Millisecond

	var calls int32
	require.NoError(t, q.Subscribe("jobs", func(ctx context.Context, payload any) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("transient")
		}
		return nil
	}))

	require.NoError(t, q.Publish("jobs", DeliveryJob{OrganizationID: 1, CampaignID: 2}))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, q.Drain(ctx))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestInMemoryQueueGivesUpAfterMaxRetries(t *testing.T) {
	q := NewInMemoryQueue(context.Background(), 2, quietLogger())
	q.Backoff = time.Millisecond

	var calls int32
	require.NoError(t, q.Subscribe("jobs", func(ctx context.Context, payload any) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("always")
	}))
	require.NoError(t, q.Publish("jobs", "x"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, q.Drain(ctx))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls), "first attempt plus two retries")
}

func TestPublishWithoutSubscribers(t *testing.T) {
	q := NewInMemoryQueue(context.Background(), 0, quietLogger())
	assert.Error(t, q.Publish("nobody", 1))
}

func TestDecodeDeliveryJob(t *testing.T) {
	job, err := DecodeDeliveryJob([]byte(`{"organization_id":3,"campaign_id":9,"job_id":"abc"}`))
	require.NoError(t, err)
	assert.Equal(t, DeliveryJob{OrganizationID: 3, CampaignID: 9, JobID: "abc"}, job)

	job, err = DecodeDeliveryJob(&DeliveryJob{OrganizationID: 1, CampaignID: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(1), job.CampaignID)

	_, err = DecodeDeliveryJob(42)
	assert.Error(t, err)
	_, err = DecodeDeliveryJob(DeliveryJob{CampaignID: 4})
	assert.Error(t, err, "organization is required")
}

func TestRetryCountHeader(t *testing.T) {
	assert.Equal(t, 0, retryCount(nil))
	assert.Equal(t, 2, retryCount(amqp.Table{retryHeader: int32(2)}))
	assert.Equal(t, 5, retryCount(amqp.Table{retryHeader: int64(5)}))
	assert.Equal(t, 0, retryCount(amqp.Table{retryHeader: "3"}))
}
