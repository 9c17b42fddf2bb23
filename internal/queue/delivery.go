package queue

import (
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
)

// TopicDeliveries is the default topic delivery jobs are published on.
const TopicDeliveries = "campaign_deliveries"

// DeliveryJob asks a delivery worker to drain one campaign's pending ledger rows.
type DeliveryJob struct {
	OrganizationID int64  `json:"organization_id"`
	CampaignID     int64  `json:"campaign_id"`
	JobID          string `json:"job_id"`
}

// DecodeDeliveryJob accepts the in-memory value or a JSON body from the broker.
func DecodeDeliveryJob(payload any) (DeliveryJob, error) {
	var job DeliveryJob
	switch v := payload.(type) {
	case DeliveryJob:
		job = v
	case *DeliveryJob:
		if v == nil {
			return job, fmt.Errorf("nil delivery job")
		}
		job = *v
	case []byte:
		if err := json.Unmarshal(v, &job); err != nil {
			return job, fmt.Errorf("invalid delivery job: %w", err)
		}
	case json.RawMessage:
		if err := json.Unmarshal(v, &job); err != nil {
			return job, fmt.Errorf("invalid delivery job: %w", err)
		}
	default:
		return job, fmt.Errorf("invalid payload type %T, expected DeliveryJob", payload)
	}
	if job.OrganizationID <= 0 || job.CampaignID <= 0 {
		return job, fmt.Errorf("delivery job without organization or campaign: %+v", job)
	}
	return job, nil
}

// StartDeliverySubscriber wires a delivery handler to the topic.
func StartDeliverySubscriber(q Queue, topic string, h Handler, log logrus.FieldLogger) error {
	if err := q.Subscribe(topic, h); err != nil {
		log.WithError(err).Errorf("⚠️ failed to start subscriber for %s", topic)
		return err
	}
	log.Infof("📩 delivery subscriber listening on %s", topic)
	return nil
}
