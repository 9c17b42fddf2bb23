// internal/service/worker.go
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	appErrors "github.com/unclebandit/realestate-campaigns/internal/errors"
	"github.com/unclebandit/realestate-campaigns/internal/mailer"
	"github.com/unclebandit/realestate-campaigns/internal/metrics"
	"github.com/unclebandit/realestate-campaigns/internal/model"
	"github.com/unclebandit/realestate-campaigns/internal/queue"
	"github.com/unclebandit/realestate-campaigns/internal/repository"
	"github.com/unclebandit/realestate-campaigns/internal/tools"
)

// DeliveryWorker sends a running campaign's pending emails one by one and closes the campaign.
type DeliveryWorker struct {
	Campaigns repository.CampaignRepositoryInterface
	Emails    repository.CampaignEmailRepositoryInterface
	Stats     *StatisticsAggregator
	Transport mailer.Transport
	// Limiter spaces out sends; nil disables throttling
	Limiter *rate.Limiter
	Log     logrus.FieldLogger
	Metrics *metrics.Metrics
	Now     func() time.Time

	running *tools.KeyedMutex[int64]
}

// Constructor
func NewDeliveryWorker(
	campaigns repository.CampaignRepositoryInterface,
	emails repository.CampaignEmailRepositoryInterface,
	stats *StatisticsAggregator,
	transport mailer.Transport,
	sendInterval time.Duration,
	log logrus.FieldLogger,
) *DeliveryWorker {
	var limiter *rate.Limiter
	if sendInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(sendInterval), 1)
	}
	return &DeliveryWorker{
		Campaigns: campaigns,
		Emails:    emails,
		Stats:     stats,
		Transport: transport,
		Limiter:   limiter,
		Log:       log,
		Now:       time.Now,
		running:   tools.NewKeyedMutex[int64](),
	}
}

// DeliveryReport summarizes one worker invocation.
type DeliveryReport struct {
	JobID      string               `json:"job_id"`
	CampaignID int64                `json:"campaign_id"`
	Skipped    string               `json:"skipped,omitempty"`
	Attempted  int                  `json:"attempted"`
	Sent       int                  `json:"sent"`
	Failed     int                  `json:"failed"`
	Final      model.CampaignStatus `json:"final_status,omitempty"`
}

// Handle is the queue handler for delivery jobs. Malformed jobs are dropped; storage errors are
// returned so the queue retries, which is safe because only pending rows are attempted.
func (w *DeliveryWorker) Handle(ctx context.Context, payload any) error {
	job, err := queue.DecodeDeliveryJob(payload)
	if err != nil {
		w.Log.WithError(err).Warn("⚠️ dropping invalid delivery job")
		return nil
	}
	_, err = w.Deliver(ctx, job)
	return err
}

// Deliver drains the campaign's pending rows. A campaign that is not running is skipped.
// One recipient's transport error is recorded on its row and never stops the batch.
func (w *DeliveryWorker) Deliver(ctx context.Context, job queue.DeliveryJob) (*DeliveryReport, error) {
	report := &DeliveryReport{JobID: job.JobID, CampaignID: job.CampaignID}
	log := w.Log.WithFields(logrus.Fields{
		"org_id":      job.OrganizationID,
		"campaign_id": job.CampaignID,
		"job_id":      job.JobID,
	})

	if !w.running.TryLock(job.CampaignID) {
		report.Skipped = "delivery already in progress"
		log.Info("delivery already in progress, skipping")
		return report, nil
	}
	defer w.running.Unlock(job.CampaignID)

	start := w.Now()
	if w.Metrics != nil {
		defer func() { w.Metrics.DeliveryDuration.Observe(w.Now().Sub(start).Seconds()) }()
	}

	campaign, err := w.Campaigns.GetByID(ctx, job.OrganizationID, job.CampaignID, false)
	if err != nil {
		if appErrors.IsNotFound(err) {
			report.Skipped = "campaign not found"
			log.Warn("campaign not found, skipping delivery")
			return report, nil
		}
		return report, err
	}
	if campaign.Status != model.CampaignRunning {
		report.Skipped = fmt.Sprintf("campaign is %s", campaign.Status)
		log.Infof("campaign is %s, nothing to deliver", campaign.Status)
		return report, nil
	}

	pending, err := w.Emails.ListPending(ctx, job.OrganizationID, job.CampaignID)
	if err != nil {
		return report, fmt.Errorf("failed to list pending emails: %w", err)
	}
	log.Infof("📩 delivering %d pending emails", len(pending))

	for _, e := range pending {
		if w.Limiter != nil {
			if err := w.Limiter.Wait(ctx); err != nil {
				return report, err
			}
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}

		report.Attempted++
		if sendErr := w.send(ctx, e); sendErr != nil {
			if err := w.Emails.MarkFailed(ctx, job.OrganizationID, e.ID, sendErr.Error()); err != nil {
				return report, fmt.Errorf("failed to mark email %d failed: %w", e.ID, err)
			}
			report.Failed++
			if w.Metrics != nil {
				w.Metrics.EmailsFailed.Inc()
			}
			log.WithError(sendErr).WithField("email_id", e.ID).Warn("⚠️ failed to send email")
			continue
		}
		if err := w.Emails.MarkSent(ctx, job.OrganizationID, e.ID, w.Now()); err != nil {
			return report, fmt.Errorf("failed to mark email %d sent: %w", e.ID, err)
		}
		report.Sent++
		if w.Metrics != nil {
			w.Metrics.EmailsSent.Inc()
		}
	}

	sum, err := w.Stats.Recompute(ctx, job.OrganizationID, job.CampaignID)
	if err != nil {
		return report, err
	}
	if sum.Pending() > 0 {
		log.Warnf("%d emails still pending, leaving campaign running", sum.Pending())
		return report, nil
	}

	final := FinalStatus(sum)
	err = w.Campaigns.UpdateStatus(ctx, job.OrganizationID, job.CampaignID, model.CampaignRunning, final)
	if err != nil {
		if errors.Is(err, appErrors.ErrStaleStatus) {
			log.Warn("campaign left running concurrently, not finalizing")
			return report, nil
		}
		return report, err
	}
	report.Final = final
	if w.Metrics != nil {
		w.Metrics.CampaignsClosed.WithLabelValues(string(final)).Inc()
	}
	log.WithFields(logrus.Fields{"sent": sum.Sent, "failed": sum.Failed, "status": final}).Info("✅ campaign delivery finished")
	return report, nil
}

// send shields the batch from a panicking transport.
func (w *DeliveryWorker) send(ctx context.Context, e model.CampaignEmail) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("mail transport panic: %v", p)
		}
	}()
	return w.Transport.Send(ctx, e.Email, e.Subject, e.Body)
}

// FinalStatus derives the closing status from ledger truth. An empty ledger counts as all failed.
func FinalStatus(sum model.LedgerSummary) model.CampaignStatus {
	switch {
	case sum.Failed == sum.Total:
		return model.CampaignFailed
	case sum.Failed > 0:
		return model.CampaignPartial
	default:
		return model.CampaignCompleted
	}
}
