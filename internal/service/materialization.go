// internal/service/materialization.go
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	appErrors "github.com/unclebandit/realestate-campaigns/internal/errors"
	"github.com/unclebandit/realestate-campaigns/internal/model"
	"github.com/unclebandit/realestate-campaigns/internal/queue"
	"github.com/unclebandit/realestate-campaigns/internal/repository"
)

const (
	ReasonNotCreated  = "Campaign must be in created status"
	ReasonNoAudiences = "Campaign has no target contacts: at least one audience is required"
	ReasonNoContent   = "Campaign must have an email template or subject and body"
	ReasonNoContacts  = "no target contacts"
	ReasonNoTemplate  = "Email template not found"
)

// ExecutionResult describes a successful materialization.
type ExecutionResult struct {
	Campaign   *model.Campaign `json:"campaign"`
	Recipients int             `json:"recipients"`
	JobID      string          `json:"job_id"`
}

func executionErrors(c *model.Campaign, audiences int) []string {
	var reasons []string
	if c.Status != model.CampaignCreated {
		reasons = append(reasons, ReasonNotCreated)
	}
	if audiences == 0 {
		reasons = append(reasons, ReasonNoAudiences)
	}
	if !c.HasContent() {
		reasons = append(reasons, ReasonNoContent)
	}
	return reasons
}

// ExecutionErrors lists why the campaign cannot be executed right now, empty when it can.
func (s *CampaignService) ExecutionErrors(ctx context.Context, c *model.Campaign) ([]string, error) {
	audiences, err := s.AudienceRepo.ListForCampaign(ctx, c.OrganizationID, c.ID, false)
	if err != nil {
		return nil, err
	}
	return executionErrors(c, len(audiences)), nil
}

// Prepare materializes the campaign: one pending ledger row per distinct recipient, the statistic
// row and the created -> running transition commit together or not at all. A delivery job is
// published after commit.
//
// Failures before any write return a ValidationError, or ErrAlreadyMaterialized when the campaign
// already produced its rows. Both leave the campaign untouched, as does a zero recipient result.
// Any other failure rolls back and moves the campaign to failed.
func (s *CampaignService) Prepare(ctx context.Context, orgID, campaignID int64) (*ExecutionResult, error) {
	log := s.Log.WithFields(logrus.Fields{"org_id": orgID, "campaign_id": campaignID})

	campaign, err := s.CampaignRepo.GetByID(ctx, orgID, campaignID, false)
	if err != nil {
		return nil, err
	}
	if alreadyMaterialized(campaign.Status) {
		s.count("already_materialized")
		return nil, fmt.Errorf("campaign %d is %s: %w", campaignID, campaign.Status, appErrors.ErrAlreadyMaterialized)
	}
	reasons, err := s.ExecutionErrors(ctx, campaign)
	if err != nil {
		return nil, err
	}
	if len(reasons) > 0 {
		s.count("invalid")
		return nil, appErrors.NewValidationError(campaignID, reasons...)
	}

	var tmpl *model.EmailTemplate
	if campaign.EmailTemplateID != nil {
		tmpl, err = s.TemplateRepo.GetByID(ctx, orgID, *campaign.EmailTemplateID, false)
		if err != nil {
			if appErrors.IsNotFound(err) {
				s.count("invalid")
				return nil, appErrors.NewValidationError(campaignID, ReasonNoTemplate)
			}
			return nil, err
		}
	}

	var recipients int
	var running *model.Campaign
	err = s.Tx.WithinTx(ctx, func(ctx context.Context, tx repository.MaterializationTx) error {
		locked, err := tx.LockCampaign(ctx, orgID, campaignID)
		if err != nil {
			return err
		}
		if locked.Status != model.CampaignCreated {
			return fmt.Errorf("campaign %d is %s: %w", campaignID, locked.Status, appErrors.ErrAlreadyMaterialized)
		}
		existing, err := tx.CountCampaignEmails(ctx, campaignID)
		if err != nil {
			return err
		}
		if existing > 0 {
			return fmt.Errorf("campaign %d has %d ledger rows: %w", campaignID, existing, appErrors.ErrAlreadyMaterialized)
		}

		contacts, err := s.Contacts.Resolve(ctx, orgID, campaignID)
		if err != nil {
			return err
		}
		if len(contacts) == 0 {
			return appErrors.ErrNoTargetContacts
		}

		for _, rc := range contacts {
			email := renderEmail(locked, tmpl, rc)
			if err := tx.InsertCampaignEmail(ctx, &email); err != nil {
				return err
			}
		}
		if err := tx.InsertStatistic(ctx, campaignID, len(contacts)); err != nil {
			return err
		}
		if locked.IsRecurring() {
			n, err := tx.IncrementOccurrence(ctx, orgID, campaignID)
			if err != nil {
				return err
			}
			locked.OccurrenceCount = n
		}
		if err := tx.UpdateStatus(ctx, orgID, campaignID, model.CampaignCreated, model.CampaignRunning); err != nil {
			return err
		}
		locked.Status = model.CampaignRunning
		running = locked
		recipients = len(contacts)
		return nil
	})

	switch {
	case err == nil:
	case errors.Is(err, appErrors.ErrAlreadyMaterialized):
		s.count("already_materialized")
		return nil, err
	case errors.Is(err, appErrors.ErrNoTargetContacts):
		log.Warn("campaign has no contacts to send to")
		s.count("no_contacts")
		return nil, appErrors.NewMaterializationError(campaignID, ReasonNoContacts, err)
	default:
		s.markFailed(ctx, log, orgID, campaignID)
		s.count("failed")
		log.WithError(err).Error("❌ campaign preparation failed")
		return nil, appErrors.NewMaterializationError(campaignID, failureReason(err), err)
	}

	s.count("ok")
	jobID := s.enqueue(log, orgID, campaignID)
	log.WithFields(logrus.Fields{"recipients": recipients, "job_id": jobID}).Info("✅ campaign materialized")
	return &ExecutionResult{Campaign: running, Recipients: recipients, JobID: jobID}, nil
}

// Requeue publishes a new delivery job for a running campaign, e.g. after a worker crashed
// mid-batch. Only pending rows will be attempted.
func (s *CampaignService) Requeue(ctx context.Context, orgID, campaignID int64) (string, error) {
	campaign, err := s.CampaignRepo.GetByID(ctx, orgID, campaignID, false)
	if err != nil {
		return "", err
	}
	if campaign.Status != model.CampaignRunning {
		return "", fmt.Errorf("campaign %d is %s, only running campaigns can be requeued", campaignID, campaign.Status)
	}
	job := queue.DeliveryJob{OrganizationID: orgID, CampaignID: campaignID, JobID: uuid.NewString()}
	if err := s.Queue.Publish(s.topic(), job); err != nil {
		return "", fmt.Errorf("failed to enqueue delivery for campaign %d: %w", campaignID, err)
	}
	return job.JobID, nil
}

func (s *CampaignService) enqueue(log logrus.FieldLogger, orgID, campaignID int64) string {
	job := queue.DeliveryJob{OrganizationID: orgID, CampaignID: campaignID, JobID: uuid.NewString()}
	if err := s.Queue.Publish(s.topic(), job); err != nil {
		// rows are committed; a requeue picks the campaign up again
		log.WithError(err).Error("⚠️ failed to enqueue delivery job")
	}
	return job.JobID
}

func (s *CampaignService) markFailed(ctx context.Context, log logrus.FieldLogger, orgID, campaignID int64) {
	err := s.CampaignRepo.UpdateStatus(ctx, orgID, campaignID, model.CampaignCreated, model.CampaignFailed)
	if err != nil && !errors.Is(err, appErrors.ErrStaleStatus) {
		log.WithError(err).Error("failed to mark campaign as failed")
	}
}

func (s *CampaignService) count(result string) {
	if s.Metrics != nil {
		s.Metrics.Materializations.WithLabelValues(result).Inc()
	}
}

func alreadyMaterialized(status model.CampaignStatus) bool {
	return status == model.CampaignRunning || (status.Terminal() && status != model.CampaignFailed)
}

func failureReason(err error) string {
	if errors.Is(err, appErrors.ErrDuplicateLedgerRow) {
		return "duplicate recipient in campaign ledger"
	}
	return "could not create campaign emails"
}

func renderEmail(c *model.Campaign, tmpl *model.EmailTemplate, rc ResolvedContact) model.CampaignEmail {
	var subject, body string
	if tmpl != nil {
		subject, body = RenderForContact(*tmpl, rc.Contact, c.CustomVariables)
	} else {
		subject, body = RenderLiteral(c.Subject, c.Body, rc.Contact)
	}
	audienceID := rc.AudienceID
	return model.CampaignEmail{
		CampaignID: c.ID,
		ContactID:  rc.Contact.ID,
		AudienceID: &audienceID,
		Email:      rc.Contact.Email,
		Subject:    subject,
		Body:       body,
		Status:     model.EmailPending,
	}
}
