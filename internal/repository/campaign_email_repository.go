// internal/repository/campaign_email_repository.go
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/unclebandit/realestate-campaigns/internal/model"
)

// CampaignEmailRepositoryInterface is the delivery ledger. Only the delivery worker changes row status.
type CampaignEmailRepositoryInterface interface {
	// ListPending returns the campaign's pending rows in ascending id order.
	ListPending(ctx context.Context, orgID, campaignID int64) ([]model.CampaignEmail, error)
	// MarkSent and MarkFailed only move rows that are still pending.
	MarkSent(ctx context.Context, orgID, id int64, at time.Time) error
	MarkFailed(ctx context.Context, orgID, id int64, reason string) error
	ListByCampaign(ctx context.Context, orgID, campaignID int64, status string, offset, limit int) ([]model.CampaignEmail, int, error)
	Summarize(ctx context.Context, orgID, campaignID int64) (model.LedgerSummary, error)
}

type CampaignEmailRepository struct {
	DB *sqlx.DB
}

const emailColumns = `e.id, e.campaign_id, e.contact_id, e.audience_id, e.email, e.subject, e.body,
	e.status, e.sent_at, e.error_message, e.created_at, e.updated_at`

// every ledger query is scoped through the owning campaign's organization
const emailScope = `FROM campaign_emails e JOIN campaigns c ON c.id = e.campaign_id AND c.organization_id = $1`

func (r *CampaignEmailRepository) ListPending(ctx context.Context, orgID, campaignID int64) ([]model.CampaignEmail, error) {
	query := `SELECT ` + emailColumns + ` ` + emailScope + `
		WHERE e.campaign_id = $2 AND e.status = $3
		ORDER BY e.id`
	emails := []model.CampaignEmail{}
	if err := r.DB.SelectContext(ctx, &emails, query, orgID, campaignID, model.EmailPending); err != nil {
		return nil, err
	}
	return emails, nil
}

func (r *CampaignEmailRepository) MarkSent(ctx context.Context, orgID, id int64, at time.Time) error {
	return r.mark(ctx, orgID, id, model.EmailSent, &at, "")
}

func (r *CampaignEmailRepository) MarkFailed(ctx context.Context, orgID, id int64, reason string) error {
	return r.mark(ctx, orgID, id, model.EmailFailed, nil, reason)
}

func (r *CampaignEmailRepository) mark(ctx context.Context, orgID, id int64, status model.EmailStatus, sentAt *time.Time, reason string) error {
	query := `
		UPDATE campaign_emails e
		SET status = $1, sent_at = $2, error_message = $3, updated_at = NOW()
		FROM campaigns c
		WHERE c.id = e.campaign_id AND c.organization_id = $4 AND e.id = $5 AND e.status = $6
	`
	res, err := r.DB.ExecContext(ctx, query, status, sentAt, reason, orgID, id, model.EmailPending)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected != 1 {
		return fmt.Errorf("campaign email %d is no longer pending", id)
	}
	return nil
}

func (r *CampaignEmailRepository) ListByCampaign(ctx context.Context, orgID, campaignID int64, status string, offset, limit int) ([]model.CampaignEmail, int, error) {
	where := ` WHERE e.campaign_id = $2`
	args := []any{orgID, campaignID}
	argPos := 3
	if status != "" {
		where += fmt.Sprintf(" AND e.status = $%d", argPos)
		args = append(args, status)
		argPos++
	}

	query := `SELECT ` + emailColumns + ` ` + emailScope + where +
		fmt.Sprintf(" ORDER BY e.id LIMIT $%d OFFSET $%d", argPos, argPos+1)
	emails := []model.CampaignEmail{}
	if err := r.DB.SelectContext(ctx, &emails, query, append(args, limit, offset)...); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.DB.GetContext(ctx, &total, `SELECT COUNT(*) `+emailScope+where, args...); err != nil {
		return nil, 0, err
	}
	return emails, total, nil
}

func (r *CampaignEmailRepository) Summarize(ctx context.Context, orgID, campaignID int64) (model.LedgerSummary, error) {
	query := `
		SELECT COUNT(*) AS total,
		       COUNT(*) FILTER (WHERE e.status = 'sent') AS sent,
		       COUNT(*) FILTER (WHERE e.status = 'failed') AS failed,
		       MAX(e.sent_at) FILTER (WHERE e.status = 'sent') AS last_sent_at
		` + emailScope + ` WHERE e.campaign_id = $2`
	var s model.LedgerSummary
	err := r.DB.GetContext(ctx, &s, query, orgID, campaignID)
	return s, err
}

var _ CampaignEmailRepositoryInterface = (*CampaignEmailRepository)(nil)
