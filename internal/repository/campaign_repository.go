// internal/repository/campaign_repository.go
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	appErrors "github.com/unclebandit/realestate-campaigns/internal/errors"
	"github.com/unclebandit/realestate-campaigns/internal/model"
)

type CampaignRepositoryInterface interface {
	ListCampaigns(ctx context.Context, orgID int64, offset, limit int, status string) ([]*model.Campaign, int, error)
	GetByID(ctx context.Context, orgID, id int64, includeDeleted bool) (*model.Campaign, error)
	// ListDue returns created, non-deleted campaigns whose scheduled_at is not after now.
	ListDue(ctx context.Context, orgID int64, now time.Time) ([]*model.Campaign, error)
	// Create inserts the campaign and attaches the audiences in attachment order.
	Create(ctx context.Context, c *model.Campaign, audienceIDs []int64) error
	// UpdateStatus transitions from -> to, failing with ErrStaleStatus when the row is not in from.
	UpdateStatus(ctx context.Context, orgID, id int64, from, to model.CampaignStatus) error
}

type CampaignRepository struct {
	DB *sqlx.DB
}

const campaignColumns = `id, organization_id, created_by_id, name, description, status, scheduled_type,
	scheduled_at, email_template_id, subject, body, custom_variables, recurrence_interval,
	recurrence_end_date, max_occurrences, occurrence_count, deleted_at, created_at, updated_at`

// ====================== Campaign CRUD ======================

func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign, audienceIDs []int64) (err error) {
	if err = c.Validate(); err != nil {
		return err
	}
	c.CreatedAt = time.Now()
	if c.Status == "" {
		c.Status = model.CampaignCreated
	}
	if c.ScheduledType == "" {
		c.ScheduledType = model.ScheduleImmediate
	}

	var tx *sqlx.Tx
	tx, err = r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err == nil {
			err = tx.Commit()
			return
		}
		_ = tx.Rollback()
	}()

	query := `
		INSERT INTO campaigns (organization_id, created_by_id, name, description, status, scheduled_type,
			scheduled_at, email_template_id, subject, body, custom_variables, recurrence_interval,
			recurrence_end_date, max_occurrences, occurrence_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id
	`
	err = tx.QueryRowxContext(ctx, query,
		c.OrganizationID, c.CreatedByID, c.Name, c.Description, c.Status, c.ScheduledType,
		c.ScheduledAt, c.EmailTemplateID, c.Subject, c.Body, c.CustomVariables, c.RecurrenceInterval,
		c.RecurrenceEndDate, c.MaxOccurrences, c.OccurrenceCount, c.CreatedAt,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("failed to insert campaign: %w", err)
	}

	for _, audienceID := range audienceIDs {
		// the audience must belong to the same organization
		_, err = tx.ExecContext(ctx, `
			INSERT INTO campaign_audiences (campaign_id, audience_id)
			SELECT $1, a.id FROM audiences a WHERE a.id = $2 AND a.organization_id = $3
		`, c.ID, audienceID, c.OrganizationID)
		if err != nil {
			return fmt.Errorf("failed to attach audience %d: %w", audienceID, err)
		}
	}
	return nil
}

func (r *CampaignRepository) UpdateStatus(ctx context.Context, orgID, id int64, from, to model.CampaignStatus) error {
	return updateStatus(ctx, r.DB, orgID, id, from, to)
}

func (r *CampaignRepository) GetByID(ctx context.Context, orgID, id int64, includeDeleted bool) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE organization_id = $1 AND id = $2`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	var c model.Campaign
	if err := r.DB.GetContext(ctx, &c, query, orgID, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewCampaignNotFound(orgID, id)
		}
		return nil, err
	}
	return &c, nil
}

func (r *CampaignRepository) ListDue(ctx context.Context, orgID int64, now time.Time) ([]*model.Campaign, error) {
	query := `
		SELECT ` + campaignColumns + `
		FROM campaigns
		WHERE organization_id = $1
		  AND status = $2
		  AND scheduled_at IS NOT NULL
		  AND scheduled_at <= $3
		  AND deleted_at IS NULL
		ORDER BY scheduled_at, id
	`
	campaigns := []*model.Campaign{}
	if err := r.DB.SelectContext(ctx, &campaigns, query, orgID, model.CampaignCreated, now); err != nil {
		return nil, err
	}
	return campaigns, nil
}

func (r *CampaignRepository) ListCampaigns(ctx context.Context, orgID int64, offset, limit int, status string) ([]*model.Campaign, int, error) {
	where := ` WHERE organization_id = $1 AND deleted_at IS NULL`
	args := []interface{}{orgID}
	argPos := 2

	if status != "" {
		where += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, status)
		argPos++
	}

	query := `SELECT ` + campaignColumns + ` FROM campaigns` + where +
		fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)

	campaigns := []*model.Campaign{}
	if err := r.DB.SelectContext(ctx, &campaigns, query, append(args, limit, offset)...); err != nil {
		return nil, 0, err
	}

	// Count total
	var total int
	if err := r.DB.GetContext(ctx, &total, `SELECT COUNT(*) FROM campaigns`+where, args...); err != nil {
		return nil, 0, err
	}

	return campaigns, total, nil
}

func updateStatus(ctx context.Context, db sqlx.ExtContext, orgID, id int64, from, to model.CampaignStatus) error {
	res, err := db.ExecContext(ctx, `
		UPDATE campaigns SET status = $1, updated_at = NOW()
		WHERE organization_id = $2 AND id = $3 AND status = $4
	`, to, orgID, id, from)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected != 1 {
		return fmt.Errorf("campaign %d %s -> %s: %w", id, from, to, appErrors.ErrStaleStatus)
	}
	return nil
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
