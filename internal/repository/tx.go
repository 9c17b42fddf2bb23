// internal/repository/tx.go
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	appErrors "github.com/unclebandit/realestate-campaigns/internal/errors"
	"github.com/unclebandit/realestate-campaigns/internal/model"
)

// Transactor runs fn inside one database transaction. fn's error rolls everything back.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx MaterializationTx) error) error
}

// MaterializationTx is the set of writes a campaign materialization needs to make atomically.
type MaterializationTx interface {
	// LockCampaign loads the campaign row and holds it until the transaction ends.
	LockCampaign(ctx context.Context, orgID, id int64) (*model.Campaign, error)
	CountCampaignEmails(ctx context.Context, campaignID int64) (int, error)
	// InsertCampaignEmail fails with ErrDuplicateLedgerRow when the (campaign, contact) row exists.
	InsertCampaignEmail(ctx context.Context, e *model.CampaignEmail) error
	InsertStatistic(ctx context.Context, campaignID int64, total int) error
	IncrementOccurrence(ctx context.Context, orgID, id int64) (int, error)
	UpdateStatus(ctx context.Context, orgID, id int64, from, to model.CampaignStatus) error
}

type PostgresTransactor struct {
	DB *sqlx.DB
}

func (t *PostgresTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context, tx MaterializationTx) error) (err error) {
	var tx *sqlx.Tx
	tx, err = t.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err == nil {
			err = tx.Commit()
			return
		}
		_ = tx.Rollback()
	}()

	err = fn(ctx, &pgTx{tx: tx})
	return err
}

type pgTx struct {
	tx *sqlx.Tx
}

func (p *pgTx) LockCampaign(ctx context.Context, orgID, id int64) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns
		WHERE organization_id = $1 AND id = $2 AND deleted_at IS NULL
		FOR UPDATE`
	var c model.Campaign
	if err := p.tx.GetContext(ctx, &c, query, orgID, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewCampaignNotFound(orgID, id)
		}
		return nil, err
	}
	return &c, nil
}

func (p *pgTx) CountCampaignEmails(ctx context.Context, campaignID int64) (int, error) {
	var n int
	err := p.tx.GetContext(ctx, &n, `SELECT COUNT(*) FROM campaign_emails WHERE campaign_id = $1`, campaignID)
	return n, err
}

func (p *pgTx) InsertCampaignEmail(ctx context.Context, e *model.CampaignEmail) error {
	query := `
		INSERT INTO campaign_emails (campaign_id, contact_id, audience_id, email, subject, body, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`
	if e.Status == "" {
		e.Status = model.EmailPending
	}
	err := p.tx.QueryRowxContext(ctx, query,
		e.CampaignID, e.ContactID, e.AudienceID, e.Email, e.Subject, e.Body, e.Status,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("contact %d: %w", e.ContactID, appErrors.ErrDuplicateLedgerRow)
	}
	return err
}

func (p *pgTx) InsertStatistic(ctx context.Context, campaignID int64, total int) error {
	_, err := p.tx.ExecContext(ctx, `
		INSERT INTO campaign_statistics (campaign_id, total_contacts, emails_sent, emails_failed)
		VALUES ($1, $2, 0, 0)
	`, campaignID, total)
	return err
}

func (p *pgTx) IncrementOccurrence(ctx context.Context, orgID, id int64) (int, error) {
	var n int
	err := p.tx.GetContext(ctx, &n, `
		UPDATE campaigns SET occurrence_count = occurrence_count + 1, updated_at = NOW()
		WHERE organization_id = $1 AND id = $2
		RETURNING occurrence_count
	`, orgID, id)
	return n, err
}

func (p *pgTx) UpdateStatus(ctx context.Context, orgID, id int64, from, to model.CampaignStatus) error {
	return updateStatus(ctx, p.tx, orgID, id, from, to)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

var _ Transactor = (*PostgresTransactor)(nil)
