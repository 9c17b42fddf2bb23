// internal/repository/statistic_repository.go
package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/unclebandit/realestate-campaigns/internal/model"
)

type StatisticRepositoryInterface interface {
	// Get returns nil when the campaign has not been materialized yet.
	Get(ctx context.Context, orgID, campaignID int64) (*model.CampaignStatistic, error)
	// Overwrite replaces the counters wholesale with the ledger summary.
	Overwrite(ctx context.Context, orgID, campaignID int64, s model.LedgerSummary) error
}

type StatisticRepository struct {
	DB *sqlx.DB
}

func (r *StatisticRepository) Get(ctx context.Context, orgID, campaignID int64) (*model.CampaignStatistic, error) {
	query := `
		SELECT s.id, s.campaign_id, s.total_contacts, s.emails_sent, s.emails_failed, s.last_sent_at,
		       s.created_at, s.updated_at
		FROM campaign_statistics s
		JOIN campaigns c ON c.id = s.campaign_id
		WHERE c.organization_id = $1 AND s.campaign_id = $2
	`
	var s model.CampaignStatistic
	if err := r.DB.GetContext(ctx, &s, query, orgID, campaignID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *StatisticRepository) Overwrite(ctx context.Context, orgID, campaignID int64, sum model.LedgerSummary) error {
	query := `
		INSERT INTO campaign_statistics (campaign_id, total_contacts, emails_sent, emails_failed, last_sent_at)
		SELECT c.id, $3, $4, $5, $6 FROM campaigns c WHERE c.organization_id = $1 AND c.id = $2
		ON CONFLICT (campaign_id) DO UPDATE
		SET total_contacts = EXCLUDED.total_contacts,
		    emails_sent = EXCLUDED.emails_sent,
		    emails_failed = EXCLUDED.emails_failed,
		    last_sent_at = EXCLUDED.last_sent_at,
		    updated_at = NOW()
	`
	_, err := r.DB.ExecContext(ctx, query, orgID, campaignID, sum.Total, sum.Sent, sum.Failed, sum.LastSentAt)
	return err
}

var _ StatisticRepositoryInterface = (*StatisticRepository)(nil)
