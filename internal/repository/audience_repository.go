// internal/repository/audience_repository.go
package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	appErrors "github.com/unclebandit/realestate-campaigns/internal/errors"
	"github.com/unclebandit/realestate-campaigns/internal/model"
)

type AudienceRepositoryInterface interface {
	GetByID(ctx context.Context, orgID, id int64, includeDeleted bool) (*model.Audience, error)
	// ListByIDs returns the audiences in the order of ids, skipping unknown ones.
	ListByIDs(ctx context.Context, orgID int64, ids []int64, includeDeleted bool) ([]model.Audience, error)
	// ListForCampaign returns the campaign's audiences in attachment order.
	ListForCampaign(ctx context.Context, orgID, campaignID int64, includeDeleted bool) ([]model.Audience, error)
}

type AudienceRepository struct {
	DB *sqlx.DB
}

const audienceColumns = `a.id, a.organization_id, a.created_by_id, a.name, a.description, a.filters,
	a.deleted_at, a.created_at, a.updated_at`

func (r *AudienceRepository) GetByID(ctx context.Context, orgID, id int64, includeDeleted bool) (*model.Audience, error) {
	query := `SELECT ` + audienceColumns + ` FROM audiences a WHERE a.organization_id = $1 AND a.id = $2`
	if !includeDeleted {
		query += ` AND a.deleted_at IS NULL`
	}
	var a model.Audience
	if err := r.DB.GetContext(ctx, &a, query, orgID, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewAudienceNotFound(orgID, id)
		}
		return nil, err
	}
	return &a, nil
}

func (r *AudienceRepository) ListByIDs(ctx context.Context, orgID int64, ids []int64, includeDeleted bool) ([]model.Audience, error) {
	if len(ids) == 0 {
		return []model.Audience{}, nil
	}
	query := `
		SELECT ` + audienceColumns + `
		FROM audiences a
		JOIN unnest($2::bigint[]) WITH ORDINALITY AS wanted(id, pos) ON wanted.id = a.id
		WHERE a.organization_id = $1`
	if !includeDeleted {
		query += ` AND a.deleted_at IS NULL`
	}
	query += ` ORDER BY wanted.pos`

	audiences := []model.Audience{}
	if err := r.DB.SelectContext(ctx, &audiences, query, orgID, pq.Array(ids)); err != nil {
		return nil, err
	}
	return audiences, nil
}

func (r *AudienceRepository) ListForCampaign(ctx context.Context, orgID, campaignID int64, includeDeleted bool) ([]model.Audience, error) {
	query := `
		SELECT ` + audienceColumns + `
		FROM audiences a
		JOIN campaign_audiences ca ON ca.audience_id = a.id
		JOIN campaigns c ON c.id = ca.campaign_id
		WHERE a.organization_id = $1 AND c.organization_id = $1 AND ca.campaign_id = $2`
	if !includeDeleted {
		query += ` AND a.deleted_at IS NULL`
	}
	query += ` ORDER BY ca.id`

	audiences := []model.Audience{}
	if err := r.DB.SelectContext(ctx, &audiences, query, orgID, campaignID); err != nil {
		return nil, err
	}
	return audiences, nil
}

var _ AudienceRepositoryInterface = (*AudienceRepository)(nil)
