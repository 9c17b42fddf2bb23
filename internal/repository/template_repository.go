// internal/repository/template_repository.go
package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	appErrors "github.com/unclebandit/realestate-campaigns/internal/errors"
	"github.com/unclebandit/realestate-campaigns/internal/model"
)

type TemplateRepositoryInterface interface {
	GetByID(ctx context.Context, orgID, id int64, includeDeleted bool) (*model.EmailTemplate, error)
}

type TemplateRepository struct {
	DB *sqlx.DB
}

func (r *TemplateRepository) GetByID(ctx context.Context, orgID, id int64, includeDeleted bool) (*model.EmailTemplate, error) {
	query := `
		SELECT id, organization_id, name, subject, body, deleted_at, created_at
		FROM email_templates WHERE organization_id = $1 AND id = $2`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	var t model.EmailTemplate
	if err := r.DB.GetContext(ctx, &t, query, orgID, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewTemplateNotFound(orgID, id)
		}
		return nil, err
	}
	return &t, nil
}

var _ TemplateRepositoryInterface = (*TemplateRepository)(nil)

type OrganizationRepositoryInterface interface {
	// ListActive returns the non-deleted organizations ordered by id.
	ListActive(ctx context.Context) ([]model.Organization, error)
}

type OrganizationRepository struct {
	DB *sqlx.DB
}

func (r *OrganizationRepository) ListActive(ctx context.Context) ([]model.Organization, error) {
	orgs := []model.Organization{}
	err := r.DB.SelectContext(ctx, &orgs, `
		SELECT id, name, deleted_at, created_at FROM organizations
		WHERE deleted_at IS NULL ORDER BY id
	`)
	return orgs, err
}

var _ OrganizationRepositoryInterface = (*OrganizationRepository)(nil)
