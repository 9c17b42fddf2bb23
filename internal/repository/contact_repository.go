// internal/repository/contact_repository.go
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/unclebandit/realestate-campaigns/internal/filter"
	"github.com/unclebandit/realestate-campaigns/internal/model"
)

// ContactRepositoryInterface is the read model the campaign pipeline consumes. It never writes contacts.
type ContactRepositoryInterface interface {
	GetByID(ctx context.Context, orgID, id int64, includeDeleted bool) (*model.Contact, error)
	// ListMatching returns the organization's contacts satisfying p, ordered by id.
	ListMatching(ctx context.Context, orgID int64, p filter.Predicate, includeDeleted bool) ([]model.Contact, error)
	// ListAssigned returns the contacts explicitly assigned to the audience, ordered by id.
	ListAssigned(ctx context.Context, orgID, audienceID int64, includeDeleted bool) ([]model.Contact, error)
}

// ContactRepository is the concrete implementation
type ContactRepository struct {
	DB *sqlx.DB
}

const contactColumns = `c.id, c.organization_id, c.email, c.first_name, c.last_name, c.phone,
	c.preferences, c.deleted_at, c.created_at, c.updated_at`

// GetByID fetches a contact by ID, nil when it does not exist in the organization
func (r *ContactRepository) GetByID(ctx context.Context, orgID, id int64, includeDeleted bool) (*model.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts c WHERE c.organization_id = $1 AND c.id = $2`
	if !includeDeleted {
		query += ` AND c.deleted_at IS NULL`
	}
	var c model.Contact
	if err := r.DB.GetContext(ctx, &c, query, orgID, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // not found
		}
		return nil, err
	}
	return &c, nil
}

func (r *ContactRepository) ListMatching(ctx context.Context, orgID int64, p filter.Predicate, includeDeleted bool) ([]model.Contact, error) {
	clause, args := p.SQL(2)
	query := `SELECT ` + contactColumns + ` FROM contacts c WHERE c.organization_id = $1 AND ` + clause
	if !includeDeleted {
		query += ` AND c.deleted_at IS NULL`
	}
	query += ` ORDER BY c.id`

	contacts := []model.Contact{}
	if err := r.DB.SelectContext(ctx, &contacts, query, append([]any{orgID}, args...)...); err != nil {
		return nil, fmt.Errorf("failed to list matching contacts: %w", err)
	}
	return contacts, nil
}

func (r *ContactRepository) ListAssigned(ctx context.Context, orgID, audienceID int64, includeDeleted bool) ([]model.Contact, error) {
	query := `
		SELECT ` + contactColumns + `
		FROM contacts c
		JOIN audience_contacts ac ON ac.contact_id = c.id
		JOIN audiences a ON a.id = ac.audience_id
		WHERE c.organization_id = $1 AND a.organization_id = $1 AND ac.audience_id = $2`
	if !includeDeleted {
		query += ` AND c.deleted_at IS NULL`
	}
	query += ` ORDER BY c.id`

	contacts := []model.Contact{}
	if err := r.DB.SelectContext(ctx, &contacts, query, orgID, audienceID); err != nil {
		return nil, fmt.Errorf("failed to list assigned contacts: %w", err)
	}
	return contacts, nil
}

var _ ContactRepositoryInterface = (*ContactRepository)(nil)
