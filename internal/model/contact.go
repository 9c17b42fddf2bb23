// internal/model/contact.go
package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type Contact struct {
	ID             int64       `db:"id" json:"id"`
	OrganizationID int64       `db:"organization_id" json:"organization_id"`
	Email          string      `db:"email" json:"email"`
	FirstName      string      `db:"first_name" json:"first_name"`
	LastName       string      `db:"last_name" json:"last_name"`
	Phone          string      `db:"phone" json:"phone,omitempty"`
	Preferences    Preferences `db:"preferences" json:"preferences"`
	DeletedAt      *time.Time  `db:"deleted_at" json:"deleted_at,omitempty"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at" json:"updated_at"`
}

// FullName joins first and last name, empty when both are blank.
func (c *Contact) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

func (c *Contact) Deleted() bool {
	return c.DeletedAt != nil
}

// Preferences is the contact's free-form preference document, stored as jsonb.
type Preferences struct {
	ContactType       string   `json:"contact_type,omitempty"`
	MinBudget         *int64   `json:"min_budget,omitempty"`
	MaxBudget         *int64   `json:"max_budget,omitempty"`
	PropertyLocations []string `json:"property_locations,omitempty"`
	PropertyTypes     []string `json:"property_types,omitempty"`
	Timeline          string   `json:"timeline,omitempty"`
}

func (p Preferences) Value() (driver.Value, error) {
	return json.Marshal(p)
}

func (p *Preferences) Scan(src any) error {
	return scanJSON(src, p)
}

func scanJSON(src any, dst any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dst)
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported json source type %T", src)
	}
}
