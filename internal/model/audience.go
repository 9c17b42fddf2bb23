// internal/model/audience.go
package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type Audience struct {
	ID             int64          `db:"id" json:"id"`
	OrganizationID int64          `db:"organization_id" json:"organization_id"`
	CreatedByID    int64          `db:"created_by_id" json:"created_by_id"`
	Name           string         `db:"name" json:"name"`
	Description    string         `db:"description" json:"description,omitempty"`
	Filters        AudienceFilter `db:"filters" json:"filters"`
	DeletedAt      *time.Time     `db:"deleted_at" json:"deleted_at,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// AudienceFilter is the structured filter document of an audience.
// Zero values (empty string, nil range, empty slice) impose no constraint.
type AudienceFilter struct {
	ContactType       string       `json:"contact_type,omitempty"`
	MinBudgetRange    *BudgetRange `json:"min_budget_range,omitempty"`
	MaxBudgetRange    *BudgetRange `json:"max_budget_range,omitempty"`
	PropertyLocations []string     `json:"property_locations,omitempty"`
	PropertyTypes     []string     `json:"property_types,omitempty"`
	Timelines         []string     `json:"timelines,omitempty"`
}

func (f AudienceFilter) Value() (driver.Value, error) {
	return json.Marshal(f)
}

func (f *AudienceFilter) Scan(src any) error {
	return scanJSON(src, f)
}

// BudgetRange is an inclusive range; a nil bound is open.
// On the wire it is a two element array, e.g. [1000000, null].
type BudgetRange struct {
	Min *int64
	Max *int64
}

func (r BudgetRange) Open() bool {
	return r.Min == nil && r.Max == nil
}

func (r BudgetRange) Contains(v int64) bool {
	if r.Min != nil && v < *r.Min {
		return false
	}
	if r.Max != nil && v > *r.Max {
		return false
	}
	return true
}

func (r BudgetRange) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]*int64{r.Min, r.Max})
}

func (r *BudgetRange) UnmarshalJSON(data []byte) error {
	var pair []*int64
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("budget range must be a [min, max] array: %w", err)
	}
	if len(pair) > 2 {
		return fmt.Errorf("budget range must have at most two elements, got %d", len(pair))
	}
	r.Min, r.Max = nil, nil
	if len(pair) > 0 {
		r.Min = pair[0]
	}
	if len(pair) > 1 {
		r.Max = pair[1]
	}
	return nil
}
