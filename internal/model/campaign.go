// internal/model/campaign.go
package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

type CampaignStatus string

const (
	CampaignCreated   CampaignStatus = "created"
	CampaignRunning   CampaignStatus = "running"
	CampaignCompleted CampaignStatus = "completed"
	CampaignFailed    CampaignStatus = "failed"
	CampaignPartial   CampaignStatus = "partial"
)

// Terminal reports whether no further transition is allowed from s.
func (s CampaignStatus) Terminal() bool {
	return s == CampaignCompleted || s == CampaignFailed || s == CampaignPartial
}

type ScheduleType string

const (
	ScheduleImmediate ScheduleType = "immediate"
	ScheduleScheduled ScheduleType = "scheduled"
	ScheduleRecurring ScheduleType = "recurring"
)

type RecurrenceInterval string

const (
	RecurDaily    RecurrenceInterval = "daily"
	RecurWeekly   RecurrenceInterval = "weekly"
	RecurBiweekly RecurrenceInterval = "biweekly"
	RecurMonthly  RecurrenceInterval = "monthly"
)

type Campaign struct {
	ID                 int64              `db:"id" json:"id"`
	OrganizationID     int64              `db:"organization_id" json:"organization_id"`
	CreatedByID        int64              `db:"created_by_id" json:"created_by_id"`
	Name               string             `db:"name" json:"name"`
	Description        string             `db:"description" json:"description,omitempty"`
	Status             CampaignStatus     `db:"status" json:"status"`
	ScheduledType      ScheduleType       `db:"scheduled_type" json:"scheduled_type"`
	ScheduledAt        *time.Time         `db:"scheduled_at" json:"scheduled_at,omitempty"`
	EmailTemplateID    *int64             `db:"email_template_id" json:"email_template_id,omitempty"`
	Subject            string             `db:"subject" json:"subject,omitempty"`
	Body               string             `db:"body" json:"body,omitempty"`
	CustomVariables    Variables          `db:"custom_variables" json:"custom_variables,omitempty"`
	RecurrenceInterval RecurrenceInterval `db:"recurrence_interval" json:"recurrence_interval,omitempty"`
	RecurrenceEndDate  *time.Time         `db:"recurrence_end_date" json:"recurrence_end_date,omitempty"`
	MaxOccurrences     *int               `db:"max_occurrences" json:"max_occurrences,omitempty"`
	OccurrenceCount    int                `db:"occurrence_count" json:"occurrence_count"`
	DeletedAt          *time.Time         `db:"deleted_at" json:"deleted_at,omitempty"`
	CreatedAt          time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt          *time.Time         `db:"updated_at" json:"updated_at,omitempty"`
}

var (
	errScheduledAtRequired = errors.New("scheduled_at is required for scheduled and recurring campaigns")
	errEndBeforeStart      = errors.New("recurrence_end_date must be after scheduled_at")
	errMaxOccurrences      = errors.New("max_occurrences must be greater than 0")
)

// Validate checks the campaign's scheduling invariants.
func (c *Campaign) Validate() error {
	if (c.ScheduledType == ScheduleScheduled || c.ScheduledType == ScheduleRecurring) && c.ScheduledAt == nil {
		return errScheduledAtRequired
	}
	if !c.IsRecurring() {
		return nil
	}
	if c.RecurrenceEndDate != nil && !c.RecurrenceEndDate.After(*c.ScheduledAt) {
		return errEndBeforeStart
	}
	if c.MaxOccurrences != nil && *c.MaxOccurrences <= 0 {
		return errMaxOccurrences
	}
	return nil
}

func (c *Campaign) IsRecurring() bool {
	return c.ScheduledType == ScheduleRecurring
}

func (c *Campaign) CanUpdate() bool {
	return c.Status == CampaignCreated && c.DeletedAt == nil
}

func (c *Campaign) HasContent() bool {
	return c.EmailTemplateID != nil || (c.Subject != "" && c.Body != "")
}

// NextScheduledTime advances scheduled_at by one recurrence interval.
// The base is the current scheduled_at, never the wall clock, so the cadence stays fixed
// even when the scheduler runs late.
func (c *Campaign) NextScheduledTime() *time.Time {
	if !c.IsRecurring() || c.ScheduledAt == nil {
		return nil
	}
	at := *c.ScheduledAt
	var next time.Time
	switch c.RecurrenceInterval {
	case RecurDaily:
		next = at.AddDate(0, 0, 1)
	case RecurWeekly:
		next = at.AddDate(0, 0, 7)
	case RecurBiweekly:
		next = at.AddDate(0, 0, 14)
	case RecurMonthly:
		next = addMonthClamped(at)
	default:
		next = at.AddDate(0, 0, 7)
	}
	return &next
}

// ShouldContinueRecurring is false once the end date has passed or max occurrences were reached.
func (c *Campaign) ShouldContinueRecurring(now time.Time) bool {
	if !c.IsRecurring() {
		return false
	}
	if c.RecurrenceEndDate != nil && !now.Before(*c.RecurrenceEndDate) {
		return false
	}
	if c.MaxOccurrences != nil && c.OccurrenceCount >= *c.MaxOccurrences {
		return false
	}
	return true
}

// NextOccurrence builds the follow-on campaign row scheduled at at.
func (c *Campaign) NextOccurrence(at time.Time) *Campaign {
	next := &Campaign{
		OrganizationID:     c.OrganizationID,
		CreatedByID:        c.CreatedByID,
		Name:               c.Name,
		Description:        c.Description,
		Status:             CampaignCreated,
		ScheduledType:      c.ScheduledType,
		ScheduledAt:        &at,
		EmailTemplateID:    c.EmailTemplateID,
		Subject:            c.Subject,
		Body:               c.Body,
		CustomVariables:    c.CustomVariables.Clone(),
		RecurrenceInterval: c.RecurrenceInterval,
		RecurrenceEndDate:  c.RecurrenceEndDate,
		MaxOccurrences:     c.MaxOccurrences,
		OccurrenceCount:    c.OccurrenceCount,
	}
	return next
}

// addMonthClamped adds one calendar month, clamping the day to the end of the target month
// (Jan 31 -> Feb 28/29).
func addMonthClamped(t time.Time) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+1, 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// Variables holds campaign level template variables, stored as jsonb.
type Variables map[string]string

func (v Variables) Clone() Variables {
	if v == nil {
		return nil
	}
	out := make(Variables, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

func (v Variables) Value() (driver.Value, error) {
	if v == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]string(v))
}

func (v *Variables) Scan(src any) error {
	return scanJSON(src, v)
}
