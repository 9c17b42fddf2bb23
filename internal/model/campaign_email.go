// internal/model/campaign_email.go
package model

import "time"

type EmailStatus string

const (
	EmailPending EmailStatus = "pending"
	EmailSent    EmailStatus = "sent"
	EmailFailed  EmailStatus = "failed"
)

// CampaignEmail is one ledger row: the rendered message for a single (campaign, contact) pair.
type CampaignEmail struct {
	ID           int64       `db:"id" json:"id"`
	CampaignID   int64       `db:"campaign_id" json:"campaign_id"`
	ContactID    int64       `db:"contact_id" json:"contact_id"`
	AudienceID   *int64      `db:"audience_id" json:"audience_id,omitempty"`
	Email        string      `db:"email" json:"email"`
	Subject      string      `db:"subject" json:"subject"`
	Body         string      `db:"body" json:"body"`
	Status       EmailStatus `db:"status" json:"status"` // pending, sent, failed
	SentAt       *time.Time  `db:"sent_at" json:"sent_at,omitempty"`
	ErrorMessage string      `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at" json:"updated_at"`
}

// LedgerSummary is the aggregate view of a campaign's ledger.
type LedgerSummary struct {
	Total      int        `db:"total"`
	Sent       int        `db:"sent"`
	Failed     int        `db:"failed"`
	LastSentAt *time.Time `db:"last_sent_at"`
}

func (s LedgerSummary) Pending() int {
	return s.Total - s.Sent - s.Failed
}
