// internal/model/campaign_statistic.go
package model

import (
	"math"
	"time"
)

type CampaignStatistic struct {
	ID            int64      `db:"id" json:"-"`
	CampaignID    int64      `db:"campaign_id" json:"campaign_id"`
	TotalContacts int        `db:"total_contacts" json:"total_contacts"`
	EmailsSent    int        `db:"emails_sent" json:"emails_sent"`
	EmailsFailed  int        `db:"emails_failed" json:"emails_failed"`
	LastSentAt    *time.Time `db:"last_sent_at" json:"last_sent_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"-"`
	UpdatedAt     time.Time  `db:"updated_at" json:"-"`
}

func (s *CampaignStatistic) Pending() int {
	p := s.TotalContacts - s.EmailsSent - s.EmailsFailed
	if p < 0 {
		return 0
	}
	return p
}

// SuccessRate is the share of recipients that did not fail, in percent with two decimals.
func (s *CampaignStatistic) SuccessRate() float64 {
	if s.TotalContacts == 0 {
		return 0
	}
	return round2(float64(s.TotalContacts-s.EmailsFailed) / float64(s.TotalContacts) * 100)
}

// Progress is the share of recipients already sent, in percent with two decimals.
func (s *CampaignStatistic) Progress() float64 {
	if s.TotalContacts == 0 {
		return 0
	}
	return round2(float64(s.EmailsSent) / float64(s.TotalContacts) * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
