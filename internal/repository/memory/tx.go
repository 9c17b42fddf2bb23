// internal/repository/memory/tx.go
package memory

import (
	"context"
	"fmt"
	"time"

	appErrors "github.com/unclebandit/realestate-campaigns/internal/errors"
	"github.com/unclebandit/realestate-campaigns/internal/model"
	"github.com/unclebandit/realestate-campaigns/internal/repository"
)

// WithinTx serializes transactions and applies their staged writes only when fn succeeds.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.MaterializationTx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := &memTx{s: s, campaigns: map[int64]model.Campaign{}}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range tx.emails {
		s.emails[e.ID] = e
	}
	for _, st := range tx.stats {
		s.stats[st.CampaignID] = st
	}
	for id, c := range tx.campaigns {
		s.campaigns[id] = c
	}
	return nil
}

type memTx struct {
	s         *Store
	inserts   int
	emails    []model.CampaignEmail
	stats     []model.CampaignStatistic
	campaigns map[int64]model.Campaign
}

func (t *memTx) campaign(orgID, id int64) (model.Campaign, bool) {
	if c, ok := t.campaigns[id]; ok {
		return c, c.OrganizationID == orgID
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	return t.s.campaignInOrg(orgID, id)
}

func (t *memTx) LockCampaign(ctx context.Context, orgID, id int64) (*model.Campaign, error) {
	c, ok := t.campaign(orgID, id)
	if !ok || c.DeletedAt != nil {
		return nil, appErrors.NewCampaignNotFound(orgID, id)
	}
	return &c, nil
}

func (t *memTx) CountCampaignEmails(ctx context.Context, campaignID int64) (int, error) {
	t.s.mu.Lock()
	n := len(t.s.emailsForLocked(campaignID))
	t.s.mu.Unlock()
	for _, e := range t.emails {
		if e.CampaignID == campaignID {
			n++
		}
	}
	return n, nil
}

func (t *memTx) InsertCampaignEmail(ctx context.Context, e *model.CampaignEmail) error {
	t.inserts++
	if hook := t.s.InsertEmailHook; hook != nil {
		if err := hook(t.inserts, e); err != nil {
			return err
		}
	}

	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, existing := range append(t.s.emailsForLocked(e.CampaignID), t.emails...) {
		if existing.CampaignID == e.CampaignID && existing.ContactID == e.ContactID {
			return fmt.Errorf("contact %d: %w", e.ContactID, appErrors.ErrDuplicateLedgerRow)
		}
	}
	e.ID = t.s.next("campaign_emails")
	if e.Status == "" {
		e.Status = model.EmailPending
	}
	e.CreatedAt = time.Now()
	e.UpdatedAt = e.CreatedAt
	t.emails = append(t.emails, *e)
	return nil
}

func (t *memTx) InsertStatistic(ctx context.Context, campaignID int64, total int) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if _, exists := t.s.stats[campaignID]; exists {
		return fmt.Errorf("statistic for campaign %d already exists", campaignID)
	}
	for _, st := range t.stats {
		if st.CampaignID == campaignID {
			return fmt.Errorf("statistic for campaign %d already exists", campaignID)
		}
	}
	now := time.Now()
	t.stats = append(t.stats, model.CampaignStatistic{
		ID:            t.s.next("campaign_statistics"),
		CampaignID:    campaignID,
		TotalContacts: total,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	return nil
}

func (t *memTx) IncrementOccurrence(ctx context.Context, orgID, id int64) (int, error) {
	c, ok := t.campaign(orgID, id)
	if !ok {
		return 0, appErrors.NewCampaignNotFound(orgID, id)
	}
	c.OccurrenceCount++
	t.campaigns[id] = c
	return c.OccurrenceCount, nil
}

func (t *memTx) UpdateStatus(ctx context.Context, orgID, id int64, from, to model.CampaignStatus) error {
	c, ok := t.campaign(orgID, id)
	if !ok || c.Status != from {
		return fmt.Errorf("campaign %d %s -> %s: %w", id, from, to, appErrors.ErrStaleStatus)
	}
	now := time.Now()
	c.Status = to
	c.UpdatedAt = &now
	t.campaigns[id] = c
	return nil
}

var (
	_ repository.Transactor        = (*Store)(nil)
	_ repository.MaterializationTx = (*memTx)(nil)
)
