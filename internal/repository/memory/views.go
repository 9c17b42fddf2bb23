// internal/repository/memory/views.go
package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	appErrors "github.com/unclebandit/realestate-campaigns/internal/errors"
	"github.com/unclebandit/realestate-campaigns/internal/filter"
	"github.com/unclebandit/realestate-campaigns/internal/model"
	"github.com/unclebandit/realestate-campaigns/internal/repository"
)

type orgView struct{ s *Store }

func (v *orgView) ListActive(ctx context.Context) ([]model.Organization, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	out := []model.Organization{}
	for _, o := range v.s.orgs {
		if o.DeletedAt == nil {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type contactView struct{ s *Store }

func (v *contactView) GetByID(ctx context.Context, orgID, id int64, includeDeleted bool) (*model.Contact, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	c, ok := v.s.contacts[id]
	if !ok || c.OrganizationID != orgID || (!includeDeleted && c.Deleted()) {
		return nil, nil
	}
	return &c, nil
}

func (v *contactView) ListMatching(ctx context.Context, orgID int64, p filter.Predicate, includeDeleted bool) ([]model.Contact, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	out := []model.Contact{}
	for _, c := range v.s.contacts {
		if c.OrganizationID != orgID || (!includeDeleted && c.Deleted()) {
			continue
		}
		if p.Match(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *contactView) ListAssigned(ctx context.Context, orgID, audienceID int64, includeDeleted bool) ([]model.Contact, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	out := []model.Contact{}
	a, ok := v.s.audiences[audienceID]
	if !ok || a.OrganizationID != orgID {
		return out, nil
	}
	for _, id := range v.s.assignments[audienceID] {
		c, ok := v.s.contacts[id]
		if !ok || c.OrganizationID != orgID || (!includeDeleted && c.Deleted()) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type audienceView struct{ s *Store }

func (v *audienceView) GetByID(ctx context.Context, orgID, id int64, includeDeleted bool) (*model.Audience, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	a, ok := v.s.audiences[id]
	if !ok || a.OrganizationID != orgID || (!includeDeleted && a.DeletedAt != nil) {
		return nil, appErrors.NewAudienceNotFound(orgID, id)
	}
	return &a, nil
}

func (v *audienceView) ListByIDs(ctx context.Context, orgID int64, ids []int64, includeDeleted bool) ([]model.Audience, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return v.listLocked(orgID, ids, includeDeleted), nil
}

func (v *audienceView) ListForCampaign(ctx context.Context, orgID, campaignID int64, includeDeleted bool) ([]model.Audience, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if _, ok := v.s.campaignInOrg(orgID, campaignID); !ok {
		return []model.Audience{}, nil
	}
	return v.listLocked(orgID, v.s.campaignAudiences[campaignID], includeDeleted), nil
}

func (v *audienceView) listLocked(orgID int64, ids []int64, includeDeleted bool) []model.Audience {
	out := []model.Audience{}
	for _, id := range ids {
		a, ok := v.s.audiences[id]
		if !ok || a.OrganizationID != orgID || (!includeDeleted && a.DeletedAt != nil) {
			continue
		}
		out = append(out, a)
	}
	return out
}

type templateView struct{ s *Store }

func (v *templateView) GetByID(ctx context.Context, orgID, id int64, includeDeleted bool) (*model.EmailTemplate, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	t, ok := v.s.templates[id]
	if !ok || t.OrganizationID != orgID || (!includeDeleted && t.DeletedAt != nil) {
		return nil, appErrors.NewTemplateNotFound(orgID, id)
	}
	return &t, nil
}

type campaignView struct{ s *Store }

func (v *campaignView) ListCampaigns(ctx context.Context, orgID int64, offset, limit int, status string) ([]*model.Campaign, int, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var all []*model.Campaign
	for _, c := range v.s.campaigns {
		if c.OrganizationID != orgID || c.DeletedAt != nil {
			continue
		}
		if status != "" && string(c.Status) != status {
			continue
		}
		c := c
		all = append(all, &c)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })

	total := len(all)
	if offset >= total {
		return []*model.Campaign{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (v *campaignView) GetByID(ctx context.Context, orgID, id int64, includeDeleted bool) (*model.Campaign, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	c, ok := v.s.campaignInOrg(orgID, id)
	if !ok || (!includeDeleted && c.DeletedAt != nil) {
		return nil, appErrors.NewCampaignNotFound(orgID, id)
	}
	return &c, nil
}

func (v *campaignView) ListDue(ctx context.Context, orgID int64, now time.Time) ([]*model.Campaign, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	due := []*model.Campaign{}
	for _, c := range v.s.campaigns {
		if c.OrganizationID != orgID || c.DeletedAt != nil || c.Status != model.CampaignCreated {
			continue
		}
		if c.ScheduledAt == nil || c.ScheduledAt.After(now) {
			continue
		}
		c := c
		due = append(due, &c)
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].ScheduledAt.Equal(*due[j].ScheduledAt) {
			return due[i].ID < due[j].ID
		}
		return due[i].ScheduledAt.Before(*due[j].ScheduledAt)
	})
	return due, nil
}

func (v *campaignView) Create(ctx context.Context, c *model.Campaign, audienceIDs []int64) error {
	if err := c.Validate(); err != nil {
		return err
	}
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	c.ID = v.s.next("campaigns")
	c.CreatedAt = time.Now()
	if c.Status == "" {
		c.Status = model.CampaignCreated
	}
	if c.ScheduledType == "" {
		c.ScheduledType = model.ScheduleImmediate
	}
	attached := []int64{}
	for _, id := range audienceIDs {
		if a, ok := v.s.audiences[id]; ok && a.OrganizationID == c.OrganizationID {
			attached = append(attached, id)
		}
	}
	v.s.campaigns[c.ID] = *c
	v.s.campaignAudiences[c.ID] = attached
	return nil
}

func (v *campaignView) UpdateStatus(ctx context.Context, orgID, id int64, from, to model.CampaignStatus) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	c, ok := v.s.campaignInOrg(orgID, id)
	if !ok || c.Status != from {
		return fmt.Errorf("campaign %d %s -> %s: %w", id, from, to, appErrors.ErrStaleStatus)
	}
	now := time.Now()
	c.Status = to
	c.UpdatedAt = &now
	v.s.campaigns[id] = c
	return nil
}

type emailView struct{ s *Store }

func (v *emailView) ListPending(ctx context.Context, orgID, campaignID int64) ([]model.CampaignEmail, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	out := []model.CampaignEmail{}
	if _, ok := v.s.campaignInOrg(orgID, campaignID); !ok {
		return out, nil
	}
	for _, e := range v.s.emailsForLocked(campaignID) {
		if e.Status == model.EmailPending {
			out = append(out, e)
		}
	}
	return out, nil
}

func (v *emailView) MarkSent(ctx context.Context, orgID, id int64, at time.Time) error {
	return v.mark(orgID, id, model.EmailSent, &at, "")
}

func (v *emailView) MarkFailed(ctx context.Context, orgID, id int64, reason string) error {
	return v.mark(orgID, id, model.EmailFailed, nil, reason)
}

func (v *emailView) mark(orgID, id int64, status model.EmailStatus, at *time.Time, reason string) error {
	if hook := v.s.MarkHook; hook != nil {
		if err := hook(id, status); err != nil {
			return err
		}
	}
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	e, ok := v.s.emails[id]
	if !ok {
		return fmt.Errorf("campaign email %d is no longer pending", id)
	}
	if _, ok := v.s.campaignInOrg(orgID, e.CampaignID); !ok || e.Status != model.EmailPending {
		return fmt.Errorf("campaign email %d is no longer pending", id)
	}
	e.Status = status
	e.SentAt = at
	e.ErrorMessage = reason
	e.UpdatedAt = time.Now()
	v.s.emails[id] = e
	return nil
}

func (v *emailView) ListByCampaign(ctx context.Context, orgID, campaignID int64, status string, offset, limit int) ([]model.CampaignEmail, int, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if _, ok := v.s.campaignInOrg(orgID, campaignID); !ok {
		return []model.CampaignEmail{}, 0, nil
	}
	var all []model.CampaignEmail
	for _, e := range v.s.emailsForLocked(campaignID) {
		if status == "" || string(e.Status) == status {
			all = append(all, e)
		}
	}
	total := len(all)
	if offset >= total {
		return []model.CampaignEmail{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (v *emailView) Summarize(ctx context.Context, orgID, campaignID int64) (model.LedgerSummary, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var sum model.LedgerSummary
	if _, ok := v.s.campaignInOrg(orgID, campaignID); !ok {
		return sum, nil
	}
	for _, e := range v.s.emailsForLocked(campaignID) {
		sum.Total++
		switch e.Status {
		case model.EmailSent:
			sum.Sent++
			if e.SentAt != nil && (sum.LastSentAt == nil || e.SentAt.After(*sum.LastSentAt)) {
				at := *e.SentAt
				sum.LastSentAt = &at
			}
		case model.EmailFailed:
			sum.Failed++
		}
	}
	return sum, nil
}

type statView struct{ s *Store }

func (v *statView) Get(ctx context.Context, orgID, campaignID int64) (*model.CampaignStatistic, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if _, ok := v.s.campaignInOrg(orgID, campaignID); !ok {
		return nil, nil
	}
	st, ok := v.s.stats[campaignID]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (v *statView) Overwrite(ctx context.Context, orgID, campaignID int64, sum model.LedgerSummary) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if _, ok := v.s.campaignInOrg(orgID, campaignID); !ok {
		return nil
	}
	st, ok := v.s.stats[campaignID]
	if !ok {
		st = model.CampaignStatistic{ID: v.s.next("campaign_statistics"), CampaignID: campaignID, CreatedAt: time.Now()}
	}
	st.TotalContacts = sum.Total
	st.EmailsSent = sum.Sent
	st.EmailsFailed = sum.Failed
	st.LastSentAt = sum.LastSentAt
	st.UpdatedAt = time.Now()
	v.s.stats[campaignID] = st
	return nil
}

var (
	_ repository.OrganizationRepositoryInterface  = (*orgView)(nil)
	_ repository.ContactRepositoryInterface       = (*contactView)(nil)
	_ repository.AudienceRepositoryInterface      = (*audienceView)(nil)
	_ repository.TemplateRepositoryInterface      = (*templateView)(nil)
	_ repository.CampaignRepositoryInterface      = (*campaignView)(nil)
	_ repository.CampaignEmailRepositoryInterface = (*emailView)(nil)
	_ repository.StatisticRepositoryInterface     = (*statView)(nil)
)
