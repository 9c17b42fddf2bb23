// internal/service/audience_resolver.go
package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/unclebandit/realestate-campaigns/internal/filter"
	"github.com/unclebandit/realestate-campaigns/internal/model"
	"github.com/unclebandit/realestate-campaigns/internal/repository"
)

// ResolvedContact is a recipient together with the audience that introduced it.
type ResolvedContact struct {
	Contact    model.Contact
	AudienceID int64
}

// AudienceResolver computes an audience's contacts: filter matches plus explicit assignments.
type AudienceResolver struct {
	Contacts repository.ContactRepositoryInterface
}

// Resolve returns the audience's live contacts once each, ordered by contact id.
func (r *AudienceResolver) Resolve(ctx context.Context, a model.Audience) ([]ResolvedContact, error) {
	if a.DeletedAt != nil {
		return []ResolvedContact{}, nil
	}

	matched, err := r.Contacts.ListMatching(ctx, a.OrganizationID, filter.Compile(a.Filters), false)
	if err != nil {
		return nil, fmt.Errorf("audience %d: %w", a.ID, err)
	}
	assigned, err := r.Contacts.ListAssigned(ctx, a.OrganizationID, a.ID, false)
	if err != nil {
		return nil, fmt.Errorf("audience %d: %w", a.ID, err)
	}

	seen := make(map[int64]bool, len(matched)+len(assigned))
	out := make([]ResolvedContact, 0, len(matched)+len(assigned))
	for _, list := range [][]model.Contact{matched, assigned} {
		for _, c := range list {
			// the read model is not trusted to have scoped the query
			if c.OrganizationID != a.OrganizationID || c.Deleted() || seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			out = append(out, ResolvedContact{Contact: c, AudienceID: a.ID})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Contact.ID < out[j].Contact.ID })
	return out, nil
}

func (r *AudienceResolver) Count(ctx context.Context, a model.Audience) (int, error) {
	contacts, err := r.Resolve(ctx, a)
	if err != nil {
		return 0, err
	}
	return len(contacts), nil
}

// CampaignContacts unions the resolved contacts of a campaign's audiences.
type CampaignContacts struct {
	Audiences repository.AudienceRepositoryInterface
	Resolver  *AudienceResolver
}

// Resolve lists every recipient of the campaign once. When several audiences contain the same
// contact, the first attached audience is recorded as its source.
func (cc *CampaignContacts) Resolve(ctx context.Context, orgID, campaignID int64) ([]ResolvedContact, error) {
	audiences, err := cc.Audiences.ListForCampaign(ctx, orgID, campaignID, false)
	if err != nil {
		return nil, fmt.Errorf("failed to list audiences of campaign %d: %w", campaignID, err)
	}
	return cc.union(ctx, orgID, audiences)
}

// Preview lists the distinct contacts the given audiences would reach, without a campaign.
func (cc *CampaignContacts) Preview(ctx context.Context, orgID int64, audienceIDs []int64) ([]model.Contact, error) {
	audiences, err := cc.Audiences.ListByIDs(ctx, orgID, audienceIDs, false)
	if err != nil {
		return nil, err
	}
	resolved, err := cc.union(ctx, orgID, audiences)
	if err != nil {
		return nil, err
	}
	contacts := make([]model.Contact, len(resolved))
	for i, rc := range resolved {
		contacts[i] = rc.Contact
	}
	return contacts, nil
}

func (cc *CampaignContacts) union(ctx context.Context, orgID int64, audiences []model.Audience) ([]ResolvedContact, error) {
	seen := map[int64]bool{}
	out := []ResolvedContact{}
	for _, a := range audiences {
		if a.OrganizationID != orgID {
			continue
		}
		contacts, err := cc.Resolver.Resolve(ctx, a)
		if err != nil {
			return nil, err
		}
		for _, rc := range contacts {
			if seen[rc.Contact.ID] {
				continue
			}
			seen[rc.Contact.ID] = true
			out = append(out, rc)
		}
	}
	return out, nil
}
