package service_test

import (
	"context"
	"testing"

	"github.com/go-test/deep"
	"github.com/modfin/henry/slicez"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/realestate-campaigns/internal/model"
	"github.com/unclebandit/realestate-campaigns/internal/service"
)

func contactIDs(rcs []service.ResolvedContact) []int64 {
	return slicez.Map(rcs, func(rc service.ResolvedContact) int64 { return rc.Contact.ID })
}

func TestAudienceResolverUnionsFilterAndAssignments(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	b1 := f.buyer("b1@example.com")
	seller := f.store.AddContact(model.Contact{
		OrganizationID: f.org.ID,
		Email:          "seller@example.com",
		Preferences:    model.Preferences{ContactType: "seller"},
	})
	b2 := f.buyer("b2@example.com")
	gone := f.buyer("gone@example.com")
	f.store.DeleteContact(gone.ID)

	// b1 both matches and is assigned; the seller only gets in by assignment
	a := f.buyersAudience(b1.ID, seller.ID, gone.ID)

	resolver := &service.AudienceResolver{Contacts: f.store.Contacts()}
	got, err := resolver.Resolve(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, []int64{b1.ID, seller.ID, b2.ID}, contactIDs(got))
	for _, rc := range got {
		assert.Equal(t, a.ID, rc.AudienceID)
	}

	n, err := resolver.Count(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestResolveIsDeterministic(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	for _, email := range []string{"c@example.com", "a@example.com", "b@example.com"} {
		f.buyer(email)
	}
	extra := f.store.AddContact(model.Contact{OrganizationID: f.org.ID, Email: "renter@example.com"})
	a := f.buyersAudience(extra.ID)
	c := f.literalCampaign(a.ID)

	resolver := &service.AudienceResolver{Contacts: f.store.Contacts()}
	first, err := resolver.Resolve(ctx, a)
	require.NoError(t, err)
	second, err := resolver.Resolve(ctx, a)
	require.NoError(t, err)
	if diff := deep.Equal(first, second); diff != nil {
		t.Errorf("audience resolved differently: %v", diff)
	}

	first, err = f.svc.Contacts.Resolve(ctx, f.org.ID, c.ID)
	require.NoError(t, err)
	second, err = f.svc.Contacts.Resolve(ctx, f.org.ID, c.ID)
	require.NoError(t, err)
	require.Len(t, first, 4)
	if diff := deep.Equal(first, second); diff != nil {
		t.Errorf("campaign contacts resolved differently: %v", diff)
	}
}

func TestAudienceResolverStaysInOrganization(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	other := f.store.AddOrganization("Other Realty")
	mine := f.buyer("mine@example.com")
	theirs := f.store.AddContact(model.Contact{
		OrganizationID: other.ID,
		Email:          "theirs@example.com",
		Preferences:    model.Preferences{ContactType: "buyer"},
	})

	// an assignment that crosses tenants must not leak
	a := f.buyersAudience(theirs.ID)

	got, err := (&service.AudienceResolver{Contacts: f.store.Contacts()}).Resolve(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, []int64{mine.ID}, contactIDs(got))
}

func TestAudienceResolverEmptyFilterMatchesEveryone(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.buyer("b1@example.com")
	f.store.AddContact(model.Contact{OrganizationID: f.org.ID, Email: "plain@example.com"})
	a := f.store.AddAudience(model.Audience{OrganizationID: f.org.ID, Name: "Everyone"})

	n, err := (&service.AudienceResolver{Contacts: f.store.Contacts()}).Count(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCampaignContactsFirstAudienceWins(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	shared := f.buyer("shared@example.com")
	renter := f.store.AddContact(model.Contact{
		OrganizationID: f.org.ID,
		Email:          "renter@example.com",
		Preferences:    model.Preferences{ContactType: "renter"},
	})
	buyers := f.buyersAudience()
	renters := f.store.AddAudience(model.Audience{
		OrganizationID: f.org.ID,
		Name:           "Renters",
		Filters:        model.AudienceFilter{ContactType: "renter"},
	}, shared.ID)

	c := f.literalCampaign(renters.ID, buyers.ID)
	got, err := f.svc.Contacts.Resolve(ctx, f.org.ID, c.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)

	byContact := map[int64]int64{}
	for _, rc := range got {
		byContact[rc.Contact.ID] = rc.AudienceID
	}
	assert.Equal(t, renters.ID, byContact[shared.ID])
	assert.Equal(t, renters.ID, byContact[renter.ID])
}

func TestCampaignContactsWithoutAudiences(t *testing.T) {
	f := newFixture()
	f.buyer("b1@example.com")
	c := f.literalCampaign()

	got, err := f.svc.Contacts.Resolve(context.Background(), f.org.ID, c.ID)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPreviewContactsPaginates(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	for _, e := range []string{"a@example.com", "b@example.com", "c@example.com", "d@example.com", "e@example.com"} {
		f.buyer(e)
	}
	buyers := f.buyersAudience()
	dup := f.buyersAudience()
	other := f.store.AddOrganization("Other Realty")
	foreign := f.store.AddAudience(model.Audience{OrganizationID: other.ID, Name: "Theirs"})

	page1, p1, err := f.svc.PreviewContacts(ctx, f.org.ID, []int64{buyers.ID, dup.ID, foreign.ID}, 1, 2)
	require.NoError(t, err)
	assert.Len(t, page1, 2)
	assert.Equal(t, 5, p1["total_count"])
	assert.Equal(t, 3, p1["total_pages"])

	page3, _, err := f.svc.PreviewContacts(ctx, f.org.ID, []int64{buyers.ID, dup.ID}, 3, 2)
	require.NoError(t, err)
	assert.Len(t, page3, 1)

	beyond, _, err := f.svc.PreviewContacts(ctx, f.org.ID, []int64{buyers.ID}, 9, 2)
	require.NoError(t, err)
	assert.Empty(t, beyond)
}
