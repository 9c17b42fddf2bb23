// internal/repository/memory/store.go
package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/unclebandit/realestate-campaigns/internal/model"
	"github.com/unclebandit/realestate-campaigns/internal/repository"
)

// Store keeps every table in maps guarded by one mutex. It implements the repository interfaces
// through its views and the Transactor with staged writes that only land on commit.
type Store struct {
	mu   sync.Mutex
	txMu sync.Mutex
	seq  map[string]int64

	orgs              map[int64]model.Organization
	contacts          map[int64]model.Contact
	audiences         map[int64]model.Audience
	assignments       map[int64][]int64
	templates         map[int64]model.EmailTemplate
	campaigns         map[int64]model.Campaign
	campaignAudiences map[int64][]int64
	emails            map[int64]model.CampaignEmail
	stats             map[int64]model.CampaignStatistic

	// InsertEmailHook runs before the n-th (1-based) ledger insert of a transaction.
	// A non-nil error aborts the insert.
	InsertEmailHook func(n int, e *model.CampaignEmail) error
	// MarkHook runs before a ledger row changes status.
	MarkHook func(id int64, status model.EmailStatus) error
}

func NewStore() *Store {
	return &Store{
		seq:               map[string]int64{},
		orgs:              map[int64]model.Organization{},
		contacts:          map[int64]model.Contact{},
		audiences:         map[int64]model.Audience{},
		assignments:       map[int64][]int64{},
		templates:         map[int64]model.EmailTemplate{},
		campaigns:         map[int64]model.Campaign{},
		campaignAudiences: map[int64][]int64{},
		emails:            map[int64]model.CampaignEmail{},
		stats:             map[int64]model.CampaignStatistic{},
	}
}

func (s *Store) next(table string) int64 {
	s.seq[table]++
	return s.seq[table]
}

func (s *Store) Organizations() repository.OrganizationRepositoryInterface { return &orgView{s} }
func (s *Store) Contacts() repository.ContactRepositoryInterface           { return &contactView{s} }
func (s *Store) Audiences() repository.AudienceRepositoryInterface         { return &audienceView{s} }
func (s *Store) Templates() repository.TemplateRepositoryInterface         { return &templateView{s} }
func (s *Store) Campaigns() repository.CampaignRepositoryInterface         { return &campaignView{s} }
func (s *Store) Emails() repository.CampaignEmailRepositoryInterface       { return &emailView{s} }
func (s *Store) Statistics() repository.StatisticRepositoryInterface       { return &statView{s} }

// ====================== Fixtures ======================

func (s *Store) AddOrganization(name string) model.Organization {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := model.Organization{ID: s.next("organizations"), Name: name, CreatedAt: time.Now()}
	s.orgs[o.ID] = o
	return o
}

func (s *Store) DeleteOrganization(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.orgs[id]
	now := time.Now()
	o.DeletedAt = &now
	s.orgs[id] = o
}

func (s *Store) AddContact(c model.Contact) model.Contact {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.next("contacts")
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	s.contacts[c.ID] = c
	return c
}

func (s *Store) DeleteContact(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.contacts[id]
	now := time.Now()
	c.DeletedAt = &now
	s.contacts[id] = c
}

// AddAudience stores the audience and assigns the given contacts to it.
func (s *Store) AddAudience(a model.Audience, contactIDs ...int64) model.Audience {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = s.next("audiences")
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	s.audiences[a.ID] = a
	for _, id := range contactIDs {
		s.assignLocked(a.ID, id)
	}
	return a
}

// Assign adds contacts to an audience, ignoring pairs that already exist.
func (s *Store) Assign(audienceID int64, contactIDs ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range contactIDs {
		s.assignLocked(audienceID, id)
	}
}

func (s *Store) assignLocked(audienceID, contactID int64) {
	for _, existing := range s.assignments[audienceID] {
		if existing == contactID {
			return
		}
	}
	s.assignments[audienceID] = append(s.assignments[audienceID], contactID)
}

func (s *Store) AddTemplate(t model.EmailTemplate) model.EmailTemplate {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = s.next("email_templates")
	t.CreatedAt = time.Now()
	s.templates[t.ID] = t
	return t
}

// AddCampaign stores the campaign as-is, bypassing validation, and attaches the audiences.
func (s *Store) AddCampaign(c model.Campaign, audienceIDs ...int64) model.Campaign {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.next("campaigns")
	if c.Status == "" {
		c.Status = model.CampaignCreated
	}
	if c.ScheduledType == "" {
		c.ScheduledType = model.ScheduleImmediate
	}
	c.CreatedAt = time.Now()
	s.campaigns[c.ID] = c
	s.campaignAudiences[c.ID] = append([]int64(nil), audienceIDs...)
	return c
}

func (s *Store) AddCampaignEmail(e model.CampaignEmail) model.CampaignEmail {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = s.next("campaign_emails")
	if e.Status == "" {
		e.Status = model.EmailPending
	}
	e.CreatedAt = time.Now()
	e.UpdatedAt = e.CreatedAt
	s.emails[e.ID] = e
	return e
}

// ====================== Inspection ======================

func (s *Store) Campaign(id int64) (model.Campaign, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	return c, ok
}

// CampaignsIn returns every campaign of the organization ordered by id, deleted ones included.
func (s *Store) CampaignsIn(orgID int64) []model.Campaign {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Campaign
	for _, c := range s.campaigns {
		if c.OrganizationID == orgID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) CampaignAudienceIDs(campaignID int64) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.campaignAudiences[campaignID]...)
}

func (s *Store) EmailsFor(campaignID int64) []model.CampaignEmail {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emailsForLocked(campaignID)
}

func (s *Store) emailsForLocked(campaignID int64) []model.CampaignEmail {
	var out []model.CampaignEmail
	for _, e := range s.emails {
		if e.CampaignID == campaignID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) Statistic(campaignID int64) (model.CampaignStatistic, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stats[campaignID]
	return st, ok
}

func (s *Store) campaignInOrg(orgID, id int64) (model.Campaign, bool) {
	c, ok := s.campaigns[id]
	if !ok || c.OrganizationID != orgID {
		return model.Campaign{}, false
	}
	return c, true
}
