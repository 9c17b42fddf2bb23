package service_test

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/unclebandit/realestate-campaigns/internal/mailer"
	"github.com/unclebandit/realestate-campaigns/internal/model"
	"github.com/unclebandit/realestate-campaigns/internal/queue"
	"github.com/unclebandit/realestate-campaigns/internal/repository/memory"
	"github.com/unclebandit/realestate-campaigns/internal/service"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.Out = io.Discard
	return l
}

func i64(v int64) *int64 { return &v }

// recordingQueue keeps published jobs instead of running them.
type recordingQueue struct {
	mu   sync.Mutex
	jobs []queue.DeliveryJob
	err  error
}

func (q *recordingQueue) Publish(topic string, payload any) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	job, err := queue.DecodeDeliveryJob(payload)
	if err != nil {
		return err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recordingQueue) Subscribe(topic string, h queue.Handler) error { return nil }

func (q *recordingQueue) Jobs() []queue.DeliveryJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]queue.DeliveryJob(nil), q.jobs...)
}

// recordingTransport fails the n-th sends listed in failOn (1-based).
type recordingTransport struct {
	mu     sync.Mutex
	calls  int
	sent   []string
	failOn map[int]error
}

func (t *recordingTransport) Send(ctx context.Context, to, subject, body string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	if err, ok := t.failOn[t.calls]; ok {
		return err
	}
	t.sent = append(t.sent, to)
	return nil
}

type fixture struct {
	store     *memory.Store
	queue     *recordingQueue
	transport *recordingTransport
	svc       *service.CampaignService
	worker    *service.DeliveryWorker
	org       model.Organization
}

func newFixture() *fixture {
	store := memory.NewStore()
	q := &recordingQueue{}
	tr := &recordingTransport{failOn: map[int]error{}}
	log := quietLogger()

	contacts := &service.CampaignContacts{
		Audiences: store.Audiences(),
		Resolver:  &service.AudienceResolver{Contacts: store.Contacts()},
	}
	svc := &service.CampaignService{
		CampaignRepo: store.Campaigns(),
		TemplateRepo: store.Templates(),
		AudienceRepo: store.Audiences(),
		EmailRepo:    store.Emails(),
		StatsRepo:    store.Statistics(),
		Contacts:     contacts,
		Tx:           store,
		Queue:        q,
		Log:          log,
	}
	stats := &service.StatisticsAggregator{Emails: store.Emails(), Stats: store.Statistics()}
	worker := service.NewDeliveryWorker(store.Campaigns(), store.Emails(), stats, tr, 0, log)

	return &fixture{
		store:     store,
		queue:     q,
		transport: tr,
		svc:       svc,
		worker:    worker,
		org:       store.AddOrganization("Acme Realty"),
	}
}

func (f *fixture) buyer(email string) model.Contact {
	return f.store.AddContact(model.Contact{
		OrganizationID: f.org.ID,
		Email:          email,
		FirstName:      "Buyer",
		LastName:       email,
		Preferences:    model.Preferences{ContactType: "buyer"},
	})
}

func (f *fixture) buyersAudience(assigned ...int64) model.Audience {
	return f.store.AddAudience(model.Audience{
		OrganizationID: f.org.ID,
		Name:           "Buyers",
		Filters:        model.AudienceFilter{ContactType: "buyer"},
	}, assigned...)
}

func (f *fixture) literalCampaign(audienceIDs ...int64) model.Campaign {
	return f.store.AddCampaign(model.Campaign{
		OrganizationID: f.org.ID,
		Name:           "Open house",
		Subject:        "Open house this weekend",
		Body:           "Hi {{contact_name}}, join us Saturday.",
	}, audienceIDs...)
}

// deliver runs the worker for the campaign as the queue would.
func (f *fixture) deliver(campaignID int64) (*service.DeliveryReport, error) {
	return f.worker.Deliver(context.Background(), queue.DeliveryJob{
		OrganizationID: f.org.ID,
		CampaignID:     campaignID,
		JobID:          "test-job",
	})
}

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

var _ mailer.Transport = (*recordingTransport)(nil)
var _ queue.Queue = (*recordingQueue)(nil)
