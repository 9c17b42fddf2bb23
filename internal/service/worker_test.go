package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/realestate-campaigns/internal/mailer"
	"github.com/unclebandit/realestate-campaigns/internal/model"
	"github.com/unclebandit/realestate-campaigns/internal/queue"
	"github.com/unclebandit/realestate-campaigns/internal/service"
)

// preparedCampaign materializes a literal campaign for n buyers.
func preparedCampaign(t *testing.T, f *fixture, n int) model.Campaign {
	t.Helper()
	for i := 1; i <= n; i++ {
		f.buyer(fmt.Sprintf("buyer%d@example.com", i))
	}
	c := f.literalCampaign(f.buyersAudience().ID)
	_, err := f.svc.Prepare(context.Background(), f.org.ID, c.ID)
	require.NoError(t, err)
	return c
}

func TestDeliverIsolatesFailures(t *testing.T) {
	f := newFixture()
	c := preparedCampaign(t, f, 5)
	f.transport.failOn[2] = errors.New("550 mailbox unavailable")
	f.transport.failOn[4] = errors.New("timeout")

	report, err := f.deliver(c.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, report.Attempted)
	assert.Equal(t, 3, report.Sent)
	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, model.CampaignPartial, report.Final)

	emails := f.store.EmailsFor(c.ID)
	require.Len(t, emails, 5)
	assert.Equal(t, model.EmailFailed, emails[1].Status)
	assert.Equal(t, "550 mailbox unavailable", emails[1].ErrorMessage)
	assert.Equal(t, model.EmailFailed, emails[3].Status)
	assert.Equal(t, "timeout", emails[3].ErrorMessage)
	for _, i := range []int{0, 2, 4} {
		assert.Equal(t, model.EmailSent, emails[i].Status)
		assert.NotNil(t, emails[i].SentAt)
	}

	st, _ := f.store.Statistic(c.ID)
	assert.Equal(t, 5, st.TotalContacts)
	assert.Equal(t, 3, st.EmailsSent)
	assert.Equal(t, 2, st.EmailsFailed)
	assert.Equal(t, 60.0, st.SuccessRate())
	assert.NotNil(t, st.LastSentAt)

	stored, _ := f.store.Campaign(c.ID)
	assert.Equal(t, model.CampaignPartial, stored.Status)
}

func TestDeliverCompletes(t *testing.T) {
	f := newFixture()
	c := preparedCampaign(t, f, 3)

	report, err := f.deliver(c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignCompleted, report.Final)
	assert.Len(t, f.transport.sent, 3)

	stored, _ := f.store.Campaign(c.ID)
	assert.Equal(t, model.CampaignCompleted, stored.Status)

	// a second job for the same campaign is a no-op
	again, err := f.deliver(c.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, again.Skipped)
	assert.Len(t, f.transport.sent, 3)
}

func TestDeliverAllFailed(t *testing.T) {
	f := newFixture()
	c := preparedCampaign(t, f, 2)
	f.transport.failOn[1] = errors.New("refused")
	f.transport.failOn[2] = errors.New("refused")

	report, err := f.deliver(c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignFailed, report.Final)
	stored, _ := f.store.Campaign(c.ID)
	assert.Equal(t, model.CampaignFailed, stored.Status)
}

func TestDeliverSkipsIdleCampaign(t *testing.T) {
	f := newFixture()
	f.buyer("b1@example.com")
	c := f.literalCampaign(f.buyersAudience().ID)

	report, err := f.deliver(c.ID)
	require.NoError(t, err)
	assert.Equal(t, "campaign is created", report.Skipped)
	assert.Zero(t, f.transport.calls)

	missing, err := f.deliver(9999)
	require.NoError(t, err)
	assert.Equal(t, "campaign not found", missing.Skipped)
}

func TestDeliverResumesAfterStorageError(t *testing.T) {
	f := newFixture()
	c := preparedCampaign(t, f, 5)
	emails := f.store.EmailsFor(c.ID)

	f.store.MarkHook = func(id int64, status model.EmailStatus) error {
		if id == emails[2].ID {
			return errors.New("connection lost")
		}
		return nil
	}
	_, err := f.deliver(c.ID)
	require.Error(t, err)

	stored, _ := f.store.Campaign(c.ID)
	assert.Equal(t, model.CampaignRunning, stored.Status)
	pending, err := f.store.Emails().ListPending(context.Background(), f.org.ID, c.ID)
	require.NoError(t, err)
	assert.Len(t, pending, 3)

	f.store.MarkHook = nil
	report, err := f.deliver(c.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Attempted)
	assert.Equal(t, model.CampaignCompleted, report.Final)
	// the row whose mark failed is sent again
	assert.Equal(t, 6, f.transport.calls)

	st, _ := f.store.Statistic(c.ID)
	assert.Equal(t, 5, st.EmailsSent)
	assert.Zero(t, st.Pending())
}

func TestDeliverStopsOnCancel(t *testing.T) {
	f := newFixture()
	c := preparedCampaign(t, f, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.worker.Deliver(ctx, queue.DeliveryJob{OrganizationID: f.org.ID, CampaignID: c.ID})
	require.ErrorIs(t, err, context.Canceled)

	assert.Zero(t, f.transport.calls)
	stored, _ := f.store.Campaign(c.ID)
	assert.Equal(t, model.CampaignRunning, stored.Status)
}

func TestDeliverRecoversTransportPanic(t *testing.T) {
	f := newFixture()
	c := preparedCampaign(t, f, 2)
	f.worker.Transport = mailer.TransportFunc(func(ctx context.Context, to, subject, body string) error {
		if to == "buyer1@example.com" {
			panic("nil pointer in transport")
		}
		return nil
	})

	report, err := f.deliver(c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignPartial, report.Final)
	emails := f.store.EmailsFor(c.ID)
	assert.Contains(t, emails[0].ErrorMessage, "nil pointer in transport")
}

func TestDeliverOneWorkerPerCampaign(t *testing.T) {
	f := newFixture()
	c := preparedCampaign(t, f, 1)

	started := make(chan struct{})
	release := make(chan struct{})
	f.worker.Transport = mailer.TransportFunc(func(ctx context.Context, to, subject, body string) error {
		close(started)
		<-release
		return nil
	})

	done := make(chan error, 1)
	go func() {
		_, err := f.deliver(c.ID)
		done <- err
	}()
	<-started

	report, err := f.deliver(c.ID)
	require.NoError(t, err)
	assert.Equal(t, "delivery already in progress", report.Skipped)

	close(release)
	require.NoError(t, <-done)
	stored, _ := f.store.Campaign(c.ID)
	assert.Equal(t, model.CampaignCompleted, stored.Status)
}

func TestHandleDropsMalformedJobs(t *testing.T) {
	f := newFixture()
	assert.NoError(t, f.worker.Handle(context.Background(), []byte("not json")))
	assert.NoError(t, f.worker.Handle(context.Background(), queue.DeliveryJob{}))
	assert.Zero(t, f.transport.calls)
}

func TestHandleRunsDelivery(t *testing.T) {
	f := newFixture()
	c := preparedCampaign(t, f, 2)
	job := f.queue.Jobs()[0]

	require.NoError(t, f.worker.Handle(context.Background(), job))
	stored, _ := f.store.Campaign(c.ID)
	assert.Equal(t, model.CampaignCompleted, stored.Status)
}

func TestFinalStatus(t *testing.T) {
	tests := []struct {
		name string
		sum  model.LedgerSummary
		want model.CampaignStatus
	}{
		{"all sent", model.LedgerSummary{Total: 4, Sent: 4}, model.CampaignCompleted},
		{"some failed", model.LedgerSummary{Total: 4, Sent: 3, Failed: 1}, model.CampaignPartial},
		{"all failed", model.LedgerSummary{Total: 4, Failed: 4}, model.CampaignFailed},
		{"empty ledger", model.LedgerSummary{}, model.CampaignFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, service.FinalStatus(tt.sum))
		})
	}
}

func TestRecomputeOverwritesStaleCounters(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := preparedCampaign(t, f, 3)
	emails := f.store.EmailsFor(c.ID)
	require.NoError(t, f.store.Emails().MarkFailed(ctx, f.org.ID, emails[0].ID, "bounced"))

	// drift the stored counters away from the ledger
	require.NoError(t, f.store.Statistics().Overwrite(ctx, f.org.ID, c.ID, model.LedgerSummary{Total: 9, Sent: 9}))

	agg := &service.StatisticsAggregator{Emails: f.store.Emails(), Stats: f.store.Statistics()}
	for i := 0; i < 2; i++ {
		sum, err := agg.Recompute(ctx, f.org.ID, c.ID)
		require.NoError(t, err)
		assert.Equal(t, model.LedgerSummary{Total: 3, Failed: 1}, sum)
	}

	st, _ := f.store.Statistic(c.ID)
	assert.Equal(t, 3, st.TotalContacts)
	assert.Zero(t, st.EmailsSent)
	assert.Equal(t, 1, st.EmailsFailed)
	assert.Equal(t, 2, st.Pending())
}
