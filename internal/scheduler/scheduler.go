package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/modfin/henry/slicez"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/unclebandit/realestate-campaigns/internal/metrics"
	"github.com/unclebandit/realestate-campaigns/internal/model"
	"github.com/unclebandit/realestate-campaigns/internal/repository"
	"github.com/unclebandit/realestate-campaigns/internal/service"
)

// Executor materializes one campaign. *service.CampaignService satisfies it.
type Executor interface {
	Prepare(ctx context.Context, orgID, campaignID int64) (*service.ExecutionResult, error)
}

type Scheduler struct {
	cron *cron.Cron

	Orgs      repository.OrganizationRepositoryInterface
	Campaigns repository.CampaignRepositoryInterface
	Audiences repository.AudienceRepositoryInterface
	Executor  Executor
	Log       logrus.FieldLogger
	Metrics   *metrics.Metrics
	Now       func() time.Time
}

func NewScheduler(
	orgs repository.OrganizationRepositoryInterface,
	campaigns repository.CampaignRepositoryInterface,
	audiences repository.AudienceRepositoryInterface,
	executor Executor,
	log logrus.FieldLogger,
) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.PrintfLogger(log)),
			cron.SkipIfStillRunning(cron.PrintfLogger(log)),
		)),
		Orgs:      orgs,
		Campaigns: campaigns,
		Audiences: audiences,
		Executor:  executor,
		Log:       log,
		Now:       time.Now,
	}
}

// Start runs a pass on every tick of spec, e.g. "@every 5m". A tick that fires while the
// previous pass is still running is skipped.
func (s *Scheduler) Start(spec string) error {
	if _, err := s.cron.AddFunc(spec, func() { s.RunPass(context.Background()) }); err != nil {
		return fmt.Errorf("invalid scheduler spec %q: %w", spec, err)
	}
	s.cron.Start()
	s.Log.Infof("⏰ scheduler started (%s)", spec)
	return nil
}

// Stop halts the ticker and waits for a running pass until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.Log.Warn("scheduler pass still running at shutdown")
	}
}

type PassReport struct {
	PassID        string `json:"pass_id"`
	Organizations int    `json:"organizations"`
	Due           int    `json:"due"`
	Started       int    `json:"started"`
	Failed        int    `json:"failed"`
	Spawned       int    `json:"spawned"`
}

// RunPass prepares every due campaign of every active organization. Failures are logged and
// counted, never propagated; running it again only picks up what is still due.
func (s *Scheduler) RunPass(ctx context.Context) PassReport {
	report := PassReport{PassID: uuid.NewString()}
	log := s.Log.WithField("pass_id", report.PassID)
	log.Info("🔎 scheduler pass starting")

	orgs, err := s.Orgs.ListActive(ctx)
	if err != nil {
		log.WithError(err).Error("failed to list organizations")
		s.countError()
		return report
	}

	for _, org := range orgs {
		if ctx.Err() != nil {
			break
		}
		report.Organizations++
		s.runOrganization(ctx, log.WithField("org_id", org.ID), org.ID, &report)
	}

	if s.Metrics != nil {
		s.Metrics.SchedulerPasses.Inc()
	}
	log.WithFields(logrus.Fields{
		"organizations": report.Organizations,
		"due":           report.Due,
		"started":       report.Started,
		"failed":        report.Failed,
		"spawned":       report.Spawned,
	}).Info("✅ scheduler pass finished")
	return report
}

func (s *Scheduler) runOrganization(ctx context.Context, log logrus.FieldLogger, orgID int64, report *PassReport) {
	now := s.Now()
	due, err := s.Campaigns.ListDue(ctx, orgID, now)
	if err != nil {
		log.WithError(err).Error("failed to list due campaigns")
		s.countError()
		return
	}
	report.Due += len(due)

	for _, c := range due {
		clog := log.WithField("campaign_id", c.ID)
		res, err := s.Executor.Prepare(ctx, orgID, c.ID)
		if err != nil {
			clog.WithError(err).Warn("failed to start campaign")
			report.Failed++
			s.countError()
			continue
		}
		report.Started++

		started := res.Campaign
		if started == nil || !started.IsRecurring() {
			continue
		}
		if !started.ShouldContinueRecurring(now) {
			clog.Info("campaign will not recur, end date or max occurrences reached")
			continue
		}
		at := started.NextScheduledTime()
		if at == nil {
			clog.Error("recurring campaign has no next scheduled time")
			s.countError()
			continue
		}
		if end := started.RecurrenceEndDate; end != nil && !at.Before(*end) {
			clog.WithField("recurrence_end_date", *end).Info("campaign will not recur, next occurrence falls on or after the end date")
			continue
		}
		next, err := s.scheduleNext(ctx, started, *at)
		if err != nil {
			clog.WithError(err).Error("failed to schedule next occurrence")
			s.countError()
			continue
		}
		report.Spawned++
		if s.Metrics != nil {
			s.Metrics.SchedulerSpawned.Inc()
		}
		clog.WithFields(logrus.Fields{
			"next_campaign_id": next.ID,
			"scheduled_at":     next.ScheduledAt,
		}).Infof("scheduled next %s occurrence", started.RecurrenceInterval)
	}
}

// scheduleNext clones the campaign at at, with the same audiences.
func (s *Scheduler) scheduleNext(ctx context.Context, c *model.Campaign, at time.Time) (*model.Campaign, error) {
	audiences, err := s.Audiences.ListForCampaign(ctx, c.OrganizationID, c.ID, false)
	if err != nil {
		return nil, err
	}
	ids := slicez.Map(audiences, func(a model.Audience) int64 { return a.ID })

	next := c.NextOccurrence(at)
	if err := s.Campaigns.Create(ctx, next, ids); err != nil {
		return nil, err
	}
	return next, nil
}

func (s *Scheduler) countError() {
	if s.Metrics != nil {
		s.Metrics.SchedulerErrors.Inc()
	}
}
