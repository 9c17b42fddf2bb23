// internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/unclebandit/realestate-campaigns/internal/config"
	"github.com/unclebandit/realestate-campaigns/internal/controller"
	"github.com/unclebandit/realestate-campaigns/internal/db"
	"github.com/unclebandit/realestate-campaigns/internal/handler"
	"github.com/unclebandit/realestate-campaigns/internal/mailer"
	"github.com/unclebandit/realestate-campaigns/internal/metrics"
	"github.com/unclebandit/realestate-campaigns/internal/queue"
	"github.com/unclebandit/realestate-campaigns/internal/repository"
	"github.com/unclebandit/realestate-campaigns/internal/scheduler"
	"github.com/unclebandit/realestate-campaigns/internal/service"
	"github.com/unclebandit/realestate-campaigns/internal/tools"
)

// App holds the wired pipeline shared by the server and worker binaries.
type App struct {
	Config    *config.Config
	Loggers   *tools.Logger
	DB        *sqlx.DB
	Queue     queue.Queue
	Metrics   *metrics.Metrics
	Campaigns *service.CampaignService
	Worker    *service.DeliveryWorker
	Scheduler *scheduler.Scheduler
}

// Build connects to postgres and the configured queue and wires every component.
// ctx bounds the lifetime of queue consumers and retries.
func Build(ctx context.Context, cfg *config.Config, root *logrus.Logger) (*App, error) {
	loggers := tools.LoggerCloner(root)

	conn, err := db.Open(ctx, cfg.DSN(), loggers.New("db"))
	if err != nil {
		return nil, err
	}
	if err := db.EnsureSchema(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, err
	}

	q, err := newQueue(ctx, cfg, loggers.New("queue"))
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	a := &App{
		Config:  cfg,
		Loggers: loggers,
		DB:      conn,
		Queue:   q,
		Metrics: metrics.New(),
	}
	a.wire()
	return a, nil
}

func newQueue(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (queue.Queue, error) {
	switch cfg.QueueDriver {
	case "amqp":
		return queue.NewAMQPQueue(ctx, cfg.AMQPURL, cfg.QueueMaxRetries, log)
	default:
		return queue.NewInMemoryQueue(ctx, cfg.QueueMaxRetries, log), nil
	}
}

func newTransport(cfg *config.Config, log logrus.FieldLogger) mailer.Transport {
	if cfg.MailTransport == "smtp" {
		return mailer.NewSMTPTransport(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.MailFrom)
	}
	return &mailer.LogTransport{Log: log}
}

func (a *App) wire() {
	campaignRepo := &repository.CampaignRepository{DB: a.DB}
	audienceRepo := &repository.AudienceRepository{DB: a.DB}
	emailRepo := &repository.CampaignEmailRepository{DB: a.DB}
	statsRepo := &repository.StatisticRepository{DB: a.DB}

	a.Campaigns = &service.CampaignService{
		CampaignRepo: campaignRepo,
		TemplateRepo: &repository.TemplateRepository{DB: a.DB},
		AudienceRepo: audienceRepo,
		EmailRepo:    emailRepo,
		StatsRepo:    statsRepo,
		Contacts: &service.CampaignContacts{
			Audiences: audienceRepo,
			Resolver:  &service.AudienceResolver{Contacts: &repository.ContactRepository{DB: a.DB}},
		},
		Tx:      &repository.PostgresTransactor{DB: a.DB},
		Queue:   a.Queue,
		Topic:   a.Config.DeliveryQueue,
		Log:     a.Loggers.New("campaigns"),
		Metrics: a.Metrics,
	}

	workerLog := a.Loggers.New("delivery")
	a.Worker = service.NewDeliveryWorker(
		campaignRepo,
		emailRepo,
		&service.StatisticsAggregator{Emails: emailRepo, Stats: statsRepo},
		newTransport(a.Config, workerLog),
		a.Config.SendInterval,
		workerLog,
	)
	a.Worker.Metrics = a.Metrics

	a.Scheduler = scheduler.NewScheduler(
		&repository.OrganizationRepository{DB: a.DB},
		campaignRepo,
		audienceRepo,
		a.Campaigns,
		a.Loggers.New("scheduler"),
	)
	a.Scheduler.Metrics = a.Metrics
}

// Consume subscribes the delivery worker to the delivery topic.
func (a *App) Consume() error {
	return queue.StartDeliverySubscriber(a.Queue, a.Config.DeliveryQueue, a.Worker.Handle, a.Loggers.New("delivery"))
}

// RunOnce runs a one-shot command such as a scheduler pass and then shuts the app down.
// With the memory driver nobody else can consume the jobs fn publishes, so they are delivered
// in this process and drained before RunOnce returns.
func (a *App) RunOnce(ctx context.Context, fn func(ctx context.Context) error) error {
	if a.Config.QueueDriver == "memory" {
		if err := a.Consume(); err != nil {
			return errors.Join(err, a.Shutdown(ctx))
		}
	}
	return errors.Join(fn(ctx), a.Shutdown(ctx))
}

// Router returns the HTTP surface.
func (a *App) Router() http.Handler {
	rt := &handler.Router{
		Campaigns: &controller.CampaignController{
			CampaignService: a.Campaigns,
			Log:             a.Loggers.New("http"),
		},
		Scheduler: a.Scheduler,
		Metrics:   a.Metrics,
		Log:       a.Loggers.New("http"),
	}
	return rt.Handler()
}

// Shutdown waits for in-flight deliveries until ctx expires and closes connections.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	switch q := a.Queue.(type) {
	case *queue.InMemoryQueue:
		if err := q.Drain(ctx); err != nil {
			errs = append(errs, fmt.Errorf("draining queue: %w", err))
		}
	case *queue.AMQPQueue:
		q.Wait()
		if err := q.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing amqp: %w", err))
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing db: %w", err))
		}
	}
	return errors.Join(errs...)
}
