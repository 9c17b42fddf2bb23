package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/unclebandit/realestate-campaigns/internal/app"
	"github.com/unclebandit/realestate-campaigns/internal/config"
	"github.com/unclebandit/realestate-campaigns/internal/tools"
)

func main() {
	cliApp := &cli.App{
		Name:   "worker",
		Usage:  "campaign delivery and scheduling worker",
		Action: consume,
		Commands: []*cli.Command{
			{
				Name:   "consume",
				Usage:  "consume delivery jobs from the queue until interrupted",
				Action: consume,
			},
			{
				Name:   "schedule",
				Usage:  "run one scheduler pass and print its report",
				Action: schedule,
			},
			{
				Name:  "requeue",
				Usage: "publish a new delivery job for a campaign stuck in running",
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "org", Usage: "organization id", Required: true},
					&cli.Int64Flag{Name: "campaign", Usage: "campaign id", Required: true},
				},
				Action: requeue,
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func build(c *cli.Context) (*app.App, *log.Logger, error) {
	cfg, _, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	l := tools.NewLogger(cfg.LogLevel, cfg.LogFormat)
	a, err := app.Build(c.Context, cfg, l)
	if err != nil {
		return nil, nil, err
	}
	return a, l, nil
}

func consume(c *cli.Context) error {
	var stop context.CancelFunc
	c.Context, stop = signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, l, err := build(c)
	if err != nil {
		return err
	}
	if a.Config.QueueDriver != "amqp" {
		l.Warn("QUEUE_DRIVER is not amqp, jobs published by other processes will not reach this worker")
	}
	if err := a.Consume(); err != nil {
		return err
	}
	l.Info("Worker running, waiting for delivery jobs...")

	<-c.Context.Done()
	l.Info("stopping worker")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return a.Shutdown(shutdownCtx)
}

func schedule(c *cli.Context) error {
	a, _, err := build(c)
	if err != nil {
		return err
	}
	return a.RunOnce(c.Context, func(ctx context.Context) error {
		report := a.Scheduler.RunPass(ctx)
		return json.NewEncoder(os.Stdout).Encode(report)
	})
}

func requeue(c *cli.Context) error {
	a, l, err := build(c)
	if err != nil {
		return err
	}
	orgID, campaignID := c.Int64("org"), c.Int64("campaign")
	return a.RunOnce(c.Context, func(ctx context.Context) error {
		jobID, err := a.Campaigns.Requeue(ctx, orgID, campaignID)
		if err != nil {
			return err
		}
		l.WithFields(log.Fields{"org_id": orgID, "campaign_id": campaignID, "job_id": jobID}).Info("📤 delivery job published")
		fmt.Println(jobID)
		return nil
	})
}
