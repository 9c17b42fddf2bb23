// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/unclebandit/realestate-campaigns/internal/app"
	"github.com/unclebandit/realestate-campaigns/internal/config"
	"github.com/unclebandit/realestate-campaigns/internal/tools"
)

func main() {
	cfg, loadedEnv, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	l := tools.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if !loadedEnv {
		l.Info("⚠️ No .env file found, relying on OS environment variables")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, l)
	if err != nil {
		l.WithError(err).Fatal("failed to start")
	}

	// with the memory driver deliveries run inside this process
	if cfg.QueueDriver == "memory" {
		if err := a.Consume(); err != nil {
			l.WithError(err).Fatal("failed to subscribe delivery worker")
		}
	}

	if cfg.SchedulerEnabled {
		if err := a.Scheduler.Start(cfg.SchedulerSpec); err != nil {
			l.WithError(err).Fatal("failed to start scheduler")
		}
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		l.Infof("🚀 Server running on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		l.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if cfg.SchedulerEnabled {
			a.Scheduler.Stop(shutdownCtx)
		}
		httpErr := srv.Shutdown(shutdownCtx)
		return errors.Join(httpErr, a.Shutdown(shutdownCtx))
	})

	if err := g.Wait(); err != nil {
		l.WithError(err).Error("server stopped with error")
		os.Exit(1)
	}
	l.Info("shutdown complete")
}
