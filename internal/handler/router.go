// internal/handler/router.go
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/unclebandit/realestate-campaigns/internal/controller"
	"github.com/unclebandit/realestate-campaigns/internal/metrics"
	"github.com/unclebandit/realestate-campaigns/internal/scheduler"
)

// PassRunner runs one scheduler pass on demand.
type PassRunner interface {
	RunPass(ctx context.Context) scheduler.PassReport
}

type Router struct {
	Campaigns *controller.CampaignController
	Scheduler PassRunner
	Metrics   *metrics.Metrics
	Log       logrus.FieldLogger
}

// Handler builds the chi router serving the campaign, scheduler and ops endpoints.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(rt.logRequests)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	if rt.Metrics != nil {
		r.Handle("/metrics", rt.Metrics.Handler())
	}
	if rt.Scheduler != nil {
		r.Post("/scheduler/run", rt.RunScheduler)
	}
	r.Route("/organizations/{orgID}/campaigns", rt.Campaigns.Routes)
	return r
}

// RunScheduler triggers one pass synchronously and returns its report.
func (rt *Router) RunScheduler(w http.ResponseWriter, r *http.Request) {
	report := rt.Scheduler.RunPass(r.Context())
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}

func (rt *Router) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		if rt.Log == nil {
			return
		}
		rt.Log.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("📥 request")
	})
}
