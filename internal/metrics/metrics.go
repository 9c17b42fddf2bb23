package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline's collectors, registered on their own registry.
type Metrics struct {
	reg *prometheus.Registry

	EmailsSent       prometheus.Counter
	EmailsFailed     prometheus.Counter
	Materializations *prometheus.CounterVec // by result
	CampaignsClosed  *prometheus.CounterVec // by final status
	SchedulerPasses  prometheus.Counter
	SchedulerSpawned prometheus.Counter
	SchedulerErrors  prometheus.Counter
	DeliveryDuration prometheus.Histogram
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		EmailsSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: "campaigns",
			Name:      "emails_sent_total",
			Help:      "Campaign emails accepted by the mail transport.",
		}),
		EmailsFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: "campaigns",
			Name:      "emails_failed_total",
			Help:      "Campaign emails the mail transport rejected.",
		}),
		Materializations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "campaigns",
			Name:      "materializations_total",
			Help:      "Campaign materialization attempts by result.",
		}, []string{"result"}),
		CampaignsClosed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "campaigns",
			Name:      "finalized_total",
			Help:      "Campaigns leaving running, by final status.",
		}, []string{"status"}),
		SchedulerPasses: f.NewCounter(prometheus.CounterOpts{
			Namespace: "campaigns",
			Name:      "scheduler_passes_total",
			Help:      "Completed scheduler passes.",
		}),
		SchedulerSpawned: f.NewCounter(prometheus.CounterOpts{
			Namespace: "campaigns",
			Name:      "scheduler_occurrences_spawned_total",
			Help:      "Recurring campaign occurrences created by the scheduler.",
		}),
		SchedulerErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: "campaigns",
			Name:      "scheduler_errors_total",
			Help:      "Per-campaign or per-organization failures during scheduler passes.",
		}),
		DeliveryDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "campaigns",
			Name:      "delivery_duration_seconds",
			Help:      "Wall time of one delivery worker invocation.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
