// Package metricssvc exposes provisioning runs as Prometheus metrics.
package metricssvc

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/trezcool/tutorhub/core/provision"
)

const namespace = "tutorhub"

type Collector struct {
	registry *prometheus.Registry

	records        *prometheus.CounterVec
	runs           *prometheus.CounterVec
	lastRunRecords *prometheus.GaugeVec
	lastRunEnd     prometheus.Gauge
	lastRunSeconds prometheus.Gauge

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

var _ provision.Observer = (*Collector)(nil)

// NewCollector registers the provisioning metrics on a registry of its own, along with the Go runtime collectors.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		records: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provisioning",
			Name:      "records_total",
			Help:      "Legacy records processed, by mode, outcome and skip reason.",
		}, []string{"mode", "outcome", "reason"}),
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provisioning",
			Name:      "runs_total",
			Help:      "Provisioning runs, by mode and final status.",
		}, []string{"mode", "status"}),
		lastRunRecords: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "provisioning",
			Name:      "last_run_records",
			Help:      "Counters of the last completed run.",
		}, []string{"counter"}),
		lastRunEnd: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "provisioning",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run completed.",
		}),
		lastRunSeconds: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "provisioning",
			Name:      "last_run_duration_seconds",
			Help:      "Duration of the last completed run.",
		}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}

func (c *Collector) Observe(cfg provision.RunConfig, o provision.Outcome) {
	c.records.WithLabelValues(string(cfg.Mode), o.Kind.String(), o.Reason).Inc()
}

// RecordRun updates the run level metrics once run is over.
func (c *Collector) RecordRun(run provision.Run) {
	c.runs.WithLabelValues(string(run.Config.Mode), string(run.Status)).Inc()
	if run.Status != provision.StatusCompleted {
		return
	}

	c.lastRunRecords.WithLabelValues("total").Set(float64(run.Summary.Total))
	c.lastRunRecords.WithLabelValues("created").Set(float64(run.Summary.Created))
	c.lastRunRecords.WithLabelValues("invited").Set(float64(run.Summary.Invited))
	c.lastRunRecords.WithLabelValues("skipped").Set(float64(run.Summary.Skipped))
	c.lastRunRecords.WithLabelValues("errors").Set(float64(run.Summary.Errors))
	if run.StartedAt != nil && run.FinishedAt != nil {
		c.lastRunEnd.Set(float64(run.FinishedAt.Unix()))
		c.lastRunSeconds.Set(run.FinishedAt.Sub(*run.StartedAt).Seconds())
	}
}

// ObserveRequest records one served HTTP request. path is the route pattern, not the raw path.
func (c *Collector) ObserveRequest(method, path, status string, seconds float64) {
	c.httpRequests.WithLabelValues(method, path, status).Inc()
	c.httpDuration.WithLabelValues(method, path).Observe(seconds)
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Push sends the current metrics to a Prometheus Pushgateway, replacing the ones of job.
func (c *Collector) Push(ctx context.Context, url, job string) error {
	if err := push.New(url, job).Gatherer(c.registry).PushContext(ctx); err != nil {
		return errors.Wrap(err, "pushing metrics")
	}
	return nil
}
