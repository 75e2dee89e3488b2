// Package metrics exposes Prometheus instrumentation for the pipeline, the
// job server and the deployment record.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "orbit"

// stageBuckets cover a quick file write up to a slow contract deploy.
var stageBuckets = []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1200}

// Metrics holds every collector on a private registry. A nil *Metrics is a
// valid no-op recorder.
type Metrics struct {
	registry *prometheus.Registry

	stageDuration *prometheus.HistogramVec
	stageFailures *prometheus.CounterVec
	deploys       *prometheus.CounterVec
	jobs          *prometheus.CounterVec
	deployed      prometheus.Gauge
	containers    prometheus.Gauge
	unhealthy     prometheus.Gauge
}

// New creates the collectors and registers them, together with the Go and
// process collectors, on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "stage_duration_seconds",
				Help:      "Duration of pipeline stages",
				Buckets:   stageBuckets,
			},
			[]string{"stage", "outcome"},
		),
		stageFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "stage_failures_total",
				Help:      "Number of failed pipeline stages",
			},
			[]string{"stage"},
		),
		deploys: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "deploys_total",
				Help:      "Number of finished deploy runs",
			},
			[]string{"outcome"},
		),
		jobs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "jobs",
				Name:      "invocations_total",
				Help:      "Number of job invocations",
			},
			[]string{"job", "outcome"},
		),
		deployed: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "deployed",
				Help:      "1 when the rollup has been deployed",
			},
		),
		containers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "tracked_containers",
				Help:      "Number of container IDs tracked in the deployment record",
			},
		),
		unhealthy: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "unhealthy_containers",
				Help:      "Tracked containers that are missing, stopped or failing their health check",
			},
		),
	}

	registry.MustRegister(
		m.stageDuration,
		m.stageFailures,
		m.deploys,
		m.jobs,
		m.deployed,
		m.containers,
		m.unhealthy,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// ObserveStage records one stage execution.
func (m *Metrics) ObserveStage(stage string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage, outcome(err == nil)).Observe(duration.Seconds())
	if err != nil {
		m.stageFailures.WithLabelValues(stage).Inc()
	}
}

// RecordDeploy records the end of a deploy run.
func (m *Metrics) RecordDeploy(ok bool) {
	if m == nil {
		return
	}
	m.deploys.WithLabelValues(outcome(ok)).Inc()
}

// RecordJob records one job invocation.
func (m *Metrics) RecordJob(job string, ok bool) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(job, outcome(ok)).Inc()
}

// SetRecordState mirrors the deployment record into gauges.
func (m *Metrics) SetRecordState(deployed bool, containers int) {
	if m == nil {
		return
	}
	if deployed {
		m.deployed.Set(1)
	} else {
		m.deployed.Set(0)
	}
	m.containers.Set(float64(containers))
}

// SetUnhealthyContainers records the last watcher cycle's unhealthy count.
func (m *Metrics) SetUnhealthyContainers(n int) {
	if m == nil {
		return
	}
	m.unhealthy.Set(float64(n))
}

// Registry exposes the registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		Registry: m.registry,
	})
}
