// Copyright 2025 James Ross
package obs

import (
	"fmt"
	"net/http"

	"github.com/TGAC/grassroots-core/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "grassroots_requests_received_total",
		Help: "Total number of request envelopes received by the dispatcher, by operation",
	}, []string{"operation"})
	ServicesRun = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "grassroots_services_run_total",
		Help: "Total number of service runs dispatched, by service name and synchronicity",
	}, []string{"service", "synchronicity"})
	JobsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "grassroots_jobs_created_total",
		Help: "Total number of ServiceJobs created",
	})
	JobsSucceeded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "grassroots_jobs_succeeded_total",
		Help: "Total number of ServiceJobs that reached SUCCEEDED or PARTIALLY_SUCCEEDED",
	})
	JobsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "grassroots_jobs_failed_total",
		Help: "Total number of ServiceJobs that reached ERROR, FAILED or FAILED_TO_START",
	})
	JobUpdateDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "grassroots_job_update_duration_seconds",
		Help:    "Histogram of ServiceJob update callback durations",
		Buckets: prometheus.DefBuckets,
	})
	JobsManagerSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "grassroots_jobs_manager_size",
		Help: "Current number of jobs held by the jobs manager",
	})
	FederationDispatches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "grassroots_federation_dispatches_total",
		Help: "Total number of outbound paired-service dispatches, by peer uri and outcome",
	}, []string{"peer", "outcome"})
	FederationCyclesAvoided = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "grassroots_federation_cycles_avoided_total",
		Help: "Total number of paired-service dispatches skipped because the providers-state table already contained the pair",
	})
	LinkedServicesTriggered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "grassroots_linked_services_triggered_total",
		Help: "Total number of linked-service arcs fired, by outcome",
	}, []string{"outcome"})
	PluginsLoaded = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "grassroots_plugins_loaded",
		Help: "Current number of plugin handles held open by the registry",
	})
	PeerCircuitBreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "grassroots_peer_circuit_breaker_state",
		Help: "0 Closed, 1 HalfOpen, 2 Open, by peer uri",
	}, []string{"peer"})
)

func init() {
	prometheus.MustRegister(
		RequestsReceived, ServicesRun, JobsCreated, JobsSucceeded, JobsFailed,
		JobUpdateDuration, JobsManagerSize, FederationDispatches, FederationCyclesAvoided,
		LinkedServicesTriggered, PluginsLoaded, PeerCircuitBreakerState,
	)
}

// StartMetricsServer exposes /metrics and returns a server for controlled shutdown.
// Retained for compatibility; StartHTTPServer also registers health endpoints.
func StartMetricsServer(cfg *config.Config) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Observability.MetricsPort), Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
