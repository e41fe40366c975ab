// Copyright 2025 James Ross
package obs

import (
	"context"
	"fmt"
	"net/http"

	"github.com/TGAC/grassroots-core/internal/config"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

// StartHTTPServer launches the server's observability side-channel:
// /metrics for Prometheus scraping, /healthz for liveness, and /readyz
// for readiness. readiness is consulted on every /readyz hit and should
// return nil once the registry and jobs manager are usable; a nil
// readiness callback always reports ready.
func StartHTTPServer(cfg *config.Config, readiness func(context.Context) error) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if readiness != nil {
			if err := readiness(r.Context()); err != nil {
				http.Error(w, fmt.Sprintf("not ready: %v", err), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Observability.MetricsPort), Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
