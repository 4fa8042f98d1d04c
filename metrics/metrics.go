// Package metrics exposes hub counters on a Prometheus-compatible endpoint
// using VictoriaMetrics' metrics library.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	vmetrics "github.com/VictoriaMetrics/metrics"
)

// MetricsServer serves /metrics on its own listen address so the public
// API and operational surface stay separate.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server. The namespace names the owning package in
// counter names created through EventSink. If addr is empty the returned
// server is inert and ListenAndServe returns immediately.
func New(namespace, addr string) (*MetricsServer, error) {
	if addr == "" {
		return &MetricsServer{}, nil
	}

	vmetrics.GetOrCreateGauge(fmt.Sprintf("%s_up", namespace), func() float64 { return 1 })

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		vmetrics.WritePrometheus(w, true)
	})

	return &MetricsServer{
		srv: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
		},
	}, nil
}

// ListenAndServe blocks serving the metrics endpoint.
func (m *MetricsServer) ListenAndServe() error {
	if m.srv == nil {
		return http.ErrServerClosed
	}
	return m.srv.ListenAndServe()
}

// Shutdown gracefully stops the metrics server.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	if m.srv == nil {
		return nil
	}
	return m.srv.Shutdown(ctx)
}

// Counter returns (creating if needed) a named counter.
func Counter(name string) *vmetrics.Counter {
	return vmetrics.GetOrCreateCounter(name)
}

// CounterWithLabel returns a counter carrying one label pair.
func CounterWithLabel(name, label, value string) *vmetrics.Counter {
	return vmetrics.GetOrCreateCounter(fmt.Sprintf(`%s{%s=%q}`, name, label, value))
}
