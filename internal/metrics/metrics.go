// Package metrics instruments the chooser stack's runtime behavior:
// per-tier queue depth, lagging bootstrap SSPs, and envelopes chosen.
// Unlike a process-wide metrics singleton, ChooserMetrics is built with
// an explicit prometheus.Registerer and updated through the task loop's
// taskloop.Metrics callbacks (see cmd/chooser-demo) — no package-level
// collector, no hidden global state. The composer itself takes no
// metrics handle.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// ChooserMetrics holds the Prometheus collectors the task loop updates
// as it drives the selector stack.
type ChooserMetrics struct {
	TierQueueDepth   *prometheus.GaugeVec
	LaggingBootstrap prometheus.Gauge
	EnvelopesChosen  *prometheus.CounterVec
	ChooseEmpty      prometheus.Counter
	ProtocolDrops    *prometheus.CounterVec
}

// New registers every chooser collector against reg and returns the
// handle. reg is typically prometheus.NewRegistry() for an isolated
// instance, or prometheus.DefaultRegisterer for a process exposing one
// /metrics endpoint.
func New(reg prometheus.Registerer) *ChooserMetrics {
	factory := promauto.With(reg)

	return &ChooserMetrics{
		TierQueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "chooser_tier_queue_depth",
			Help: "Number of envelopes currently queued at each priority tier.",
		}, []string{"tier"}),

		LaggingBootstrap: factory.NewGauge(prometheus.GaugeOpts{
			Name: "chooser_lagging_bootstrap_ssps",
			Help: "Count of bootstrap SSPs that have not yet caught up to their target offset.",
		}),

		EnvelopesChosen: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chooser_envelopes_chosen_total",
			Help: "Total envelopes returned by Choose, by SSP.",
		}, []string{"system", "stream", "partition"}),

		ChooseEmpty: factory.NewCounter(prometheus.CounterOpts{
			Name: "chooser_choose_empty_total",
			Help: "Total Choose calls that returned no envelope.",
		}),

		ProtocolDrops: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chooser_protocol_drops_total",
			Help: "Total Update calls dropped for an unregistered SSP.",
		}, []string{"system", "stream"}),
	}
}

// Server exposes /metrics and /health over HTTP for one registry.
// Grounded on the teacher's metrics server shape, trimmed to the two
// endpoints this repo actually needs.
type Server struct {
	http   *http.Server
	logger *logrus.Logger
}

// NewServer builds a metrics HTTP server bound to addr, serving reg's
// collectors at /metrics.
func NewServer(addr string, reg *prometheus.Registry, logger *logrus.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return &Server{
		http: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger,
	}
}

// Start runs the metrics server in a background goroutine.
func (s *Server) Start() {
	s.logger.WithField("addr", s.http.Addr).Info("starting metrics server")

	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("metrics server stopped unexpectedly")
		}
	}()
}

// Stop shuts the metrics server down.
func (s *Server) Stop() error {
	s.logger.Info("stopping metrics server")
	return s.http.Close()
}
