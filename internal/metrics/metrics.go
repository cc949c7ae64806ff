package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Presence metrics
	PresenceEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ontime_presence_events_total",
			Help: "Presence events processed, by state and whether they changed state",
		},
		[]string{"state", "changed"},
	)

	SessionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ontime_sessions_open",
			Help: "Number of currently open sessions",
		},
	)

	// Flush metrics
	FlushesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ontime_flushes_total",
			Help: "Flush runs, by outcome",
		},
		[]string{"outcome"},
	)

	FlushDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ontime_flush_duration_seconds",
			Help:    "Flush duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	LogEntriesWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ontime_log_entries_written_total",
			Help: "Log entries appended to the durable store",
		},
	)

	// Identity metrics
	IdentityLookupFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ontime_identity_lookup_failures_total",
			Help: "Display name lookups that failed",
		},
	)
)

func init() {
	prometheus.MustRegister(
		PresenceEventsTotal,
		SessionsOpen,
		FlushesTotal,
		FlushDuration,
		LogEntriesWritten,
		IdentityLookupFailures,
	)
}

// Server is the metrics HTTP server.
type Server struct {
	server *http.Server
	logger zerolog.Logger
}

// NewServer creates a new metrics server.
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// Start starts the metrics server.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server.
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
