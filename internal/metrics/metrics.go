// Package metrics defines the Prometheus collectors for the service.
// Collectors are package-level and registered via promauto; the
// exposition handler is mounted by the HTTP server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// IngestRows counts rows accepted by the ingestion gateway, by stream.
	IngestRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulseboard_ingest_rows_total",
		Help: "Rows written by the ingestion gateway.",
	}, []string{"stream"})

	// IngestRejected counts batches rejected by validation.
	IngestRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulseboard_ingest_batches_rejected_total",
		Help: "Ingestion batches rejected by validation.",
	})

	// RelayEvents counts events emitted to stream subscribers, by stream.
	RelayEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulseboard_relay_events_total",
		Help: "Events emitted to live stream subscribers.",
	}, []string{"stream"})

	// RelaySubscriptions tracks currently open stream subscriptions.
	RelaySubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pulseboard_relay_subscriptions",
		Help: "Currently open live stream subscriptions.",
	})

	// AuthThrottled counts login/register attempts rejected by the
	// rolling throttle window, by attempt kind.
	AuthThrottled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulseboard_auth_throttled_total",
		Help: "Login/register attempts rejected by throttling.",
	}, []string{"kind"})
)

// Handler returns the Prometheus exposition handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
