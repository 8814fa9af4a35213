package blocksync

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"

	prometheus "github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this
	// package.
	MetricsSubsystem = "blocksync"
)

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Height of the last contiguously assembled header.
	TipHeight metrics.Gauge

	// Height of the last block handed to the importer.
	BlockHeight metrics.Gauge

	// Number of headers resident in the reassembly queue.
	ResidentHeaders metrics.Gauge

	// Total number of header requests dispatched to peers.
	HeaderRequests metrics.Counter

	// Total number of body requests dispatched to peers.
	BodyRequests metrics.Counter

	// Total number of headers received from peers.
	HeadersReceived metrics.Counter

	// Total number of blocks received from peers.
	BlocksReceived metrics.Counter

	// Total number of peers dropped for transport failures or invalid data.
	PeersDropped metrics.Counter
}

// PrometheusMetrics returns Metrics build using Prometheus client library.
// Optionally, labels can be provided along with their values ("foo",
// "fooValue").
func PrometheusMetrics(namespace string, labelsAndValues ...string) *Metrics {
	labels := []string{}
	for i := 0; i < len(labelsAndValues); i += 2 {
		labels = append(labels, labelsAndValues[i])
	}
	return &Metrics{
		TipHeight: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "tip_height",
			Help:      "Height of the last contiguously assembled header.",
		}, labels).With(labelsAndValues...),
		BlockHeight: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "block_height",
			Help:      "Height of the last block handed to the importer.",
		}, labels).With(labelsAndValues...),
		ResidentHeaders: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "resident_headers",
			Help:      "Number of headers resident in the reassembly queue.",
		}, labels).With(labelsAndValues...),
		HeaderRequests: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "header_requests_total",
			Help:      "Total number of header requests dispatched to peers.",
		}, labels).With(labelsAndValues...),
		BodyRequests: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "body_requests_total",
			Help:      "Total number of body requests dispatched to peers.",
		}, labels).With(labelsAndValues...),
		HeadersReceived: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "headers_received_total",
			Help:      "Total number of headers received from peers.",
		}, labels).With(labelsAndValues...),
		BlocksReceived: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "blocks_received_total",
			Help:      "Total number of blocks received from peers.",
		}, labels).With(labelsAndValues...),
		PeersDropped: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "peers_dropped_total",
			Help:      "Total number of peers dropped for transport failures or invalid data.",
		}, labels).With(labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		TipHeight:       discard.NewGauge(),
		BlockHeight:     discard.NewGauge(),
		ResidentHeaders: discard.NewGauge(),
		HeaderRequests:  discard.NewCounter(),
		BodyRequests:    discard.NewCounter(),
		HeadersReceived: discard.NewCounter(),
		BlocksReceived:  discard.NewCounter(),
		PeersDropped:    discard.NewCounter(),
	}
}
