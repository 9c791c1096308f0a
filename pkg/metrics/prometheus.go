package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	messagesSent  *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	scansTotal    *prometheus.CounterVec
	zonesDetected *prometheus.CounterVec
	mitigations   prometheus.Counter
	alertsSent    *prometheus.CounterVec
	lastPrice     *prometheus.GaugeVec
	activeZones   *prometheus.GaugeVec
	latency       *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		messagesSent: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zonescan_messages_sent_total",
				Help: "Total number of messages sent to backend",
			},
			[]string{"backend", "symbol"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zonescan_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		scansTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zonescan_scans_total",
				Help: "Instrument scans by outcome",
			},
			[]string{"outcome"},
		),
		zonesDetected: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zonescan_zones_detected_total",
				Help: "Newly persisted zones by direction",
			},
			[]string{"type"},
		),
		mitigations: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "zonescan_zone_mitigations_total",
				Help: "Zones marked mitigated",
			},
		),
		alertsSent: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zonescan_alerts_sent_total",
				Help: "Telegram alerts dispatched by kind",
			},
			[]string{"kind"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "zonescan_last_price",
				Help: "Last recorded price for a symbol",
			},
			[]string{"symbol"},
		),
		activeZones: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "zonescan_active_zones",
				Help: "Active (unmitigated) zones by direction",
			},
			[]string{"type"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "zonescan_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordMessageSent records a message sent to a backend.
func (r *Recorder) RecordMessageSent(backend, symbol string) {
	r.messagesSent.WithLabelValues(backend, symbol).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordScan records one instrument scan with its outcome ("ok", "skipped",
// "error").
func (r *Recorder) RecordScan(outcome string) {
	r.scansTotal.WithLabelValues(outcome).Inc()
}

// RecordZoneDetected records a newly persisted zone.
func (r *Recorder) RecordZoneDetected(zoneType string) {
	r.zonesDetected.WithLabelValues(zoneType).Inc()
}

// RecordMitigation records a zone marked mitigated.
func (r *Recorder) RecordMitigation() {
	r.mitigations.Inc()
}

// RecordAlertSent records a dispatched alert ("new_zone", "mitigation",
// "summary").
func (r *Recorder) RecordAlertSent(kind string) {
	r.alertsSent.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// SetActiveZones sets the active-zone gauge for a direction.
func (r *Recorder) SetActiveZones(zoneType string, n int) {
	r.activeZones.WithLabelValues(zoneType).Set(float64(n))
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
