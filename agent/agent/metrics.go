package agent

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Telemetry counts pipeline activity. A nil *Telemetry is valid and records nothing.
type Telemetry struct {
	registry *prometheus.Registry

	hostsProbed        prometheus.Counter
	printersDiscovered prometheus.Counter
	metricsCollected   prometheus.Counter
	extractionFailures prometheus.Counter
	delivered          prometheus.Counter
	deliveryFailures   *prometheus.CounterVec
	registrations      *prometheus.CounterVec
	queueDepth         prometheus.Gauge
	passDuration       *prometheus.HistogramVec
}

// NewTelemetry registers the agent's collectors on a private registry.
func NewTelemetry() *Telemetry {
	t := &Telemetry{
		registry: prometheus.NewRegistry(),
		hostsProbed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "printrelay",
			Name:      "hosts_probed_total",
			Help:      "Hosts sent a descriptor query during discovery",
		}),
		printersDiscovered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "printrelay",
			Name:      "printers_discovered_total",
			Help:      "Printers persisted by discovery, rediscoveries included",
		}),
		metricsCollected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "printrelay",
			Name:      "metrics_collected_total",
			Help:      "Metrics samples stored",
		}),
		extractionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "printrelay",
			Name:      "extraction_failures_total",
			Help:      "Devices that answered no metrics query during a collection pass",
		}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "printrelay",
			Name:      "envelopes_delivered_total",
			Help:      "Envelopes acknowledged by the aggregator",
		}),
		deliveryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "printrelay",
			Name:      "delivery_failures_total",
			Help:      "Envelope deliveries that were not acknowledged",
		}, []string{"reason"}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "printrelay",
			Name:      "registrations_total",
			Help:      "Registration attempts by outcome",
		}, []string{"result"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "printrelay",
			Name:      "outbound_queue_depth",
			Help:      "Envelopes awaiting delivery",
		}),
		passDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "printrelay",
			Name:      "pass_duration_seconds",
			Help:      "Duration of scheduled passes",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"task"}),
	}
	t.registry.MustRegister(
		t.hostsProbed,
		t.printersDiscovered,
		t.metricsCollected,
		t.extractionFailures,
		t.delivered,
		t.deliveryFailures,
		t.registrations,
		t.queueDepth,
		t.passDuration,
	)
	return t
}

func (t *Telemetry) HostProbed() {
	if t == nil {
		return
	}
	t.hostsProbed.Inc()
}

func (t *Telemetry) PrinterDiscovered() {
	if t == nil {
		return
	}
	t.printersDiscovered.Inc()
}

func (t *Telemetry) MetricsCollected() {
	if t == nil {
		return
	}
	t.metricsCollected.Inc()
}

func (t *Telemetry) ExtractionFailed() {
	if t == nil {
		return
	}
	t.extractionFailures.Inc()
}

func (t *Telemetry) Delivered() {
	if t == nil {
		return
	}
	t.delivered.Inc()
}

// DeliveryFailed counts a failed delivery. reason is "unauthenticated" or "error".
func (t *Telemetry) DeliveryFailed(reason string) {
	if t == nil {
		return
	}
	t.deliveryFailures.WithLabelValues(reason).Inc()
}

func (t *Telemetry) Registration(ok bool) {
	if t == nil {
		return
	}
	result := "failure"
	if ok {
		result = "success"
	}
	t.registrations.WithLabelValues(result).Inc()
}

func (t *Telemetry) SetQueueDepth(n int) {
	if t == nil {
		return
	}
	t.queueDepth.Set(float64(n))
}

// ObservePass records how long one run of task took.
func (t *Telemetry) ObservePass(task string, d time.Duration) {
	if t == nil {
		return
	}
	t.passDuration.WithLabelValues(task).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (t *Telemetry) Handler() http.Handler {
	if t == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics unavailable"))
		})
	}
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}
