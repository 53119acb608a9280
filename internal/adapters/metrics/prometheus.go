package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the node's Prometheus metrics on a private registry.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	Positions      prometheus.Gauge
	Liquidations   prometheus.Gauge
	ScannerCycles  prometheus.Counter
	ScannerRetries prometheus.Counter
	Attempts       *prometheus.CounterVec
	Skipped        *prometheus.CounterVec
	WalletQueue    *prometheus.GaugeVec
}

// New creates and registers all collectors.
func New() *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}

	c.Positions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sovryn_node",
		Subsystem: "scanner",
		Name:      "open_positions",
		Help:      "Open positions seen by the scanner",
	})
	c.Liquidations = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sovryn_node",
		Subsystem: "scanner",
		Name:      "liquidatable_positions",
		Help:      "Positions currently flagged for liquidation",
	})
	c.ScannerCycles = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sovryn_node",
		Subsystem: "scanner",
		Name:      "cycles_total",
		Help:      "Completed full position sweeps",
	})
	c.ScannerRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sovryn_node",
		Subsystem: "scanner",
		Name:      "page_retries_total",
		Help:      "Page reads retried after a node failure",
	})
	c.Attempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sovryn_node",
		Subsystem: "engine",
		Name:      "attempts_total",
		Help:      "Submitted transactions by engine and outcome",
	}, []string{"engine", "status"})
	c.Skipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sovryn_node",
		Subsystem: "engine",
		Name:      "skipped_total",
		Help:      "Opportunities skipped before submission, by engine and reason",
	}, []string{"engine", "reason"})
	c.WalletQueue = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "sovryn_node",
		Subsystem: "wallet",
		Name:      "pending_transactions",
		Help:      "In-flight transactions per wallet",
	}, []string{"role", "address"})

	c.registry.MustRegister(
		c.Positions, c.Liquidations, c.ScannerCycles, c.ScannerRetries,
		c.Attempts, c.Skipped, c.WalletQueue,
	)
	return c
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// SetBook records the current map sizes.
func (c *Collector) SetBook(positions, liquidations int) {
	if c == nil {
		return
	}
	c.Positions.Set(float64(positions))
	c.Liquidations.Set(float64(liquidations))
}

// CycleDone counts a completed sweep.
func (c *Collector) CycleDone() {
	if c == nil {
		return
	}
	c.ScannerCycles.Inc()
}

// PageRetry counts a retried page read.
func (c *Collector) PageRetry() {
	if c == nil {
		return
	}
	c.ScannerRetries.Inc()
}

// Attempt counts a submitted transaction.
func (c *Collector) Attempt(engine, status string) {
	if c == nil {
		return
	}
	c.Attempts.WithLabelValues(engine, status).Inc()
}

// Skip counts an opportunity dropped before submission.
func (c *Collector) Skip(engine, reason string) {
	if c == nil {
		return
	}
	c.Skipped.WithLabelValues(engine, reason).Inc()
}

// SetQueue records a wallet's pending queue length.
func (c *Collector) SetQueue(role, address string, n int) {
	if c == nil {
		return
	}
	c.WalletQueue.WithLabelValues(role, address).Set(float64(n))
}
