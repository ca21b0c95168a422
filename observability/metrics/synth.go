package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type SynthMetrics struct {
	operations    *prometheus.CounterVec
	failures      *prometheus.CounterVec
	liquidations  prometheus.Counter
	deposited     *prometheus.GaugeVec
	issuedSupply  prometheus.Gauge
	staleQuotes   *prometheus.CounterVec
	rpcRequests   *prometheus.CounterVec
	rpcLatency    *prometheus.HistogramVec
	rpcThrottlers *prometheus.CounterVec
}

var (
	synthOnce     sync.Once
	synthRegistry *SynthMetrics
)

func Synth() *SynthMetrics {
	synthOnce.Do(func() {
		synthRegistry = &SynthMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "synth_operations_total",
				Help: "Count of committed engine operations by kind.",
			}, []string{"op"}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "synth_operation_failures_total",
				Help: "Count of rejected engine operations by kind and reason.",
			}, []string{"op", "reason"}),
			liquidations: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "synth_liquidations_total",
				Help: "Count of completed liquidations.",
			}),
			deposited: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "synth_total_deposited",
				Help: "Collateral held in custody per asset, in whole units.",
			}, []string{"asset"}),
			issuedSupply: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "synth_issued_supply",
				Help: "Outstanding synthetic supply in whole units.",
			}),
			staleQuotes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "synth_stale_quotes_total",
				Help: "Operations rejected because a price feed was stale.",
			}, []string{"feed"}),
			rpcRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "synth_rpc_requests_total",
				Help: "Count of RPC requests by method and outcome.",
			}, []string{"method", "outcome"}),
			rpcLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "synth_rpc_latency_seconds",
				Help:    "RPC handler latency by method.",
				Buckets: prometheus.DefBuckets,
			}, []string{"method"}),
			rpcThrottlers: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "synth_rpc_throttled_total",
				Help: "RPC requests rejected by the rate limiter.",
			}, []string{"method"}),
		}
		prometheus.MustRegister(
			synthRegistry.operations,
			synthRegistry.failures,
			synthRegistry.liquidations,
			synthRegistry.deposited,
			synthRegistry.issuedSupply,
			synthRegistry.staleQuotes,
			synthRegistry.rpcRequests,
			synthRegistry.rpcLatency,
			synthRegistry.rpcThrottlers,
		)
	})
	return synthRegistry
}

func (m *SynthMetrics) ObserveOperation(op string) {
	if m == nil {
		return
	}
	if op == "" {
		op = "unknown"
	}
	m.operations.WithLabelValues(op).Inc()
}

func (m *SynthMetrics) ObserveFailure(op, reason string) {
	if m == nil {
		return
	}
	if op == "" {
		op = "unknown"
	}
	if reason == "" {
		reason = "unknown"
	}
	m.failures.WithLabelValues(op, reason).Inc()
}

func (m *SynthMetrics) ObserveLiquidation() {
	if m == nil {
		return
	}
	m.liquidations.Inc()
}

func (m *SynthMetrics) SetTotalDeposited(asset string, amount float64) {
	if m == nil {
		return
	}
	if asset == "" {
		asset = "unknown"
	}
	m.deposited.WithLabelValues(asset).Set(amount)
}

func (m *SynthMetrics) SetIssuedSupply(amount float64) {
	if m == nil {
		return
	}
	m.issuedSupply.Set(amount)
}

func (m *SynthMetrics) IncStaleQuote(feed string) {
	if m == nil {
		return
	}
	if feed == "" {
		feed = "unknown"
	}
	m.staleQuotes.WithLabelValues(feed).Inc()
}

func (m *SynthMetrics) ObserveRPC(method, outcome string, seconds float64) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.rpcRequests.WithLabelValues(method, outcome).Inc()
	m.rpcLatency.WithLabelValues(method).Observe(seconds)
}

func (m *SynthMetrics) IncThrottled(method string) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	m.rpcThrottlers.WithLabelValues(method).Inc()
}
