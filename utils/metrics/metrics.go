package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultNamespace prefixes every engine metric.
const DefaultNamespace = "dexarb"

type EngineMetrics struct {
	Cycles                prometheus.Counter
	CycleDuration         prometheus.Histogram
	VenueFetchLatency     *prometheus.HistogramVec
	VenueErrors           *prometheus.CounterVec
	VenuePools            *prometheus.GaugeVec
	PoolsSkipped          *prometheus.CounterVec
	OpportunitiesDetected prometheus.Counter
	OpportunitiesRejected *prometheus.CounterVec
	ProfitableOpps        prometheus.Counter
	Executions            *prometheus.CounterVec
	RealizedDelta         prometheus.Gauge
	FlashLoans            *prometheus.CounterVec
	GasPriceGwei          prometheus.Gauge
	EthPriceUSD           prometheus.Gauge
}

// NewEngineMetrics registers the engine metrics with reg, or the default
// registerer when reg is nil.
func NewEngineMetrics(namespace string, reg prometheus.Registerer) *EngineMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &EngineMetrics{
		Cycles: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Total number of scan cycles",
		}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a full scan cycle",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		VenueFetchLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "venue_fetch_seconds",
			Help:      "Price fetch latency per venue",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"venue"}),
		VenueErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "venue_errors_total",
			Help:      "Venue fetch failures by error kind",
		}, []string{"venue", "kind"}),
		VenuePools: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "venue_pools",
			Help:      "Pools that passed filters in the last cycle",
		}, []string{"venue"}),
		PoolsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pools_skipped_total",
			Help:      "Pools skipped because of per-pool errors",
		}, []string{"venue"}),
		OpportunitiesDetected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "opportunities_detected_total",
			Help:      "Opportunities emitted by the detector",
		}),
		OpportunitiesRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "opportunities_rejected_total",
			Help:      "Candidate pairs rejected, by reason",
		}, []string{"reason"}),
		ProfitableOpps: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "opportunities_profitable_total",
			Help:      "Opportunities profitable after estimated costs",
		}),
		Executions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_total",
			Help:      "Executions by strategy and terminal state",
		}, []string{"strategy", "state"}),
		RealizedDelta: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_realized_delta",
			Help:      "Input token balance change of the last settled trade, in token units",
		}),
		FlashLoans: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flash_loans_total",
			Help:      "Flash loan requests by result",
		}, []string{"result"}),
		GasPriceGwei: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gas_price_gwei",
			Help:      "Gas price used by the last estimate",
		}),
		EthPriceUSD: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "eth_price_usd",
			Help:      "ETH price used by the last estimate",
		}),
	}
}

type RuntimeMetrics struct {
	Goroutines  prometheus.Gauge
	HeapAlloc   prometheus.Gauge
	HeapObjects prometheus.Gauge
	GCPause     prometheus.Gauge
}

func NewRuntimeMetrics(namespace string, reg prometheus.Registerer) *RuntimeMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &RuntimeMetrics{
		Goroutines: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "goroutines",
			Help:      "Number of goroutines",
		}),
		HeapAlloc: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "heap_alloc_bytes",
			Help:      "Heap allocation in bytes",
		}),
		HeapObjects: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "heap_objects",
			Help:      "Number of heap objects",
		}),
		GCPause: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gc_pause_seconds",
			Help:      "Most recent GC pause",
		}),
	}
}
