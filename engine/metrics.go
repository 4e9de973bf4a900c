package impl

import "github.com/prometheus/client_golang/prometheus"

// metrics bundles the Prometheus collectors the engine updates on the
// hot path, grouped the way the rest of the module's collectors are:
// one vector per operation family, labeled by outcome rather than by
// file (file-cardinality labels would make the vectors unbounded).
type metrics struct {
	ops       *prometheus.CounterVec   // labels: op, result
	ioLatency *prometheus.HistogramVec // labels: op
	frames    *prometheus.GaugeVec     // labels: state (free, resident, dirty)
	evictions *prometheus.CounterVec   // labels: policy
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pagecache",
			Name:      "ops_total",
			Help:      "Cache engine operations by kind and result.",
		}, []string{"op", "result"}),
		ioLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pagecache",
			Name:      "io_latency_seconds",
			Help:      "Backend I/O latency by control-queue operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		frames: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "pagecache",
			Name:      "frames",
			Help:      "Frame pool occupancy by state.",
		}, []string{"state"}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pagecache",
			Name:      "evictions_total",
			Help:      "Pages evicted from the frame pool by policy.",
		}, []string{"policy"}),
	}
	if reg != nil {
		reg.MustRegister(m.ops, m.ioLatency, m.frames, m.evictions)
	}
	return m
}

func (m *metrics) observeOp(op, result string) {
	if m == nil {
		return
	}
	m.ops.WithLabelValues(op, result).Inc()
}

func (m *metrics) observeIO(op string, seconds float64) {
	if m == nil {
		return
	}
	m.ioLatency.WithLabelValues(op).Observe(seconds)
}

func (m *metrics) setFrames(state string, n float64) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(state).Set(n)
}

func (m *metrics) observeEviction(policy string) {
	if m == nil {
		return
	}
	m.evictions.WithLabelValues(policy).Inc()
}
