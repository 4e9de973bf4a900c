package impl

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	interf "github.com/pagewright/pagecache/interfaces"
)

type config struct {
	frameCount int
	pageSize   int
	debugLvl   int
	logger     logrus.FieldLogger
	registerer prometheus.Registerer
	thresholds map[interf.Policy]int
}

func defaultConfig() *config {
	return &config{
		frameCount: interf.NumFrames,
		pageSize:   interf.PageSize,
		debugLvl:   DebugOff,
		logger:     logrus.StandardLogger(),
		thresholds: map[interf.Policy]int{
			interf.PolicyKeep: interf.KeepThreshold,
			interf.PolicyLRU:  interf.LRUThreshold,
			interf.PolicyFIFO: interf.FIFOThreshold,
		},
	}
}

// Option configures an Engine at construction time.
type Option func(*config)

// WithFrameCount overrides the number of frames in the pool. The
// default is interf.NumFrames.
func WithFrameCount(n int) Option {
	return func(c *config) { c.frameCount = n }
}

// WithPageSize overrides the fixed page size. The default is
// interf.PageSize; every resident page is exactly this many bytes.
func WithPageSize(n int) Option {
	return func(c *config) { c.pageSize = n }
}

// WithPolicyThreshold overrides p's resident-page threshold in the
// engine-wide policy table it backs; eviction chains compare against
// this value regardless of which descriptor's policy triggered them.
func WithPolicyThreshold(p interf.Policy, n int) Option {
	return func(c *config) { c.thresholds[p] = n }
}

// WithLogger overrides the logger used for invariant violations and
// debug-level worker tracing. The default is logrus' standard logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *config) { c.logger = l }
}

// WithMetrics registers the engine's Prometheus collectors against reg.
// Metrics are disabled (a no-op) if this option is never supplied.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *config) { c.registerer = reg }
}

// WithDebugLevel sets the initial debug logging verbosity; see
// DebugOff/DebugLow/DebugHigh.
func WithDebugLevel(lvl int) Option {
	return func(c *config) { c.debugLvl = lvl }
}
