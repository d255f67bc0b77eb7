package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vango-dev/sqmean/pkg/conn"
	"github.com/vango-dev/sqmean/pkg/dump"
)

// Metrics holds the Prometheus collectors for the whole pipeline.
// It observes connections, the registry loop and the dump worker.
type Metrics struct {
	accepted     prometheus.Counter
	acceptErrors prometheus.Counter
	live         prometheus.Gauge
	reaped       *prometheus.CounterVec
	recorded     prometheus.Counter
	meansSent    prometheus.Counter
	ioBytes      *prometheus.CounterVec
	ioErrors     *prometheus.CounterVec
	snapshots    prometheus.Counter
	tickDuration prometheus.Histogram
	dumpWrites   *prometheus.CounterVec
	dumpDuration prometheus.Histogram
	dumpDropped  prometheus.Counter
}

// NewRegistry returns a Prometheus registry with Go runtime and process
// collectors registered.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// NewMetrics creates and registers all collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	const ns = "sqmean"

	return &Metrics{
		accepted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "connections_accepted_total",
			Help:      "Total number of accepted TCP connections",
		}),
		acceptErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "accept_errors_total",
			Help:      "Total number of failed accepts",
		}),
		live: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "connections_live",
			Help:      "Number of connections owned by the registry",
		}),
		reaped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "connections_reaped_total",
			Help:      "Total number of reaped connections by terminal status",
		}, []string{"status"}),
		recorded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "values_recorded_total",
			Help:      "Total number of values recorded by the aggregator",
		}),
		meansSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "means_sent_total",
			Help:      "Total number of mean responses started",
		}),
		ioBytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "io_bytes_total",
			Help:      "Total bytes transferred by direction",
		}, []string{"direction"}),
		ioErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "io_errors_total",
			Help:      "Total failed operations by direction and resulting status",
		}, []string{"direction", "status"}),
		snapshots: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "snapshots_total",
			Help:      "Total number of aggregate snapshots handed to the dump worker",
		}),
		tickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "registry_tick_duration_seconds",
			Help:      "Time spent in one registry tick",
			Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
		}),
		dumpWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "dump_writes_total",
			Help:      "Total store writes by result",
		}, []string{"result"}),
		dumpDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "dump_write_duration_seconds",
			Help:      "Store write latency",
			Buckets:   prometheus.DefBuckets,
		}),
		dumpDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "dump_blocks_discarded_total",
			Help:      "Blocks discarded because an earlier block for the same connection was pending",
		}),
	}
}

// ConnectionAccepted counts a successful accept.
func (m *Metrics) ConnectionAccepted() { m.accepted.Inc() }

// AcceptFailed counts a failed accept.
func (m *Metrics) AcceptFailed() { m.acceptErrors.Inc() }

// OpDone implements conn.Observer.
func (m *Metrics) OpDone(dir conn.Direction, n int, status conn.Status, err error) {
	if n > 0 {
		m.ioBytes.WithLabelValues(string(dir)).Add(float64(n))
	}
	if err != nil {
		m.ioErrors.WithLabelValues(string(dir), status.String()).Inc()
	}
}

// Registered implements registry.Observer.
func (m *Metrics) Registered(uint64) { m.live.Inc() }

// Reaped implements registry.Observer.
func (m *Metrics) Reaped(_ uint64, read, write conn.Status) {
	m.live.Dec()
	status := read
	if !status.Terminal() {
		status = write
	}
	m.reaped.WithLabelValues(status.String()).Inc()
}

// ValueRecorded implements registry.Observer.
func (m *Metrics) ValueRecorded(uint64, uint32) { m.recorded.Inc() }

// MeanSent implements registry.Observer.
func (m *Metrics) MeanSent(uint64, uint64) { m.meansSent.Inc() }

// SnapshotsTaken implements registry.Observer.
func (m *Metrics) SnapshotsTaken(n int) { m.snapshots.Add(float64(n)) }

// TickDone implements registry.Observer.
func (m *Metrics) TickDone(elapsed time.Duration) { m.tickDuration.Observe(elapsed.Seconds()) }

// BlockWritten implements dump.Observer.
func (m *Metrics) BlockWritten(_ dump.Block, elapsed time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.dumpWrites.WithLabelValues(result).Inc()
	m.dumpDuration.Observe(elapsed.Seconds())
}

// BlocksDiscarded implements dump.Observer.
func (m *Metrics) BlocksDiscarded(n int) { m.dumpDropped.Add(float64(n)) }

// resetLive zeroes the live gauge after shutdown closed every connection.
func (m *Metrics) resetLive() { m.live.Set(0) }
