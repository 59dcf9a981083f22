package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ChannelStats are the per-channel message counters. Invalid is the sum
// of Malformed and Filtered.
type ChannelStats struct {
	Total         uint64
	Published     uint64
	Invalid       uint64
	Malformed     uint64
	Filtered      uint64
	PublishFailed uint64
	Resyncs       uint64
}

// Metrics holds the daemon counters. The in-process snapshot can be reset;
// the exported Prometheus counters are monotonic.
type Metrics struct {
	mutex    sync.RWMutex
	channels map[string]*ChannelStats

	RouteOperations int64
	SuccessfulOps   int64
	FailedOps       int64
	AverageOpTime   time.Duration
	LastUpdate      time.Time

	registry   *prometheus.Registry
	messages   *prometheus.CounterVec
	resyncs    *prometheus.CounterVec
	requests   *prometheus.CounterVec
	requestDur prometheus.Histogram
}

// Message outcomes used as the "outcome" label.
const (
	OutcomeReceived      = "received"
	OutcomePublished     = "published"
	OutcomeMalformed     = "malformed"
	OutcomeFiltered      = "filtered"
	OutcomePublishFailed = "publish_failed"
)

// NewMetrics creates a new metrics instance with its own registry
func NewMetrics() *Metrics {
	m := &Metrics{
		channels:   make(map[string]*ChannelStats),
		LastUpdate: time.Now(),
		registry:   prometheus.NewRegistry(),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "routesync_netlink_messages_total",
			Help: "Netlink messages read, broken down by channel and outcome.",
		}, []string{"channel", "outcome"}),
		resyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "routesync_resyncs_total",
			Help: "Full table dump requests issued, broken down by channel.",
		}, []string{"channel"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "routesync_requests_total",
			Help: "Write and read requests handled, broken down by operation and result.",
		}, []string{"op", "result"}),
		requestDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "routesync_request_duration_seconds",
			Help:    "Time from request receipt to kernel acknowledgement.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
	}
	m.registry.MustRegister(m.messages, m.resyncs, m.requests, m.requestDur)
	return m
}

func (m *Metrics) channel(name string) *ChannelStats {
	cs, ok := m.channels[name]
	if !ok {
		cs = &ChannelStats{}
		m.channels[name] = cs
	}
	return cs
}

// RecordMessage counts one message outcome on a channel. A message is
// recorded once as OutcomeReceived and once more with its result.
func (m *Metrics) RecordMessage(channel, outcome string) {
	m.mutex.Lock()
	cs := m.channel(channel)
	switch outcome {
	case OutcomeReceived:
		cs.Total++
	case OutcomePublished:
		cs.Published++
	case OutcomeMalformed:
		cs.Malformed++
		cs.Invalid++
	case OutcomeFiltered:
		cs.Filtered++
		cs.Invalid++
	case OutcomePublishFailed:
		cs.PublishFailed++
	}
	m.mutex.Unlock()

	m.messages.WithLabelValues(channel, outcome).Inc()
}

// RecordResync counts a full table dump request.
func (m *Metrics) RecordResync(channel string) {
	m.mutex.Lock()
	m.channel(channel).Resyncs++
	m.mutex.Unlock()

	m.resyncs.WithLabelValues(channel).Inc()
}

// RecordOperation records the outcome of a write or read request
func (m *Metrics) RecordOperation(op string, duration time.Duration, result string, success bool) {
	m.mutex.Lock()
	m.RouteOperations++
	if success {
		m.SuccessfulOps++
	} else {
		m.FailedOps++
	}
	if m.AverageOpTime == 0 {
		m.AverageOpTime = duration
	} else {
		m.AverageOpTime = (m.AverageOpTime + duration) / 2
	}
	m.LastUpdate = time.Now()
	m.mutex.Unlock()

	m.requests.WithLabelValues(op, result).Inc()
	m.requestDur.Observe(duration.Seconds())
}

// GetStats returns the request statistics
func (m *Metrics) GetStats() (int64, int64, int64, time.Duration) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return m.RouteOperations, m.SuccessfulOps, m.FailedOps, m.AverageOpTime
}

// Snapshot copies the per-channel counters.
func (m *Metrics) Snapshot() map[string]ChannelStats {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	out := make(map[string]ChannelStats, len(m.channels))
	for name, cs := range m.channels {
		out[name] = *cs
	}
	return out
}

// Reset clears the in-process counters.
func (m *Metrics) Reset() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.channels = make(map[string]*ChannelStats)
	m.RouteOperations, m.SuccessfulOps, m.FailedOps = 0, 0, 0
	m.AverageOpTime = 0
	m.LastUpdate = time.Now()
}

// Registry exposes the Prometheus registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the exported counters.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Format renders a snapshot as the table printed by the stats command.
func Format(snap map[string]ChannelStats) string {
	names := make([]string, 0, len(snap))
	for name := range snap {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "%-10s %10s %10s %10s %10s %10s %8s\n",
		"channel", "total", "published", "malformed", "filtered", "pub-failed", "resyncs")
	for _, name := range names {
		s := snap[name]
		fmt.Fprintf(&b, "%-10s %10d %10d %10d %10d %10d %8d\n",
			name, s.Total, s.Published, s.Malformed, s.Filtered, s.PublishFailed, s.Resyncs)
	}
	return b.String()
}
