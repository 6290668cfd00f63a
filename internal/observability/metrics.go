package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wavectl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wavectl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	framesTx = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wavectl",
			Subsystem: "link",
			Name:      "frames_tx_total",
			Help:      "Frames transmitted, by packet kind.",
		},
		[]string{"kind"},
	)
	framesRx = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wavectl",
			Subsystem: "link",
			Name:      "frames_rx_total",
			Help:      "Frames received, by packet kind.",
		},
		[]string{"kind"},
	)
	framesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wavectl",
			Subsystem: "link",
			Name:      "frames_dropped_total",
			Help:      "Frames dropped before touching session state, by reason.",
		},
		[]string{"reason"},
	)
	fecRecoveries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "wavectl",
			Subsystem: "fec",
			Name:      "chunks_recovered_total",
			Help:      "Chunks reconstructed from parity.",
		},
	)
	sessionOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wavectl",
			Subsystem: "session",
			Name:      "outcomes_total",
			Help:      "Receive sessions closed, by outcome.",
		},
		[]string{"outcome"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			framesTx, framesRx, framesDropped,
			fecRecoveries, sessionOutcomes,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordFrameTx(kind string) {
	RegisterMetrics()
	framesTx.WithLabelValues(kind).Inc()
}

func RecordFrameRx(kind string) {
	RegisterMetrics()
	framesRx.WithLabelValues(kind).Inc()
}

func RecordFrameDrop(reason string) {
	RegisterMetrics()
	framesDropped.WithLabelValues(reason).Inc()
}

func RecordFECRecovery(chunks int) {
	if chunks <= 0 {
		return
	}
	RegisterMetrics()
	fecRecoveries.Add(float64(chunks))
}

// Session outcomes: delivered, aborted_hash, aborted_timeout.
func RecordSessionOutcome(outcome string) {
	RegisterMetrics()
	sessionOutcomes.WithLabelValues(outcome).Inc()
}
