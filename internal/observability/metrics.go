package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "volsync"

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total status server requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Status server request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	relayConnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "connects_total",
			Help:      "Successful relay connections.",
		},
	)
	relayDisconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "disconnects_total",
			Help:      "Ended relay sessions and failed dials by cause.",
		},
		[]string{"cause"},
	)
	backoffDelay = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "backoff_delay_seconds",
			Help:      "Delay before the next connection attempt.",
		},
	)
	intentsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "intents_sent_total",
			Help:      "Local volume changes sent to the relay.",
		},
	)
	volumeApplies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "volume_applies_total",
			Help:      "Relay volume updates by result.",
		},
		[]string{"result"},
	)
	peers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "peers",
			Help:      "Clients connected to the relay, as last reported.",
		},
	)
	localVolume = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "local_volume_percent",
			Help:      "Last observed local output volume.",
		},
	)
)

// Apply results.
const (
	ApplyOK      = "ok"
	ApplyInvalid = "invalid"
	ApplyFailed  = "backend_error"
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			relayConnects, relayDisconnects, backoffDelay,
			intentsSent, volumeApplies, peers, localVolume,
		)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

func RecordConnect() {
	RegisterMetrics()
	relayConnects.Inc()
}

func RecordDisconnect(cause string) {
	RegisterMetrics()
	relayDisconnects.WithLabelValues(cause).Inc()
}

func RecordBackoff(delay time.Duration) {
	RegisterMetrics()
	backoffDelay.Set(delay.Seconds())
}

func RecordIntentSent() {
	RegisterMetrics()
	intentsSent.Inc()
}

func RecordVolumeApply(result string) {
	RegisterMetrics()
	volumeApplies.WithLabelValues(result).Inc()
}

func SetPeers(n int) {
	RegisterMetrics()
	peers.Set(float64(n))
}

func SetLocalVolume(level int) {
	RegisterMetrics()
	localVolume.Set(float64(level))
}
