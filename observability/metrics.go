package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	framesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nostrbot",
			Subsystem: "relay",
			Name:      "frames_received_total",
			Help:      "Frames read from relay streams.",
		},
		[]string{"relay", "type"},
	)
	sinkWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nostrbot",
			Subsystem: "relay",
			Name:      "sink_writes_total",
			Help:      "Outbound frame writes per relay.",
		},
		[]string{"relay", "success"},
	)
	relaysConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "nostrbot",
			Subsystem: "relay",
			Name:      "connected",
			Help:      "Relays with a live connection.",
		},
	)
	eventsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nostrbot",
			Subsystem: "dispatch",
			Name:      "events_rejected_total",
			Help:      "Inbound events dropped before reaching a handler.",
		},
		[]string{"reason"},
	)
	commandsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nostrbot",
			Subsystem: "dispatch",
			Name:      "commands_total",
			Help:      "Command handler invocations.",
		},
		[]string{"trigger", "outcome"},
	)
	commandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "nostrbot",
			Subsystem: "dispatch",
			Name:      "command_duration_seconds",
			Help:      "Handler run time including the wait for the state lock.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"trigger"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(framesReceived, sinkWrites, relaysConnected,
			eventsRejected, commandsDispatched, commandDuration)
	})
}

func RecordFrame(relay, frameType string) {
	RegisterMetrics()
	framesReceived.WithLabelValues(relay, frameType).Inc()
}

func RecordSinkWrite(relay string, success bool) {
	RegisterMetrics()
	sinkWrites.WithLabelValues(relay, strconv.FormatBool(success)).Inc()
}

func SetRelaysConnected(n int) {
	RegisterMetrics()
	relaysConnected.Set(float64(n))
}

func RecordRejected(reason string) {
	RegisterMetrics()
	eventsRejected.WithLabelValues(reason).Inc()
}

func RecordCommand(trigger, outcome string, duration time.Duration) {
	RegisterMetrics()
	commandsDispatched.WithLabelValues(trigger, outcome).Inc()
	commandDuration.WithLabelValues(trigger).Observe(duration.Seconds())
}

// Handler serves /metrics and /health.
func Handler() http.Handler {
	RegisterMetrics()
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}
