package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	framesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pgplink",
			Subsystem: "tx",
			Name:      "frames_total",
			Help:      "Frames submitted to the link per traffic kind.",
		},
		[]string{"device", "kind"},
	)
	busyRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pgplink",
			Subsystem: "tx",
			Name:      "busy_retries_total",
			Help:      "Send attempts retried after a transient busy.",
		},
		[]string{"device"},
	)
	busyDrops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pgplink",
			Subsystem: "tx",
			Name:      "busy_drops_total",
			Help:      "Single-attempt sends dropped on transient busy.",
		},
		[]string{"device", "kind"},
	)
	framesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pgplink",
			Subsystem: "rx",
			Name:      "frames_total",
			Help:      "Frames received per classification.",
		},
		[]string{"device", "class"},
	)
	rxErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pgplink",
			Subsystem: "rx",
			Name:      "errors_total",
			Help:      "Frames dropped for integrity failures.",
		},
		[]string{"device"},
	)
	unexpectedFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pgplink",
			Subsystem: "rx",
			Name:      "unexpected_total",
			Help:      "Control frames matching no outstanding request.",
		},
		[]string{"device"},
	)
	replyOverflows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pgplink",
			Subsystem: "rx",
			Name:      "reply_overflows_total",
			Help:      "Register replies rejected for exceeding buffer capacity.",
		},
		[]string{"device"},
	)
	dataQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "pgplink",
			Subsystem: "rx",
			Name:      "data_queue_depth",
			Help:      "Received data frames awaiting the consumer.",
		},
		[]string{"device"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			framesSent, busyRetries, busyDrops,
			framesReceived, rxErrors, unexpectedFrames, replyOverflows,
			dataQueueDepth,
		)
	})
}

func RecordFrameSent(device, kind string) {
	RegisterMetrics()
	framesSent.WithLabelValues(device, kind).Inc()
}

func RecordBusyRetry(device string) {
	RegisterMetrics()
	busyRetries.WithLabelValues(device).Inc()
}

func RecordBusyDrop(device, kind string) {
	RegisterMetrics()
	busyDrops.WithLabelValues(device, kind).Inc()
}

func RecordFrameReceived(device, class string) {
	RegisterMetrics()
	framesReceived.WithLabelValues(device, class).Inc()
}

func RecordRxError(device string) {
	RegisterMetrics()
	rxErrors.WithLabelValues(device).Inc()
}

func RecordUnexpectedFrame(device string) {
	RegisterMetrics()
	unexpectedFrames.WithLabelValues(device).Inc()
}

func RecordReplyOverflow(device string) {
	RegisterMetrics()
	replyOverflows.WithLabelValues(device).Inc()
}

func SetDataQueueDepth(device string, depth int) {
	RegisterMetrics()
	dataQueueDepth.WithLabelValues(device).Set(float64(depth))
}
