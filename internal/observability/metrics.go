// Package observability carries the bridge's prometheus counters and the
// request instrumentation for the optional status endpoint.
package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	bytesRead = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simbridge",
			Subsystem: "socket",
			Name:      "bytes_read_total",
			Help:      "Bytes read from peers.",
		},
		[]string{"socket"},
	)
	bytesWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simbridge",
			Subsystem: "socket",
			Name:      "bytes_written_total",
			Help:      "Bytes written to peers.",
		},
		[]string{"socket"},
	)
	connections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simbridge",
			Subsystem: "socket",
			Name:      "connections_total",
			Help:      "Peer connections established.",
		},
		[]string{"socket", "role"},
	)
	disconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simbridge",
			Subsystem: "socket",
			Name:      "disconnects_total",
			Help:      "Peer connections torn down after a hard failure or close.",
		},
		[]string{"socket", "role"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simbridge",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Status endpoint requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "simbridge",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Status endpoint request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(bytesRead, bytesWritten, connections, disconnects, httpRequests, httpDuration)
	})
}

func RecordBytesRead(socket string, n int) {
	RegisterMetrics()
	bytesRead.WithLabelValues(socket).Add(float64(n))
}

func RecordBytesWritten(socket string, n int) {
	RegisterMetrics()
	bytesWritten.WithLabelValues(socket).Add(float64(n))
}

func RecordConnection(socket, role string) {
	RegisterMetrics()
	connections.WithLabelValues(socket, role).Inc()
}

func RecordDisconnect(socket, role string) {
	RegisterMetrics()
	disconnects.WithLabelValues(socket, role).Inc()
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}
