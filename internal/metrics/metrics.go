// Package metrics holds the Prometheus collectors for the control process.
// Everything is registered in init() and served from /metrics.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "control_http_requests_total",
			Help: "HTTP requests handled, by route and status code",
		},
		[]string{"route", "status"},
	)

	commandsEnqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "control_commands_enqueued_total",
			Help: "Commands appended to the bot command queue, by type",
		},
		[]string{"type"},
	)

	storeErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "control_store_errors_total",
			Help: "Store operations that failed with an I/O error",
		},
	)

	botOffline = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "control_bot_offline",
			Help: "1 when the bot status snapshot is stale, 0 otherwise",
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequests, commandsEnqueued, storeErrors, botOffline)
}

// IncRequest counts one handled HTTP request.
func IncRequest(route string, status int) {
	httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// IncCommand counts one enqueued command.
func IncCommand(cmdType string) {
	commandsEnqueued.WithLabelValues(cmdType).Inc()
}

// IncStoreError counts one failed store operation.
func IncStoreError() {
	storeErrors.Inc()
}

// SetBotOffline mirrors the staleness detector's verdict into a gauge.
func SetBotOffline(offline bool) {
	if offline {
		botOffline.Set(1)
	} else {
		botOffline.Set(0)
	}
}
