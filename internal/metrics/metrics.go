// Package metrics exposes Prometheus counters for the trading loop.
//
//   - kistrader_cycles_total{outcome}          decision cycles by final gate
//   - kistrader_cycle_duration_seconds         wall time of a cycle
//   - kistrader_orders_total{side,result}      order submissions
//   - kistrader_token_refresh_total{result}    token endpoint calls
//   - kistrader_calendar_fetch_total{result}   holiday page fetches
//   - kistrader_broker_calls_total{endpoint,result}
//   - kistrader_positions                      held positions at last evaluation
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	cycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kistrader_cycles_total",
			Help: "Decision cycles by outcome",
		},
		[]string{"outcome"},
	)

	cycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kistrader_cycle_duration_seconds",
			Help:    "Duration of a decision cycle",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
	)

	orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kistrader_orders_total",
			Help: "Orders submitted by side and result",
		},
		[]string{"side", "result"},
	)

	tokenRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kistrader_token_refresh_total",
			Help: "Access token requests by result",
		},
		[]string{"result"},
	)

	calendarFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kistrader_calendar_fetch_total",
			Help: "Holiday calendar fetches by result",
		},
		[]string{"result"},
	)

	brokerCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kistrader_broker_calls_total",
			Help: "Broker REST calls by endpoint and result",
		},
		[]string{"endpoint", "result"},
	)

	positions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kistrader_positions",
			Help: "Held positions at the last evaluation",
		},
	)
)

func init() {
	prometheus.MustRegister(cycles, cycleDuration, orders)
	prometheus.MustRegister(tokenRefreshes, calendarFetches, brokerCalls, positions)
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// ObserveCycle counts a finished cycle under its outcome and records its wall time.
func ObserveCycle(outcome string, d time.Duration) {
	cycles.WithLabelValues(outcome).Inc()
	cycleDuration.Observe(d.Seconds())
}

// IncOrder counts an order submission by side and broker verdict.
func IncOrder(side string, ok bool) { orders.WithLabelValues(side, result(ok)).Inc() }

// IncTokenRefresh counts a token endpoint call.
func IncTokenRefresh(ok bool) { tokenRefreshes.WithLabelValues(result(ok)).Inc() }

// IncCalendarFetch counts a holiday page fetch.
func IncCalendarFetch(ok bool) { calendarFetches.WithLabelValues(result(ok)).Inc() }

// IncBrokerCall counts one broker HTTP call by endpoint.
func IncBrokerCall(endpoint string, ok bool) { brokerCalls.WithLabelValues(endpoint, result(ok)).Inc() }

// SetPositions records the number of positions seen at the last evaluation.
func SetPositions(n int) { positions.Set(float64(n)) }

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler { return promhttp.Handler() }
