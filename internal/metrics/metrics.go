// Package metrics holds the Prometheus series updated by mirror tasks.
//
//   - mirror_orders_total{action,position_side,status}  orders by outcome (submitted|failed|skipped)
//   - mirror_events_total{result}                       scraped rows by result (accepted|dropped|invalid)
//   - mirror_cycles_total                               completed poll cycles
//   - mirror_recoveries_total                           session rebuilds after a failed cycle
//   - mirror_tasks_running                              live tasks
//
// Served at /metrics by the control API.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	Orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirror_orders_total",
			Help: "Mirrored orders by action, position side and outcome",
		},
		[]string{"action", "position_side", "status"},
	)

	Events = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirror_events_total",
			Help: "Scraped trade rows by filter result",
		},
		[]string{"result"},
	)

	Cycles = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mirror_cycles_total",
			Help: "Completed poll cycles across all tasks",
		},
	)

	Recoveries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mirror_recoveries_total",
			Help: "Page session rebuilds after a failed cycle",
		},
	)

	TasksRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mirror_tasks_running",
			Help: "Mirror tasks currently running",
		},
	)
)

func init() {
	prometheus.MustRegister(Orders, Events, Cycles, Recoveries, TasksRunning)
}
