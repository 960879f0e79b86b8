package queue

import "github.com/prometheus/client_golang/prometheus"

var (
	// depth gauges admitted tasks waiting to start, per queue.
	depth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "waitlist_queue_depth",
			Help: "Number of admitted tasks waiting to run.",
		},
		[]string{"queue"},
	)

	// tasks counts finished tasks by result ("ok" or "error").
	tasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waitlist_queue_tasks_total",
			Help: "Total number of queue tasks run, by result.",
		},
		[]string{"queue", "result"},
	)

	// rejected counts refused submissions by reason ("closed" or "full").
	rejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waitlist_queue_rejected_total",
			Help: "Total number of submissions refused by the queue.",
		},
		[]string{"queue", "reason"},
	)
)

func init() {
	prometheus.MustRegister(depth, tasks, rejected)
}
