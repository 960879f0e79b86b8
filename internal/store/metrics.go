package store

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// storeAppends counts append attempts by result ("ok" or "error").
	storeAppends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waitlist_store_appends_total",
			Help: "Total number of store append operations by result.",
		},
		[]string{"result"},
	)

	// storeAppendDur records the full read-rewrite-rename cycle.
	storeAppendDur = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "waitlist_store_append_duration_seconds",
			Help:    "Duration of store append operations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms..10s
		},
	)

	// storeRows is the data row count of the last committed file.
	storeRows = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "waitlist_store_rows",
			Help: "Number of data rows in the last committed store file.",
		},
	)
)

func init() {
	prometheus.MustRegister(storeAppends, storeAppendDur, storeRows)
}

func observeAppend(start time.Time, err error) {
	storeAppendDur.Observe(time.Since(start).Seconds())
	if err != nil {
		storeAppends.WithLabelValues("error").Inc()
		return
	}
	storeAppends.WithLabelValues("ok").Inc()
}
