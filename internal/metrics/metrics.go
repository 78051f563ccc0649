package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_ioc_queries_total",
			Help: "IOC queries by overall verdict",
		},
		[]string{"verdict"},
	)

	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_cache_hits_total",
			Help: "Result cache hits by tier",
		},
		[]string{"tier"},
	)

	SourceCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_source_calls_total",
			Help: "Per-source adapter outcomes",
		},
		[]string{"source", "status"},
	)

	SchedulerTicks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vigil_scheduler_ticks_total",
			Help: "Completed scheduler ticks",
		},
	)

	ItemsChecked = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vigil_watchlist_items_checked_total",
			Help: "Watchlist item checks, scheduled and manual",
		},
	)

	AlertsRaised = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_alerts_raised_total",
			Help: "Alerts raised by severity",
		},
		[]string{"severity"},
	)
)
