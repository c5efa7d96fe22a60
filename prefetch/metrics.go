package prefetch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pagesDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tsodbc_prefetch_pages_delivered_total",
		Help: "Pages handed to consumers by prefetch queues",
	})
	pagesDiscarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tsodbc_prefetch_pages_discarded_total",
		Help: "Page results that arrived after their queue was reset",
	})
	queueResets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tsodbc_prefetch_resets_total",
		Help: "Prefetch queue resets, usually caused by cancel or close",
	})
	continuationsParked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tsodbc_prefetch_continuations_parked_total",
		Help: "Next-page requests held back until the consumer caught up",
	})
	popWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tsodbc_prefetch_pop_wait_seconds",
		Help:    "Time consumers spent blocked waiting for a page",
		Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
	})
	pageLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tsodbc_prefetch_page_latency_seconds",
		Help:    "Time from queueing a page request to its result arriving",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	})
)
