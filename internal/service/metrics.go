package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	revisionsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_revisions_published_total",
		Help: "Revisions successfully applied to their parent product",
	})
	revisionsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_revisions_failed_total",
		Help: "Revision apply attempts that failed and were rolled back",
	})
	revisionsLocked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_revisions_locked_total",
		Help: "Due revisions skipped because the product lock was held",
	})
	applyDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "scheduler_apply_duration_seconds",
		Help:    "Duration of single revision apply attempts",
		Buckets: prometheus.DefBuckets,
	})
)
