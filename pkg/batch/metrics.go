package batch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SavesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "itemsync_batch_saves_total",
		Help: "Total number of batch saves by save mode",
	}, []string{"mode", "dry_run"})

	ItemsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "itemsync_items_created_total",
		Help: "Total number of items created in the remote store",
	})

	ItemOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "itemsync_item_outcomes_total",
		Help: "Per-item save outcomes",
	}, []string{"outcome"})

	SaveDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "itemsync_batch_save_duration_seconds",
		Help:    "Duration of batch saves",
		Buckets: prometheus.DefBuckets,
	}, []string{"mode"})
)
