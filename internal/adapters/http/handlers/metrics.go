package handlers

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// CollectionStats reports the collection size and how many quotes are
// still unsynced. *app.QuoteService.Len matches it.
type CollectionStats func(ctx context.Context) (total, pending int)

// collectionCollector exposes the collection size at scrape time.
type collectionCollector struct {
	stats CollectionStats
	desc  *prometheus.Desc
}

// NewCollectionCollector returns a collector for quotesync_quotes{state}.
// state is "synced" or "pending".
func NewCollectionCollector(stats CollectionStats) prometheus.Collector {
	return &collectionCollector{
		stats: stats,
		desc: prometheus.NewDesc(
			"quotesync_quotes",
			"Quotes in the local collection by sync state.",
			[]string{"state"}, nil,
		),
	}
}

func (c *collectionCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *collectionCollector) Collect(ch chan<- prometheus.Metric) {
	total, pending := c.stats(context.Background())

	ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(total-pending), "synced")
	ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(pending), "pending")
}
