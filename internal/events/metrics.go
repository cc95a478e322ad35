package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	subscribersGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "imagehost_hub_subscribers",
		Help: "Currently connected stream subscribers",
	})

	publishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "imagehost_hub_events_published_total",
		Help: "Events delivered to subscriber queues, by kind",
	}, []string{"kind"})

	droppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imagehost_hub_subscribers_dropped_total",
		Help: "Subscribers removed because their queue was full or their transport failed",
	})
)
