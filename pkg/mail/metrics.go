package mail

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	relaysTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parakarry_relays_total",
		Help: "Messages relayed through the engine, by direction.",
	}, []string{"direction"})
	deliveryFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parakarry_delivery_failures_total",
		Help: "DM deliveries to recipients that failed.",
	})
	pendingClosures = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "parakarry_pending_closures",
		Help: "Threads with a scheduled close currently pending.",
	})
)
