package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsQueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parakarry_events_queued_total",
		Help: "Platform events accepted onto the dispatch queue, by type.",
	}, []string{"type"})
	eventErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parakarry_event_errors_total",
		Help: "Events whose handler returned an error, by type.",
	}, []string{"type"})
)
