package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	threadsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parakarry_threads_opened_total",
		Help: "Number of modmail threads created.",
	})
	threadsClosed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parakarry_threads_closed_total",
		Help: "Number of modmail threads closed.",
	})
	messagesAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parakarry_messages_appended_total",
		Help: "Transcript entries appended, by message type.",
	}, []string{"type"})
)
