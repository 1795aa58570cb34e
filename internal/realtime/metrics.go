package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricOnlineUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "communet",
		Subsystem: "presence",
		Name:      "online_users",
		Help:      "Number of users with a live websocket connection.",
	})

	metricMessagesRouted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "communet",
		Subsystem: "router",
		Name:      "messages_routed_total",
		Help:      "Messages accepted by the delivery router, by push outcome.",
	}, []string{"outcome"})

	metricPushesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "communet",
		Subsystem: "router",
		Name:      "pushes_dropped_total",
		Help:      "Live pushes dropped due to a full or closing client queue.",
	})
)

const (
	outcomeDelivered = "delivered"
	outcomeOffline   = "offline"
)
