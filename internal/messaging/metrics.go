// internal/messaging/metrics.go

package messaging

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	activeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_active_connections",
			Help: "Number of open realtime connections",
		},
	)

	onlineUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_online_users",
			Help: "Number of users with presence, including the offline grace window",
		},
	)

	eventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_events_total",
			Help: "Inbound realtime events by type and outcome",
		},
		[]string{"event", "outcome"},
	)

	messagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_sent_total",
			Help: "Messages persisted, by transport",
		},
		[]string{"transport"},
	)

	callsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_calls_total",
			Help: "Calls by terminal status",
		},
		[]string{"status"},
	)

	callDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chat_call_duration_seconds",
			Help:    "Duration of connected calls",
			Buckets: prometheus.ExponentialBuckets(5, 2, 10),
		},
	)

	pushTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_push_notifications_total",
			Help: "Push notifications by outcome",
		},
		[]string{"outcome"},
	)
)

func SetActiveConnections(n int) { activeConnections.Set(float64(n)) }

func SetOnlineUsers(n int) { onlineUsers.Set(float64(n)) }

var knownEvents = map[string]bool{
	EventConversationJoin:  true,
	EventConversationLeave: true,
	EventMessageSend:       true,
	EventMessageRead:       true,
	EventTypingStart:       true,
	EventTypingStop:        true,
	EventUsersGetOnline:    true,
	EventCallOffer:         true,
	EventCallAnswer:        true,
	EventCallICECandidate:  true,
	EventCallDecline:       true,
	EventCallEnd:           true,
}

// recordEvent folds client-supplied types outside knownEvents into one label
func recordEvent(event string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	if !knownEvents[event] {
		event = "unknown"
	}
	eventsTotal.WithLabelValues(event, outcome).Inc()
}

func recordMessageSent(transport string) { messagesSent.WithLabelValues(transport).Inc() }

func recordCall(status CallStatus, seconds int64) {
	callsTotal.WithLabelValues(string(status)).Inc()
	if seconds > 0 {
		callDuration.Observe(float64(seconds))
	}
}

func recordPush(outcome string) { pushTotal.WithLabelValues(outcome).Inc() }
