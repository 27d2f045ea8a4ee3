package ops

import "github.com/prometheus/client_golang/prometheus"

var (
	ConnectionsAccepted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "checkers_connections_accepted_total",
			Help: "TCP connections accepted by the game listener.",
		},
	)

	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "checkers_sessions_active",
			Help: "Occupied session slots, including disconnected sessions inside the reconnect window.",
		},
	)

	FramesReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "checkers_frames_received_total",
			Help: "Frames decoded successfully from clients.",
		},
	)

	FramesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "checkers_frames_sent_total",
			Help: "Frames written to clients.",
		},
	)

	ProtocolViolations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkers_protocol_violations_total",
			Help: "Rejected frames and whitelist violations by reason.",
		},
		[]string{"reason"},
	)

	RoomsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "checkers_rooms_active",
			Help: "Occupied room slots.",
		},
	)

	GamesFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkers_games_finished_total",
			Help: "Games ended, by end reason.",
		},
		[]string{"reason"},
	)

	PingsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "checkers_pings_sent_total",
			Help: "Heartbeat PING frames sent.",
		},
	)

	Reconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkers_reconnects_total",
			Help: "Reconnect attempts by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		ConnectionsAccepted,
		SessionsActive,
		FramesReceived,
		FramesSent,
		ProtocolViolations,
		RoomsActive,
		GamesFinished,
		PingsSent,
		Reconnects,
	)
}
