package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "checkmate_active_rooms",
		Help: "Number of sessions with at least one live connection.",
	})

	LiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "checkmate_live_connections",
		Help: "Number of open websocket connections bound to a session.",
	})

	MovesApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkmate_moves_applied_total",
		Help: "Moves accepted and persisted.",
	})

	IllegalMoves = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkmate_illegal_moves_total",
		Help: "Moves refused by the rules engine or turn order.",
	})

	BroadcastsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkmate_broadcasts_sent_total",
		Help: "Outbound messages delivered to connections.",
	})

	RatingUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkmate_rating_updates_total",
		Help: "Completed post-game rating recomputations.",
	})

	GraceExpirations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkmate_grace_expirations_total",
		Help: "Disconnect grace timers that fired without a rejoin.",
	})

	SessionsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkmate_sessions_finished_total",
		Help: "Sessions reaching FINISHED, by result.",
	}, []string{"result"})
)
