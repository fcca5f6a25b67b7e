package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ViewerJoins counts joins by whether the session already existed.
	ViewerJoins = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stream_viewer_joins_total",
		Help: "Total number of viewer joins",
	}, []string{"rejoin"})

	// ViewerLeaves counts sessions removed by an explicit leave.
	ViewerLeaves = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stream_viewer_leaves_total",
		Help: "Total number of viewer sessions left explicitly",
	})

	// LiveViewers is the last recomputed live viewer count per stream.
	LiveViewers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "stream_live_viewers",
		Help: "Live viewer count per stream at the last recomputation",
	}, []string{"stream_id"})

	// ChatMessages counts accepted messages by type.
	ChatMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stream_chat_messages_total",
		Help: "Total number of chat messages accepted",
	}, []string{"message_type"})

	// ChatRejections counts rejected sends by error code.
	ChatRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stream_chat_rejections_total",
		Help: "Total number of chat messages rejected",
	}, []string{"code"})

	// ChatDeletes counts tombstoned messages.
	ChatDeletes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stream_chat_deletes_total",
		Help: "Total number of chat messages deleted",
	})

	// StreamTransitions counts lifecycle transitions by target status.
	StreamTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stream_transitions_total",
		Help: "Total number of stream lifecycle transitions",
	}, []string{"status"})

	// SweptSessions counts stale sessions removed by the sweeper.
	SweptSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stream_swept_sessions_total",
		Help: "Total number of stale viewer sessions swept",
	})

	// SweepRuns counts sweeper runs by result.
	SweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stream_sweep_runs_total",
		Help: "Total number of sweeper runs",
	}, []string{"result"})

	// WebSocketConnections is the gauge of open live feed connections.
	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stream_websocket_connections",
		Help: "Number of open live feed websocket connections",
	})

	// TranscriptsArchived counts transcripts written by result.
	TranscriptsArchived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stream_transcripts_archived_total",
		Help: "Total number of chat transcripts archived",
	}, []string{"result"})
)
