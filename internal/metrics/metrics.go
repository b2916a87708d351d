package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Broker Metrics
var (
	// SessionsAdmittedTotal tracks admitted sessions per shard
	SessionsAdmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_sessions_admitted_total",
			Help: "Total sessions admitted to the waiting pool by shard",
		},
		[]string{"shard"},
	)

	// WaitingSessions tracks the current waiting pool size per shard
	WaitingSessions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "broker_waiting_sessions",
			Help: "Current number of unpaired sessions in the waiting pool",
		},
		[]string{"shard"},
	)

	// ActiveRooms tracks the current number of active pairings per shard
	ActiveRooms = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "broker_active_rooms",
			Help: "Current number of active two-party rooms",
		},
		[]string{"shard"},
	)

	// MatchesTotal tracks pairings by shard and mode (preference/overflow)
	MatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_matches_total",
			Help: "Total pairings created by shard and match mode (preference/overflow)",
		},
		[]string{"shard", "mode"},
	)

	// MessagesRelayedTotal tracks chat messages relayed between partners
	MessagesRelayedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_messages_relayed_total",
			Help: "Total chat messages relayed to a partner by shard",
		},
		[]string{"shard"},
	)

	// ReportsTotal tracks moderation reports processed per shard
	ReportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_reports_total",
			Help: "Total moderation reports processed by shard",
		},
		[]string{"shard"},
	)

	// DiscardedPayloadsTotal tracks inbound payloads dropped as malformed or unknown
	DiscardedPayloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_discarded_payloads_total",
			Help: "Total inbound payloads silently discarded (malformed or unknown event kind)",
		},
		[]string{"shard"},
	)

	// PartnerNotifyFailures tracks best-effort sends to a partner that failed
	PartnerNotifyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_partner_notify_failures_total",
			Help: "Total outbound notifications to a partner that could not be delivered",
		},
		[]string{"shard"},
	)

	// BrokerPanicsTotal tracks per-command panic recoveries in the broker actor
	BrokerPanicsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broker_panics_total",
			Help: "Total broker command panics recovered",
		},
	)

	// BrokerCommandChannelDepth tracks current command channel depth per shard
	BrokerCommandChannelDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "broker_command_channel_depth",
			Help: "Current broker command channel depth",
		},
		[]string{"shard"},
	)
)

// WebSocket Metrics
var (
	// WebSocketConnectionsCurrent tracks current active WebSocket connections
	WebSocketConnectionsCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_current",
			Help: "Current number of active WebSocket connections",
		},
	)

	// WebSocketConnectionsTotal tracks total WebSocket connection attempts by result
	WebSocketConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_connections_total",
			Help: "Total WebSocket connection attempts by result (success/error/rejected)",
		},
		[]string{"result"},
	)

	// WebSocketConnectionsRejected tracks rejected connection attempts by reason
	WebSocketConnectionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_connections_rejected_total",
			Help: "Total WebSocket connections rejected by reason (rate_limit/per_ip_limit/global_limit)",
		},
		[]string{"reason"},
	)

	// WebSocketPingFailures tracks WebSocket ping failures
	WebSocketPingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_ping_failures_total",
			Help: "Total WebSocket ping failures (client not responding)",
		},
	)

	// WebSocketSendDrops tracks outbound messages dropped on a full send buffer
	WebSocketSendDrops = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_send_drops_total",
			Help: "Total outbound messages dropped because the client send buffer was full",
		},
	)
)

// Build Information Metrics
var (
	// BuildInfo is a gauge that always returns 1, with build metadata as labels
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build information with version, commit, build_time, and go_version labels (value is always 1)",
		},
		[]string{"version", "commit", "build_time", "go_version"},
	)
)

// HTTP Error Metrics
// Note: http_errors_total{type} is provided by internal/errors package
