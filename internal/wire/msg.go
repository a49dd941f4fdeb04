package wire

// Message types.
const (
	MsgPing        uint8 = 1
	MsgPong        uint8 = 2
	MsgEcho        uint8 = 3
	MsgEchoReply   uint8 = 4
	MsgGetStats    uint8 = 5
	MsgStatsReply  uint8 = 6
	MsgRouteUpdate uint8 = 7
	MsgRouteAck    uint8 = 8
	MsgRouteLookup uint8 = 9
	MsgRouteReply  uint8 = 10
	MsgError       uint8 = 255
)

// Fixed payload sizes and bounds per message type.
const (
	// MaxEchoBytes caps PONG and ECHO_REPLY payloads; longer request
	// payloads are truncated.
	MaxEchoBytes = 2048

	// StatsReplySize is the STATS_REPLY payload length.
	StatsReplySize = 40

	// RouteRecordSize is the length of one ROUTE_UPDATE record.
	RouteRecordSize = 16

	// RouteReplySize is the ROUTE_REPLY payload length.
	RouteReplySize = 8

	// RouteLookupMinSize is the minimum ROUTE_LOOKUP payload length.
	RouteLookupMinSize = 4
)
