package sflw

import "github.com/ehrlich-b/go-sflw/internal/wire"

// Re-export wire protocol constants for public API
const (
	Magic      = wire.Magic
	Version    = wire.Version
	HeaderSize = wire.HeaderSize
	BufferCap  = wire.BufferCap
	MaxPayload = wire.MaxPayload

	MsgPing        = wire.MsgPing
	MsgPong        = wire.MsgPong
	MsgEcho        = wire.MsgEcho
	MsgEchoReply   = wire.MsgEchoReply
	MsgGetStats    = wire.MsgGetStats
	MsgStatsReply  = wire.MsgStatsReply
	MsgRouteUpdate = wire.MsgRouteUpdate
	MsgRouteAck    = wire.MsgRouteAck
	MsgRouteLookup = wire.MsgRouteLookup
	MsgRouteReply  = wire.MsgRouteReply
	MsgError       = wire.MsgError
)

// Server defaults
const (
	// DefaultPort is the port used when Config.Addr has none.
	DefaultPort = 9000

	// DefaultBacklog is the listen(2) backlog.
	DefaultBacklog = 128
)
