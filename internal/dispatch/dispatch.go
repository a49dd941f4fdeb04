// Package dispatch maps decoded request frames to reply frames.
package dispatch

import (
	"encoding/binary"
	"log/slog"

	"github.com/ehrlich-b/go-sflw/internal/clock"
	"github.com/ehrlich-b/go-sflw/internal/route"
	"github.com/ehrlich-b/go-sflw/internal/stats"
	"github.com/ehrlich-b/go-sflw/internal/wire"
)

// ASCII bodies of ERROR replies.
var (
	errUnknownType = []byte("unknown message type")
	errBadPayload  = []byte("bad payload")
)

// Dispatcher produces exactly one reply frame per request. It owns no
// connection state; the event loop hands it the connection's transmit
// buffer, which must be empty.
type Dispatcher struct {
	routes  *route.Table
	stats   *stats.Stats
	clock   *clock.Clock
	startMS uint64
	log     *slog.Logger
}

// New builds a dispatcher over the loop-owned routing table and stats.
// startMS is the server start reading on clk, used for uptime.
func New(routes *route.Table, st *stats.Stats, clk *clock.Clock, startMS uint64, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		routes:  routes,
		stats:   st,
		clock:   clk,
		startMS: startMS,
		log:     log,
	}
}

// Dispatch queues the reply for one decoded frame into tx. The reply mirrors
// the request's sequence number and carries version 1, flags 0. The caller
// guarantees tx is empty.
func (d *Dispatcher) Dispatch(hdr wire.Header, payload []byte, tx *wire.TxBuffer) error {
	switch hdr.Type {
	case wire.MsgPing:
		return d.echo(wire.MsgPong, hdr.Seq, payload, tx)
	case wire.MsgEcho:
		return d.echo(wire.MsgEchoReply, hdr.Seq, payload, tx)
	case wire.MsgGetStats:
		return d.getStats(hdr.Seq, tx)
	case wire.MsgRouteUpdate:
		return d.routeUpdate(hdr.Seq, payload, tx)
	case wire.MsgRouteLookup:
		return d.routeLookup(hdr.Seq, payload, tx)
	default:
		d.log.Debug("unknown message type", "type", hdr.Type, "seq", hdr.Seq)
		return tx.Queue(wire.MsgError, 0, hdr.Seq, errUnknownType)
	}
}

// echo reflects the request payload, truncated to MaxEchoBytes.
func (d *Dispatcher) echo(replyType uint8, seq uint32, payload []byte, tx *wire.TxBuffer) error {
	if len(payload) > wire.MaxEchoBytes {
		payload = payload[:wire.MaxEchoBytes]
	}
	return tx.Queue(replyType, 0, seq, payload)
}

// getStats builds the 40-byte STATS_REPLY. The snapshot is taken before the
// event loop counts this request, so a stats request reports the state prior
// to itself.
func (d *Dispatcher) getStats(seq uint32, tx *wire.TxBuffer) error {
	snap := d.stats.Snapshot()

	var body [wire.StatsReplySize]byte
	binary.BigEndian.PutUint64(body[0:8], snap.TotalRequests)
	binary.BigEndian.PutUint64(body[8:16], snap.BadFrames)
	binary.BigEndian.PutUint64(body[16:24], snap.RoutesInstalled)
	binary.BigEndian.PutUint64(body[24:32], d.clock.UptimeMS(d.startMS))
	binary.BigEndian.PutUint32(body[32:36], snap.LastLatencyUS())
	binary.BigEndian.PutUint32(body[36:40], snap.AvgLatencyUS())

	return tx.Queue(wire.MsgStatsReply, 0, seq, body[:])
}

// routeUpdate consumes 16-byte records in order; trailing bytes shorter than
// a record are ignored. Records rejected as full or invalid are skipped
// silently; the ACK reports the number installed.
func (d *Dispatcher) routeUpdate(seq uint32, payload []byte, tx *wire.TxBuffer) error {
	nowMS := uint32(d.clock.NowMS())

	var installed uint32
	for len(payload) >= wire.RouteRecordSize {
		rec := payload[:wire.RouteRecordSize]
		payload = payload[wire.RouteRecordSize:]

		entry := route.Entry{
			Prefix:    binary.BigEndian.Uint32(rec[0:4]),
			MaskBits:  rec[4],
			Metric:    binary.BigEndian.Uint16(rec[6:8]),
			NextHop:   binary.BigEndian.Uint32(rec[8:12]),
			UpdatedMS: nowMS,
		}
		if d.routes.Upsert(entry) == route.UpsertOK {
			installed++
		}
	}
	if installed > 0 {
		d.stats.AddRoutesInstalled(uint64(installed))
	}
	d.log.Debug("route update", "installed", installed, "table_size", d.routes.Count())

	var body [4]byte
	binary.BigEndian.PutUint32(body[:], installed)
	return tx.Queue(wire.MsgRouteAck, 0, seq, body[:])
}

// routeLookup answers an LPM query for the IPv4 address in the first four
// payload bytes. A miss reports mask 0, metric 0xFFFF, next hop 0.
func (d *Dispatcher) routeLookup(seq uint32, payload []byte, tx *wire.TxBuffer) error {
	if len(payload) < wire.RouteLookupMinSize {
		return tx.Queue(wire.MsgError, 0, seq, errBadPayload)
	}

	ip := binary.BigEndian.Uint32(payload[0:4])

	var body [wire.RouteReplySize]byte
	if e, ok := d.routes.Lookup(ip); ok {
		body[0] = e.MaskBits
		binary.BigEndian.PutUint16(body[2:4], e.Metric)
		binary.BigEndian.PutUint32(body[4:8], e.NextHop)
	} else {
		binary.BigEndian.PutUint16(body[2:4], 0xFFFF)
	}
	return tx.Queue(wire.MsgRouteReply, 0, seq, body[:])
}
