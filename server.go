// Package sflw provides the main API for running an SFLW protocol server:
// a single-threaded TCP server speaking the framed SFLW wire protocol over
// an in-memory IPv4 routing table.
package sflw

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ehrlich-b/go-sflw/internal/clock"
	"github.com/ehrlich-b/go-sflw/internal/dispatch"
	"github.com/ehrlich-b/go-sflw/internal/eventloop"
	"github.com/ehrlich-b/go-sflw/internal/metrics"
	"github.com/ehrlich-b/go-sflw/internal/route"
	"github.com/ehrlich-b/go-sflw/internal/stats"
)

// Strategy selects how decision outputs would derive their hop count. It is
// a configuration hook only; no current message type exposes it.
type Strategy int

const (
	StrategyDirect Strategy = iota
	StrategySimulatedHop
)

func (s Strategy) String() string {
	switch s {
	case StrategyDirect:
		return "direct"
	case StrategySimulatedHop:
		return "simulated-hop"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ParseStrategy maps a strategy name to its value.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "", "direct":
		return StrategyDirect, nil
	case "simulated-hop":
		return StrategySimulatedHop, nil
	default:
		return 0, fmt.Errorf("unknown strategy %q", s)
	}
}

// Config contains parameters for creating a server.
type Config struct {
	// Addr is the IPv4 listen address as "host:port". An empty host binds
	// all interfaces; an empty or absent port means DefaultPort.
	Addr string

	// Backlog for the listening socket (default: DefaultBacklog).
	Backlog int

	// IdleTimeout destroys connections idle for this long. Zero disables
	// idle tracking.
	IdleTimeout time.Duration

	// Strategy is the routing decision hook (default: StrategyDirect).
	Strategy Strategy

	// Logger receives server logs. Nil discards them.
	Logger *slog.Logger

	// Clock is the time source (default: the real clock). Tests inject a
	// fake.
	Clock clockwork.Clock
}

// Server runs the event loop and owns all protocol state.
type Server struct {
	cfg     Config
	log     *slog.Logger
	clock   *clock.Clock
	startMS uint64
	stats   *stats.Stats
	routes  *route.Table
	loop    *eventloop.Loop
	running atomic.Bool
}

// New validates cfg, binds the listening socket, and returns a server ready
// to Run.
func New(cfg Config) (*Server, error) {
	if cfg.Strategy != StrategyDirect && cfg.Strategy != StrategySimulatedHop {
		return nil, NewError("new", ErrCodeInvalidConfig, fmt.Sprintf("unknown strategy %d", cfg.Strategy))
	}
	if cfg.IdleTimeout < 0 {
		return nil, NewError("new", ErrCodeInvalidConfig, "negative idle timeout")
	}

	ip, port, err := resolveAddr(cfg.Addr)
	if err != nil {
		return nil, WrapError("new", ErrCodeInvalidConfig, err)
	}

	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	source := cfg.Clock
	if source == nil {
		source = clockwork.NewRealClock()
	}

	clk := clock.New(source)
	startMS := clk.NowMS()
	st := stats.New()
	routes := route.New()

	backlog := cfg.Backlog
	if backlog <= 0 {
		backlog = DefaultBacklog
	}

	loop, err := eventloop.New(eventloop.Config{
		IP:          ip,
		Port:        port,
		Backlog:     backlog,
		IdleTimeout: cfg.IdleTimeout,
		Logger:      log,
		Clock:       clk,
		Stats:       st,
		Dispatcher:  dispatch.New(routes, st, clk, startMS, log),
	})
	if err != nil {
		if err == eventloop.ErrUnsupported {
			return nil, WrapError("new", ErrCodeUnsupported, err)
		}
		return nil, WrapError("new", ErrCodeListenerSetup, err)
	}

	log.Info("server listening",
		"addr", net.JoinHostPort(ipString(ip), strconv.Itoa(loop.Port())),
		"strategy", cfg.Strategy)

	return &Server{
		cfg:     cfg,
		log:     log,
		clock:   clk,
		startMS: startMS,
		stats:   st,
		routes:  routes,
		loop:    loop,
	}, nil
}

// Run drives the event loop until ctx is cancelled or the readiness wait
// fails fatally. It may be called at most once.
func (s *Server) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return NewError("run", ErrCodeAlreadyRunning, "Run called twice")
	}
	defer s.loop.Close()

	if err := s.loop.Run(ctx); err != nil {
		return WrapError("run", ErrCodePollFatal, err)
	}
	return nil
}

// Close releases the listening socket, which also makes a blocked Run
// return on its next poll tick.
func (s *Server) Close() {
	s.loop.Close()
}

// Port returns the bound TCP port, useful when Config.Addr requested an
// ephemeral port.
func (s *Server) Port() int {
	return s.loop.Port()
}

// ServerStats is a snapshot of the process-wide request counters.
type ServerStats struct {
	TotalRequests   uint64
	BadFrames       uint64
	RoutesInstalled uint64
	UptimeMS        uint64
	LastLatencyMS   float64
	AvgLatencyMS    float64
}

// Stats returns the current counters.
func (s *Server) Stats() ServerStats {
	snap := s.stats.Snapshot()
	return ServerStats{
		TotalRequests:   snap.TotalRequests,
		BadFrames:       snap.BadFrames,
		RoutesInstalled: snap.RoutesInstalled,
		UptimeMS:        s.clock.UptimeMS(s.startMS),
		LastLatencyMS:   snap.LastLatencyMS,
		AvgLatencyMS:    snap.AvgLatencyMS,
	}
}

// RegisterMetrics registers the server's Prometheus collector with reg.
func (s *Server) RegisterMetrics(reg prometheus.Registerer) error {
	return reg.Register(metrics.NewCollector(s.stats, func() uint64 {
		return s.clock.UptimeMS(s.startMS)
	}))
}

// resolveAddr parses "host:port" into an IPv4 address and port. A bare
// host or an empty string is accepted.
func resolveAddr(addr string) ([4]byte, int, error) {
	var ip [4]byte

	if addr == "" {
		return ip, DefaultPort, nil
	}

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		// No port in the address; treat the whole string as a host.
		host, portStr = addr, ""
	}

	port := DefaultPort
	if portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil || p < 0 || p > 65535 {
			return ip, 0, fmt.Errorf("invalid port %q", portStr)
		}
		port = p
	}

	if host != "" {
		parsed := net.ParseIP(host)
		if parsed == nil {
			return ip, 0, fmt.Errorf("invalid listen host %q", host)
		}
		v4 := parsed.To4()
		if v4 == nil {
			return ip, 0, fmt.Errorf("listen host %q is not IPv4", host)
		}
		copy(ip[:], v4)
	}

	return ip, port, nil
}

func ipString(ip [4]byte) string {
	return net.IP(ip[:]).String()
}
