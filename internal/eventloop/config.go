// Package eventloop drives all connections from a single thread using a
// level-triggered readiness loop. It owns the listening socket, every
// accepted connection and its buffers, and invokes the dispatcher for each
// decoded frame.
package eventloop

import (
	"errors"
	"log/slog"
	"time"

	"github.com/ehrlich-b/go-sflw/internal/clock"
	"github.com/ehrlich-b/go-sflw/internal/dispatch"
	"github.com/ehrlich-b/go-sflw/internal/stats"
)

// Poll wait bound in milliseconds. Bounding the wait lets the loop notice
// context cancellation and run the idle sweep even when no fd is ready.
const pollTimeoutMS = 1000

// ErrUnsupported is returned on platforms without a readiness primitive
// this package knows how to drive.
var ErrUnsupported = errors.New("eventloop: unsupported platform")

// Config wires the loop's collaborators.
type Config struct {
	// IP is the IPv4 address to bind; the zero value means 0.0.0.0.
	IP [4]byte

	// Port to bind. 0 picks an ephemeral port; see Loop.Port.
	Port int

	// Backlog for listen(2).
	Backlog int

	// IdleTimeout destroys connections with no read or write progress for
	// this long. Zero disables the sweep.
	IdleTimeout time.Duration

	Logger     *slog.Logger
	Clock      *clock.Clock
	Stats      *stats.Stats
	Dispatcher *dispatch.Dispatcher
}
