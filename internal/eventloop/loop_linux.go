//go:build linux

package eventloop

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rs/xid"
	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/go-sflw/internal/clock"
	"github.com/ehrlich-b/go-sflw/internal/dispatch"
	"github.com/ehrlich-b/go-sflw/internal/stats"
	"github.com/ehrlich-b/go-sflw/internal/wire"
)

// conn is the per-socket state. The loop is the only goroutine that touches
// it.
type conn struct {
	fd         int
	id         xid.ID
	peer       string
	rx         wire.RxBuffer
	tx         wire.TxBuffer
	lastActive time.Time
	closed     bool
}

// Loop multiplexes the listener and all connections over one epoll instance.
type Loop struct {
	cfg      Config
	log      *slog.Logger
	clock    *clock.Clock
	stats    *stats.Stats
	dispatch *dispatch.Dispatcher

	epfd     int
	listenFd int
	port     int
	conns    map[int]*conn

	closeOnce sync.Once

	// Scratch space reused across events; no per-request allocation.
	readBuf    [4096]byte
	payloadBuf [wire.MaxPayload]byte
}

// New opens the listening socket and the epoll instance. The loop does not
// process events until Run is called.
func New(cfg Config) (*Loop, error) {
	if cfg.Backlog <= 0 {
		cfg.Backlog = 128
	}

	listenFd, port, err := openListener(cfg.IP, cfg.Port, cfg.Backlog)
	if err != nil {
		return nil, err
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		unix.Close(listenFd)
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}

	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(listenFd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, listenFd, &ev); err != nil {
		unix.Close(epfd)
		unix.Close(listenFd)
		return nil, fmt.Errorf("epoll_ctl add listener: %w", err)
	}

	return &Loop{
		cfg:      cfg,
		log:      cfg.Logger,
		clock:    cfg.Clock,
		stats:    cfg.Stats,
		dispatch: cfg.Dispatcher,
		epfd:     epfd,
		listenFd: listenFd,
		port:     port,
		conns:    make(map[int]*conn),
	}, nil
}

// Port returns the bound TCP port.
func (l *Loop) Port() int { return l.port }

// Run processes readiness events until ctx is cancelled or the wait syscall
// fails with an unrecoverable error. All connections are destroyed on exit.
func (l *Loop) Run(ctx context.Context) error {
	defer l.destroyAll()

	l.log.Info("event loop running", "port", l.port, "idle_timeout", l.cfg.IdleTimeout)

	events := make([]unix.EpollEvent, 64)
	for {
		if ctx.Err() != nil {
			l.log.Info("event loop stopping", "reason", ctx.Err())
			return nil
		}

		n, err := unix.EpollWait(l.epfd, events, pollTimeoutMS)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("epoll_wait: %w", err)
		}

		// Accepts run before connection events. A connection destroyed in
		// this batch frees its fd, and handling accepts first guarantees
		// the kernel cannot hand that fd back until the next wait, so a
		// stale event can never reach a freshly accepted socket.
		for i := 0; i < n; i++ {
			if int(events[i].Fd) == l.listenFd {
				l.acceptReady()
			}
		}
		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			if fd == l.listenFd {
				continue
			}
			c, ok := l.conns[fd]
			if !ok || c.closed {
				continue
			}
			l.handleConnEvent(c, events[i].Events)
		}

		l.sweepIdle()
	}
}

// Close releases the listener and epoll descriptors. Safe to call more than
// once and concurrently with a returned Run.
func (l *Loop) Close() {
	l.closeOnce.Do(func() {
		unix.Close(l.listenFd)
		unix.Close(l.epfd)
	})
}

func (l *Loop) handleConnEvent(c *conn, events uint32) {
	if events&(unix.EPOLLHUP|unix.EPOLLERR) != 0 {
		l.destroy(c, "socket hangup or error")
		return
	}
	if events&unix.EPOLLOUT != 0 {
		l.writeReady(c)
		if c.closed {
			return
		}
	}
	if events&unix.EPOLLIN != 0 {
		l.readReady(c)
	}
}

// acceptReady accepts until the listener would block.
func (l *Loop) acceptReady() {
	for {
		fd, sa, err := unix.Accept4(l.listenFd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			switch err {
			case unix.EAGAIN:
				return
			case unix.EINTR, unix.ECONNABORTED:
				continue
			default:
				l.log.Error("accept failed", "error", err)
				return
			}
		}

		c := &conn{
			fd:         fd,
			id:         xid.New(),
			peer:       formatSockaddr(sa),
			lastActive: l.clock.Now(),
		}

		ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
		if err := unix.EpollCtl(l.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
			l.log.Error("epoll_ctl add conn failed", "error", err)
			unix.Close(fd)
			continue
		}

		l.conns[fd] = c
		l.log.Debug("connection accepted", "conn", c.id, "peer", c.peer)
	}
}

// readReady pulls bytes until the socket would block, then decodes as many
// complete frames as backpressure allows.
func (l *Loop) readReady(c *conn) {
	for {
		n, err := unix.Read(c.fd, l.readBuf[:])
		if err != nil {
			switch err {
			case unix.EAGAIN:
				l.drainFrames(c)
				return
			case unix.EINTR:
				continue
			default:
				l.destroy(c, "read error")
				return
			}
		}
		if n == 0 {
			l.destroy(c, "peer closed")
			return
		}

		if err := c.rx.Append(l.readBuf[:n]); err != nil {
			l.destroy(c, "receive buffer overflow")
			return
		}
		c.lastActive = l.clock.Now()
	}
}

// drainFrames decodes buffered frames and dispatches them one at a time.
// It stops as soon as a reply is queued: at most one reply is outstanding
// per connection, and frames behind it stay buffered until it flushes.
func (l *Loop) drainFrames(c *conn) {
	for c.tx.Empty() {
		hdr, n, status := wire.TryDecode(&c.rx, l.payloadBuf[:])
		switch status {
		case wire.DecodeNeedMore:
			return
		case wire.DecodeCorrupt:
			l.stats.RecordBadFrame()
			l.destroy(c, "corrupt frame")
			return
		}

		start := l.clock.Now()
		if err := l.dispatch.Dispatch(hdr, l.payloadBuf[:n], &c.tx); err != nil {
			l.destroy(c, "reply construction failed")
			return
		}
		latencyMS := float64(l.clock.Now().Sub(start)) / float64(time.Millisecond)
		l.stats.RecordRequest(latencyMS)

		if !c.tx.Empty() {
			l.setWriteInterest(c, true)
		}
	}
}

// writeReady sends the pending reply until drained or the socket would
// block. Once the reply is out, buffered frames behind it are processed.
func (l *Loop) writeReady(c *conn) {
	for !c.tx.Empty() {
		n, err := unix.Write(c.fd, c.tx.Pending())
		if n > 0 {
			c.tx.Advance(n)
			c.lastActive = l.clock.Now()
		}
		if err != nil {
			switch err {
			case unix.EAGAIN:
				return
			case unix.EINTR:
				continue
			default:
				l.destroy(c, "write error")
				return
			}
		}

		if c.tx.Done() {
			c.tx.Reset()
			l.setWriteInterest(c, false)
			if !c.closed {
				l.drainFrames(c)
			}
			return
		}
	}
}

func (l *Loop) setWriteInterest(c *conn, want bool) {
	events := uint32(unix.EPOLLIN)
	if want {
		events |= unix.EPOLLOUT
	}
	ev := unix.EpollEvent{Events: events, Fd: int32(c.fd)}
	if err := unix.EpollCtl(l.epfd, unix.EPOLL_CTL_MOD, c.fd, &ev); err != nil {
		l.destroy(c, "epoll_ctl mod failed")
	}
}

// sweepIdle destroys connections with no progress within the idle timeout.
func (l *Loop) sweepIdle() {
	if l.cfg.IdleTimeout <= 0 {
		return
	}
	now := l.clock.Now()
	for _, c := range l.conns {
		if now.Sub(c.lastActive) >= l.cfg.IdleTimeout {
			l.destroy(c, "idle timeout")
		}
	}
}

// destroy closes the socket and forgets the connection. Every teardown path
// funnels through here so the fd is closed exactly once.
func (l *Loop) destroy(c *conn, reason string) {
	if c.closed {
		return
	}
	c.closed = true
	_ = unix.EpollCtl(l.epfd, unix.EPOLL_CTL_DEL, c.fd, nil)
	unix.Close(c.fd)
	delete(l.conns, c.fd)
	l.log.Debug("connection destroyed", "conn", c.id, "peer", c.peer, "reason", reason)
}

func (l *Loop) destroyAll() {
	for _, c := range l.conns {
		l.destroy(c, "server shutdown")
	}
}

func formatSockaddr(sa unix.Sockaddr) string {
	if in4, ok := sa.(*unix.SockaddrInet4); ok {
		return fmt.Sprintf("%d.%d.%d.%d:%d", in4.Addr[0], in4.Addr[1], in4.Addr[2], in4.Addr[3], in4.Port)
	}
	return "unknown"
}
