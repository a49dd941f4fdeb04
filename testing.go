package sflw

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/ehrlich-b/go-sflw/internal/wire"
)

// Frame is a client-side view of one protocol frame.
type Frame struct {
	Type    uint8
	Flags   uint16
	Seq     uint32
	Payload []byte
}

// TestClient is a minimal blocking protocol client for exercising a running
// server from tests and examples. It is not safe for concurrent use.
type TestClient struct {
	conn    net.Conn
	timeout time.Duration
}

// NewTestClient dials addr over TCP. timeout bounds each Send and Recv.
func NewTestClient(addr string, timeout time.Duration) (*TestClient, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &TestClient{conn: conn, timeout: timeout}, nil
}

// Send encodes and writes one frame.
func (c *TestClient) Send(typ uint8, flags uint16, seq uint32, payload []byte) error {
	buf := make([]byte, wire.HeaderSize+len(payload))
	n, err := wire.Encode(buf, typ, flags, seq, payload)
	if err != nil {
		return err
	}
	return c.SendRaw(buf[:n])
}

// SendRaw writes raw bytes, allowing tests to send malformed frames.
func (c *TestClient) SendRaw(b []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return err
	}
	_, err := c.conn.Write(b)
	return err
}

// Recv reads exactly one frame and verifies its magic and CRC.
func (c *TestClient) Recv() (Frame, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return Frame{}, err
	}

	var hdr [wire.HeaderSize]byte
	if _, err := io.ReadFull(c.conn, hdr[:]); err != nil {
		return Frame{}, err
	}

	if magic := binary.BigEndian.Uint32(hdr[0:4]); magic != wire.Magic {
		return Frame{}, fmt.Errorf("bad reply magic %#08x", magic)
	}
	if hdr[4] != wire.Version {
		return Frame{}, fmt.Errorf("bad reply version %d", hdr[4])
	}

	f := Frame{
		Type:  hdr[5],
		Flags: binary.BigEndian.Uint16(hdr[6:8]),
		Seq:   binary.BigEndian.Uint32(hdr[8:12]),
	}
	payloadLen := binary.BigEndian.Uint32(hdr[12:16])
	crc := binary.BigEndian.Uint32(hdr[16:20])

	if payloadLen > wire.MaxPayload {
		return Frame{}, fmt.Errorf("reply payload too large: %d", payloadLen)
	}
	f.Payload = make([]byte, payloadLen)
	if _, err := io.ReadFull(c.conn, f.Payload); err != nil {
		return Frame{}, err
	}
	if got := wire.Checksum(f.Payload); got != crc {
		return Frame{}, fmt.Errorf("reply crc mismatch: got %#08x, want %#08x", got, crc)
	}

	return f, nil
}

// RoundTrip sends one request and reads one reply.
func (c *TestClient) RoundTrip(typ uint8, flags uint16, seq uint32, payload []byte) (Frame, error) {
	if err := c.Send(typ, flags, seq, payload); err != nil {
		return Frame{}, err
	}
	return c.Recv()
}

// Close closes the underlying connection.
func (c *TestClient) Close() error {
	return c.conn.Close()
}
