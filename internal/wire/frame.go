// Package wire implements the SFLW framed wire protocol: a 20-byte
// big-endian header followed by a CRC-32 protected payload.
package wire

import (
	"encoding/binary"
	"errors"
)

// Wire format constants.
const (
	// Magic is the protocol magic, "SFLW" in big-endian byte order.
	Magic uint32 = 0x53464C57

	// Version is the only protocol version this implementation speaks.
	Version uint8 = 1

	// HeaderSize is the fixed frame header length in bytes.
	HeaderSize = 20

	// MaxPayload is the largest payload that fits a receive buffer
	// alongside its header.
	MaxPayload = BufferCap - HeaderSize

	// MaxEncodePayload bounds the payload accepted by Encode.
	MaxEncodePayload = 1 << 20
)

// Header field offsets within a frame.
const (
	offMagic      = 0
	offVersion    = 4
	offType       = 5
	offFlags      = 6
	offSeq        = 8
	offPayloadLen = 12
	offCRC        = 16
)

var (
	ErrBufferOverflow = errors.New("wire: receive buffer overflow")
	ErrPayloadTooBig  = errors.New("wire: payload exceeds encode limit")
	ErrShortBuffer    = errors.New("wire: output buffer too small for frame")
)

// Header is a decoded frame header.
type Header struct {
	Version    uint8
	Type       uint8
	Flags      uint16
	Seq        uint32
	PayloadLen uint32
	CRC        uint32
}

// Encode writes one frame (header plus payload) into dst and returns the
// number of bytes written. It fails if the payload exceeds MaxEncodePayload
// or dst cannot hold the whole frame.
func Encode(dst []byte, typ uint8, flags uint16, seq uint32, payload []byte) (int, error) {
	if len(payload) > MaxEncodePayload {
		return 0, ErrPayloadTooBig
	}
	total := HeaderSize + len(payload)
	if len(dst) < total {
		return 0, ErrShortBuffer
	}

	binary.BigEndian.PutUint32(dst[offMagic:], Magic)
	dst[offVersion] = Version
	dst[offType] = typ
	binary.BigEndian.PutUint16(dst[offFlags:], flags)
	binary.BigEndian.PutUint32(dst[offSeq:], seq)
	binary.BigEndian.PutUint32(dst[offPayloadLen:], uint32(len(payload)))
	binary.BigEndian.PutUint32(dst[offCRC:], Checksum(payload))
	copy(dst[HeaderSize:], payload)

	return total, nil
}

// DecodeStatus is the outcome of a TryDecode call.
type DecodeStatus int

const (
	// DecodeOK means one frame was consumed from the receive buffer.
	DecodeOK DecodeStatus = iota

	// DecodeNeedMore means the buffer does not yet hold a complete frame.
	DecodeNeedMore

	// DecodeCorrupt means the byte stream is not a valid frame: bad magic,
	// unsupported version, oversize payload, or CRC mismatch. The stream
	// cannot be resynchronized after this.
	DecodeCorrupt
)

// TryDecode attempts to decode one frame from rx. On DecodeOK the payload is
// copied into dst, exactly HeaderSize+PayloadLen bytes are consumed from rx,
// and the payload length is returned. On DecodeNeedMore and DecodeCorrupt
// nothing is consumed. A payload larger than len(dst) is treated as corrupt,
// the same as one exceeding the buffer bound.
func TryDecode(rx *RxBuffer, dst []byte) (Header, int, DecodeStatus) {
	var hdr Header

	buf := rx.Bytes()
	if len(buf) < HeaderSize {
		return hdr, 0, DecodeNeedMore
	}

	if binary.BigEndian.Uint32(buf[offMagic:]) != Magic {
		return hdr, 0, DecodeCorrupt
	}

	hdr.Version = buf[offVersion]
	hdr.Type = buf[offType]
	hdr.Flags = binary.BigEndian.Uint16(buf[offFlags:])
	hdr.Seq = binary.BigEndian.Uint32(buf[offSeq:])
	hdr.PayloadLen = binary.BigEndian.Uint32(buf[offPayloadLen:])
	hdr.CRC = binary.BigEndian.Uint32(buf[offCRC:])

	if hdr.Version != Version {
		return hdr, 0, DecodeCorrupt
	}
	if hdr.PayloadLen > MaxPayload {
		return hdr, 0, DecodeCorrupt
	}
	if len(buf) < HeaderSize+int(hdr.PayloadLen) {
		return hdr, 0, DecodeNeedMore
	}
	if int(hdr.PayloadLen) > len(dst) {
		return hdr, 0, DecodeCorrupt
	}

	payload := buf[HeaderSize : HeaderSize+int(hdr.PayloadLen)]
	if Checksum(payload) != hdr.CRC {
		return hdr, 0, DecodeCorrupt
	}

	n := copy(dst, payload)
	rx.Consume(HeaderSize + n)
	return hdr, n, DecodeOK
}
