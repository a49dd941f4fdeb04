package wire

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// encodeFrame is a test convenience wrapper around Encode.
func encodeFrame(t *testing.T, typ uint8, flags uint16, seq uint32, payload []byte) []byte {
	t.Helper()
	buf := make([]byte, HeaderSize+len(payload))
	n, err := Encode(buf, typ, flags, seq, payload)
	require.NoError(t, err)
	require.Equal(t, HeaderSize+len(payload), n)
	return buf[:n]
}

func TestEncodeKnownBytes(t *testing.T) {
	// PING, seq=42, flags=0x1234, payload 0x00..0x1F.
	frame := encodeFrame(t, 0x01, 0x1234, 42, seq(32))

	wantHeader := []byte{
		0x53, 0x46, 0x4C, 0x57, // "SFLW"
		0x01, 0x01, // version, type
		0x12, 0x34, // flags
		0x00, 0x00, 0x00, 0x2A, // seq
		0x00, 0x00, 0x00, 0x20, // payload_len
		0x91, 0x26, 0x7E, 0x8A, // crc32(payload)
	}
	require.Equal(t, wantHeader, frame[:HeaderSize])
	require.Equal(t, seq(32), frame[HeaderSize:])
}

func TestEncodeRejects(t *testing.T) {
	t.Run("payload over limit", func(t *testing.T) {
		_, err := Encode(make([]byte, 64), 0x01, 0, 0, make([]byte, MaxEncodePayload+1))
		require.ErrorIs(t, err, ErrPayloadTooBig)
	})

	t.Run("short output buffer", func(t *testing.T) {
		_, err := Encode(make([]byte, HeaderSize+3), 0x01, 0, 0, make([]byte, 4))
		require.ErrorIs(t, err, ErrShortBuffer)
	})
}

func TestDecodeRoundTrip(t *testing.T) {
	payload := seq(32)
	frame := encodeFrame(t, 0x01, 0x1234, 42, payload)

	var rx RxBuffer
	require.NoError(t, rx.Append(frame))

	dst := make([]byte, MaxPayload)
	hdr, n, st := TryDecode(&rx, dst)
	require.Equal(t, DecodeOK, st)
	require.Equal(t, uint8(1), hdr.Version)
	require.Equal(t, uint8(0x01), hdr.Type)
	require.Equal(t, uint16(0x1234), hdr.Flags)
	require.Equal(t, uint32(42), hdr.Seq)
	require.Equal(t, uint32(32), hdr.PayloadLen)
	require.Equal(t, uint32(0x91267E8A), hdr.CRC)
	require.Equal(t, payload, dst[:n])

	// A successful decode consumes the frame atomically.
	require.Equal(t, 0, rx.Len())
}

func TestDecodeEmptyPayload(t *testing.T) {
	frame := encodeFrame(t, 0x05, 0, 9, nil)
	require.Equal(t, uint32(0), binary.BigEndian.Uint32(frame[offCRC:]))

	var rx RxBuffer
	require.NoError(t, rx.Append(frame))

	hdr, n, st := TryDecode(&rx, make([]byte, MaxPayload))
	require.Equal(t, DecodeOK, st)
	require.Equal(t, 0, n)
	require.Equal(t, uint32(0), hdr.PayloadLen)
}

// TestDecodeStreaming feeds a sequence of frames in chunks of several sizes,
// from single bytes to the whole stream, and verifies the decoder yields the
// same frames regardless of how the stream is split.
func TestDecodeStreaming(t *testing.T) {
	var stream []byte
	payloads := [][]byte{seq(5), nil, seq(100), []byte("tail")}
	for i, p := range payloads {
		stream = append(stream, encodeFrame(t, 0x03, 0, uint32(i), p)...)
	}

	for _, chunk := range []int{1, 3, 7, 19, len(stream)} {
		var rx RxBuffer
		dst := make([]byte, MaxPayload)
		var got [][]byte
		var seqs []uint32

		for off := 0; off < len(stream); off += chunk {
			end := off + chunk
			if end > len(stream) {
				end = len(stream)
			}
			require.NoError(t, rx.Append(stream[off:end]))

			for {
				hdr, n, st := TryDecode(&rx, dst)
				if st != DecodeOK {
					require.Equal(t, DecodeNeedMore, st)
					break
				}
				got = append(got, bytes.Clone(dst[:n]))
				seqs = append(seqs, hdr.Seq)
			}
		}

		require.Len(t, got, len(payloads), "chunk=%d", chunk)
		for i, p := range payloads {
			require.Equal(t, len(p), len(got[i]), "chunk=%d frame=%d", chunk, i)
			require.Equal(t, []byte(p), got[i][:len(p)], "chunk=%d frame=%d", chunk, i)
			require.Equal(t, uint32(i), seqs[i])
		}
		require.Equal(t, 0, rx.Len())
	}
}

func TestDecodeCorrupt(t *testing.T) {
	dst := make([]byte, MaxPayload)

	t.Run("bad magic", func(t *testing.T) {
		frame := encodeFrame(t, 0x01, 0, 1, seq(4))
		binary.BigEndian.PutUint32(frame[offMagic:], 0xDEADBEEF)

		var rx RxBuffer
		require.NoError(t, rx.Append(frame))
		_, _, st := TryDecode(&rx, dst)
		require.Equal(t, DecodeCorrupt, st)
	})

	t.Run("bad version", func(t *testing.T) {
		frame := encodeFrame(t, 0x01, 0, 1, seq(4))
		frame[offVersion] = 2

		var rx RxBuffer
		require.NoError(t, rx.Append(frame))
		_, _, st := TryDecode(&rx, dst)
		require.Equal(t, DecodeCorrupt, st)
	})

	t.Run("oversize payload length", func(t *testing.T) {
		frame := encodeFrame(t, 0x01, 0, 1, nil)
		binary.BigEndian.PutUint32(frame[offPayloadLen:], MaxPayload+1)

		var rx RxBuffer
		require.NoError(t, rx.Append(frame))
		_, _, st := TryDecode(&rx, dst)
		require.Equal(t, DecodeCorrupt, st)
	})

	t.Run("payload exceeds caller buffer", func(t *testing.T) {
		frame := encodeFrame(t, 0x01, 0, 1, seq(64))

		var rx RxBuffer
		require.NoError(t, rx.Append(frame))
		_, _, st := TryDecode(&rx, make([]byte, 16))
		require.Equal(t, DecodeCorrupt, st)
	})

	t.Run("crc mismatch", func(t *testing.T) {
		frame := encodeFrame(t, 0x01, 0, 1, seq(16))
		frame[HeaderSize+7] ^= 0x01

		var rx RxBuffer
		require.NoError(t, rx.Append(frame))
		_, _, st := TryDecode(&rx, dst)
		require.Equal(t, DecodeCorrupt, st)
	})
}

// TestDecodeSingleBitFlips flips every bit of a frame payload in turn; each
// flip must be caught by the CRC.
func TestDecodeSingleBitFlips(t *testing.T) {
	payload := seq(24)
	frame := encodeFrame(t, 0x01, 0, 99, payload)
	dst := make([]byte, MaxPayload)

	for bit := 0; bit < len(payload)*8; bit++ {
		mutated := bytes.Clone(frame)
		mutated[HeaderSize+bit/8] ^= 1 << (bit % 8)

		var rx RxBuffer
		require.NoError(t, rx.Append(mutated))
		_, _, st := TryDecode(&rx, dst)
		require.Equal(t, DecodeCorrupt, st, "bit %d", bit)
	}
}

func TestDecodeNeedMore(t *testing.T) {
	frame := encodeFrame(t, 0x01, 0, 5, seq(40))
	dst := make([]byte, MaxPayload)

	// Feed everything but the last byte: short header first, then short body.
	var rx RxBuffer
	for _, cut := range []int{HeaderSize - 1, len(frame) - 1} {
		rx.Reset()
		require.NoError(t, rx.Append(frame[:cut]))
		_, _, st := TryDecode(&rx, dst)
		require.Equal(t, DecodeNeedMore, st, "cut=%d", cut)
		// Nothing consumed while waiting.
		require.Equal(t, cut, rx.Len())
	}
}
