package wire

// BufferCap is the fixed capacity of each per-connection buffer.
const BufferCap = 8192

// RxBuffer accumulates unread bytes from a connection. It is a fixed-size
// array with a fill level; Consume shifts the remainder to the front so the
// decoder always sees a contiguous prefix.
type RxBuffer struct {
	data [BufferCap]byte
	n    int
}

// Len returns the number of buffered bytes.
func (b *RxBuffer) Len() int { return b.n }

// Bytes returns the buffered bytes. The slice aliases the buffer and is
// invalidated by Append and Consume.
func (b *RxBuffer) Bytes() []byte { return b.data[:b.n] }

// Append copies p into the buffer. It returns ErrBufferOverflow and leaves
// the buffer unchanged if p does not fit.
func (b *RxBuffer) Append(p []byte) error {
	if b.n+len(p) > BufferCap {
		return ErrBufferOverflow
	}
	copy(b.data[b.n:], p)
	b.n += len(p)
	return nil
}

// Consume discards the first n buffered bytes and shifts the remainder to
// the front. n must not exceed Len.
func (b *RxBuffer) Consume(n int) {
	if n < 0 || n > b.n {
		panic("wire: consume past fill level")
	}
	copy(b.data[:], b.data[n:b.n])
	b.n -= n
}

// Reset empties the buffer.
func (b *RxBuffer) Reset() { b.n = 0 }

// TxBuffer holds at most one outgoing frame and the send offset into it.
// Invariant: 0 <= off <= n <= BufferCap.
type TxBuffer struct {
	data [BufferCap]byte
	off  int
	n    int
}

// Empty reports whether no frame is queued.
func (b *TxBuffer) Empty() bool { return b.n == 0 }

// Queue encodes a single frame into the buffer. The buffer must be empty;
// queueing a second frame before the first drained is a programming error.
func (b *TxBuffer) Queue(typ uint8, flags uint16, seq uint32, payload []byte) error {
	if b.n != 0 {
		panic("wire: queue on non-empty transmit buffer")
	}
	n, err := Encode(b.data[:], typ, flags, seq, payload)
	if err != nil {
		return err
	}
	b.off = 0
	b.n = n
	return nil
}

// Pending returns the unsent portion of the queued frame.
func (b *TxBuffer) Pending() []byte { return b.data[b.off:b.n] }

// Advance marks n more bytes as sent.
func (b *TxBuffer) Advance(n int) {
	if n < 0 || b.off+n > b.n {
		panic("wire: advance past frame end")
	}
	b.off += n
}

// Done reports whether the queued frame has been fully sent.
func (b *TxBuffer) Done() bool { return b.n > 0 && b.off == b.n }

// Reset clears the buffer so a new frame can be queued.
func (b *TxBuffer) Reset() {
	b.off = 0
	b.n = 0
}
