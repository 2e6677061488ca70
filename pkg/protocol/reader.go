package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/downfa11-org/rill/pkg/types"
	"github.com/google/uuid"
)

var errShort = errors.New("unexpected end of data")

// reader is a little-endian cursor over a byte slice. After the first short
// read every accessor returns a zero value and err stays set.
type reader struct {
	b   []byte
	off int
	err error
}

func (r *reader) remaining() int { return len(r.b) - r.off }

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.remaining() < n {
		r.err = fmt.Errorf("%w: need %d bytes at %d, have %d", errShort, n, r.off, r.remaining())
		return nil
	}
	out := r.b[r.off : r.off+n]
	r.off += n
	return out
}

func (r *reader) u8() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *reader) u16() uint16 {
	if b := r.take(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (r *reader) u32() uint32 {
	if b := r.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (r *reader) u64() uint64 {
	if b := r.take(8); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

func (r *reader) u128() uuid.UUID {
	if b := r.take(16); b != nil {
		return types.U128(b)
	}
	return uuid.Nil
}

// bytes returns a copy so decoded values never alias the request buffer.
func (r *reader) bytes(n uint32) []byte {
	if uint64(n) > uint64(r.remaining()) {
		r.take(r.remaining() + 1)
		return nil
	}
	b := r.take(int(n))
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (r *reader) name() string {
	n := r.u8()
	return string(r.take(int(n)))
}
