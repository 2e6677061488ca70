package util

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// ErrFrameTooLarge is returned when a frame does not fit its limit: the
// reader's configured limit, or the 4-byte length prefix when writing.
type ErrFrameTooLarge struct {
	Size  uint64
	Limit uint64
}

func (e *ErrFrameTooLarge) Error() string {
	return fmt.Sprintf("frame of %d bytes exceeds limit of %d bytes", e.Size, e.Limit)
}

// WriteWithLength writes data with a 4-byte little-endian length prefix.
func WriteWithLength(w io.Writer, data []byte) error {
	n, err := frameLength(len(data))
	if err != nil {
		return err
	}
	buf := make([]byte, 4+len(data))
	binary.LittleEndian.PutUint32(buf, n)
	copy(buf[4:], data)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func frameLength(n int) (uint32, error) {
	if uint64(n) > math.MaxUint32 {
		return 0, &ErrFrameTooLarge{Size: uint64(n), Limit: math.MaxUint32}
	}
	return uint32(n), nil
}

// ReadWithLength reads data with a 4-byte little-endian length prefix.
// A limit of zero disables the size check.
func ReadWithLength(r io.Reader, limit uint32) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("read length: %w", err)
	}
	length := binary.LittleEndian.Uint32(lenBuf[:])
	if limit > 0 && length > limit {
		return nil, &ErrFrameTooLarge{Size: uint64(length), Limit: uint64(limit)}
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return buf, nil
}
