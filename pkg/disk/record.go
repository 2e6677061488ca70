package disk

import (
	"encoding/binary"
	"fmt"

	"github.com/downfa11-org/rill/pkg/types"
)

// RecordHeaderSize is offset(8) + timestamp(8) + id(16) + payload_len(4).
const RecordHeaderSize = 36

// EncodeRecord appends the on-disk form of m to dst.
func EncodeRecord(dst []byte, m types.Message) []byte {
	var hdr [RecordHeaderSize]byte
	binary.LittleEndian.PutUint64(hdr[0:8], m.Offset)
	binary.LittleEndian.PutUint64(hdr[8:16], m.Timestamp)
	types.PutU128(hdr[16:32], m.ID)
	binary.LittleEndian.PutUint32(hdr[32:36], uint32(len(m.Payload)))
	dst = append(dst, hdr[:]...)
	return append(dst, m.Payload...)
}

// DecodeRecord decodes one record from the front of b and reports the bytes consumed.
// errIncomplete is returned when b ends before the record does.
func DecodeRecord(b []byte) (types.Message, int, error) {
	if len(b) < RecordHeaderSize {
		return types.Message{}, 0, errIncomplete
	}
	size := int(binary.LittleEndian.Uint32(b[32:36]))
	total := RecordHeaderSize + size
	if len(b) < total {
		return types.Message{}, 0, errIncomplete
	}
	payload := make([]byte, size)
	copy(payload, b[RecordHeaderSize:total])
	return types.Message{
		Offset:    binary.LittleEndian.Uint64(b[0:8]),
		Timestamp: binary.LittleEndian.Uint64(b[8:16]),
		ID:        types.U128(b[16:32]),
		Payload:   payload,
	}, total, nil
}

type incompleteError struct{}

func (incompleteError) Error() string { return "incomplete record" }

var errIncomplete error = incompleteError{}

// CorruptError reports a record whose offset breaks the gap-free sequence.
type CorruptError struct {
	Path     string
	Position int64
	Want     uint64
	Got      uint64
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("%s: record at byte %d has offset %d, expected %d", e.Path, e.Position, e.Got, e.Want)
}
