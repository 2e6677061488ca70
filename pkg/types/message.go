package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message is an immutable record stored in a partition.
type Message struct {
	ID        uuid.UUID
	Offset    uint64
	Timestamp uint64 // milliseconds since the Unix epoch
	Payload   []byte
}

func (m Message) String() string {
	return fmt.Sprintf("offset=%d id=%s size=%d", m.Offset, m.ID, len(m.Payload))
}

// PendingMessage is a message accepted for append that has not been assigned an offset yet.
// A zero ID or Timestamp is filled in by the partition.
type PendingMessage struct {
	ID        uuid.UUID
	Timestamp uint64
	Payload   []byte
}

// NewMessageID returns a random 128-bit message identifier.
func NewMessageID() uuid.UUID {
	return uuid.New()
}

// NowMillis returns the current wall clock in milliseconds since the Unix epoch.
func NowMillis() uint64 {
	return uint64(time.Now().UnixMilli())
}

// PutU128 writes id as a little-endian u128 into dst, which must hold 16 bytes.
func PutU128(dst []byte, id uuid.UUID) {
	for i := 0; i < 16; i++ {
		dst[i] = id[15-i]
	}
}

// U128 reads a little-endian u128 from src into a message identifier.
func U128(src []byte) uuid.UUID {
	var id uuid.UUID
	for i := 0; i < 16; i++ {
		id[i] = src[15-i]
	}
	return id
}
