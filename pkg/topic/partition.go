package topic

import (
	"fmt"
	"sync"

	"github.com/downfa11-org/rill/pkg/types"
	"github.com/google/uuid"
)

// Store persists records appended to a partition before they become visible.
type Store interface {
	Append(msgs ...types.Message) error
}

// Limits bounds what a partition accepts.
type Limits struct {
	MaxPayloadSize int
	MaxMessages    uint64
}

// Partition is an append-only ordered log. Appends are serialized by appendMu
// and published under mu; polls only take mu for reading.
type Partition struct {
	id     uint32
	limits Limits
	store  Store

	appendMu      sync.Mutex
	lastTimestamp uint64

	mu       sync.RWMutex
	messages []types.Message
}

// NewPartition creates a partition seeded with previously recovered messages.
// A nil store keeps the partition in memory only.
func NewPartition(id uint32, limits Limits, store Store, recovered []types.Message) *Partition {
	p := &Partition{
		id:       id,
		limits:   limits,
		store:    store,
		messages: recovered,
	}
	if n := len(recovered); n > 0 {
		p.lastTimestamp = recovered[n-1].Timestamp
	}
	return p
}

func (p *Partition) ID() uint32 { return p.id }

// NextOffset returns the offset the next append will receive.
func (p *Partition) NextOffset() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return uint64(len(p.messages))
}

// Append stores one message and returns its offset.
func (p *Partition) Append(msg types.PendingMessage) (uint64, error) {
	return p.AppendBatch([]types.PendingMessage{msg})
}

// AppendBatch stores msgs under consecutive offsets and returns the first one.
// The batch is rejected as a whole if any message violates the limits.
func (p *Partition) AppendBatch(msgs []types.PendingMessage) (uint64, error) {
	if len(msgs) == 0 {
		return 0, &types.Error{Kind: types.KindInvalidCount, Msg: "empty batch"}
	}
	for _, m := range msgs {
		if len(m.Payload) > p.limits.MaxPayloadSize {
			return 0, types.PayloadTooLarge(len(m.Payload), p.limits.MaxPayloadSize)
		}
	}

	p.appendMu.Lock()
	defer p.appendMu.Unlock()

	// only appenders change the length, and they hold appendMu
	first := uint64(len(p.messages))
	if first+uint64(len(msgs)) > p.limits.MaxMessages {
		return 0, &types.Error{Kind: types.KindPartitionFull, ID: p.id,
			Msg: fmt.Sprintf("partition %d holds %d of %d messages", p.id, first, p.limits.MaxMessages)}
	}

	built := make([]types.Message, len(msgs))
	for i, m := range msgs {
		ts := m.Timestamp
		if ts == 0 {
			ts = types.NowMillis()
		}
		if ts < p.lastTimestamp {
			ts = p.lastTimestamp
		}
		p.lastTimestamp = ts

		id := m.ID
		if id == uuid.Nil {
			id = types.NewMessageID()
		}
		built[i] = types.Message{
			ID:        id,
			Offset:    first + uint64(i),
			Timestamp: ts,
			Payload:   m.Payload,
		}
	}

	if p.store != nil {
		if err := p.store.Append(built...); err != nil {
			return 0, fmt.Errorf("persist partition %d: %w", p.id, err)
		}
	}

	p.mu.Lock()
	p.messages = append(p.messages, built...)
	p.mu.Unlock()

	return first, nil
}

// Poll returns up to count messages starting at offset. Offsets past the end
// yield an empty result.
func (p *Partition) Poll(offset uint64, count uint32) ([]types.Message, error) {
	if count == 0 {
		return nil, types.ErrInvalidCount
	}

	p.mu.RLock()
	msgs := p.messages
	p.mu.RUnlock()

	n := uint64(len(msgs))
	if offset >= n {
		return []types.Message{}, nil
	}
	end := offset + uint64(count)
	if end > n {
		end = n
	}
	// published messages are never modified; the capped slice keeps callers
	// from appending into the partition's backing array
	return msgs[offset:end:end], nil
}
