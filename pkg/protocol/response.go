package protocol

import (
	"encoding/binary"
	"math"

	"github.com/downfa11-org/rill/pkg/types"
)

// polledHeaderSize is offset, timestamp and payload length of one polled
// message; polledIDSize more bytes follow the timestamp when ids are requested.
const (
	polledHeaderSize = 8 + 8 + 4
	polledIDSize     = 16
)

func polledSize(m types.Message, withIDs bool) int {
	n := polledHeaderSize + len(m.Payload)
	if withIDs {
		n += polledIDSize
	}
	return n
}

// OK builds a success response carrying body.
func OK(body []byte) []byte {
	out := make([]byte, 0, 1+len(body))
	out = append(out, byte(types.KindOK))
	return append(out, body...)
}

// Error builds an error response: status is the error kind, followed by the
// detail id and a length-prefixed message.
func Error(err error) []byte {
	kind := types.KindOf(err)
	if kind == types.KindOK {
		kind = types.KindUnknown
	}
	msg := err.Error()
	if len(msg) > math.MaxUint16 {
		msg = msg[:math.MaxUint16]
	}
	out := make([]byte, 0, 1+4+2+len(msg))
	out = append(out, byte(kind))
	out = binary.LittleEndian.AppendUint32(out, types.IDOf(err))
	out = binary.LittleEndian.AppendUint16(out, uint16(len(msg)))
	return append(out, msg...)
}

// OffsetBody encodes the result of SendMessages.
func OffsetBody(offset uint64) []byte {
	return binary.LittleEndian.AppendUint64(nil, offset)
}

// BatchBody encodes the result of SendMessageBatch.
func BatchBody(first uint64, count uint32) []byte {
	out := binary.LittleEndian.AppendUint64(make([]byte, 0, 12), first)
	return binary.LittleEndian.AppendUint32(out, count)
}

// MessagesBody encodes the result of PollMessages: count:u32, then per
// message offset:u64, timestamp:u64, payload_len:u32, payload.
func MessagesBody(msgs []types.Message) []byte {
	return messagesBody(msgs, false)
}

// MessagesWithIDsBody encodes the result of PollMessagesWithIDs, which adds
// id:u128 after each timestamp.
func MessagesWithIDsBody(msgs []types.Message) []byte {
	return messagesBody(msgs, true)
}

func messagesBody(msgs []types.Message, withIDs bool) []byte {
	size := 4
	for _, m := range msgs {
		size += polledSize(m, withIDs)
	}
	out := make([]byte, 0, size)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(msgs)))
	for _, m := range msgs {
		out = binary.LittleEndian.AppendUint64(out, m.Offset)
		out = binary.LittleEndian.AppendUint64(out, m.Timestamp)
		if withIDs {
			out = appendU128(out, m.ID)
		}
		out = binary.LittleEndian.AppendUint32(out, uint32(len(m.Payload)))
		out = append(out, m.Payload...)
	}
	return out
}

// FitMessages returns the longest prefix of msgs whose encoded poll response
// stays within limit bytes. The first message is always kept so a poll makes
// progress; a single message is bounded by the command size anyway.
func FitMessages(msgs []types.Message, withIDs bool, limit int) []types.Message {
	size := 1 + 4
	for i, m := range msgs {
		size += polledSize(m, withIDs)
		if size > limit && i > 0 {
			return msgs[:i]
		}
	}
	return msgs
}

// ParseResponse splits a response into its success body or the error it carries.
func ParseResponse(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, types.InvalidCommand("empty response")
	}
	if b[0] == byte(types.KindOK) {
		return b[1:], nil
	}

	r := &reader{b: b[1:]}
	id := r.u32()
	msg := string(r.take(int(r.u16())))
	if r.err != nil {
		return nil, types.InvalidCommand("malformed error response: %v", r.err)
	}
	return nil, &types.Error{Kind: types.KindFromStatus(b[0]), ID: id, Msg: msg}
}

// ParseOffset decodes an OffsetBody.
func ParseOffset(body []byte) (uint64, error) {
	r := &reader{b: body}
	off := r.u64()
	if r.err != nil {
		return 0, types.InvalidCommand("malformed offset response: %v", r.err)
	}
	return off, nil
}

// ParseBatch decodes a BatchBody.
func ParseBatch(body []byte) (uint64, uint32, error) {
	r := &reader{b: body}
	first, count := r.u64(), r.u32()
	if r.err != nil {
		return 0, 0, types.InvalidCommand("malformed batch response: %v", r.err)
	}
	return first, count, nil
}

// ParseMessages decodes a MessagesBody. Message ids are left zero.
func ParseMessages(body []byte) ([]types.Message, error) {
	return parseMessages(body, false)
}

// ParseMessagesWithIDs decodes a MessagesWithIDsBody.
func ParseMessagesWithIDs(body []byte) ([]types.Message, error) {
	return parseMessages(body, true)
}

func parseMessages(body []byte, withIDs bool) ([]types.Message, error) {
	header := polledHeaderSize
	if withIDs {
		header += polledIDSize
	}
	r := &reader{b: body}
	count := r.u32()
	if r.err == nil && uint64(count)*uint64(header) > uint64(r.remaining()) {
		return nil, types.InvalidCommand("poll response claims %d messages in %d bytes", count, r.remaining())
	}
	msgs := make([]types.Message, 0, count)
	for i := uint32(0); i < count && r.err == nil; i++ {
		m := types.Message{Offset: r.u64(), Timestamp: r.u64()}
		if withIDs {
			m.ID = r.u128()
		}
		m.Payload = r.bytes(r.u32())
		msgs = append(msgs, m)
	}
	if r.err != nil {
		return nil, types.InvalidCommand("malformed poll response: %v", r.err)
	}
	if r.remaining() != 0 {
		return nil, types.InvalidCommand("poll response has %d trailing bytes", r.remaining())
	}
	return msgs, nil
}
