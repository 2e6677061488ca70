package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/downfa11-org/rill/pkg/config"
	"github.com/downfa11-org/rill/pkg/types"
	"github.com/google/uuid"
)

// Opcode is the first byte of every command.
type Opcode uint8

const (
	OpCreateStream     Opcode = 0x01
	OpCreateTopic      Opcode = 0x02
	OpSendMessages     Opcode = 0x03
	OpPollMessages     Opcode = 0x04
	OpDeleteStream     Opcode = 0x05
	OpDeleteTopic      Opcode = 0x06
	OpSendMessageBatch Opcode = 0x07
	OpPing             Opcode = 0x08
	// OpPollMessagesWithIDs is PollMessages whose response also carries each message id.
	OpPollMessagesWithIDs Opcode = 0x09
)

var opcodeNames = map[Opcode]string{
	OpCreateStream:     "create_stream",
	OpCreateTopic:      "create_topic",
	OpSendMessages:     "send_messages",
	OpPollMessages:     "poll_messages",
	OpDeleteStream:     "delete_stream",
	OpDeleteTopic:      "delete_topic",
	OpSendMessageBatch: "send_message_batch",
	OpPing:             "ping",

	OpPollMessagesWithIDs: "poll_messages_with_ids",
}

func (op Opcode) String() string {
	if s, ok := opcodeNames[op]; ok {
		return s
	}
	return fmt.Sprintf("opcode(0x%02x)", uint8(op))
}

// MaxNameLength is the longest name a u8 length prefix can describe.
const MaxNameLength = 255

// minBatchEntrySize is the id plus the payload length of one batch entry.
const minBatchEntrySize = 16 + 4

// Command is a decoded request.
type Command interface {
	Opcode() Opcode
	appendBody(dst []byte) ([]byte, error)
}

type CreateStream struct {
	StreamID uint32
	Name     string
}

type CreateTopic struct {
	StreamID        uint32
	TopicID         uint32
	PartitionsCount uint32
	Name            string
}

type SendMessages struct {
	StreamID    uint32
	TopicID     uint32
	PartitionID uint32
	MessageID   uuid.UUID
	Payload     []byte
}

// BatchEntry is one message of a SendMessageBatch command.
type BatchEntry struct {
	ID      uuid.UUID
	Payload []byte
}

type SendMessageBatch struct {
	StreamID    uint32
	TopicID     uint32
	PartitionID uint32
	Messages    []BatchEntry
}

type PollMessages struct {
	StreamID    uint32
	TopicID     uint32
	PartitionID uint32
	Offset      uint64
	Count       uint32
}

// PollMessagesWithIDs has the PollMessages body; only the response layout differs.
type PollMessagesWithIDs struct {
	PollMessages
}

type DeleteStream struct {
	StreamID uint32
}

type DeleteTopic struct {
	StreamID uint32
	TopicID  uint32
}

type Ping struct{}

func (*CreateStream) Opcode() Opcode     { return OpCreateStream }
func (*CreateTopic) Opcode() Opcode      { return OpCreateTopic }
func (*SendMessages) Opcode() Opcode     { return OpSendMessages }
func (*SendMessageBatch) Opcode() Opcode { return OpSendMessageBatch }
func (*PollMessages) Opcode() Opcode     { return OpPollMessages }
func (*DeleteStream) Opcode() Opcode     { return OpDeleteStream }
func (*DeleteTopic) Opcode() Opcode      { return OpDeleteTopic }
func (*Ping) Opcode() Opcode             { return OpPing }

func (*PollMessagesWithIDs) Opcode() Opcode { return OpPollMessagesWithIDs }

func appendU32(dst []byte, v uint32) []byte { return binary.LittleEndian.AppendUint32(dst, v) }
func appendU64(dst []byte, v uint64) []byte { return binary.LittleEndian.AppendUint64(dst, v) }

func appendU128(dst []byte, id uuid.UUID) []byte {
	var b [16]byte
	types.PutU128(b[:], id)
	return append(dst, b[:]...)
}

func appendName(dst []byte, name string) ([]byte, error) {
	if len(name) > MaxNameLength {
		return nil, fmt.Errorf("name of %d bytes exceeds %d", len(name), MaxNameLength)
	}
	dst = append(dst, uint8(len(name)))
	return append(dst, name...), nil
}

func (c *CreateStream) appendBody(dst []byte) ([]byte, error) {
	dst = appendU32(dst, c.StreamID)
	return appendName(dst, c.Name)
}

func (c *CreateTopic) appendBody(dst []byte) ([]byte, error) {
	dst = appendU32(dst, c.StreamID)
	dst = appendU32(dst, c.TopicID)
	dst = appendU32(dst, c.PartitionsCount)
	return appendName(dst, c.Name)
}

func (c *SendMessages) appendBody(dst []byte) ([]byte, error) {
	dst = appendU32(dst, c.StreamID)
	dst = appendU32(dst, c.TopicID)
	dst = appendU32(dst, c.PartitionID)
	dst = appendU128(dst, c.MessageID)
	dst = appendU32(dst, uint32(len(c.Payload)))
	return append(dst, c.Payload...), nil
}

func (c *SendMessageBatch) appendBody(dst []byte) ([]byte, error) {
	dst = appendU32(dst, c.StreamID)
	dst = appendU32(dst, c.TopicID)
	dst = appendU32(dst, c.PartitionID)
	dst = appendU32(dst, uint32(len(c.Messages)))
	for _, m := range c.Messages {
		dst = appendU128(dst, m.ID)
		dst = appendU32(dst, uint32(len(m.Payload)))
		dst = append(dst, m.Payload...)
	}
	return dst, nil
}

func (c *PollMessages) appendBody(dst []byte) ([]byte, error) {
	dst = appendU32(dst, c.StreamID)
	dst = appendU32(dst, c.TopicID)
	dst = appendU32(dst, c.PartitionID)
	dst = appendU64(dst, c.Offset)
	return appendU32(dst, c.Count), nil
}

func (c *DeleteStream) appendBody(dst []byte) ([]byte, error) {
	return appendU32(dst, c.StreamID), nil
}

func (c *DeleteTopic) appendBody(dst []byte) ([]byte, error) {
	dst = appendU32(dst, c.StreamID)
	return appendU32(dst, c.TopicID), nil
}

func (*Ping) appendBody(dst []byte) ([]byte, error) { return dst, nil }

// Encode serializes cmd as opcode followed by its body.
func Encode(cmd Command) ([]byte, error) {
	out, err := cmd.appendBody([]byte{byte(cmd.Opcode())})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", cmd.Opcode(), err)
	}
	if len(out) > config.MaxCommandSize {
		return nil, types.PayloadTooLarge(len(out), config.MaxCommandSize)
	}
	return out, nil
}

// Decode parses one command. Malformed input yields an InvalidCommand error;
// input over the command size limit yields PayloadTooLarge.
func Decode(b []byte) (Command, error) {
	if len(b) > config.MaxCommandSize {
		return nil, types.PayloadTooLarge(len(b), config.MaxCommandSize)
	}
	if len(b) == 0 {
		return nil, types.InvalidCommand("empty command")
	}

	op := Opcode(b[0])
	r := &reader{b: b[1:]}
	var cmd Command

	switch op {
	case OpCreateStream:
		cmd = &CreateStream{StreamID: r.u32(), Name: r.name()}
	case OpCreateTopic:
		cmd = &CreateTopic{StreamID: r.u32(), TopicID: r.u32(), PartitionsCount: r.u32(), Name: r.name()}
	case OpSendMessages:
		c := &SendMessages{StreamID: r.u32(), TopicID: r.u32(), PartitionID: r.u32(), MessageID: r.u128()}
		c.Payload = r.bytes(r.u32())
		cmd = c
	case OpSendMessageBatch:
		c := &SendMessageBatch{StreamID: r.u32(), TopicID: r.u32(), PartitionID: r.u32()}
		count := r.u32()
		if uint64(count)*minBatchEntrySize > uint64(r.remaining()) {
			return nil, types.InvalidCommand("batch of %d messages does not fit in %d bytes", count, r.remaining())
		}
		c.Messages = make([]BatchEntry, 0, count)
		for i := uint32(0); i < count && r.err == nil; i++ {
			id := r.u128()
			c.Messages = append(c.Messages, BatchEntry{ID: id, Payload: r.bytes(r.u32())})
		}
		cmd = c
	case OpPollMessages:
		cmd = readPoll(r)
	case OpPollMessagesWithIDs:
		cmd = &PollMessagesWithIDs{PollMessages: *readPoll(r)}
	case OpDeleteStream:
		cmd = &DeleteStream{StreamID: r.u32()}
	case OpDeleteTopic:
		cmd = &DeleteTopic{StreamID: r.u32(), TopicID: r.u32()}
	case OpPing:
		cmd = &Ping{}
	default:
		return nil, types.InvalidCommand("unknown opcode 0x%02x", uint8(op))
	}

	if r.err != nil {
		return nil, types.InvalidCommand("%s: %v", op, r.err)
	}
	if r.remaining() != 0 {
		return nil, types.InvalidCommand("%s: %d trailing bytes", op, r.remaining())
	}
	return cmd, nil
}

func readPoll(r *reader) *PollMessages {
	return &PollMessages{StreamID: r.u32(), TopicID: r.u32(), PartitionID: r.u32(), Offset: r.u64(), Count: r.u32()}
}

// ALPN is the TLS application protocol negotiated on QUIC connections.
const ALPN = "rill/1"
