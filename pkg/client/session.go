package client

import (
	"context"

	"github.com/downfa11-org/rill/pkg/protocol"
	"github.com/downfa11-org/rill/pkg/types"
)

// Session wraps a Client with typed command helpers.
type Session struct {
	Client Client
}

func NewSession(c Client) *Session {
	return &Session{Client: c}
}

func (s *Session) do(ctx context.Context, cmd protocol.Command) ([]byte, error) {
	raw, err := protocol.Encode(cmd)
	if err != nil {
		return nil, err
	}
	resp, err := s.Client.SendWithResponse(ctx, raw)
	if err != nil {
		return nil, err
	}
	return protocol.ParseResponse(resp)
}

func (s *Session) Ping(ctx context.Context) error {
	_, err := s.do(ctx, &protocol.Ping{})
	return err
}

func (s *Session) CreateStream(ctx context.Context, streamID uint32, name string) error {
	_, err := s.do(ctx, &protocol.CreateStream{StreamID: streamID, Name: name})
	return err
}

func (s *Session) DeleteStream(ctx context.Context, streamID uint32) error {
	_, err := s.do(ctx, &protocol.DeleteStream{StreamID: streamID})
	return err
}

func (s *Session) CreateTopic(ctx context.Context, streamID, topicID, partitions uint32, name string) error {
	_, err := s.do(ctx, &protocol.CreateTopic{StreamID: streamID, TopicID: topicID, PartitionsCount: partitions, Name: name})
	return err
}

func (s *Session) DeleteTopic(ctx context.Context, streamID, topicID uint32) error {
	_, err := s.do(ctx, &protocol.DeleteTopic{StreamID: streamID, TopicID: topicID})
	return err
}

// SendMessage appends one message and returns its offset. A zero id is
// replaced by the server.
func (s *Session) SendMessage(ctx context.Context, streamID, topicID, partitionID uint32, msg protocol.BatchEntry) (uint64, error) {
	body, err := s.do(ctx, &protocol.SendMessages{
		StreamID:    streamID,
		TopicID:     topicID,
		PartitionID: partitionID,
		MessageID:   msg.ID,
		Payload:     msg.Payload,
	})
	if err != nil {
		return 0, err
	}
	return protocol.ParseOffset(body)
}

// SendMessageBatch appends msgs atomically and returns the first offset.
func (s *Session) SendMessageBatch(ctx context.Context, streamID, topicID, partitionID uint32, msgs []protocol.BatchEntry) (uint64, error) {
	body, err := s.do(ctx, &protocol.SendMessageBatch{
		StreamID:    streamID,
		TopicID:     topicID,
		PartitionID: partitionID,
		Messages:    msgs,
	})
	if err != nil {
		return 0, err
	}
	first, _, err := protocol.ParseBatch(body)
	return first, err
}

// PollMessages reads up to count messages starting at offset. The returned
// messages carry no id; use PollMessagesWithIDs when ids are needed.
func (s *Session) PollMessages(ctx context.Context, streamID, topicID, partitionID uint32, offset uint64, count uint32) ([]types.Message, error) {
	body, err := s.do(ctx, pollCommand(streamID, topicID, partitionID, offset, count))
	if err != nil {
		return nil, err
	}
	return protocol.ParseMessages(body)
}

func (s *Session) PollMessagesWithIDs(ctx context.Context, streamID, topicID, partitionID uint32, offset uint64, count uint32) ([]types.Message, error) {
	body, err := s.do(ctx, &protocol.PollMessagesWithIDs{PollMessages: *pollCommand(streamID, topicID, partitionID, offset, count)})
	if err != nil {
		return nil, err
	}
	return protocol.ParseMessagesWithIDs(body)
}

func pollCommand(streamID, topicID, partitionID uint32, offset uint64, count uint32) *protocol.PollMessages {
	return &protocol.PollMessages{
		StreamID:    streamID,
		TopicID:     topicID,
		PartitionID: partitionID,
		Offset:      offset,
		Count:       count,
	}
}
