package stream

import (
	"sort"
	"sync"
	"time"

	"github.com/downfa11-org/rill/pkg/topic"
	"github.com/downfa11-org/rill/pkg/types"
)

// MaxPartitionsPerTopic bounds the partition count accepted by CreateTopic.
const MaxPartitionsPerTopic = 10_000

// Stream is a named collection of topics.
type Stream struct {
	ID        uint32
	Name      string
	CreatedAt time.Time

	limits topic.Limits
	hp     topic.HandlerProvider

	mu     sync.RWMutex
	topics map[uint32]*topic.Topic
	names  map[string]uint32
}

func newStream(id uint32, name string, limits topic.Limits, hp topic.HandlerProvider) *Stream {
	return &Stream{
		ID:        id,
		Name:      name,
		CreatedAt: time.Now(),
		limits:    limits,
		hp:        hp,
		topics:    make(map[uint32]*topic.Topic),
		names:     make(map[string]uint32),
	}
}

// CreateTopic adds a topic with partitions [0, partitionsCount).
func (s *Stream) CreateTopic(topicID uint32, name string, partitionsCount uint32) (*topic.Topic, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if partitionsCount == 0 || partitionsCount > MaxPartitionsPerTopic {
		return nil, &types.Error{Kind: types.KindInvalidCount, Msg: "partitions count must be between 1 and 10000"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.topics[topicID]; ok {
		return nil, types.TopicAlreadyExists(topicID)
	}
	if existing, ok := s.names[name]; ok {
		return nil, &types.Error{Kind: types.KindTopicAlreadyExists, ID: existing, Msg: "name " + name + " is taken"}
	}

	t, err := topic.NewTopic(s.ID, topicID, name, partitionsCount, s.limits, s.hp)
	if err != nil {
		return nil, err
	}
	s.topics[topicID] = t
	s.names[name] = topicID
	return t, nil
}

// DeleteTopic removes a topic from the stream and returns it.
func (s *Stream) DeleteTopic(topicID uint32) (*topic.Topic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.topics[topicID]
	if !ok {
		return nil, types.TopicNotFound(topicID)
	}
	delete(s.topics, topicID)
	delete(s.names, t.Name)
	return t, nil
}

// GetTopic looks up a topic by id.
func (s *Stream) GetTopic(topicID uint32) (*topic.Topic, error) {
	s.mu.RLock()
	t, ok := s.topics[topicID]
	s.mu.RUnlock()
	if !ok {
		return nil, types.TopicNotFound(topicID)
	}
	return t, nil
}

// Topics returns the stream's topics ordered by id.
func (s *Stream) Topics() []*topic.Topic {
	s.mu.RLock()
	out := make([]*topic.Topic, 0, len(s.topics))
	for _, t := range s.topics {
		out = append(out, t)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AppendMessages appends one message to a topic partition.
func (s *Stream) AppendMessages(topicID, partitionID uint32, msg types.PendingMessage) (uint64, error) {
	t, err := s.GetTopic(topicID)
	if err != nil {
		return 0, err
	}
	return t.AppendMessages(partitionID, msg)
}

// AppendBatch appends msgs to a topic partition and returns the first offset.
func (s *Stream) AppendBatch(topicID, partitionID uint32, msgs []types.PendingMessage) (uint64, error) {
	t, err := s.GetTopic(topicID)
	if err != nil {
		return 0, err
	}
	return t.AppendBatch(partitionID, msgs)
}

// GetMessages polls a topic partition.
func (s *Stream) GetMessages(topicID, partitionID uint32, offset uint64, count uint32) ([]types.Message, error) {
	t, err := s.GetTopic(topicID)
	if err != nil {
		return nil, err
	}
	return t.GetMessages(partitionID, offset, count)
}
