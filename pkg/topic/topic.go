package topic

import (
	"fmt"
	"time"

	"github.com/downfa11-org/rill/pkg/disk"
	"github.com/downfa11-org/rill/pkg/types"
)

// HandlerProvider opens the file handlers backing a topic's partitions.
// CloseTopic releases every handler opened for the topic without touching
// its files.
type HandlerProvider interface {
	Open(streamID, topicID, partitionID uint32) (*disk.Handler, []types.Message, error)
	CloseTopic(streamID, topicID uint32)
}

// Topic is a named set of partitions with ids [0, PartitionsCount).
// The partition set is fixed at creation, so routing needs no lock.
type Topic struct {
	StreamID  uint32
	ID        uint32
	Name      string
	CreatedAt time.Time

	partitions []*Partition
}

// NewTopic creates a topic and its partitions. With a nil provider the
// partitions are kept in memory only.
func NewTopic(streamID, id uint32, name string, partitionsCount uint32, limits Limits, hp HandlerProvider) (*Topic, error) {
	partitions := make([]*Partition, partitionsCount)
	for i := uint32(0); i < partitionsCount; i++ {
		if hp == nil {
			partitions[i] = NewPartition(i, limits, nil, nil)
			continue
		}
		dh, recovered, err := hp.Open(streamID, id, i)
		if err != nil {
			hp.CloseTopic(streamID, id)
			return nil, fmt.Errorf("open handler for topic %d partition %d: %w", id, i, err)
		}
		partitions[i] = NewPartition(i, limits, dh, recovered)
	}
	return &Topic{
		StreamID:   streamID,
		ID:         id,
		Name:       name,
		CreatedAt:  time.Now(),
		partitions: partitions,
	}, nil
}

func (t *Topic) PartitionsCount() uint32 {
	return uint32(len(t.partitions))
}

// Partition looks up a partition by id.
func (t *Topic) Partition(partitionID uint32) (*Partition, error) {
	if partitionID >= uint32(len(t.partitions)) {
		return nil, types.PartitionNotFound(partitionID)
	}
	return t.partitions[partitionID], nil
}

// AppendMessages appends one message to the given partition and returns its offset.
func (t *Topic) AppendMessages(partitionID uint32, msg types.PendingMessage) (uint64, error) {
	p, err := t.Partition(partitionID)
	if err != nil {
		return 0, err
	}
	return p.Append(msg)
}

// AppendBatch appends msgs to the given partition and returns the first offset.
func (t *Topic) AppendBatch(partitionID uint32, msgs []types.PendingMessage) (uint64, error) {
	p, err := t.Partition(partitionID)
	if err != nil {
		return 0, err
	}
	return p.AppendBatch(msgs)
}

// GetMessages polls the given partition.
func (t *Topic) GetMessages(partitionID uint32, offset uint64, count uint32) ([]types.Message, error) {
	p, err := t.Partition(partitionID)
	if err != nil {
		return nil, err
	}
	return p.Poll(offset, count)
}

// MessagesCount sums the next offsets of every partition.
func (t *Topic) MessagesCount() uint64 {
	var total uint64
	for _, p := range t.partitions {
		total += p.NextOffset()
	}
	return total
}
