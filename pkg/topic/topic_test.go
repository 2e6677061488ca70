package topic_test

import (
	"errors"
	"testing"

	"github.com/downfa11-org/rill/pkg/disk"
	"github.com/downfa11-org/rill/pkg/topic"
	"github.com/downfa11-org/rill/pkg/types"
)

func TestTopicRoutesByPartition(t *testing.T) {
	tp, err := topic.NewTopic(1, 5, "t", 4, testLimits, nil)
	if err != nil {
		t.Fatalf("NewTopic: %v", err)
	}
	if tp.PartitionsCount() != 4 {
		t.Fatalf("expected 4 partitions, got %d", tp.PartitionsCount())
	}

	for _, step := range []struct {
		partition uint32
		payload   string
	}{{2, "x"}, {2, "y"}, {3, "z"}} {
		if _, err := tp.AppendMessages(step.partition, pending(step.payload)); err != nil {
			t.Fatalf("AppendMessages: %v", err)
		}
	}

	got, err := tp.GetMessages(2, 0, 10)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(got) != 2 || string(got[0].Payload) != "x" || string(got[1].Payload) != "y" {
		t.Fatalf("unexpected partition 2 contents: %v", got)
	}
	if got[0].Offset != 0 || got[1].Offset != 1 {
		t.Errorf("unexpected offsets: %d, %d", got[0].Offset, got[1].Offset)
	}

	got, err = tp.GetMessages(3, 0, 10)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(got) != 1 || string(got[0].Payload) != "z" || got[0].Offset != 0 {
		t.Fatalf("unexpected partition 3 contents: %v", got)
	}

	if tp.MessagesCount() != 3 {
		t.Errorf("expected 3 messages, got %d", tp.MessagesCount())
	}
}

func TestTopicPartitionNotFound(t *testing.T) {
	tp, err := topic.NewTopic(1, 1, "t", 2, testLimits, nil)
	if err != nil {
		t.Fatalf("NewTopic: %v", err)
	}

	_, err = tp.AppendMessages(2, pending("x"))
	if !errors.Is(err, types.ErrPartitionNotFound) || types.IDOf(err) != 2 {
		t.Fatalf("expected PartitionNotFound(2), got %v", err)
	}
	if _, err := tp.GetMessages(9, 0, 1); !errors.Is(err, types.ErrPartitionNotFound) {
		t.Fatalf("expected PartitionNotFound, got %v", err)
	}
}

// flakyProvider fails to open one partition once, then behaves like dm.
type flakyProvider struct {
	*disk.Manager
	failAt uint32
	failed bool
}

func (p *flakyProvider) Open(streamID, topicID, partitionID uint32) (*disk.Handler, []types.Message, error) {
	if partitionID == p.failAt && !p.failed {
		p.failed = true
		return nil, nil, errors.New("no space left on device")
	}
	return p.Manager.Open(streamID, topicID, partitionID)
}

func TestNewTopicReleasesHandlersOnFailure(t *testing.T) {
	dm := disk.NewManager(t.TempDir(), 0)
	defer dm.CloseAllHandlers()
	hp := &flakyProvider{Manager: dm, failAt: 2}

	if _, err := topic.NewTopic(1, 1, "t", 4, testLimits, hp); err == nil {
		t.Fatal("expected NewTopic to fail when a partition cannot be opened")
	}

	tp, err := topic.NewTopic(1, 1, "t", 4, testLimits, hp)
	if err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	if _, err := tp.AppendMessages(0, pending("a")); err != nil {
		t.Fatalf("AppendMessages: %v", err)
	}
}
