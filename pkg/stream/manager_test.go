package stream_test

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/downfa11-org/rill/pkg/config"
	"github.com/downfa11-org/rill/pkg/stream"
	"github.com/downfa11-org/rill/pkg/topic"
	"github.com/downfa11-org/rill/pkg/types"
)

var testLimits = topic.Limits{MaxPayloadSize: 1024, MaxMessages: 1_000_000}

func pending(payload string) types.PendingMessage {
	return types.PendingMessage{ID: types.NewMessageID(), Payload: []byte(payload)}
}

func TestCreateAppendPoll(t *testing.T) {
	sm := stream.NewManager(testLimits, nil, nil)

	if _, err := sm.CreateStream(1, "s"); err != nil {
		t.Fatalf("CreateStream: %v", err)
	}
	if _, err := sm.CreateTopic(1, 1, "t", 1); err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	sent := []types.PendingMessage{pending("a"), pending("bb"), pending("ccc")}
	for i, m := range sent {
		off, err := sm.AppendMessages(1, 1, 0, m)
		if err != nil {
			t.Fatalf("AppendMessages: %v", err)
		}
		if off != uint64(i) {
			t.Errorf("expected offset %d, got %d", i, off)
		}
	}

	got, err := sm.GetMessages(1, 1, 0, 0, 10)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got))
	}
	for i, m := range got {
		if m.Offset != uint64(i) {
			t.Errorf("message %d has offset %d", i, m.Offset)
		}
		if string(m.Payload) != string(sent[i].Payload) {
			t.Errorf("message %d payload %q, want %q", i, m.Payload, sent[i].Payload)
		}
		if m.ID != sent[i].ID {
			t.Errorf("message %d id %s, want %s", i, m.ID, sent[i].ID)
		}
	}
}

func TestNotFoundErrors(t *testing.T) {
	sm := stream.NewManager(testLimits, nil, nil)
	if _, err := sm.CreateStream(1, "s"); err != nil {
		t.Fatalf("CreateStream: %v", err)
	}
	if _, err := sm.CreateTopic(1, 1, "t", 1); err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	_, err := sm.GetMessages(1, 99, 0, 0, 10)
	if !errors.Is(err, types.ErrTopicNotFound) || types.IDOf(err) != 99 {
		t.Fatalf("expected TopicNotFound(99), got %v", err)
	}

	_, err = sm.AppendMessages(2, 1, 0, pending("x"))
	if !errors.Is(err, types.ErrStreamNotFound) || types.IDOf(err) != 2 {
		t.Fatalf("expected StreamNotFound(2), got %v", err)
	}

	_, err = sm.AppendMessages(1, 1, 7, pending("x"))
	if !errors.Is(err, types.ErrPartitionNotFound) || types.IDOf(err) != 7 {
		t.Fatalf("expected PartitionNotFound(7), got %v", err)
	}
}

func TestDuplicatesAndNames(t *testing.T) {
	sm := stream.NewManager(testLimits, nil, nil)
	if _, err := sm.CreateStream(1, "s"); err != nil {
		t.Fatalf("CreateStream: %v", err)
	}

	if _, err := sm.CreateStream(1, "other"); !errors.Is(err, types.ErrStreamAlreadyExists) {
		t.Errorf("expected StreamAlreadyExists for duplicate id, got %v", err)
	}
	if _, err := sm.CreateStream(2, "s"); !errors.Is(err, types.ErrStreamAlreadyExists) {
		t.Errorf("expected StreamAlreadyExists for duplicate name, got %v", err)
	}
	if _, err := sm.CreateStream(3, ""); !errors.Is(err, types.ErrInvalidName) {
		t.Errorf("expected InvalidName for empty name, got %v", err)
	}
	if _, err := sm.CreateStream(3, strings.Repeat("n", stream.MaxNameLength+1)); !errors.Is(err, types.ErrInvalidName) {
		t.Errorf("expected InvalidName for long name, got %v", err)
	}

	if _, err := sm.CreateTopic(1, 1, "t", 2); err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	if _, err := sm.CreateTopic(1, 1, "u", 2); !errors.Is(err, types.ErrTopicAlreadyExists) {
		t.Errorf("expected TopicAlreadyExists for duplicate id, got %v", err)
	}
	if _, err := sm.CreateTopic(1, 2, "t", 2); !errors.Is(err, types.ErrTopicAlreadyExists) {
		t.Errorf("expected TopicAlreadyExists for duplicate name, got %v", err)
	}
	if _, err := sm.CreateTopic(1, 3, "v", 0); !errors.Is(err, types.ErrInvalidCount) {
		t.Errorf("expected InvalidCount for zero partitions, got %v", err)
	}
}

func TestDeleteStreamAndTopic(t *testing.T) {
	sm := stream.NewManager(testLimits, nil, nil)
	if _, err := sm.CreateStream(1, "s"); err != nil {
		t.Fatalf("CreateStream: %v", err)
	}
	if _, err := sm.CreateTopic(1, 1, "t", 1); err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	if err := sm.DeleteTopic(1, 1); err != nil {
		t.Fatalf("DeleteTopic: %v", err)
	}
	if err := sm.DeleteTopic(1, 1); !errors.Is(err, types.ErrTopicNotFound) {
		t.Errorf("expected TopicNotFound on second delete, got %v", err)
	}
	// the name is free again
	if _, err := sm.CreateTopic(1, 2, "t", 1); err != nil {
		t.Fatalf("CreateTopic after delete: %v", err)
	}

	if err := sm.DeleteStream(1); err != nil {
		t.Fatalf("DeleteStream: %v", err)
	}
	if _, err := sm.GetStream(1); !errors.Is(err, types.ErrStreamNotFound) {
		t.Errorf("expected StreamNotFound after delete, got %v", err)
	}
	if len(sm.Streams()) != 0 {
		t.Errorf("expected no streams, got %d", len(sm.Streams()))
	}
}

func TestConcurrentAppendsAcrossTopics(t *testing.T) {
	sm := stream.NewManager(testLimits, nil, nil)
	if _, err := sm.CreateStream(1, "s"); err != nil {
		t.Fatalf("CreateStream: %v", err)
	}
	for id := uint32(1); id <= 3; id++ {
		if _, err := sm.CreateTopic(1, id, "t"+string(rune('0'+id)), 2); err != nil {
			t.Fatalf("CreateTopic: %v", err)
		}
	}

	const perWorker = 200
	var wg sync.WaitGroup
	for w := 0; w < 6; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			topicID := uint32(w%3) + 1
			partitionID := uint32(w % 2)
			for i := 0; i < perWorker; i++ {
				if _, err := sm.AppendMessages(1, topicID, partitionID, pending("m")); err != nil {
					t.Errorf("AppendMessages: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	s, err := sm.GetStream(1)
	if err != nil {
		t.Fatalf("GetStream: %v", err)
	}
	var total uint64
	for _, tp := range s.Topics() {
		total += tp.MessagesCount()
	}
	if total != 6*perWorker {
		t.Fatalf("expected %d messages, got %d", 6*perWorker, total)
	}
}

func TestRecoverAfterRestart(t *testing.T) {
	cfg := config.Default()
	cfg.LogDir = t.TempDir()
	cfg.FsyncIntervalMS = 0

	sm, err := stream.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := sm.CreateStream(1, "s"); err != nil {
		t.Fatalf("CreateStream: %v", err)
	}
	if _, err := sm.CreateTopic(1, 1, "t", 2); err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	if _, err := sm.CreateStream(2, "gone"); err != nil {
		t.Fatalf("CreateStream: %v", err)
	}
	if _, err := sm.CreateTopic(2, 1, "t", 1); err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	first, err := sm.AppendBatch(1, 1, 1, []types.PendingMessage{pending("a"), pending("b")})
	if err != nil || first != 0 {
		t.Fatalf("AppendBatch: first=%d err=%v", first, err)
	}
	if err := sm.DeleteStream(2); err != nil {
		t.Fatalf("DeleteStream: %v", err)
	}
	before, _ := sm.GetMessages(1, 1, 1, 0, 10)
	sm.Close()

	sm, err = stream.Open(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer sm.Close()

	if _, err := sm.GetStream(2); !errors.Is(err, types.ErrStreamNotFound) {
		t.Errorf("deleted stream came back: %v", err)
	}
	after, err := sm.GetMessages(1, 1, 1, 0, 10)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(after) != 2 {
		t.Fatalf("expected 2 recovered messages, got %d", len(after))
	}
	for i := range after {
		if after[i].ID != before[i].ID || after[i].Timestamp != before[i].Timestamp ||
			string(after[i].Payload) != string(before[i].Payload) {
			t.Errorf("message %d differs after recovery: %+v vs %+v", i, after[i], before[i])
		}
	}

	off, err := sm.AppendMessages(1, 1, 1, pending("c"))
	if err != nil || off != 2 {
		t.Fatalf("append after recovery: off=%d err=%v", off, err)
	}
}

func TestDeleteStreamRacesRecreate(t *testing.T) {
	cfg := config.Default()
	cfg.LogDir = t.TempDir()
	cfg.FsyncIntervalMS = 0

	sm, err := stream.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	setup := func() {
		t.Helper()
		if err := sm.DeleteStream(1); err != nil && !errors.Is(err, types.ErrStreamNotFound) {
			t.Fatalf("DeleteStream: %v", err)
		}
		if _, err := sm.CreateStream(1, "s"); err != nil {
			t.Fatalf("CreateStream: %v", err)
		}
		if _, err := sm.CreateTopic(1, 1, "t", 1); err != nil {
			t.Fatalf("CreateTopic: %v", err)
		}
	}
	tolerated := func(err error) bool {
		return err == nil ||
			errors.Is(err, types.ErrStreamNotFound) ||
			errors.Is(err, types.ErrStreamAlreadyExists) ||
			errors.Is(err, types.ErrTopicAlreadyExists)
	}

	setup()
	for i := 0; i < 50; i++ {
		var wg sync.WaitGroup
		errs := make(chan error, 3)
		wg.Add(2)
		go func() {
			defer wg.Done()
			errs <- sm.DeleteStream(1)
		}()
		go func() {
			defer wg.Done()
			_, err := sm.CreateStream(1, "s")
			errs <- err
			_, err = sm.CreateTopic(1, 1, "t", 1)
			errs <- err
		}()
		wg.Wait()
		close(errs)
		for err := range errs {
			if !tolerated(err) {
				t.Fatalf("iteration %d: %v", i, err)
			}
		}

		setup()
		off, err := sm.AppendMessages(1, 1, 0, pending("x"))
		if err != nil || off != 0 {
			t.Fatalf("iteration %d: append after re-create: off=%d err=%v", i, off, err)
		}
	}
	sm.Close()

	sm, err = stream.Open(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer sm.Close()
	msgs, err := sm.GetMessages(1, 1, 0, 0, 10)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(msgs) != 1 || string(msgs[0].Payload) != "x" {
		t.Fatalf("expected the last generation's single message, got %+v", msgs)
	}
}
