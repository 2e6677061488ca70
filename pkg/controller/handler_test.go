package controller_test

import (
	"context"
	"errors"
	"testing"

	"github.com/downfa11-org/rill/pkg/config"
	"github.com/downfa11-org/rill/pkg/controller"
	"github.com/downfa11-org/rill/pkg/protocol"
	"github.com/downfa11-org/rill/pkg/stream"
	"github.com/downfa11-org/rill/pkg/topic"
	"github.com/downfa11-org/rill/pkg/types"
	"github.com/google/uuid"
)

func newHandler(t *testing.T) *controller.CommandHandler {
	t.Helper()
	cfg := config.Default()
	cfg.EnablePersistence = false
	cfg.MaxPayloadSize = 8
	sm := stream.NewManager(topic.Limits{MaxPayloadSize: cfg.MaxPayloadSize, MaxMessages: cfg.MaxPartitionMessages}, nil, nil)
	return controller.NewCommandHandler(sm, cfg)
}

func call(t *testing.T, ch *controller.CommandHandler, cmd protocol.Command) ([]byte, error) {
	t.Helper()
	raw, err := protocol.Encode(cmd)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	resp, fatal := ch.Handle(context.Background(), controller.NewClientContext("test", "local"), raw)
	if fatal {
		t.Fatalf("%s was treated as fatal", cmd.Opcode())
	}
	return protocol.ParseResponse(resp)
}

func TestHandleCreateSendPoll(t *testing.T) {
	ch := newHandler(t)

	if _, err := call(t, ch, &protocol.CreateStream{StreamID: 1, Name: "s"}); err != nil {
		t.Fatalf("CreateStream: %v", err)
	}
	if _, err := call(t, ch, &protocol.CreateTopic{StreamID: 1, TopicID: 1, PartitionsCount: 1, Name: "t"}); err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	id := uuid.New()
	body, err := call(t, ch, &protocol.SendMessages{StreamID: 1, TopicID: 1, MessageID: id, Payload: []byte("a")})
	if err != nil {
		t.Fatalf("SendMessages: %v", err)
	}
	if off, _ := protocol.ParseOffset(body); off != 0 {
		t.Errorf("expected offset 0, got %d", off)
	}

	body, err = call(t, ch, &protocol.SendMessageBatch{StreamID: 1, TopicID: 1, Messages: []protocol.BatchEntry{
		{ID: uuid.New(), Payload: []byte("bb")},
		{ID: uuid.New(), Payload: []byte("ccc")},
	}})
	if err != nil {
		t.Fatalf("SendMessageBatch: %v", err)
	}
	if first, count, _ := protocol.ParseBatch(body); first != 1 || count != 2 {
		t.Errorf("expected batch at 1 of 2, got %d of %d", first, count)
	}

	body, err = call(t, ch, &protocol.PollMessages{StreamID: 1, TopicID: 1, Offset: 0, Count: 10})
	if err != nil {
		t.Fatalf("PollMessages: %v", err)
	}
	// count, then offset, timestamp and payload_len per message
	if len(body) != 4+3*(8+8+4)+6 {
		t.Fatalf("unexpected poll body size %d", len(body))
	}
	msgs, err := protocol.ParseMessages(body)
	if err != nil {
		t.Fatalf("ParseMessages: %v", err)
	}
	want := []string{"a", "bb", "ccc"}
	if len(msgs) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(msgs))
	}
	for i, m := range msgs {
		if string(m.Payload) != want[i] || m.Offset != uint64(i) {
			t.Errorf("message %d: offset=%d payload=%q", i, m.Offset, m.Payload)
		}
	}

	body, err = call(t, ch, &protocol.PollMessagesWithIDs{PollMessages: protocol.PollMessages{StreamID: 1, TopicID: 1, Offset: 0, Count: 1}})
	if err != nil {
		t.Fatalf("PollMessagesWithIDs: %v", err)
	}
	msgs, err = protocol.ParseMessagesWithIDs(body)
	if err != nil {
		t.Fatalf("ParseMessagesWithIDs: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != id {
		t.Errorf("id changed: %v != %s", msgs, id)
	}
}

func TestHandleErrors(t *testing.T) {
	ch := newHandler(t)
	call(t, ch, &protocol.CreateStream{StreamID: 1, Name: "s"})
	call(t, ch, &protocol.CreateTopic{StreamID: 1, TopicID: 1, PartitionsCount: 1, Name: "t"})

	_, err := call(t, ch, &protocol.PollMessages{StreamID: 1, TopicID: 99, Count: 10})
	if !errors.Is(err, types.ErrTopicNotFound) || types.IDOf(err) != 99 {
		t.Errorf("expected TopicNotFound(99), got %v", err)
	}

	_, err = call(t, ch, &protocol.PollMessages{StreamID: 1, TopicID: 1, Count: 0})
	if !errors.Is(err, types.ErrInvalidCount) {
		t.Errorf("expected InvalidCount, got %v", err)
	}

	_, err = call(t, ch, &protocol.SendMessages{StreamID: 1, TopicID: 1, Payload: make([]byte, 9)})
	if !errors.Is(err, types.ErrPayloadTooLarge) {
		t.Errorf("expected PayloadTooLarge, got %v", err)
	}
	if _, err := call(t, ch, &protocol.SendMessages{StreamID: 1, TopicID: 1, Payload: make([]byte, 8)}); err != nil {
		t.Errorf("payload at the limit failed: %v", err)
	}

	_, err = call(t, ch, &protocol.CreateStream{StreamID: 1, Name: "again"})
	if !errors.Is(err, types.ErrStreamAlreadyExists) {
		t.Errorf("expected StreamAlreadyExists, got %v", err)
	}
}

func TestHandleMalformedIsFatal(t *testing.T) {
	ch := newHandler(t)

	resp, fatal := ch.Handle(context.Background(), nil, []byte{0x03, 1, 2})
	if !fatal {
		t.Fatal("expected malformed command to be fatal")
	}
	if _, err := protocol.ParseResponse(resp); !errors.Is(err, types.ErrInvalidCommand) {
		t.Fatalf("expected InvalidCommand, got %v", err)
	}
}

func TestHandleExpiredContext(t *testing.T) {
	ch := newHandler(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	raw, _ := protocol.Encode(&protocol.Ping{})
	resp, _ := ch.Handle(ctx, nil, raw)
	if _, err := protocol.ParseResponse(resp); !errors.Is(err, types.ErrTimeout) {
		t.Fatalf("expected Timeout, got %v", err)
	}
}
