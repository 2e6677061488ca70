package topic_test

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/downfa11-org/rill/pkg/disk"
	"github.com/downfa11-org/rill/pkg/topic"
	"github.com/downfa11-org/rill/pkg/types"
)

var testLimits = topic.Limits{MaxPayloadSize: 16, MaxMessages: 1000}

func pending(payload string) types.PendingMessage {
	return types.PendingMessage{ID: types.NewMessageID(), Payload: []byte(payload)}
}

func TestPartitionAppendPoll(t *testing.T) {
	p := topic.NewPartition(0, testLimits, nil, nil)

	sent := []types.PendingMessage{pending("a"), pending("bb"), pending("ccc")}
	for i, m := range sent {
		off, err := p.Append(m)
		if err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
		if off != uint64(i) {
			t.Errorf("expected offset %d, got %d", i, off)
		}
	}

	got, err := p.Poll(0, 10)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got))
	}
	for i, m := range got {
		if m.Offset != uint64(i) {
			t.Errorf("message %d has offset %d", i, m.Offset)
		}
		if m.ID != sent[i].ID || !bytes.Equal(m.Payload, sent[i].Payload) {
			t.Errorf("message %d does not match appended message", i)
		}
		if i > 0 && m.Timestamp < got[i-1].Timestamp {
			t.Errorf("timestamps went backwards at %d", i)
		}
	}
}

func TestPartitionPollBounds(t *testing.T) {
	p := topic.NewPartition(0, testLimits, nil, nil)
	for i := 0; i < 5; i++ {
		if _, err := p.Append(pending(fmt.Sprint(i))); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	if _, err := p.Poll(0, 0); !errors.Is(err, types.ErrInvalidCount) {
		t.Fatalf("expected InvalidCount, got %v", err)
	}

	got, err := p.Poll(5, 10)
	if err != nil {
		t.Fatalf("Poll at next offset: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty poll at next offset, got %d", len(got))
	}

	got, err = p.Poll(3, 10)
	if err != nil {
		t.Fatalf("Poll spanning end: %v", err)
	}
	if len(got) != 2 || got[0].Offset != 3 || got[1].Offset != 4 {
		t.Errorf("expected offsets 3,4, got %v", got)
	}

	got, err = p.Poll(1, 2)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(got) != 2 || got[0].Offset != 1 {
		t.Errorf("expected offsets 1,2, got %v", got)
	}
}

func TestPartitionPayloadLimit(t *testing.T) {
	p := topic.NewPartition(0, testLimits, nil, nil)

	if _, err := p.Append(types.PendingMessage{Payload: make([]byte, testLimits.MaxPayloadSize)}); err != nil {
		t.Fatalf("payload at the limit should succeed: %v", err)
	}
	_, err := p.Append(types.PendingMessage{Payload: make([]byte, testLimits.MaxPayloadSize+1)})
	if !errors.Is(err, types.ErrPayloadTooLarge) {
		t.Fatalf("expected PayloadTooLarge, got %v", err)
	}
	if p.NextOffset() != 1 {
		t.Errorf("next offset changed by rejected append: %d", p.NextOffset())
	}

	batch := []types.PendingMessage{pending("ok"), {Payload: make([]byte, testLimits.MaxPayloadSize+1)}}
	if _, err := p.AppendBatch(batch); !errors.Is(err, types.ErrPayloadTooLarge) {
		t.Fatalf("expected PayloadTooLarge for batch, got %v", err)
	}
	if p.NextOffset() != 1 {
		t.Errorf("rejected batch must not append anything: next offset %d", p.NextOffset())
	}
}

func TestPartitionFull(t *testing.T) {
	p := topic.NewPartition(7, topic.Limits{MaxPayloadSize: 16, MaxMessages: 2}, nil, nil)
	if _, err := p.AppendBatch([]types.PendingMessage{pending("a"), pending("b")}); err != nil {
		t.Fatalf("AppendBatch: %v", err)
	}
	if _, err := p.Append(pending("c")); !errors.Is(err, types.ErrPartitionFull) {
		t.Fatalf("expected PartitionFull, got %v", err)
	}
}

func TestPartitionAssignsMissingID(t *testing.T) {
	p := topic.NewPartition(0, testLimits, nil, nil)
	if _, err := p.Append(types.PendingMessage{Payload: []byte("x")}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	got, _ := p.Poll(0, 1)
	if got[0].ID == types.U128(make([]byte, 16)) {
		t.Errorf("expected a generated message id")
	}
}

func TestPartitionConcurrentAppends(t *testing.T) {
	p := topic.NewPartition(0, topic.Limits{MaxPayloadSize: 64, MaxMessages: 1 << 20}, nil, nil)

	const writers, perWriter = 8, 250
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if _, err := p.Append(pending(fmt.Sprintf("w%d-%d", w, i))); err != nil {
					t.Errorf("Append: %v", err)
					return
				}
			}
		}(w)
	}

	// readers run alongside the writers and must only see gap-free prefixes
	done := make(chan struct{})
	var rg sync.WaitGroup
	for r := 0; r < 4; r++ {
		rg.Add(1)
		go func() {
			defer rg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				msgs, err := p.Poll(0, writers*perWriter)
				if err != nil {
					t.Errorf("Poll: %v", err)
					return
				}
				for i, m := range msgs {
					if m.Offset != uint64(i) {
						t.Errorf("gap in poll: index %d has offset %d", i, m.Offset)
						return
					}
				}
			}
		}()
	}

	wg.Wait()
	close(done)
	rg.Wait()

	if got := p.NextOffset(); got != writers*perWriter {
		t.Fatalf("expected next offset %d, got %d", writers*perWriter, got)
	}

	// each writer's messages keep their relative order
	msgs, _ := p.Poll(0, writers*perWriter)
	next := make(map[string]int)
	for _, m := range msgs {
		var w, i int
		if _, err := fmt.Sscanf(string(m.Payload), "w%d-%d", &w, &i); err != nil {
			t.Fatalf("bad payload %q", m.Payload)
		}
		key := fmt.Sprint(w)
		if i != next[key] {
			t.Fatalf("writer %d out of order: got %d want %d", w, i, next[key])
		}
		next[key]++
	}
}

type failingStore struct{}

func (failingStore) Append(...types.Message) error { return errors.New("disk full") }

func TestPartitionStoreFailureKeepsOffset(t *testing.T) {
	p := topic.NewPartition(0, testLimits, failingStore{}, nil)
	if _, err := p.Append(pending("x")); err == nil {
		t.Fatalf("expected store error")
	}
	if p.NextOffset() != 0 {
		t.Errorf("failed append must not become visible")
	}
}

func TestPartitionRecoveredFromDisk(t *testing.T) {
	dm := disk.NewManager(t.TempDir(), 0)
	dh, _, err := dm.Open(1, 1, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	p := topic.NewPartition(0, testLimits, dh, nil)
	for _, s := range []string{"a", "bb"} {
		if _, err := p.Append(pending(s)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	dm.CloseAllHandlers()

	dh, recovered, err := dm.Open(1, 1, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer dm.CloseAllHandlers()

	p = topic.NewPartition(0, testLimits, dh, recovered)
	if p.NextOffset() != 2 {
		t.Fatalf("expected next offset 2 after recovery, got %d", p.NextOffset())
	}
	off, err := p.Append(pending("ccc"))
	if err != nil {
		t.Fatalf("Append after recovery: %v", err)
	}
	if off != 2 {
		t.Errorf("expected offset 2, got %d", off)
	}
}
