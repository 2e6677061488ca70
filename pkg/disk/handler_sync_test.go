package disk

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/downfa11-org/rill/pkg/types"
)

func TestAppendRollsBackOnSyncFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partition_0.log")
	h, _, err := OpenHandler(path, 0)
	if err != nil {
		t.Fatalf("OpenHandler: %v", err)
	}

	msg := func(offset uint64, payload string) types.Message {
		return types.Message{ID: types.NewMessageID(), Offset: offset, Timestamp: 1700000000000 + offset, Payload: []byte(payload)}
	}

	if err := h.Append(msg(0, "a")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	sizeBefore := h.Size()

	errDisk := errors.New("disk gone")
	h.fsync = func() error { return errDisk }
	if err := h.Append(msg(1, "lost")); !errors.Is(err, errDisk) {
		t.Fatalf("expected sync failure, got %v", err)
	}
	if h.Size() != sizeBefore {
		t.Fatalf("size advanced after failed sync: %d != %d", h.Size(), sizeBefore)
	}

	h.fsync = h.file.Sync
	if err := h.Append(msg(1, "b")); err != nil {
		t.Fatalf("Append after failed sync: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, _, err := Recover(path)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if len(got) != 2 || string(got[0].Payload) != "a" || string(got[1].Payload) != "b" {
		t.Fatalf("unexpected records after recovery: %+v", got)
	}
	for i, m := range got {
		if m.Offset != uint64(i) {
			t.Errorf("record %d has offset %d", i, m.Offset)
		}
	}
}
