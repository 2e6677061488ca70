package types_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/downfa11-org/rill/pkg/types"
)

func TestErrorIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("lookup: %w", types.TopicNotFound(99))

	if !errors.Is(err, types.ErrTopicNotFound) {
		t.Fatalf("expected errors.Is to match ErrTopicNotFound")
	}
	if errors.Is(err, types.ErrStreamNotFound) {
		t.Fatalf("did not expect ErrStreamNotFound to match")
	}
	if got := types.IDOf(err); got != 99 {
		t.Errorf("IDOf = %d; want 99", got)
	}
	if got := types.KindOf(err); got != types.KindTopicNotFound {
		t.Errorf("KindOf = %v; want %v", got, types.KindTopicNotFound)
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want types.Kind
	}{
		{nil, types.KindOK},
		{context.DeadlineExceeded, types.KindTimeout},
		{errors.New("boom"), types.KindUnknown},
		{types.PayloadTooLarge(10, 5), types.KindPayloadTooLarge},
		{types.TransportFailure(errors.New("reset")), types.KindTransportFailure},
	}

	for _, tt := range tests {
		if got := types.KindOf(tt.err); got != tt.want {
			t.Errorf("KindOf(%v) = %v; want %v", tt.err, got, tt.want)
		}
	}
}

func TestKindFromStatus(t *testing.T) {
	if got := types.KindFromStatus(3); got != types.KindPartitionNotFound {
		t.Errorf("KindFromStatus(3) = %v", got)
	}
	if got := types.KindFromStatus(77); got != types.KindUnknown {
		t.Errorf("KindFromStatus(77) = %v; want unknown", got)
	}
}

func TestErrorMessage(t *testing.T) {
	if got := types.TopicNotFound(99).Error(); got != "topic not found: 99" {
		t.Errorf("unexpected message %q", got)
	}
}
