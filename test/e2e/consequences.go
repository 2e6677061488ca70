package e2e

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/downfa11-org/rill/pkg/types"
)

// Consequences represents test assertions (Then phase)
type Consequences struct {
	ctx *TestContext
}

// Expectation is a function that validates test outcomes
type Expectation func(*TestContext) error

func (c *Consequences) Expect(expectations ...Expectation) *Consequences {
	for _, expectation := range expectations {
		if err := expectation(c.ctx); err != nil {
			c.ctx.t.Error(err)
		}
	}
	return c
}

func (c *Consequences) And(expectations ...Expectation) *Consequences {
	return c.Expect(expectations...)
}

// MessagesPolled verifies how many messages were read from each partition.
func MessagesPolled(perPartition int) Expectation {
	return func(ctx *TestContext) error {
		for p := uint32(0); p < ctx.partitions; p++ {
			if got := len(ctx.polled[p]); got != perPartition {
				return fmt.Errorf("partition %d: expected %d messages polled, got %d", p, perPartition, got)
			}
		}
		return nil
	}
}

// OffsetsAreContiguous verifies every partition returned offsets 0..n-1.
func OffsetsAreContiguous() Expectation {
	return func(ctx *TestContext) error {
		for p, msgs := range ctx.polled {
			for i, m := range msgs {
				if m.Offset != uint64(i) {
					return fmt.Errorf("partition %d: message %d has offset %d", p, i, m.Offset)
				}
			}
		}
		return nil
	}
}

// PolledMatchesSent verifies ids and payloads survive the round trip.
func PolledMatchesSent() Expectation {
	return func(ctx *TestContext) error {
		for p, sent := range ctx.sent {
			polled := ctx.polled[p]
			if len(polled) != len(sent) {
				return fmt.Errorf("partition %d: sent %d, polled %d", p, len(sent), len(polled))
			}
			for i := range sent {
				if polled[i].ID != sent[i].ID || !bytes.Equal(polled[i].Payload, sent[i].Payload) {
					return fmt.Errorf("partition %d offset %d: polled %v, sent %v", p, i, polled[i], sent[i])
				}
			}
		}
		return nil
	}
}

// TimestampsNeverDecrease verifies per-partition timestamp order.
func TimestampsNeverDecrease() Expectation {
	return func(ctx *TestContext) error {
		for p, msgs := range ctx.polled {
			for i := 1; i < len(msgs); i++ {
				if msgs[i].Timestamp < msgs[i-1].Timestamp {
					return fmt.Errorf("partition %d: timestamp went backwards at offset %d", p, i)
				}
			}
		}
		return nil
	}
}

// LastErrorIs verifies the most recent recorded failure has the given kind.
func LastErrorIs(target *types.Error) Expectation {
	return func(ctx *TestContext) error {
		if !errors.Is(ctx.lastError, target) {
			return fmt.Errorf("expected %v, got %v", target.Kind, ctx.lastError)
		}
		return nil
	}
}

// NoError verifies the most recent recorded call succeeded.
func NoError() Expectation {
	return func(ctx *TestContext) error {
		if ctx.lastError != nil {
			return fmt.Errorf("expected success, got %v", ctx.lastError)
		}
		return nil
	}
}
