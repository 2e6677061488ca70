package e2e

import (
	"fmt"

	"github.com/downfa11-org/rill/pkg/protocol"
	"github.com/downfa11-org/rill/pkg/types"
)

// Actions represents test actions (When phase)
type Actions struct {
	ctx *TestContext
}

func (a *Actions) StartBroker() *Actions {
	a.ctx.startBroker()
	a.ctx.t.Logf("Broker started on %s (%s)", a.ctx.brokerAddr(), a.ctx.transport)
	return a
}

// RestartBroker stops the broker and opens it again from the same log directory.
func (a *Actions) RestartBroker() *Actions {
	a.ctx.t.Log("Restarting broker...")
	a.ctx.disconnect()
	a.ctx.stopBroker()
	a.ctx.startBroker()
	return a
}

func (a *Actions) CreateStream() *Actions {
	if err := a.ctx.getSession().CreateStream(a.ctx.ctx, a.ctx.streamID, fmt.Sprintf("stream-%d", a.ctx.streamID)); err != nil {
		a.ctx.t.Fatalf("Failed to create stream: %v", err)
	}
	return a
}

func (a *Actions) CreateTopic() *Actions {
	a.ctx.t.Logf("Creating topic %d with %d partitions...", a.ctx.topicID, a.ctx.partitions)
	err := a.ctx.getSession().CreateTopic(a.ctx.ctx, a.ctx.streamID, a.ctx.topicID, a.ctx.partitions, fmt.Sprintf("topic-%d", a.ctx.topicID))
	if err != nil {
		a.ctx.t.Fatalf("Failed to create topic: %v", err)
	}
	return a
}

// PublishMessages sends numMessages to every partition in batches of batchSize.
func (a *Actions) PublishMessages() *Actions {
	s := a.ctx.getSession()
	for p := uint32(0); p < a.ctx.partitions; p++ {
		for i := 0; i < a.ctx.numMessages; i += a.ctx.batchSize {
			n := min(a.ctx.batchSize, a.ctx.numMessages-i)
			batch := make([]protocol.BatchEntry, n)
			for j := range batch {
				batch[j] = protocol.BatchEntry{
					ID:      types.NewMessageID(),
					Payload: []byte(fmt.Sprintf("test-message-%d-%d", p, i+j)),
				}
			}

			var first uint64
			var err error
			if n == 1 {
				first, err = s.SendMessage(a.ctx.ctx, a.ctx.streamID, a.ctx.topicID, p, batch[0])
			} else {
				first, err = s.SendMessageBatch(a.ctx.ctx, a.ctx.streamID, a.ctx.topicID, p, batch)
			}
			if err != nil {
				a.ctx.t.Fatalf("Failed to publish to partition %d: %v", p, err)
			}
			for j, m := range batch {
				a.ctx.sent[p] = append(a.ctx.sent[p], types.Message{ID: m.ID, Offset: first + uint64(j), Payload: m.Payload})
			}
		}
	}
	return a
}

// PublishPayload sends a single payload and keeps the error for the Then phase.
func (a *Actions) PublishPayload(partition uint32, payload []byte) *Actions {
	_, a.ctx.lastError = a.ctx.getSession().SendMessage(a.ctx.ctx, a.ctx.streamID, a.ctx.topicID, partition,
		protocol.BatchEntry{ID: types.NewMessageID(), Payload: payload})
	return a
}

// PollMessages reads every partition from offset 0 in pages of count.
func (a *Actions) PollMessages(count uint32) *Actions {
	s := a.ctx.getSession()
	for p := uint32(0); p < a.ctx.partitions; p++ {
		var offset uint64
		a.ctx.polled[p] = nil
		for {
			msgs, err := s.PollMessagesWithIDs(a.ctx.ctx, a.ctx.streamID, a.ctx.topicID, p, offset, count)
			if err != nil {
				a.ctx.t.Fatalf("Failed to poll partition %d: %v", p, err)
			}
			if len(msgs) == 0 {
				break
			}
			a.ctx.polled[p] = append(a.ctx.polled[p], msgs...)
			offset = msgs[len(msgs)-1].Offset + 1
		}
	}
	return a
}

// PollTopic polls an arbitrary topic and keeps the error for the Then phase.
func (a *Actions) PollTopic(topicID uint32) *Actions {
	_, a.ctx.lastError = a.ctx.getSession().PollMessages(a.ctx.ctx, a.ctx.streamID, topicID, 0, 0, 10)
	return a
}

func (a *Actions) DeleteStream() *Actions {
	if err := a.ctx.getSession().DeleteStream(a.ctx.ctx, a.ctx.streamID); err != nil {
		a.ctx.t.Fatalf("Failed to delete stream: %v", err)
	}
	return a
}

func (a *Actions) Then() *Consequences {
	return a.ctx.Then()
}
