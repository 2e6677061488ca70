package bench

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/downfa11-org/rill/pkg/client"
	"github.com/downfa11-org/rill/pkg/protocol"
	"github.com/downfa11-org/rill/pkg/types"
	"github.com/downfa11-org/rill/util"
)

const emptyPollBackoff = time.Millisecond

type producer struct {
	id      int
	cfg     *Config
	targets []Target
	factory client.Factory
}

func (p *producer) run(ctx context.Context) (*WorkerResult, error) {
	res := newWorkerResult(fmt.Sprintf("producer-%d", p.id))
	c := p.factory()
	if err := c.Connect(ctx); err != nil {
		return nil, fmt.Errorf("%s connect: %w", res.Worker, err)
	}
	defer c.Disconnect()
	s := client.NewSession(c)

	payload := make([]byte, p.cfg.MessageSize)
	if _, err := rand.Read(payload); err != nil {
		return nil, err
	}
	batch := make([]protocol.BatchEntry, p.cfg.MessagesPerBatch)

	start := time.Now()
	for b := 0; b < p.cfg.MessageBatches; b++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t := producerTarget(p.targets, p.id, b)
		for i := range batch {
			batch[i] = protocol.BatchEntry{ID: types.NewMessageID(), Payload: payload}
		}

		callStart := time.Now()
		var err error
		if len(batch) == 1 {
			_, err = s.SendMessage(ctx, t.StreamID, t.TopicID, t.PartitionID, batch[0])
		} else {
			_, err = s.SendMessageBatch(ctx, t.StreamID, t.TopicID, t.PartitionID, batch)
		}
		if err != nil {
			return nil, fmt.Errorf("%s batch %d to %s: %w", res.Worker, b, t, err)
		}
		res.observe(time.Since(callStart))
		res.Messages += uint64(len(batch))
		res.TotalSizeBytes += uint64(len(batch) * len(payload))
	}
	res.Duration = time.Since(start)
	return res, nil
}

type consumer struct {
	id       int
	cfg      *Config
	targets  []Target
	expected map[Target]uint64
	factory  client.Factory
	// follow keeps polling on empty results until the expected count
	// arrives, for passes where producers run concurrently.
	follow bool
}

func (cn *consumer) run(ctx context.Context) (*WorkerResult, error) {
	res := newWorkerResult(fmt.Sprintf("consumer-%d", cn.id))
	res.Consumer = true
	if len(cn.targets) == 0 {
		return res, nil
	}
	c := cn.factory()
	if err := c.Connect(ctx); err != nil {
		return nil, fmt.Errorf("%s connect: %w", res.Worker, err)
	}
	defer c.Disconnect()
	s := client.NewSession(c)

	start := time.Now()
	for _, t := range cn.targets {
		if err := cn.drain(ctx, s, t, res); err != nil {
			return nil, fmt.Errorf("%s on %s: %w", res.Worker, t, err)
		}
	}
	res.Duration = time.Since(start)
	return res, nil
}

// drain polls t from offset 0 until the expected number of messages arrived,
// checking that offsets are contiguous.
func (cn *consumer) drain(ctx context.Context, s *client.Session, t Target, res *WorkerResult) error {
	want := cn.expected[t]
	var offset uint64
	for offset < want {
		if err := ctx.Err(); err != nil {
			return err
		}
		callStart := time.Now()
		msgs, err := s.PollMessages(ctx, t.StreamID, t.TopicID, t.PartitionID, offset, uint32(cn.cfg.PollBatchSize))
		if err != nil {
			return err
		}
		res.observe(time.Since(callStart))

		if len(msgs) == 0 {
			if !cn.follow {
				return fmt.Errorf("partition drained at offset %d, expected %d messages", offset, want)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(emptyPollBackoff):
			}
			continue
		}
		for _, m := range msgs {
			if m.Offset != offset {
				return fmt.Errorf("out of order message: expected offset %d, got %d", offset, m.Offset)
			}
			offset++
			res.Messages++
			res.TotalSizeBytes += uint64(len(m.Payload))
		}
	}
	util.Debug("%s read %d messages from %s", res.Worker, offset, t)
	return nil
}
