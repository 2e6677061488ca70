package bench

import "fmt"

// Target is one (stream, topic, partition) combination.
type Target struct {
	StreamID    uint32
	TopicID     uint32
	PartitionID uint32
}

func (t Target) String() string {
	return fmt.Sprintf("%d/%d/%d", t.StreamID, t.TopicID, t.PartitionID)
}

// Targets enumerates every partition the initializer creates, streams first.
func (c *Config) Targets() []Target {
	out := make([]Target, 0, c.Streams*c.Topics*c.Partitions)
	for s := 0; s < c.Streams; s++ {
		for t := 1; t <= c.Topics; t++ {
			for p := 0; p < c.Partitions; p++ {
				out = append(out, Target{
					StreamID:    c.StartStreamID + uint32(s),
					TopicID:     uint32(t),
					PartitionID: uint32(p),
				})
			}
		}
	}
	return out
}

// producerTarget routes batch i of producer p. Producers start at different
// offsets of the target list and advance one target per batch.
func producerTarget(targets []Target, producer, batch int) Target {
	return targets[(producer+batch)%len(targets)]
}

// Expected returns how many messages each target holds after a send pass.
func (c *Config) Expected() map[Target]uint64 {
	targets := c.Targets()
	out := make(map[Target]uint64, len(targets))
	for p := 0; p < c.Producers; p++ {
		for b := 0; b < c.MessageBatches; b++ {
			out[producerTarget(targets, p, b)] += uint64(c.MessagesPerBatch)
		}
	}
	return out
}

// consumerTargets assigns target i to consumer i % consumers.
func consumerTargets(targets []Target, consumer, consumers int) []Target {
	var out []Target
	for i, t := range targets {
		if i%consumers == consumer {
			out = append(out, t)
		}
	}
	return out
}
