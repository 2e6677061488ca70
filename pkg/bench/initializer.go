package bench

import (
	"context"
	"errors"
	"fmt"

	"github.com/downfa11-org/rill/pkg/client"
	"github.com/downfa11-org/rill/pkg/types"
	"github.com/downfa11-org/rill/util"
)

// Initializer creates the streams and topics a send pass writes to.
type Initializer struct {
	Config  *Config
	Factory client.Factory
}

func streamName(id uint32) string { return fmt.Sprintf("bench-stream-%d", id) }

func topicName(id uint32) string { return fmt.Sprintf("bench-topic-%d", id) }

// Init drops any stream left by an earlier pass and recreates the fan-out,
// so every pass starts from empty partitions.
func (in *Initializer) Init(ctx context.Context) error {
	c := in.Factory()
	if err := c.Connect(ctx); err != nil {
		return fmt.Errorf("initializer connect: %w", err)
	}
	defer func() {
		if err := c.Disconnect(); err != nil {
			util.Debug("initializer disconnect: %v", err)
		}
	}()
	s := client.NewSession(c)

	cfg := in.Config
	for i := 0; i < cfg.Streams; i++ {
		streamID := cfg.StartStreamID + uint32(i)
		if err := s.DeleteStream(ctx, streamID); err != nil && !errors.Is(err, types.ErrStreamNotFound) {
			return fmt.Errorf("delete stream %d: %w", streamID, err)
		}
		if err := s.CreateStream(ctx, streamID, streamName(streamID)); err != nil {
			return fmt.Errorf("create stream %d: %w", streamID, err)
		}
		for t := 1; t <= cfg.Topics; t++ {
			topicID := uint32(t)
			if err := s.CreateTopic(ctx, streamID, topicID, uint32(cfg.Partitions), topicName(topicID)); err != nil {
				return fmt.Errorf("create topic %d in stream %d: %w", topicID, streamID, err)
			}
		}
	}
	util.Debug("Initialized %d streams with %d topics of %d partitions", cfg.Streams, cfg.Topics, cfg.Partitions)
	return nil
}
