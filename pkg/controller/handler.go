package controller

import (
	"context"
	"errors"
	"time"

	"github.com/downfa11-org/rill/pkg/config"
	"github.com/downfa11-org/rill/pkg/metrics"
	"github.com/downfa11-org/rill/pkg/protocol"
	"github.com/downfa11-org/rill/pkg/stream"
	"github.com/downfa11-org/rill/pkg/types"
	"github.com/downfa11-org/rill/util"
)

// CommandHandler decodes commands, applies them to the stream registry and
// encodes the response. It is shared by every transport and connection.
type CommandHandler struct {
	StreamManager *stream.Manager
	Config        *config.Config
}

func NewCommandHandler(sm *stream.Manager, cfg *config.Config) *CommandHandler {
	return &CommandHandler{
		StreamManager: sm,
		Config:        cfg,
	}
}

// Handle executes one raw command and returns the encoded response. fatal is
// true when the command could not be decoded and the connection should be closed.
func (ch *CommandHandler) Handle(ctx context.Context, cc *ClientContext, raw []byte) (resp []byte, fatal bool) {
	start := time.Now()

	cmd, err := protocol.Decode(raw)
	if err != nil {
		op := "invalid"
		if len(raw) > 0 {
			op = protocol.Opcode(raw[0]).String()
		}
		ch.logCommandResult(cc, op, err, start)
		return protocol.Error(err), errors.Is(err, types.ErrInvalidCommand)
	}

	if timeout := ch.Config.RequestTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	body, err := ch.execute(ctx, cmd)
	ch.logCommandResult(cc, cmd.Opcode().String(), err, start)
	if err != nil {
		return protocol.Error(err), false
	}
	return protocol.OK(body), false
}

func (ch *CommandHandler) execute(ctx context.Context, cmd protocol.Command) ([]byte, error) {
	// commands never block inside the engine, so the deadline is only checked on entry
	if err := ctx.Err(); err != nil {
		return nil, &types.Error{Kind: types.KindTimeout, Err: err}
	}
	sm := ch.StreamManager

	switch c := cmd.(type) {
	case *protocol.Ping:
		return nil, nil

	case *protocol.CreateStream:
		_, err := sm.CreateStream(c.StreamID, c.Name)
		return nil, err

	case *protocol.DeleteStream:
		return nil, sm.DeleteStream(c.StreamID)

	case *protocol.CreateTopic:
		_, err := sm.CreateTopic(c.StreamID, c.TopicID, c.Name, c.PartitionsCount)
		return nil, err

	case *protocol.DeleteTopic:
		return nil, sm.DeleteTopic(c.StreamID, c.TopicID)

	case *protocol.SendMessages:
		offset, err := sm.AppendMessages(c.StreamID, c.TopicID, c.PartitionID,
			types.PendingMessage{ID: c.MessageID, Payload: c.Payload})
		if err != nil {
			return nil, err
		}
		metrics.ObserveAppend(1, len(c.Payload))
		return protocol.OffsetBody(offset), nil

	case *protocol.SendMessageBatch:
		pending := make([]types.PendingMessage, len(c.Messages))
		size := 0
		for i, m := range c.Messages {
			pending[i] = types.PendingMessage{ID: m.ID, Payload: m.Payload}
			size += len(m.Payload)
		}
		first, err := sm.AppendBatch(c.StreamID, c.TopicID, c.PartitionID, pending)
		if err != nil {
			return nil, err
		}
		metrics.ObserveAppend(len(pending), size)
		return protocol.BatchBody(first, uint32(len(pending))), nil

	case *protocol.PollMessages:
		msgs, err := ch.poll(c, false)
		if err != nil {
			return nil, err
		}
		return protocol.MessagesBody(msgs), nil

	case *protocol.PollMessagesWithIDs:
		msgs, err := ch.poll(&c.PollMessages, true)
		if err != nil {
			return nil, err
		}
		return protocol.MessagesWithIDsBody(msgs), nil
	}

	return nil, types.InvalidCommand("unsupported opcode %s", cmd.Opcode())
}

// poll reads the requested range and drops the tail that would push the
// response past config.MaxResponseSize.
func (ch *CommandHandler) poll(c *protocol.PollMessages, withIDs bool) ([]types.Message, error) {
	msgs, err := ch.StreamManager.GetMessages(c.StreamID, c.TopicID, c.PartitionID, c.Offset, c.Count)
	if err != nil {
		return nil, err
	}
	msgs = protocol.FitMessages(msgs, withIDs, config.MaxResponseSize)
	metrics.MessagesPolled.Add(float64(len(msgs)))
	return msgs, nil
}

func (ch *CommandHandler) logCommandResult(cc *ClientContext, op string, err error, start time.Time) {
	elapsed := time.Since(start)
	transport := ""
	if cc != nil {
		transport = cc.Transport
	}

	kind := ""
	if err != nil {
		kind = types.KindOf(err).String()
		util.Debug("status: 'FAILURE', command: '%s' via %s: %v", op, transport, err)
	} else {
		util.Debug("status: 'SUCCESS', command: '%s' via %s in %s", op, transport, elapsed)
	}
	metrics.ObserveCommand(op, transport, kind, elapsed)
}
