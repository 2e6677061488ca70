package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/downfa11-org/rill/pkg/client"
	"github.com/downfa11-org/rill/pkg/protocol"
	"github.com/downfa11-org/rill/util"
)

const helpText = `Available commands:
PING - check the broker is reachable
CREATE_STREAM id=<N> name=<name> - create stream
DELETE_STREAM id=<N> - delete stream with its topics
CREATE_TOPIC stream=<N> id=<N> name=<name> [partitions=<N>] - create topic (default=1)
DELETE_TOPIC stream=<N> id=<N> - delete topic
SEND stream=<N> topic=<N> partition=<N> message=<text> - append one message
POLL stream=<N> topic=<N> partition=<N> [offset=<N>] [count=<N>] - read messages (default count=10)
HELP - show this help
EXIT - exit`

// execute runs one shell line against the broker and renders the result.
func execute(ctx context.Context, s *client.Session, line string) (string, error) {
	name, rest, _ := strings.Cut(line, " ")
	args := parseKeyValueArgs(rest)

	switch strings.ToUpper(name) {
	case "HELP":
		return helpText, nil

	case "PING":
		if err := s.Ping(ctx); err != nil {
			return "", err
		}
		return "PONG", nil

	case "CREATE_STREAM":
		id, err := requireID(args, "id")
		if err != nil {
			return "", err
		}
		if err := s.CreateStream(ctx, id, args["name"]); err != nil {
			return "", err
		}
		return fmt.Sprintf("✅ Stream '%s' created with id %d", args["name"], id), nil

	case "DELETE_STREAM":
		id, err := requireID(args, "id")
		if err != nil {
			return "", err
		}
		if err := s.DeleteStream(ctx, id); err != nil {
			return "", err
		}
		return fmt.Sprintf("🗑️ Stream %d deleted", id), nil

	case "CREATE_TOPIC":
		ids, err := requireIDs(args, "stream", "id")
		if err != nil {
			return "", err
		}
		partitions, err := util.ParseUintOr("partitions", args["partitions"], 1, 32)
		if err != nil {
			return "", err
		}
		if partitions == 0 {
			return "", fmt.Errorf("partitions must be a positive integer")
		}
		if err := s.CreateTopic(ctx, ids[0], ids[1], uint32(partitions), args["name"]); err != nil {
			return "", err
		}
		return fmt.Sprintf("✅ Topic '%s' now has %d partitions", args["name"], partitions), nil

	case "DELETE_TOPIC":
		ids, err := requireIDs(args, "stream", "id")
		if err != nil {
			return "", err
		}
		if err := s.DeleteTopic(ctx, ids[0], ids[1]); err != nil {
			return "", err
		}
		return fmt.Sprintf("🗑️ Topic %d deleted from stream %d", ids[1], ids[0]), nil

	case "SEND":
		ids, err := requireIDs(args, "stream", "topic", "partition")
		if err != nil {
			return "", err
		}
		msg, ok := args["message"]
		if !ok {
			return "", fmt.Errorf("missing message parameter")
		}
		off, err := s.SendMessage(ctx, ids[0], ids[1], ids[2], protocol.BatchEntry{Payload: []byte(msg)})
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("OK offset=%d", off), nil

	case "POLL":
		ids, err := requireIDs(args, "stream", "topic", "partition")
		if err != nil {
			return "", err
		}
		offset, err := util.ParseUintOr("offset", args["offset"], 0, 64)
		if err != nil {
			return "", err
		}
		count, err := util.ParseUintOr("count", args["count"], 10, 32)
		if err != nil {
			return "", err
		}
		msgs, err := s.PollMessagesWithIDs(ctx, ids[0], ids[1], ids[2], offset, uint32(count))
		if err != nil {
			return "", err
		}
		var b strings.Builder
		fmt.Fprintf(&b, "%d message(s)", len(msgs))
		for _, m := range msgs {
			fmt.Fprintf(&b, "\n  [%d] ts=%d id=%s %q", m.Offset, m.Timestamp, m.ID, m.Payload)
		}
		return b.String(), nil
	}

	return "", fmt.Errorf("unknown command %q, type HELP", name)
}

// parseKeyValueArgs splits "k=v" pairs; everything after message= is taken verbatim.
func parseKeyValueArgs(argsStr string) map[string]string {
	result := make(map[string]string)

	before := argsStr
	if idx := strings.Index(argsStr, "message="); idx != -1 {
		before = argsStr[:idx]
		result["message"] = strings.TrimSpace(argsStr[idx+len("message="):])
	}
	for _, part := range strings.Fields(before) {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) == 2 {
			result[kv[0]] = kv[1]
		}
	}
	return result
}

func requireID(args map[string]string, key string) (uint32, error) {
	v, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("missing %s parameter", key)
	}
	id, err := util.ParseUint(key, v, 32)
	if err != nil {
		return 0, err
	}
	return uint32(id), nil
}

func requireIDs(args map[string]string, keys ...string) ([]uint32, error) {
	out := make([]uint32, len(keys))
	for i, k := range keys {
		id, err := requireID(args, k)
		if err != nil {
			return nil, err
		}
		out[i] = id
	}
	return out, nil
}
