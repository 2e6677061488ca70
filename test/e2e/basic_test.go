package e2e

import (
	"testing"

	"github.com/downfa11-org/rill/pkg/client"
	"github.com/downfa11-org/rill/pkg/types"
)

// TestPublishPoll verifies append and poll over both transports.
func TestPublishPoll(t *testing.T) {
	for _, transport := range []string{client.TransportHTTP, client.TransportQUIC} {
		t.Run(transport, func(t *testing.T) {
			ctx := Given(t).WithTransport(transport).WithPartitions(3).WithNumMessages(25).WithBatchSize(4)
			defer ctx.Cleanup()

			ctx.When().
				StartBroker().
				CreateStream().
				CreateTopic().
				PublishMessages().
				PollMessages(7).
				Then().
				Expect(MessagesPolled(25)).
				And(OffsetsAreContiguous()).
				And(PolledMatchesSent()).
				And(TimestampsNeverDecrease())
		})
	}
}

// TestRecoveryAfterRestart verifies partitions are rebuilt from disk.
func TestRecoveryAfterRestart(t *testing.T) {
	ctx := Given(t).WithPartitions(2).WithNumMessages(12).WithBatchSize(5)
	defer ctx.Cleanup()

	ctx.When().
		StartBroker().
		CreateStream().
		CreateTopic().
		PublishMessages().
		RestartBroker().
		PollMessages(100).
		Then().
		Expect(MessagesPolled(12)).
		And(OffsetsAreContiguous()).
		And(PolledMatchesSent())
}

// TestPayloadLimit verifies the max payload boundary and that a rejected
// append leaves the partition unchanged.
func TestPayloadLimit(t *testing.T) {
	ctx := Given(t).WithoutPersistence().WithMaxPayloadSize(16).WithNumMessages(0)
	defer ctx.Cleanup()

	ctx.When().
		StartBroker().
		CreateStream().
		CreateTopic().
		PublishPayload(0, make([]byte, 17)).
		Then().
		Expect(LastErrorIs(types.ErrPayloadTooLarge))

	ctx.When().
		PublishPayload(0, make([]byte, 16)).
		PollMessages(10).
		Then().
		Expect(NoError()).
		And(MessagesPolled(1))
}

// TestMissingTopic verifies lookups surface the nearest missing level.
func TestMissingTopic(t *testing.T) {
	ctx := Given(t).WithoutPersistence()
	defer ctx.Cleanup()

	ctx.When().
		StartBroker().
		CreateStream().
		CreateTopic().
		PollTopic(99).
		Then().
		Expect(LastErrorIs(types.ErrTopicNotFound))
}
