package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatermillPublisher_PublishRevoked(t *testing.T) {
	pubsub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	t.Cleanup(func() { _ = pubsub.Close() })

	messages, err := pubsub.Subscribe(context.Background(), TopicRevoked)
	require.NoError(t, err)

	p := NewWatermillPublisher(pubsub)
	require.NoError(t, p.PublishRevoked(context.Background(), "7", "fam-1", "reuse_detected"))

	select {
	case msg := <-messages:
		var event RevokedEvent
		require.NoError(t, json.Unmarshal(msg.Payload, &event))
		assert.Equal(t, "7", event.SubjectID)
		assert.Equal(t, "fam-1", event.FamilyID)
		assert.Equal(t, "reuse_detected", event.Reason)
		assert.False(t, event.OccurredAt.IsZero())
		msg.Ack()
	case <-time.After(time.Second):
		t.Fatal("no message received on " + TopicRevoked)
	}
}
