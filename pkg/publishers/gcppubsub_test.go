package publishers

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGCPPubSubSenderPublishes(t *testing.T) {
	// In-memory Pub/Sub emulator.
	server := pstest.NewServer()
	defer server.Close()
	t.Setenv("PUBSUB_EMULATOR_HOST", server.Addr)

	ctx := context.Background()
	client, err := pubsub.NewClient(ctx, "test-project")
	require.NoError(t, err)
	defer client.Close()
	_, err = client.CreateTopic(ctx, "topic-1")
	require.NoError(t, err)

	sender, err := newGCPPubSubSender(ctx, &GCPQueueConfig{
		ProjectID: "test-project",
		Topic:     "topic-1",
	}, nil)
	require.NoError(t, err)
	defer sender.Close()

	require.NoError(t, sender.Publish(ctx, landingEvent()))

	msgs := server.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "wx-app", msgs[0].Attributes["app_id"])
	assert.Equal(t, "login-42", msgs[0].Attributes["scene"])

	var got Event
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	assert.Equal(t, "o-user", got.OpenID)
}
