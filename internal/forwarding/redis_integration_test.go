//go:build integration

package forwarding_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KirkDiggler/pinball-core/internal/events"
	"github.com/KirkDiggler/pinball-core/internal/forwarding"
	"github.com/KirkDiggler/pinball-core/internal/modes"
	"github.com/KirkDiggler/pinball-core/internal/testutils"
)

func TestRedisSink_Integration(t *testing.T) {
	client := testutils.StartRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sink, err := forwarding.NewRedisSink(&forwarding.RedisSinkConfig{Client: client, Channel: "it:events"})
	require.NoError(t, err)

	sub := client.Subscribe(ctx, "it:events")
	defer sub.Close()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	stack := []modes.ActiveEntry{{Name: "bonus", Priority: 500}, {Name: "base", Priority: 100}}
	require.NoError(t, sink.Send(ctx, &forwarding.Message{
		Type:  forwarding.MessageTypeActiveModes,
		Event: events.ModesActiveModesChanged,
		Modes: stack,
		Time:  time.Now().UTC(),
	}))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var got forwarding.Message
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	assert.Equal(t, forwarding.MessageTypeActiveModes, got.Type)
	assert.Equal(t, stack, got.Modes)

	stored, err := client.Get(ctx, sink.ActiveModesKey()).Result()
	require.NoError(t, err)
	var snapshot []modes.ActiveEntry
	require.NoError(t, json.Unmarshal([]byte(stored), &snapshot))
	assert.Equal(t, stack, snapshot)
}
