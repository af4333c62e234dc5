package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	appnotification "github.com/Zhima-Mochi/minishop-fulfillment/internal/application/notification"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, client
}

func envelope(orderID string) appnotification.Envelope {
	return appnotification.Envelope{
		Event: "order.created",
		Key:   orderID,
		Payload: appnotification.Payload{
			ID:      "n-" + orderID,
			Message: "New order #" + orderID + " created for Chair",
			OrderID: orderID,
		},
	}
}

func TestSendPublishesToChannel(t *testing.T) {
	_, client := setupTestRedis(t)
	ctx := context.Background()

	sub := client.Subscribe(ctx, "test:notifications")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	sink := NewSink(client, "test:notifications")
	require.NoError(t, sink.Send(ctx, envelope("o1")))

	recvCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	msg, err := sub.ReceiveMessage(recvCtx)
	require.NoError(t, err)

	var got struct {
		Event   string `json:"event"`
		Key     string `json:"key"`
		Payload struct {
			Message string `json:"message"`
			OrderID string `json:"orderId"`
		} `json:"payload"`
	}
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	assert.Equal(t, "order.created", got.Event)
	assert.Equal(t, "o1", got.Key)
	assert.Equal(t, "New order #o1 created for Chair", got.Payload.Message)
}

func TestRecentBacklogIsCapped(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()
	sink := NewSink(client, "", WithBacklog(2))

	for _, id := range []string{"o1", "o2", "o3"} {
		require.NoError(t, sink.Send(ctx, envelope(id)))
	}

	stored, err := mr.List(DefaultChannel + ":recent")
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	recent, err := sink.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Contains(t, string(recent[0]), `"key":"o3"`)
	assert.Contains(t, string(recent[1]), `"key":"o2"`)
}

func TestSendFailsWhenServerDown(t *testing.T) {
	mr, client := setupTestRedis(t)
	sink := NewSink(client, "")
	require.NoError(t, sink.Ping(context.Background()))

	mr.Close()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.Error(t, sink.Send(ctx, envelope("o1")))
}
