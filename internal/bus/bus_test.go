package bus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleMessage() Message {
	return Message{
		Origin:   "instance-a",
		RoomID:   "studio1",
		SenderID: "c1",
		Kind:     "reaction",
		Payload:  json.RawMessage(`{"roomId":"studio1","emoji":"🔥","author":"c1"}`),
	}
}

// roundTrip subscribes, publishes until the subscriber sees a message and
// returns what it received.
func roundTrip(t *testing.T, b Bus) Message {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan Message, 16)
	subErr := make(chan error, 1)
	go func() {
		subErr <- b.Subscribe(ctx, func(m Message) {
			select {
			case got <- m:
			default:
			}
		})
	}()

	want := sampleMessage()
	var received Message
	require.Eventually(t, func() bool {
		assert.NoError(t, b.Publish(ctx, want))
		select {
		case received = <-got:
			return true
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-subErr:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Subscribe did not return after cancel")
	}
	return received
}

func TestRedisBus_RoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)

	b, err := NewRedisBus(context.Background(), RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	defer b.Close()

	got := roundTrip(t, b)
	want := sampleMessage()
	assert.Equal(t, want.Origin, got.Origin)
	assert.Equal(t, want.RoomID, got.RoomID)
	assert.Equal(t, want.SenderID, got.SenderID)
	assert.Equal(t, want.Kind, got.Kind)
	assert.JSONEq(t, string(want.Payload), string(got.Payload))
}

func TestRedisBus_Unreachable(t *testing.T) {
	_, err := NewRedisBus(context.Background(), RedisConfig{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}

func TestRedisChannel(t *testing.T) {
	assert.Equal(t, "studio:room:studio 1", redisChannel("studio 1"))
}

func TestNatsBus_RoundTrip(t *testing.T) {
	s := natsserver.RunRandClientPortServer()
	defer s.Shutdown()

	b, err := NewNatsBus(NatsConfig{URL: s.ClientURL(), Name: "studiohub-test"})
	require.NoError(t, err)
	defer b.Close()

	got := roundTrip(t, b)
	want := sampleMessage()
	assert.Equal(t, want.RoomID, got.RoomID)
	assert.Equal(t, want.Kind, got.Kind)
	assert.JSONEq(t, string(want.Payload), string(got.Payload))
}

func TestNatsBus_MissingURL(t *testing.T) {
	_, err := NewNatsBus(NatsConfig{})
	assert.Error(t, err)
}

func TestNop(t *testing.T) {
	var b Bus = Nop{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, b.Publish(ctx, sampleMessage()))
	assert.NoError(t, b.Subscribe(ctx, func(Message) { t.Fatal("Nop should not deliver") }))
	assert.NoError(t, b.Close())
}
