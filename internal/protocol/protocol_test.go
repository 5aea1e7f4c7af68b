package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		frame    string
		wantErr  error
		wantType string
		wantRoom string
		wantKind Kind
	}{
		{
			name:     "join room",
			frame:    `{"type":"join-room","payload":{"roomId":"studio1"}}`,
			wantType: TypeJoinRoom,
			wantRoom: "studio1",
		},
		{
			name:     "chat message",
			frame:    `{"type":"send-message","payload":{"roomId":"studio1","author":"c1","text":"hi","timestamp":1}}`,
			wantType: TypeSendMessage,
			wantRoom: "studio1",
			wantKind: KindChatMessage,
		},
		{
			name:     "state sync",
			frame:    `{"type":"sync-state","payload":{"roomId":"studio1","state":{"tbar":0.42}}}`,
			wantType: TypeSyncState,
			wantRoom: "studio1",
			wantKind: KindStateSync,
		},
		{
			name:     "reaction",
			frame:    `{"type":"send-reaction","payload":{"roomId":"studio1","emoji":"🔥","author":"c1"}}`,
			wantType: TypeSendReaction,
			wantRoom: "studio1",
			wantKind: KindReaction,
		},
		{
			name:    "not json",
			frame:   `hello`,
			wantErr: ErrMalformed,
		},
		{
			name:    "invalid utf-8 in a string",
			frame:   "{\"type\":\"send-message\",\"payload\":{\"roomId\":\"studio1\",\"text\":\"\xff\xfe\"}}",
			wantErr: ErrMalformed,
		},
		{
			name:    "unknown type",
			frame:   `{"type":"delete-room","payload":{"roomId":"studio1"}}`,
			wantErr: ErrUnknownType,
		},
		{
			name:    "missing payload",
			frame:   `{"type":"join-room"}`,
			wantErr: ErrNoRoom,
		},
		{
			name:    "empty room id",
			frame:   `{"type":"send-message","payload":{"roomId":"","text":"hi"}}`,
			wantErr: ErrNoRoom,
		},
		{
			name:    "payload is not an object",
			frame:   `{"type":"sync-state","payload":[1,2,3]}`,
			wantErr: ErrMalformed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := Decode([]byte(tt.frame))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, in.Type)
			assert.Equal(t, tt.wantRoom, in.RoomID)
			if tt.wantKind == "" {
				assert.True(t, in.IsJoin())
				assert.Nil(t, in.Event)
				return
			}
			require.NotNil(t, in.Event)
			assert.Equal(t, tt.wantKind, in.Event.Kind)
			assert.Equal(t, tt.wantRoom, in.Event.RoomID)
		})
	}
}

func TestEventFrameKeepsPayloadBytes(t *testing.T) {
	payload := `{"roomId": "studio1",  "state": {"tbar": 0.5, "extra": [1, 2]}}`
	in, err := Decode([]byte(`{"type":"sync-state","payload":` + payload + `}`))
	require.NoError(t, err)

	frame, err := in.Event.Frame()
	require.NoError(t, err)
	assert.Equal(t, `{"type":"update-state","payload":`+payload+`}`, string(frame))

	env, err := ParseFrame(frame)
	require.NoError(t, err)
	assert.Equal(t, TypeUpdateState, env.Type)
	assert.JSONEq(t, payload, string(env.Payload))
}

func TestOutboundTypes(t *testing.T) {
	assert.Equal(t, TypeReceiveMessage, Event{Kind: KindChatMessage}.OutboundType())
	assert.Equal(t, TypeUpdateState, Event{Kind: KindStateSync}.OutboundType())
	assert.Equal(t, TypeReceiveReaction, Event{Kind: KindReaction}.OutboundType())

	_, err := Event{Kind: "bogus"}.Frame()
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestEncode(t *testing.T) {
	frame, err := Encode(TypeConnected, Connected{ConnectionID: "abc"})
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(frame, &env))
	assert.Equal(t, TypeConnected, env.Type)
	assert.JSONEq(t, `{"connectionId":"abc"}`, string(env.Payload))
}
