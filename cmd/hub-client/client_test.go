package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VigLinat/studiohub/internal/protocol"
)

func TestParseInput(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	s := &session{}

	_, err := s.parseInput([]byte("hello"), now)
	require.Error(t, err, "no room joined yet")

	tests := []struct {
		input    string
		wantType string
		wantKind protocol.Kind
	}{
		{input: "#join studio1", wantType: protocol.TypeJoinRoom},
		{input: "#react 🔥", wantType: protocol.TypeSendReaction, wantKind: protocol.KindReaction},
		{input: `#state {"program":"cam2"}`, wantType: protocol.TypeSyncState, wantKind: protocol.KindStateSync},
		{input: "cut to camera two", wantType: protocol.TypeSendMessage, wantKind: protocol.KindChatMessage},
		{input: "#unknown thing", wantType: protocol.TypeSendMessage, wantKind: protocol.KindChatMessage},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			frame, err := s.parseInput([]byte(tt.input), now)
			require.NoError(t, err)

			in, err := protocol.Decode(frame)
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, in.Type)
			assert.Equal(t, "studio1", in.RoomID)
			if tt.wantKind != "" {
				require.NotNil(t, in.Event)
				assert.Equal(t, tt.wantKind, in.Event.Kind)
			}
		})
	}

	_, err = s.parseInput([]byte("#state {broken"), now)
	assert.Error(t, err)
}
