// Package protocol defines the JSON frames exchanged between studio clients
// and the hub.
package protocol

import (
	"encoding/json"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

// Inbound frame types.
const (
	TypeJoinRoom     = "join-room"
	TypeSendMessage  = "send-message"
	TypeSyncState    = "sync-state"
	TypeSendReaction = "send-reaction"
)

// Outbound frame types.
const (
	TypeConnected       = "connected"
	TypeReceiveMessage  = "receive-message"
	TypeUpdateState     = "update-state"
	TypeReceiveReaction = "receive-reaction"
)

// Client-side lifecycle events. The hub never sends these; clients raise
// them locally when the transport drops or cannot be established.
const (
	EventDisconnected     = "disconnected"
	EventConnectionFailed = "connection-failed"
)

// Kind is the routing class of a broadcast event.
type Kind string

const (
	KindStateSync   Kind = "state-sync"
	KindChatMessage Kind = "chat-message"
	KindReaction    Kind = "reaction"
)

var (
	ErrMalformed   = errors.New("malformed frame")
	ErrUnknownType = errors.New("unknown frame type")
	ErrNoRoom      = errors.New("roomId is required")
)

var inboundKinds = map[string]Kind{
	TypeSendMessage:  KindChatMessage,
	TypeSyncState:    KindStateSync,
	TypeSendReaction: KindReaction,
}

var outboundTypes = map[Kind]string{
	KindChatMessage: TypeReceiveMessage,
	KindStateSync:   TypeUpdateState,
	KindReaction:    TypeReceiveReaction,
}

// Envelope is one websocket text frame.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Event is a broadcast event in flight. Payload holds the sender's bytes
// untouched.
type Event struct {
	Kind    Kind
	RoomID  string
	Payload json.RawMessage
}

// OutboundType maps the event kind to the frame type peers receive.
func (e Event) OutboundType() string {
	return outboundTypes[e.Kind]
}

// Frame encodes the event as the frame delivered to other room members. The
// payload bytes are spliced in as received, not re-encoded.
func (e Event) Frame() ([]byte, error) {
	typ := e.OutboundType()
	if typ == "" {
		return nil, errors.Wrapf(ErrUnknownType, "kind %q", e.Kind)
	}
	if len(e.Payload) == 0 {
		return json.Marshal(Envelope{Type: typ})
	}
	buf := make([]byte, 0, len(typ)+len(e.Payload)+24)
	buf = append(buf, `{"type":"`...)
	buf = append(buf, typ...)
	buf = append(buf, `","payload":`...)
	buf = append(buf, e.Payload...)
	buf = append(buf, '}')
	return buf, nil
}

// Inbound is a decoded client frame: either a join or a broadcast event.
type Inbound struct {
	Type   string
	RoomID string
	Event  *Event
}

func (in Inbound) IsJoin() bool { return in.Type == TypeJoinRoom }

type roomRef struct {
	RoomID string `json:"roomId" validate:"required"`
}

// JoinRoom is the join-room payload.
type JoinRoom struct {
	RoomID string `json:"roomId"`
}

// ChatMessage is the send-message payload.
type ChatMessage struct {
	RoomID    string `json:"roomId"`
	Author    string `json:"author"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// Position places a reaction on screen.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Reaction is the send-reaction payload.
type Reaction struct {
	RoomID    string    `json:"roomId"`
	Emoji     string    `json:"emoji"`
	Author    string    `json:"author"`
	Timestamp int64     `json:"timestamp"`
	Position  *Position `json:"position,omitempty"`
}

// StateSync is the sync-state payload. State is relayed opaquely.
type StateSync struct {
	RoomID string          `json:"roomId"`
	State  json.RawMessage `json:"state,omitempty"`
}

// Connected is sent to a client right after the upgrade.
type Connected struct {
	ConnectionID string `json:"connectionId"`
}

var validate = validator.New()

// Decode parses a client frame. Only the envelope and the presence of roomId
// are checked; everything else in the payload is passed through.
func Decode(data []byte) (Inbound, error) {
	// payload bytes are relayed verbatim in text frames
	if !utf8.Valid(data) {
		return Inbound{}, errors.Wrap(ErrMalformed, "invalid utf-8")
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Inbound{}, errors.Wrap(ErrMalformed, err.Error())
	}

	kind, broadcast := inboundKinds[env.Type]
	if !broadcast && env.Type != TypeJoinRoom {
		return Inbound{}, errors.Wrapf(ErrUnknownType, "%q", env.Type)
	}

	var ref roomRef
	if len(env.Payload) == 0 {
		return Inbound{}, ErrNoRoom
	}
	if err := json.Unmarshal(env.Payload, &ref); err != nil {
		return Inbound{}, errors.Wrap(ErrMalformed, err.Error())
	}
	if err := validate.Struct(ref); err != nil {
		return Inbound{}, ErrNoRoom
	}

	in := Inbound{Type: env.Type, RoomID: ref.RoomID}
	if broadcast {
		in.Event = &Event{Kind: kind, RoomID: ref.RoomID, Payload: env.Payload}
	}
	return in, nil
}

// Encode builds a frame of the given type around payload.
func Encode(frameType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s", frameType)
	}
	return json.Marshal(Envelope{Type: frameType, Payload: raw})
}

// ParseFrame decodes an outbound frame on the client side.
func ParseFrame(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, errors.Wrap(ErrMalformed, err.Error())
	}
	return env, nil
}
