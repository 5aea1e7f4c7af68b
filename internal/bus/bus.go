// Package bus relays broadcast events between hub instances so that members
// of one room connected to different processes still see each other.
package bus

import (
	"context"
	"encoding/json"
)

// Message is one broadcast event as exchanged between instances.
type Message struct {
	Origin   string          `json:"origin"`
	RoomID   string          `json:"roomId"`
	SenderID string          `json:"senderId"`
	Kind     string          `json:"kind"`
	Payload  json.RawMessage `json:"payload"`
}

// Bus publishes local events and delivers remote ones.
type Bus interface {
	Publish(ctx context.Context, m Message) error
	// Subscribe calls fn for every message until ctx is done.
	Subscribe(ctx context.Context, fn func(Message)) error
	Close() error
}

// Nop is used when the hub runs as a single instance.
type Nop struct{}

func (Nop) Publish(context.Context, Message) error { return nil }

func (Nop) Subscribe(ctx context.Context, _ func(Message)) error {
	<-ctx.Done()
	return nil
}

func (Nop) Close() error { return nil }
