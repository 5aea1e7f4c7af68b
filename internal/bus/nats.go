package bus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"github.com/VigLinat/studiohub/internal"
)

// NatsSubject carries every room; room ids are free-form strings that are not
// valid subject tokens, so the room travels inside the message.
const NatsSubject = "studio.events"

type NatsConfig struct {
	URL  string
	Name string
}

type NatsBus struct {
	nc *nats.Conn
}

func NewNatsBus(cfg NatsConfig) (*NatsBus, error) {
	if cfg.URL == "" {
		return nil, errors.New("nats url missing")
	}
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(500 * time.Millisecond),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(3 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				internal.MyWarn("NATS disconnected: %s", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			internal.MyLog("NATS reconnected to %s", nc.ConnectedUrl())
		}),
	}
	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "nats connect %s", cfg.URL)
	}
	return &NatsBus{nc: nc}, nil
}

func (b *NatsBus) Publish(_ context.Context, m Message) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return errors.Wrap(err, "encode relay message")
	}
	return errors.Wrap(b.nc.Publish(NatsSubject, raw), "nats publish")
}

func (b *NatsBus) Subscribe(ctx context.Context, fn func(Message)) error {
	sub, err := b.nc.Subscribe(NatsSubject, func(msg *nats.Msg) {
		var m Message
		if err := json.Unmarshal(msg.Data, &m); err != nil || m.RoomID == "" {
			internal.MyWarn("Dropping relay message on %s: %v", msg.Subject, err)
			return
		}
		fn(m)
	})
	if err != nil {
		return errors.Wrap(err, "nats subscribe")
	}
	if err := b.nc.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return errors.Wrap(err, "nats flush")
	}

	<-ctx.Done()
	_ = sub.Drain()
	return nil
}

func (b *NatsBus) Close() error {
	if b.nc == nil {
		return nil
	}
	return b.nc.Drain()
}
