package transport

import (
	"errors"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/VigLinat/studiohub/internal"
	"github.com/VigLinat/studiohub/internal/hub"
	"github.com/VigLinat/studiohub/internal/protocol"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// keepalive is the ping schedule of a session. The peer must answer a ping
// within pongWait.
type keepalive struct {
	pongWait   time.Duration
	pingPeriod time.Duration
}

func newKeepalive(wait time.Duration) keepalive {
	if wait <= 0 {
		return keepalive{pongWait: pongWait, pingPeriod: pingPeriod}
	}
	return keepalive{pongWait: wait, pingPeriod: (wait * 9) / 10}
}

// Client is one websocket session attached to the hub.
type Client struct {
	id     string
	conn   *ws.Conn
	hub    *hub.Hub
	outbox *hub.Outbox
	onDrop func()
	alive  keepalive
}

func NewClient(c *ws.Conn, h *hub.Hub, id string) *Client {
	return &Client{
		id:     id,
		conn:   c,
		hub:    h,
		outbox: hub.NewOutbox(h.OutboxSize()),
		alive:  newKeepalive(0),
	}
}

func (client *Client) ID() string { return client.id }

// Read reads frames from the connection into the hub. It returns when the
// connection fails or closes and always takes the disconnect path.
func (client *Client) Read(maxMessageSize int64) {
	defer func() {
		_ = client.hub.Unregister(client.id)
		client.conn.Close()
	}()
	client.conn.SetReadLimit(maxMessageSize)
	client.conn.SetReadDeadline(time.Now().Add(client.alive.pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(client.alive.pongWait))
		return nil
	})

	for {
		_, message, err := client.conn.ReadMessage()
		if err != nil {
			if ws.IsUnexpectedCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway, ws.CloseNoStatusReceived) {
				internal.MyDebug("Client [%s] read error: %s", client.id, err)
			}
			return
		}
		if err := client.handleMessage(message); errors.Is(err, hub.ErrStopped) {
			return
		}
	}
}

func (client *Client) handleMessage(message []byte) error {
	in, err := protocol.Decode(message)
	if err != nil {
		if client.onDrop != nil {
			client.onDrop()
		}
		internal.MyWarn("Client [%s] frame dropped: %s", client.id, err)
		return nil
	}
	if in.IsJoin() {
		return client.hub.Join(client.id, in.RoomID)
	}
	return client.hub.Broadcast(client.id, *in.Event)
}

// Write writes frames from the outbox to the connection, one websocket message
// per frame, and keeps the connection alive with pings.
func (client *Client) Write() {
	ticker := time.NewTicker(client.alive.pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()
	for {
		select {
		case <-client.outbox.Ready():
			if err := client.flush(); err != nil {
				return
			}
		case <-client.outbox.Done():
			// frames queued before the close still go out
			if err := client.flush(); err != nil {
				return
			}
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			client.conn.WriteMessage(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseGoingAway, ""))
			return
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(ws.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (client *Client) flush() error {
	for {
		frame, ok := client.outbox.Pop()
		if !ok {
			return nil
		}
		client.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := client.conn.WriteMessage(ws.TextMessage, frame); err != nil {
			internal.MyDebug("Client [%s] write error: %s", client.id, err)
			return err
		}
	}
}
