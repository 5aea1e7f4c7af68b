// Package hub routes studio events between the members of a room.
//
// All membership changes and every recipient computation happen on the single
// goroutine running Hub.Run, so the member set used for one delivery is never
// observed half-updated. Deliveries are pushes into bounded per-connection
// outboxes and never wait on a socket.
package hub

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/VigLinat/studiohub/internal"
	"github.com/VigLinat/studiohub/internal/bus"
	"github.com/VigLinat/studiohub/internal/metrics"
	"github.com/VigLinat/studiohub/internal/protocol"
	"github.com/VigLinat/studiohub/internal/registry"
)

var ErrStopped = errors.New("hub stopped")

const relayQueueSize = 1024

// outgoing is a broadcast event together with the connection that sent it.
type outgoing struct {
	sender string
	event  protocol.Event
}

type registration struct {
	connID string
	outbox *Outbox
}

type joinRequest struct {
	connID string
	roomID string
}

type Options struct {
	OutboxSize int
	InstanceID string
	Bus        bus.Bus
	Metrics    *metrics.Metrics
}

type Hub struct {
	reg        *registry.Registry
	outboxes   map[string]*Outbox // owned by the Run goroutine
	outboxSize int
	instanceID string
	bus        bus.Bus
	metrics    *metrics.Metrics

	register   chan registration
	join       chan joinRequest
	broadcast  chan outgoing
	unregister chan string
	relayIn    chan bus.Message
	relayOut   chan bus.Message

	done chan struct{}
}

func New(reg *registry.Registry, opts Options) *Hub {
	if opts.OutboxSize <= 0 {
		opts.OutboxSize = DefaultOutboxSize
	}
	if opts.InstanceID == "" {
		opts.InstanceID = uuid.NewString()
	}
	if opts.Bus == nil {
		opts.Bus = bus.Nop{}
	}
	return &Hub{
		reg:        reg,
		outboxes:   make(map[string]*Outbox),
		outboxSize: opts.OutboxSize,
		instanceID: opts.InstanceID,
		bus:        opts.Bus,
		metrics:    opts.Metrics,
		register:   make(chan registration),
		join:       make(chan joinRequest),
		broadcast:  make(chan outgoing),
		unregister: make(chan string),
		relayIn:    make(chan bus.Message),
		relayOut:   make(chan bus.Message, relayQueueSize),
		done:       make(chan struct{}),
	}
}

// NewConnID assigns an identifier to a new transport session.
func NewConnID() string {
	return uuid.NewString()
}

func (h *Hub) InstanceID() string { return h.instanceID }

func (h *Hub) OutboxSize() int { return h.outboxSize }

func (h *Hub) Registry() *registry.Registry { return h.reg }

// Run processes hub commands until ctx is done, then closes every outbox.
// The relay to other instances runs alongside it.
func (h *Hub) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return h.bus.Subscribe(gctx, h.acceptRelay) })
	g.Go(func() error { h.publishRelay(gctx); return nil })

	h.loop(gctx)
	return g.Wait()
}

func (h *Hub) loop(ctx context.Context) {
	defer func() {
		h.closeAll()
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			internal.MyLog("Hub shutting down with %d connections", len(h.outboxes))
			return
		case r := <-h.register:
			h.handleRegister(r.connID, r.outbox)
		case j := <-h.join:
			h.handleJoin(j.connID, j.roomID)
		case m := <-h.broadcast:
			if n := h.handleBroadcast(m.sender, m.event); n >= 0 {
				h.relay(m)
			}
		case connID := <-h.unregister:
			h.handleDisconnect(connID)
		case m := <-h.relayIn:
			h.handleRelayed(m)
		}
	}
}

// Wait blocks until Run has stopped.
func (h *Hub) Wait() { <-h.done }

// Register adds a connection whose frames will be queued on outbox.
func (h *Hub) Register(connID string, outbox *Outbox) error {
	return submit(h, h.register, registration{connID: connID, outbox: outbox})
}

func (h *Hub) Join(connID, roomID string) error {
	return submit(h, h.join, joinRequest{connID: connID, roomID: roomID})
}

// Broadcast sends ev to every other member of ev.RoomID.
func (h *Hub) Broadcast(connID string, ev protocol.Event) error {
	return submit(h, h.broadcast, outgoing{sender: connID, event: ev})
}

// Unregister is the disconnect path; it is safe to call for any connection at
// any time.
func (h *Hub) Unregister(connID string) error {
	return submit(h, h.unregister, connID)
}

func submit[T any](h *Hub, ch chan<- T, v T) error {
	select {
	case ch <- v:
		return nil
	case <-h.done:
		return ErrStopped
	}
}

func (h *Hub) handleRegister(connID string, outbox *Outbox) {
	if _, exists := h.outboxes[connID]; exists {
		internal.MyWarn("Connection %s already registered", connID)
		return
	}
	h.outboxes[connID] = outbox
	h.reg.Register(connID)
	h.updateGauges()
	internal.MyDebug("Connection %s registered", connID)
}

func (h *Hub) handleJoin(connID, roomID string) {
	if h.reg.Join(connID, roomID) {
		h.updateGauges()
		internal.MyDebug("Connection %s joined room %q", connID, roomID)
	}
}

// handleBroadcast queues ev for every member of its room except sender and
// returns how many recipients it reached. It returns -1 when ev cannot be
// encoded.
func (h *Hub) handleBroadcast(sender string, ev protocol.Event) int {
	frame, err := ev.Frame()
	if err != nil {
		internal.MyWarn("Dropping %s event from %s: %s", ev.Kind, sender, err)
		return -1
	}
	n := h.deliver(ev.RoomID, sender, frame)
	h.metrics.EventAccepted(string(ev.Kind), n)
	return n
}

func (h *Hub) deliver(roomID, excluding string, frame []byte) int {
	n := 0
	for _, connID := range h.reg.MembersOf(roomID, excluding) {
		outbox := h.outboxes[connID]
		if outbox == nil {
			continue
		}
		dropped, ok := outbox.Push(frame)
		if !ok {
			continue
		}
		if dropped {
			h.metrics.OutboxDropped()
			internal.MyWarn("Outbox of %s full, dropped oldest frame", connID)
		}
		n++
	}
	return n
}

// handleDisconnect forgets the connection. Remaining room members are not
// told about the departure.
func (h *Hub) handleDisconnect(connID string) {
	outbox, ok := h.outboxes[connID]
	if !ok {
		return
	}
	delete(h.outboxes, connID)
	left := h.reg.LeaveAll(connID)
	outbox.Close()
	h.updateGauges()
	internal.MyDebug("Connection %s left rooms %v", connID, left)
}

func (h *Hub) handleRelayed(m bus.Message) {
	ev := protocol.Event{Kind: protocol.Kind(m.Kind), RoomID: m.RoomID, Payload: m.Payload}
	frame, err := ev.Frame()
	if err != nil {
		internal.MyWarn("Dropping relayed event from %s: %s", m.Origin, err)
		return
	}
	h.metrics.Relay("in")
	n := h.deliver(m.RoomID, m.SenderID, frame)
	h.metrics.EventAccepted(m.Kind, n)
}

// relay hands a local event to the publisher without blocking the loop.
func (h *Hub) relay(m outgoing) {
	if _, isNop := h.bus.(bus.Nop); isNop {
		return
	}
	out := bus.Message{
		Origin:   h.instanceID,
		RoomID:   m.event.RoomID,
		SenderID: m.sender,
		Kind:     string(m.event.Kind),
		Payload:  m.event.Payload,
	}
	select {
	case h.relayOut <- out:
	default:
		internal.MyWarn("Relay queue full, event for room %q not published", m.event.RoomID)
	}
}

func (h *Hub) publishRelay(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-h.relayOut:
			pubCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			if err := h.bus.Publish(pubCtx, m); err != nil {
				internal.MyWarn("Relay publish for room %q failed: %s", m.RoomID, err)
			} else {
				h.metrics.Relay("out")
			}
			cancel()
		}
	}
}

// acceptRelay runs on the bus goroutine and feeds remote events to the loop.
func (h *Hub) acceptRelay(m bus.Message) {
	if m.Origin == h.instanceID {
		return
	}
	select {
	case h.relayIn <- m:
	case <-h.done:
	}
}

func (h *Hub) updateGauges() {
	s := h.reg.Stats()
	h.metrics.SetMembership(s.Connections, s.Rooms)
}

func (h *Hub) closeAll() {
	for connID, outbox := range h.outboxes {
		h.reg.LeaveAll(connID)
		outbox.Close()
	}
	h.outboxes = make(map[string]*Outbox)
	h.updateGauges()
}
