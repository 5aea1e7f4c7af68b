package hub

import "sync"

const DefaultOutboxSize = 256

// Outbox is a bounded per-connection queue of encoded frames. When full, a
// push discards the oldest queued frame so that a slow reader only ever loses
// stale traffic and never holds more than its capacity in memory.
type Outbox struct {
	mu     sync.Mutex
	buf    [][]byte
	head   int
	size   int
	closed bool

	ready chan struct{}
	done  chan struct{}
}

func NewOutbox(capacity int) *Outbox {
	if capacity <= 0 {
		capacity = DefaultOutboxSize
	}
	return &Outbox{
		buf:   make([][]byte, capacity),
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Push queues frame without blocking. dropped reports that the oldest frame
// was discarded to make room; ok is false once the outbox is closed.
func (o *Outbox) Push(frame []byte) (dropped, ok bool) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return false, false
	}
	capacity := len(o.buf)
	if o.size == capacity {
		o.buf[o.head] = nil
		o.head = (o.head + 1) % capacity
		o.size--
		dropped = true
	}
	o.buf[(o.head+o.size)%capacity] = frame
	o.size++
	o.mu.Unlock()

	select {
	case o.ready <- struct{}{}:
	default:
	}
	return dropped, true
}

// Pop removes the oldest frame. It never blocks.
func (o *Outbox) Pop() ([]byte, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.size == 0 {
		return nil, false
	}
	frame := o.buf[o.head]
	o.buf[o.head] = nil
	o.head = (o.head + 1) % len(o.buf)
	o.size--
	return frame, true
}

// Ready fires after a push; the reader should then Pop until empty.
func (o *Outbox) Ready() <-chan struct{} { return o.ready }

// Done is closed when the connection leaves the hub.
func (o *Outbox) Done() <-chan struct{} { return o.done }

func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.size
}

func (o *Outbox) Cap() int { return len(o.buf) }

// Close stops accepting frames. Queued frames stay poppable. Safe to call more
// than once.
func (o *Outbox) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	close(o.done)
}
