// Package progress implements the observable progress stream a write
// operation publishes to. It replaces direct UI callbacks: any number of
// observers can subscribe without the producer knowing who they are.
package progress

import "sync"

// Stage labels the phase an event was emitted from.
type Stage string

const (
	StagePending    Stage = "pending"
	StageValidating Stage = "validating"
	StageWriting    Stage = "writing"
	StageVerifying  Stage = "verifying"
	StageDone       Stage = "done"
)

// Event is a single progress report. Percent is always 0-100 and never
// regresses within one channel's lifetime.
type Event struct {
	Stage        Stage
	BytesWritten int64
	TotalBytes   int64
	Percent      int
	Message      string
}

// Channel is a single-producer, multi-observer stream scoped to one write
// operation. A late subscriber first receives the last published event, then
// the live stream. Each subscriber sees events in publish order with no
// duplicates; a slow subscriber queues events instead of blocking the
// producer.
type Channel struct {
	mu     sync.Mutex
	last   Event
	seen   bool
	closed bool
	nextID int
	subs   map[int]*mailbox
}

type mailbox struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Event
	closed bool
	out    chan Event
	quit   chan struct{}
}

func newMailbox() *mailbox {
	m := &mailbox{
		out:  make(chan Event),
		quit: make(chan struct{}),
	}
	m.cond = sync.NewCond(&m.mu)
	go m.drain()
	return m
}

func (m *mailbox) push(ev Event) {
	m.mu.Lock()
	if !m.closed {
		m.queue = append(m.queue, ev)
		m.cond.Signal()
	}
	m.mu.Unlock()
}

// close stops the mailbox after the queue has drained.
func (m *mailbox) close() {
	m.mu.Lock()
	m.closed = true
	m.cond.Signal()
	m.mu.Unlock()
}

// discard stops the mailbox without delivering queued events, so an
// unsubscribed observer that no longer reads does not pin the drain
// goroutine.
func (m *mailbox) discard() {
	m.mu.Lock()
	if !m.closed {
		m.queue = nil
		m.closed = true
		close(m.quit)
		m.cond.Signal()
	}
	m.mu.Unlock()
}

// drain forwards queued events to the out channel in order. Runs until the
// mailbox is closed and the queue is empty, or the observer discards it.
func (m *mailbox) drain() {
	for {
		m.mu.Lock()
		for len(m.queue) == 0 && !m.closed {
			m.cond.Wait()
		}
		if len(m.queue) == 0 {
			m.mu.Unlock()
			close(m.out)
			return
		}
		ev := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()

		select {
		case m.out <- ev:
		case <-m.quit:
			close(m.out)
			return
		}
	}
}

// NewChannel returns an empty channel ready for publishing.
func NewChannel() *Channel {
	return &Channel{subs: make(map[int]*mailbox)}
}

// Publish delivers ev to all current subscribers and records it as the last
// known state. The percentage is clamped so it never decreases, even when the
// producer re-reports an offset after a retry. Publishing after Close is a
// no-op.
func (c *Channel) Publish(ev Event) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.seen && ev.Percent < c.last.Percent {
		ev.Percent = c.last.Percent
	}
	c.last = ev
	c.seen = true
	for _, mb := range c.subs {
		mb.push(ev)
	}
	c.mu.Unlock()
}

// Subscribe registers a new observer. The returned channel first yields the
// last published event, if any, then every subsequent event in order. The
// cancel function detaches the observer and closes its channel; it is safe to
// call more than once.
func (c *Channel) Subscribe() (<-chan Event, func()) {
	c.mu.Lock()
	mb := newMailbox()
	if c.seen {
		mb.push(c.last)
	}
	if c.closed {
		mb.close()
		c.mu.Unlock()
		return mb.out, func() {}
	}
	id := c.nextID
	c.nextID++
	c.subs[id] = mb
	c.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
			mb.discard()
		})
	}
	return mb.out, cancel
}

// Last returns the most recently published event. ok is false if nothing has
// been published yet. Never blocks on the producer.
func (c *Channel) Last() (Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, c.seen
}

// Close ends the stream. Subscriber channels are closed after any queued
// events have been delivered. Idempotent.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	subs := c.subs
	c.subs = make(map[int]*mailbox)
	c.mu.Unlock()
	for _, mb := range subs {
		mb.close()
	}
}
