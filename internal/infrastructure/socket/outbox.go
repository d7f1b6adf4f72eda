package socket

import (
	"sync"
	"time"
)

type outboxEntry struct {
	frame      Frame
	enqueuedAt time.Time
}

// Outbox holds frames emitted while the connection was down, in emit order,
// until the next successful connect. Entries are keyed by frame id so a frame
// is never held twice, and expire after ttl.
type Outbox struct {
	mu      sync.Mutex
	entries []outboxEntry
	ids     map[string]struct{}
	maxSize int
	ttl     time.Duration
	now     func() time.Time
}

func NewOutbox(maxSize int, ttl time.Duration) *Outbox {
	return &Outbox{
		ids:     make(map[string]struct{}),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Push appends a frame. It returns false when the outbox is full.
func (o *Outbox) Push(f Frame) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.pruneLocked()

	if _, ok := o.ids[f.ID]; ok {
		return true
	}
	if len(o.entries) >= o.maxSize {
		return false
	}

	o.entries = append(o.entries, outboxEntry{frame: f, enqueuedAt: o.now()})
	o.ids[f.ID] = struct{}{}
	return true
}

// Len returns the number of live entries.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.pruneLocked()
	return len(o.entries)
}

// Drain sends queued frames oldest first until the outbox is empty or send
// fails. A frame whose send failed stays at the head for the next drain.
// Frames pushed while draining are sent in the same pass.
func (o *Outbox) Drain(send func(Frame) error) (sent, expired int, err error) {
	for {
		o.mu.Lock()
		expired += o.pruneLocked()
		if len(o.entries) == 0 {
			o.mu.Unlock()
			return sent, expired, nil
		}
		head := o.entries[0]
		o.entries = o.entries[1:]
		o.mu.Unlock()

		if err := send(head.frame); err != nil {
			o.mu.Lock()
			o.entries = append([]outboxEntry{head}, o.entries...)
			o.mu.Unlock()
			return sent, expired, err
		}

		o.mu.Lock()
		delete(o.ids, head.frame.ID)
		o.mu.Unlock()
		sent++
	}
}

func (o *Outbox) pruneLocked() int {
	if o.ttl <= 0 {
		return 0
	}

	cutoff := o.now().Add(-o.ttl)
	n := 0
	for n < len(o.entries) && o.entries[n].enqueuedAt.Before(cutoff) {
		delete(o.ids, o.entries[n].frame.ID)
		n++
	}
	if n > 0 {
		o.entries = o.entries[n:]
	}
	return n
}
