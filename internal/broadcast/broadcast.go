// Package broadcast implements TenantBroadcaster: a per-tenant bounded
// pub/sub fan-out channel, created on first subscribe and removed once the
// last subscriber for that tenant disconnects.
package broadcast

import (
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/agilecore/boardsyncd/internal/logging"
)

// Message is one fanout event published to a tenant's subscribers.
type Message struct {
	EncodedPayload []byte
	EventKind      string
	ProjectID      string // empty means "not project-scoped"
}

// Receiver is a subscriber's read handle. Lagged is signaled (non-blocking)
// when the channel dropped messages because this subscriber fell behind;
// consumers must treat it as non-fatal.
type Receiver struct {
	C      <-chan Message
	Lagged <-chan int
	close  func()
}

// Close releases this receiver. If it was the tenant's last subscriber, the
// broadcaster's channel entry for that tenant is removed.
func (r *Receiver) Close() {
	r.close()
}

type tenantChannel struct {
	mu          sync.Mutex
	subscribers map[int]*subscriberChans
	nextID      int
	bufferSize  int
}

type subscriberChans struct {
	msgs   chan Message
	lagged chan int
	drops  atomic.Int64
}

// Broadcaster is the per-process, multi-tenant fan-out hub. One producer
// (any handler via Publish), many consumers (a tenant's connections).
type Broadcaster struct {
	bufferSize int
	channels   *xsync.Map[string, *tenantChannel]
}

// NewBroadcaster creates a Broadcaster whose per-tenant channels are each
// bounded to bufferSize messages.
func NewBroadcaster(bufferSize int) *Broadcaster {
	return &Broadcaster{
		bufferSize: bufferSize,
		channels:   xsync.NewMap[string, *tenantChannel](),
	}
}

// Subscribe lazily creates the tenant's channel on first subscriber and
// returns a Receiver.
func (b *Broadcaster) Subscribe(tenantID string) *Receiver {
	tc, _ := b.channels.Compute(tenantID, func(old *tenantChannel, loaded bool) (*tenantChannel, xsync.ComputeOp) {
		if loaded {
			return old, xsync.CancelOp
		}
		return &tenantChannel{
			subscribers: make(map[int]*subscriberChans),
			bufferSize:  b.bufferSize,
		}, xsync.UpdateOp
	})

	tc.mu.Lock()
	id := tc.nextID
	tc.nextID++
	sub := &subscriberChans{
		msgs:   make(chan Message, tc.bufferSize),
		lagged: make(chan int, 1),
	}
	tc.subscribers[id] = sub
	tc.mu.Unlock()

	return &Receiver{
		C:      sub.msgs,
		Lagged: sub.lagged,
		close: func() {
			b.unsubscribe(tenantID, tc, id)
		},
	}
}

func (b *Broadcaster) unsubscribe(tenantID string, tc *tenantChannel, id int) {
	tc.mu.Lock()
	delete(tc.subscribers, id)
	empty := len(tc.subscribers) == 0
	tc.mu.Unlock()

	if !empty {
		return
	}

	// Remove the tenant's entry only if it is still the empty one we just
	// observed (another Subscribe may have raced in between).
	b.channels.Compute(tenantID, func(old *tenantChannel, loaded bool) (*tenantChannel, xsync.ComputeOp) {
		if !loaded || old != tc {
			return old, xsync.CancelOp
		}
		old.mu.Lock()
		stillEmpty := len(old.subscribers) == 0
		old.mu.Unlock()
		if !stillEmpty {
			return old, xsync.CancelOp
		}
		return old, xsync.DeleteOp
	})
}

// Publish is best-effort: if the tenant has no subscribers, the message is
// dropped silently. A slow subscriber whose buffer is full is not blocked —
// it receives a non-fatal Lagged(n) signal instead.
func (b *Broadcaster) Publish(tenantID string, msg Message) {
	tc, ok := b.channels.Load(tenantID)
	if !ok {
		return
	}

	tc.mu.Lock()
	subs := make([]*subscriberChans, 0, len(tc.subscribers))
	for _, s := range tc.subscribers {
		subs = append(subs, s)
	}
	tc.mu.Unlock()

	log := logging.Named("broadcast")
	for _, s := range subs {
		select {
		case s.msgs <- msg:
		default:
			drops := s.drops.Add(1)
			select {
			case s.lagged <- int(drops):
			default:
			}
			log.Debugw("subscriber lagged, dropping broadcast", "tenant_id", tenantID, "drops", drops)
		}
	}
}

// SubscriberCount reports how many receivers are currently active for a
// tenant.
func (b *Broadcaster) SubscriberCount(tenantID string) int {
	tc, ok := b.channels.Load(tenantID)
	if !ok {
		return 0
	}
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return len(tc.subscribers)
}

// TenantCount reports how many tenants currently have an active channel —
// this is what must trend to zero as tenants' last subscribers disconnect.
func (b *Broadcaster) TenantCount() int {
	return b.channels.Size()
}
