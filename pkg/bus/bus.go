// Package bus implements the MessageBus: three typed, bounded FIFO queues
// (inbound, outbound, system) that are the only communication substrate
// between crew components (spec §4.1). Ordering is FIFO per (channel,
// chat_id); two conversations never head-of-line block each other because
// the bus partitions internally by that pair.
package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crewcore/crew/pkg/constants"
	"github.com/crewcore/crew/pkg/logger"
)

// AttachmentRef is an opaque reference to a media attachment on an envelope.
// Concrete media handling is an external capability (spec §1 Non-goals).
type AttachmentRef struct {
	Kind string // "image", "file", ...
	URI  string
}

// Content is the payload of an Envelope.
type Content struct {
	Text        string
	Attachments []AttachmentRef
}

// Envelope is the unit of traffic on the bus (spec §3). Immutable once
// published.
type Envelope struct {
	ID        string
	Kind      constants.EnvelopeKind
	Channel   string
	ChatID    string
	SenderID  string
	Timestamp time.Time
	Content   Content
	Metadata  map[string]string

	// SessionKey is the (channel, chat_id) conversation key this envelope
	// belongs to; it is also the bus partition key.
	SessionKey string

	// ReferencingInvocation is set on system envelopes announcing a
	// completed BotInvocation (spec §3 invariant on system envelopes).
	ReferencingInvocation string
}

func partitionKey(channel, chatID string) string {
	return channel + ":" + chatID
}

// NewEnvelope builds an envelope, deriving SessionKey from (channel, chatID).
func NewEnvelope(kind constants.EnvelopeKind, channel, chatID, senderID, text string) Envelope {
	return Envelope{
		ID:         uuid.NewString(),
		Kind:       kind,
		Channel:    channel,
		ChatID:     chatID,
		SenderID:   senderID,
		Timestamp:  time.Now(),
		Content:    Content{Text: text},
		SessionKey: partitionKey(channel, chatID),
	}
}

// partition is a per-(channel,chat_id) ordered queue with a lease: only one
// envelope from a partition may be "in flight" (handed out but not acked) at
// a time, which is what gives the per-conversation serialization guarantee
// in spec §5 without blocking other conversations.
type partition struct {
	mu       sync.Mutex
	queue    []Envelope
	leased   bool
	leasedAt time.Time
	leaseID  string
}

// queue is one of the three typed FIFO queues (inbound/outbound/system).
type queue struct {
	name       string
	capacity   int
	leaseTTL   time.Duration
	mu         sync.Mutex
	partitions map[string]*partition
	order      []string // round-robin partition order
	cond       *sync.Cond
	size       int
}

func newQueue(name string, capacity int, leaseTTL time.Duration) *queue {
	q := &queue{name: name, capacity: capacity, leaseTTL: leaseTTL, partitions: map[string]*partition{}}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *queue) publish(env Envelope, block bool) bool {
	q.mu.Lock()
	for block && q.size >= q.capacity {
		q.cond.Wait()
	}
	if q.size >= q.capacity {
		q.mu.Unlock()
		logger.WarnCF("bus", "queue saturated, dropping envelope", map[string]interface{}{
			"queue": q.name, "session_key": env.SessionKey,
		})
		return false
	}

	key := env.SessionKey
	p, ok := q.partitions[key]
	if !ok {
		p = &partition{}
		q.partitions[key] = p
		q.order = append(q.order, key)
	}
	p.mu.Lock()
	p.queue = append(p.queue, env)
	p.mu.Unlock()

	q.size++
	q.mu.Unlock()
	q.cond.Broadcast()
	return true
}

// next picks the next available (not leased, or lease-expired) envelope in
// round-robin partition order. Blocks until one is available or ctx is done.
func (q *queue) next(ctx context.Context) (Envelope, string, bool) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			q.mu.Lock()
			q.cond.Broadcast()
			q.mu.Unlock()
		case <-done:
		}
	}()
	defer close(done)

	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if ctx.Err() != nil {
			return Envelope{}, "", false
		}
		if env, leaseID, ok := q.tryTakeLocked(); ok {
			return env, leaseID, true
		}
		q.cond.Wait()
	}
}

func (q *queue) tryTakeLocked() (Envelope, string, bool) {
	now := time.Now()
	n := len(q.order)
	for i := 0; i < n; i++ {
		key := q.order[0]
		q.order = append(q.order[1:], key)
		p, ok := q.partitions[key]
		if !ok {
			continue
		}
		p.mu.Lock()
		if len(p.queue) == 0 {
			p.mu.Unlock()
			continue
		}
		if p.leased && now.Sub(p.leasedAt) < q.leaseTTL {
			p.mu.Unlock()
			continue
		}
		env := p.queue[0]
		leaseID := uuid.NewString()
		p.leased = true
		p.leasedAt = now
		p.leaseID = leaseID
		p.mu.Unlock()
		return env, leaseID, true
	}
	return Envelope{}, "", false
}

// ack removes the leased head-of-queue envelope for a partition, releasing
// the lease so the next envelope in that partition can be delivered.
func (q *queue) ack(sessionKey, leaseID string) {
	q.mu.Lock()
	p, ok := q.partitions[sessionKey]
	q.mu.Unlock()
	if !ok {
		return
	}
	p.mu.Lock()
	removed := false
	if p.leaseID == leaseID && len(p.queue) > 0 {
		p.queue = p.queue[1:]
		p.leased = false
		p.leaseID = ""
		removed = true
	}
	p.mu.Unlock()
	if !removed {
		return
	}

	q.mu.Lock()
	q.size--
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Leased envelopes whose TTL has expired are simply retried by tryTakeLocked
// (at-least-once delivery, spec §4.1).

// MessageBus is the three-queue substrate shared by every crew component.
type MessageBus struct {
	inbound  *queue
	outbound *queue
	system   *queue
}

// Options configures queue capacity and redelivery deadlines.
type Options struct {
	Capacity     int
	RedeliverTTL time.Duration
}

// DefaultOptions returns sane bounded-queue defaults.
func DefaultOptions() Options {
	return Options{Capacity: 1000, RedeliverTTL: 30 * time.Second}
}

// New creates a MessageBus with the given options.
func New(opts Options) *MessageBus {
	if opts.Capacity <= 0 {
		opts.Capacity = 1000
	}
	if opts.RedeliverTTL <= 0 {
		opts.RedeliverTTL = 30 * time.Second
	}
	return &MessageBus{
		inbound:  newQueue("inbound", opts.Capacity, opts.RedeliverTTL),
		outbound: newQueue("outbound", opts.Capacity, opts.RedeliverTTL),
		system:   newQueue("system", opts.Capacity, opts.RedeliverTTL),
	}
}

func (b *MessageBus) queueFor(kind constants.EnvelopeKind) *queue {
	switch kind {
	case constants.KindInbound:
		return b.inbound
	case constants.KindOutbound:
		return b.outbound
	case constants.KindSystem:
		return b.system
	default:
		return nil
	}
}

// Depth reports the current number of envelopes held by the named queue
// (inbound/outbound/system), used for live queue-depth metrics.
func (b *MessageBus) Depth(kind constants.EnvelopeKind) int {
	q := b.queueFor(kind)
	if q == nil {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Publish enqueues env, blocking if the target queue is full. External
// channel adapters use this — they are expected to block under backpressure
// (spec §4.1).
func (b *MessageBus) Publish(ctx context.Context, env Envelope) error {
	q := b.queueFor(env.Kind)
	if q == nil {
		return fmt.Errorf("bus: unknown envelope kind %q", env.Kind)
	}
	if !q.publish(env, true) {
		return fmt.Errorf("bus: %s queue saturated", q.name)
	}
	return nil
}

// PublishNonBlocking enqueues env without blocking; internal producers
// (heartbeat notifications, system completions) use this and must expect a
// dropped envelope (with a logged warning) under contention rather than
// self-deadlocking (spec §4.1, §5).
func (b *MessageBus) PublishNonBlocking(env Envelope) bool {
	q := b.queueFor(env.Kind)
	if q == nil {
		return false
	}
	return q.publish(env, false)
}

// Lease is a handle to an envelope taken off a queue; the consumer must Ack
// it when processing is complete so the partition can deliver its next
// envelope and so expired leases can be redelivered (at-least-once).
type Lease struct {
	Envelope Envelope
	id       string
	q        *queue
}

// Ack marks the lease's envelope as processed.
func (l Lease) Ack() {
	if l.q != nil {
		l.q.ack(l.Envelope.SessionKey, l.id)
	}
}

// Next blocks until an envelope of the given kind is available (respecting
// per-partition FIFO and lease-based at-least-once redelivery) or ctx is
// cancelled.
func (b *MessageBus) Next(ctx context.Context, kind constants.EnvelopeKind) (Lease, bool) {
	q := b.queueFor(kind)
	if q == nil {
		return Lease{}, false
	}
	env, leaseID, ok := q.next(ctx)
	if !ok {
		return Lease{}, false
	}
	return Lease{Envelope: env, id: leaseID, q: q}, true
}
