// Package pushbus fans out time-series deltas, trade events, and
// progress updates to per-instance subscribers over bounded,
// drop-on-overflow channels. Adapted from the teacher's
// internal/session package: Client's bounded sendCh with an atomic
// Dropped counter (internal/session/client.go) becomes Subscriber here,
// and Manager's Broadcast-over-the-client-map (internal/session/manager.go)
// becomes Bus's per-topic fan-out.
package pushbus

import (
	"sync"
	"sync/atomic"
)

// DefaultBufferSize is the default per-subscriber backlog before a slow
// subscriber is dropped.
const DefaultBufferSize = 256

// Topic identifies one of the three event categories a subscriber can
// follow.
type Topic int

const (
	TopicKline Topic = iota
	TopicTrade
	TopicProgress
)

// Event is one message delivered to subscribers. Key scopes it (e.g.
// "<series key>:<granularity>" for kline, where the series key is
// "kline:<templateId>:<symbol>", a request id for progress); Payload
// is the domain value (series.Delta, a trade record, a progress record).
type Event struct {
	Topic   Topic
	Key     string
	Payload any
}

// LaggingSubscriberError reports that a subscriber's backlog overflowed
// and it was dropped from the bus.
type LaggingSubscriberError struct {
	SubscriberId uint64
}

func (e *LaggingSubscriberError) Error() string {
	return "pushbus: subscriber lagging, dropped"
}

// Subscriber is one registered sink. Safe for concurrent use; send is
// non-blocking: when the backlog is full the message is dropped and
// counted in Dropped, and Bus.Publish then removes the subscriber,
// rather than blocking the publisher.
type Subscriber struct {
	Id uint64

	ch        chan Event
	done      chan struct{}
	closeOnce sync.Once

	Dropped uint64
}

func newSubscriber(id uint64, bufferSize int) *Subscriber {
	return &Subscriber{
		Id:   id,
		ch:   make(chan Event, bufferSize),
		done: make(chan struct{}),
	}
}

// Events returns the channel to range over for delivered events.
func (s *Subscriber) Events() <-chan Event {
	return s.ch
}

// Done is closed when the subscriber is removed from the bus.
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

func (s *Subscriber) send(ev Event) bool {
	select {
	case s.ch <- ev:
		return true
	default:
		atomic.AddUint64(&s.Dropped, 1)
		return false
	}
}

func (s *Subscriber) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Bus is one market instance's subscriber registry. Subscribers may
// filter on topic; key-level filtering (a particular symbol+granularity)
// is left to the caller reading from Events(), since the set of
// interesting keys changes as clients subscribe/unsubscribe at the
// transport layer.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[uint64]*Subscriber
	nextId      uint64
	bufferSize  int

	// OnLaggingSubscriber, if set, is called after a subscriber whose
	// backlog was full on a publish has been removed.
	OnLaggingSubscriber func(*LaggingSubscriberError)
}

// New creates a Bus whose subscribers buffer up to bufferSize events
// (DefaultBufferSize if <= 0).
func New(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Bus{
		subscribers: make(map[uint64]*Subscriber),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers a new subscriber and returns it.
func (b *Bus) Subscribe() *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextId++
	s := newSubscriber(b.nextId, b.bufferSize)
	b.subscribers[s.Id] = s
	return s
}

// Unsubscribe removes a subscriber, closing its Done channel.
func (b *Bus) Unsubscribe(s *Subscriber) {
	b.mu.Lock()
	delete(b.subscribers, s.Id)
	b.mu.Unlock()
	s.close()
}

// Publish fans ev out to every current subscriber, in the order the
// caller publishes (delivery order across subscribers is not
// guaranteed; each subscriber sees its own events in publish order). A
// subscriber whose backlog is full is dropped immediately — consistent
// with "overflow drops the subscriber" rather than silently discarding
// individual events and leaving the subscriber attached.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	targets := make([]*Subscriber, 0, len(b.subscribers))
	for _, s := range b.subscribers {
		targets = append(targets, s)
	}
	b.mu.RUnlock()

	for _, s := range targets {
		if !s.send(ev) {
			b.Unsubscribe(s)
			if b.OnLaggingSubscriber != nil {
				b.OnLaggingSubscriber(&LaggingSubscriberError{SubscriberId: s.Id})
			}
		}
	}
}

// Count returns the number of currently attached subscribers.
func (b *Bus) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
