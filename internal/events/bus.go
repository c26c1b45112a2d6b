// Package events implements the in-process event bus used to fan out
// metric and alert updates to external subscribers (e.g. a live-update
// channel feeding the dashboard frontend).
package events

import (
	"sync"
	"time"

	"github.com/eyenet/eyenet-monitor/internal/logger"
)

// Topic identifies an event stream.
type Topic string

const (
	// TopicMetricsUpdate fires whenever a metric category's live values change.
	TopicMetricsUpdate Topic = "metrics:update"
	// TopicDomainUpdate fires for domain (device/network) metric updates.
	TopicDomainUpdate Topic = "metrics:eyenet:update"
	// TopicAlert fires whenever a new alert is recorded.
	TopicAlert Topic = "alert"
)

// Event is a published payload with its topic and publish time.
type Event struct {
	Topic     Topic
	Timestamp time.Time
	Payload   any
}

// subscriber is a single bounded delivery channel.
type subscriber struct {
	ch     chan Event
	topics map[Topic]struct{}
}

// Bus is a bounded-buffer publish/subscribe hub. Publishing never blocks:
// events for subscribers with full buffers are dropped and counted.
type Bus struct {
	mu      sync.Mutex
	subs    map[int]*subscriber
	nextID  int
	dropped uint64
	closed  bool
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[int]*subscriber),
	}
}

// Subscribe registers interest in the given topics (no topics = all topics).
// Returns the delivery channel and a cancel function. The channel is closed
// on cancel or bus shutdown.
func (b *Bus) Subscribe(buffer int, topics ...Topic) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}

	sub := &subscriber{
		ch:     make(chan Event, buffer),
		topics: make(map[Topic]struct{}, len(topics)),
	}
	for _, t := range topics {
		sub.topics[t] = struct{}{}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if s, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(s.ch)
		}
		b.mu.Unlock()
	}
	return sub.ch, cancel
}

// Publish delivers an event to every matching subscriber without blocking.
func (b *Bus) Publish(topic Topic, payload any) {
	evt := Event{
		Topic:     topic,
		Timestamp: time.Now(),
		Payload:   payload,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	for _, sub := range b.subs {
		if len(sub.topics) > 0 {
			if _, ok := sub.topics[topic]; !ok {
				continue
			}
		}
		select {
		case sub.ch <- evt:
		default:
			b.dropped++
			if b.dropped%100 == 1 {
				logger.Warn("event bus dropping for slow subscriber", "topic", string(topic), "dropped", b.dropped)
			}
		}
	}
}

// Dropped returns the count of events dropped due to full subscriber buffers.
func (b *Bus) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Close shuts the bus down and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
}
