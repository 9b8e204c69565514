// Package mock provides an in-memory [hermes.Client] for unit tests.
//
// Published messages are recorded in order; Deliver routes a message to the
// handlers subscribed to its topic, exactly as a broker would.
//
//	bus := &mock.Bus{}
//	_ = bus.Subscribe(ctx, handler, hermes.TopicAsrStartListening)
//	bus.Deliver(hermes.TopicAsrStartListening, []byte(`{"siteId":"default"}`))
//	msgs := bus.PublishedOn(hermes.AudioFrameTopic("default"))
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/hermesmic/internal/hermes"
)

// Message is one recorded publication.
type Message struct {
	Topic   string
	Payload []byte
}

// Bus is a mock implementation of [hermes.Client]. It is safe for concurrent use.
type Bus struct {
	mu sync.Mutex

	// PublishErr, if non-nil, is returned by every Publish call and the
	// message is not recorded.
	PublishErr error

	// SubscribeErr, if non-nil, is returned by every Subscribe call.
	SubscribeErr error

	// Disconnected makes Connected report false.
	Disconnected bool

	published []Message
	handlers  map[string][]hermes.Handler
	closed    int
}

// Publish records the message.
func (b *Bus) Publish(_ context.Context, topic string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.PublishErr != nil {
		return b.PublishErr
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	b.published = append(b.published, Message{Topic: topic, Payload: cp})
	return nil
}

// SetPublishErr changes PublishErr while the bus is in use.
func (b *Bus) SetPublishErr(err error) {
	b.mu.Lock()
	b.PublishErr = err
	b.mu.Unlock()
}

// Subscribe registers h for topics.
func (b *Bus) Subscribe(_ context.Context, h hermes.Handler, topics ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.SubscribeErr != nil {
		return b.SubscribeErr
	}
	if b.handlers == nil {
		b.handlers = make(map[string][]hermes.Handler)
	}
	for _, t := range topics {
		b.handlers[t] = append(b.handlers[t], h)
	}
	return nil
}

// Deliver invokes every handler subscribed to topic synchronously.
func (b *Bus) Deliver(topic string, payload []byte) {
	b.mu.Lock()
	hs := slices.Clone(b.handlers[topic])
	b.mu.Unlock()
	for _, h := range hs {
		h(topic, payload)
	}
}

// Subscribed reports whether any handler is registered for topic.
func (b *Bus) Subscribed(topic string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers[topic]) > 0
}

// Published returns a copy of every recorded message in order.
func (b *Bus) Published() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.published)
}

// PublishedOn returns the recorded messages for topic in order.
func (b *Bus) PublishedOn(topic string) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Message
	for _, m := range b.published {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

// Connected reports !Disconnected.
func (b *Bus) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.Disconnected
}

// Close records the call.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed++
	return nil
}

// CloseCount returns how many times Close was called.
func (b *Bus) CloseCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

var _ hermes.Client = (*Bus)(nil)
