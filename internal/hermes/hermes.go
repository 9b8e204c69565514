// Package hermes implements the subset of the Hermes/Rhasspy MQTT protocol
// used by the microphone service: topic naming, JSON payloads, and the
// publish/subscribe primitives the pipeline depends on.
//
// The transport itself lives in subpackages (hermes/mqtt for a broker,
// hermes/mock for tests); everything in this package is transport-agnostic.
package hermes

import (
	"context"
	"errors"
)

// ErrUnknownTopic is returned by [ParseMessage] for topics the service does
// not handle.
var ErrUnknownTopic = errors.New("hermes: unknown topic")

// Handler receives a raw message for a subscribed topic. Handlers are invoked
// on the transport's goroutine and must not block for long.
type Handler func(topic string, payload []byte)

// Publisher sends one message to the bus.
type Publisher interface {
	// Publish delivers payload to topic. Implementations must be safe for
	// concurrent use.
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Subscriber registers handlers for incoming messages.
type Subscriber interface {
	// Subscribe routes messages on the given topics to h. Subscriptions
	// survive reconnects of the underlying transport.
	Subscribe(ctx context.Context, h Handler, topics ...string) error
}

// Client is a full bus connection.
type Client interface {
	Publisher
	Subscriber

	// Connected reports whether the transport currently has a live session.
	Connected() bool

	// Close disconnects from the bus. Calling Close more than once is safe.
	Close() error
}
