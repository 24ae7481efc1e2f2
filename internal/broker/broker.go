// Package broker abstracts the pub/sub transport that devices publish
// telemetry to. The wire transport itself (MQTT, NATS, a cloud pub/sub
// service, ...) is an external collaborator per spec.md §1 — this package
// only defines the minimal surface the intake adapter needs, so the concrete
// transport can be swapped without touching internal/intake.
package broker

import "context"

// Delivery is one inbound message from a topic matching a subscribed
// pattern. Ack/Nack follow the at-least-once contract of spec.md §4.1: Ack
// after the sample is durably queued, Nack (causing broker redelivery) if
// the durable queue could not be reached.
type Delivery struct {
	Topic   string
	Payload []byte

	ack  func()
	nack func()
}

// Ack acknowledges successful processing so the broker does not redeliver.
func (d *Delivery) Ack() {
	if d.ack != nil {
		d.ack()
	}
}

// Nack asks the broker to redeliver this message, typically after a delay.
func (d *Delivery) Nack() {
	if d.nack != nil {
		d.nack()
	}
}

// NewDelivery constructs a Delivery with explicit ack/nack callbacks. Real
// Subscriber implementations use this to wrap their native message type;
// tests use it to build deliveries without a broker.
func NewDelivery(topic string, payload []byte, ack, nack func()) *Delivery {
	return &Delivery{Topic: topic, Payload: payload, ack: ack, nack: nack}
}

// Handler processes one delivery. It must call Ack or Nack exactly once.
type Handler func(ctx context.Context, d *Delivery)

// Subscriber is the minimal pub/sub surface the intake adapter depends on.
// A single-wildcard topic pattern such as "telemetry/meter/+" or
// "telemetry/meter/*" (transport-specific wildcard syntax) subscribes to all
// devices of one class.
type Subscriber interface {
	// Subscribe registers handler for all topics matching pattern. It
	// returns once the subscription is established, or an error if the
	// broker is unreachable. Delivery continues until ctx is cancelled.
	Subscribe(ctx context.Context, pattern string, handler Handler) error
}
