package broker

import (
	"context"
	"strings"
	"sync"
)

// Memory is a deterministic in-process Subscriber used by tests and local
// development. Publish delivers to the first subscribed handler whose
// pattern matches the topic and waits until that handler acks or nacks.
type Memory struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewMemory creates an empty in-memory broker.
func NewMemory() *Memory {
	return &Memory{handlers: make(map[string]Handler)}
}

func (m *Memory) Subscribe(ctx context.Context, pattern string, handler Handler) error {
	m.mu.Lock()
	m.handlers[pattern] = handler
	m.mu.Unlock()
	return nil
}

// Publish delivers payload on topic to the first matching subscription and
// discards the ack/nack outcome; tests that need to assert on it use
// PublishAndWait.
func (m *Memory) Publish(ctx context.Context, topic string, payload []byte) {
	m.PublishAndWait(ctx, topic, payload)
}

// PublishAndWait delivers payload and reports whether the handler acked.
func (m *Memory) PublishAndWait(ctx context.Context, topic string, payload []byte) (acked bool) {
	m.mu.RLock()
	var handler Handler
	for pattern, h := range m.handlers {
		if topicMatches(pattern, topic) {
			handler = h
			break
		}
	}
	m.mu.RUnlock()

	if handler == nil {
		return false
	}

	var wg sync.WaitGroup
	wg.Add(1)
	d := NewDelivery(topic, payload,
		func() { acked = true; wg.Done() },
		func() { acked = false; wg.Done() },
	)
	go func() {
		handler(ctx, d)
	}()
	wg.Wait()
	return acked
}

// topicMatches implements single-wildcard segment matching: a pattern
// segment of "+" or "*" matches exactly one topic segment.
func topicMatches(pattern, topic string) bool {
	pSegs := strings.Split(pattern, "/")
	tSegs := strings.Split(topic, "/")
	if len(pSegs) != len(tSegs) {
		return false
	}
	for i, p := range pSegs {
		if p == "+" || p == "*" {
			continue
		}
		if p != tSegs[i] {
			return false
		}
	}
	return true
}
