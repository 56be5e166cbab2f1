// internal/broadcast/memory.go
package broadcast

import (
	"context"
	"sync"
)

// Memory is an in-process broadcaster. Publish delivers synchronously to
// every handler subscribed to the exact topic, in subscription order.
type Memory struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string]map[uint64]Handler
	order  map[string][]uint64
	closed bool
}

// NewMemory returns an empty in-process broadcaster.
func NewMemory() *Memory {
	return &Memory{
		subs:  make(map[string]map[uint64]Handler),
		order: make(map[string][]uint64),
	}
}

func (m *Memory) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrClosed
	}
	handlers := make([]Handler, 0, len(m.order[topic]))
	for _, id := range m.order[topic] {
		handlers = append(handlers, m.subs[topic][id])
	}
	m.mu.RUnlock()

	// Handlers run unlocked so they may publish in turn.
	for _, h := range handlers {
		buf := make([]byte, len(payload))
		copy(buf, payload)
		h(buf)
	}
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, topic string, h Handler) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	m.nextID++
	id := m.nextID
	if m.subs[topic] == nil {
		m.subs[topic] = make(map[uint64]Handler)
	}
	m.subs[topic][id] = h
	m.order[topic] = append(m.order[topic], id)
	return &memorySub{m: m, topic: topic, id: id}, nil
}

// Subscribers counts live subscriptions on topic.
func (m *Memory) Subscribers(topic string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs[topic])
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.subs = make(map[string]map[uint64]Handler)
	m.order = make(map[string][]uint64)
	return nil
}

func (m *Memory) remove(topic string, id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[topic][id]; !ok {
		return
	}
	delete(m.subs[topic], id)
	ids := m.order[topic]
	for i, v := range ids {
		if v == id {
			m.order[topic] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	if len(m.subs[topic]) == 0 {
		delete(m.subs, topic)
		delete(m.order, topic)
	}
}

type memorySub struct {
	m     *Memory
	topic string
	id    uint64
	once  sync.Once
}

func (s *memorySub) Unsubscribe() error {
	s.once.Do(func() { s.m.remove(s.topic, s.id) })
	return nil
}
