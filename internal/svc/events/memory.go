package events

import (
	"context"
	"sync"
)

type memoryInst struct {
	mx     sync.RWMutex
	nextID int
	subs   map[string]map[int]Handler
}

// NewMemory returns a process-local bus. Cross-instance fanout degenerates to
// in-process delivery; single-instance deployments need nothing more.
func NewMemory() Instance {
	return &memoryInst{subs: map[string]map[int]Handler{}}
}

func (b *memoryInst) Publish(_ context.Context, topic string, payload Payload) error {
	b.mx.RLock()
	handlers := make([]Handler, 0, len(b.subs[topic]))

	for _, h := range b.subs[topic] {
		handlers = append(handlers, h)
	}
	b.mx.RUnlock()

	for _, h := range handlers {
		h(payload)
	}

	return nil
}

func (b *memoryInst) Subscribe(_ context.Context, topic string, handler Handler) (func(), error) {
	b.mx.Lock()
	defer b.mx.Unlock()

	m, ok := b.subs[topic]
	if !ok {
		m = map[int]Handler{}
		b.subs[topic] = m
	}

	id := b.nextID
	b.nextID++
	m[id] = handler

	return func() {
		b.mx.Lock()
		defer b.mx.Unlock()

		delete(b.subs[topic], id)
	}, nil
}
