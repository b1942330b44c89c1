package syncbus

import (
	"errors"
	"sync"
	"time"
)

// ErrNoResponder is returned by MemoryBus requests with no registered
// handler, mirroring an absent owner on the wire.
var ErrNoResponder = errors.New("syncbus: no responder for subject")

// MemoryBus is an in-process Bus for tests and single-context runs.
// Delivery is synchronous, so tests need no sleeps.
type MemoryBus struct {
	mu         sync.Mutex
	handlers   map[string][]*memorySub
	responders map[string]RequestHandler
	closed     bool
}

var _ Bus = (*MemoryBus)(nil)

// NewMemoryBus creates an empty in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		handlers:   make(map[string][]*memorySub),
		responders: make(map[string]RequestHandler),
	}
}

// Publish delivers data to every subscriber of subject.
func (b *MemoryBus) Publish(subject string, data []byte) error {
	b.mu.Lock()
	subs := make([]*memorySub, len(b.handlers[subject]))
	copy(subs, b.handlers[subject])
	b.mu.Unlock()

	for _, s := range subs {
		s.handler(data)
	}
	return nil
}

// Subscribe registers a broadcast handler.
func (b *MemoryBus) Subscribe(subject string, h Handler) (Subscription, error) {
	s := &memorySub{bus: b, subject: subject, handler: h}
	b.mu.Lock()
	b.handlers[subject] = append(b.handlers[subject], s)
	b.mu.Unlock()
	return s, nil
}

// Request invokes the registered responder synchronously.
func (b *MemoryBus) Request(subject string, data []byte, _ time.Duration) ([]byte, error) {
	b.mu.Lock()
	h, ok := b.responders[subject]
	b.mu.Unlock()
	if !ok {
		return nil, ErrNoResponder
	}
	return h(data)
}

// Respond registers the request handler for subject, replacing any
// previous one.
func (b *MemoryBus) Respond(subject string, h RequestHandler) (Subscription, error) {
	b.mu.Lock()
	b.responders[subject] = h
	b.mu.Unlock()
	return &memoryResponderSub{bus: b, subject: subject}, nil
}

// Close drops all registrations.
func (b *MemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.handlers = make(map[string][]*memorySub)
	b.responders = make(map[string]RequestHandler)
}

type memorySub struct {
	bus     *MemoryBus
	subject string
	handler Handler
}

func (s *memorySub) Unsubscribe() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	subs := s.bus.handlers[s.subject]
	for i, candidate := range subs {
		if candidate == s {
			s.bus.handlers[s.subject] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	return nil
}

type memoryResponderSub struct {
	bus     *MemoryBus
	subject string
}

func (s *memoryResponderSub) Unsubscribe() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	delete(s.bus.responders, s.subject)
	return nil
}
