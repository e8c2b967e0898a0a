package broker

import (
	"context"
	"sync"

	"github.com/juniorbasecompany/turna/domain"
)

// Memory is a channel-backed Broker for tests and single-process
// development runs.
type Memory struct {
	ch     chan Message
	mu     sync.Mutex
	closed bool

	// FailPublish makes Publish return Unavailable, for outage tests.
	FailPublish bool
}

func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = 128
	}
	return &Memory{ch: make(chan Message, capacity)}
}

func (m *Memory) Publish(ctx context.Context, msg Message) error {
	m.mu.Lock()
	failed := m.FailPublish || m.closed
	m.mu.Unlock()
	if failed {
		return domain.Unavailable("queue publish failed")
	}
	select {
	case m.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return domain.Unavailable("queue full")
	}
}

func (m *Memory) Consume(ctx context.Context) (Message, error) {
	select {
	case msg, ok := <-m.ch:
		if !ok {
			return Message{}, ErrClosed
		}
		return msg, nil
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.ch)
	}
	return nil
}
