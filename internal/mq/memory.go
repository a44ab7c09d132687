package mq

import (
	"context"
	"errors"
	"strconv"
	"sync"
)

// Memory is an in-process backend. Published messages are kept per channel
// and handed to subscribers registered on that channel.
type Memory struct {
	mu        sync.Mutex
	seq       int
	messages  map[string][]Message
	listeners map[string][]chan Message
	closed    bool
}

func NewMemory() *Memory {
	return &Memory{
		messages:  make(map[string][]Message),
		listeners: make(map[string][]chan Message),
	}
}

func (m *Memory) Publish(_ context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", errors.New("mq closed")
	}

	m.seq++
	msg := Message{ID: strconv.Itoa(m.seq), Data: append([]byte(nil), data...), Attributes: attrs}
	m.messages[channel] = append(m.messages[channel], msg)
	for _, listener := range m.listeners[channel] {
		select {
		case listener <- msg:
		default:
		}
	}
	return msg.ID, nil
}

// Subscribe blocks, handing new messages to handler until ctx is done.
func (m *Memory) Subscribe(ctx context.Context, channel string, handler Handler) error {
	listener := make(chan Message, 64)
	m.mu.Lock()
	m.listeners[channel] = append(m.listeners[channel], listener)
	m.mu.Unlock()
	defer m.unsubscribe(channel, listener)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-listener:
			_ = handler(ctx, msg)
		}
	}
}

func (m *Memory) unsubscribe(channel string, listener chan Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	listeners := m.listeners[channel]
	for i, candidate := range listeners {
		if candidate == listener {
			m.listeners[channel] = append(listeners[:i], listeners[i+1:]...)
			return
		}
	}
}

// Messages returns what has been published to channel.
func (m *Memory) Messages(channel string) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.messages[channel]...)
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
