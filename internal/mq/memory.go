package mq

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

const memoryBuffer = 64

// ErrClosed is returned by a MemoryBroker after Close.
var ErrClosed = errors.New("broker closed")

// MemoryBroker is an in-process Backend. Every subscriber of a channel sees
// every message published after it subscribed. Handler errors are dropped;
// there is no redelivery.
type MemoryBroker struct {
	mu     sync.RWMutex
	subs   map[string]map[string]*memorySub
	closed bool
	done   chan struct{}
}

type memorySub struct {
	ch   chan Message
	gone chan struct{}
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		subs: make(map[string]map[string]*memorySub),
		done: make(chan struct{}),
	}
}

func (b *MemoryBroker) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return "", ErrClosed
	}
	subs := make([]*memorySub, 0, len(b.subs[channel]))
	for _, sub := range b.subs[channel] {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	// Sends happen without the lock so a slow subscriber cannot stall Close.
	msg := Message{ID: uuid.NewString(), Data: append([]byte(nil), data...), Attributes: copyAttrs(attrs)}
	for _, sub := range subs {
		select {
		case sub.ch <- msg:
		case <-sub.gone:
		case <-b.done:
			return "", ErrClosed
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return msg.ID, nil
}

// Subscribe blocks until ctx ends or the broker is closed.
func (b *MemoryBroker) Subscribe(ctx context.Context, channel string, handler Handler) error {
	id := uuid.NewString()
	sub := &memorySub{ch: make(chan Message, memoryBuffer), gone: make(chan struct{})}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[string]*memorySub)
	}
	b.subs[channel][id] = sub
	b.mu.Unlock()

	defer func() {
		close(sub.gone)
		b.mu.Lock()
		delete(b.subs[channel], id)
		b.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.done:
			return ErrClosed
		case msg := <-sub.ch:
			_ = handler(ctx, msg)
		}
	}
}

// Subscribers reports how many subscribers are attached to channel.
func (b *MemoryBroker) Subscribers(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[channel])
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.done)
	}
	return nil
}

func copyAttrs(attrs map[string]string) map[string]string {
	if attrs == nil {
		return nil
	}
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}
