package queue

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryTransport is an in-process Transport for local runs without Redis.
// Messages do not survive a restart.
type MemoryTransport struct {
	mu     sync.Mutex
	queues map[string]chan string
}

func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{queues: make(map[string]chan string)}
}

func (t *MemoryTransport) channel(queue string) chan string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch, ok := t.queues[queue]
	if !ok {
		ch = make(chan string, 1024)
		t.queues[queue] = ch
	}
	return ch
}

func (t *MemoryTransport) Send(_ context.Context, queue, payload string) error {
	select {
	case t.channel(queue) <- payload:
		return nil
	default:
		return fmt.Errorf("queue %s is full", queue)
	}
}

func (t *MemoryTransport) Receive(ctx context.Context, queue string) (string, error) {
	timer := time.NewTimer(250 * time.Millisecond)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case payload := <-t.channel(queue):
		return payload, nil
	case <-timer.C:
		return "", ErrEmpty
	}
}
