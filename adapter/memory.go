package adapter

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bdobrica/robit/engine"
)

// MemoryAdapter is an in-process Adapter backed by channels, used by tests
// and by any embedder that wants to drive an Engine programmatically rather
// than over a transport.
type MemoryAdapter struct {
	inbox   chan engine.InboundMessage
	counter atomic.Uint64

	mu  sync.Mutex
	out []engine.OutboundMessage
}

// NewMemoryAdapter returns a ready-to-use MemoryAdapter.
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{inbox: make(chan engine.InboundMessage, 16)}
}

func (a *MemoryAdapter) Name() string { return "memory" }

// Enqueue pushes text as a new inbound message from sender/channel/workspace.
func (a *MemoryAdapter) Enqueue(text, sender, channel, workspaceID string) {
	id := a.counter.Add(1)
	a.inbox <- engine.InboundMessage{
		ID:          fmt.Sprintf("in-%d", id),
		Text:        text,
		Sender:      sender,
		Channel:     channel,
		WorkspaceID: workspaceID,
	}
}

// Close signals Recv to return (nil, nil), ending Run.
func (a *MemoryAdapter) Close() { close(a.inbox) }

func (a *MemoryAdapter) Recv(ctx context.Context) (*engine.InboundMessage, error) {
	select {
	case msg, ok := <-a.inbox:
		if !ok {
			return nil, nil
		}
		return &msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (a *MemoryAdapter) Send(ctx context.Context, msg engine.OutboundMessage) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.out = append(a.out, msg)
	return nil
}

// Sent returns every message sent so far, in order.
func (a *MemoryAdapter) Sent() []engine.OutboundMessage {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]engine.OutboundMessage, len(a.out))
	copy(out, a.out)
	return out
}
