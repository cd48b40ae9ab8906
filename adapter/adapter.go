// Package adapter connects an Engine to a concrete transport: something that
// can receive an InboundMessage and send an OutboundMessage back out.
package adapter

import (
	"context"

	"github.com/bdobrica/robit/engine"
)

// Adapter is implemented by every transport the engine can run behind.
type Adapter interface {
	// Name identifies the adapter for logging.
	Name() string
	// Recv blocks for the next inbound message. A nil message with a nil
	// error signals a clean shutdown (EOF, "exit", etc).
	Recv(ctx context.Context) (*engine.InboundMessage, error)
	// Send delivers an outbound message.
	Send(ctx context.Context, msg engine.OutboundMessage) error
}

// Run pumps messages from adapter into engineInstance until Recv returns a
// nil message, an error, or ctx is cancelled.
func Run(ctx context.Context, engineInstance *engine.Engine, a Adapter) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msg, err := a.Recv(ctx)
		if err != nil {
			return err
		}
		if msg == nil {
			return nil
		}

		for _, reply := range engineInstance.HandleMessage(ctx, *msg) {
			if err := a.Send(ctx, reply); err != nil {
				return err
			}
		}
	}
}
