package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/bdobrica/robit/engine"
	"github.com/bdobrica/robit/protocol"
)

// runProtocolMode speaks the wire-level robit.v1 envelope directly instead
// of the plain-text stdin REPL: one protocol.Event per line in, zero or more
// protocol.Event replies per line out. This is the shape an external chat
// system's gateway process would use — it constructs MessagePayload/
// ApprovalDecisionPayload/ConfigUpdatePayload/... events from whatever its
// own transport delivers and feeds them straight to the engine, rather than
// going through the Adapter/InboundMessage contract aimed at a single
// free-text sender. Enabled by ROBIT_PROTOCOL=1 (see run() in main.go).
func runProtocolMode(ctx context.Context, eng *engine.Engine, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		evt, err := protocol.Parse([]byte(line))
		if err != nil {
			writeProtocolError(out, "", fmt.Sprintf("parse: %s", err))
			continue
		}

		for _, reply := range eng.HandleProtocolEvent(ctx, evt) {
			data, err := json.Marshal(reply)
			if err != nil {
				writeProtocolError(out, evt.ID, fmt.Sprintf("marshal reply: %s", err))
				continue
			}
			fmt.Fprintln(out, string(data))
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("robit-engine: protocol mode: read: %w", err)
	}
	return nil
}

// writeProtocolError emits a malformed-input diagnostic as a response event
// rather than killing the session, matching HandleProtocolEvent's own
// non-fatal handling of unrecognized event bodies.
func writeProtocolError(out io.Writer, inReplyTo, text string) {
	evt := protocol.New(&protocol.ResponsePayload{
		InReplyTo: inReplyTo,
		Kind:      "error",
		Text:      text,
	})
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	fmt.Fprintln(out, string(data))
}
