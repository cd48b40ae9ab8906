package adapter

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"github.com/tidwall/pretty"

	"github.com/bdobrica/robit/engine"
)

// StdinAdapter reads one line at a time from an io.Reader (normally
// os.Stdin) and writes replies to an io.Writer, exiting cleanly on EOF or
// when the user types "exit"/"quit".
type StdinAdapter struct {
	prompt  string
	in      *bufio.Scanner
	out     io.Writer
	counter atomic.Uint64
}

// NewStdinAdapter returns a StdinAdapter reading from in and writing to out,
// printing prompt before each read.
func NewStdinAdapter(in io.Reader, out io.Writer, prompt string) *StdinAdapter {
	if prompt == "" {
		prompt = "> "
	}
	return &StdinAdapter{prompt: prompt, in: bufio.NewScanner(in), out: out}
}

func (a *StdinAdapter) Name() string { return "stdin" }

func (a *StdinAdapter) nextID() string {
	id := a.counter.Add(1)
	return fmt.Sprintf("in-%d", id)
}

// Recv prints the prompt and reads the next line. EOF, or a line that is
// exactly "exit" or "quit" (case-insensitive), ends the conversation.
func (a *StdinAdapter) Recv(ctx context.Context) (*engine.InboundMessage, error) {
	fmt.Fprint(a.out, a.prompt)
	if !a.in.Scan() {
		if err := a.in.Err(); err != nil {
			return nil, fmt.Errorf("adapter/stdin: read: %w", err)
		}
		return nil, nil
	}
	line := strings.TrimSpace(a.in.Text())
	lower := strings.ToLower(line)
	if lower == "exit" || lower == "quit" {
		return nil, nil
	}

	return &engine.InboundMessage{
		ID:          a.nextID(),
		Text:        line,
		Sender:      "stdin",
		Channel:     "stdin",
		WorkspaceID: "local",
	}, nil
}

// Send prints the reply text, then the structured data payload (if any) on
// its own line for operators following along on a terminal. Data is
// pretty-printed for the human reading the terminal; the wire form the
// engine builds and any protocol.Event wrapping it stays compact.
func (a *StdinAdapter) Send(ctx context.Context, msg engine.OutboundMessage) error {
	fmt.Fprintln(a.out, msg.Text)
	if len(msg.Data) > 0 && string(msg.Data) != "null" {
		fmt.Fprintf(a.out, "data: %s\n", pretty.Pretty(msg.Data))
	}
	return nil
}
