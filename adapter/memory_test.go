package adapter_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/bdobrica/robit/action"
	"github.com/bdobrica/robit/adapter"
	"github.com/bdobrica/robit/engine"
	"github.com/bdobrica/robit/riskpolicy"
)

type echoHandler struct {
	spec action.Spec
}

func (h *echoHandler) Name() string      { return h.spec.Name }
func (h *echoHandler) Spec() action.Spec { return h.spec }
func (h *echoHandler) Validate(context.Context, action.Context, json.RawMessage) error {
	return nil
}
func (h *echoHandler) Execute(context.Context, action.Context, json.RawMessage) (action.Outcome, error) {
	return action.Outcome{Summary: "done"}, nil
}

func TestRun_PumpsMemoryAdapterUntilClosed(t *testing.T) {
	registry := action.NewRegistry()
	registry.Register(&echoHandler{spec: action.Spec{Name: "fs.read_file", Risk: action.RiskLow}})

	eng, err := engine.New(registry, riskpolicy.Policy{AllowedRoots: []string{"/tmp"}})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	mem := adapter.NewMemoryAdapter()
	mem.Enqueue("action:fs.read_file path=/tmp/x", "alice", "room1", "ws1")
	mem.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := adapter.Run(ctx, eng, mem); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	sent := mem.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(sent))
	}
	if sent[0].Kind != "action_result" {
		t.Fatalf("expected action_result, got %q (%s)", sent[0].Kind, sent[0].Text)
	}
}

func TestRun_StopsOnContextCancellation(t *testing.T) {
	registry := action.NewRegistry()
	eng, err := engine.New(registry, riskpolicy.Policy{AllowedRoots: []string{"/tmp"}})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	mem := adapter.NewMemoryAdapter()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := adapter.Run(ctx, eng, mem); err == nil {
		t.Fatal("expected an error from a pre-cancelled context")
	}
}
