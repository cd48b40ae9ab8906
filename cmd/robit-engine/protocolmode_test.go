package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/bdobrica/robit/action"
	"github.com/bdobrica/robit/engine"
	"github.com/bdobrica/robit/riskpolicy"
)

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	eng, err := engine.New(action.NewRegistry(), riskpolicy.Policy{})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	return eng
}

func TestRunProtocolMode_PingRepliesPong(t *testing.T) {
	eng := newTestEngine(t)
	in := strings.NewReader(`{"schema_version":"robit.v1","id":"evt-1","type":"ping","payload":{}}` + "\n")
	var out bytes.Buffer

	if err := runProtocolMode(context.Background(), eng, in, &out); err != nil {
		t.Fatalf("runProtocolMode: %v", err)
	}

	line := strings.TrimSpace(out.String())
	if line == "" {
		t.Fatal("expected a reply line")
	}
	var reply struct {
		Type    string `json:"type"`
		Payload struct {
			InReplyTo string `json:"in_reply_to"`
		} `json:"payload"`
	}
	if err := json.Unmarshal([]byte(line), &reply); err != nil {
		t.Fatalf("unmarshal reply: %v, line=%q", err, line)
	}
	if reply.Type != "pong" {
		t.Fatalf("expected a pong event, got %q", reply.Type)
	}
	if reply.Payload.InReplyTo != "evt-1" {
		t.Fatalf("expected pong to reference evt-1, got %q", reply.Payload.InReplyTo)
	}
}

func TestRunProtocolMode_MalformedLineReportsErrorAndContinues(t *testing.T) {
	eng := newTestEngine(t)
	in := strings.NewReader("not json\n" + `{"schema_version":"robit.v1","id":"evt-2","type":"ping","payload":{}}` + "\n")
	var out bytes.Buffer

	if err := runProtocolMode(context.Background(), eng, in, &out); err != nil {
		t.Fatalf("runProtocolMode: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected an error reply for the bad line plus a pong, got %d lines: %q", len(lines), out.String())
	}
	var errReply struct {
		Type    string `json:"type"`
		Payload struct {
			Kind string `json:"kind"`
		} `json:"payload"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &errReply); err != nil {
		t.Fatalf("unmarshal first reply: %v", err)
	}
	if errReply.Type != "response" || errReply.Payload.Kind != "error" {
		t.Fatalf("expected an error response for the malformed line, got %+v", errReply)
	}
}

func TestRunProtocolMode_MessageEventProducesResponse(t *testing.T) {
	eng := newTestEngine(t)
	in := strings.NewReader(`{"schema_version":"robit.v1","id":"evt-3","type":"message","payload":{"message_id":"m1","room_id":"room-1","workspace_id":"ws-1","sender_id":"alice","text":"hello there"}}` + "\n")
	var out bytes.Buffer

	if err := runProtocolMode(context.Background(), eng, in, &out); err != nil {
		t.Fatalf("runProtocolMode: %v", err)
	}

	line := strings.TrimSpace(out.String())
	if line == "" {
		t.Fatal("expected at least one reply to a chat message")
	}
	var reply struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(line), &reply); err != nil {
		t.Fatalf("unmarshal reply: %v", err)
	}
	if reply.Type != "response" {
		t.Fatalf("expected a response event, got %q", reply.Type)
	}
}
