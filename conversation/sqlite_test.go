package conversation_test

import (
	"path/filepath"
	"testing"

	"github.com/bdobrica/robit/conversation"
	"github.com/bdobrica/robit/llmplanner"
)

func TestSQLitePersister_SaveAndLoadRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "conversations.db")

	persister, err := conversation.OpenSQLitePersister(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer persister.Close()

	store := conversation.New(10)
	key := conversation.Key{WorkspaceID: "w1", RoomID: "r1"}
	store.RecordExchange(key, "hello", []string{"hi there"})

	if err := persister.Save(store); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded := conversation.New(10)
	if err := persister.Load(loaded); err != nil {
		t.Fatalf("load: %v", err)
	}

	history := loaded.HistoryFor(key)
	if len(history) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(history))
	}
	if history[0].Role != llmplanner.RoleUser || history[0].Content != "hello" {
		t.Fatalf("unexpected first message: %+v", history[0])
	}
	if history[1].Role != llmplanner.RoleAssistant || history[1].Content != "hi there" {
		t.Fatalf("unexpected second message: %+v", history[1])
	}
}

func TestSQLitePersister_SaveOverwritesExistingRow(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "conversations.db")

	persister, err := conversation.OpenSQLitePersister(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer persister.Close()

	store := conversation.New(10)
	key := conversation.Key{WorkspaceID: "w1", RoomID: "r1"}
	store.RecordExchange(key, "first", nil)
	if err := persister.Save(store); err != nil {
		t.Fatalf("save 1: %v", err)
	}

	store.RecordExchange(key, "second", nil)
	if err := persister.Save(store); err != nil {
		t.Fatalf("save 2: %v", err)
	}

	loaded := conversation.New(10)
	if err := persister.Load(loaded); err != nil {
		t.Fatalf("load: %v", err)
	}
	history := loaded.HistoryFor(key)
	if len(history) != 2 {
		t.Fatalf("expected 2 messages after overwrite, got %d", len(history))
	}
	if history[0].Content != "first" || history[1].Content != "second" {
		t.Fatalf("unexpected history after overwrite: %+v", history)
	}
}
