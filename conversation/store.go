// Package conversation implements the bounded per-room chat history the
// engine feeds to an LLM planner as context, optionally persisted to a JSON
// file across restarts.
package conversation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bdobrica/robit/llmplanner"
)

// Key identifies one conversation: a workspace and a room, the room id
// optionally decorated with the active LLM backend label so switching
// backends starts a fresh transcript rather than confusing one model with
// another's history.
type Key struct {
	WorkspaceID string
	RoomID      string
}

// DecorateRoomID appends "::ai=<label>" to roomID when label is non-empty,
// matching the engine's backend-aware conversation key.
func DecorateRoomID(roomID, label string) string {
	if label == "" {
		return roomID
	}
	return roomID + "::ai=" + label
}

// Store holds bounded per-Key message history.
type Store struct {
	mu          sync.Mutex
	maxMessages int
	history     map[Key][]llmplanner.ChatMessage
	persistPath string
}

// New returns a Store bounding each conversation to maxMessages entries
// (minimum 2).
func New(maxMessages int) *Store {
	if maxMessages < 2 {
		maxMessages = 2
	}
	return &Store{maxMessages: maxMessages, history: make(map[Key][]llmplanner.ChatMessage)}
}

// HistoryFor returns a copy of the transcript for key, oldest first.
func (s *Store) HistoryFor(key Key) []llmplanner.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := s.history[key]
	out := make([]llmplanner.ChatMessage, len(existing))
	copy(out, existing)
	return out
}

// RecordExchange appends the user's input and every non-empty reply text to
// key's transcript, then trims to maxMessages.
func (s *Store) RecordExchange(key Key, userInput string, replyTexts []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.history[key]
	entry = append(entry, llmplanner.ChatMessage{Role: llmplanner.RoleUser, Content: strings.TrimSpace(userInput)})
	for _, text := range replyTexts {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			continue
		}
		entry = append(entry, llmplanner.ChatMessage{Role: llmplanner.RoleAssistant, Content: trimmed})
	}
	s.history[key] = trim(entry, s.maxMessages)
}

// RecordContext appends a single context-only message (role/content) to
// key's transcript without treating it as a user/reply exchange, used for
// ingesting out-of-band context messages.
func (s *Store) RecordContext(key Key, role llmplanner.ChatRole, content string) {
	text := strings.TrimSpace(content)
	if text == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := append(s.history[key], llmplanner.ChatMessage{Role: role, Content: text})
	s.history[key] = trim(entry, s.maxMessages)
}

func trim(entry []llmplanner.ChatMessage, max int) []llmplanner.ChatMessage {
	if len(entry) <= max {
		return entry
	}
	start := len(entry) - max
	return entry[start:]
}

type persistedConversation struct {
	WorkspaceID string                    `json:"workspace_id"`
	RoomID      string                    `json:"room_id"`
	Messages    []llmplanner.ChatMessage  `json:"messages"`
}

type persistedStore struct {
	MaxMessages   int                     `json:"max_messages"`
	Conversations []persistedConversation `json:"conversations"`
}

// LoadFromPath replaces the in-memory history with whatever is persisted at
// path, trimming each loaded conversation to maxMessages. A missing file is
// not an error — the store simply starts empty.
func (s *Store) LoadFromPath(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("conversation: read %s: %w", path, err)
	}
	var stored persistedStore
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("conversation: decode %s: %w", path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = make(map[Key][]llmplanner.ChatMessage, len(stored.Conversations))
	for _, convo := range stored.Conversations {
		key := Key{WorkspaceID: convo.WorkspaceID, RoomID: convo.RoomID}
		s.history[key] = trim(convo.Messages, s.maxMessages)
	}
	return nil
}

// SaveToPath persists every in-memory conversation to path as formatted
// JSON, creating parent directories as needed.
func (s *Store) SaveToPath(path string) error {
	s.mu.Lock()
	conversations := make([]persistedConversation, 0, len(s.history))
	for key, messages := range s.history {
		conversations = append(conversations, persistedConversation{
			WorkspaceID: key.WorkspaceID,
			RoomID:      key.RoomID,
			Messages:    messages,
		})
	}
	maxMessages := s.maxMessages
	s.mu.Unlock()

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("conversation: mkdir %s: %w", dir, err)
		}
	}
	data, err := json.MarshalIndent(persistedStore{MaxMessages: maxMessages, Conversations: conversations}, "", "  ")
	if err != nil {
		return fmt.Errorf("conversation: encode: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("conversation: write %s: %w", path, err)
	}
	return nil
}
