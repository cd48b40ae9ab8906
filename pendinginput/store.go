// Package pendinginput tracks a planner's "I need one more field" decision
// so that the very next message from the same conversation is interpreted
// as a fill for the missing parameter rather than handed to the planner
// again from scratch.
package pendinginput

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/tidwall/sjson"
)

// Entry is one outstanding need-input request.
type Entry struct {
	Action  string
	Params  json.RawMessage
	Missing []string
	Prompt  string
}

// pathLikeKeys is this package's own short list of path-like field names
// (not preflight's default PathKeys, and it includes "folder"): when several fields are
// missing, only one of these is ever auto-filled from free text, to avoid
// mis-binding an unrelated field.
var pathLikeKeys = map[string]bool{
	"path": true, "dir": true, "directory": true, "cwd": true, "folder": true,
}

// cwdAliases maps a handful of fixed phrases to "use the engine's cwd"
// rather than taking the user's literal text as the path value.
var cwdAliases = map[string]bool{
	".": true, "current": true, "current dir": true, "当前目录": true,
}

// Store holds at most one Entry per conversation key.
type Store struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{entries: make(map[string]Entry)}
}

// Set records entry for key, replacing any previous pending fill for that
// conversation.
func (s *Store) Set(key string, entry Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry
}

// Get returns the pending entry for key, if any.
func (s *Store) Get(key string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	return e, ok
}

// Clear removes any pending entry for key.
func (s *Store) Clear(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Fill tries to resolve e's single most-fillable missing field using text,
// returning the merged params and the still-missing keys. It never mutates
// the store itself; the caller decides whether to Clear or re-Set based on
// the result.
//
// When exactly one field is missing, that field is always filled. When
// several are missing, only a path-like field is filled and the rest are
// left open; the caller should fall through to the planner in that case.
func Fill(e Entry, cwd, text string) (params json.RawMessage, filled bool, stillMissing []string) {
	if len(e.Missing) == 0 {
		return e.Params, false, nil
	}

	target := ""
	switch {
	case len(e.Missing) == 1:
		target = e.Missing[0]
	default:
		for _, key := range e.Missing {
			if pathLikeKeys[strings.ToLower(key)] {
				target = key
				break
			}
		}
	}
	if target == "" {
		return e.Params, false, e.Missing
	}

	value := text
	if cwdAliases[strings.ToLower(strings.TrimSpace(text))] {
		value = cwd
	}

	params := e.Params
	if len(params) == 0 {
		params = json.RawMessage(`{}`)
	}
	merged, err := sjson.SetBytes(params, target, value)
	if err != nil {
		return e.Params, false, e.Missing
	}

	remaining := make([]string, 0, len(e.Missing)-1)
	for _, key := range e.Missing {
		if key != target {
			remaining = append(remaining, key)
		}
	}
	return merged, true, remaining
}
