package pendinginput_test

import (
	"encoding/json"
	"testing"

	"github.com/bdobrica/robit/pendinginput"
)

func TestStore_SetGetClear(t *testing.T) {
	s := pendinginput.NewStore()

	if _, ok := s.Get("room-1"); ok {
		t.Fatal("expected no entry before Set")
	}

	entry := pendinginput.Entry{Action: "fs.organize_directory", Missing: []string{"path"}}
	s.Set("room-1", entry)

	got, ok := s.Get("room-1")
	if !ok {
		t.Fatal("expected entry after Set")
	}
	if got.Action != entry.Action {
		t.Fatalf("got action %q, want %q", got.Action, entry.Action)
	}

	s.Clear("room-1")
	if _, ok := s.Get("room-1"); ok {
		t.Fatal("expected no entry after Clear")
	}
}

func TestFill_SingleMissingField(t *testing.T) {
	entry := pendinginput.Entry{
		Action:  "fs.organize_directory",
		Params:  json.RawMessage(`{"mode":"extension"}`),
		Missing: []string{"path"},
	}

	params, filled, remaining := pendinginput.Fill(entry, "/home/user", "~/Desktop")
	if !filled {
		t.Fatal("expected fill to succeed")
	}
	if len(remaining) != 0 {
		t.Fatalf("expected no remaining fields, got %v", remaining)
	}

	var decoded map[string]any
	if err := json.Unmarshal(params, &decoded); err != nil {
		t.Fatalf("unmarshal merged params: %v", err)
	}
	if decoded["path"] != "~/Desktop" {
		t.Fatalf("expected path to be set to the reply text, got %v", decoded["path"])
	}
	if decoded["mode"] != "extension" {
		t.Fatalf("expected existing mode to survive the merge, got %v", decoded["mode"])
	}
}

func TestFill_CwdAliasSubstitutesEngineCwd(t *testing.T) {
	entry := pendinginput.Entry{
		Action:  "fs.organize_directory",
		Missing: []string{"path"},
	}

	for _, alias := range []string{".", "current", "current dir", "当前目录"} {
		params, filled, _ := pendinginput.Fill(entry, "/work/dir", alias)
		if !filled {
			t.Fatalf("alias %q: expected fill to succeed", alias)
		}
		var decoded map[string]any
		if err := json.Unmarshal(params, &decoded); err != nil {
			t.Fatalf("alias %q: unmarshal: %v", alias, err)
		}
		if decoded["path"] != "/work/dir" {
			t.Fatalf("alias %q: expected path=/work/dir, got %v", alias, decoded["path"])
		}
	}
}

func TestFill_MultipleMissingPrefersPathLikeKey(t *testing.T) {
	entry := pendinginput.Entry{
		Missing: []string{"name", "path"},
	}

	params, filled, remaining := pendinginput.Fill(entry, "/cwd", "./docs")
	if !filled {
		t.Fatal("expected fill to succeed by targeting the path-like key")
	}
	if len(remaining) != 1 || remaining[0] != "name" {
		t.Fatalf("expected only 'name' still missing, got %v", remaining)
	}
	var decoded map[string]any
	if err := json.Unmarshal(params, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["path"] != "./docs" {
		t.Fatalf("expected path filled, got %v", decoded["path"])
	}
}

func TestFill_MultipleMissingWithNoPathLikeKeyDoesNothing(t *testing.T) {
	entry := pendinginput.Entry{
		Missing: []string{"name", "size"},
	}

	_, filled, remaining := pendinginput.Fill(entry, "/cwd", "whatever")
	if filled {
		t.Fatal("expected no fill when no missing key is path-like")
	}
	if len(remaining) != 2 {
		t.Fatalf("expected both fields still missing, got %v", remaining)
	}
}

func TestFill_NoMissingFieldsIsANoop(t *testing.T) {
	entry := pendinginput.Entry{Params: json.RawMessage(`{"path":"x"}`)}
	params, filled, remaining := pendinginput.Fill(entry, "/cwd", "anything")
	if filled {
		t.Fatal("expected no fill when nothing is missing")
	}
	if remaining != nil {
		t.Fatalf("expected nil remaining, got %v", remaining)
	}
	if string(params) != `{"path":"x"}` {
		t.Fatalf("expected params unchanged, got %s", params)
	}
}
