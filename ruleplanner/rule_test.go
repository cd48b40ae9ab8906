package ruleplanner_test

import (
	"encoding/json"
	"testing"

	"github.com/bdobrica/robit/ruleplanner"
)

func TestPlan_ExplicitActionColonSyntaxWithKeyValueParams(t *testing.T) {
	p := ruleplanner.New()
	resp := p.Plan("action:fs.read_file path=./notes.txt verbose=true")
	if resp.Kind != ruleplanner.ResponseAction {
		t.Fatalf("expected ResponseAction, got %v (%s)", resp.Kind, resp.Message)
	}
	if resp.Action.Name != "fs.read_file" {
		t.Fatalf("expected fs.read_file, got %q", resp.Action.Name)
	}
	var params map[string]any
	if err := json.Unmarshal(resp.Action.Params, &params); err != nil {
		t.Fatalf("unmarshal params: %v", err)
	}
	if params["path"] != "./notes.txt" {
		t.Fatalf("expected path param preserved, got %v", params["path"])
	}
	if params["verbose"] != true {
		t.Fatalf("expected verbose coerced to bool true, got %v (%T)", params["verbose"], params["verbose"])
	}
}

func TestPlan_ExplicitActionSpaceSyntaxWithJSONParams(t *testing.T) {
	p := ruleplanner.New()
	resp := p.Plan(`action fs.write_file {"path":"./out.txt","content":"hi"}`)
	if resp.Kind != ruleplanner.ResponseAction {
		t.Fatalf("expected ResponseAction, got %v", resp.Kind)
	}
	if resp.Action.Name != "fs.write_file" {
		t.Fatalf("expected fs.write_file, got %q", resp.Action.Name)
	}
	var params map[string]any
	if err := json.Unmarshal(resp.Action.Params, &params); err != nil {
		t.Fatalf("unmarshal params: %v", err)
	}
	if params["content"] != "hi" {
		t.Fatalf("expected content param preserved, got %v", params["content"])
	}
}

func TestPlan_ExplicitActionWithMalformedJSONFallsBackToEmptyParams(t *testing.T) {
	p := ruleplanner.New()
	resp := p.Plan(`action:fs.read_file {not valid json`)
	if resp.Kind != ruleplanner.ResponseAction {
		t.Fatalf("expected ResponseAction, got %v", resp.Kind)
	}
	if string(resp.Action.Params) != "{}" {
		t.Fatalf("expected empty object fallback for malformed JSON params, got %s", resp.Action.Params)
	}
}

func TestPlan_ExplicitActionWithNoParams(t *testing.T) {
	p := ruleplanner.New()
	resp := p.Plan("action:fs.list_directory")
	if resp.Kind != ruleplanner.ResponseAction {
		t.Fatalf("expected ResponseAction, got %v", resp.Kind)
	}
	if string(resp.Action.Params) != "{}" {
		t.Fatalf("expected empty params object, got %s", resp.Action.Params)
	}
}

func TestPlan_OrganizeDesktopIntentInEnglish(t *testing.T) {
	p := ruleplanner.New()
	resp := p.Plan("please organize my desktop")
	if resp.Kind != ruleplanner.ResponseAction {
		t.Fatalf("expected ResponseAction, got %v", resp.Kind)
	}
	if resp.Action.Name != "fs.organize_directory" {
		t.Fatalf("expected fs.organize_directory, got %q", resp.Action.Name)
	}
}

func TestPlan_OrganizeDesktopIntentInChinese(t *testing.T) {
	p := ruleplanner.New()
	resp := p.Plan("帮我整理桌面")
	if resp.Kind != ruleplanner.ResponseAction {
		t.Fatalf("expected ResponseAction, got %v", resp.Kind)
	}
	if resp.Action.Name != "fs.organize_directory" {
		t.Fatalf("expected fs.organize_directory, got %q", resp.Action.Name)
	}
}

func TestPlan_UnmatchedInputIsUnknown(t *testing.T) {
	p := ruleplanner.New()
	resp := p.Plan("what's the weather like today")
	if resp.Kind != ruleplanner.ResponseUnknown {
		t.Fatalf("expected ResponseUnknown, got %v", resp.Kind)
	}
}

func TestPlan_EmptyInputIsUnknown(t *testing.T) {
	p := ruleplanner.New()
	resp := p.Plan("   ")
	if resp.Kind != ruleplanner.ResponseUnknown {
		t.Fatalf("expected ResponseUnknown for blank input, got %v", resp.Kind)
	}
}

func TestPlan_KeyValueParamsCoerceNumericTypes(t *testing.T) {
	p := ruleplanner.New()
	resp := p.Plan("action:fs.seek offset=42 ratio=3.14")
	var params map[string]any
	if err := json.Unmarshal(resp.Action.Params, &params); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if params["offset"] != float64(42) {
		t.Fatalf("expected offset coerced to a number, got %v (%T)", params["offset"], params["offset"])
	}
	if params["ratio"] != 3.14 {
		t.Fatalf("expected ratio coerced to a float, got %v", params["ratio"])
	}
}
