package roomconfig_test

import (
	"testing"

	"github.com/bdobrica/robit/action"
	"github.com/bdobrica/robit/protocol"
	"github.com/bdobrica/robit/roomconfig"
)

func boolPtr(b bool) *bool { return &b }
func modePtr(m protocol.ConfigMode) *protocol.ConfigMode { return &m }

func TestAllowsAction_DenylistWinsOverAllowlist(t *testing.T) {
	cfg := roomconfig.RoomConfig{
		ActionAllowlist: map[string]struct{}{"fs.read_file": {}},
		ActionDenylist:  map[string]struct{}{"fs.read_file": {}},
	}
	if cfg.AllowsAction("fs.read_file") {
		t.Fatal("expected denylist to win even though the action is also allowlisted")
	}
}

func TestAllowsAction_AllowlistRestricts(t *testing.T) {
	cfg := roomconfig.RoomConfig{ActionAllowlist: map[string]struct{}{"fs.read_file": {}}}
	if !cfg.AllowsAction("fs.read_file") {
		t.Fatal("expected allowlisted action to be allowed")
	}
	if cfg.AllowsAction("shell.run") {
		t.Fatal("expected action outside the allowlist to be denied")
	}
}

func TestAllowsAction_DefaultAllowsEverything(t *testing.T) {
	cfg := roomconfig.RoomConfig{}
	if !cfg.AllowsAction("anything") {
		t.Fatal("expected the zero-value config to allow by default")
	}
}

func TestAllowsAction_DenylistGlobPattern(t *testing.T) {
	cfg := roomconfig.RoomConfig{ActionDenylist: map[string]struct{}{"shell.*": {}}}
	if cfg.AllowsAction("shell.run") {
		t.Fatal("expected shell.run to be denied by the shell.* glob")
	}
	if !cfg.AllowsAction("fs.read_file") {
		t.Fatal("expected fs.read_file to remain allowed")
	}
}

func TestAllowsAction_AllowlistGlobPattern(t *testing.T) {
	cfg := roomconfig.RoomConfig{ActionAllowlist: map[string]struct{}{"fs.*": {}}}
	if !cfg.AllowsAction("fs.organize_directory") {
		t.Fatal("expected fs.organize_directory to be allowed by the fs.* glob")
	}
	if cfg.AllowsAction("shell.run") {
		t.Fatal("expected shell.run to be denied (not matching fs.*)")
	}
}

func TestStore_EffectiveFor_PrecedenceRoomOverWorkspaceOverGlobal(t *testing.T) {
	s := roomconfig.NewStore()

	s.Apply(protocol.ConfigUpdatePayload{
		DryRunDefault: boolPtr(true),
	})
	s.Apply(protocol.ConfigUpdatePayload{
		Scope:         &protocol.ConfigScope{WorkspaceID: "ws-1"},
		DryRunDefault: boolPtr(false),
	})

	effective := s.EffectiveFor("ws-1", "room-1")
	if effective.DryRunDefault == nil || *effective.DryRunDefault != false {
		t.Fatalf("expected workspace override to win over global, got %+v", effective.DryRunDefault)
	}

	// An unrelated workspace should still see the global default.
	other := s.EffectiveFor("ws-2", "room-1")
	if other.DryRunDefault == nil || *other.DryRunDefault != true {
		t.Fatalf("expected ws-2 to fall back to the global default, got %+v", other.DryRunDefault)
	}

	s.Apply(protocol.ConfigUpdatePayload{
		Scope:         &protocol.ConfigScope{WorkspaceID: "ws-1", RoomID: "room-1"},
		DryRunDefault: boolPtr(true),
	})
	room := s.EffectiveFor("ws-1", "room-1")
	if room.DryRunDefault == nil || *room.DryRunDefault != true {
		t.Fatalf("expected room scope to win over workspace, got %+v", room.DryRunDefault)
	}
	// A sibling room in the same workspace keeps the workspace-level value.
	sibling := s.EffectiveFor("ws-1", "room-2")
	if sibling.DryRunDefault == nil || *sibling.DryRunDefault != false {
		t.Fatalf("expected sibling room to keep the workspace default, got %+v", sibling.DryRunDefault)
	}
}

func TestStore_Apply_MergeModeUnionsAllowlists(t *testing.T) {
	s := roomconfig.NewStore()
	s.Apply(protocol.ConfigUpdatePayload{ActionAllowlist: []string{"fs.read_file"}})
	s.Apply(protocol.ConfigUpdatePayload{ActionAllowlist: []string{"shell.run"}})

	effective := s.EffectiveFor("", "")
	if !effective.AllowsAction("fs.read_file") || !effective.AllowsAction("shell.run") {
		t.Fatalf("expected both merged entries to be allowed: %+v", effective.ActionAllowlist)
	}
}

func TestStore_Apply_ReplaceModeDiscardsPriorState(t *testing.T) {
	s := roomconfig.NewStore()
	s.Apply(protocol.ConfigUpdatePayload{ActionAllowlist: []string{"fs.read_file"}})
	s.Apply(protocol.ConfigUpdatePayload{
		Mode:            modePtr(protocol.ConfigModeReplace),
		ActionAllowlist: []string{"shell.run"},
	})

	effective := s.EffectiveFor("", "")
	if effective.AllowsAction("fs.read_file") {
		t.Fatal("expected replace mode to discard the previously merged entry")
	}
	if !effective.AllowsAction("shell.run") {
		t.Fatal("expected the replacing entry to be present")
	}
}

func TestStore_Apply_RiskPolicyDefaultsApprovalForWhenOmitted(t *testing.T) {
	s := roomconfig.NewStore()
	s.Apply(protocol.ConfigUpdatePayload{RiskPolicy: &protocol.RiskPolicy{}})

	effective := s.EffectiveFor("", "")
	if effective.RiskPolicy == nil {
		t.Fatal("expected a RiskPolicy to be set")
	}
	if !effective.RiskPolicy.LowAutoExecute {
		t.Fatal("expected LowAutoExecute to default true when omitted")
	}
	found := map[action.RiskLevel]bool{}
	for _, lvl := range effective.RiskPolicy.ApprovalFor {
		found[lvl] = true
	}
	if !found[action.RiskMedium] || !found[action.RiskHigh] {
		t.Fatalf("expected ApprovalFor to default to medium+high, got %v", effective.RiskPolicy.ApprovalFor)
	}
}

func TestScope_UnenforcedAllowsEverythingUntilFirstUpdate(t *testing.T) {
	s := roomconfig.NewScope()
	if !s.Allows("any-ws", "any-room") {
		t.Fatal("expected every room allowed before the first Update")
	}

	s.Update(protocol.RoomScopePayload{
		Workspaces: []protocol.WorkspaceScope{
			{WorkspaceID: "ws-1", Rooms: []protocol.RoomScopeItem{{RoomID: "room-1"}}},
		},
	})

	if !s.Allows("ws-1", "room-1") {
		t.Fatal("expected the explicitly granted room to be allowed")
	}
	if s.Allows("ws-1", "room-2") {
		t.Fatal("expected a room outside the granted set to be denied once enforced")
	}
}
