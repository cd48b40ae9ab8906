package protocol

import (
	"encoding/json"

	"github.com/bdobrica/robit/action"
)

// ConfigMode selects how a ConfigUpdatePayload is applied against the
// existing scope: additively (Merge) or wholesale (Replace).
type ConfigMode string

const (
	ConfigModeMerge   ConfigMode = "merge"
	ConfigModeReplace ConfigMode = "replace"
)

// MessagePayload carries a single inbound chat message to be routed through
// the engine's planner cascade.
type MessagePayload struct {
	MessageID   string          `json:"message_id"`
	RoomID      string          `json:"room_id"`
	WorkspaceID string          `json:"workspace_id"`
	SenderID    string          `json:"sender_id"`
	Text        string          `json:"text"`
	EventKind   string          `json:"event_kind,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

func (*MessagePayload) Kind() string { return "message" }

// ResponsePayload carries an engine reply back to the adapter.
type ResponsePayload struct {
	InReplyTo   string          `json:"in_reply_to"`
	RoomID      string          `json:"room_id"`
	WorkspaceID string          `json:"workspace_id"`
	Kind        string          `json:"kind"`
	Text        string          `json:"text"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

func (*ResponsePayload) Kind() string { return "response" }

// ConfigScope selects the workspace/room a ConfigUpdatePayload applies to.
// Both empty means the global scope.
type ConfigScope struct {
	WorkspaceID string `json:"workspace_id,omitempty"`
	RoomID      string `json:"room_id,omitempty"`
}

// ProviderBinding pins the LLM planner's model/temperature for a scope.
type ProviderBinding struct {
	Model       string   `json:"model"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// RiskPolicy overrides the approval-gating behaviour for a scope.
type RiskPolicy struct {
	LowAutoExecute *bool              `json:"low_auto_execute,omitempty"`
	ApprovalFor    []action.RiskLevel `json:"approval_for,omitempty"`
}

// ConfigUpdatePayload updates the hierarchical room-config store at global,
// workspace, or room scope.
type ConfigUpdatePayload struct {
	Scope             *ConfigScope     `json:"scope,omitempty"`
	Mode              *ConfigMode      `json:"mode,omitempty"`
	ProviderBinding   *ProviderBinding `json:"provider_binding,omitempty"`
	RiskPolicy        *RiskPolicy      `json:"risk_policy,omitempty"`
	ActionAllowlist   []string         `json:"action_allowlist,omitempty"`
	ActionDenylist    []string         `json:"action_denylist,omitempty"`
	DryRunDefault     *bool            `json:"dry_run_default,omitempty"`
	Locale            string           `json:"locale,omitempty"`
	Timezone          string           `json:"timezone,omitempty"`
}

func (*ConfigUpdatePayload) Kind() string { return "config_update" }

// RoomScopeItem names one room within a WorkspaceScope.
type RoomScopeItem struct {
	RoomID string `json:"room_id"`
	Name   string `json:"name,omitempty"`
}

// WorkspaceScope names one workspace and the rooms within it that the
// engine is allowed to act in, when scope enforcement is on.
type WorkspaceScope struct {
	WorkspaceID string          `json:"workspace_id"`
	Name        string          `json:"name,omitempty"`
	Rooms       []RoomScopeItem `json:"rooms"`
}

// RoomScopePayload (re)configures which workspace/room pairs the engine will
// accept messages from. Omitted Mode defaults to Replace.
type RoomScopePayload struct {
	Mode       *ConfigMode      `json:"mode,omitempty"`
	Workspaces []WorkspaceScope `json:"workspaces"`
}

func (*RoomScopePayload) Kind() string { return "room_scope" }

// ActionListRequestPayload asks the engine to enumerate its registered
// actions. It carries no fields.
type ActionListRequestPayload struct{}

func (*ActionListRequestPayload) Kind() string { return "action_list_request" }

// ActionListResultPayload answers an ActionListRequestPayload.
type ActionListResultPayload struct {
	Actions []json.RawMessage `json:"actions"`
}

func (*ActionListResultPayload) Kind() string { return "action_list_result" }

// ApprovalDecisionPayload carries an out-of-band approve/deny decision for a
// previously issued approval id, addressed by room/sender so the engine can
// reconstruct an InboundMessage for it.
type ApprovalDecisionPayload struct {
	ApprovalID  string `json:"approval_id"`
	Decision    string `json:"decision"`
	RoomID      string `json:"room_id"`
	WorkspaceID string `json:"workspace_id"`
	SenderID    string `json:"sender_id"`
	InReplyTo   string `json:"in_reply_to,omitempty"`
}

func (*ApprovalDecisionPayload) Kind() string { return "approval_decision" }

// PingPayload is an empty liveness probe.
type PingPayload struct{}

func (*PingPayload) Kind() string { return "ping" }

// PongPayload answers a PingPayload's event id.
type PongPayload struct {
	InReplyTo string `json:"in_reply_to"`
}

func (*PongPayload) Kind() string { return "pong" }
