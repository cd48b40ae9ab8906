// Package roomconfig implements the hierarchical global→workspace→room
// configuration store: per-scope risk policy, action allow/denylists, and
// dry-run default, merged or replaced on update and flattened to one
// effective RoomConfig per (workspace, room) pair.
package roomconfig

import (
	"github.com/tidwall/match"

	"github.com/bdobrica/robit/action"
	"github.com/bdobrica/robit/protocol"
)

// RiskPolicy overrides the default approval-gating behaviour for a scope.
type RiskPolicy struct {
	LowAutoExecute bool
	ApprovalFor    []action.RiskLevel
}

// RoomConfig is the flattened configuration in effect for one room: any
// field left nil/empty falls back to whatever an enclosing scope (or the
// base riskpolicy.Policy) decides.
type RoomConfig struct {
	RiskPolicy      *RiskPolicy
	ActionAllowlist map[string]struct{}
	ActionDenylist  map[string]struct{}
	DryRunDefault   *bool
	ProviderBinding *protocol.ProviderBinding
	Locale          string
	Timezone        string
}

// AllowsAction reports whether name is permitted under this config: denylist
// wins over everything, then an allowlist (if set) must contain name, else
// the action is allowed by default. Entries may be exact action names or
// glob patterns ("fs.*", "shell.*") matched via tidwall/match, so a room can
// deny or allow a whole family of actions with one entry.
func (c RoomConfig) AllowsAction(name string) bool {
	if c.ActionDenylist != nil && matchesAny(c.ActionDenylist, name) {
		return false
	}
	if c.ActionAllowlist != nil {
		return matchesAny(c.ActionAllowlist, name)
	}
	return true
}

// matchesAny reports whether name equals or glob-matches any pattern in set.
func matchesAny(set map[string]struct{}, name string) bool {
	if _, exact := set[name]; exact {
		return true
	}
	for pattern := range set {
		if match.Match(name, pattern) {
			return true
		}
	}
	return false
}

// applyOverride overlays other on top of c: any field other sets replaces
// c's corresponding field wholesale (this is how an inner scope wins over an
// outer one during EffectiveFor flattening, independent of each scope's own
// merge/replace ConfigMode at update time).
func (c *RoomConfig) applyOverride(other RoomConfig) {
	if other.RiskPolicy != nil {
		c.RiskPolicy = other.RiskPolicy
	}
	if other.ActionAllowlist != nil {
		c.ActionAllowlist = other.ActionAllowlist
	}
	if other.ActionDenylist != nil {
		c.ActionDenylist = other.ActionDenylist
	}
	if other.DryRunDefault != nil {
		c.DryRunDefault = other.DryRunDefault
	}
	if other.ProviderBinding != nil {
		c.ProviderBinding = other.ProviderBinding
	}
	if other.Locale != "" {
		c.Locale = other.Locale
	}
	if other.Timezone != "" {
		c.Timezone = other.Timezone
	}
}

func mergeInto(base *RoomConfig, incoming RoomConfig) {
	if incoming.ActionAllowlist != nil {
		if base.ActionAllowlist == nil {
			base.ActionAllowlist = map[string]struct{}{}
		}
		for k := range incoming.ActionAllowlist {
			base.ActionAllowlist[k] = struct{}{}
		}
	}
	if incoming.ActionDenylist != nil {
		if base.ActionDenylist == nil {
			base.ActionDenylist = map[string]struct{}{}
		}
		for k := range incoming.ActionDenylist {
			base.ActionDenylist[k] = struct{}{}
		}
	}
	if incoming.RiskPolicy != nil {
		base.RiskPolicy = incoming.RiskPolicy
	}
	if incoming.DryRunDefault != nil {
		base.DryRunDefault = incoming.DryRunDefault
	}
	if incoming.ProviderBinding != nil {
		base.ProviderBinding = incoming.ProviderBinding
	}
	if incoming.Locale != "" {
		base.Locale = incoming.Locale
	}
	if incoming.Timezone != "" {
		base.Timezone = incoming.Timezone
	}
}

type roomKey struct {
	workspaceID string
	roomID      string
}

// Store is the hierarchical config: a global scope, per-workspace overrides,
// and per-room overrides, each independently merge- or replace-updated.
type Store struct {
	global     RoomConfig
	workspaces map[string]RoomConfig
	rooms      map[roomKey]RoomConfig
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		workspaces: make(map[string]RoomConfig),
		rooms:      make(map[roomKey]RoomConfig),
	}
}

// Apply applies a ConfigUpdatePayload at its declared scope (global if
// Scope is nil) with its declared mode (merge if Mode is nil).
func (s *Store) Apply(payload protocol.ConfigUpdatePayload) {
	mode := protocol.ConfigModeMerge
	if payload.Mode != nil {
		mode = *payload.Mode
	}

	incoming := RoomConfig{
		DryRunDefault:   payload.DryRunDefault,
		ProviderBinding: payload.ProviderBinding,
		Locale:          payload.Locale,
		Timezone:        payload.Timezone,
	}
	if payload.RiskPolicy != nil {
		lowAuto := true
		if payload.RiskPolicy.LowAutoExecute != nil {
			lowAuto = *payload.RiskPolicy.LowAutoExecute
		}
		approvalFor := payload.RiskPolicy.ApprovalFor
		if approvalFor == nil {
			approvalFor = []action.RiskLevel{action.RiskMedium, action.RiskHigh}
		}
		incoming.RiskPolicy = &RiskPolicy{LowAutoExecute: lowAuto, ApprovalFor: approvalFor}
	}
	if payload.ActionAllowlist != nil {
		incoming.ActionAllowlist = toSet(payload.ActionAllowlist)
	}
	if payload.ActionDenylist != nil {
		incoming.ActionDenylist = toSet(payload.ActionDenylist)
	}

	if payload.Scope == nil {
		applyToGlobal(&s.global, incoming, mode)
		return
	}
	switch {
	case payload.Scope.WorkspaceID != "" && payload.Scope.RoomID != "":
		key := roomKey{payload.Scope.WorkspaceID, payload.Scope.RoomID}
		applyToTarget(s.rooms, key, incoming, mode)
	case payload.Scope.WorkspaceID != "":
		applyToTarget(s.workspaces, payload.Scope.WorkspaceID, incoming, mode)
	default:
		applyToGlobal(&s.global, incoming, mode)
	}
}

func applyToGlobal(base *RoomConfig, incoming RoomConfig, mode protocol.ConfigMode) {
	if mode == protocol.ConfigModeReplace {
		*base = incoming
		return
	}
	mergeInto(base, incoming)
}

func applyToTarget[K comparable](m map[K]RoomConfig, key K, incoming RoomConfig, mode protocol.ConfigMode) {
	if mode == protocol.ConfigModeReplace {
		m[key] = incoming
		return
	}
	entry := m[key]
	mergeInto(&entry, incoming)
	m[key] = entry
}

// EffectiveFor flattens global, workspace, and room scopes (in that
// precedence order, room winning) into a single RoomConfig.
func (s *Store) EffectiveFor(workspaceID, roomID string) RoomConfig {
	config := s.global
	if ws, ok := s.workspaces[workspaceID]; ok {
		config.applyOverride(ws)
	}
	if room, ok := s.rooms[roomKey{workspaceID, roomID}]; ok {
		config.applyOverride(room)
	}
	return config
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}

// Scope is the room allow-list: when Enforced, only (workspace, room) pairs
// explicitly granted via Update are allowed to reach the engine.
type Scope struct {
	enforced bool
	allowed  map[roomKey]struct{}
}

// NewScope returns an unenforced Scope (every room allowed) until the first
// Update.
func NewScope() *Scope {
	return &Scope{allowed: make(map[roomKey]struct{})}
}

// Update (re)configures the allowed room set. Mode defaults to Replace when
// payload.Mode is nil.
func (s *Scope) Update(payload protocol.RoomScopePayload) {
	mode := protocol.ConfigModeReplace
	if payload.Mode != nil {
		mode = *payload.Mode
	}
	if mode == protocol.ConfigModeReplace {
		s.allowed = make(map[roomKey]struct{})
	}
	for _, ws := range payload.Workspaces {
		for _, room := range ws.Rooms {
			s.allowed[roomKey{ws.WorkspaceID, room.RoomID}] = struct{}{}
		}
	}
	s.enforced = true
}

// Allows reports whether (workspaceID, roomID) may reach the engine. Before
// any Update, every room is allowed.
func (s *Scope) Allows(workspaceID, roomID string) bool {
	if !s.enforced {
		return true
	}
	_, ok := s.allowed[roomKey{workspaceID, roomID}]
	return ok
}
