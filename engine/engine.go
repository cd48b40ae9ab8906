// Package engine is the orchestrator: it receives an InboundMessage, runs it
// through control commands, pending-approval resolution, the optional LLM
// planner, and the deterministic rule-planner fallback, turning whichever
// responds first into one or more OutboundMessages.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/bdobrica/robit/action"
	"github.com/bdobrica/robit/approval"
	"github.com/bdobrica/robit/conversation"
	"github.com/bdobrica/robit/llmplanner"
	"github.com/bdobrica/robit/pendinginput"
	"github.com/bdobrica/robit/preflight"
	"github.com/bdobrica/robit/riskpolicy"
	"github.com/bdobrica/robit/roomconfig"
	"github.com/bdobrica/robit/ruleplanner"
)

// InboundMessage is one message arriving from an Adapter.
type InboundMessage struct {
	ID          string
	Text        string
	Sender      string
	Channel     string
	WorkspaceID string
	Metadata    json.RawMessage
}

// OutboundMessage is one reply the engine sends back through an Adapter.
type OutboundMessage struct {
	ID          string
	InReplyTo   string
	Text        string
	Recipient   string
	Channel     string
	WorkspaceID string
	Kind        string
	Data        json.RawMessage
}

// Engine wires every component together: action registry, planners,
// preflight, approvals, conversation memory, and hierarchical room config.
type Engine struct {
	mu sync.Mutex

	registry    *action.Registry
	rulePlanner *ruleplanner.Planner

	aiBackend      llmplanner.Planner
	aiBackendLabel string

	preflight *preflight.Engine
	policy    riskpolicy.Policy
	cwd       string
	dryRun    bool

	approvals     *approval.Store
	pendingInputs *pendinginput.Store
	nextMessageID uint64
	planCounter   uint64

	scope         *roomconfig.Scope
	configStore   *roomconfig.Store
	conversations *conversation.Store

	conversationPersistPath string

	plans map[string]*planContext

	seenMessageIDs map[string]struct{}

	log *slog.Logger
}

// New wires a fresh Engine around registry and policy. Dry-run starts true,
// matching the teacher's safety-first default; call SetDryRunDefault(false)
// once a deployment is ready to let actions actually run.
func New(registry *action.Registry, policy riskpolicy.Policy) (*Engine, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("engine: getwd: %w", err)
	}
	return &Engine{
		registry:      registry,
		rulePlanner:   ruleplanner.New(),
		preflight:     preflight.New(preflight.DefaultConfig()),
		policy:        policy,
		cwd:           cwd,
		dryRun:        true,
		approvals:     approval.NewStore(),
		pendingInputs: pendinginput.NewStore(),
		nextMessageID: 1,
		scope:         roomconfig.NewScope(),
		configStore:   roomconfig.NewStore(),
		conversations:  conversation.New(50),
		plans:          make(map[string]*planContext),
		seenMessageIDs: make(map[string]struct{}),
		log:            slog.Default(),
	}, nil
}

// markMessageSeen records messageID as processed, returning true the first
// time a given id is seen and false on every subsequent call — the
// deduplication guard a retransmitted protocol Message must hit before it
// reaches the planner cascade a second time.
func (e *Engine) markMessageSeen(messageID string) bool {
	if messageID == "" {
		return true
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, seen := e.seenMessageIDs[messageID]; seen {
		return false
	}
	e.seenMessageIDs[messageID] = struct{}{}
	return true
}

// SetAIBackend wires an optional LLM planner in ahead of the rule planner.
// label decorates conversation keys and the "backend" control command so
// switching models doesn't bleed one model's history into another's.
func (e *Engine) SetAIBackend(backend llmplanner.Planner, label string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.aiBackend = backend
	e.aiBackendLabel = label
}

// SetDryRunDefault changes the engine-wide default used when a room hasn't
// overridden DryRunDefault itself.
func (e *Engine) SetDryRunDefault(dryRun bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dryRun = dryRun
}

// SetPreflightConfig replaces the preflight engine's configuration.
func (e *Engine) SetPreflightConfig(cfg preflight.Config) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.preflight = preflight.New(cfg)
}

// ConfigStore exposes the hierarchical room-config store so adapters/cmd can
// seed it before Run, or apply ConfigUpdatePayloads as they arrive.
func (e *Engine) ConfigStore() *roomconfig.Store { return e.configStore }

// Scope exposes the room allow-list store.
func (e *Engine) Scope() *roomconfig.Scope { return e.scope }

// EnableConversationPersistence loads any existing conversation history from
// path and persists every subsequent exchange back to it.
func (e *Engine) EnableConversationPersistence(path string) error {
	e.mu.Lock()
	e.conversationPersistPath = path
	e.mu.Unlock()
	if err := e.conversations.LoadFromPath(path); err != nil {
		e.log.Warn("conversation history load failed", "path", path, "err", err)
		return err
	}
	return nil
}

func (e *Engine) conversationKey(workspaceID, roomID string) conversation.Key {
	e.mu.Lock()
	label := e.aiBackendLabel
	e.mu.Unlock()
	return conversation.Key{WorkspaceID: workspaceID, RoomID: conversation.DecorateRoomID(roomID, label)}
}

// HandleMessage is the entry point for a plain (non-protocol) inbound
// message, resolving room config from the engine's own config store.
func (e *Engine) HandleMessage(ctx context.Context, msg InboundMessage) []OutboundMessage {
	cfg := e.configStore.EffectiveFor(msg.WorkspaceID, msg.Channel)
	return e.handleMessageWithConfig(ctx, msg, cfg)
}

func (e *Engine) handleMessageWithConfig(ctx context.Context, msg InboundMessage, roomCfg roomconfig.RoomConfig) []OutboundMessage {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return nil
	}

	convoKey := e.conversationKey(msg.WorkspaceID, msg.Channel)

	if reply, ok := e.handleControl(msg); ok {
		e.recordAndPersist(convoKey, text, []OutboundMessage{reply})
		return []OutboundMessage{reply}
	}

	if replies, ok := e.handleApproval(ctx, msg, roomCfg); ok {
		e.recordAndPersist(convoKey, text, replies)
		return replies
	}

	inputKey := pendingInputKey(convoKey)
	var followUp string
	if pending, ok := e.pendingInputs.Get(inputKey); ok {
		if replies, filled := e.tryFillPendingInput(ctx, msg, inputKey, pending, roomCfg); filled {
			e.recordAndPersist(convoKey, text, replies)
			return replies
		}
		followUp = fmt.Sprintf("Follow-up: still need %s for action %q (originally asked: %q)", strings.Join(pending.Missing, ", "), pending.Action, pending.Prompt)
	}

	history := e.conversations.HistoryFor(convoKey)

	e.mu.Lock()
	backend := e.aiBackend
	e.mu.Unlock()

	if backend != nil {
		if scoped, ok := backend.(llmplanner.ScopedPlanner); ok && roomCfg.ProviderBinding != nil {
			backend = scoped.WithBinding(roomCfg.ProviderBinding.Model, roomCfg.ProviderBinding.Temperature)
		}
		plannerInput := e.buildPlannerInput(msg, text, followUp, roomCfg)
		decision, err := backend.PlanWithHistory(ctx, plannerInput, e.registry.ListSpecs(), history)
		if err != nil {
			e.log.Warn("llm planner error", "err", err)
		} else {
			decision = llmplanner.ApplyConfidencePolicy(decision)
			replies := e.dispatchDecision(ctx, msg, decision, roomCfg, history, plannerInput)
			e.recordAndPersist(convoKey, text, replies)
			return replies
		}
	}

	response := e.rulePlanner.Plan(text)
	var replies []OutboundMessage
	switch response.Kind {
	case ruleplanner.ResponseAction:
		replies = e.handleActionRequest(ctx, msg, response.Action, roomCfg)
	case ruleplanner.ResponseNeedInput:
		replies = []OutboundMessage{e.reply(msg, response.Prompt, "need_input", nil)}
	default:
		replyText := fmt.Sprintf(
			"I don't know how to handle that yet (%s). Try \"actions\" to list what I can do, or \"action:<name> key=value\" to be explicit.",
			response.Message,
		)
		replies = []OutboundMessage{e.reply(msg, replyText, "unknown", nil)}
	}
	e.recordAndPersist(convoKey, text, replies)
	return replies
}

func (e *Engine) dispatchDecision(ctx context.Context, msg InboundMessage, decision llmplanner.Decision, roomCfg roomconfig.RoomConfig, history []llmplanner.ChatMessage, plannerInput string) []OutboundMessage {
	switch decision.Kind {
	case llmplanner.DecisionAction:
		return e.handleActionRequest(ctx, msg, decision.Action, roomCfg)
	case llmplanner.DecisionNeedInput:
		if decision.NeedAction != "" && len(decision.Missing) > 0 {
			key := pendingInputKey(e.conversationKey(msg.WorkspaceID, msg.Channel))
			e.pendingInputs.Set(key, pendinginput.Entry{
				Action:  decision.NeedAction,
				Params:  decision.NeedParams,
				Missing: decision.Missing,
				Prompt:  decision.Prompt,
			})
		}
		return []OutboundMessage{e.reply(msg, decision.Prompt, "need_input", nil)}
	case llmplanner.DecisionPlan:
		return e.startPlan(ctx, msg, decision, roomCfg)
	case llmplanner.DecisionChat:
		text := decision.Message
		if strings.TrimSpace(text) == "" {
			text = "I'm here — go ahead and tell me more about what you need."
		}
		return []OutboundMessage{e.reply(msg, text, "chat", nil)}
	case llmplanner.DecisionUnknown:
		if decision.Message == llmplanner.RetrySentinel {
			return e.recoverFromInvalidFormat(ctx, msg, roomCfg, history, plannerInput)
		}
		text := decision.Message
		if strings.TrimSpace(text) == "" {
			text = "I'm not sure about that request yet — can you be more specific?"
		}
		return []OutboundMessage{e.reply(msg, text, "chat", nil)}
	default:
		text := decision.Message
		if strings.TrimSpace(text) == "" {
			text = "I'm not sure about that request yet — can you be more specific?"
		}
		return []OutboundMessage{e.reply(msg, text, "chat", nil)}
	}
}

// recoverFromInvalidFormat runs when the LLM planner's reply looked like it
// was trying to be JSON but couldn't be parsed. It first tries the
// engine's own heuristic override for a well-known intent (system-status
// requests); failing that it retries the planner once with a sterner
// instruction and honours whatever comes back, as long as it is no longer
// Unknown; otherwise the original format-invalid message is surfaced as
// plain chat.
func (e *Engine) recoverFromInvalidFormat(ctx context.Context, msg InboundMessage, roomCfg roomconfig.RoomConfig, history []llmplanner.ChatMessage, plannerInput string) []OutboundMessage {
	if matchesSystemStatus(msg.Text) {
		return e.runPlan(ctx, msg, heuristicSystemStatusPlan(msg.Text), "", roomCfg)
	}

	e.mu.Lock()
	backend := e.aiBackend
	e.mu.Unlock()
	if backend == nil {
		return []OutboundMessage{e.reply(msg, llmplanner.RetrySentinel, "unknown", nil)}
	}

	retryInput := "RETRY: Return valid JSON only (no prose). " + plannerInput
	decision, err := backend.PlanWithHistory(ctx, retryInput, e.registry.ListSpecs(), history)
	if err != nil || decision.Kind == llmplanner.DecisionUnknown {
		msgText := llmplanner.RetrySentinel
		if err == nil && decision.Message != "" {
			msgText = decision.Message
		}
		return []OutboundMessage{e.reply(msg, msgText, "unknown", nil)}
	}
	decision = llmplanner.ApplyConfidencePolicy(decision)
	return e.dispatchDecision(ctx, msg, decision, roomCfg, history, retryInput)
}

// pendingInputKey flattens a conversation.Key into the plain string
// pendinginput.Store keys by.
func pendingInputKey(key conversation.Key) string {
	return key.WorkspaceID + "\x00" + key.RoomID
}

// buildPlannerInput assembles the text handed to the LLM planner: a
// Context block (cwd, home, room, workspace), an optional Follow-up block
// describing an outstanding pending-input fill, and the user's message.
func (e *Engine) buildPlannerInput(msg InboundMessage, text, followUp string, roomCfg roomconfig.RoomConfig) string {
	e.mu.Lock()
	cwd := e.cwd
	e.mu.Unlock()
	home, _ := os.UserHomeDir()

	var b strings.Builder
	fmt.Fprintf(&b, "Context: cwd=%s home=%s room=%s workspace=%s", cwd, home, msg.Channel, msg.WorkspaceID)
	if roomCfg.Locale != "" {
		fmt.Fprintf(&b, " locale=%s", roomCfg.Locale)
	}
	if roomCfg.Timezone != "" {
		fmt.Fprintf(&b, " timezone=%s", roomCfg.Timezone)
	}
	b.WriteString("\n")
	if followUp != "" {
		b.WriteString(followUp)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "User: %s", text)
	return b.String()
}

// tryFillPendingInput attempts to resolve an outstanding PendingInput using
// the just-arrived message text. On success it clears the entry and
// executes the now-complete action; on failure it leaves the entry in
// place (the caller falls through to the planner cascade) and reports
// filled=false.
func (e *Engine) tryFillPendingInput(ctx context.Context, msg InboundMessage, key string, pending pendinginput.Entry, roomCfg roomconfig.RoomConfig) ([]OutboundMessage, bool) {
	e.mu.Lock()
	cwd := e.cwd
	e.mu.Unlock()

	params, filled, _ := pendinginput.Fill(pending, cwd, strings.TrimSpace(msg.Text))
	if !filled {
		return nil, false
	}

	e.pendingInputs.Clear(key)
	request := action.Request{Name: pending.Action, Params: params, RawInput: msg.Text}
	return e.handleActionRequest(ctx, msg, request, roomCfg), true
}

func (e *Engine) recordAndPersist(key conversation.Key, userInput string, replies []OutboundMessage) {
	texts := make([]string, len(replies))
	for i, r := range replies {
		texts[i] = r.Text
	}
	e.conversations.RecordExchange(key, userInput, texts)
	e.persistConversations()
}

func (e *Engine) persistConversations() {
	e.mu.Lock()
	path := e.conversationPersistPath
	e.mu.Unlock()
	if path == "" {
		return
	}
	if err := e.conversations.SaveToPath(path); err != nil {
		e.log.Warn("conversation history save failed", "path", path, "err", err)
	}
}

func (e *Engine) nextOutboundID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextMessageID
	e.nextMessageID++
	return fmt.Sprintf("out-%d", id)
}

func (e *Engine) reply(msg InboundMessage, text, kind string, data json.RawMessage) OutboundMessage {
	return OutboundMessage{
		ID:          e.nextOutboundID(),
		InReplyTo:   msg.ID,
		Text:        text,
		Recipient:   msg.Sender,
		Channel:     msg.Channel,
		WorkspaceID: msg.WorkspaceID,
		Kind:        kind,
		Data:        data,
	}
}

func (e *Engine) replyWithOutcome(msg InboundMessage, outcome action.Outcome) OutboundMessage {
	return OutboundMessage{
		ID:          e.nextOutboundID(),
		InReplyTo:   msg.ID,
		Text:        "ok: " + outcome.Summary,
		Recipient:   msg.Sender,
		Channel:     msg.Channel,
		WorkspaceID: msg.WorkspaceID,
		Kind:        "action_result",
		Data:        outcome.Data,
	}
}

func (e *Engine) buildContext(roomCfg roomconfig.RoomConfig) action.Context {
	e.mu.Lock()
	ctx := action.Context{Cwd: e.cwd, DryRun: e.dryRun, Policy: e.policy}
	e.mu.Unlock()
	if roomCfg.DryRunDefault != nil {
		ctx.DryRun = *roomCfg.DryRunDefault
	}
	return ctx
}

func (e *Engine) requiresApproval(spec action.Spec, roomCfg roomconfig.RoomConfig) bool {
	if spec.RequiresApproval {
		return true
	}
	if roomCfg.RiskPolicy != nil {
		if roomCfg.RiskPolicy.LowAutoExecute && spec.Risk == action.RiskLow {
			return false
		}
		for _, lvl := range roomCfg.RiskPolicy.ApprovalFor {
			if lvl == spec.Risk {
				return true
			}
		}
		return false
	}
	return e.policy.RequiresApproval(spec.Risk, spec.RequiresApproval)
}

func (e *Engine) handleActionRequest(ctx context.Context, msg InboundMessage, request action.Request, roomCfg roomconfig.RoomConfig) []OutboundMessage {
	return e.handleActionRequestForPlan(ctx, msg, request, roomCfg, "", nil)
}

// handleActionRequestForPlan resolves, preflights, validates, and either
// executes or pauses request for approval. stepApproval, when non-nil, is a
// plan step's own requires_approval override: true forces approval for this
// step alone regardless of spec/room policy (§4.7's heuristic probes rely on
// this), false never relaxes an approval the spec/policy otherwise demands.
func (e *Engine) handleActionRequestForPlan(ctx context.Context, msg InboundMessage, request action.Request, roomCfg roomconfig.RoomConfig, planID string, stepApproval *bool) []OutboundMessage {
	handler, err := e.registry.MustGet(request.Name)
	if err != nil {
		return []OutboundMessage{e.reply(msg, fmt.Sprintf("unknown action: %s", request.Name), "error", nil)}
	}
	spec := handler.Spec()

	if !roomCfg.AllowsAction(spec.Name) {
		return []OutboundMessage{e.reply(msg, fmt.Sprintf("action not allowed: %s", spec.Name), "error", nil)}
	}

	actx := e.buildContext(roomCfg)
	report := e.preflight.Check(spec, request.Params, actx)
	if !report.Allowed {
		if e.preflight.Config.Strict {
			return []OutboundMessage{e.reply(msg, fmt.Sprintf("preflight %s", report.Summary()), "error", nil)}
		}
		e.log.Warn("preflight blocked in non-strict mode, proceeding", "action", spec.Name, "reasons", report.Reasons)
	}

	if err := handler.Validate(ctx, actx, request.Params); err != nil {
		return []OutboundMessage{e.reply(msg, fmt.Sprintf("validation failed: %s", err), "error", nil)}
	}

	needsApproval := e.requiresApproval(spec, roomCfg) || report.RequiresApproval
	if stepApproval != nil && *stepApproval {
		needsApproval = true
	}

	if needsApproval {
		approvalID := e.approvals.CreateForPlan(msg.Sender, request, spec, roomCfg, planID)
		text := formatApprovalPrompt(spec, request.Params, actx, report, approvalID, planID != "")
		data, _ := json.Marshal(map[string]string{"approval_id": approvalID})
		return []OutboundMessage{e.reply(msg, text, "approval_request", data)}
	}

	return e.executeAction(ctx, request, msg, roomCfg)
}

func (e *Engine) executeAction(ctx context.Context, request action.Request, msg InboundMessage, roomCfg roomconfig.RoomConfig) []OutboundMessage {
	handler, err := e.registry.MustGet(request.Name)
	if err != nil {
		return []OutboundMessage{e.reply(msg, fmt.Sprintf("unknown action: %s", request.Name), "error", nil)}
	}

	actx := e.buildContext(roomCfg)
	outcome, err := handler.Execute(ctx, actx, request.Params)
	if err != nil {
		return []OutboundMessage{e.reply(msg, fmt.Sprintf("error: %s", err), "error", nil)}
	}
	return []OutboundMessage{e.replyWithOutcome(msg, outcome)}
}

// ExpireStalePendingApprovals removes pending approvals whose TTL has
// lapsed. Call on a timer to bound how long an abandoned approval lingers.
func (e *Engine) ExpireStalePendingApprovals() []string {
	return e.approvals.ExpireStale()
}

// Now is not read by the engine or its stores; approval expiry calls
// time.Now directly.
var Now = time.Now
