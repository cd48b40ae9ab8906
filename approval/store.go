// Package approval implements the pending-action gate: an action that needs
// a human's yes/no before it runs is parked here under a short id, and
// resolved later by a chat reply or an out-of-band ApprovalDecisionPayload.
package approval

import (
	"fmt"
	"sync"
	"time"

	"github.com/bdobrica/robit/action"
	"github.com/bdobrica/robit/roomconfig"
)

// Status is the lifecycle state of a Pending entry.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusDenied    Status = "denied"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// DefaultTTL bounds how long a pending approval waits before it is treated
// as stale and auto-cancelled.
const DefaultTTL = 24 * time.Hour

// Pending is one action parked awaiting a decision.
type Pending struct {
	ID string
	// PlanID is non-empty when this entry is one step of a multi-step plan
	// awaiting approval before the plan can continue; empty for a standalone
	// action approval.
	PlanID    string
	Request   action.Request
	Spec      action.Spec
	Sender    string
	Config    roomconfig.RoomConfig
	Status    Status
	CreatedAt time.Time
	ExpiresAt time.Time
}

// IsExpired reports whether this entry's TTL has elapsed as of now.
func (p Pending) IsExpired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// Store holds every currently-pending approval, plus a per-sender pointer to
// their most recent one so a bare "approve"/"deny" reply can resolve it
// without repeating the id.
type Store struct {
	mu             sync.Mutex
	ttl            time.Duration
	nextID         uint64
	pending        map[string]*Pending
	latestBySender map[string]string
}

// NewStore returns an empty Store using DefaultTTL.
func NewStore() *Store {
	return NewStoreWithTTL(DefaultTTL)
}

// NewStoreWithTTL returns an empty Store using the given TTL for every entry
// it creates.
func NewStoreWithTTL(ttl time.Duration) *Store {
	return &Store{
		ttl:            ttl,
		nextID:         1,
		pending:        make(map[string]*Pending),
		latestBySender: make(map[string]string),
	}
}

// Create parks request awaiting approval and returns its id, formatted
// "appr-<n>" to match the engine's sequential approval numbering.
func (s *Store) Create(sender string, request action.Request, spec action.Spec, cfg roomconfig.RoomConfig) string {
	return s.CreateForPlan(sender, request, spec, cfg, "")
}

// CreateForPlan is Create, additionally tagging the entry with planID so a
// multi-step plan can be resumed once this step is approved.
func (s *Store) CreateForPlan(sender string, request action.Request, spec action.Spec, cfg roomconfig.RoomConfig, planID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	id := fmt.Sprintf("appr-%d", s.nextID)
	s.nextID++
	s.pending[id] = &Pending{
		ID:        id,
		PlanID:    planID,
		Request:   request,
		Spec:      spec,
		Sender:    sender,
		Config:    cfg,
		Status:    StatusPending,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	s.latestBySender[sender] = id
	return id
}

// Take removes and returns the pending entry for id, if present and not
// expired. An expired entry is removed and reported as not found.
func (s *Store) Take(id string) (Pending, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.pending[id]
	if !ok {
		return Pending{}, false
	}
	delete(s.pending, id)
	if s.latestBySender[entry.Sender] == id {
		delete(s.latestBySender, entry.Sender)
	}
	if entry.IsExpired(time.Now()) {
		entry.Status = StatusExpired
		return Pending{}, false
	}
	return *entry, true
}

// LatestForSender returns the id of sender's most recently created approval
// while that entry is still stored. Once it is taken or expired away, no id
// is reported, even if older entries of the same sender remain.
func (s *Store) LatestForSender(sender string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.latestBySender[sender]
	return id, ok
}

// ExpireStale removes every pending entry whose TTL has elapsed, returning
// their ids. Callers typically invoke this on a timer or lazily before
// reading LatestForSender.
func (s *Store) ExpireStale() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var expired []string
	for id, entry := range s.pending {
		if entry.IsExpired(now) {
			expired = append(expired, id)
			delete(s.pending, id)
			if s.latestBySender[entry.Sender] == id {
				delete(s.latestBySender, entry.Sender)
			}
		}
	}
	return expired
}
