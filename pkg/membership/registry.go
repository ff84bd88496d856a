// Copyright 2025 Takhin Data, Inc.

package membership

import (
	"fmt"
	"sync"
	"time"

	"github.com/brokercore/groupcoord/pkg/coordinator"
	"go.uber.org/zap"
)

// Registry manages every consumer group's live join/sync/heartbeat
// session, backed by a coordinator.Manager for persistence and
// partition-ownership checks. It is the membership-protocol counterpart
// to coordinator.Manager: Manager never imports this package, but every
// method here reaches into Manager to read or persist group state.
type Registry struct {
	mgr    *coordinator.Manager
	logger *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry builds a Registry over mgr.
func NewRegistry(mgr *coordinator.Manager, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		mgr:      mgr,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// getOrCreateSession returns groupID's live session, creating both the
// session and its backing GroupMetadata record if neither exists yet.
func (r *Registry) getOrCreateSession(groupID, protocolType string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[groupID]; ok {
		return s
	}

	group, ok := r.mgr.GetGroup(groupID)
	if !ok {
		group = r.mgr.AddGroup(coordinator.NewGroupMetadata(groupID, protocolType))
	}

	s := newSession(group)
	r.sessions[groupID] = s
	r.logger.Info("created new group session", zap.String("group", groupID))
	return s
}

// GetSession returns groupID's live session, if one exists.
func (r *Registry) GetSession(groupID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[groupID]
	return s, ok
}

// ListGroups returns every group id with a live session.
func (r *Registry) ListGroups() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		out = append(out, id)
	}
	return out
}

// JoinGroup admits memberID into groupID, creating the group if it does
// not exist yet. needsRebalance tells the caller whether to immediately
// trigger PrepareRebalance (the classic "first joiner of an otherwise
// idle group" and "pending member arrived" cases both want one).
func (r *Registry) JoinGroup(groupID, memberID, clientID, clientHost, protocolType string, protocols []Protocol, sessionTimeoutMs, rebalanceTimeoutMs int32) (session *Session, isLeader, needsRebalance bool, err error) {
	if !r.mgr.IsGroupLocal(groupID) {
		return nil, false, false, fmt.Errorf("not coordinator for group: %s", groupID)
	}

	s := r.getOrCreateSession(groupID, protocolType)
	isLeader, needsRebalance, err = s.Join(memberID, clientID, clientHost, protocols, sessionTimeoutMs, rebalanceTimeoutMs)
	if err != nil {
		return nil, false, false, err
	}

	r.logger.Info("member joined group",
		zap.String("group", groupID), zap.String("member", memberID), zap.Bool("leader", isLeader))
	return s, isLeader, needsRebalance, nil
}

// SyncGroup completes a member's rebalance handshake and, if memberID is
// the group's leader, persists the resulting assignment set.
func (r *Registry) SyncGroup(groupID, memberID string, generation int32, assignments map[string][]byte) ([]byte, error) {
	s, ok := r.GetSession(groupID)
	if !ok {
		return nil, fmt.Errorf("group not found: %s", groupID)
	}

	assignment, err := s.Sync(memberID, generation, assignments)
	if err != nil {
		return nil, err
	}

	if memberID == s.GroupMetadata().LeaderID() {
		if err := r.mgr.StoreGroup(s.GroupMetadata(), nil); err != nil {
			r.logger.Error("failed to persist group after rebalance",
				zap.String("group", groupID), zap.Error(err))
		}
	}

	return assignment, nil
}

// Heartbeat refreshes memberID's liveness deadline within groupID.
func (r *Registry) Heartbeat(groupID, memberID string, generation int32) error {
	s, ok := r.GetSession(groupID)
	if !ok {
		return fmt.Errorf("group not found: %s", groupID)
	}
	return s.Heartbeat(memberID, generation)
}

// LeaveGroup removes memberID from groupID. A group left empty is
// persisted as Dead and its session torn down, matching the behavior of
// coordinator.Manager.RemoveGroup for any other path to an empty group.
func (r *Registry) LeaveGroup(groupID, memberID string) error {
	s, ok := r.GetSession(groupID)
	if !ok {
		return fmt.Errorf("group not found: %s", groupID)
	}

	empty := s.Leave(memberID)
	r.logger.Info("member left group", zap.String("group", groupID), zap.String("member", memberID))

	if empty {
		r.mu.Lock()
		delete(r.sessions, groupID)
		r.mu.Unlock()
		r.mgr.RemoveGroup(groupID)
	}
	return nil
}

// CheckRebalances scans every live session and prepares a rebalance for
// any group that needs one (a missed heartbeat, or a member still
// pending). Intended to run on a periodic schedule, the same way
// coordinator's expiration sweep does.
func (r *Registry) CheckRebalances() {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for groupID, s := range r.sessions {
		if s.NeedsRebalance() {
			r.logger.Info("group needs rebalance", zap.String("group", groupID))
			s.PrepareRebalance()
		}
	}
}

// Start begins the periodic rebalance-liveness check on sched, the same
// ticker-driven pattern coordinator.Manager.Start uses for its expiration
// sweep. Returns a cancel func that stops future checks.
func (r *Registry) Start(sched coordinator.Scheduler, checkInterval time.Duration) (cancel func()) {
	return sched.Schedule("group-rebalance-check", checkInterval, r.CheckRebalances)
}
