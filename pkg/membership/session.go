// Copyright 2025 Takhin Data, Inc.

package membership

import (
	"fmt"
	"sync"
	"time"

	"github.com/brokercore/groupcoord/pkg/coordinator"
)

// Session is the live join/sync/heartbeat state for one consumer group.
// It wraps the group's persisted coordinator.GroupMetadata record; every
// mutation that changes what a future loader would need to see on replay
// (generation, selected protocol, leader, final assignments) flows
// through that record, while pending joiners and heartbeat deadlines stay
// local to this process.
type Session struct {
	group *coordinator.GroupMetadata

	mu             sync.RWMutex
	members        map[string]*member
	pendingMembers map[string]*member
	lastRebalance  time.Time
}

func newSession(group *coordinator.GroupMetadata) *Session {
	return &Session{
		group:          group,
		members:        make(map[string]*member),
		pendingMembers: make(map[string]*member),
	}
}

// GroupMetadata returns the persisted record backing this session.
func (s *Session) GroupMetadata() *coordinator.GroupMetadata {
	return s.group
}

// Join adds memberID to the group's pending set, to be placed in the next
// rebalance. Returns whether this member became the group's leader (the
// first member to join an otherwise-empty group) and whether a rebalance
// is needed right away.
func (s *Session) Join(memberID, clientID, clientHost string, protocols []Protocol, sessionTimeoutMs, rebalanceTimeoutMs int32) (isLeader, needsRebalance bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pendingMembers[memberID] = &member{
		id:               memberID,
		clientID:         clientID,
		clientHost:       clientHost,
		sessionTimeout:   time.Duration(sessionTimeoutMs) * time.Millisecond,
		rebalanceTimeout: time.Duration(rebalanceTimeoutMs) * time.Millisecond,
		protocols:        protocols,
		state:            MemberStateJoining,
		lastHeartbeat:    time.Now(),
	}

	if s.group.LeaderID() == "" {
		s.group.SetLeaderID(memberID)
		isLeader = true
	} else {
		isLeader = s.group.LeaderID() == memberID
	}

	return isLeader, true, nil
}

// Sync records the leader-provided assignment for every member (only
// honored when called by the current leader) and returns the assignment
// for memberID. Once the leader's assignments are in, the rebalance is
// complete and the group's new generation is persisted.
func (s *Session) Sync(memberID string, generation int32, assignments map[string][]byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if generation != s.group.Generation() {
		return nil, fmt.Errorf("illegal generation: expected %d, got %d", s.group.Generation(), generation)
	}

	m, ok := s.findMember(memberID)
	if !ok {
		return nil, fmt.Errorf("member not found: %s", memberID)
	}

	if memberID == s.group.LeaderID() && assignments != nil {
		for mid, assignment := range assignments {
			if target, ok := s.findMember(mid); ok {
				target.assignment = assignment
			}
		}
		s.completeRebalanceLocked()
	}

	return m.assignment, nil
}

// Heartbeat refreshes memberID's liveness deadline.
func (s *Session) Heartbeat(memberID string, generation int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if generation != s.group.Generation() {
		return fmt.Errorf("illegal generation: expected %d, got %d", s.group.Generation(), generation)
	}

	m, ok := s.findMember(memberID)
	if !ok {
		return fmt.Errorf("member not found: %s", memberID)
	}
	m.lastHeartbeat = time.Now()
	return nil
}

// Leave removes memberID from the group. Returns whether the group is now
// empty (the caller is expected to tear down the session in that case).
func (s *Session) Leave(memberID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.members, memberID)
	delete(s.pendingMembers, memberID)
	s.group.RemoveMember(memberID)

	if len(s.members) == 0 && len(s.pendingMembers) == 0 {
		s.group.SetLeaderID("")
		s.group.SetProtocol("")
		s.group.TransitionTo(coordinator.GroupStateEmpty)
		return true
	}
	return false
}

// NeedsRebalance reports whether any stable member has missed its session
// timeout, or any member is waiting in the pending set.
func (s *Session) NeedsRebalance() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	for _, m := range s.members {
		if now.Sub(m.lastHeartbeat) > m.sessionTimeout {
			return true
		}
	}
	return len(s.pendingMembers) > 0
}

// PrepareRebalance bumps the generation, moves every stable member back
// to pending, and transitions the group to PreparingRebalance.
func (s *Session) PrepareRebalance() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prepareRebalanceLocked()
}

func (s *Session) prepareRebalanceLocked() {
	s.group.TransitionTo(coordinator.GroupStatePreparingRebalance)
	s.group.SetGeneration(s.group.Generation() + 1)
	s.lastRebalance = time.Now()

	for id, m := range s.members {
		m.state = MemberStateJoining
		s.pendingMembers[id] = m
	}
	s.members = make(map[string]*member)
}

// SelectProtocol picks the one protocol name every pending member
// supports. Used by the leader before calling Sync.
func (s *Session) SelectProtocol() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.pendingMembers) == 0 {
		return "", fmt.Errorf("no members in group")
	}

	votes := make(map[string]int)
	for _, m := range s.pendingMembers {
		for _, p := range m.protocols {
			votes[p.Name]++
		}
	}

	total := len(s.pendingMembers)
	for name, count := range votes {
		if count == total {
			return name, nil
		}
	}
	return "", fmt.Errorf("no protocol supported by all members")
}

// completeRebalanceLocked moves every pending member to stable, persists
// the final assignment set into the coordinator's GroupMetadata record,
// and transitions the group to Stable. Callers must hold s.mu.
func (s *Session) completeRebalanceLocked() {
	for id, m := range s.pendingMembers {
		m.state = MemberStateStable
		s.members[id] = m
		s.group.AddMember(id, coordinator.MemberMetadata{
			MemberID:         id,
			ClientID:         m.clientID,
			ClientHost:       m.clientHost,
			SessionTimeoutMs: int32(m.sessionTimeout / time.Millisecond),
			Assignment:       m.assignment,
		})
	}
	s.pendingMembers = make(map[string]*member)
	s.group.TransitionTo(coordinator.GroupStateStable)
}

func (s *Session) findMember(memberID string) (*member, bool) {
	if m, ok := s.members[memberID]; ok {
		return m, true
	}
	m, ok := s.pendingMembers[memberID]
	return m, ok
}

// Size returns the number of members, pending or stable.
func (s *Session) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.members) + len(s.pendingMembers)
}

// IsEmpty reports whether the group has no members at all.
func (s *Session) IsEmpty() bool {
	return s.Size() == 0
}
