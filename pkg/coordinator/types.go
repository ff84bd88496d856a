// Copyright 2025 Takhin Data, Inc.

// Package coordinator implements the broker's group-and-offset metadata
// manager: the persistence, caching and partition-ownership core behind
// the internal offsets topic. It owns no network protocol and knows
// nothing about the join/sync/heartbeat rebalance protocol; those live in
// pkg/membership and talk to this package only through GroupMetadata's
// exported mutators.
package coordinator

import (
	"sync"
	"time"
)

// DefaultTimestamp is the sentinel meaning "derive the expiration from the
// configured retention window" rather than "use this timestamp verbatim".
// Bit-exact with the legacy v0 on-disk format, which never recorded an
// explicit expiration at all.
const DefaultTimestamp int64 = -1

// OffsetKey identifies one committed offset: a single (group, topic,
// partition) coordinate.
type OffsetKey struct {
	Group     string
	Topic     string
	Partition int32
}

// OffsetValue is the value recorded for a committed offset.
type OffsetValue struct {
	Offset          int64
	Metadata        string
	CommitTimestamp int64
	// ExpireTimestamp is a concrete wall-clock millisecond value once
	// the load pipeline has applied the record. DecodeOffsetValue itself
	// returns DefaultTimestamp for v0 payloads (and for v1 payloads
	// written by an older member that chose to defer to retention); the
	// loader then derives it from the configured retention window.
	ExpireTimestamp int64
}

// GroupKey identifies one consumer group's metadata record.
type GroupKey struct {
	Group string
}

// MemberMetadata is a single member of a consumer group, as recorded in a
// GroupMetadata snapshot. Owned and mutated by the membership subsystem;
// the coordinator core only ever reads or serializes it.
type MemberMetadata struct {
	MemberID         string
	ClientID         string
	ClientHost       string
	SessionTimeoutMs int32
	Subscription     []byte
	Assignment       []byte
}

// GroupState is the lifecycle state of a consumer group.
type GroupState string

const (
	GroupStateEmpty               GroupState = "Empty"
	GroupStatePreparingRebalance  GroupState = "PreparingRebalance"
	GroupStateAwaitingSync        GroupState = "AwaitingSync"
	GroupStateStable              GroupState = "Stable"
	GroupStateDead                GroupState = "Dead"
)

// GroupMetadata is the full persisted/cached record for one consumer
// group. It is opaque to the coordinator core except for the three
// methods below: TransitionTo, AddMember and AllMemberMetadata. Everything
// else about rebalance semantics belongs to the membership subsystem.
type GroupMetadata struct {
	mu sync.RWMutex

	groupID      string
	protocolType string
	generationID int32
	protocol     string
	leaderID     string
	state        GroupState
	members      map[string]MemberMetadata
}

// NewGroupMetadata creates an empty group record in the Empty state.
func NewGroupMetadata(groupID, protocolType string) *GroupMetadata {
	return &GroupMetadata{
		groupID:      groupID,
		protocolType: protocolType,
		state:        GroupStateEmpty,
		members:      make(map[string]MemberMetadata),
	}
}

// GroupID returns the group's identifier.
func (g *GroupMetadata) GroupID() string {
	return g.groupID
}

// ProtocolType returns the group's protocol type (e.g. "consumer").
func (g *GroupMetadata) ProtocolType() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.protocolType
}

// Generation returns the current generation id.
func (g *GroupMetadata) Generation() int32 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.generationID
}

// SetGeneration sets the generation id. Generation ids are monotonic by
// convention of the membership subsystem; the core never decreases one.
func (g *GroupMetadata) SetGeneration(generation int32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.generationID = generation
}

// Protocol returns the selected protocol name.
func (g *GroupMetadata) Protocol() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.protocol
}

// SetProtocol sets the selected protocol name.
func (g *GroupMetadata) SetProtocol(protocol string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.protocol = protocol
}

// LeaderID returns the current leader member id.
func (g *GroupMetadata) LeaderID() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.leaderID
}

// SetLeaderID sets the current leader member id.
func (g *GroupMetadata) SetLeaderID(memberID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.leaderID = memberID
}

// State returns the group's current lifecycle state.
func (g *GroupMetadata) State() GroupState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// TransitionTo moves the group to a new lifecycle state. The core calls
// this exactly twice: when a tombstone for the group is loaded (state
// becomes Dead) and when removeGroup appends the group's own tombstone
// (state becomes Dead before eviction from the cache).
func (g *GroupMetadata) TransitionTo(state GroupState) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = state
}

// AddMember inserts or replaces a member record.
func (g *GroupMetadata) AddMember(memberID string, member MemberMetadata) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.members[memberID] = member
}

// RemoveMember deletes a member record, if present.
func (g *GroupMetadata) RemoveMember(memberID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.members, memberID)
}

// AllMemberMetadata returns a snapshot of every member currently recorded.
func (g *GroupMetadata) AllMemberMetadata() []MemberMetadata {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]MemberMetadata, 0, len(g.members))
	for _, m := range g.members {
		out = append(out, m)
	}
	return out
}

// snapshot captures every field needed to encode this group, under a
// single read lock, so the codec never observes a torn write.
func (g *GroupMetadata) snapshot() groupSnapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	members := make([]MemberMetadata, 0, len(g.members))
	for _, m := range g.members {
		members = append(members, m)
	}
	return groupSnapshot{
		protocolType: g.protocolType,
		generationID: g.generationID,
		protocol:     g.protocol,
		leaderID:     g.leaderID,
		members:      members,
	}
}

type groupSnapshot struct {
	protocolType string
	generationID int32
	protocol     string
	leaderID     string
	members      []MemberMetadata
}

// TopicPartition names one partition of one topic.
type TopicPartition struct {
	Topic     string
	Partition int32
}

// now is overridable in tests; production code always calls time.Now().
var now = func() int64 { return time.Now().UnixMilli() }
