// Copyright 2025 Takhin Data, Inc.

// Package membership implements the consumer-group join/sync/heartbeat
// protocol on top of pkg/coordinator's persisted group metadata. It owns
// the live, in-memory negotiation (pending joiners, protocol voting,
// heartbeat liveness) that pkg/coordinator deliberately knows nothing
// about; once a rebalance completes, the resulting assignment is handed
// to coordinator.GroupMetadata and persisted the same way any other group
// snapshot is.
package membership

import "time"

// MemberState is where one member sits in the join/sync protocol.
type MemberState string

const (
	MemberStateJoining MemberState = "joining"
	MemberStateSync     MemberState = "sync"
	MemberStateStable   MemberState = "stable"
	MemberStateLeaving  MemberState = "leaving"
)

// Protocol is one partition-assignment strategy a member is willing to
// run, along with whatever opaque metadata it wants the group leader to
// see when picking an assignment (subscribed topics, user data, and so
// on).
type Protocol struct {
	Name     string
	Metadata []byte
}

// member is one consumer-group member as tracked by the live protocol
// negotiation. It is not persisted directly; CompleteRebalance copies the
// fields pkg/coordinator cares about (assignment, client info) into a
// coordinator.MemberMetadata record.
type member struct {
	id               string
	clientID         string
	clientHost       string
	sessionTimeout   time.Duration
	rebalanceTimeout time.Duration
	protocols        []Protocol
	assignment       []byte
	state            MemberState
	lastHeartbeat    time.Time
}
