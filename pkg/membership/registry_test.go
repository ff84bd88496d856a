// Copyright 2025 Takhin Data, Inc.

package membership

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRegistryJoinGroupRefusedWhenNotLocal(t *testing.T) {
	mgr := newTestManager(0)
	r := NewRegistry(mgr, zap.NewNop())

	_, _, _, err := r.JoinGroup("g1", "m1", "c1", "h1", "consumer", nil, 10000, 30000)
	assert.Error(t, err)
}

func TestRegistryJoinSyncHeartbeatLifecycle(t *testing.T) {
	mgr := newTestManager(1)
	r := NewRegistry(mgr, zap.NewNop())

	_, isLeader, needsRebalance, err := r.JoinGroup("g1", "m1", "c1", "h1", "consumer", nil, 10000, 30000)
	require.NoError(t, err)
	assert.True(t, isLeader)
	assert.True(t, needsRebalance)

	assignment, err := r.SyncGroup("g1", "m1", 0, map[string][]byte{"m1": []byte("assign")})
	require.NoError(t, err)
	assert.Equal(t, []byte("assign"), assignment)

	err = r.Heartbeat("g1", "m1", 0)
	assert.NoError(t, err)

	_, ok := mgr.GetGroup("g1")
	assert.True(t, ok, "a completed rebalance must persist the group through the manager")
}

func TestRegistryLeaveGroupTornDownWhenEmpty(t *testing.T) {
	mgr := newTestManager(1)
	r := NewRegistry(mgr, zap.NewNop())

	_, _, _, err := r.JoinGroup("g1", "m1", "c1", "h1", "consumer", nil, 10000, 30000)
	require.NoError(t, err)

	err = r.LeaveGroup("g1", "m1")
	require.NoError(t, err)

	_, ok := r.GetSession("g1")
	assert.False(t, ok)
	_, ok = mgr.GetGroup("g1")
	assert.False(t, ok, "an emptied group must be removed from the manager too")
}

func TestRegistryCheckRebalancesPicksUpPendingMembers(t *testing.T) {
	mgr := newTestManager(1)
	r := NewRegistry(mgr, zap.NewNop())

	_, _, _, err := r.JoinGroup("g1", "m1", "c1", "h1", "consumer", nil, 10000, 30000)
	require.NoError(t, err)

	s, ok := r.GetSession("g1")
	require.True(t, ok)
	generationBefore := s.GroupMetadata().Generation()

	r.CheckRebalances()

	assert.Greater(t, s.GroupMetadata().Generation(), generationBefore)
}

func TestRegistryStartSchedulesRebalanceCheck(t *testing.T) {
	mgr := newTestManager(1)
	r := NewRegistry(mgr, zap.NewNop())
	_, _, _, err := r.JoinGroup("g1", "m1", "c1", "h1", "consumer", nil, 10000, 30000)
	require.NoError(t, err)

	cancel := r.Start(memScheduler{}, 10*time.Millisecond)
	defer cancel()

	s, _ := r.GetSession("g1")
	assert.Greater(t, s.GroupMetadata().Generation(), int32(0), "memScheduler.Run/Schedule run fn inline for these tests")
}
