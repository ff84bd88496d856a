package raft

import (
	"github.com/brokercore/groupcoord/pkg/coordinator"
)

// WatchCoordinatorLeadership registers a callback with node that promotes or
// demotes every offsets-topic partition this broker is configured to own
// whenever this node's Raft leadership flips. It is the small adapter
// SPEC_FULL's domain stack calls for: the group coordinator has no leader
// election of its own, so it rides the broker's existing Raft group.
func WatchCoordinatorLeadership(node *Node, mgr *coordinator.Manager, numPartitions int32) {
	node.OnLeadershipChange(func(isLeader bool) {
		for partition := int32(0); partition < numPartitions; partition++ {
			if isLeader {
				mgr.PromotePartition(partition)
			} else {
				mgr.DemotePartition(partition)
			}
		}
	})
}
