// Copyright 2025 Takhin Data, Inc.

package coordinator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func partitionFor1(string) int32 { return 0 }

func TestGetOffsetsNotLocal(t *testing.T) {
	registry := newOwnershipRegistry()
	cache := newMetadataCache(partitionFor1, registry, zap.NewNop())

	tps := []TopicPartition{{Topic: "orders", Partition: 0}, {Topic: "orders", Partition: 1}}
	values, codes := cache.getOffsets("g1", tps)

	assert.Empty(t, values)
	assert.Equal(t, NotCoordinatorForGroup, codes[tps[0]])
	assert.Equal(t, NotCoordinatorForGroup, codes[tps[1]])
}

func TestGetOffsetsEmptyTopicPartitionsReturnsEverything(t *testing.T) {
	registry := newOwnershipRegistry()
	registry.beginLoading(0)
	registry.finishLoading(0, true)
	cache := newMetadataCache(partitionFor1, registry, zap.NewNop())

	cache.putOffset(OffsetKey{Group: "g1", Topic: "orders", Partition: 0}, OffsetValue{Offset: 10})
	cache.putOffset(OffsetKey{Group: "g1", Topic: "orders", Partition: 1}, OffsetValue{Offset: 20})
	cache.putOffset(OffsetKey{Group: "other", Topic: "orders", Partition: 0}, OffsetValue{Offset: 99})

	values, codes := cache.getOffsets("g1", nil)
	require.Len(t, values, 2)
	assert.Equal(t, NoError, codes[TopicPartition{Topic: "orders", Partition: 0}])
	assert.Equal(t, int64(10), values[TopicPartition{Topic: "orders", Partition: 0}].Offset)
}

func TestGetOffsetsSpecificPartitionsNoOffset(t *testing.T) {
	registry := newOwnershipRegistry()
	registry.beginLoading(0)
	registry.finishLoading(0, true)
	cache := newMetadataCache(partitionFor1, registry, zap.NewNop())

	cache.putOffset(OffsetKey{Group: "g1", Topic: "orders", Partition: 0}, OffsetValue{Offset: 10})

	tps := []TopicPartition{{Topic: "orders", Partition: 0}, {Topic: "orders", Partition: 1}}
	values, codes := cache.getOffsets("g1", tps)

	assert.Equal(t, NoError, codes[tps[0]])
	assert.Equal(t, NoOffset, codes[tps[1]])
	assert.Len(t, values, 1)
}

func TestRemoveGroupTransitionsToDeadAndAppendsTombstone(t *testing.T) {
	registry := newOwnershipRegistry()
	cache := newMetadataCache(partitionFor1, registry, zap.NewNop())

	g := NewGroupMetadata("g1", "consumer")
	cache.putGroup(g)

	var tombstoned string
	cache.removeGroup("g1", func(groupID string) error {
		tombstoned = groupID
		return nil
	})

	assert.Equal(t, "g1", tombstoned)
	assert.Equal(t, GroupStateDead, g.State())
	_, ok := cache.getGroup("g1")
	assert.False(t, ok)
}

func TestRemoveGroupSwallowsTombstoneFailure(t *testing.T) {
	registry := newOwnershipRegistry()
	cache := newMetadataCache(partitionFor1, registry, zap.NewNop())
	cache.putGroup(NewGroupMetadata("g1", "consumer"))

	assert.NotPanics(t, func() {
		cache.removeGroup("g1", func(string) error { return assert.AnError })
	})
	_, ok := cache.getGroup("g1")
	assert.False(t, ok, "the group must still be evicted even if the tombstone append fails")
}

func TestRemoveGroupsForPartitionScopedToDemotedPartition(t *testing.T) {
	registry := newOwnershipRegistry()
	partitionForGroup := func(g string) int32 {
		if g == "owned-by-0" {
			return 0
		}
		return 1
	}
	cache := newMetadataCache(partitionForGroup, registry, zap.NewNop())
	cache.putGroup(NewGroupMetadata("owned-by-0", "consumer"))
	cache.putGroup(NewGroupMetadata("owned-by-1", "consumer"))

	cache.removeGroupsForPartition(0)

	_, stillThere := cache.getGroup("owned-by-1")
	assert.True(t, stillThere, "demotion must not evict groups belonging to a different partition")
	_, gone := cache.getGroup("owned-by-0")
	assert.False(t, gone)
}

func TestAddGroupIsIdempotent(t *testing.T) {
	registry := newOwnershipRegistry()
	cache := newMetadataCache(partitionFor1, registry, zap.NewNop())

	first := NewGroupMetadata("g1", "consumer")
	second := NewGroupMetadata("g1", "connect")

	got1 := cache.addGroup(first)
	got2 := cache.addGroup(second)

	assert.Same(t, got1, got2)
	assert.Same(t, first, got2)
}

func TestGetOffsetsNeverObservesPartiallyEvictedCache(t *testing.T) {
	registry := newOwnershipRegistry()
	registry.beginLoading(0)
	registry.finishLoading(0, true)
	cache := newMetadataCache(partitionFor1, registry, zap.NewNop())

	tp := TopicPartition{Topic: "orders", Partition: 0}
	cache.putOffset(OffsetKey{Group: "g1", Topic: tp.Topic, Partition: tp.Partition}, OffsetValue{Offset: 10})

	// getOffsets runs on another goroutine and races demote for the
	// registry lock. Whichever takes it first, the two never interleave:
	// getOffsets sees either the full pre-demotion value or a clean
	// NotCoordinatorForGroup, never a partial clear.
	getOffsetsStarted := make(chan struct{})
	getOffsetsDone := make(chan struct {
		values map[TopicPartition]OffsetValue
		codes  map[TopicPartition]ErrorCode
	}, 1)
	go func() {
		close(getOffsetsStarted)
		values, codes := cache.getOffsets("g1", []TopicPartition{tp})
		getOffsetsDone <- struct {
			values map[TopicPartition]OffsetValue
			codes  map[TopicPartition]ErrorCode
		}{values, codes}
	}()

	<-getOffsetsStarted
	registry.demote(0, func(p int32) {
		cache.removeOffsetsForPartition(p)
	})

	result := <-getOffsetsDone
	if code := result.codes[tp]; code == NoError {
		assert.Equal(t, int64(10), result.values[tp].Offset,
			"a successful lookup must return the full pre-demotion value, never a partially evicted one")
	} else {
		assert.Equal(t, NotCoordinatorForGroup, code)
	}
}
