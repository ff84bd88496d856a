// Copyright 2025 Takhin Data, Inc.

package coordinator

import (
	"sync"

	"go.uber.org/zap"
)

// metadataCache holds every committed offset and every consumer group
// this broker currently has loaded. It never serves an offset for a
// partition this broker does not currently own — that's what makes
// getOffsets safe to call without any other synchronization from the
// caller's side.
type metadataCache struct {
	partitionFor func(group string) int32
	registry     *ownershipRegistry
	logger       *zap.Logger

	offsetsMu sync.RWMutex
	offsets   map[OffsetKey]OffsetValue

	groupsMu sync.RWMutex
	groups   map[string]*GroupMetadata
}

func newMetadataCache(partitionFor func(string) int32, registry *ownershipRegistry, logger *zap.Logger) *metadataCache {
	return &metadataCache{
		partitionFor: partitionFor,
		registry:     registry,
		logger:       logger,
		offsets:      make(map[OffsetKey]OffsetValue),
		groups:       make(map[string]*GroupMetadata),
	}
}

func (c *metadataCache) putOffset(key OffsetKey, value OffsetValue) {
	c.offsetsMu.Lock()
	defer c.offsetsMu.Unlock()
	c.offsets[key] = value
}

func (c *metadataCache) removeOffset(key OffsetKey) {
	c.offsetsMu.Lock()
	defer c.offsetsMu.Unlock()
	delete(c.offsets, key)
}

func (c *metadataCache) getOffset(key OffsetKey) (OffsetValue, bool) {
	c.offsetsMu.RLock()
	defer c.offsetsMu.RUnlock()
	v, ok := c.offsets[key]
	return v, ok
}

// offsetsValues returns a snapshot of every cached offset, filtered by
// pred (pass a predicate that always returns true for no filtering).
func (c *metadataCache) offsetsValues(pred func(OffsetKey, OffsetValue) bool) map[OffsetKey]OffsetValue {
	c.offsetsMu.RLock()
	defer c.offsetsMu.RUnlock()
	out := make(map[OffsetKey]OffsetValue)
	for k, v := range c.offsets {
		if pred == nil || pred(k, v) {
			out[k] = v
		}
	}
	return out
}

// getGroup returns the cached group, if any.
func (c *metadataCache) getGroup(groupID string) (*GroupMetadata, bool) {
	c.groupsMu.RLock()
	defer c.groupsMu.RUnlock()
	g, ok := c.groups[groupID]
	return g, ok
}

// addGroup inserts a new group record only if one isn't already cached,
// returning whichever record ends up in the cache (the new one, or the
// pre-existing one a racing caller beat us to).
func (c *metadataCache) addGroup(group *GroupMetadata) *GroupMetadata {
	c.groupsMu.Lock()
	defer c.groupsMu.Unlock()
	if existing, ok := c.groups[group.GroupID()]; ok {
		return existing
	}
	c.groups[group.GroupID()] = group
	return group
}

// putGroup replaces (or inserts) a group record unconditionally. Used by
// the load pipeline, where the log is authoritative and must win over
// whatever (if anything) is already cached.
func (c *metadataCache) putGroup(group *GroupMetadata) {
	c.groupsMu.Lock()
	defer c.groupsMu.Unlock()
	c.groups[group.GroupID()] = group
}

// removeGroup transitions group to Dead and evicts it from the cache.
// Legal only once the group has actually reached Dead through the normal
// membership lifecycle (empty, no pending rebalance) — callers are
// expected to have checked that before calling this.
func (c *metadataCache) removeGroup(groupID string, appendTombstone func(groupID string) error) {
	c.groupsMu.Lock()
	group, ok := c.groups[groupID]
	if !ok {
		c.groupsMu.Unlock()
		return
	}
	group.TransitionTo(GroupStateDead)
	delete(c.groups, groupID)
	c.groupsMu.Unlock()

	if appendTombstone == nil {
		return
	}
	if err := appendTombstone(groupID); err != nil {
		// Tombstone append failures are swallowed here by design: the
		// group is already gone from the cache, and the next sweep or
		// a future leader's load pass will find no in-memory trace of
		// it either way. Losing the on-disk tombstone only means a
		// stale record lingers until the next compaction pass touches
		// this key again.
		c.logger.Warn("failed to append group tombstone",
			zap.String("group", groupID), zap.Error(err))
	}
}

// evictGroup removes a group from the cache without appending a
// tombstone. Used by the load pipeline when it encounters a tombstone
// already on disk — appending another one would be redundant.
func (c *metadataCache) evictGroup(groupID string) {
	c.groupsMu.Lock()
	defer c.groupsMu.Unlock()
	delete(c.groups, groupID)
}

// removeGroupsForPartition evicts every cached group whose partition
// assignment matches the given offsets-topic partition. Used on
// demotion. Scoped to the demoted partition only — evicting every group
// regardless of assignment would also discard state this broker still
// legitimately owns.
func (c *metadataCache) removeGroupsForPartition(partition int32) {
	c.groupsMu.Lock()
	defer c.groupsMu.Unlock()
	for id := range c.groups {
		if c.partitionFor(id) == partition {
			delete(c.groups, id)
		}
	}
}

// removeOffsetsForPartition evicts every cached offset whose group hashes
// to the given offsets-topic partition.
func (c *metadataCache) removeOffsetsForPartition(partition int32) {
	c.offsetsMu.Lock()
	defer c.offsetsMu.Unlock()
	for k := range c.offsets {
		if c.partitionFor(k.Group) == partition {
			delete(c.offsets, k)
		}
	}
}

// currentGroups returns a snapshot of every cached group id.
func (c *metadataCache) currentGroups() []string {
	c.groupsMu.RLock()
	defer c.groupsMu.RUnlock()
	out := make([]string, 0, len(c.groups))
	for id := range c.groups {
		out = append(out, id)
	}
	return out
}

func (c *metadataCache) numOffsets() int {
	c.offsetsMu.RLock()
	defer c.offsetsMu.RUnlock()
	return len(c.offsets)
}

func (c *metadataCache) numGroups() int {
	c.groupsMu.RLock()
	defer c.groupsMu.RUnlock()
	return len(c.groups)
}

// getOffsets implements the three-branch lookup spec: a not-local group
// fails every requested partition with NotCoordinatorForGroup; an empty
// topicPartitions list means "give me everything cached for this group,"
// returned with NoError; otherwise each requested partition is answered
// from cache, or NoOffset if nothing is cached for it.
//
// The isGroupLocal check and the cache read happen inside one call to
// withOwnershipLock, so a concurrent demote can never clear the cache in
// the middle of this lookup: it either finishes before (owned observed
// false) or starts after (the cache read below still sees the pre-demotion
// entries) this call takes the registry lock.
func (c *metadataCache) getOffsets(group string, topicPartitions []TopicPartition) (map[TopicPartition]OffsetValue, map[TopicPartition]ErrorCode) {
	values := make(map[TopicPartition]OffsetValue)
	codes := make(map[TopicPartition]ErrorCode)

	c.registry.withOwnershipLock(c.partitionFor(group), func(owned bool) {
		if !owned {
			for _, tp := range topicPartitions {
				codes[tp] = NotCoordinatorForGroup
			}
			return
		}

		if len(topicPartitions) == 0 {
			for k, v := range c.offsetsValues(func(k OffsetKey, _ OffsetValue) bool { return k.Group == group }) {
				tp := TopicPartition{Topic: k.Topic, Partition: k.Partition}
				values[tp] = v
				codes[tp] = NoError
			}
			return
		}

		for _, tp := range topicPartitions {
			key := OffsetKey{Group: group, Topic: tp.Topic, Partition: tp.Partition}
			if v, ok := c.getOffset(key); ok {
				values[tp] = v
				codes[tp] = NoError
			} else {
				codes[tp] = NoOffset
			}
		}
	})
	return values, codes
}
