// Copyright 2025 Takhin Data, Inc.

package coordinator

import "sync"

// ownershipState is the lifecycle a partition of the offsets topic moves
// through on this broker.
type ownershipState int

const (
	stateUnowned ownershipState = iota
	stateLoading
	stateOwned
)

// ownershipRegistry is the single mutex-guarded source of truth for which
// offsets-topic partitions this broker currently owns, is loading, or has
// given up. Every other lock in this package (the offset-expire lock, a
// group's own monitor) is acquired only after this one, never before —
// that ordering is what keeps getOffsets from ever observing a demoted
// partition as still local.
type ownershipRegistry struct {
	mu      sync.Mutex
	loading map[int32]struct{}
	owned   map[int32]struct{}
}

func newOwnershipRegistry() *ownershipRegistry {
	return &ownershipRegistry{
		loading: make(map[int32]struct{}),
		owned:   make(map[int32]struct{}),
	}
}

// beginLoading marks a partition as Loading, provided it is not already
// Loading or Owned. Returns false if the partition was already in either
// state, which the caller must treat as "someone else is already handling
// this promotion" — at most one load per partition runs at a time.
func (r *ownershipRegistry) beginLoading(partition int32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, loading := r.loading[partition]; loading {
		return false
	}
	if _, owned := r.owned[partition]; owned {
		return false
	}
	r.loading[partition] = struct{}{}
	return true
}

// finishLoading transitions a partition from Loading to Owned (on
// success) or back to Unowned (on failure), unconditionally clearing the
// Loading marker either way.
func (r *ownershipRegistry) finishLoading(partition int32, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.loading, partition)
	if success {
		r.owned[partition] = struct{}{}
	}
}

// demote removes a partition from the Owned set. evict is invoked while
// the registry lock is still held, so that any concurrent getOffsets
// call either observes the partition as still fully owned (and the cache
// entries it reads are a consistent pre-demotion snapshot) or observes it
// as already not-local (and is correctly refused) — never a window where
// the partition looks local but the cache has already been cleared out
// from under it.
func (r *ownershipRegistry) demote(partition int32, evict func(partition int32)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.owned, partition)
	delete(r.loading, partition)
	if evict != nil {
		evict(partition)
	}
}

// isOwned reports whether a partition is currently Owned.
func (r *ownershipRegistry) isOwned(partition int32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.owned[partition]
	return ok
}

// withOwnershipLock runs fn while still holding the registry lock, passing
// whether partition is currently Owned. getOffsets uses this to couple its
// isGroupLocal check to its cache read under a single critical section, so
// a demote running on another goroutine can never interleave between the
// two: either it fully precedes this call (fn observes owned=false) or
// fully follows it (fn's cache read sees pre-demotion state).
func (r *ownershipRegistry) withOwnershipLock(partition int32, fn func(owned bool)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, owned := r.owned[partition]
	fn(owned)
}

// isLoading reports whether a partition is currently Loading.
func (r *ownershipRegistry) isLoading(partition int32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.loading[partition]
	return ok
}

// ownedPartitions returns a snapshot of every currently-Owned partition.
func (r *ownershipRegistry) ownedPartitions() []int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int32, 0, len(r.owned))
	for p := range r.owned {
		out = append(out, p)
	}
	return out
}
