// Copyright 2025 Takhin Data, Inc.

package coordinator

import (
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Config holds every tunable this package reads. Field names mirror the
// broker's on-disk configuration keys (see pkg/config.GroupCoordinatorConfig).
type Config struct {
	OffsetsTopic                    string
	OffsetsTopicNumPartitions       int32
	OffsetsTopicCompressionCodec    int8
	OffsetCommitTimeoutMs           int64
	OffsetCommitRequiredAcks        int16
	LoadBufferSize                  int
	OffsetsRetentionMs              int64
	OffsetsRetentionCheckIntervalMs int64
	MaxMetadataSize                 int
}

// Metrics is the small observability surface this package drives. A real
// implementation backs it with Prometheus gauges (see pkg/metrics);
// tests can pass nil.
type Metrics interface {
	SetNumOffsets(n float64)
	SetNumGroups(n float64)
}

type noopMetrics struct{}

func (noopMetrics) SetNumOffsets(float64) {}
func (noopMetrics) SetNumGroups(float64)  {}

// Manager is the group-and-offset metadata manager: the single type
// outside callers use to look up committed offsets and group metadata,
// to tell the coordinator a partition has been promoted or demoted, and
// to persist new commits. It owns the ownership registry, the metadata
// cache, and the load/store/sweep pipelines, and holds no lock across any
// call into its storage backend.
type Manager struct {
	cfg      Config
	storage  StorageBackend
	naming   NamingService
	sched    Scheduler
	logger   *zap.Logger
	metrics  Metrics

	numPartitions int32

	registry *ownershipRegistry
	cache    *metadataCache
	store    *storePipeline
	loader   *loader
	sweep    *sweeper

	offsetExpire sync.RWMutex
	shuttingDown atomic.Bool
	sweepCancel  func()
}

// NewManager builds a Manager. The offsets-topic partition count is
// resolved once, from the naming service if the topic already exists,
// falling back to cfg.OffsetsTopicNumPartitions otherwise.
func NewManager(cfg Config, storage StorageBackend, naming NamingService, sched Scheduler, logger *zap.Logger, metrics Metrics) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}

	numPartitions := cfg.OffsetsTopicNumPartitions
	if n, ok := naming.PartitionCount(cfg.OffsetsTopic); ok {
		numPartitions = n
	}

	m := &Manager{
		cfg:           cfg,
		storage:       storage,
		naming:        naming,
		sched:         sched,
		logger:        logger,
		metrics:       metrics,
		numPartitions: numPartitions,
	}

	m.registry = newOwnershipRegistry()
	m.cache = newMetadataCache(m.PartitionFor, m.registry, logger)
	m.store = &storePipeline{
		storage:         storage,
		cache:           m.cache,
		partitionFor:    m.PartitionFor,
		offsetsTopic:    cfg.OffsetsTopic,
		maxMetadataSize: cfg.MaxMetadataSize,
		retentionMs:     cfg.OffsetsRetentionMs,
		commitTimeoutMs: cfg.OffsetCommitTimeoutMs,
		requiredAcks:    cfg.OffsetCommitRequiredAcks,
		compression:     cfg.OffsetsTopicCompressionCodec,
		logger:          logger,
	}
	m.loader = &loader{
		storage:        storage,
		cache:          m.cache,
		registry:       m.registry,
		offsetsTopic:   cfg.OffsetsTopic,
		retentionMs:    cfg.OffsetsRetentionMs,
		loadBufferSize: cfg.LoadBufferSize,
		offsetExpire:   &m.offsetExpire,
		logger:         logger,
		isShuttingDown: m.shuttingDown.Load,
	}
	m.sweep = &sweeper{
		storage:      storage,
		cache:        m.cache,
		partitionFor: m.PartitionFor,
		offsetsTopic: cfg.OffsetsTopic,
		offsetExpire: &m.offsetExpire,
		logger:       logger,
	}

	return m
}

// PartitionFor deterministically maps a group id to one of the offsets
// topic's partitions. Pure: same group, same partition, every call.
func (m *Manager) PartitionFor(group string) int32 {
	if m.numPartitions <= 0 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(group))
	return int32(h.Sum32() % uint32(m.numPartitions))
}

// Start begins the periodic expiration sweep. Call once, after
// construction.
func (m *Manager) Start() {
	interval := time.Duration(m.cfg.OffsetsRetentionCheckIntervalMs) * time.Millisecond
	m.sweepCancel = m.sched.Schedule("offset-expiration-sweep", interval, m.refreshAfter(m.sweep.sweep))
}

// PromotePartition begins loading partition asynchronously. Safe to call
// repeatedly or concurrently for the same partition: at most one load
// pipeline runs per partition, enforced by the ownership registry.
func (m *Manager) PromotePartition(partition int32) {
	name := fmt.Sprintf("load-offsets-partition-%d", partition)
	m.sched.Run(name, m.refreshAfter(func() { m.loader.load(partition) }))
}

// DemotePartition gives up ownership of partition, evicting every cached
// group and offset that hashes to it. Eviction happens inside the
// ownership registry's lock, so a concurrent getOffsets call can never
// observe the partition as still owned with a cache that has already
// been cleared — it sees one consistent state or the other.
func (m *Manager) DemotePartition(partition int32) {
	m.registry.demote(partition, func(p int32) {
		m.cache.removeGroupsForPartition(p)
		m.cache.removeOffsetsForPartition(p)
	})
	m.refreshGauges()
}

// IsGroupLocal reports whether this broker currently owns the partition
// group hashes to.
func (m *Manager) IsGroupLocal(group string) bool {
	return m.registry.isOwned(m.PartitionFor(group))
}

// IsGroupLoading reports whether the partition group hashes to is
// currently being loaded.
func (m *Manager) IsGroupLoading(group string) bool {
	return m.registry.isLoading(m.PartitionFor(group))
}

// GetGroup returns the cached group, if any.
func (m *Manager) GetGroup(groupID string) (*GroupMetadata, bool) {
	return m.cache.getGroup(groupID)
}

// AddGroup inserts group into the cache if it isn't already present.
func (m *Manager) AddGroup(group *GroupMetadata) *GroupMetadata {
	g := m.cache.addGroup(group)
	m.refreshGauges()
	return g
}

// RemoveGroup transitions group to Dead, evicts it, and appends its
// tombstone. Legal only once the membership subsystem has already made
// the group empty and not pending rebalance — this call does not check
// that itself.
func (m *Manager) RemoveGroup(groupID string) {
	m.cache.removeGroup(groupID, m.appendGroupTombstone)
	m.refreshGauges()
}

// GetOffsets answers a fetch-offsets request: see metadataCache.getOffsets
// for the exact branching.
func (m *Manager) GetOffsets(group string, topicPartitions []TopicPartition) (map[TopicPartition]OffsetValue, map[TopicPartition]ErrorCode) {
	return m.cache.getOffsets(group, topicPartitions)
}

// StoreOffsets persists a batch of offset commits for group and invokes
// respond once the append completes (or immediately, if every commit was
// filtered for oversize metadata).
func (m *Manager) StoreOffsets(groupID string, generationID int32, commits []OffsetCommit, respond func(map[TopicPartition]ErrorCode)) {
	prepared := m.store.prepareStoreOffsets(groupID, generationID, commits, m.respondOffsets(respond))
	if prepared != nil {
		m.store.store(prepared)
	}
}

func (m *Manager) respondOffsets(respond func(map[TopicPartition]ErrorCode)) func(map[TopicPartition]ErrorCode) {
	return func(codes map[TopicPartition]ErrorCode) {
		m.refreshGauges()
		if respond != nil {
			respond(codes)
		}
	}
}

// StoreGroup persists a group-metadata snapshot and invokes respond once
// the append completes.
func (m *Manager) StoreGroup(group *GroupMetadata, respond func(ErrorCode)) error {
	prepared, err := m.store.prepareStoreGroup(group, respond)
	if err != nil {
		return err
	}
	m.store.store(prepared)
	return nil
}

// CurrentGroups returns a snapshot of every group id currently cached.
func (m *Manager) CurrentGroups() []string {
	return m.cache.currentGroups()
}

// NumOffsets returns the current cached offset count.
func (m *Manager) NumOffsets() int { return m.cache.numOffsets() }

// NumGroups returns the current cached group count.
func (m *Manager) NumGroups() int { return m.cache.numGroups() }

// Shutdown stops the expiration sweep and any future load jobs from
// starting, and returns without waiting for jobs already in flight: a
// running load job sees the shutdown flag at its next batch check and
// stops on its own. It deliberately does not clear the cache:
// a partition's cache entries are only ever cleared by demotion, and a
// shut-down broker that still happens to own partitions should keep
// serving reads from them until the process actually exits.
func (m *Manager) Shutdown() {
	m.shuttingDown.Store(true)
	if m.sweepCancel != nil {
		m.sweepCancel()
	}
	m.sched.Shutdown()
}

// appendGroupTombstone synchronously appends a null-value record for
// groupID's GroupKey and waits (up to the configured commit timeout) for
// the append to complete, translating any storage error into a plain Go
// error for the caller (metadataCache.removeGroup logs and swallows it).
func (m *Manager) appendGroupTombstone(groupID string) error {
	key, err := EncodeKey(GroupKey{Group: groupID})
	if err != nil {
		return fmt.Errorf("encode group tombstone key: %w", err)
	}

	target := TopicPartition{Topic: m.cfg.OffsetsTopic, Partition: m.PartitionFor(groupID)}

	done := make(chan error, 1)
	m.storage.AppendBatch(AppendRequest{
		RequiredAcks:          0,
		InternalTopicsAllowed: true,
		Compression:           m.cfg.OffsetsTopicCompressionCodec,
		Records:               map[TopicPartition][]AppendRecord{target: {{Key: key, Value: nil}}},
		OnComplete: func(statuses map[TopicPartition]PartitionAppendStatus) {
			status := statuses[target]
			done <- status.Err
		},
	})

	select {
	case err := <-done:
		return err
	case <-time.After(time.Duration(m.cfg.OffsetCommitTimeoutMs) * time.Millisecond):
		return fmt.Errorf("timed out appending group tombstone for %q", groupID)
	}
}

func (m *Manager) refreshGauges() {
	m.metrics.SetNumOffsets(float64(m.cache.numOffsets()))
	m.metrics.SetNumGroups(float64(m.cache.numGroups()))
}

func (m *Manager) refreshAfter(fn func()) func() {
	return func() {
		fn()
		m.refreshGauges()
	}
}
