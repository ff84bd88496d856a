// Copyright 2025 Takhin Data, Inc.

package coordinator

import (
	"sync"

	"go.uber.org/zap"
)

// sweeper periodically evicts expired committed offsets from the cache
// and tombstones them on the offsets topic, the same way
// pkg/storage/log's background cleaner periodically compacts segments:
// a ticker-driven pass that never blocks request-handling threads.
type sweeper struct {
	storage      StorageBackend
	cache        *metadataCache
	partitionFor func(group string) int32
	offsetsTopic string
	offsetExpire *sync.RWMutex
	logger       *zap.Logger
}

// sweep runs one expiration pass: every cached offset whose
// ExpireTimestamp has already passed is evicted and tombstoned. The
// offset-expire write lock is held while expired offsets are collected
// and evicted from the cache, and released before the tombstones are
// appended. The sweeper never takes the partition-registry lock — doing
// both would invert the locking order the rest of the package depends on.
func (s *sweeper) sweep() {
	nowMs := now()

	s.offsetExpire.Lock()
	expired := s.cache.offsetsValues(func(_ OffsetKey, v OffsetValue) bool { return v.ExpireTimestamp < nowMs })
	for k := range expired {
		s.cache.removeOffset(k)
	}
	s.offsetExpire.Unlock()

	if len(expired) == 0 {
		return
	}

	byPartition := make(map[int32][]AppendRecord)
	for k := range expired {
		encodedKey, err := EncodeKey(k)
		if err != nil {
			s.logger.Error("failed to encode tombstone key during expiration sweep",
				zap.String("group", k.Group), zap.Error(err))
			continue
		}
		partition := s.partitionFor(k.Group)
		byPartition[partition] = append(byPartition[partition], AppendRecord{Key: encodedKey, Value: nil})
	}

	records := make(map[TopicPartition][]AppendRecord, len(byPartition))
	for partition, batch := range byPartition {
		records[TopicPartition{Topic: s.offsetsTopic, Partition: partition}] = batch
	}

	removed := len(expired)
	onComplete := func(statuses map[TopicPartition]PartitionAppendStatus) {
		failed := 0
		for tp, status := range statuses {
			if status.Err != nil {
				failed++
				s.logger.Warn("failed to append expiration tombstones; will retry on next reload and sweep",
					zap.String("topic", tp.Topic), zap.Int32("partition", tp.Partition), zap.Error(status.Err))
			}
		}
		s.logger.Info("expiration sweep completed",
			zap.Int("expired", removed), zap.Int("partitions_failed", failed))
	}

	s.storage.AppendBatch(AppendRequest{
		RequiredAcks:          0,
		InternalTopicsAllowed: true,
		Records:               records,
		OnComplete:            onComplete,
	})
}
