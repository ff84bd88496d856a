// Copyright 2025 Takhin Data, Inc.

package coordinator

import (
	"go.uber.org/zap"
)

// OffsetCommit is one offset a client is asking to persist.
type OffsetCommit struct {
	Topic     string
	Partition int32
	Offset    int64
	Metadata  string
}

// PreparedStore is a fully-built append request, ready to hand to the
// storage backend. Building it (prepareStoreOffsets / prepareStoreGroup)
// and submitting it (store) are separate steps so tests can inspect a
// prepared batch before it goes anywhere.
type PreparedStore struct {
	request AppendRequest
}

// storePipeline builds and submits the append requests behind offset and
// group commits.
type storePipeline struct {
	storage         StorageBackend
	cache           *metadataCache
	partitionFor    func(group string) int32
	offsetsTopic    string
	maxMetadataSize int
	retentionMs     int64
	commitTimeoutMs int64
	requiredAcks    int16
	compression     int8
	logger          *zap.Logger
}

// prepareStoreOffsets builds the append batch for a group's offset
// commit. Oversize metadata is filtered out before the batch is built and
// reported back as OffsetMetadataTooLarge without ever reaching storage;
// everything else is appended to the single partition that group hashes
// to, and respond is invoked once, for every offset originally requested,
// after the append completes (or immediately, for offsets filtered out up
// front).
func (s *storePipeline) prepareStoreOffsets(groupID string, generationID int32, commits []OffsetCommit, respond func(map[TopicPartition]ErrorCode)) *PreparedStore {
	partition := s.partitionFor(groupID)
	target := TopicPartition{Topic: s.offsetsTopic, Partition: partition}

	filtered := make(map[TopicPartition]ErrorCode)
	kept := make(map[TopicPartition]OffsetCommit)
	for _, c := range commits {
		tp := TopicPartition{Topic: c.Topic, Partition: c.Partition}
		if len(c.Metadata) > s.maxMetadataSize {
			filtered[tp] = OffsetMetadataTooLarge
			continue
		}
		kept[tp] = c
	}

	if len(kept) == 0 {
		if respond != nil {
			respond(filtered)
		}
		return nil
	}

	commitTimestamp := now()
	records := make([]AppendRecord, 0, len(kept))
	values := make(map[TopicPartition]OffsetValue, len(kept))
	for tp, c := range kept {
		key := OffsetKey{Group: groupID, Topic: c.Topic, Partition: c.Partition}
		value := OffsetValue{
			Offset:          c.Offset,
			Metadata:        c.Metadata,
			CommitTimestamp: commitTimestamp,
			ExpireTimestamp: commitTimestamp + s.retentionMs,
		}
		values[tp] = value

		encodedKey, err := EncodeKey(key)
		if err != nil {
			filtered[tp] = Unknown
			continue
		}
		encodedValue, err := EncodeOffsetValue(value)
		if err != nil {
			filtered[tp] = Unknown
			continue
		}
		records = append(records, AppendRecord{Key: encodedKey, Value: encodedValue})
	}

	onComplete := func(statuses map[TopicPartition]PartitionAppendStatus) {
		if len(statuses) != 1 {
			fatalf("offset commit append completion reported %d partitions, expected 1", len(statuses))
		}
		status, ok := statuses[target]
		if !ok {
			fatalf("offset commit append completion reported unexpected partition")
		}

		result := make(map[TopicPartition]ErrorCode, len(filtered)+len(kept))
		for tp, code := range filtered {
			result[tp] = code
		}

		commitCode, _ := translateStorageError(status.Err)
		for tp, v := range values {
			if commitCode == NoError {
				s.cache.putOffset(OffsetKey{Group: groupID, Topic: tp.Topic, Partition: tp.Partition}, v)
			}
			result[tp] = commitCode
		}

		if respond != nil {
			respond(result)
		}
	}

	return &PreparedStore{request: AppendRequest{
		TimeoutMs:             s.commitTimeoutMs,
		RequiredAcks:          s.requiredAcks,
		InternalTopicsAllowed: true,
		Compression:           s.compression,
		Records:               map[TopicPartition][]AppendRecord{target: records},
		OnComplete:            onComplete,
	}}
}

// prepareStoreGroup builds the append batch for one group-metadata
// snapshot. No cache mutation happens here: the membership subsystem
// already updated the in-memory GroupMetadata before asking us to
// persist it.
func (s *storePipeline) prepareStoreGroup(group *GroupMetadata, respond func(ErrorCode)) (*PreparedStore, error) {
	partition := s.partitionFor(group.GroupID())
	target := TopicPartition{Topic: s.offsetsTopic, Partition: partition}

	key, err := EncodeKey(GroupKey{Group: group.GroupID()})
	if err != nil {
		return nil, err
	}
	value, err := EncodeGroupValue(group)
	if err != nil {
		return nil, err
	}

	onComplete := func(statuses map[TopicPartition]PartitionAppendStatus) {
		if len(statuses) != 1 {
			fatalf("group commit append completion reported %d partitions, expected 1", len(statuses))
		}
		status, ok := statuses[target]
		if !ok {
			fatalf("group commit append completion reported unexpected partition")
		}
		_, groupCode := translateStorageError(status.Err)
		if respond != nil {
			respond(groupCode)
		}
	}

	return &PreparedStore{request: AppendRequest{
		TimeoutMs:             s.commitTimeoutMs,
		RequiredAcks:          s.requiredAcks,
		InternalTopicsAllowed: true,
		Compression:           s.compression,
		Records:               map[TopicPartition][]AppendRecord{target: {{Key: key, Value: value}}},
		OnComplete:            onComplete,
	}}, nil
}

// store submits a prepared batch to the storage backend. The pipeline
// holds no lock across this call; onComplete runs whenever and wherever
// the backend chooses to run it.
func (s *storePipeline) store(prepared *PreparedStore) {
	if prepared == nil {
		return
	}
	s.storage.AppendBatch(prepared.request)
}
