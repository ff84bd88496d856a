// Copyright 2025 Takhin Data, Inc.

package coordinator

import "time"

// StorageBackend is the narrow view of the broker's replicated log layer
// this package depends on. It never reaches back into the coordinator;
// the dependency runs one way only.
type StorageBackend interface {
	// GetLog returns the local log for one partition of one topic, if
	// this broker hosts a replica of it at all.
	GetLog(tp TopicPartition) (PartitionLog, bool)

	// AppendBatch hands a set of per-partition record batches to the
	// replicated log asynchronously. onComplete runs on whatever
	// goroutine the backend chooses, not necessarily the caller's —
	// the coordinator never blocks waiting for it and holds no lock
	// across the call.
	AppendBatch(req AppendRequest)
}

// PartitionLog is a single partition's local log, as seen by the load
// pipeline.
type PartitionLog interface {
	// BaseOffset is the first offset retained in this log.
	BaseOffset() int64

	// HighWatermark is the offset up to which it is safe to read, or -1
	// if this broker currently has no local leader replica for the
	// partition (in which case the load pipeline aborts the load and the
	// partition is not promoted to Owned).
	HighWatermark() int64

	// ReadAt returns the key/value recorded at offset. A nil value
	// denotes a tombstone.
	ReadAt(offset int64) (key, value []byte, err error)
}

// AppendRecord is one key/value pair destined for one partition.
type AppendRecord struct {
	Key   []byte
	Value []byte
}

// PartitionAppendStatus is the per-partition outcome of an AppendBatch
// call, delivered through its onComplete callback.
type PartitionAppendStatus struct {
	BaseOffset int64
	Err        error
}

// AppendRequest describes one batch append, possibly spanning several
// partitions of the same internal topic.
type AppendRequest struct {
	TimeoutMs             int64
	RequiredAcks          int16
	InternalTopicsAllowed bool
	// Compression identifies the codec (see pkg/compression.Type) the
	// backend should apply to each partition's batch before it is
	// written to the log.
	Compression int8
	Records     map[TopicPartition][]AppendRecord
	OnComplete  func(map[TopicPartition]PartitionAppendStatus)
}

// NamingService resolves how many partitions the offsets topic has, so
// the coordinator never has to special-case "topic doesn't exist yet."
type NamingService interface {
	// PartitionCount returns the number of partitions assigned to topic.
	// ok is false if the topic does not exist yet.
	PartitionCount(topic string) (count int32, ok bool)
}

// Scheduler runs named background jobs. Both a one-shot job (the load
// pipeline, triggered on promotion) and a periodic job (the expiration
// sweeper) go through it, so shutdown has one place to stop issuing new
// work.
type Scheduler interface {
	// Run launches fn once, immediately, on its own goroutine.
	Run(name string, fn func())

	// Schedule launches fn repeatedly, every period, until the returned
	// cancel func is called or the scheduler itself is shut down.
	Schedule(name string, period time.Duration, fn func()) (cancel func())

	// Shutdown stops the scheduler from starting any further jobs. It
	// does not interrupt jobs already running.
	Shutdown()
}
