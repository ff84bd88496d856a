// Copyright 2025 Takhin Data, Inc.

package membership

import (
	"sync"
	"time"

	"github.com/brokercore/groupcoord/pkg/coordinator"
)

// The fakes below satisfy pkg/coordinator's exported collaborator
// interfaces with an in-memory, synchronous implementation, so these
// tests can exercise a real coordinator.Manager without any actual
// storage layer.

type memLog struct {
	mu      sync.Mutex
	records []memRecord
}

type memRecord struct{ key, value []byte }

func (l *memLog) append(key, value []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, memRecord{key: key, value: value})
}

func (l *memLog) BaseOffset() int64 { return 0 }

func (l *memLog) HighWatermark() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return int64(len(l.records))
}

func (l *memLog) ReadAt(offset int64) ([]byte, []byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r := l.records[offset]
	return r.key, r.value, nil
}

type memStorage struct {
	mu   sync.Mutex
	logs map[coordinator.TopicPartition]*memLog
}

func newMemStorage(numPartitions int32, topic string) *memStorage {
	s := &memStorage{logs: make(map[coordinator.TopicPartition]*memLog)}
	for p := int32(0); p < numPartitions; p++ {
		s.logs[coordinator.TopicPartition{Topic: topic, Partition: p}] = &memLog{}
	}
	return s
}

func (s *memStorage) GetLog(tp coordinator.TopicPartition) (coordinator.PartitionLog, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.logs[tp]
	return l, ok
}

func (s *memStorage) AppendBatch(req coordinator.AppendRequest) {
	statuses := make(map[coordinator.TopicPartition]coordinator.PartitionAppendStatus)
	for tp, records := range req.Records {
		s.mu.Lock()
		l, ok := s.logs[tp]
		s.mu.Unlock()
		if !ok {
			statuses[tp] = coordinator.PartitionAppendStatus{Err: coordinator.ErrUnknownTopicOrPartition}
			continue
		}
		for _, r := range records {
			l.append(r.Key, r.Value)
		}
		statuses[tp] = coordinator.PartitionAppendStatus{}
	}
	if req.OnComplete != nil {
		req.OnComplete(statuses)
	}
}

type memNaming struct{ count int32 }

func (n *memNaming) PartitionCount(string) (int32, bool) { return n.count, true }

type memScheduler struct{}

func (memScheduler) Run(name string, fn func()) { fn() }

// Schedule runs fn once, synchronously, instead of actually ticking on
// period — enough for tests that just want to see one pass happen.
func (memScheduler) Schedule(name string, period time.Duration, fn func()) func() {
	fn()
	return func() {}
}
func (memScheduler) Shutdown() {}

func newTestManager(numPartitions int32) *coordinator.Manager {
	const topic = "__consumer_offsets"
	storage := newMemStorage(numPartitions, topic)
	cfg := coordinator.Config{
		OffsetsTopic:                    topic,
		OffsetsTopicNumPartitions:       numPartitions,
		OffsetCommitTimeoutMs:           5000,
		OffsetCommitRequiredAcks:        1,
		OffsetsRetentionMs:              1000 * 60 * 60 * 24,
		OffsetsRetentionCheckIntervalMs: 1000,
		MaxMetadataSize:                 4096,
	}
	mgr := coordinator.NewManager(cfg, storage, &memNaming{count: numPartitions}, memScheduler{}, nil, nil)
	for p := int32(0); p < numPartitions; p++ {
		mgr.PromotePartition(p)
	}
	return mgr
}
