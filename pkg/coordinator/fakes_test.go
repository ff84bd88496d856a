// Copyright 2025 Takhin Data, Inc.

package coordinator

import (
	"fmt"
	"sync"
	"time"
)

// fakeLog is an in-memory PartitionLog used by tests that exercise the
// load pipeline without a real segmented log on disk.
type fakeLog struct {
	mu      sync.Mutex
	records []fakeRecord
	base    int64
	noLocalLeader bool
	readErrAt    int64
	decodeErrAt  int64
}

type fakeRecord struct {
	key, value []byte
}

func (f *fakeLog) append(key, value []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, fakeRecord{key: key, value: value})
}

func (f *fakeLog) BaseOffset() int64 { return f.base }

func (f *fakeLog) HighWatermark() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.noLocalLeader {
		return -1
	}
	return f.base + int64(len(f.records))
}

func (f *fakeLog) ReadAt(offset int64) ([]byte, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErrAt != 0 && offset == f.readErrAt {
		return nil, nil, fmt.Errorf("simulated read failure at offset %d", offset)
	}
	idx := offset - f.base
	if idx < 0 || idx >= int64(len(f.records)) {
		return nil, nil, fmt.Errorf("offset out of range: %d", offset)
	}
	r := f.records[idx]
	if f.decodeErrAt != 0 && offset == f.decodeErrAt {
		return []byte{0xFF, 0xFF}, r.value, nil
	}
	return r.key, r.value, nil
}

// fakeStorage is an in-memory StorageBackend: synchronous AppendBatch
// (invokes onComplete immediately, on the calling goroutine, unless
// async is set) and a fixed set of logs pre-registered by the test.
type fakeStorage struct {
	mu    sync.Mutex
	logs  map[TopicPartition]*fakeLog
	async bool

	failPartitions map[TopicPartition]error
	appended       []AppendRequest
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		logs:           make(map[TopicPartition]*fakeLog),
		failPartitions: make(map[TopicPartition]error),
	}
}

func (s *fakeStorage) addLog(tp TopicPartition, l *fakeLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[tp] = l
}

func (s *fakeStorage) GetLog(tp TopicPartition) (PartitionLog, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.logs[tp]
	return l, ok
}

func (s *fakeStorage) AppendBatch(req AppendRequest) {
	s.mu.Lock()
	s.appended = append(s.appended, req)
	s.mu.Unlock()

	run := func() {
		statuses := make(map[TopicPartition]PartitionAppendStatus)
		for tp, records := range req.Records {
			s.mu.Lock()
			l, ok := s.logs[tp]
			err := s.failPartitions[tp]
			s.mu.Unlock()

			if err != nil {
				statuses[tp] = PartitionAppendStatus{Err: err}
				continue
			}
			if !ok {
				statuses[tp] = PartitionAppendStatus{Err: fmt.Errorf("no log for %v", tp)}
				continue
			}
			for _, r := range records {
				l.append(r.Key, r.Value)
			}
			statuses[tp] = PartitionAppendStatus{BaseOffset: 0, Err: nil}
		}
		if req.OnComplete != nil {
			req.OnComplete(statuses)
		}
	}

	if s.async {
		go run()
	} else {
		run()
	}
}

// fakeNaming is a NamingService with a fixed partition count.
type fakeNaming struct {
	counts map[string]int32
}

func (n *fakeNaming) PartitionCount(topic string) (int32, bool) {
	c, ok := n.counts[topic]
	return c, ok
}

// fakeScheduler runs everything synchronously and inline, so tests don't
// need to coordinate with background goroutines.
type fakeScheduler struct {
	mu   sync.Mutex
	done bool
}

func (s *fakeScheduler) Run(name string, fn func()) {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done {
		return
	}
	fn()
}

func (s *fakeScheduler) Schedule(name string, period time.Duration, fn func()) func() {
	return func() {}
}

func (s *fakeScheduler) Shutdown() {
	s.mu.Lock()
	s.done = true
	s.mu.Unlock()
}
