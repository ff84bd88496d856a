package topic

import (
	"fmt"

	"github.com/brokercore/groupcoord/pkg/compression"
	"github.com/brokercore/groupcoord/pkg/coordinator"
)

// CoordinatorStorage adapts a *Manager to coordinator.StorageBackend and
// coordinator.NamingService so the group coordinator can read and append to
// the internal offsets topic through the same log-backed topics every other
// partition uses.
type CoordinatorStorage struct {
	manager *Manager
}

// NewCoordinatorStorage wraps manager for use by coordinator.NewManager.
func NewCoordinatorStorage(manager *Manager) *CoordinatorStorage {
	return &CoordinatorStorage{manager: manager}
}

// PartitionCount implements coordinator.NamingService.
func (s *CoordinatorStorage) PartitionCount(topicName string) (int32, bool) {
	t, ok := s.manager.GetTopic(topicName)
	if !ok {
		return 0, false
	}
	return int32(t.NumPartitions()), true
}

// GetLog implements coordinator.StorageBackend.
func (s *CoordinatorStorage) GetLog(tp coordinator.TopicPartition) (coordinator.PartitionLog, bool) {
	t, ok := s.manager.GetTopic(tp.Topic)
	if !ok {
		return nil, false
	}
	if tp.Partition < 0 || tp.Partition >= int32(t.NumPartitions()) {
		return nil, false
	}
	return &partitionLog{topic: t, partition: tp.Partition}, true
}

// AppendBatch implements coordinator.StorageBackend. Every record in the
// request is appended to its own topic-partition log in turn; the offsets
// topic has a single partition per key so there is no cross-partition
// batching to do here, unlike a client-facing produce path. Values are
// compressed with req.Compression before hitting the log, with the codec
// prefixed onto the stored value so ReadAt can reverse it without any
// side channel.
func (s *CoordinatorStorage) AppendBatch(req coordinator.AppendRequest) {
	statuses := make(map[coordinator.TopicPartition]coordinator.PartitionAppendStatus, len(req.Records))
	codec := compression.Type(req.Compression)

	for tp, records := range req.Records {
		t, ok := s.manager.GetTopic(tp.Topic)
		if !ok {
			statuses[tp] = coordinator.PartitionAppendStatus{Err: coordinator.ErrUnknownTopicOrPartition}
			continue
		}

		var baseOffset int64
		var appendErr error
		for i, rec := range records {
			storedValue, err := encodeValue(codec, rec.Value)
			if err != nil {
				appendErr = err
				break
			}
			offset, err := t.Append(tp.Partition, rec.Key, storedValue)
			if err != nil {
				appendErr = err
				break
			}
			if i == 0 {
				baseOffset = offset
			}
		}

		if appendErr != nil {
			statuses[tp] = coordinator.PartitionAppendStatus{Err: appendErr}
			continue
		}
		statuses[tp] = coordinator.PartitionAppendStatus{BaseOffset: baseOffset}
	}

	if req.OnComplete != nil {
		req.OnComplete(statuses)
	}
}

// encodeValue prefixes value with its compression codec so ReadAt can
// reverse it. A nil value is a tombstone and is passed straight through:
// the underlying segment format has no null marker of its own, only a
// zero-length one, so a tombstone must stay exactly zero bytes on disk for
// decodeValue to recognize it on the way back out.
func encodeValue(codec compression.Type, value []byte) ([]byte, error) {
	if value == nil {
		return nil, nil
	}
	if codec == compression.None {
		return append([]byte{byte(compression.None)}, value...), nil
	}
	compressed, err := compression.Compress(codec, value)
	if err != nil {
		return nil, fmt.Errorf("compress offset record: %w", err)
	}
	return append([]byte{byte(codec)}, compressed...), nil
}

// decodeValue reverses encodeValue. A zero-length stored value always means
// a tombstone (no real encoded record is ever empty: the codec layer above
// always writes at least a schema-version header), so it decodes to nil.
func decodeValue(stored []byte) ([]byte, error) {
	if len(stored) == 0 {
		return nil, nil
	}
	codec := compression.Type(stored[0])
	payload := stored[1:]
	if codec == compression.None {
		return payload, nil
	}
	decompressed, err := compression.Decompress(codec, payload)
	if err != nil {
		return nil, fmt.Errorf("decompress offset record: %w", err)
	}
	return decompressed, nil
}

// partitionLog adapts a single (*Topic, partition) pair to coordinator.PartitionLog.
type partitionLog struct {
	topic     *Topic
	partition int32
}

func (p *partitionLog) BaseOffset() int64 {
	offset, err := p.topic.GetEarliestOffset(p.partition)
	if err != nil {
		return 0
	}
	return offset
}

func (p *partitionLog) HighWatermark() int64 {
	hwm, err := p.topic.HighWaterMark(p.partition)
	if err != nil {
		return -1
	}
	return hwm
}

func (p *partitionLog) ReadAt(offset int64) (key, value []byte, err error) {
	rec, err := p.topic.Read(p.partition, offset)
	if err != nil {
		return nil, nil, err
	}
	decoded, err := decodeValue(rec.Value)
	if err != nil {
		return nil, nil, err
	}
	return rec.Key, decoded, nil
}
