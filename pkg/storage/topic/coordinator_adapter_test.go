package topic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brokercore/groupcoord/pkg/compression"
	"github.com/brokercore/groupcoord/pkg/coordinator"
)

func newTestCoordinatorStorage(t *testing.T) *CoordinatorStorage {
	t.Helper()
	mgr := NewManager(t.TempDir(), 16*1024*1024)
	t.Cleanup(func() { mgr.Close() })
	require.NoError(t, mgr.CreateTopic("__consumer_offsets", 1))
	return NewCoordinatorStorage(mgr)
}

func TestPartitionCount(t *testing.T) {
	s := newTestCoordinatorStorage(t)

	count, ok := s.PartitionCount("__consumer_offsets")
	assert.True(t, ok)
	assert.Equal(t, int32(1), count)

	_, ok = s.PartitionCount("does-not-exist")
	assert.False(t, ok)
}

func TestGetLogUnknownTopicOrPartition(t *testing.T) {
	s := newTestCoordinatorStorage(t)

	_, ok := s.GetLog(coordinator.TopicPartition{Topic: "missing", Partition: 0})
	assert.False(t, ok)

	_, ok = s.GetLog(coordinator.TopicPartition{Topic: "__consumer_offsets", Partition: 5})
	assert.False(t, ok)
}

func TestAppendBatchRoundTripsValue(t *testing.T) {
	s := newTestCoordinatorStorage(t)
	tp := coordinator.TopicPartition{Topic: "__consumer_offsets", Partition: 0}

	done := make(chan map[coordinator.TopicPartition]coordinator.PartitionAppendStatus, 1)
	s.AppendBatch(coordinator.AppendRequest{
		Compression: int8(compression.None),
		Records: map[coordinator.TopicPartition][]coordinator.AppendRecord{
			tp: {{Key: []byte("k1"), Value: []byte("v1")}},
		},
		OnComplete: func(statuses map[coordinator.TopicPartition]coordinator.PartitionAppendStatus) {
			done <- statuses
		},
	})

	statuses := <-done
	status := statuses[tp]
	require.NoError(t, status.Err)

	log, ok := s.GetLog(tp)
	require.True(t, ok)

	key, value, err := log.ReadAt(status.BaseOffset)
	require.NoError(t, err)
	assert.Equal(t, []byte("k1"), key)
	assert.Equal(t, []byte("v1"), value)
}

func TestAppendBatchCompressesValue(t *testing.T) {
	s := newTestCoordinatorStorage(t)
	tp := coordinator.TopicPartition{Topic: "__consumer_offsets", Partition: 0}

	payload := []byte("some metadata payload worth compressing")
	done := make(chan map[coordinator.TopicPartition]coordinator.PartitionAppendStatus, 1)
	s.AppendBatch(coordinator.AppendRequest{
		Compression: int8(compression.Snappy),
		Records: map[coordinator.TopicPartition][]coordinator.AppendRecord{
			tp: {{Key: []byte("k1"), Value: payload}},
		},
		OnComplete: func(statuses map[coordinator.TopicPartition]coordinator.PartitionAppendStatus) {
			done <- statuses
		},
	})

	statuses := <-done
	status := statuses[tp]
	require.NoError(t, status.Err)

	log, _ := s.GetLog(tp)
	_, value, err := log.ReadAt(status.BaseOffset)
	require.NoError(t, err)
	assert.Equal(t, payload, value)
}

func TestAppendBatchTombstoneRoundTripsToNil(t *testing.T) {
	s := newTestCoordinatorStorage(t)
	tp := coordinator.TopicPartition{Topic: "__consumer_offsets", Partition: 0}

	done := make(chan map[coordinator.TopicPartition]coordinator.PartitionAppendStatus, 1)
	s.AppendBatch(coordinator.AppendRequest{
		Records: map[coordinator.TopicPartition][]coordinator.AppendRecord{
			tp: {{Key: []byte("k1"), Value: nil}},
		},
		OnComplete: func(statuses map[coordinator.TopicPartition]coordinator.PartitionAppendStatus) {
			done <- statuses
		},
	})

	statuses := <-done
	status := statuses[tp]
	require.NoError(t, status.Err)

	log, _ := s.GetLog(tp)
	_, value, err := log.ReadAt(status.BaseOffset)
	require.NoError(t, err)
	assert.True(t, coordinator.IsTombstone(value))
}

func TestAppendBatchUnknownTopic(t *testing.T) {
	s := newTestCoordinatorStorage(t)
	tp := coordinator.TopicPartition{Topic: "no-such-topic", Partition: 0}

	done := make(chan map[coordinator.TopicPartition]coordinator.PartitionAppendStatus, 1)
	s.AppendBatch(coordinator.AppendRequest{
		Records: map[coordinator.TopicPartition][]coordinator.AppendRecord{
			tp: {{Key: []byte("k1"), Value: []byte("v1")}},
		},
		OnComplete: func(statuses map[coordinator.TopicPartition]coordinator.PartitionAppendStatus) {
			done <- statuses
		},
	})

	statuses := <-done
	assert.ErrorIs(t, statuses[tp].Err, coordinator.ErrUnknownTopicOrPartition)
}
