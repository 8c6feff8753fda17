package streamadmin

import (
	"context"
	"testing"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/streamrt/chooser/pkg/chooser"
)

// mockClient embeds the nil sarama.Client interface so mockClient
// satisfies it without implementing every method Sarama declares;
// only the handful GetOffsetsAfter/GetSystemStreamMetadata actually
// call are overridden below, the same fake-construction idiom the
// teacher's MockSink uses for types.Sink.
type mockClient struct {
	sarama.Client
	mock.Mock
}

func (m *mockClient) RefreshMetadata(topics ...string) error {
	args := m.Called(topics)
	return args.Error(0)
}

func (m *mockClient) Partitions(topic string) ([]int32, error) {
	args := m.Called(topic)
	return args.Get(0).([]int32), args.Error(1)
}

func (m *mockClient) GetOffset(topic string, partition int32, time int64) (int64, error) {
	args := m.Called(topic, partition, time)
	return args.Get(0).(int64), args.Error(1)
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func TestGetOffsetsAfter_TargetsLastProducedMessageNotLogEndOffset(t *testing.T) {
	client := &mockClient{}
	ssp := chooser.SSP{System: "kafka", Stream: "orders", Partition: 0}

	client.On("RefreshMetadata", []string{"orders"}).Return(nil)
	client.On("GetOffset", "orders", int32(0), sarama.OffsetNewest).Return(int64(124), nil)

	admin := New(client, testLogger())
	targets, err := admin.GetOffsetsAfter(context.Background(), map[chooser.SSP]chooser.Offset{ssp: chooser.OffsetNone})
	require.NoError(t, err)

	// Sarama's OffsetNewest is the log-end-offset (one past the last
	// produced message); the bootstrap target must be the last
	// message's own offset so offsetReachesTarget's observed >= target
	// check can actually be satisfied by a real envelope.
	assert.Equal(t, chooser.Offset("123"), targets[ssp])
	client.AssertExpectations(t)
}

func TestGetOffsetsAfter_EmptyPartitionYieldsOffsetNone(t *testing.T) {
	client := &mockClient{}
	ssp := chooser.SSP{System: "kafka", Stream: "orders", Partition: 0}

	client.On("RefreshMetadata", []string{"orders"}).Return(nil)
	client.On("GetOffset", "orders", int32(0), sarama.OffsetNewest).Return(int64(0), nil)

	admin := New(client, testLogger())
	targets, err := admin.GetOffsetsAfter(context.Background(), map[chooser.SSP]chooser.Offset{ssp: chooser.OffsetNone})
	require.NoError(t, err)

	assert.Equal(t, chooser.OffsetNone, targets[ssp])
	client.AssertExpectations(t)
}

func TestGetSystemStreamMetadata_ReturnsOldestAndNewestPerPartition(t *testing.T) {
	client := &mockClient{}

	client.On("RefreshMetadata", []string{"orders"}).Return(nil)
	client.On("Partitions", "orders").Return([]int32{0, 1}, nil)
	client.On("GetOffset", "orders", int32(0), sarama.OffsetNewest).Return(int64(100), nil)
	client.On("GetOffset", "orders", int32(0), sarama.OffsetOldest).Return(int64(10), nil)
	client.On("GetOffset", "orders", int32(1), sarama.OffsetNewest).Return(int64(50), nil)
	client.On("GetOffset", "orders", int32(1), sarama.OffsetOldest).Return(int64(0), nil)

	admin := New(client, testLogger())
	meta, err := admin.GetSystemStreamMetadata(context.Background(), []string{"orders"})
	require.NoError(t, err)

	require.Contains(t, meta, "orders")
	assert.Equal(t, StreamPartitionOffsets{Oldest: 10, Newest: 100}, meta["orders"][0])
	assert.Equal(t, StreamPartitionOffsets{Oldest: 0, Newest: 50}, meta["orders"][1])
	client.AssertExpectations(t)
}
