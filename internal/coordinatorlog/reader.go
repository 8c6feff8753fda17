package coordinatorlog

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"

	apperrors "github.com/streamrt/chooser/pkg/errors"
)

// wireKey is the on-the-wire shape of a coordinator-log record's key,
// carried in the Kafka message's key bytes. The message's value bytes
// (arbitrary JSON, absent for a delete) are decoded separately.
type wireKey struct {
	Version int    `json:"version"`
	Type    string `json:"type"`
	Key     string `json:"key"`
}

// Reader replays a compacted coordinator-log topic from its earliest
// offset to the head offset captured when Open is called, materializing
// a key/value configuration snapshot. Grounded on
// pkg/positions.CheckpointManager's snapshot-then-replay discipline,
// adapted from periodic local snapshotting to one-shot remote replay.
type Reader struct {
	consumer sarama.Consumer
	client   sarama.Client
	topic    string
	logger   *logrus.Logger

	mu           sync.RWMutex
	config       map[string]interface{}
	bootstrapped bool
}

// Open starts replaying topic from sarama.OffsetOldest up to the
// newest offset reported at call time, blocking until that point is
// reached or ctx is canceled. The reader is single-threaded per
// instance: replay runs on the calling goroutine, not a background one,
// so there is nothing to Stop independently of ctx.
func Open(ctx context.Context, client sarama.Client, consumer sarama.Consumer, topic string, logger *logrus.Logger) (*Reader, error) {
	r := &Reader{
		consumer: consumer,
		client:   client,
		topic:    topic,
		logger:   logger,
		config:   make(map[string]interface{}),
	}

	partitions, err := client.Partitions(topic)
	if err != nil {
		return nil, apperrors.ReplayError("open", "listing coordinator log partitions").Wrap(err)
	}

	for _, p := range partitions {
		if err := r.replayPartition(ctx, p); err != nil {
			return nil, err
		}
	}

	r.mu.Lock()
	r.bootstrapped = true
	r.mu.Unlock()

	logger.WithFields(logrus.Fields{
		"topic":      topic,
		"partitions": len(partitions),
		"keys":       len(r.config),
	}).Info("coordinator log replay complete")

	return r, nil
}

func (r *Reader) replayPartition(ctx context.Context, partition int32) error {
	head, err := r.client.GetOffset(r.topic, partition, sarama.OffsetNewest)
	if err != nil {
		return apperrors.ReplayError("replay", "reading head offset").Wrap(err)
	}
	if head == 0 {
		return nil
	}

	pc, err := r.consumer.ConsumePartition(r.topic, partition, sarama.OffsetOldest)
	if err != nil {
		return apperrors.ReplayError("replay", "opening partition consumer").Wrap(err)
	}
	defer pc.Close()

	for {
		select {
		case <-ctx.Done():
			return apperrors.ReplayError("replay", "context canceled before reaching head").Wrap(ctx.Err())
		case msg, ok := <-pc.Messages():
			if !ok {
				return apperrors.ReplayError("replay", "partition consumer closed before reaching head")
			}
			if err := r.apply(msg); err != nil {
				return err
			}
			if msg.Offset+1 >= head {
				return nil
			}
		case cerr, ok := <-pc.Errors():
			if ok {
				return apperrors.ReplayError("replay", "partition consumer error").Wrap(cerr.Err)
			}
		}
	}
}

func (r *Reader) apply(msg *sarama.ConsumerMessage) error {
	var key wireKey
	if err := json.Unmarshal(msg.Key, &key); err != nil {
		return apperrors.ReplayError("apply", "undecodable coordinator log key").Wrap(err)
	}

	if key.Type != string(SetConfig) {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if msg.Value == nil {
		delete(r.config, key.Key)
		return nil
	}

	var value interface{}
	if err := json.Unmarshal(msg.Value, &value); err != nil {
		return apperrors.ReplayError("apply", "undecodable coordinator log value").Wrap(err)
	}
	r.config[key.Key] = value

	return nil
}

// GetConfig returns the materialized key/value snapshot. It fails
// until replay has reached the head offset captured at Open — no
// partial snapshot is ever exposed.
func (r *Reader) GetConfig() (map[string]interface{}, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.bootstrapped {
		return nil, apperrors.ReplayError("get-config", "reader has not finished bootstrap replay")
	}

	snapshot := make(map[string]interface{}, len(r.config))
	for k, v := range r.config {
		snapshot[k] = v
	}
	return snapshot, nil
}

// Bootstrapped reports whether replay has completed.
func (r *Reader) Bootstrapped() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.bootstrapped
}
