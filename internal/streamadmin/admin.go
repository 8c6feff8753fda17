// Package streamadmin implements the chooser.Admin collaborator against
// a real Kafka cluster via Sarama, so bootstrap target offsets are
// resolved from live partition metadata instead of a test double.
package streamadmin

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"

	"github.com/streamrt/chooser/pkg/chooser"
	"github.com/streamrt/chooser/pkg/circuit"
)

// SaramaAdmin wraps a sarama.Client to answer the metadata questions
// chooser.Compose needs: current head/tail offsets for a stream's
// partitions. Metadata calls are wrapped in a circuit breaker so a
// flaky broker degrades predictably instead of hanging composition.
type SaramaAdmin struct {
	client  sarama.Client
	breaker *circuit.Breaker
	logger  *logrus.Logger
}

// New builds a SaramaAdmin over an already-connected client.
func New(client sarama.Client, logger *logrus.Logger) *SaramaAdmin {
	breaker := circuit.NewBreaker(circuit.BreakerConfig{
		Name:             "streamadmin",
		FailureThreshold: 5,
	}, logger)

	return &SaramaAdmin{client: client, breaker: breaker, logger: logger}
}

// StreamPartitionOffsets describes the oldest and newest offsets Kafka
// reports for one partition, the raw material chooseStartingOffset-style
// logic in streammsg clamps requested offsets against.
type StreamPartitionOffsets struct {
	Oldest int64
	Newest int64
}

// GetSystemStreamMetadata returns, per requested stream, the
// oldest/newest offset of every partition Kafka currently reports for
// it. Grounded on the chooseStartingOffset pairing of
// GetOffset(OffsetNewest)/GetOffset(OffsetOldest) in the reference
// Sarama consumer.
func (a *SaramaAdmin) GetSystemStreamMetadata(ctx context.Context, streamNames []string) (map[string]map[int32]StreamPartitionOffsets, error) {
	result := make(map[string]map[int32]StreamPartitionOffsets, len(streamNames))

	for _, stream := range streamNames {
		if err := a.breaker.Execute(func() error {
			if err := a.client.RefreshMetadata(stream); err != nil {
				return fmt.Errorf("refreshing metadata for %s: %w", stream, err)
			}
			return nil
		}); err != nil {
			return nil, err
		}

		partitions, err := a.client.Partitions(stream)
		if err != nil {
			return nil, fmt.Errorf("listing partitions for %s: %w", stream, err)
		}

		perPartition := make(map[int32]StreamPartitionOffsets, len(partitions))
		for _, p := range partitions {
			var offsets StreamPartitionOffsets
			err := a.breaker.Execute(func() error {
				newest, err := a.client.GetOffset(stream, p, sarama.OffsetNewest)
				if err != nil {
					return fmt.Errorf("newest offset for %s/%d: %w", stream, p, err)
				}
				oldest, err := a.client.GetOffset(stream, p, sarama.OffsetOldest)
				if err != nil {
					return fmt.Errorf("oldest offset for %s/%d: %w", stream, p, err)
				}
				offsets = StreamPartitionOffsets{Oldest: oldest, Newest: newest}
				return nil
			})
			if err != nil {
				return nil, err
			}
			perPartition[p] = offsets
		}
		result[stream] = perPartition
	}

	return result, nil
}

// GetOffsetsAfter implements chooser.Admin: for each requested SSP it
// returns the offset of the partition's last produced message as the
// bootstrap target — the "head at composition time" the spec's
// bootstrap gate replays toward.
//
// sarama.OffsetNewest resolves to Kafka's log-end-offset, which is one
// past the last produced message (the same value the reference
// consumer assigns to highWaterMarkOffset), never an offset any real
// envelope actually carries. Subtracting one converts it to the last
// message's own offset so offsetReachesTarget's observed >= target
// check can actually be satisfied by a message read off the partition;
// using the log-end-offset directly would permanently gate a bootstrap
// stream that receives no further writes after composition.
// A partition with no messages ever produced (log-end-offset 0) has no
// last-message offset to target, so it is reported as OffsetNone — the
// sentinel that Bootstrapping.Register and offsetReachesTarget already
// treat as "caught up trivially".
func (a *SaramaAdmin) GetOffsetsAfter(ctx context.Context, sspOffsets map[chooser.SSP]chooser.Offset) (map[chooser.SSP]chooser.Offset, error) {
	targets := make(map[chooser.SSP]chooser.Offset, len(sspOffsets))

	for ssp := range sspOffsets {
		var logEndOffset int64
		err := a.breaker.Execute(func() error {
			if err := a.client.RefreshMetadata(ssp.Stream); err != nil {
				return fmt.Errorf("refreshing metadata for %s: %w", ssp.Stream, err)
			}
			var err error
			logEndOffset, err = a.client.GetOffset(ssp.Stream, ssp.Partition, sarama.OffsetNewest)
			if err != nil {
				return fmt.Errorf("newest offset for %s: %w", ssp, err)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}

		if logEndOffset <= 0 {
			targets[ssp] = chooser.OffsetNone
			continue
		}
		targets[ssp] = chooser.Offset(fmt.Sprintf("%d", logEndOffset-1))
	}

	a.logger.WithField("count", len(targets)).Info("resolved bootstrap target offsets")
	return targets, nil
}
