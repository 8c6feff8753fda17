// Package streammsg implements the chooser task loop's Consumer
// collaborator against Kafka via Sarama: register a partition, start
// consuming from a resolved offset, and hand each message back as a
// chooser.Envelope.
package streammsg

import (
	"fmt"
	"sync"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"

	"github.com/streamrt/chooser/pkg/chooser"
)

// SaramaConsumer wraps sarama.Consumer, tracking one
// sarama.PartitionConsumer per registered SSP. Grounded on the
// reference consumer's chooseStartingOffset/ConsumePartition pairing:
// registration always resolves an application-level "last read offset"
// into the next sarama offset to request.
type SaramaConsumer struct {
	consumer sarama.Consumer
	logger   *logrus.Logger

	mu         sync.Mutex
	partitions map[chooser.SSP]sarama.PartitionConsumer
}

// New wraps an already-connected sarama.Consumer.
func New(consumer sarama.Consumer, logger *logrus.Logger) *SaramaConsumer {
	return &SaramaConsumer{
		consumer:   consumer,
		logger:     logger,
		partitions: make(map[chooser.SSP]sarama.PartitionConsumer),
	}
}

// chooseStartingOffset maps a chooser.Offset to the sarama offset to
// request: OffsetNone means start from the oldest retained message,
// any other offset is the next message after the last one read.
func chooseStartingOffset(last chooser.Offset) (int64, error) {
	if last == chooser.OffsetNone {
		return sarama.OffsetOldest, nil
	}
	var n int64
	if _, err := fmt.Sscanf(string(last), "%d", &n); err != nil {
		return 0, fmt.Errorf("parsing offset %q: %w", last, err)
	}
	return n + 1, nil
}

// Register opens a PartitionConsumer for ssp, starting just after
// lastReadOffset.
func (c *SaramaConsumer) Register(ssp chooser.SSP, lastReadOffset chooser.Offset) error {
	startOffset, err := chooseStartingOffset(lastReadOffset)
	if err != nil {
		return err
	}

	pc, err := c.consumer.ConsumePartition(ssp.Stream, ssp.Partition, startOffset)
	if err != nil {
		return fmt.Errorf("consuming partition %s: %w", ssp, err)
	}

	c.mu.Lock()
	c.partitions[ssp] = pc
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"ssp":          ssp.String(),
		"start_offset": startOffset,
	}).Info("registered partition consumer")

	return nil
}

// Poll takes at most one immediately available message from each
// registered partition and returns them as envelopes, non-blocking: a
// partition with nothing buffered is simply skipped this round. The task loop (see
// internal/taskloop) calls Poll and feeds the result to Update.
func (c *SaramaConsumer) Poll() []chooser.Envelope {
	c.mu.Lock()
	partitions := make(map[chooser.SSP]sarama.PartitionConsumer, len(c.partitions))
	for ssp, pc := range c.partitions {
		partitions[ssp] = pc
	}
	c.mu.Unlock()

	var envelopes []chooser.Envelope
	for ssp, pc := range partitions {
		select {
		case msg, ok := <-pc.Messages():
			if !ok {
				continue
			}
			envelopes = append(envelopes, chooser.Envelope{
				SSP:     ssp,
				Key:     msg.Key,
				Message: msg.Value,
				Offset:  chooser.Offset(fmt.Sprintf("%d", msg.Offset)),
			})
		default:
		}

		select {
		case err, ok := <-pc.Errors():
			if ok {
				c.logger.WithFields(logrus.Fields{
					"ssp":   ssp.String(),
					"error": err.Err,
				}).Error("partition consumer error")
			}
		default:
		}
	}

	return envelopes
}

// Start is a no-op: each PartitionConsumer starts consuming as soon as
// Register opens it.
func (c *SaramaConsumer) Start() {}

// Stop closes every open partition consumer and the underlying
// sarama.Consumer.
func (c *SaramaConsumer) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for ssp, pc := range c.partitions {
		if err := pc.Close(); err != nil {
			c.logger.WithFields(logrus.Fields{
				"ssp":   ssp.String(),
				"error": err,
			}).Warn("error closing partition consumer")
		}
	}
	c.partitions = make(map[chooser.SSP]sarama.PartitionConsumer)

	return c.consumer.Close()
}
