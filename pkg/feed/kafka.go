// Package feed supplies opportunities to the decision cycle from external
// odds pipelines.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/oddsforge/betengine/pkg/engine"
)

// KafkaSource consumes opportunity batches from a Kafka topic. Each message
// is a JSON array of opportunities produced by an upstream odds scanner.
// Fetch drains whatever arrived since the last cycle without blocking the
// cycle on an empty topic.
type KafkaSource struct {
	reader *kafka.Reader
	log    *zap.Logger

	// Drain bounds one Fetch call when messages keep arriving.
	drain time.Duration
}

// NewKafkaSource creates a source reading from the given brokers and topic.
func NewKafkaSource(brokers []string, topic, groupID string, log *zap.Logger) *KafkaSource {
	if log == nil {
		log = zap.NewNop()
	}
	return &KafkaSource{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        brokers,
			Topic:          topic,
			GroupID:        groupID,
			MinBytes:       1,
			MaxBytes:       10e6,
			CommitInterval: time.Second,
		}),
		log:   log,
		drain: 2 * time.Second,
	}
}

// Fetch drains pending messages and returns the decoded opportunities.
// Messages that fail to decode are skipped with a warning.
func (s *KafkaSource) Fetch(ctx context.Context) ([]engine.Opportunity, error) {
	deadline, cancel := context.WithTimeout(ctx, s.drain)
	defer cancel()

	var opps []engine.Opportunity
	for {
		m, err := s.reader.ReadMessage(deadline)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Drain window elapsed: return what we have.
			return opps, nil
		}

		batch, err := decodeBatch(m.Value)
		if err != nil {
			s.log.Warn("invalid opportunity message",
				zap.String("key", string(m.Key)), zap.Error(err))
			continue
		}
		opps = append(opps, batch...)
	}
}

// Close releases the underlying consumer.
func (s *KafkaSource) Close() error {
	return s.reader.Close()
}

// decodeBatch accepts either a JSON array of opportunities or a single
// opportunity object.
func decodeBatch(raw []byte) ([]engine.Opportunity, error) {
	var batch []engine.Opportunity
	if err := json.Unmarshal(raw, &batch); err == nil {
		return batch, nil
	}

	var single engine.Opportunity
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, fmt.Errorf("decoding opportunity payload: %w", err)
	}
	return []engine.Opportunity{single}, nil
}
