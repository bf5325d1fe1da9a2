package execution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"wallet-copy-watcher/internal/domain"
)

// KafkaTrigger publishes signals as JSON to a topic, keyed by session id.
type KafkaTrigger struct {
	topic string
	sp    sarama.SyncProducer
}

// NewKafkaTrigger connects a synchronous producer to brokersCSV.
func NewKafkaTrigger(brokersCSV, topic string) (*KafkaTrigger, error) {
	if topic == "" {
		return nil, errors.New("topic empty")
	}
	brokers := splitCSV(brokersCSV)
	if len(brokers) == 0 {
		return nil, errors.New("no brokers")
	}

	cfg := sarama.NewConfig()
	cfg.ClientID = "wallet-copy-watcher"
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Retry.Backoff = 200 * time.Millisecond

	// SyncProducer must have Return.Successes=true
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true

	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	cfg.Version = sarama.V2_1_0_0

	sp, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}

	return NewKafkaTriggerWithProducer(sp, topic), nil
}

// NewKafkaTriggerWithProducer wraps an existing producer.
func NewKafkaTriggerWithProducer(sp sarama.SyncProducer, topic string) *KafkaTrigger {
	return &KafkaTrigger{topic: topic, sp: sp}
}

// Name implements Trigger.
func (t *KafkaTrigger) Name() string { return "kafka" }

// Fire implements Trigger. It waits for the broker ack.
func (t *KafkaTrigger) Fire(ctx context.Context, s domain.CopySignal) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal signal: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: t.topic,
		Key:   sarama.StringEncoder(s.SessionID),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("signature"), Value: []byte(s.Event.Signature)},
		},
	}

	// SyncProducer does not take a context; check it before sending.
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, _, err := t.sp.SendMessage(msg); err != nil {
		return fmt.Errorf("send signal: %w", err)
	}
	return nil
}

// Close closes the producer.
func (t *KafkaTrigger) Close() error {
	if t.sp != nil {
		return t.sp.Close()
	}
	return nil
}
