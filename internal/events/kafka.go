package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"zoom-transcript-service/internal/models"
)

// KafkaConfig holds Kafka publisher configuration.
type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	TopicInterim string
	TopicFinal   string
}

type kafkaBackend struct {
	writers map[string]*kafka.Writer // keyed by event type
}

// newKafkaBackend returns nil when Kafka is disabled.
func newKafkaBackend(cfg KafkaConfig) *kafkaBackend {
	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled")
		return nil
	}

	// Longer dial timeout for DNS resolution in Kubernetes
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
			RequiredAcks: kafka.RequireOne,
			Transport:    transport,
		}
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicInterim", cfg.TopicInterim).
		Str("topicFinal", cfg.TopicFinal).
		Msg("Kafka publisher initialized")

	return &kafkaBackend{writers: map[string]*kafka.Writer{
		models.EventTranscriptInterim: newWriter(cfg.TopicInterim),
		models.EventTranscriptFinal:   newWriter(cfg.TopicFinal),
	}}
}

func (k *kafkaBackend) name() string { return "kafka" }

func (k *kafkaBackend) publish(ctx context.Context, eventType, key string, payload []byte, headers map[string]string) error {
	w, ok := k.writers[eventType]
	if !ok {
		return fmt.Errorf("kafka: no topic for %s", eventType)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
	}
	for hk, hv := range headers {
		msg.Headers = append(msg.Headers, kafka.Header{Key: hk, Value: []byte(hv)})
	}
	return w.WriteMessages(ctx, msg)
}

func (k *kafkaBackend) close() error {
	var errs []error
	for _, w := range k.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
