// Package events publishes transcript events to the message backends.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"zoom-transcript-service/internal/models"
	"zoom-transcript-service/internal/observability/metrics"
	"zoom-transcript-service/internal/schema"
)

// Config holds publisher configuration for every backend.
type Config struct {
	Principal string
	Kafka     KafkaConfig
	NATS      NATSConfig
}

// Publisher fans transcript events out to Kafka and NATS. With no backend
// enabled it runs in log-only mode.
type Publisher struct {
	backends  []backend
	validator *schema.Validator
	principal string
	metrics   *metrics.Metrics
}

// backend is one message system receiving the event stream.
type backend interface {
	name() string
	publish(ctx context.Context, eventType, key string, payload []byte, headers map[string]string) error
	close() error
}

// New creates a publisher. Backends that fail to initialize are logged and
// skipped so transcription keeps running.
func New(cfg *Config) *Publisher {
	p := &Publisher{
		validator: schema.New(),
		metrics:   metrics.DefaultMetrics,
	}

	// Handle nil config case
	if cfg == nil {
		log.Info().Msg("Publishing disabled (nil config), using log-only mode")
		return p
	}
	p.principal = cfg.Principal

	if b := newKafkaBackend(cfg.Kafka); b != nil {
		p.backends = append(p.backends, b)
	}
	if b, err := newNATSBackend(cfg.NATS); err != nil {
		log.Warn().Err(err).Str("url", cfg.NATS.URL).Msg("NATS unavailable, continuing without it")
	} else if b != nil {
		p.backends = append(p.backends, b)
	}

	if len(p.backends) == 0 {
		log.Info().Msg("No message backend enabled, using log-only mode")
	}
	return p
}

// Enabled reports whether any backend is active.
func (p *Publisher) Enabled() bool {
	return len(p.backends) > 0
}

// Backends lists the active backend names.
func (p *Publisher) Backends() []string {
	names := make([]string, 0, len(p.backends))
	for _, b := range p.backends {
		names = append(names, b.name())
	}
	return names
}

// PublishInterim publishes a provisional transcript.
func (p *Publisher) PublishInterim(ctx context.Context, ev models.TranscriptInterim) error {
	if err := p.validator.Validate(ev); err != nil {
		return err
	}
	return p.publish(ctx, ev.EventType, ev.SessionID, ev)
}

// PublishFinal publishes a ledger transcript and its classification. Events
// that violate the transcript invariants are rejected before publishing.
func (p *Publisher) PublishFinal(ctx context.Context, ev models.TranscriptFinal) error {
	if err := p.validator.Validate(ev); err != nil {
		log.Error().Err(err).Int64("transcriptId", ev.Transcript.ID).Msg("Refusing to publish invalid transcript")
		return err
	}
	return p.publish(ctx, ev.EventType, ev.SessionID, ev)
}

func (p *Publisher) publish(ctx context.Context, eventType, key string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("eventType", eventType).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("eventType", eventType).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	if len(p.backends) == 0 {
		p.metrics.RecordPublish("log", eventType, nil, 0)
		return nil
	}

	headers := map[string]string{
		"eventType": eventType,
		"principal": p.principal,
	}

	var errs []error
	for _, b := range p.backends {
		start := time.Now()
		err := b.publish(ctx, eventType, key, payload, headers)
		p.metrics.RecordPublish(b.name(), eventType, err, time.Since(start).Seconds())
		if err != nil {
			log.Error().
				Err(err).
				Str("backend", b.name()).
				Str("eventType", eventType).
				Str("key", key).
				Msg("Failed to publish event")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every backend.
func (p *Publisher) Close() error {
	var errs []error
	for _, b := range p.backends {
		if err := b.close(); err != nil {
			log.Error().Err(err).Str("backend", b.name()).Msg("Error closing backend")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
