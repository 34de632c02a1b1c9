package events

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"zoom-transcript-service/internal/models"
)

// NATSConfig holds NATS publisher configuration.
type NATSConfig struct {
	Enabled        bool
	URL            string
	SubjectInterim string
	SubjectFinal   string
	ConnectTimeout time.Duration
}

type natsBackend struct {
	conn     *nats.Conn
	subjects map[string]string // keyed by event type
}

// newNATSBackend returns nil, nil when NATS is disabled.
func newNATSBackend(cfg NATSConfig) (*natsBackend, error) {
	if !cfg.Enabled || cfg.URL == "" {
		log.Info().Msg("NATS disabled")
		return nil, nil
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	conn, err := nats.Connect(cfg.URL,
		nats.Name("zoom-transcript-service"),
		nats.Timeout(timeout),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	log.Info().
		Str("url", cfg.URL).
		Str("subjectInterim", cfg.SubjectInterim).
		Str("subjectFinal", cfg.SubjectFinal).
		Msg("NATS publisher initialized")

	return newNATSBackendWithConn(conn, cfg), nil
}

func newNATSBackendWithConn(conn *nats.Conn, cfg NATSConfig) *natsBackend {
	return &natsBackend{
		conn: conn,
		subjects: map[string]string{
			models.EventTranscriptInterim: cfg.SubjectInterim,
			models.EventTranscriptFinal:   cfg.SubjectFinal,
		},
	}
}

func (n *natsBackend) name() string { return "nats" }

func (n *natsBackend) publish(_ context.Context, eventType, key string, payload []byte, headers map[string]string) error {
	subject, ok := n.subjects[eventType]
	if !ok || subject == "" {
		return fmt.Errorf("nats: no subject for %s", eventType)
	}

	msg := nats.NewMsg(subject)
	msg.Data = payload
	msg.Header.Set("key", key)
	for hk, hv := range headers {
		msg.Header.Set(hk, hv)
	}
	return n.conn.PublishMsg(msg)
}

func (n *natsBackend) close() error {
	return n.conn.Drain()
}
