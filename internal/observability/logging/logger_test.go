package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestInitWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(Config{Level: "debug", Format: "json"}, &buf)
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	l := WithComponent("ledger")
	l.Debug().Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", buf.String(), err)
	}
	if entry["component"] != "ledger" {
		t.Errorf("expected component ledger, got %v", entry["component"])
	}
	if entry["service"] != "zoom-transcript-service" {
		t.Errorf("expected service field, got %v", entry["service"])
	}
	if entry["message"] != "hello" {
		t.Errorf("expected message hello, got %v", entry["message"])
	}
}

func TestInitWithWriter_InvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(Config{Level: "chatty"}, &buf)

	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Errorf("expected info level, got %v", zerolog.GlobalLevel())
	}

	log.Debug().Msg("suppressed")
	if buf.Len() != 0 {
		t.Errorf("expected debug line to be suppressed, got %q", buf.String())
	}
}

func TestWithSession(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(DefaultConfig(), &buf)

	l := WithSession("sess-1", "Alice")
	l.Info().Msg("started")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry["sessionId"] != "sess-1" || entry["participant"] != "Alice" {
		t.Errorf("missing session fields: %v", entry)
	}
}

func TestInitWithWriter_ServiceAndEnvironment(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(Config{Service: "transcriptd", Environment: "staging"}, &buf)

	log.Info().Msg("up")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry["service"] != "transcriptd" || entry["env"] != "staging" {
		t.Errorf("unexpected identity fields: %v", entry)
	}
}
