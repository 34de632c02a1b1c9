package tracing

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestSetup_StdoutExporter(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := Setup(context.Background(), Config{
		ServiceName: "test-service",
		Environment: "test",
		Writer:      &buf,
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	_, span := Tracer().Start(context.Background(), "speech.final")
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !strings.Contains(buf.String(), "speech.final") {
		t.Errorf("expected exported span, got %q", buf.String())
	}
}
