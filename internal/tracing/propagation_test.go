package tracing

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestPropagateToLogger(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := WithTraceID(context.Background(), "trace-123")
	ctx = WithRequestID(ctx, "req-9")
	ctx = WithActor(ctx, "127.0.0.1")

	logger := PropagateToLogger(ctx, base)
	logger.Info().Msg("hello")

	out := buf.String()
	for _, want := range []string{`"trace_id":"trace-123"`, `"request_id":"req-9"`, `"actor":"127.0.0.1"`} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected log output to contain %s, got %s", want, out)
		}
	}
}

func TestPropagateToLoggerSkipsEmpty(t *testing.T) {
	var buf bytes.Buffer
	logger := LoggerFromContext(context.Background(), zerolog.New(&buf))
	logger.Info().Msg("hello")

	if strings.Contains(buf.String(), "trace_id") {
		t.Errorf("Expected no trace_id field, got %s", buf.String())
	}
}

func TestMergeContext(t *testing.T) {
	source := WithTraceID(context.Background(), "trace-src")
	source = WithActor(source, "cli")

	target := WithActor(context.Background(), "scheduler")
	merged := MergeContext(target, source)

	if GetTraceID(merged) != "trace-src" {
		t.Error("Trace ID not merged")
	}
	if GetActor(merged) != "scheduler" {
		t.Error("Existing actor should not be overwritten")
	}
}

func TestDetach(t *testing.T) {
	parent, cancel := context.WithCancel(WithTraceID(context.Background(), "trace-1"))
	cancel()

	detached := Detach(parent)
	if detached.Err() != nil {
		t.Error("Detached context should not be cancelled")
	}
	if GetTraceID(detached) != "trace-1" {
		t.Error("Detached context lost trace ID")
	}
}
