package otel

import (
	"context"
	"errors"
	"testing"
)

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders(" authorization = Bearer x ,broken, =skip,tenant=jid")
	if len(headers) != 2 || headers["authorization"] != "Bearer x" || headers["tenant"] != "jid" {
		t.Fatalf("unexpected headers %+v", headers)
	}
}

func TestInitWithoutExportersIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "jidd"})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	_, span := Tracer("test").Start(context.Background(), "noop")
	if span.SpanContext().IsValid() {
		t.Fatalf("expected no-op span")
	}
	span.End()
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if _, err := Init(context.Background(), Config{ServiceName: "  "}); err == nil {
		t.Fatalf("expected missing service name to fail")
	}
}

func TestJoinShutdownRunsEveryStop(t *testing.T) {
	var order []int
	boom := errors.New("boom")
	stops := []ShutdownFunc{
		func(context.Context) error { order = append(order, 1); return nil },
		func(context.Context) error { order = append(order, 2); return boom },
	}
	err := joinShutdown(context.Background(), stops, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Fatalf("expected reverse order, got %v", order)
	}
}
