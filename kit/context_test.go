package kit

import (
	"context"
	"testing"
)

func TestContextValues(t *testing.T) {
	ctx := context.Background()

	ctx = WithTraceID(ctx, "tr1")
	ctx = WithRequestID(ctx, "req1")
	ctx = WithAuthor(ctx, "Reviewer")
	ctx = WithSessionID(ctx, "quic_abc")
	ctx = WithRemoteAddr(ctx, "10.0.0.1:4242")

	if got := GetTraceID(ctx); got != "tr1" {
		t.Fatalf("trace id: %q", got)
	}
	if got := GetRequestID(ctx); got != "req1" {
		t.Fatalf("request id: %q", got)
	}
	if got := GetAuthor(ctx); got != "Reviewer" {
		t.Fatalf("author: %q", got)
	}
	if got := GetSessionID(ctx); got != "quic_abc" {
		t.Fatalf("session id: %q", got)
	}
	if got := GetRemoteAddr(ctx); got != "10.0.0.1:4242" {
		t.Fatalf("remote addr: %q", got)
	}
}

func TestContextValues_Empty(t *testing.T) {
	ctx := context.Background()
	if GetTraceID(ctx) != "" || GetRequestID(ctx) != "" || GetAuthor(ctx) != "" {
		t.Fatal("empty context returned values")
	}
}

func TestGetTransport_DefaultsToHTTP(t *testing.T) {
	if got := GetTransport(context.Background()); got != "http" {
		t.Fatalf("default transport: %q", got)
	}
	if got := GetTransport(WithTransport(context.Background(), "mcp_quic")); got != "mcp_quic" {
		t.Fatalf("transport: %q", got)
	}
}
