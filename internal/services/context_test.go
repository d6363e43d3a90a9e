package services_test

import (
	"context"
	"testing"

	"daqbridge/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithSessionID(ctx, "4b1f")
	ctx = services.WithTable(ctx, "SEQ1.TABLE")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.SessionIDFromContext(ctx); !ok || id != "4b1f" {
		t.Fatalf("unexpected session id: %v %v", id, ok)
	}
	if table, ok := services.TableFromContext(ctx); !ok || table != "SEQ1.TABLE" {
		t.Fatalf("unexpected table: %v %v", table, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestTableBlankPreservesContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithTable(ctx, "")
	if _, ok := services.TableFromContext(ctx); ok {
		t.Fatal("expected no table value")
	}
}
