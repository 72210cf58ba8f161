package mongodb

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/nimburion/eventsvc/pkg/observability/logger"
)

func TestNewAdapter_Validation(t *testing.T) {
	if _, err := NewAdapter(Config{}, logger.NewNop()); err == nil {
		t.Fatal("expected error for empty URL and database")
	}
	if _, err := NewAdapter(Config{URL: "mongodb://localhost:27017"}, logger.NewNop()); err == nil {
		t.Fatal("expected error for empty database")
	}
}

func TestPing_WhenClosed(t *testing.T) {
	a := &Adapter{closed: true}
	if err := a.Ping(context.Background()); err == nil {
		t.Fatal("expected error when adapter is closed")
	}
}

func TestClose_IdempotentWhenAlreadyClosed(t *testing.T) {
	a := &Adapter{closed: true}
	if err := a.Close(); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestWithOperationTimeout_UsesAdapterTimeoutWhenNoDeadline(t *testing.T) {
	a := &Adapter{timeout: 2 * time.Second}

	ctx, cancel := a.withOperationTimeout(context.Background())
	defer cancel()

	deadline, ok := ctx.Deadline()
	if !ok {
		t.Fatal("expected deadline from operation timeout")
	}
	if remaining := time.Until(deadline); remaining <= 0 || remaining > 2*time.Second {
		t.Fatalf("unexpected remaining timeout: %v", remaining)
	}
}

func TestWithOperationTimeout_PreservesCallerDeadline(t *testing.T) {
	a := &Adapter{timeout: 2 * time.Second}
	parentCtx, parentCancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer parentCancel()

	ctx, cancel := a.withOperationTimeout(parentCtx)
	defer cancel()

	parentDeadline, _ := parentCtx.Deadline()
	gotDeadline, _ := ctx.Deadline()
	if !gotDeadline.Equal(parentDeadline) {
		t.Fatalf("expected caller deadline to be preserved, got %v want %v", gotDeadline, parentDeadline)
	}
}

func TestProperty_OperationTimeoutNeverExtendsCallerDeadline(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 50
	properties := gopter.NewProperties(params)

	properties.Property("caller deadline wins over adapter timeout", prop.ForAll(
		func(callerMs, adapterMs int) bool {
			a := &Adapter{timeout: time.Duration(adapterMs) * time.Millisecond}
			parent, cancelParent := context.WithTimeout(context.Background(), time.Duration(callerMs)*time.Millisecond)
			defer cancelParent()
			ctx, cancel := a.withOperationTimeout(parent)
			defer cancel()
			want, _ := parent.Deadline()
			got, _ := ctx.Deadline()
			return got.Equal(want)
		},
		gen.IntRange(1, 10_000),
		gen.IntRange(1, 10_000),
	))

	properties.Property("closed adapter always fails ping", prop.ForAll(
		func() bool {
			a := &Adapter{closed: true}
			return a.Ping(context.Background()) != nil
		},
	))

	properties.TestingRun(t)
}
