package db

import (
	"context"
	"errors"
	"testing"
)

func TestRunChecks(t *testing.T) {
	checks := []Check{
		{Name: "redis", Ping: func(context.Context) error { return nil }},
		{Name: "amqp", Ping: func(context.Context) error { return errors.New("connection refused") }},
	}

	failed := RunChecks(context.Background(), checks)
	if len(failed) != 1 {
		t.Fatalf("expected 1 failure, got %d", len(failed))
	}
	if failed["amqp"] != "connection refused" {
		t.Errorf("unexpected amqp failure: %q", failed["amqp"])
	}
	if _, ok := failed["redis"]; ok {
		t.Error("redis should be healthy")
	}
}

func TestRunChecks_NoneConfigured(t *testing.T) {
	if failed := RunChecks(context.Background(), nil); len(failed) != 0 {
		t.Errorf("expected no failures, got %v", failed)
	}
}

func TestNopTransactor(t *testing.T) {
	called := false
	err := NopTransactor{}.WithTx(context.Background(), func(ctx context.Context) error {
		called = true
		if TxFromContext(ctx) != nil {
			t.Error("nop transactor must not install a transaction")
		}
		return nil
	})
	if err != nil || !called {
		t.Fatalf("expected fn to run without error, called=%v err=%v", called, err)
	}

	want := errors.New("boom")
	if got := (NopTransactor{}).WithTx(context.Background(), func(context.Context) error { return want }); !errors.Is(got, want) {
		t.Errorf("expected fn error to propagate, got %v", got)
	}
}
