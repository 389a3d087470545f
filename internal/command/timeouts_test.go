package command

import (
	"context"
	"testing"
	"time"

	"opsbot/internal/config"
)

func TestCommandTimeoutDefaults(t *testing.T) {
	cfg := config.DefaultConfig()
	if timeout := commandTimeout(&cfg, "health"); timeout != 30*time.Second {
		t.Fatalf("expected default timeout, got %s", timeout)
	}
}

func TestCommandTimeoutPerCommand(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Timeouts.PerCommand = map[string]int{"queues": 12}
	if timeout := commandTimeout(&cfg, "queues"); timeout != 12*time.Second {
		t.Fatalf("expected per-command timeout, got %s", timeout)
	}
}

func TestCommandTimeoutMaxCap(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Timeouts.DefaultSeconds = 120
	cfg.Timeouts.MaxSeconds = 30
	if timeout := commandTimeout(&cfg, "health"); timeout != 30*time.Second {
		t.Fatalf("expected max-capped timeout, got %s", timeout)
	}
}

func TestCommandTimeoutNilAndNegative(t *testing.T) {
	if commandTimeout(nil, "health") != 0 {
		t.Fatalf("expected zero timeout for nil config")
	}
	cfg := config.DefaultConfig()
	cfg.Timeouts.DefaultSeconds = -1
	if commandTimeout(&cfg, "health") != 0 {
		t.Fatalf("expected zero timeout for negative default")
	}
	cfg.Timeouts.DefaultSeconds = 0
	cfg.Timeouts.MaxSeconds = 15
	if commandTimeout(&cfg, "health") != 15*time.Second {
		t.Fatalf("expected max timeout when default zero, got %s", commandTimeout(&cfg, "health"))
	}
}

func TestWithCommandTimeoutSetsDeadline(t *testing.T) {
	cfg := config.DefaultConfig()
	ctx, cancel := withCommandTimeout(context.Background(), &cfg, Spec{Name: "health"})
	defer cancel()
	if _, ok := ctx.Deadline(); !ok {
		t.Fatalf("expected deadline")
	}
	ctx, cancel = withCommandTimeout(context.Background(), nil, Spec{Name: "health"})
	cancel()
	if _, ok := ctx.Deadline(); ok {
		t.Fatalf("expected no deadline without config")
	}
}
