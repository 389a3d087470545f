package command

import (
	"context"
	"time"

	"opsbot/internal/config"
)

func withCommandTimeout(ctx context.Context, cfg *config.Config, spec Spec) (context.Context, context.CancelFunc) {
	timeout := commandTimeout(cfg, spec.Name)
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func commandTimeout(cfg *config.Config, name string) time.Duration {
	if cfg == nil {
		return 0
	}
	timeout := time.Duration(cfg.Timeouts.DefaultSeconds) * time.Second
	if override, ok := cfg.Timeouts.PerCommand[name]; ok && override > 0 {
		timeout = time.Duration(override) * time.Second
	}
	max := time.Duration(cfg.Timeouts.MaxSeconds) * time.Second
	if max > 0 && timeout > max {
		timeout = max
	}
	if timeout < 0 {
		return 0
	}
	if timeout == 0 && max > 0 {
		return max
	}
	return timeout
}
