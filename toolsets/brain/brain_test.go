package brain

import (
	"context"
	"errors"
	"testing"

	"opsbot/internal/command"
	"opsbot/internal/config"
	"opsbot/internal/persist"
)

type failingPersister struct {
	*persist.Memory
}

func (f failingPersister) Save(ctx context.Context, snapshot persist.Snapshot, key string) error {
	return errors.New("disk full")
}

func setup(t *testing.T, p persist.Persister) *command.SpecRegistry {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Bot.Name = "hubot"
	toolset := New()
	if err := toolset.Init(command.ToolsetContext{Config: &cfg, Persister: p}); err != nil {
		t.Fatalf("init: %v", err)
	}
	reg := command.NewRegistry(&cfg)
	if err := toolset.Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	return reg
}

func run(t *testing.T, reg *command.SpecRegistry, name string, args ...string) command.Result {
	t.Helper()
	spec, ok := reg.Get(name)
	if !ok {
		t.Fatalf("expected %s registered", name)
	}
	result, err := spec.Handler(context.Background(), command.Request{Args: args})
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	return result
}

func startedMemory(t *testing.T) *persist.Memory {
	t.Helper()
	mem := persist.NewMemory()
	if err := mem.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	return mem
}

func TestRememberRecallForget(t *testing.T) {
	mem := startedMemory(t)
	reg := setup(t, mem)

	if got := run(t, reg, "remember", "oncall", "alice", "and", "bob").Text; got != "Remembered *oncall*." {
		t.Fatalf("unexpected reply %q", got)
	}
	if got := run(t, reg, "recall", "oncall").Text; got != "*oncall*: alice and bob" {
		t.Fatalf("unexpected recall %q", got)
	}
	stored, err := mem.Recover(context.Background(), "hubot")
	if err != nil || stored["oncall"] != "alice and bob" {
		t.Fatalf("expected brain saved under bot name, got %#v, %v", stored, err)
	}
	if got := run(t, reg, "forget", "oncall").Text; got != "Forgot *oncall*." {
		t.Fatalf("unexpected forget %q", got)
	}
	if got := run(t, reg, "recall", "oncall").Text; got != "I don't remember *oncall*." {
		t.Fatalf("unexpected recall after forget %q", got)
	}
	stored, _ = mem.Recover(context.Background(), "hubot")
	if _, ok := stored["oncall"]; ok {
		t.Fatalf("expected key removed from stored brain")
	}
}

func TestRecoversExistingBrain(t *testing.T) {
	mem := startedMemory(t)
	if err := mem.Save(context.Background(), persist.Snapshot{"runbook": "wiki/ops", "limits": map[string]any{"cpu": 80}}, "hubot"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	reg := setup(t, mem)
	if got := run(t, reg, "recall").Text; got != "I remember: limits, runbook" {
		t.Fatalf("unexpected listing %q", got)
	}
	if got := run(t, reg, "recall", "limits").Text; got != `*limits*: {"cpu":80}` {
		t.Fatalf("unexpected structured recall %q", got)
	}
}

func TestRecallEmptyBrain(t *testing.T) {
	reg := setup(t, startedMemory(t))
	if got := run(t, reg, "recall").Text; got != "I don't remember anything yet." {
		t.Fatalf("unexpected reply %q", got)
	}
	if got := run(t, reg, "forget", "nothing").Text; got != "I don't remember *nothing*." {
		t.Fatalf("unexpected reply %q", got)
	}
}

func TestFailedSaveKeepsBrain(t *testing.T) {
	mem := startedMemory(t)
	reg := setup(t, failingPersister{Memory: mem})
	spec, _ := reg.Get("remember")
	if _, err := spec.Handler(context.Background(), command.Request{Args: []string{"k", "v"}}); err == nil {
		t.Fatalf("expected save error")
	}
	if got := run(t, reg, "recall", "k").Text; got != "I don't remember *k*." {
		t.Fatalf("expected value dropped after failed save, got %q", got)
	}
}

func TestNotStartedPersisterFails(t *testing.T) {
	reg := setup(t, persist.NewMemory())
	spec, _ := reg.Get("recall")
	_, err := spec.Handler(context.Background(), command.Request{})
	if !errors.Is(err, persist.ErrNotInitialized) {
		t.Fatalf("expected not initialized, got %v", err)
	}
}

func TestInitRequiresPersister(t *testing.T) {
	if err := New().Init(command.ToolsetContext{}); err == nil {
		t.Fatalf("expected error without persister")
	}
}

func TestReadOnlySkipsWrites(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ReadOnly = true
	toolset := New()
	if err := toolset.Init(command.ToolsetContext{Config: &cfg, Persister: startedMemory(t)}); err != nil {
		t.Fatalf("init: %v", err)
	}
	reg := command.NewRegistry(&cfg)
	if err := toolset.Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, ok := reg.Get("remember"); ok {
		t.Fatalf("expected remember skipped in read-only mode")
	}
	if _, ok := reg.Get("recall"); !ok {
		t.Fatalf("expected recall kept")
	}
}
