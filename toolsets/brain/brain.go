// Package brain stores small facts for the bot and keeps them in the
// configured persister.
package brain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"opsbot/internal/command"
	"opsbot/internal/persist"
)

const defaultKey = "opsbot"

type Toolset struct {
	ctx       command.ToolsetContext
	persister persist.Persister
	key       string

	mu     sync.Mutex
	loaded bool
	brain  persist.Snapshot
}

func New() *Toolset {
	return &Toolset{}
}

func init() {
	command.MustRegisterToolset("brain", func() command.Toolset {
		return New()
	})
}

func (t *Toolset) ID() string {
	return "brain"
}

func (t *Toolset) Version() string {
	return "0.1.0"
}

func (t *Toolset) Init(ctx command.ToolsetContext) error {
	if ctx.Persister == nil {
		return errors.New("brain toolset needs a persister")
	}
	t.ctx = ctx
	t.persister = ctx.Persister
	t.key = defaultKey
	if ctx.Config != nil && ctx.Config.PersistenceKey() != "" {
		t.key = ctx.Config.PersistenceKey()
	}
	return nil
}

func (t *Toolset) Register(reg command.Registry) error {
	specs := []command.Spec{
		{
			Name:        "remember",
			Usage:       "remember <key> <value...>",
			Description: "Store a value under a key.",
			ToolsetID:   t.ID(),
			MinArgs:     2,
			MaxArgs:     -1,
			Safety:      command.SafetyWrite,
			Handler:     t.handleRemember,
		},
		{
			Name:        "recall",
			Usage:       "recall [key]",
			Description: "Show a stored value, or every stored key.",
			ToolsetID:   t.ID(),
			MaxArgs:     1,
			Safety:      command.SafetyReadOnly,
			Handler:     t.handleRecall,
		},
		{
			Name:        "forget",
			Usage:       "forget <key>",
			Description: "Delete a stored value.",
			ToolsetID:   t.ID(),
			MinArgs:     1,
			MaxArgs:     1,
			Safety:      command.SafetyWrite,
			Handler:     t.handleForget,
		},
	}
	for _, spec := range specs {
		if err := reg.Add(spec); err != nil {
			return fmt.Errorf("register %s: %w", spec.Name, err)
		}
	}
	return nil
}

// load recovers the stored brain once. Callers hold t.mu.
func (t *Toolset) load(ctx context.Context) error {
	if t.loaded {
		return nil
	}
	if t.persister == nil {
		return errors.New("brain toolset not initialized")
	}
	snapshot, err := t.persister.Recover(ctx, t.key)
	if err != nil {
		return fmt.Errorf("recover brain: %w", err)
	}
	if snapshot == nil {
		snapshot = persist.Snapshot{}
	}
	t.brain = snapshot
	t.loaded = true
	return nil
}

// update applies change to a copy of the brain and keeps it only once saved.
func (t *Toolset) update(ctx context.Context, change func(persist.Snapshot)) error {
	next := make(persist.Snapshot, len(t.brain)+1)
	for k, v := range t.brain {
		next[k] = v
	}
	change(next)
	if err := t.persister.Save(ctx, next, t.key); err != nil {
		return fmt.Errorf("save brain: %w", err)
	}
	t.brain = next
	return nil
}

func (t *Toolset) handleRemember(ctx context.Context, req command.Request) (command.Result, error) {
	key := req.Args[0]
	value := strings.Join(req.Args[1:], " ")
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.load(ctx); err != nil {
		return command.Result{}, err
	}
	if err := t.update(ctx, func(s persist.Snapshot) { s[key] = value }); err != nil {
		return command.Result{}, err
	}
	return command.Result{Text: fmt.Sprintf("Remembered *%s*.", key), Data: map[string]any{"key": key, "value": value}}, nil
}

func (t *Toolset) handleRecall(ctx context.Context, req command.Request) (command.Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.load(ctx); err != nil {
		return command.Result{}, err
	}
	if len(req.Args) == 0 {
		keys := make([]string, 0, len(t.brain))
		for k := range t.brain {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		if len(keys) == 0 {
			return command.Result{Text: "I don't remember anything yet.", Data: map[string]any{"keys": keys}}, nil
		}
		return command.Result{Text: "I remember: " + strings.Join(keys, ", "), Data: map[string]any{"keys": keys}}, nil
	}
	key := req.Args[0]
	value, ok := t.brain[key]
	if !ok {
		return command.Result{Text: fmt.Sprintf("I don't remember *%s*.", key), Data: map[string]any{"key": key, "found": false}}, nil
	}
	return command.Result{
		Text: fmt.Sprintf("*%s*: %s", key, display(value)),
		Data: map[string]any{"key": key, "value": value, "found": true},
	}, nil
}

func (t *Toolset) handleForget(ctx context.Context, req command.Request) (command.Result, error) {
	key := req.Args[0]
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.load(ctx); err != nil {
		return command.Result{}, err
	}
	if _, ok := t.brain[key]; !ok {
		return command.Result{Text: fmt.Sprintf("I don't remember *%s*.", key), Data: map[string]any{"key": key, "found": false}}, nil
	}
	if err := t.update(ctx, func(s persist.Snapshot) { delete(s, key) }); err != nil {
		return command.Result{}, err
	}
	return command.Result{Text: fmt.Sprintf("Forgot *%s*.", key), Data: map[string]any{"key": key, "found": true}}, nil
}

func display(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(data)
}
