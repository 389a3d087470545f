package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"opsbot/internal/audit"
	"opsbot/internal/policy"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrUsage          = errors.New("usage")
)

// Dispatcher turns invocations into handler calls: authorize, run under the
// command's timeout, then write an audit event.
type Dispatcher struct {
	botName string
	reg     *SpecRegistry
	ctx     ToolsetContext
	newID   func() string
	now     func() time.Time
}

func NewDispatcher(reg *SpecRegistry, ctx ToolsetContext) *Dispatcher {
	botName := ""
	if ctx.Config != nil {
		botName = ctx.Config.Bot.Name
	}
	if ctx.Registry == nil && reg != nil {
		ctx.Registry = reg
	}
	return &Dispatcher{
		botName: botName,
		reg:     reg,
		ctx:     ctx,
		newID:   uuid.NewString,
		now:     time.Now,
	}
}

func (d *Dispatcher) BotName() string {
	return d.botName
}

func (d *Dispatcher) Registry() *SpecRegistry {
	return d.reg
}

// Parse splits text on whitespace and reports whether it is addressed to the
// bot, i.e. whether its first word is the bot name.
func (d *Dispatcher) Parse(text string) (string, []string, bool) {
	fields := strings.Fields(text)
	if len(fields) < 2 || fields[0] != d.botName {
		return "", nil, false
	}
	return fields[1], fields[2:], true
}

// Handle runs msg when it names the bot and a known command. handled is false
// for every other message, which must get no reply. A refused command is
// handled with the access denied reply; handler errors come back unchanged.
func (d *Dispatcher) Handle(ctx context.Context, msg Message, source string) (reply string, handled bool, err error) {
	name, args, ok := d.Parse(msg.Text)
	if !ok || d.reg == nil {
		return "", false, nil
	}
	if _, known := d.reg.Get(name); !known {
		return "", false, nil
	}
	result, err := d.Call(ctx, Invocation{
		User:    policy.User{ID: msg.User},
		Command: name,
		Args:    args,
		Channel: msg.Channel,
		Source:  source,
	})
	if errors.Is(err, policy.ErrAccessDenied) {
		return AccessDeniedReply, true, nil
	}
	if err != nil {
		return "", true, err
	}
	return result.Text, true, nil
}

func (d *Dispatcher) Call(ctx context.Context, inv Invocation) (Result, error) {
	if d == nil || d.reg == nil {
		return Result{}, errors.New("command registry not available")
	}
	spec, ok := d.reg.Get(inv.Command)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownCommand, inv.Command)
	}
	start := d.now()
	if d.ctx.Policy == nil {
		err := fmt.Errorf("%w: no authorizer configured", policy.ErrAccessDenied)
		d.logAudit(spec, inv, start, audit.OutcomeDenied, err)
		return Result{}, err
	}
	grant, err := d.ctx.Policy.AuthorizeCommand(inv.User, spec.Name)
	if err != nil {
		d.logAudit(spec, inv, start, audit.OutcomeDenied, err)
		return Result{}, err
	}
	if err := d.checkArgs(spec, inv.Args); err != nil {
		d.logAudit(spec, inv, start, audit.OutcomeError, err)
		return Result{}, err
	}

	execCtx, cancel := withCommandTimeout(ctx, d.ctx.Config, spec)
	defer cancel()
	result, err := spec.Handler(execCtx, Request{
		Args:    append([]string{}, inv.Args...),
		User:    inv.User,
		Channel: inv.Channel,
		Grant:   grant,
		Context: d.ctx,
	})
	outcome := audit.OutcomeSuccess
	if err != nil {
		outcome = audit.OutcomeError
	}
	d.logAudit(spec, inv, start, outcome, err)
	return result, err
}

// Authenticate resolves an API key to a user for surfaces that carry one. A
// refused key is audited against command.
func (d *Dispatcher) Authenticate(apiKey, command, source string) (policy.User, error) {
	if d.ctx.Policy == nil {
		return policy.User{}, fmt.Errorf("%w: no authorizer configured", policy.ErrAccessDenied)
	}
	user, err := d.ctx.Policy.Authenticate(apiKey)
	if err != nil {
		spec := Spec{Name: command}
		if d.reg != nil {
			if known, ok := d.reg.Get(command); ok {
				spec = known
			}
		}
		d.logAudit(spec, Invocation{User: policy.User{ID: "unknown"}, Command: command, Source: source}, d.now(), audit.OutcomeDenied, err)
		return policy.User{}, err
	}
	return user, nil
}

// Redact strips credentials from text bound for a chat channel or client.
func (d *Dispatcher) Redact(text string) string {
	if d == nil || d.ctx.Redactor == nil {
		return text
	}
	return d.ctx.Redactor.RedactString(text)
}

func (d *Dispatcher) checkArgs(spec Spec, args []string) error {
	if len(args) < spec.MinArgs || (spec.MaxArgs >= 0 && len(args) > spec.MaxArgs) {
		return fmt.Errorf("%w: %s %s", ErrUsage, d.botName, usage(spec))
	}
	return nil
}

func (d *Dispatcher) logAudit(spec Spec, inv Invocation, start time.Time, outcome string, err error) {
	if d.ctx.Audit == nil {
		return
	}
	event := audit.Event{
		Timestamp:  start.UTC(),
		RequestID:  d.newID(),
		UserID:     inv.User.ID,
		Command:    spec.Name,
		Toolset:    spec.ToolsetID,
		Source:     inv.Source,
		Channel:    inv.Channel,
		Args:       inv.Args,
		Outcome:    outcome,
		DurationMS: d.now().Sub(start).Milliseconds(),
	}
	if err != nil {
		event.Error = err.Error()
	}
	if d.ctx.Redactor != nil {
		event.Error = d.ctx.Redactor.RedactString(event.Error)
		if len(event.Args) > 0 {
			event.Args = d.ctx.Redactor.RedactValue(event.Args).([]string)
		}
	}
	d.ctx.Audit.Log(event)
}
