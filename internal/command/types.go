package command

import (
	"context"
	"log/slog"

	"opsbot/internal/audit"
	"opsbot/internal/config"
	"opsbot/internal/persist"
	"opsbot/internal/policy"
	"opsbot/internal/redact"
	"opsbot/internal/render"
)

type Safety string

const (
	SafetyReadOnly Safety = "read_only"
	SafetyWrite    Safety = "write"
)

// AccessDeniedReply is sent instead of running a command the user may not run.
const AccessDeniedReply = "Access denied."

type Handler func(ctx context.Context, req Request) (Result, error)

type Spec struct {
	Name        string
	Usage       string
	Description string
	ToolsetID   string
	// MinArgs and MaxArgs bound len(Request.Args); MaxArgs < 0 means unbounded.
	MinArgs int
	MaxArgs int
	Safety  Safety
	Handler Handler
}

type Info struct {
	Name        string `json:"name"`
	Usage       string `json:"usage"`
	Description string `json:"description"`
	Toolset     string `json:"toolset"`
}

type Request struct {
	Args    []string
	User    policy.User
	Channel string
	Grant   policy.Grant
	Context ToolsetContext
}

// Result is what a command produced. Text is the chat reply; Data is an
// optional structured form for machine callers.
type Result struct {
	Text string
	Data any
}

// Message is an inbound chat line.
type Message struct {
	Text    string
	User    string
	Channel string
}

// Invocation is a parsed command call from any surface.
type Invocation struct {
	User    policy.User
	Command string
	Args    []string
	Channel string
	Source  string
}

type ToolsetContext struct {
	Config    *config.Config
	Policy    *policy.Authorizer
	Renderer  render.Renderer
	Redactor  *redact.Redactor
	Audit     *audit.Logger
	Logger    *slog.Logger
	Persister persist.Persister
	Services  *ServiceRegistry
	Registry  Registry
}
