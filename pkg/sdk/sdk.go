// Package sdk re-exports what an out-of-tree toolset needs to add commands
// to opsbot.
package sdk

import (
	"context"

	"opsbot/internal/alarms"
	awslib "opsbot/internal/aws"
	"opsbot/internal/command"
	"opsbot/internal/paginate"
	"opsbot/internal/persist"
	"opsbot/internal/policy"
	"opsbot/internal/redact"
	"opsbot/internal/render"
)

// Core toolset interfaces and types.
type Toolset = command.Toolset

type ToolsetContext = command.ToolsetContext

type ToolsetFactory = command.ToolsetFactory

type Spec = command.Spec

type Handler = command.Handler

type Safety = command.Safety

type Request = command.Request

type Result = command.Result

type Registry = command.Registry

const (
	SafetyReadOnly = command.SafetyReadOnly
	SafetyWrite    = command.SafetyWrite
)

// Toolset registration for plugin discovery.
func RegisterToolset(id string, factory ToolsetFactory) error {
	return command.RegisterToolset(id, factory)
}

func MustRegisterToolset(id string, factory ToolsetFactory) {
	command.MustRegisterToolset(id, factory)
}

func RegisteredToolsets() []string {
	return command.RegisteredToolsets()
}

// Shared services and dispatch.
type ServiceRegistry = command.ServiceRegistry

type Dispatcher = command.Dispatcher

type Message = command.Message

// AWS helpers.
type AWSContext = awslib.Context

func NewAWSContext(region, accessKey, secretKey string) AWSContext {
	return awslib.NewContext(region, accessKey, secretKey)
}

type UpstreamError = paginate.UpstreamError

// FetchAll drains a continuation-token API page by page.
func FetchAll[T any](ctx context.Context, op string, fetch paginate.PageFunc[T]) ([]T, error) {
	return paginate.All(ctx, op, fetch)
}

// Alarm model and output.
type Alarm = alarms.Alarm

type AlarmState = alarms.State

type Tally = alarms.Tally

type Renderer = render.Renderer

type Redactor = redact.Redactor

// Persistence.
type Persister = persist.Persister

type Snapshot = persist.Snapshot

var (
	ErrNotInitialized  = persist.ErrNotInitialized
	ErrNotSerializable = persist.ErrNotSerializable
)

// Policy helpers.
type User = policy.User

type Grant = policy.Grant

var ErrAccessDenied = policy.ErrAccessDenied
