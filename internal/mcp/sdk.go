package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sdkjsonrpc "github.com/modelcontextprotocol/go-sdk/jsonrpc"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"opsbot/internal/command"
	"opsbot/internal/policy"
)

const (
	// ToolPrefix namespaces every command exposed as an MCP tool.
	ToolPrefix = "opsbot."
	source     = "mcp"

	codeUnauthenticated = -32001
)

type toolArgs struct {
	Args []string `json:"args"`
}

var argsSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"args": map[string]any{
			"type":        "array",
			"items":       map[string]any{"type": "string"},
			"description": "Words that follow the command name in chat.",
		},
	},
	"additionalProperties": false,
}

func ToolName(commandName string) string {
	return ToolPrefix + commandName
}

// RegisterSDKTools adds one tool per registered command and returns the tool
// names in command order.
func RegisterSDKTools(server *sdkmcp.Server, dispatcher *command.Dispatcher) ([]string, error) {
	if server == nil || dispatcher == nil || dispatcher.Registry() == nil {
		return nil, fmt.Errorf("server and dispatcher are required")
	}
	var names []string
	for _, spec := range dispatcher.Registry().Specs() {
		name := ToolName(spec.Name)
		description := spec.Description
		if spec.Usage != "" {
			description = fmt.Sprintf("%s Usage: %s", description, spec.Usage)
		}
		server.AddTool(&sdkmcp.Tool{
			Name:        name,
			Description: strings.TrimSpace(description),
			InputSchema: argsSchema,
		}, toolHandler(spec.Name, dispatcher))
		names = append(names, name)
	}
	return names, nil
}

func toolHandler(commandName string, dispatcher *command.Dispatcher) sdkmcp.ToolHandler {
	return func(callCtx context.Context, req *sdkmcp.CallToolRequest) (*sdkmcp.CallToolResult, error) {
		var args toolArgs
		if req != nil && req.Params != nil && len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				return nil, &sdkjsonrpc.Error{Code: sdkjsonrpc.CodeInvalidParams, Message: fmt.Sprintf("invalid arguments: %v", err)}
			}
		}

		user, err := dispatcher.Authenticate(apiKeyFromRequest(req), commandName, source)
		if err != nil {
			return nil, &sdkjsonrpc.Error{Code: codeUnauthenticated, Message: err.Error()}
		}
		result, err := dispatcher.Call(callCtx, command.Invocation{
			User:    user,
			Command: commandName,
			Args:    args.Args,
			Source:  source,
		})
		return buildCallToolResult(result, err, dispatcher.Redact), nil
	}
}

func buildCallToolResult(result command.Result, toolErr error, redact func(string) string) *sdkmcp.CallToolResult {
	res := &sdkmcp.CallToolResult{}
	if toolErr != nil {
		text := redact(toolErr.Error())
		if errors.Is(toolErr, policy.ErrAccessDenied) {
			text = command.AccessDeniedReply
		}
		envelope := command.BuildErrorEnvelope(toolErr, nil)
		if detail, ok := envelope["error"].(command.ErrorDetail); ok {
			detail.Message = redact(detail.Message)
			envelope["error"] = detail
		}
		res.IsError = true
		res.StructuredContent = envelope
		res.Content = []sdkmcp.Content{&sdkmcp.TextContent{Text: text}}
		return res
	}

	if result.Data != nil {
		res.StructuredContent = structured(result.Data)
	}
	text := result.Text
	if text == "" && result.Data != nil {
		if data, err := json.Marshal(result.Data); err == nil {
			text = string(data)
		} else {
			text = fmt.Sprintf("%v", result.Data)
		}
	}
	res.Content = []sdkmcp.Content{&sdkmcp.TextContent{Text: text}}
	return res
}

// structured wraps non-object data; structured tool content must be an object.
func structured(data any) any {
	if _, ok := data.(map[string]any); ok {
		return data
	}
	return map[string]any{"result": data}
}

func apiKeyFromRequest(req *sdkmcp.CallToolRequest) string {
	if req == nil {
		return ""
	}
	if req.Params != nil {
		if value := apiKeyFromMeta(req.Params.Meta); value != "" {
			return value
		}
	}
	if req.Extra != nil && req.Extra.Header != nil {
		if value := strings.TrimSpace(req.Extra.Header.Get("X-Api-Key")); value != "" {
			return value
		}
		authHeader := strings.TrimSpace(req.Extra.Header.Get("Authorization"))
		if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
			return strings.TrimSpace(authHeader[len("bearer "):])
		}
	}
	return ""
}

func apiKeyFromMeta(meta map[string]any) string {
	if meta == nil {
		return ""
	}
	if value, ok := meta["apiKey"].(string); ok {
		return value
	}
	if auth, ok := meta["auth"].(map[string]any); ok {
		if value, ok := auth["apiKey"].(string); ok {
			return value
		}
	}
	return ""
}
