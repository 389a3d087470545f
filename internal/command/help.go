package command

import (
	"context"
	"fmt"
	"strings"
)

const helpCommand = "help"

func (r *SpecRegistry) helpSpec() Spec {
	return Spec{
		Name:        helpCommand,
		Usage:       "help [command]",
		Description: "List commands, or show the usage of one.",
		ToolsetID:   "core",
		MaxArgs:     1,
		Safety:      SafetyReadOnly,
		Handler:     r.help,
	}
}

func (r *SpecRegistry) help(ctx context.Context, req Request) (Result, error) {
	botName := ""
	if req.Context.Config != nil {
		botName = req.Context.Config.Bot.Name + " "
	}
	if len(req.Args) == 1 {
		spec, ok := r.Get(req.Args[0])
		if !ok {
			return Result{}, fmt.Errorf("unknown command: %s", req.Args[0])
		}
		return Result{Text: fmt.Sprintf("`%s%s`: %s\n", botName, usage(spec), spec.Description)}, nil
	}
	var b strings.Builder
	for _, info := range r.List() {
		fmt.Fprintf(&b, "`%s%s`: %s\n", botName, info.Usage, info.Description)
	}
	return Result{Text: b.String(), Data: r.List()}, nil
}
