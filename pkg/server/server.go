package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"reflect"
	"strings"
	"sync/atomic"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"opsbot/internal/audit"
	awslib "opsbot/internal/aws"
	"opsbot/internal/command"
	"opsbot/internal/config"
	opsmcp "opsbot/internal/mcp"
	"opsbot/internal/persist"
	"opsbot/internal/policy"
	"opsbot/internal/redact"
	"opsbot/internal/render"
	opsslack "opsbot/internal/slack"
)

const (
	sourceCLI   = "cli"
	execChannel = "cli"
)

type Options struct {
	ConfigPath         string
	ConfigDir          string
	BotName            string
	Mode               string
	Region             string
	Toolsets           []string
	ReadOnly           bool
	LogLevel           string
	AuthMode           string
	PersistenceBackend string
	// Exec runs one command line and exits, e.g. "count ALARM".
	Exec string
	// User is the identity exec mode runs as.
	User      string
	Version   string
	Stdout    io.Writer
	Stderr    io.Writer
	Transport sdkmcp.Transport
}

var runSlack = opsslack.Run

func Run(ctx context.Context, opts Options) error {
	errOut := opts.Stderr
	if errOut == nil {
		errOut = os.Stderr
	}
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	configPath := opts.ConfigPath
	if configPath == "" {
		if env := os.Getenv("OPSBOT_CONFIG"); env != "" {
			configPath = env
		}
	}
	overrides := overridesFrom(opts)

	cfg, err := loadConfig(configPath, opts.ConfigDir, overrides)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.LogLevel, errOut)

	rt, err := buildRuntime(ctx, cfg, errOut, logger, nil)
	if err != nil {
		return fmt.Errorf("init failed: %w", err)
	}
	var current atomic.Pointer[runtime]
	current.Store(rt)
	defer func() {
		current.Load().close(context.Background(), true)
	}()

	switch cfg.Bot.Mode {
	case config.ModeExec:
		return runExec(ctx, rt.dispatcher, opts, stdout)
	case config.ModeMCP:
		return runMCP(ctx, &current, configPath, opts, overrides, errOut, logger)
	default:
		stop := watchReload(ctx, &current, configPath, opts.ConfigDir, overrides, errOut, logger, nil)
		defer stop()
		err := runSlack(ctx, opsslack.Options{
			BotToken: cfg.Slack.BotToken,
			AppToken: cfg.Slack.AppToken,
			Debug:    cfg.Slack.Debug,
			Logger:   logger,
		}, func() *command.Dispatcher {
			return current.Load().dispatcher
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("slack relay error: %w", err)
		}
		return nil
	}
}

func overridesFrom(opts Options) config.Overrides {
	overrides := config.Overrides{}
	if opts.BotName != "" {
		overrides.BotName = &opts.BotName
	}
	mode := opts.Mode
	if opts.Exec != "" {
		mode = config.ModeExec
	}
	if mode != "" {
		overrides.Mode = &mode
	}
	if opts.Region != "" {
		overrides.Region = &opts.Region
	}
	if len(opts.Toolsets) > 0 {
		overrides.Toolsets = &opts.Toolsets
	}
	if opts.ReadOnly {
		overrides.ReadOnly = &opts.ReadOnly
	}
	if opts.LogLevel != "" {
		overrides.LogLevel = &opts.LogLevel
	}
	if opts.AuthMode != "" {
		overrides.AuthMode = &opts.AuthMode
	}
	if opts.PersistenceBackend != "" {
		overrides.PersistenceBackend = &opts.PersistenceBackend
	}
	return overrides
}

func loadConfig(path, dir string, overrides config.Overrides) (config.Config, error) {
	cfg, err := config.Load(path, dir, overrides)
	if err != nil {
		return cfg, fmt.Errorf("config load failed: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLogger(level string, out io.Writer) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: lvl}))
}

func runExec(ctx context.Context, dispatcher *command.Dispatcher, opts Options, out io.Writer) error {
	line := strings.TrimSpace(opts.Exec)
	if line == "" {
		return errors.New("exec mode needs a command")
	}
	if fields := strings.Fields(line); fields[0] != dispatcher.BotName() {
		line = dispatcher.BotName() + " " + line
	}
	user := opts.User
	if user == "" {
		user = policy.LocalUser
	}
	reply, handled, err := dispatcher.Handle(ctx, command.Message{Text: line, User: user, Channel: execChannel}, sourceCLI)
	if !handled {
		name, _, _ := dispatcher.Parse(line)
		return fmt.Errorf("%w: %s", command.ErrUnknownCommand, name)
	}
	if err != nil {
		return errors.New(dispatcher.Redact(err.Error()))
	}
	reply = dispatcher.Redact(reply)
	if !strings.HasSuffix(reply, "\n") {
		reply += "\n"
	}
	_, err = io.WriteString(out, reply)
	return err
}

func runMCP(ctx context.Context, current *atomic.Pointer[runtime], configPath string, opts Options, overrides config.Overrides, errOut io.Writer, logger *slog.Logger) error {
	server := sdkmcp.NewServer(&sdkmcp.Implementation{Name: "opsbot", Version: opts.Version}, nil)
	toolNames, err := opsmcp.RegisterSDKTools(server, current.Load().dispatcher)
	if err != nil {
		return fmt.Errorf("tool registration failed: %w", err)
	}
	stop := watchReload(ctx, current, configPath, opts.ConfigDir, overrides, errOut, logger, func(rt *runtime) {
		if len(toolNames) > 0 {
			server.RemoveTools(toolNames...)
		}
		names, err := opsmcp.RegisterSDKTools(server, rt.dispatcher)
		if err != nil {
			logger.Error("tool registration failed", "err", err)
		}
		toolNames = names
	})
	defer stop()

	transport := opts.Transport
	if transport == nil {
		transport = &sdkmcp.StdioTransport{}
	}
	if err := server.Run(ctx, transport); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// watchReload rebuilds the runtime on SIGHUP and swaps it in. The persister
// is kept when the persistence settings did not change.
func watchReload(ctx context.Context, current *atomic.Pointer[runtime], configPath, configDir string, overrides config.Overrides, errOut io.Writer, logger *slog.Logger, onSwap func(*runtime)) func() {
	reloadCh := make(chan os.Signal, 1)
	notifyReload(reloadCh)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-reloadCh:
				old := current.Load()
				rt, err := reload(ctx, old, configPath, configDir, overrides, errOut, logger)
				if err != nil {
					logger.Error("config reload failed", "err", err)
					continue
				}
				current.Store(rt)
				if onSwap != nil {
					onSwap(rt)
				}
				old.close(ctx, old.persister != rt.persister)
				logger.Info("config reloaded", "commands", rt.dispatcher.Registry().Names())
			}
		}
	}()
	return func() {
		stopReload(reloadCh)
		close(done)
	}
}

func reload(ctx context.Context, old *runtime, configPath, configDir string, overrides config.Overrides, errOut io.Writer, logger *slog.Logger) (*runtime, error) {
	cfg, err := loadConfig(configPath, configDir, overrides)
	if err != nil {
		return nil, err
	}
	var keep persist.Persister
	if old != nil && reflect.DeepEqual(old.cfg.Persistence, cfg.Persistence) {
		keep = old.persister
	}
	return buildRuntime(ctx, cfg, errOut, logger, keep)
}

type runtime struct {
	cfg        config.Config
	dispatcher *command.Dispatcher
	persister  persist.Persister
	auditOut   io.Closer
}

// buildRuntime wires one generation of the bot. A nil persister opens and
// starts the configured backend.
func buildRuntime(ctx context.Context, cfg config.Config, errOut io.Writer, logger *slog.Logger, persister persist.Persister) (*runtime, error) {
	rt := &runtime{cfg: cfg}
	awsCtx := awslib.NewContext(cfg.AWS.Region, cfg.AWS.AccessKeyID, cfg.AWS.SecretAccessKey)
	authorizer, err := policy.NewAuthorizer(cfg.Auth, awsCtx)
	if err != nil {
		return nil, err
	}

	var auditOut io.Writer = errOut
	if cfg.Audit.Path != "" {
		file, err := os.OpenFile(cfg.Audit.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		rt.auditOut = file
		auditOut = file
	}

	opened := persister == nil
	if opened {
		persister, err = persist.Open(persist.Options{
			Backend:   cfg.Persistence.Backend,
			Path:      cfg.Persistence.Path,
			URL:       cfg.Persistence.URL,
			Database:  cfg.Persistence.Database,
			Namespace: cfg.Persistence.Namespace,
		})
		if err != nil {
			rt.close(ctx, false)
			return nil, err
		}
		if err := persister.Start(ctx); err != nil {
			rt.persister = persister
			rt.close(ctx, true)
			return nil, fmt.Errorf("start persistence: %w", err)
		}
	}
	rt.persister = persister

	reg := command.NewRegistry(&cfg)
	toolsetCtx := command.ToolsetContext{
		Config:    &cfg,
		Policy:    authorizer,
		Renderer:  render.NewRenderer(),
		Redactor:  redact.New(),
		Audit:     audit.NewLogger(auditOut),
		Logger:    logger,
		Persister: persister,
		Services:  command.NewServiceRegistry(),
		Registry:  reg,
	}
	for _, id := range cfg.Toolsets {
		factory, ok := command.ToolsetFactoryFor(id)
		if !ok {
			rt.close(ctx, opened)
			return nil, fmt.Errorf("unknown toolset: %s", id)
		}
		toolset := factory()
		if err := toolset.Init(toolsetCtx); err != nil {
			rt.close(ctx, opened)
			return nil, fmt.Errorf("init toolset %s: %w", id, err)
		}
		if err := toolset.Register(reg); err != nil {
			rt.close(ctx, opened)
			return nil, fmt.Errorf("register toolset %s: %w", id, err)
		}
	}
	rt.dispatcher = command.NewDispatcher(reg, toolsetCtx)
	return rt, nil
}

// close releases the audit file and, when closePersister is set, the
// persister's connection.
func (rt *runtime) close(ctx context.Context, closePersister bool) {
	if rt == nil {
		return
	}
	if rt.auditOut != nil {
		_ = rt.auditOut.Close()
	}
	if !closePersister || rt.persister == nil {
		return
	}
	switch p := rt.persister.(type) {
	case interface{ Close(context.Context) error }:
		_ = p.Close(ctx)
	case io.Closer:
		_ = p.Close()
	}
}
