package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"opsbot/pkg/server"

	_ "opsbot/toolsets/aws"
	_ "opsbot/toolsets/brain"
)

const version = "0.1.0"

var runServer = server.Run
var exit = os.Exit
var loadEnv = func() error { return godotenv.Load() }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A missing .env file is fine; the environment may already be set.
	_ = loadEnv()

	flags := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	configPath := flags.String("config", "", "config file path")
	configDir := flags.String("config-dir", "", "directory of drop-in config files")
	name := flags.String("name", "", "bot name that prefixes every command")
	mode := flags.String("mode", "", "run mode: slack, mcp or exec")
	region := flags.String("region", "", "AWS region")
	toolsets := flags.String("toolsets", "", "comma-separated toolsets to enable")
	readOnly := flags.Bool("read-only", false, "disable commands that write")
	logLevel := flags.String("log-level", "", "log level")
	authMode := flags.String("auth", "", "authorization mode: none or allowlist")
	persistence := flags.String("persistence", "", "persistence backend")
	execLine := flags.String("exec", "", "run one command, print the reply and exit")
	user := flags.String("user", "", "user to run -exec as")

	_ = flags.Parse(os.Args[1:])

	options := server.Options{
		ConfigPath: *configPath,
		Version:    version,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
	}
	set := map[string]bool{}
	flags.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["config-dir"] {
		options.ConfigDir = *configDir
	}
	if set["name"] {
		options.BotName = *name
	}
	if set["mode"] {
		options.Mode = *mode
	}
	if set["region"] {
		options.Region = *region
	}
	if set["toolsets"] {
		options.Toolsets = parseCSV(*toolsets)
	}
	if set["read-only"] {
		options.ReadOnly = *readOnly
	}
	if set["log-level"] {
		options.LogLevel = *logLevel
	}
	if set["auth"] {
		options.AuthMode = *authMode
	}
	if set["persistence"] {
		options.PersistenceBackend = *persistence
	}
	if set["exec"] {
		// "-exec count ALARM" leaves ALARM as a positional argument.
		options.Exec = strings.TrimSpace(strings.Join(append([]string{*execLine}, flags.Args()...), " "))
	}
	if set["user"] {
		options.User = *user
	}

	if err := runServer(ctx, options); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		exit(1)
	}
}

func parseCSV(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	var out []string
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
