package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	ModeSlack = "slack"
	ModeMCP   = "mcp"
	ModeExec  = "exec"

	AuthModeNone      = "none"
	AuthModeAllowlist = "allowlist"
)

type Config struct {
	LogLevel    string            `toml:"log_level" yaml:"log_level"`
	ReadOnly    bool              `toml:"read_only" yaml:"read_only"`
	Toolsets    []string          `toml:"toolsets" yaml:"toolsets"`
	Bot         BotConfig         `toml:"bot" yaml:"bot"`
	AWS         AWSConfig         `toml:"aws" yaml:"aws"`
	Slack       SlackConfig       `toml:"slack" yaml:"slack"`
	Auth        AuthConfig        `toml:"auth" yaml:"auth"`
	Alarms      AlarmsConfig      `toml:"alarms" yaml:"alarms"`
	Persistence PersistenceConfig `toml:"persistence" yaml:"persistence"`
	Timeouts    TimeoutConfig     `toml:"timeouts" yaml:"timeouts"`
	Audit       AuditConfig       `toml:"audit" yaml:"audit"`
}

type BotConfig struct {
	Name string `toml:"name" yaml:"name"`
	Mode string `toml:"mode" yaml:"mode"`
}

type AWSConfig struct {
	Region          string `toml:"region" yaml:"region"`
	AccessKeyID     string `toml:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key" yaml:"secret_access_key"`
}

type SlackConfig struct {
	BotToken string `toml:"bot_token" yaml:"bot_token"`
	AppToken string `toml:"app_token" yaml:"app_token"`
	Debug    bool   `toml:"debug" yaml:"debug"`
}

// AuthConfig decides who may run which command. Mode has no implicit value:
// "none" must be written out to let everyone in.
type AuthConfig struct {
	Mode         string              `toml:"mode" yaml:"mode"`
	AllowedUsers []string            `toml:"allowed_users" yaml:"allowed_users"`
	Commands     map[string][]string `toml:"commands" yaml:"commands"`
	// APIKeys maps MCP API keys to the user they authenticate as.
	APIKeys map[string]string `toml:"api_keys" yaml:"api_keys"`
}

type AlarmsConfig struct {
	Watchlist []string `toml:"watchlist" yaml:"watchlist"`
	Ignore    []string `toml:"ignore" yaml:"ignore"`
}

type PersistenceConfig struct {
	Backend   string `toml:"backend" yaml:"backend"`
	Key       string `toml:"key" yaml:"key"`
	Path      string `toml:"path" yaml:"path"`
	URL       string `toml:"url" yaml:"url"`
	Database  string `toml:"database" yaml:"database"`
	Namespace string `toml:"namespace" yaml:"namespace"`
}

type TimeoutConfig struct {
	DefaultSeconds int            `toml:"default_seconds" yaml:"default_seconds"`
	MaxSeconds     int            `toml:"max_seconds" yaml:"max_seconds"`
	PerCommand     map[string]int `toml:"per_command" yaml:"per_command"`
}

type AuditConfig struct {
	// Path is the JSON-lines audit file; empty writes to stderr.
	Path string `toml:"path" yaml:"path"`
}

type Overrides struct {
	BotName            *string
	Mode               *string
	Region             *string
	Toolsets           *[]string
	ReadOnly           *bool
	LogLevel           *string
	AuthMode           *string
	PersistenceBackend *string
}

func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Toolsets: []string{"aws", "brain"},
		Bot: BotConfig{
			Name: "opsbot",
			Mode: ModeSlack,
		},
		Persistence: PersistenceConfig{
			Backend: "memory",
		},
		Timeouts: TimeoutConfig{
			DefaultSeconds: 30,
			MaxSeconds:     120,
		},
	}
}

// Load reads path, then every drop-in file in dir in name order, then the
// environment, and applies overrides last.
func Load(path string, dir string, overrides Overrides) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		fileCfg, err := readFile(path)
		if err != nil {
			return cfg, err
		}
		merge(&cfg, fileCfg)
	}

	if dir != "" {
		files, err := dropInFiles(dir)
		if err != nil {
			return cfg, err
		}
		for _, file := range files {
			fileCfg, err := readFile(file)
			if err != nil {
				return cfg, err
			}
			merge(&cfg, fileCfg)
		}
	}

	applyEnv(&cfg)
	applyOverrides(&cfg, overrides)
	return cfg, nil
}

// Validate rejects configurations the bot cannot start with.
func (c Config) Validate() error {
	name := strings.TrimSpace(c.Bot.Name)
	if name == "" || strings.ContainsAny(name, " \t\n") {
		return fmt.Errorf("bot.name must be a single word, got %q", c.Bot.Name)
	}
	switch c.Bot.Mode {
	case ModeSlack, ModeMCP, ModeExec:
	default:
		return fmt.Errorf("bot.mode must be one of slack, mcp, exec; got %q", c.Bot.Mode)
	}
	switch c.Auth.Mode {
	case AuthModeNone, AuthModeAllowlist:
	case "":
		return errors.New("auth.mode must be set explicitly to \"none\" or \"allowlist\"")
	default:
		return fmt.Errorf("unknown auth.mode %q", c.Auth.Mode)
	}
	if c.Timeouts.DefaultSeconds < 0 || c.Timeouts.MaxSeconds < 0 {
		return errors.New("timeouts must not be negative")
	}
	if c.Bot.Mode == ModeSlack && (c.Slack.BotToken == "" || c.Slack.AppToken == "") {
		return errors.New("slack mode requires slack.bot_token and slack.app_token")
	}
	return nil
}

// PersistenceKey is the key the brain is stored under.
func (c Config) PersistenceKey() string {
	if key := strings.TrimSpace(c.Persistence.Key); key != "" {
		return key
	}
	return c.Bot.Name
}

func readFile(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return cfg, nil
}

func dropInFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".toml", ".yaml", ".yml":
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func merge(dst *Config, src Config) {
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
	if src.ReadOnly {
		dst.ReadOnly = true
	}
	if len(src.Toolsets) > 0 {
		dst.Toolsets = append([]string{}, src.Toolsets...)
	}
	if src.Bot.Name != "" {
		dst.Bot.Name = src.Bot.Name
	}
	if src.Bot.Mode != "" {
		dst.Bot.Mode = src.Bot.Mode
	}
	if src.AWS.Region != "" {
		dst.AWS.Region = src.AWS.Region
	}
	if src.AWS.AccessKeyID != "" {
		dst.AWS.AccessKeyID = src.AWS.AccessKeyID
	}
	if src.AWS.SecretAccessKey != "" {
		dst.AWS.SecretAccessKey = src.AWS.SecretAccessKey
	}
	if src.Slack.BotToken != "" {
		dst.Slack.BotToken = src.Slack.BotToken
	}
	if src.Slack.AppToken != "" {
		dst.Slack.AppToken = src.Slack.AppToken
	}
	if src.Slack.Debug {
		dst.Slack.Debug = true
	}
	if src.Auth.Mode != "" {
		dst.Auth.Mode = src.Auth.Mode
	}
	if len(src.Auth.AllowedUsers) > 0 {
		dst.Auth.AllowedUsers = append([]string{}, src.Auth.AllowedUsers...)
	}
	if len(src.Auth.Commands) > 0 {
		if dst.Auth.Commands == nil {
			dst.Auth.Commands = map[string][]string{}
		}
		for command, users := range src.Auth.Commands {
			dst.Auth.Commands[command] = append([]string{}, users...)
		}
	}
	if len(src.Auth.APIKeys) > 0 {
		if dst.Auth.APIKeys == nil {
			dst.Auth.APIKeys = map[string]string{}
		}
		for key, user := range src.Auth.APIKeys {
			dst.Auth.APIKeys[key] = user
		}
	}
	if len(src.Alarms.Watchlist) > 0 {
		dst.Alarms.Watchlist = append([]string{}, src.Alarms.Watchlist...)
	}
	if len(src.Alarms.Ignore) > 0 {
		dst.Alarms.Ignore = append([]string{}, src.Alarms.Ignore...)
	}
	if src.Persistence.Backend != "" {
		dst.Persistence.Backend = src.Persistence.Backend
	}
	if src.Persistence.Key != "" {
		dst.Persistence.Key = src.Persistence.Key
	}
	if src.Persistence.Path != "" {
		dst.Persistence.Path = src.Persistence.Path
	}
	if src.Persistence.URL != "" {
		dst.Persistence.URL = src.Persistence.URL
	}
	if src.Persistence.Database != "" {
		dst.Persistence.Database = src.Persistence.Database
	}
	if src.Persistence.Namespace != "" {
		dst.Persistence.Namespace = src.Persistence.Namespace
	}
	if src.Timeouts.DefaultSeconds != 0 {
		dst.Timeouts.DefaultSeconds = src.Timeouts.DefaultSeconds
	}
	if src.Timeouts.MaxSeconds != 0 {
		dst.Timeouts.MaxSeconds = src.Timeouts.MaxSeconds
	}
	if len(src.Timeouts.PerCommand) > 0 {
		if dst.Timeouts.PerCommand == nil {
			dst.Timeouts.PerCommand = map[string]int{}
		}
		for command, seconds := range src.Timeouts.PerCommand {
			dst.Timeouts.PerCommand[command] = seconds
		}
	}
	if src.Audit.Path != "" {
		dst.Audit.Path = src.Audit.Path
	}
}

// applyEnv fills Slack tokens from the environment when no file set them.
// AWS keys are left to the SDK's default credential chain.
func applyEnv(cfg *Config) {
	if cfg.Slack.BotToken == "" {
		cfg.Slack.BotToken = strings.TrimSpace(os.Getenv("SLACK_BOT_TOKEN"))
	}
	if cfg.Slack.AppToken == "" {
		cfg.Slack.AppToken = strings.TrimSpace(os.Getenv("SLACK_APP_TOKEN"))
	}
}

func applyOverrides(cfg *Config, overrides Overrides) {
	if overrides.BotName != nil {
		cfg.Bot.Name = *overrides.BotName
	}
	if overrides.Mode != nil {
		cfg.Bot.Mode = *overrides.Mode
	}
	if overrides.Region != nil {
		cfg.AWS.Region = *overrides.Region
	}
	if overrides.Toolsets != nil {
		cfg.Toolsets = append([]string{}, (*overrides.Toolsets)...)
	}
	if overrides.ReadOnly != nil {
		cfg.ReadOnly = *overrides.ReadOnly
	}
	if overrides.LogLevel != nil {
		cfg.LogLevel = *overrides.LogLevel
	}
	if overrides.AuthMode != nil {
		cfg.Auth.Mode = *overrides.AuthMode
	}
	if overrides.PersistenceBackend != nil {
		cfg.Persistence.Backend = *overrides.PersistenceBackend
	}
}
