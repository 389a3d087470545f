package policy

import (
	"errors"
	"fmt"
	"strings"

	awslib "opsbot/internal/aws"
	"opsbot/internal/config"
)

// ErrAccessDenied is returned for every refused authentication or command.
var ErrAccessDenied = errors.New("access denied")

// LocalUser is the identity of callers that present no credential while
// auth.mode is "none".
const LocalUser = "local"

type User struct {
	ID string
}

// Grant is the permission to run one command. It carries the AWS context the
// command runs with.
type Grant struct {
	User    User
	Command string
	AWS     awslib.Context
}

type Authorizer struct {
	mode     string
	allowed  map[string]struct{}
	commands map[string]map[string]struct{}
	apiKeys  map[string]string
	aws      awslib.Context
}

func NewAuthorizer(cfg config.AuthConfig, aws awslib.Context) (*Authorizer, error) {
	switch cfg.Mode {
	case config.AuthModeNone, config.AuthModeAllowlist:
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Mode)
	}
	a := &Authorizer{
		mode:     cfg.Mode,
		allowed:  toSet(cfg.AllowedUsers),
		commands: map[string]map[string]struct{}{},
		apiKeys:  map[string]string{},
		aws:      aws,
	}
	for command, users := range cfg.Commands {
		a.commands[command] = toSet(users)
	}
	for key, user := range cfg.APIKeys {
		key = strings.TrimSpace(key)
		if key != "" {
			a.apiKeys[key] = strings.TrimSpace(user)
		}
	}
	return a, nil
}

// Authenticate maps an API key to a user. Without a known key the caller is
// the local user, which only "none" mode accepts.
func (a *Authorizer) Authenticate(apiKey string) (User, error) {
	if user, ok := a.apiKeys[strings.TrimSpace(apiKey)]; ok && user != "" {
		return User{ID: user}, nil
	}
	if a.mode == config.AuthModeNone {
		return User{ID: LocalUser}, nil
	}
	if apiKey == "" {
		return User{}, fmt.Errorf("%w: api key required", ErrAccessDenied)
	}
	return User{}, fmt.Errorf("%w: unknown api key", ErrAccessDenied)
}

// AuthorizeCommand checks user against the command's own user list when one
// is configured, and against allowed_users otherwise.
func (a *Authorizer) AuthorizeCommand(user User, command string) (Grant, error) {
	grant := Grant{User: user, Command: command, AWS: a.aws}
	if a.mode == config.AuthModeNone {
		return grant, nil
	}
	if user.ID == "" {
		return Grant{}, ErrAccessDenied
	}
	if users, ok := a.commands[command]; ok {
		if _, ok := users[user.ID]; ok {
			return grant, nil
		}
		return Grant{}, fmt.Errorf("%w: %s may not run %s", ErrAccessDenied, user.ID, command)
	}
	if _, ok := a.allowed[user.ID]; ok {
		return grant, nil
	}
	return Grant{}, fmt.Errorf("%w: %s is not an allowed user", ErrAccessDenied, user.ID)
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value != "" {
			set[value] = struct{}{}
		}
	}
	return set
}
