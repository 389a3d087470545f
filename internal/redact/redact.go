package redact

import (
	"regexp"
)

const placeholder = "[REDACTED]"

var (
	// AWS access key ids, Slack bot/app/user tokens and JWTs.
	tokenPattern = regexp.MustCompile(`\b((AKIA|ASIA)[A-Z0-9]{16}|xox[abprs]-[A-Za-z0-9-]{10,}|xapp-[A-Za-z0-9-]{10,}|eyJ[a-zA-Z0-9_\-]+\.[a-zA-Z0-9_\-]+\.[a-zA-Z0-9_\-]+)`)
	// 40 character secret access keys standing on their own.
	secretPattern = regexp.MustCompile(`(^|[^A-Za-z0-9/+=])([A-Za-z0-9/+]{40})($|[^A-Za-z0-9/+=])`)
	// key=value and key: value pairs with a sensitive key name.
	pairPattern = regexp.MustCompile(`(?i)\b((?:secret|token|password|api[_-]?key|access[_-]?key)[A-Za-z_\-]*\s*[=:]\s*)([^\s,;"']+)`)
)

type Redactor struct{}

func New() *Redactor {
	return &Redactor{}
}

func (r *Redactor) RedactString(input string) string {
	out := pairPattern.ReplaceAllString(input, "${1}"+placeholder)
	out = tokenPattern.ReplaceAllString(out, placeholder)
	return secretPattern.ReplaceAllString(out, "${1}"+placeholder+"${3}")
}

func (r *Redactor) RedactMap(input map[string]any) map[string]any {
	output := map[string]any{}
	for k, v := range input {
		output[k] = r.RedactValue(v)
	}
	return output
}

func (r *Redactor) RedactValue(input any) any {
	switch v := input.(type) {
	case string:
		return r.RedactString(v)
	case map[string]any:
		return r.RedactMap(v)
	case []any:
		redacted := make([]any, 0, len(v))
		for _, item := range v {
			redacted = append(redacted, r.RedactValue(item))
		}
		return redacted
	case []string:
		redacted := make([]string, 0, len(v))
		for _, item := range v {
			redacted = append(redacted, r.RedactString(item))
		}
		return redacted
	default:
		return input
	}
}
