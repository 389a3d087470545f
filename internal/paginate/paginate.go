// Package paginate drains continuation-token listing APIs.
package paginate

import (
	"context"
	"fmt"
	"strings"
)

// UpstreamError reports a failed call to an external API. The cause is kept
// unchanged and reachable through errors.Is/As.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("upstream error: %v", e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Upstream wraps err as an UpstreamError for op. nil stays nil.
func Upstream(op string, err error) error {
	if err == nil {
		return nil
	}
	return &UpstreamError{Op: op, Err: err}
}

// PageFunc fetches one page. token is nil for the first call. A nil or empty
// next token marks the last page.
type PageFunc[T any] func(ctx context.Context, token *string) (items []T, next *string, err error)

// All calls fetch until a page omits the continuation token and returns the
// items of every page in order. Pages are requested one at a time. The first
// failing page aborts the fetch; no partial result is returned.
func All[T any](ctx context.Context, op string, fetch PageFunc[T]) ([]T, error) {
	var (
		out   []T
		token *string
	)
	for {
		items, next, err := fetch(ctx, token)
		if err != nil {
			return nil, Upstream(op, err)
		}
		out = append(out, items...)
		if next == nil || strings.TrimSpace(*next) == "" {
			return out, nil
		}
		token = next
	}
}
