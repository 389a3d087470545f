package paginate

import (
	"context"
	"errors"
	"testing"
)

func TestAllFollowsTokens(t *testing.T) {
	var seen []string
	fetch := func(ctx context.Context, token *string) ([]string, *string, error) {
		if token == nil {
			seen = append(seen, "")
			next := "next"
			return []string{"AlarmName"}, &next, nil
		}
		seen = append(seen, *token)
		return []string{"AlarmName2"}, nil, nil
	}
	items, err := All(context.Background(), "describe", fetch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 || items[0] != "AlarmName" || items[1] != "AlarmName2" {
		t.Fatalf("unexpected items: %#v", items)
	}
	if len(seen) != 2 || seen[1] != "next" {
		t.Fatalf("expected token passed back, got %#v", seen)
	}
}

func TestAllStopsOnEmptyToken(t *testing.T) {
	calls := 0
	fetch := func(ctx context.Context, token *string) ([]int, *string, error) {
		calls++
		empty := ""
		return []int{calls}, &empty, nil
	}
	items, err := All(context.Background(), "list", fetch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 || len(items) != 1 {
		t.Fatalf("expected single page, got %d calls and %#v", calls, items)
	}
}

func TestAllAbortsOnPageError(t *testing.T) {
	boom := errors.New("boom")
	fetch := func(ctx context.Context, token *string) ([]int, *string, error) {
		if token == nil {
			next := "next"
			return []int{1}, &next, nil
		}
		return nil, nil, boom
	}
	items, err := All(context.Background(), "list", fetch)
	if items != nil {
		t.Fatalf("expected no partial result, got %#v", items)
	}
	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected UpstreamError, got %T", err)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("expected cause to be preserved")
	}
	if upstream.Op != "list" {
		t.Fatalf("unexpected op %q", upstream.Op)
	}
}

func TestUpstreamNil(t *testing.T) {
	if Upstream("op", nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
	if err := Upstream("", errors.New("x")); err.Error() != "upstream error: x" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
