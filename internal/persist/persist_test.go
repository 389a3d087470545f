package persist

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"
)

func plainSnapshot() Snapshot {
	return Snapshot{
		"name":    "opsbot",
		"count":   3,
		"ratio":   0.5,
		"enabled": true,
		"nothing": nil,
		"tags":    []any{"a", "b", 1},
		"nested":  map[string]any{"watch": []string{"AlarmName"}},
	}
}

func TestVerifyAcceptsPlainData(t *testing.T) {
	if !Verify(plainSnapshot()) {
		t.Fatalf("expected plain snapshot to verify")
	}
	if !Verify(Snapshot{}) {
		t.Fatalf("expected empty snapshot to verify")
	}
}

func TestVerifyRejectsLossyValues(t *testing.T) {
	cyclic := map[string]any{}
	cyclic["self"] = cyclic
	cases := map[string]Snapshot{
		"func":    {"fn": func() {}},
		"chan":    {"ch": make(chan int)},
		"time":    {"at": time.Unix(0, 0)},
		"struct":  {"s": struct{ A int }{A: 1}},
		"bytes":   {"b": []byte("hi")},
		"nan":     {"n": math.NaN()},
		"intKeys": {"m": map[int]string{1: "a"}},
		"cycle":   {"c": cyclic},
		"nil":     nil,
	}
	for name, snapshot := range cases {
		if Verify(snapshot) {
			t.Fatalf("%s: expected snapshot to be rejected", name)
		}
	}
}

func TestEncodeWrapsNotSerializable(t *testing.T) {
	_, err := encode(Snapshot{"fn": func() {}})
	if !errors.Is(err, ErrNotSerializable) {
		t.Fatalf("expected ErrNotSerializable, got %v", err)
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		opts Options
		want any
	}{
		{Options{}, &Memory{}},
		{Options{Backend: "file", Path: dir}, &File{}},
		{Options{Backend: "redis", URL: "redis://localhost:6379/0"}, &Redis{}},
		{Options{Backend: "sqlite", Path: dir + "/brain.db"}, &SQL{}},
		{Options{Backend: "postgres", URL: "postgres://localhost/opsbot"}, &SQL{}},
		{Options{Backend: "mongo", URL: "mongodb://localhost:27017"}, &Mongo{}},
	}
	for _, tc := range cases {
		p, err := Open(tc.opts)
		if err != nil {
			t.Fatalf("open %q: %v", tc.opts.Backend, err)
		}
		if reflect.TypeOf(p) != reflect.TypeOf(tc.want) {
			t.Fatalf("open %q: got %T", tc.opts.Backend, p)
		}
	}
	if _, err := Open(Options{Backend: "etcd"}); err == nil {
		t.Fatalf("expected unknown backend error")
	}
	if _, err := Open(Options{Backend: "file"}); err == nil {
		t.Fatalf("expected missing path error")
	}
	if _, err := Open(Options{Backend: "sqlite", Path: "x.db", Namespace: "bad;name"}); err == nil {
		t.Fatalf("expected invalid table error")
	}
}

// exercisePersister checks the behaviour every backend shares.
func exercisePersister(t *testing.T, p Persister) {
	t.Helper()
	ctx := context.Background()
	if err := p.Save(ctx, Snapshot{"a": 1}, "brain"); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized before start, got %v", err)
	}
	if _, err := p.Recover(ctx, "brain"); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized before start, got %v", err)
	}
	if err := p.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	empty, err := p.Recover(ctx, "brain")
	if err != nil || empty != nil {
		t.Fatalf("expected empty recover, got %#v, %v", empty, err)
	}
	if err := p.Save(ctx, plainSnapshot(), "brain"); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := p.Recover(ctx, "brain")
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if got["name"] != "opsbot" || got["enabled"] != true || len(got) != len(plainSnapshot()) {
		t.Fatalf("unexpected snapshot: %#v", got)
	}
	if !p.Verify(got) {
		t.Fatalf("expected recovered snapshot to verify")
	}

	err = p.Save(ctx, Snapshot{"fn": func() {}}, "brain")
	if !errors.Is(err, ErrNotSerializable) {
		t.Fatalf("expected ErrNotSerializable, got %v", err)
	}
	kept, err := p.Recover(ctx, "brain")
	if err != nil || kept["name"] != "opsbot" {
		t.Fatalf("expected prior snapshot kept, got %#v, %v", kept, err)
	}

	if err := p.Save(ctx, Snapshot{"only": "this"}, "brain"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	replaced, err := p.Recover(ctx, "brain")
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if len(replaced) != 1 || replaced["only"] != "this" {
		t.Fatalf("expected overwrite, not merge: %#v", replaced)
	}
	other, err := p.Recover(ctx, "other")
	if err != nil || other != nil {
		t.Fatalf("expected keys to be independent, got %#v, %v", other, err)
	}
}
