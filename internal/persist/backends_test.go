package persist

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func TestMemoryPersister(t *testing.T) {
	exercisePersister(t, NewMemory())
}

func TestMemoryPersisterCopiesOnSave(t *testing.T) {
	p := NewMemory()
	ctx := context.Background()
	_ = p.Start(ctx)
	snap := Snapshot{"k": "v"}
	if err := p.Save(ctx, snap, "brain"); err != nil {
		t.Fatalf("save: %v", err)
	}
	snap["k"] = "changed"
	got, _ := p.Recover(ctx, "brain")
	if got["k"] != "v" {
		t.Fatalf("expected stored copy, got %#v", got)
	}
}

func TestFilePersister(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "brains")
	p, err := NewFile(dir)
	if err != nil {
		t.Fatalf("new file persister: %v", err)
	}
	exercisePersister(t, p)
	if _, err := os.Stat(filepath.Join(dir, "brain.json")); err != nil {
		t.Fatalf("expected snapshot file: %v", err)
	}
}

func TestFilePersisterEscapesKey(t *testing.T) {
	dir := t.TempDir()
	p, _ := NewFile(dir)
	ctx := context.Background()
	_ = p.Start(ctx)
	if err := p.Save(ctx, Snapshot{"a": "b"}, "../escape"); err != nil {
		t.Fatalf("save: %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("expected snapshot inside dir, got %d entries", len(entries))
	}
	if err := p.Save(ctx, Snapshot{"a": "b"}, ""); err == nil {
		t.Fatalf("expected empty key error")
	}
}

func TestSQLitePersister(t *testing.T) {
	p, err := NewSQLite(filepath.Join(t.TempDir(), "brain.db"), "")
	if err != nil {
		t.Fatalf("new sqlite persister: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	exercisePersister(t, p)
}

func TestRedisPersister(t *testing.T) {
	server := miniredis.RunT(t)
	p, err := NewRedis("redis://"+server.Addr()+"/0", "test:")
	if err != nil {
		t.Fatalf("new redis persister: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	exercisePersister(t, p)
	if !server.Exists("test:brain") {
		t.Fatalf("expected prefixed key in redis")
	}
}

func TestRedisPersisterStartFails(t *testing.T) {
	server := miniredis.RunT(t)
	addr := server.Addr()
	server.Close()
	p, _ := NewRedis("redis://"+addr+"/0", "")
	if err := p.Start(context.Background()); err == nil {
		t.Fatalf("expected ping failure")
	}
}

type fakeMongoCollection struct {
	docs map[string]mongoSnapshot
}

func (f *fakeMongoCollection) ReplaceOne(ctx context.Context, filter interface{}, replacement interface{}, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error) {
	doc := replacement.(mongoSnapshot)
	f.docs[doc.Key] = doc
	return &mongo.UpdateResult{MatchedCount: 1}, nil
}

func (f *fakeMongoCollection) FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult {
	key := filter.(bson.D)[0].Value.(string)
	doc, ok := f.docs[key]
	if !ok {
		return mongo.NewSingleResultFromDocument(bson.D{}, mongo.ErrNoDocuments, nil)
	}
	return mongo.NewSingleResultFromDocument(bson.M{"_id": doc.Key, "brain": doc.Brain, "savedAt": doc.SavedAt}, nil, nil)
}

func TestMongoPersister(t *testing.T) {
	p, err := NewMongo("mongodb://localhost:27017", "", "")
	if err != nil {
		t.Fatalf("new mongo persister: %v", err)
	}
	ctx := context.Background()
	if err := p.Save(ctx, Snapshot{"a": 1}, "brain"); err != ErrNotInitialized {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	p.coll = &fakeMongoCollection{docs: map[string]mongoSnapshot{}}
	p.started.Store(true)
	if err := p.Save(ctx, plainSnapshot(), "brain"); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := p.Recover(ctx, "brain")
	if err != nil || got["name"] != "opsbot" {
		t.Fatalf("unexpected recover: %#v, %v", got, err)
	}
	missing, err := p.Recover(ctx, "other")
	if err != nil || missing != nil {
		t.Fatalf("expected missing snapshot, got %#v, %v", missing, err)
	}
}
