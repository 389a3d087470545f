package persist

import (
	"fmt"
	"strings"
)

const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
)

// Options selects and configures a backend.
type Options struct {
	Backend string
	// Path is the snapshot directory for file and the database file for sqlite.
	Path string
	// URL is the connection string for redis, postgres and mongo.
	URL      string
	Database string
	// Namespace is the redis key prefix, the SQL table or the mongo collection.
	Namespace string
}

// Open builds the backend named in opts. The result still needs Start.
func Open(opts Options) (Persister, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", BackendMemory:
		return NewMemory(), nil
	case BackendFile:
		return NewFile(opts.Path)
	case BackendRedis:
		return NewRedis(opts.URL, opts.Namespace)
	case BackendSQLite:
		return NewSQLite(opts.Path, opts.Namespace)
	case BackendPostgres:
		return NewPostgres(opts.URL, opts.Namespace)
	case BackendMongo:
		return NewMongo(opts.URL, opts.Database, opts.Namespace)
	default:
		return nil, fmt.Errorf("unknown persistence backend: %s", opts.Backend)
	}
}
