package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const defaultSnapshotTable = "brain_snapshots"

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQL keeps one row per key in a relational store. It serves both sqlite and
// postgres; only the driver and placeholder style differ.
type SQL struct {
	driver      string
	dsn         string
	table       string
	placeholder func(n int) string
	db          *sql.DB
	started     atomic.Bool
}

func NewSQLite(path, table string) (*SQL, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite persister requires a path")
	}
	return newSQL("sqlite", path, table, func(int) string { return "?" })
}

func NewPostgres(dsn, table string) (*SQL, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres persister requires a url")
	}
	return newSQL("pgx", dsn, table, func(n int) string { return fmt.Sprintf("$%d", n) })
}

func newSQL(driver, dsn, table string, placeholder func(int) string) (*SQL, error) {
	if table == "" {
		table = defaultSnapshotTable
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name: %q", table)
	}
	return &SQL{driver: driver, dsn: dsn, table: table, placeholder: placeholder}, nil
}

func (s *SQL) Start(ctx context.Context) error {
	db, err := sql.Open(s.driver, s.dsn)
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("%s ping: %w", s.driver, err)
	}
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		snapshot_key TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		updated_at BIGINT NOT NULL
	)`, s.table)
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		_ = db.Close()
		return fmt.Errorf("ensure schema: %w", err)
	}
	s.db = db
	s.started.Store(true)
	return nil
}

func (s *SQL) Verify(snapshot Snapshot) bool {
	return Verify(snapshot)
}

// Save deletes the previous row and inserts the new one in one transaction.
func (s *SQL) Save(ctx context.Context, snapshot Snapshot, key string) error {
	if !s.started.Load() {
		return ErrNotInitialized
	}
	data, err := encode(snapshot)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	del := fmt.Sprintf("DELETE FROM %s WHERE snapshot_key = %s", s.table, s.placeholder(1))
	if _, err := tx.ExecContext(ctx, del, key); err != nil {
		return err
	}
	ins := fmt.Sprintf("INSERT INTO %s (snapshot_key, data, updated_at) VALUES (%s, %s, %s)",
		s.table, s.placeholder(1), s.placeholder(2), s.placeholder(3))
	if _, err := tx.ExecContext(ctx, ins, key, string(data), time.Now().UTC().UnixMilli()); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQL) Recover(ctx context.Context, key string) (Snapshot, error) {
	if !s.started.Load() {
		return nil, ErrNotInitialized
	}
	query := fmt.Sprintf("SELECT data FROM %s WHERE snapshot_key = %s", s.table, s.placeholder(1))
	var data string
	if err := s.db.QueryRowContext(ctx, query, key).Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return decode([]byte(data))
}

func (s *SQL) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
