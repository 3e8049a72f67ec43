package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// PoolOptions tunes the database/sql connection pool.
type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// New opens a MySQL connection pool and verifies connectivity.
func New(ctx context.Context, dsn string, opts PoolOptions) (*sql.DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("platform/db: parse dsn: %w", err)
	}
	cfg.ParseTime = true
	if cfg.Loc == nil {
		cfg.Loc = time.UTC
	}

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("platform/db: new connector: %w", err)
	}

	pool := sql.OpenDB(connector)
	if opts.MaxOpenConns > 0 {
		pool.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		pool.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		pool.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.PingContext(pingCtx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("platform/db: ping: %w", err)
	}

	return pool, nil
}

const (
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
	errDuplicateEntry  = 1062
	errRowIsReferenced = 1451
	errNoReferencedRow = 1452
)

// IsDuplicate reports whether err is a MySQL unique-key violation.
func IsDuplicate(err error) bool {
	return mysqlErrorNumber(err) == errDuplicateEntry
}

// IsDuplicateKey reports whether err is a unique-key violation of the named
// index. MySQL 8 reports the key as 'table.index', older servers as 'index'.
func IsDuplicateKey(err error, index string) bool {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) || myErr.Number != errDuplicateEntry {
		return false
	}
	return strings.HasSuffix(myErr.Message, "'"+index+"'") || strings.Contains(myErr.Message, "."+index+"'")
}

// IsRetryable reports whether err aborted the transaction on a deadlock or
// lock wait timeout, so running it again may succeed.
func IsRetryable(err error) bool {
	n := mysqlErrorNumber(err)
	return n == errDeadlock || n == errLockWaitTimeout
}

// IsForeignKeyViolation reports whether err is a MySQL foreign-key violation.
func IsForeignKeyViolation(err error) bool {
	n := mysqlErrorNumber(err)
	return n == errRowIsReferenced || n == errNoReferencedRow
}

func mysqlErrorNumber(err error) uint16 {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number
	}
	return 0
}
