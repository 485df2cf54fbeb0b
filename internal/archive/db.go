// Package archive stores decoded tag broadcasts in SQLite.
package archive

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

const driverName = "sqlite3"

type Options struct {
	// Path is a file path or a "file:" URI. Ignored when DSN is set.
	Path string
	// DSN is passed to the driver unchanged.
	DSN string
	// LogSQL logs every statement at debug level through Logger.
	LogSQL bool
	Logger *slog.Logger
}

// Open opens and pings the database. SQLite serializes writers, so the pool
// is held to one connection.
func Open(opts Options) (*sql.DB, error) {
	dsn, err := buildDSN(opts)
	if err != nil {
		return nil, err
	}

	var db *sql.DB
	if opts.LogSQL {
		db = sql.OpenDB(newLoggingConnector(dsn, opts.Logger))
	} else {
		db, err = sql.Open(driverName, dsn)
		if err != nil {
			return nil, fmt.Errorf("db open: %w", err)
		}
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func buildDSN(opts Options) (string, error) {
	if opts.DSN != "" {
		return opts.DSN, nil
	}
	path := opts.Path
	if path == "" {
		return "", fmt.Errorf("archive: empty path")
	}

	// - busy_timeout: waits instead of failing with "database is locked"
	// - journal_mode=WAL: readers do not block the gateway writer
	params := []string{
		"_busy_timeout=5000",
		"_journal_mode=WAL",
	}

	if strings.HasPrefix(path, "file:") {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		return path + sep + strings.Join(params, "&"), nil
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	return fmt.Sprintf("file:%s?%s", path, strings.Join(params, "&")), nil
}
