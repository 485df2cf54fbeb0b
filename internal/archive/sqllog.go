package archive

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// loggingConnector opens sqlite3 connections that log every statement.
type loggingConnector struct {
	dsn    string
	logger *slog.Logger
	driver *sqlite3.SQLiteDriver
}

type loggingConn struct {
	conn   driver.Conn
	logger *slog.Logger
}

type loggingStmt struct {
	stmt   driver.Stmt
	query  string
	logger *slog.Logger
}

func newLoggingConnector(dsn string, logger *slog.Logger) driver.Connector {
	if logger == nil {
		logger = slog.Default()
	}
	return &loggingConnector{dsn: dsn, logger: logger, driver: &sqlite3.SQLiteDriver{}}
}

func (c *loggingConnector) Driver() driver.Driver { return c.driver }

func (c *loggingConnector) Connect(context.Context) (driver.Conn, error) {
	conn, err := c.driver.Open(c.dsn)
	if err != nil {
		return nil, err
	}
	return &loggingConn{conn: conn, logger: c.logger}, nil
}

func (c *loggingConn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

func (c *loggingConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	prep, ok := c.conn.(driver.ConnPrepareContext)
	if !ok {
		return nil, errors.New("sqlite3-log: driver does not support PrepareContext")
	}
	stmt, err := prep.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return &loggingStmt{stmt: stmt, query: query, logger: c.logger}, nil
}

// ExecContext lets multi-statement scripts such as migrations run without
// being split into prepared statements.
func (c *loggingConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	execer, ok := c.conn.(driver.ExecerContext)
	if !ok {
		return nil, driver.ErrSkip
	}
	logQuery(c.logger, "exec", query, args)
	return execer.ExecContext(ctx, query, args)
}

func (c *loggingConn) Close() error { return c.conn.Close() }

func (c *loggingConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *loggingConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	beginTx, ok := c.conn.(driver.ConnBeginTx)
	if !ok {
		return nil, errors.New("sqlite3-log: driver does not support BeginTx")
	}
	return beginTx.BeginTx(ctx, opts)
}

func (s *loggingStmt) Close() error { return s.stmt.Close() }

func (s *loggingStmt) NumInput() int { return s.stmt.NumInput() }

func (s *loggingStmt) Exec(args []driver.Value) (driver.Result, error) {
	return s.ExecContext(context.Background(), valuesToNamed(args))
}

func (s *loggingStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	execCtx, ok := s.stmt.(driver.StmtExecContext)
	if !ok {
		return nil, errors.New("sqlite3-log: statement does not support ExecContext")
	}
	logQuery(s.logger, "exec", s.query, args)
	return execCtx.ExecContext(ctx, args)
}

func (s *loggingStmt) Query(args []driver.Value) (driver.Rows, error) {
	return s.QueryContext(context.Background(), valuesToNamed(args))
}

func (s *loggingStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	queryCtx, ok := s.stmt.(driver.StmtQueryContext)
	if !ok {
		return nil, errors.New("sqlite3-log: statement does not support QueryContext")
	}
	logQuery(s.logger, "query", s.query, args)
	return queryCtx.QueryContext(ctx, args)
}

func logQuery(logger *slog.Logger, op, query string, args []driver.NamedValue) {
	logger.Debug("sql", "op", op, "sql", query, "args", formatArgs(args))
}

func valuesToNamed(args []driver.Value) []driver.NamedValue {
	out := make([]driver.NamedValue, len(args))
	for i, v := range args {
		out[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}
	return out
}

func formatArgs(args []driver.NamedValue) []string {
	out := make([]string, len(args))
	for i, a := range args {
		v := formatArg(a.Value)
		if a.Name != "" {
			v = a.Name + "=" + v
		}
		out[i] = v
	}
	return out
}

func formatArg(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return fmt.Sprintf("x'%X'", t)
	default:
		return fmt.Sprint(t)
	}
}
