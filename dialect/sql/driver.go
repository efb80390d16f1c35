package sql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/syssam/velox-storage/dialect"
)

// validIdentifierRe validates SQL identifiers (alphanumeric, underscores, dots for schema.name)
var validIdentifierRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.]*$`)

// isValidIdentifier checks if the string is a valid SQL identifier.
func isValidIdentifier(s string) bool {
	return s != "" && len(s) <= 128 && validIdentifierRe.MatchString(s)
}

// escapeStringValue escapes a string value for safe use in SQL.
// It escapes both single quotes (by doubling) and backslashes (for MySQL compatibility).
func escapeStringValue(s string) string {
	// Fast path: if no escaping needed, return as-is
	if !strings.ContainsAny(s, `'\`) {
		return s
	}
	// Escape backslashes first, then single quotes
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "'", "''")
	return s
}

// Family returns the backend family of a database/sql driver name, e.g.
// dialect.Postgres for "pgx" or "postgres". Unknown names are returned as is.
func Family(driverName string) string {
	name := strings.ToLower(driverName)
	// Prefix matching also covers drivers wrapped with a telemetry driver.
	switch {
	case strings.HasPrefix(name, "pgx"), strings.HasPrefix(name, dialect.Postgres):
		return dialect.Postgres
	case strings.HasPrefix(name, dialect.MySQL):
		return dialect.MySQL
	case strings.HasPrefix(name, dialect.SQLite):
		return dialect.SQLite
	case strings.HasPrefix(name, dialect.SQLServer), strings.HasPrefix(name, "mssql"), strings.HasPrefix(name, "azuresql"):
		return dialect.SQLServer
	}
	return driverName
}

// Driver is a dialect.Driver implementation for SQL based databases.
type Driver struct {
	Conn
	dialect string
}

// NewDriver creates a new Driver with the given Conn and driver name.
func NewDriver(driverName string, c Conn) *Driver {
	return &Driver{dialect: driverName, Conn: c}
}

// Open wraps the database/sql.Open method and returns a dialect.Driver.
func Open(driverName, source string) (*Driver, error) {
	db, err := sql.Open(driverName, source)
	if err != nil {
		return nil, err
	}
	return OpenDB(driverName, db), nil
}

// OpenDB wraps the given database/sql.DB method with a Driver.
func OpenDB(driverName string, db *sql.DB) *Driver {
	return NewDriver(driverName, Conn{ExecQuerier: db, dialect: driverName})
}

// DB returns the underlying *sql.DB instance.
func (d Driver) DB() *sql.DB {
	return d.ExecQuerier.(*sql.DB)
}

// Dialect implements the dialect.Driver method.
func (d Driver) Dialect() string {
	return Family(d.dialect)
}

// Bind returns a copy of the driver rewriting the ? markers of every
// statement into the placeholder syntax of dl.
//
//	drv, _ := sql.Open("pgx", dsn)
//	dl, _ := drv.OpenDialect(ctx, cfg)
//	drv = drv.Bind(dl)
//	drv.ExecContext(ctx, "DELETE FROM t WHERE id = ?", id) // id = $1
func (d *Driver) Bind(dl *dialect.Dialect) *Driver {
	c := d.Conn
	c.rebind = dl.Rebind
	return &Driver{Conn: c, dialect: d.dialect}
}

// OpenDialect probes the database for its metadata and builds its Dialect.
func (d *Driver) OpenDialect(ctx context.Context, cfg dialect.Config, opts ...dialect.Option) (*dialect.Dialect, error) {
	return dialect.Open(ctx, d.ExecQuerier, d.Dialect(), cfg, opts...)
}

// Tx starts and returns a transaction.
func (d *Driver) Tx(ctx context.Context) (dialect.Tx, error) {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// BeginTx starts a transaction with options.
func (d *Driver) BeginTx(ctx context.Context, opts *TxOptions) (*Tx, error) {
	tx, err := d.DB().BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Tx{
		Conn: Conn{ExecQuerier: tx, dialect: d.dialect, rebind: d.rebind},
		Tx:   tx,
	}, nil
}

// Session pins a connection of the pool and sets on it the session
// variables attached to ctx with WithVar. Close resets them and returns the
// connection to the pool.
//
//	ctx = sql.WithVar(ctx, "app.user", "alice")
//	s, err := drv.Session(ctx)
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
func (d *Driver) Session(ctx context.Context) (*Session, error) {
	conn, err := d.DB().Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: session: %w", err)
	}
	c := Conn{ExecQuerier: conn, dialect: d.dialect, rebind: d.rebind}
	reset, err := c.setVars(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: session: set session vars: %w", errors.Join(err, conn.Close()))
	}
	return &Session{Conn: c, conn: conn, reset: reset}, nil
}

// Close closes the underlying connection.
func (d *Driver) Close() error { return d.DB().Close() }

// Session is a pooled connection carrying session variables.
type Session struct {
	Conn
	conn  *sql.Conn
	reset []string
}

// Close resets the session variables and releases the connection.
func (s *Session) Close() error {
	return resetVars(s.conn, s.reset, s.conn.Close)
}

// Tx implements dialect.Tx interface.
type Tx struct {
	Conn
	driver.Tx
}

// ctyVarsKey is the key used for attaching and reading the context variables.
type ctxVarsKey struct{}

// sessionVars holds sessions/transactions variables to set before every statement.
type sessionVars struct {
	vars []struct{ k, v string }
}

// WithVar returns a new context that holds the session variable to be executed before every query.
func WithVar(ctx context.Context, name, value string) context.Context {
	sv, _ := ctx.Value(ctxVarsKey{}).(sessionVars)
	sv.vars = append(sv.vars, struct {
		k, v string
	}{
		k: name,
		v: value,
	})
	return context.WithValue(ctx, ctxVarsKey{}, sv)
}

// ExecQuerier wraps the standard Exec and Query methods.
type ExecQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Conn implements dialect.ExecQuerier given ExecQuerier.
type Conn struct {
	ExecQuerier
	dialect string
	// rebind rewrites ? markers, nil to send statements unchanged.
	rebind func(string) string
}

func (c Conn) bind(query string) string {
	if c.rebind == nil {
		return query
	}
	return c.rebind(query)
}

// ExecContext executes a statement, rewriting its placeholders when the
// connection is bound to a dialect. Session variables are only applied by
// Exec and Query.
func (c Conn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.ExecQuerier.ExecContext(ctx, c.bind(query), args...)
}

// QueryContext executes a query, rewriting its placeholders when the
// connection is bound to a dialect.
func (c Conn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.ExecQuerier.QueryContext(ctx, c.bind(query), args...)
}

// Exec implements the dialect.Exec method.
func (c Conn) Exec(ctx context.Context, query string, args, v any) (rerr error) {
	argv, ok := args.([]any)
	if !ok {
		return fmt.Errorf("dialect/sql: invalid type %T. expect []any for args", args)
	}
	ex, cf, err := c.maySetVars(ctx)
	if err != nil {
		return fmt.Errorf("dialect/sql: exec: set session vars: %w", err)
	}
	if cf != nil {
		defer func() { rerr = errors.Join(rerr, cf()) }()
	}
	query = c.bind(query)
	switch v := v.(type) {
	case nil:
		if _, err := ex.ExecContext(ctx, query, argv...); err != nil {
			return fmt.Errorf("dialect/sql: exec: %w", err)
		}
	case *sql.Result:
		res, err := ex.ExecContext(ctx, query, argv...)
		if err != nil {
			return fmt.Errorf("dialect/sql: exec: %w", err)
		}
		*v = res
	default:
		return fmt.Errorf("dialect/sql: invalid type %T. expect *sql.Result", v)
	}
	return nil
}

// Query implements the dialect.Query method.
func (c Conn) Query(ctx context.Context, query string, args, v any) error {
	vr, ok := v.(*Rows)
	if !ok {
		return fmt.Errorf("dialect/sql: invalid type %T. expect *sql.Rows", v)
	}
	argv, ok := args.([]any)
	if !ok {
		return fmt.Errorf("dialect/sql: invalid type %T. expect []any for args", args)
	}
	ex, cf, err := c.maySetVars(ctx)
	if err != nil {
		return fmt.Errorf("dialect/sql: query: set session vars: %w", err)
	}
	rows, err := ex.QueryContext(ctx, c.bind(query), argv...)
	if err != nil {
		if cf != nil {
			err = errors.Join(err, cf())
		}
		return fmt.Errorf("dialect/sql: query: %w", err)
	}
	*vr = Rows{rows}
	if cf != nil {
		vr.ColumnScanner = rowsWithCloser{rows, cf}
	}
	return nil
}

// sessionStatements returns the statements setting and resetting a session
// variable on the connection's backend. reset is empty when the variable
// lives until the connection is closed.
func (c Conn) sessionStatements(name, value string) (set, reset string, err error) {
	value = escapeStringValue(value)
	switch Family(c.dialect) {
	case dialect.Postgres:
		return fmt.Sprintf("SET %s = '%s'", name, value), fmt.Sprintf("RESET %s", name), nil
	case dialect.MySQL:
		return fmt.Sprintf("SET %s = '%s'", name, value), fmt.Sprintf("SET %s = NULL", name), nil
	case dialect.SQLServer:
		return fmt.Sprintf("EXEC sp_set_session_context N'%s', N'%s'", name, value),
			fmt.Sprintf("EXEC sp_set_session_context N'%s', NULL", name), nil
	default:
		return "", "", fmt.Errorf("session variables are not supported by %q", c.dialect)
	}
}

// maySetVars sets the session variables before executing a query.
func (c Conn) maySetVars(ctx context.Context) (ExecQuerier, func() error, error) {
	sv, _ := ctx.Value(ctxVarsKey{}).(sessionVars)
	if len(sv.vars) == 0 {
		return c.ExecQuerier, nil, nil
	}
	var (
		ex ExecQuerier  // Underlying ExecQuerier.
		cf func() error // Close function.
	)
	switch e := c.ExecQuerier.(type) {
	case *sql.Tx, *sql.Conn:
		ex = e
	case *sql.DB:
		conn, err := e.Conn(ctx)
		if err != nil {
			return nil, nil, err
		}
		ex, cf = conn, conn.Close
	default:
		return nil, nil, fmt.Errorf("unsupported ExecQuerier type: %T", c.ExecQuerier)
	}
	reset, err := c.setVars(ctx, ex)
	if err != nil {
		if cf != nil {
			err = errors.Join(err, cf())
		}
		return nil, nil, err
	}
	// A connection going back to the pool must not keep the variables.
	if cls := cf; cf != nil && len(reset) > 0 {
		cf = func() error { return resetVars(ex, reset, cls) }
	}
	return ex, cf, nil
}

// setVars runs the statements setting the variables of ctx on ex and
// returns the statements resetting them.
func (c Conn) setVars(ctx context.Context, ex ExecQuerier) ([]string, error) {
	sv, _ := ctx.Value(ctxVarsKey{}).(sessionVars)
	var (
		reset []string
		seen  = make(map[string]struct{}, len(sv.vars))
	)
	for _, s := range sv.vars {
		// Validate the variable name to prevent SQL injection
		if !isValidIdentifier(s.k) {
			return nil, fmt.Errorf("invalid session variable name: %q", s.k)
		}
		set, rs, err := c.sessionStatements(s.k, s.v)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[s.k]; !ok {
			reset = append(reset, rs)
			seen[s.k] = struct{}{}
		}
		if _, err := ex.ExecContext(ctx, set); err != nil {
			return nil, err
		}
	}
	return reset, nil
}

// resetVars runs the reset statements on ex, then cls. It uses its own
// context so the cleanup completes after the caller's context is canceled.
func resetVars(ex ExecQuerier, reset []string, cls func() error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, q := range reset {
		if _, err := ex.ExecContext(ctx, q); err != nil {
			return errors.Join(err, cls())
		}
	}
	return cls()
}

var (
	_ dialect.Driver = (*Driver)(nil)
	_ dialect.Tx     = (*Tx)(nil)
)

type (
	// Rows wraps the sql.Rows to avoid locks copy.
	Rows struct{ ColumnScanner }
	// Result is an alias to sql.Result.
	Result = sql.Result
	// NullBool is an alias to sql.NullBool.
	NullBool = sql.NullBool
	// NullInt64 is an alias to sql.NullInt64.
	NullInt64 = sql.NullInt64
	// NullString is an alias to sql.NullString.
	NullString = sql.NullString
	// NullFloat64 is an alias to sql.NullFloat64.
	NullFloat64 = sql.NullFloat64
	// NullTime represents a time.Time that may be null.
	NullTime = sql.NullTime
	// TxOptions holds the transaction options to be used in DB.BeginTx.
	TxOptions = sql.TxOptions
)

// ColumnScanner is the interface that wraps the standard
// sql.Rows methods used for scanning database rows.
type ColumnScanner interface {
	Close() error
	ColumnTypes() ([]*sql.ColumnType, error)
	Columns() ([]string, error)
	Err() error
	Next() bool
	NextResultSet() bool
	Scan(dest ...any) error
}

// rowsWithCloser wraps the ColumnScanner interface with a custom Close hook.
type rowsWithCloser struct {
	ColumnScanner
	closer func() error
}

// Close closes the underlying ColumnScanner and calls the custom closer.
func (r rowsWithCloser) Close() error {
	err := r.ColumnScanner.Close()
	return errors.Join(err, r.closer())
}
