// Package sql wraps database/sql connections for the dialect package.
//
// A Driver pairs a *sql.DB with its backend family, detected from the
// database/sql driver name:
//
//	drv, err := sql.Open("pgx", dsn)
//	drv.Dialect() // "postgres"
//
// Once probed, a Driver can be bound to its Dialect so that statements
// written with ? markers are sent in the backend's placeholder syntax:
//
//	dl, err := drv.OpenDialect(ctx, cfg)
//	drv = drv.Bind(dl)
//	pred, err := dl.SecurityPredicate("h.id", principals)
//	rows, err := drv.QueryContext(ctx, "SELECT h.id FROM hierarchy h WHERE "+pred.SQL, pred.Args...)
//
// # Session Variables
//
// Variables attached with WithVar are set on a pinned connection and reset
// before the connection returns to the pool. A Session keeps them for
// several statements; Exec and Query set them for one:
//
//	ctx = sql.WithVar(ctx, "app.user", "alice")
//	s, err := drv.Session(ctx)
//	defer s.Close()
//	report, err := dl.ExecuteScript(ctx, s, dialect.CategoryAfterTableCreation, nil)
//
// PostgreSQL and MySQL use SET, SQL Server uses sp_set_session_context.
// SQLite has no session variables.
//
// # Statistics
//
// StatsConn counts the statements run on any ExecQuerier and reports slow
// ones into a shared QueryStats. DebugConn logs every statement at debug
// level with its bound placeholders.
//
// The sqlerr subpackage classifies driver errors and the schema subpackage
// checks a live schema against the expected tables.
package sql
