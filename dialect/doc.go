// Package dialect isolates the differences between the SQL databases a
// document repository can be stored in.
//
// A Dialect is selected once per repository from the product name the
// database reports, and then answers every backend-specific question the
// storage layer asks:
//
//   - how an abstract column type is declared (MapType, ColumnDDL) and
//     whether an introspected column is compatible with it (IsCompatible)
//   - how logical names become physical identifiers (TableName, ColumnName,
//     PrimaryKeyName, ForeignKeyName, IndexName, Mangle)
//   - how a fulltext query is searched (FulltextMatch, FulltextDDL)
//   - how documents are filtered by read permission (SecurityPredicate)
//   - which SQL scripts run around schema creation (ExecuteScript)
//
// # Supported Backends
//
//   - Postgres: PostgreSQL
//   - MySQL: MySQL and MariaDB
//   - SQLite: SQLite
//   - SQLServer: Microsoft SQL Server and Azure SQL Database
//
// # Usage
//
// Probing a live database:
//
//	db, err := sql.Open("pgx", "postgres://...")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	d, err := dialect.Open(ctx, db, dialect.Postgres, cfg)
//
// Building one offline, from known metadata:
//
//	d, err := dialect.New(dialect.Metadata{ProductName: "PostgreSQL", Major: 16}, cfg)
//
// Configuration the backend cannot honor, such as read ACL optimizations on
// SQLite, makes New fail with a *ConfigError instead of failing at query time.
//
// # Sub-packages
//
//   - dialect/sql: database/sql driver bound to a Dialect, session variables
//     and statistics
//   - dialect/sql/schema: schema introspection and drift checks
//   - dialect/sql/sqlerr: driver error classification
package dialect
