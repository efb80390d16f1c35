// Command dialectctl inspects how a database backend is driven: the
// detected dialect, native type mappings, mangled identifiers, fulltext
// translations, SQL scripts and schema drift.
//
//	dialectctl --driver pgx --dsn "$DATABASE_URL" detect
//	dialectctl --product PostgreSQL fulltext 'foo -bar "exact phrase"'
//	dialectctl --driver sqlite --dsn file:repo.db check model.yaml
package main

import (
	"fmt"
	"os"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/microsoft/go-mssqldb"
	_ "modernc.org/sqlite"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}
