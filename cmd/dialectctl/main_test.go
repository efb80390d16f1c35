package main

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/velox-storage/fulltext"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out, _, err := runLogged(t, args...)
	return out, err
}

// runLogged also returns what the command logged.
func runLogged(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out, stderr bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), stderr.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func sqliteDB(t *testing.T) (string, *sql.DB) {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "repo.db")
	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return dsn, db
}

const clusterConfig = "clusteringEnabled: true\n"

func TestFlagErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		code int
	}{
		{"no target", []string{"types"}, exitCommandError},
		{"bad format", []string{"--product", "PostgreSQL", "--format", "yaml", "types"}, exitCommandError},
		{"unknown product", []string{"--product", "Oracle", "types"}, exitCommandError},
		{"unknown type", []string{"--product", "PostgreSQL", "types", "NUMBER"}, exitCommandError},
		{"missing config", []string{"--product", "PostgreSQL", "--config", "/nonexistent.yaml", "detect"}, exitCommandError},
		{"fk arity", []string{"--product", "PostgreSQL", "name", "fk", "hierarchy"}, exitCommandError},
		{"unknown kind", []string{"--product", "PostgreSQL", "name", "view", "v"}, exitCommandError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.code, exitCode(err))
		})
	}
	_, err := run(t, "detect")
	assert.True(t, errors.Is(err, errNoTarget))
	assert.Equal(t, exitFailure, exitCode(errors.New("plain")))
}

func TestDetect(t *testing.T) {
	t.Run("Offline", func(t *testing.T) {
		out, err := run(t, "--product", "Microsoft SQL Server", "--product-version", "16.0.1000", "detect")
		require.NoError(t, err)
		assert.Contains(t, out, "family: sqlserver\n")
		assert.Contains(t, out, "version: 16.0.1000\n")
		assert.Regexp(t, `placeholder\s+@p1`, out)
		assert.Regexp(t, `explicit delete\s+true`, out)
	})
	t.Run("SQLite", func(t *testing.T) {
		dsn, _ := sqliteDB(t)
		out, err := run(t, "--driver", "sqlite", "--dsn", dsn, "--format", "json", "detect")
		require.NoError(t, err)
		var res detectResult
		require.NoError(t, json.Unmarshal([]byte(out), &res))
		assert.Equal(t, "sqlite", res.Family)
		assert.True(t, res.Online)
		assert.NotEmpty(t, res.Version)
		assert.True(t, res.Capabilities.RequiresExplicitDelete)
	})
}

func TestTypes(t *testing.T) {
	out, err := run(t, "--product", "PostgreSQL", "--format", "json", "types", "--length", "40", "VARCHAR", "nodeid", "FTINDEXED")
	require.NoError(t, err)
	var rows []typeRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 3)
	assert.Equal(t, typeRow{Type: "VARCHAR", Native: "varchar(40)", Code: "VARCHAR"}, rows[0])
	assert.Equal(t, "varchar(36)", rows[1].Native)
	assert.Empty(t, rows[2].Native)
	assert.NotEmpty(t, rows[2].Error)

	out, err = run(t, "--product", "MySQL", "types")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Regexp(t, `^TYPE\s+NATIVE\s+CODE$`, lines[0])
	assert.Regexp(t, `FTINDEXED\s+-\s+-`, out)
	assert.Greater(t, len(lines), 20)
}

func TestName(t *testing.T) {
	tests := []struct {
		product string
		args    []string
		want    string
	}{
		{"PostgreSQL", []string{"table", "Hierarchy"}, "hierarchy"},
		{"PostgreSQL", []string{"column", "dc:title"}, "dc_title"},
		{"PostgreSQL", []string{"pk", "hierarchy"}, "hierarchy_pk"},
		{"PostgreSQL", []string{"fk", "hierarchy", "parentid", "hierarchy"}, "hierarchy_parentid_hierarchy_fk"},
		{"PostgreSQL", []string{"index", "acls", "id", "pos"}, "acls_id_pos_idx"},
		{"Microsoft SQL Server", []string{"quote", "user"}, "[user]"},
		{"MySQL", []string{"quote", "order"}, "`order`"},
		{"PostgreSQL", []string{"mangle", "--max", "10", "abc"}, "abc"},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			out, err := run(t, append([]string{"--product", tt.product, "name"}, tt.args...)...)
			require.NoError(t, err)
			assert.Equal(t, tt.want+"\n", out)
		})
	}

	out, err := run(t, "--product", "PostgreSQL", "name", "mangle", "--max", "12", "a_very_long_column_name")
	require.NoError(t, err)
	name := strings.TrimSpace(out)
	assert.Len(t, name, 12)
	assert.True(t, strings.HasPrefix(name, "a_v_"))
}

func TestFulltext(t *testing.T) {
	out, err := run(t, "--product", "PostgreSQL", "fulltext", "--nth", "1", "foo -bar")
	require.NoError(t, err)
	assert.Equal(t, `analyzed: AND(foo, -bar)
native: (foo & !bar)
join: JOIN fulltext _nxft1 ON hierarchy.id = _nxft1.id
where: _nxft1.fulltext @@ to_tsquery('english', ?)  ["(foo & !bar)"]
score: ts_rank_cd(_nxft1.fulltext, to_tsquery('english', ?)) AS _nxscore1  ["(foo & !bar)"]
`, out)

	out, err = run(t, "--product", "PostgreSQL", "--format", "json", "fulltext", "--", "-bar")
	require.NoError(t, err)
	var res fulltextResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "1=0", res.Where)
	assert.Empty(t, res.Joins)

	_, err = run(t, "--product", "PostgreSQL", "fulltext", `"foo`)
	require.Error(t, err)
	assert.True(t, fulltext.IsParseError(err))

	_, err = run(t, "--product", "PostgreSQL", "fulltext", "--lang", "fr", `"foo`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "phrase non terminée")
	assert.Equal(t, exitFailure, exitCode(err))

	out, err = run(t, "--product", "PostgreSQL", "fulltext", "--ddl")
	require.NoError(t, err)
	assert.NotEmpty(t, out)
	assert.True(t, strings.HasSuffix(out, ";\n"))
}

func TestExec(t *testing.T) {
	cfg := writeFile(t, "repo.yaml", clusterConfig)

	out, err := run(t, "--product", "SQLite", "exec")
	require.NoError(t, err)
	assert.Equal(t, "beforeTableCreation\nafterTableCreation\n", out)

	out, err = run(t, "--product", "SQLite", "--config", cfg, "exec", "afterTableCreation")
	require.NoError(t, err)
	assert.Contains(t, out, "#IF: clusteringEnabled\nCREATE TABLE IF NOT EXISTS cluster_nodes (\n  nodeid varchar(36) NOT NULL PRIMARY KEY,")
	assert.Equal(t, 3, strings.Count(out, "-- "))

	dsn, db := sqliteDB(t)
	out, err = run(t, "--dsn", dsn, "--config", cfg, "exec", "--set", "clusteringEnabled=false", "afterTableCreation")
	require.NoError(t, err)
	assert.Equal(t, "executed: 0\nskipped: 3\nstatements: queries=0 execs=0 slow=0 errors=0\n", out)

	out, err = run(t, "--dsn", dsn, "--config", cfg, "--format", "json", "exec", "afterTableCreation")
	require.NoError(t, err)
	var res execResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "afterTableCreation", res.Category)
	assert.Len(t, res.Executed, 3)
	assert.Empty(t, res.Skipped)
	assert.Equal(t, int64(3), res.Statements.Execs)
	assert.Zero(t, res.Statements.Errors)

	var n int
	require.NoError(t, db.QueryRow("SELECT count(*) FROM cluster_invals").Scan(&n))
	assert.Zero(t, n)

	t.Run("Verbose", func(t *testing.T) {
		out, logs, err := runLogged(t, "--dsn", dsn, "--config", cfg, "-v", "exec", "afterTableCreation")
		require.NoError(t, err)
		assert.Contains(t, out, "statements: queries=0 execs=3 ")
		assert.Equal(t, 3, strings.Count(logs, "msg=exec"), logs)
		assert.Contains(t, logs, "CREATE TABLE IF NOT EXISTS cluster_nodes")

		_, logs, err = runLogged(t, "--dsn", dsn, "--config", cfg, "exec", "afterTableCreation")
		require.NoError(t, err)
		assert.NotContains(t, logs, "msg=exec", "statements are only logged with -v")
	})
	t.Run("SessionVars", func(t *testing.T) {
		_, err := run(t, "--dsn", dsn, "--config", cfg, "exec", "--session-var", "app.user=admin", "afterTableCreation")
		require.Error(t, err)
		assert.Equal(t, exitFailure, exitCode(err))
		assert.Contains(t, err.Error(), `session variables are not supported by "sqlite"`)
	})
}

func TestProperties(t *testing.T) {
	props := properties(map[string]string{"a": "true", "b": "false", "c": "1", "d": "english"})
	assert.Equal(t, true, props["a"])
	assert.Equal(t, false, props["b"])
	assert.Equal(t, "1", props["c"])
	assert.Equal(t, "english", props["d"])
}

func TestCheck(t *testing.T) {
	dsn, db := sqliteDB(t)
	_, err := db.Exec(`CREATE TABLE documents (
		id varchar(36) NOT NULL PRIMARY KEY,
		title varchar(255),
		body blob
	)`)
	require.NoError(t, err)

	clean := writeFile(t, "clean.yaml", `
tables:
  - name: documents
    columns:
      - {name: id, type: NODEIDPK, primary: true}
      - {name: title, type: VARCHAR, length: 255, nullable: true}
`)
	out, logs, err := runLogged(t, "--dsn", dsn, "-v", "check", clean)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "No issues found\n"), out)
	assert.Regexp(t, `\nstatements: queries=[1-9]\d* execs=\d+ slow=\d+ errors=0\n$`, out)
	assert.Contains(t, logs, "msg=query")

	drift := writeFile(t, "drift.yaml", `
tables:
  - name: documents
    columns:
      - {name: id, type: NODEIDPK, primary: true}
      - {name: body, type: CLOB, nullable: true}
  - name: missing
    columns:
      - {name: id, type: NODEID, primary: true}
`)
	out, err = run(t, "--dsn", dsn, "--format", "json", "check", "--extra", drift)
	require.Error(t, err)
	assert.Equal(t, exitFailure, exitCode(err))
	var res checkResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, []string{"documents.body: column type blob (BLOB) is not compatible with text (CLOB)"}, res.Errors)
	assert.Contains(t, res.Warnings, "missing: table does not exist")
	assert.Contains(t, res.Warnings, "documents.title: column is not declared")
	assert.Positive(t, res.Statements.Queries)

	_, err = run(t, "--product", "SQLite", "check", clean)
	assert.Equal(t, exitCommandError, exitCode(err))
	bad := writeFile(t, "bad.yaml", "tables:\n  - name: t\n    columns:\n      - {name: id, type: NUMBER}\n")
	_, err = run(t, "--dsn", dsn, "check", bad)
	assert.Equal(t, exitCommandError, exitCode(err))
}
