package schema

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"ariga.io/atlas/sql/migrate"
	"ariga.io/atlas/sql/mysql"
	"ariga.io/atlas/sql/postgres"
	atlas "ariga.io/atlas/sql/schema"
	"ariga.io/atlas/sql/sqlite"
	"golang.org/x/sync/errgroup"

	"github.com/syssam/velox-storage/dialect"
)

// Inspector reads the live definition of tables. Tables that do not exist
// are absent from the result.
type Inspector interface {
	InspectTables(ctx context.Context, names ...string) ([]*Table, error)
}

// ExecQuerier is the connection used by inspectors. *sql.DB and the
// dialect/sql drivers implement it.
type ExecQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// NewInspector returns the inspector suited to the family of d: atlas for
// PostgreSQL, MySQL and SQLite, information_schema for SQL Server.
func NewInspector(db ExecQuerier, d *dialect.Dialect, opts ...InspectOption) (Inspector, error) {
	if d.Family() == dialect.SQLServer {
		return NewInfoSchemaInspector(db, d, opts...), nil
	}
	return NewAtlasInspector(db, d.Family(), opts...)
}

// InspectOption configures an inspector.
type InspectOption func(*inspectConfig)

type inspectConfig struct {
	schema  string
	workers int
}

// WithSchemaName inspects the given schema instead of the connection's
// current one.
func WithSchemaName(name string) InspectOption {
	return func(c *inspectConfig) {
		c.schema = name
	}
}

// WithWorkers bounds the number of tables inspected concurrently by the
// information_schema inspector. Default is 4.
func WithWorkers(n int) InspectOption {
	return func(c *inspectConfig) {
		if n > 0 {
			c.workers = n
		}
	}
}

func newInspectConfig(opts []InspectOption) inspectConfig {
	cfg := inspectConfig{workers: 4}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// AtlasInspector inspects tables through the atlas drivers.
type AtlasInspector struct {
	family string
	drv    migrate.Driver
	cfg    inspectConfig
}

// NewAtlasInspector opens the atlas driver of family on db.
func NewAtlasInspector(db ExecQuerier, family string, opts ...InspectOption) (*AtlasInspector, error) {
	var (
		drv migrate.Driver
		err error
	)
	switch family {
	case dialect.Postgres:
		drv, err = postgres.Open(db)
	case dialect.MySQL:
		drv, err = mysql.Open(db)
	case dialect.SQLite:
		drv, err = sqlite.Open(db)
	default:
		return nil, fmt.Errorf("schema: no atlas driver for %q", family)
	}
	if err != nil {
		return nil, fmt.Errorf("schema: open atlas %s driver: %w", family, err)
	}
	return &AtlasInspector{family: family, drv: drv, cfg: newInspectConfig(opts)}, nil
}

// InspectTables implements Inspector.
func (i *AtlasInspector) InspectTables(ctx context.Context, names ...string) ([]*Table, error) {
	if len(names) == 0 {
		return nil, nil
	}
	s, err := i.drv.InspectSchema(ctx, i.cfg.schema, &atlas.InspectOptions{
		Mode:   atlas.InspectTables,
		Tables: names,
	})
	if err != nil {
		if atlas.IsNotExistError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("schema: inspect: %w", err)
	}
	tables := make([]*Table, 0, len(s.Tables))
	for _, at := range s.Tables {
		tables = append(tables, i.convert(at))
	}
	return tables, nil
}

func (i *AtlasInspector) convert(at *atlas.Table) *Table {
	t := NewTable(at.Name)
	for _, ac := range at.Columns {
		c := &Column{Name: ac.Name}
		if ac.Type != nil {
			c.Nullable = ac.Type.Null
			c.TypeName, c.Size = atlasTypeName(ac.Type)
			c.Type, _ = Classify(i.family, c.TypeName)
			if _, ok := ac.Type.Type.(*postgres.ArrayType); ok {
				c.Type = dialect.GenericArray
			}
		}
		t.AddColumns(c)
	}
	if at.PrimaryKey != nil {
		for _, p := range at.PrimaryKey.Parts {
			if p.C != nil {
				if c, ok := t.Column(p.C.Name); ok {
					t.PrimaryKey = append(t.PrimaryKey, c)
				}
			}
		}
	}
	for _, ai := range at.Indexes {
		var cols []string
		for _, p := range ai.Parts {
			if p.C != nil {
				cols = append(cols, p.C.Name)
			}
		}
		t.AddIndex(ai.Name, ai.Unique, cols...)
	}
	return t
}

// atlasTypeName returns the native name and size of an inspected type.
func atlasTypeName(ct *atlas.ColumnType) (string, int) {
	switch t := ct.Type.(type) {
	case *atlas.StringType:
		return t.T, t.Size
	case *atlas.BoolType:
		return t.T, 0
	case *atlas.IntegerType:
		return t.T, 0
	case *atlas.FloatType:
		return t.T, 0
	case *atlas.DecimalType:
		return t.T, 0
	case *atlas.TimeType:
		return t.T, 0
	case *atlas.BinaryType:
		if t.Size != nil {
			return t.T, *t.Size
		}
		return t.T, 0
	case *atlas.JSONType:
		return t.T, 0
	case *atlas.UUIDType:
		return t.T, 0
	case *postgres.ArrayType:
		return t.T, 0
	case *postgres.TextSearchType:
		return t.T, 0
	case *postgres.SerialType:
		return t.T, 0
	}
	return ct.Raw, 0
}

// InfoSchemaInspector inspects tables through INFORMATION_SCHEMA views,
// one query per table.
type InfoSchemaInspector struct {
	db  ExecQuerier
	d   *dialect.Dialect
	cfg inspectConfig
}

// NewInfoSchemaInspector returns an inspector reading INFORMATION_SCHEMA
// with the placeholders of d.
func NewInfoSchemaInspector(db ExecQuerier, d *dialect.Dialect, opts ...InspectOption) *InfoSchemaInspector {
	return &InfoSchemaInspector{db: db, d: d, cfg: newInspectConfig(opts)}
}

const columnsQuery = `SELECT COLUMN_NAME, DATA_TYPE, CHARACTER_MAXIMUM_LENGTH, IS_NULLABLE
FROM INFORMATION_SCHEMA.COLUMNS
WHERE TABLE_NAME = ?`

const primaryKeyQuery = `SELECT k.COLUMN_NAME
FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS c
JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE k ON k.CONSTRAINT_NAME = c.CONSTRAINT_NAME AND k.TABLE_NAME = c.TABLE_NAME
WHERE c.CONSTRAINT_TYPE = 'PRIMARY KEY' AND c.TABLE_NAME = ?`

// InspectTables implements Inspector.
func (i *InfoSchemaInspector) InspectTables(ctx context.Context, names ...string) ([]*Table, error) {
	tables := make([]*Table, len(names))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(i.cfg.workers)
	for n, name := range names {
		eg.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			t, err := i.inspectTable(ctx, name)
			if err != nil {
				return fmt.Errorf("schema: inspect %s: %w", name, err)
			}
			tables[n] = t
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	out := tables[:0]
	for _, t := range tables {
		if t != nil {
			out = append(out, t)
		}
	}
	return out, nil
}

// query runs query for table, restricted to the configured schema through
// schemaColumn.
func (i *InfoSchemaInspector) query(ctx context.Context, query, schemaColumn, orderBy, table string) (*sql.Rows, error) {
	args := []any{table}
	if i.cfg.schema != "" {
		query += " AND " + schemaColumn + " = ?"
		args = append(args, i.cfg.schema)
	}
	if orderBy != "" {
		query += " ORDER BY " + orderBy
	}
	return i.db.QueryContext(ctx, i.d.Rebind(query), args...)
}

// inspectTable returns nil when the table does not exist.
func (i *InfoSchemaInspector) inspectTable(ctx context.Context, name string) (*Table, error) {
	rows, err := i.query(ctx, columnsQuery, "TABLE_SCHEMA", "ORDINAL_POSITION", name)
	if err != nil {
		return nil, err
	}
	t := NewTable(name)
	for rows.Next() {
		var (
			c        Column
			size     sql.NullInt64
			nullable string
		)
		if err := rows.Scan(&c.Name, &c.TypeName, &size, &nullable); err != nil {
			return nil, errors.Join(err, rows.Close())
		}
		c.Type, _ = Classify(i.d.Family(), c.TypeName)
		c.Size = int(size.Int64)
		c.Nullable = strings.EqualFold(nullable, "YES")
		t.AddColumns(&c)
	}
	if err := errors.Join(rows.Err(), rows.Close()); err != nil {
		return nil, err
	}
	if len(t.Columns) == 0 {
		return nil, nil
	}
	if rows, err = i.query(ctx, primaryKeyQuery, "c.TABLE_SCHEMA", "k.ORDINAL_POSITION", name); err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return nil, err
		}
		if c, ok := t.Column(col); ok {
			t.PrimaryKey = append(t.PrimaryKey, c)
		}
	}
	return t, rows.Err()
}
