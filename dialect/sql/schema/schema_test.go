package schema

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/syssam/velox-storage/dialect"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newDialect(t *testing.T, meta dialect.Metadata) *dialect.Dialect {
	t.Helper()
	d, err := dialect.New(meta, dialect.Config{}, dialect.WithLogger(discard()))
	require.NoError(t, err)
	return d
}

var (
	pgMeta     = dialect.Metadata{ProductName: "PostgreSQL", ProductVersion: "16.2", Major: 16, Minor: 2}
	sqliteMeta = dialect.Metadata{ProductName: "SQLite", ProductVersion: "3.45.1", Major: 3, Minor: 45}
	mssqlMeta  = dialect.Metadata{ProductName: "Microsoft SQL Server", ProductVersion: "16.0.1000.6", Major: 16, EngineEdition: 3}
)

func TestClassify(t *testing.T) {
	tests := []struct {
		family string
		name   string
		want   dialect.GenericType
		size   int
	}{
		{dialect.Postgres, "character varying(36)", dialect.GenericVarchar, 36},
		{dialect.Postgres, "character varying", dialect.GenericVarchar, 0},
		{dialect.Postgres, "text", dialect.GenericClob, 0},
		{dialect.Postgres, "boolean", dialect.GenericBit, 0},
		{dialect.Postgres, "timestamp without time zone", dialect.GenericTimestamp, 0},
		{dialect.Postgres, "double precision", dialect.GenericDouble, 0},
		{dialect.Postgres, "character varying[]", dialect.GenericArray, 0},
		{dialect.Postgres, "varchar(250)[]", dialect.GenericArray, 250},
		{dialect.Postgres, "_varchar", dialect.GenericArray, 0},
		{dialect.Postgres, "ARRAY", dialect.GenericArray, 0},
		{dialect.Postgres, "tsvector", dialect.GenericOther, 0},
		{dialect.Postgres, "int8", dialect.GenericBigInt, 0},
		{dialect.MySQL, "text", dialect.GenericLongVarchar, 0},
		{dialect.MySQL, "varchar(36) BINARY", dialect.GenericVarchar, 36},
		{dialect.MySQL, "datetime(3)", dialect.GenericTimestamp, 3},
		{dialect.MySQL, "integer AUTO_INCREMENT PRIMARY KEY", dialect.GenericInteger, 0},
		{dialect.MySQL, "tinyint(1)", dialect.GenericTinyInt, 1},
		{dialect.MySQL, "float", dialect.GenericReal, 0},
		{dialect.SQLite, "boolean", dialect.GenericBoolean, 0},
		{dialect.SQLite, "integer PRIMARY KEY AUTOINCREMENT", dialect.GenericInteger, 0},
		{dialect.SQLite, "blob", dialect.GenericBlob, 0},
		{dialect.SQLServer, "nvarchar(max)", dialect.GenericNVarchar, -1},
		{dialect.SQLServer, "int identity", dialect.GenericInteger, 0},
		{dialect.SQLServer, "datetime2(3)", dialect.GenericTimestamp, 3},
		{dialect.SQLServer, "float", dialect.GenericDouble, 0},
		{dialect.SQLServer, "decimal(19,4)", dialect.GenericNumeric, 19},
		{dialect.SQLServer, "geography", dialect.GenericOther, 0},
	}
	for _, tt := range tests {
		t.Run(tt.family+"/"+tt.name, func(t *testing.T) {
			got, size := Classify(tt.family, tt.name)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.size, size)
		})
	}
}

func TestExpect(t *testing.T) {
	d := newDialect(t, pgMeta)
	tbl, err := Expect(d, "Hierarchy",
		ColumnSpec{Name: "id", Column: dialect.Column{Type: dialect.TypeNodeIDPK}, Primary: true},
		ColumnSpec{Name: "parentid", Column: dialect.Column{Type: dialect.TypeNodeIDFKNullable}, Nullable: true},
		ColumnSpec{Name: "name", Column: dialect.Column{Type: dialect.TypeVarchar, Length: 120}, Nullable: true},
		ColumnSpec{Name: "ecm:isProxy", Column: dialect.Column{Type: dialect.TypeBoolean}},
	)
	require.NoError(t, err)
	assert.Equal(t, "hierarchy", tbl.Name)
	require.Len(t, tbl.Columns, 4)
	assert.Equal(t, "varchar(36)", tbl.Columns[0].TypeName)
	assert.Equal(t, 36, tbl.Columns[0].Size)
	assert.Equal(t, dialect.GenericVarchar, tbl.Columns[0].Type)
	assert.Equal(t, 120, tbl.Columns[2].Size)
	assert.Equal(t, "ecm_isproxy", tbl.Columns[3].Name)
	assert.Equal(t, dialect.GenericBit, tbl.Columns[3].Type)
	require.Len(t, tbl.PrimaryKey, 1)
	assert.Equal(t, "id", tbl.PrimaryKey[0].Name)
	require.Len(t, tbl.Indexes, 1)
	assert.Equal(t, "hierarchy_pk", tbl.Indexes[0].Name)

	_, err = Expect(d, "t", ColumnSpec{Name: "ft", Column: dialect.Column{Type: dialect.TypeFTIndexed}})
	require.Error(t, err)
	assert.True(t, dialect.IsConfigError(err))
}

func TestReconcile(t *testing.T) {
	d := newDialect(t, pgMeta)
	col := func(name, typeName string, nullable bool) *Column {
		g, size := Classify(dialect.Postgres, typeName)
		return &Column{Name: name, Type: g, TypeName: typeName, Size: size, Nullable: nullable}
	}
	want := func(cols ...*Column) []*Table {
		return []*Table{NewTable("docs").AddPrimary(col("id", "varchar(36)", false)).AddColumns(cols...)}
	}
	live := func(cols ...*Column) []*Table {
		return []*Table{NewTable("docs").AddPrimary(col("id", "character varying(36)", false)).AddColumns(cols...)}
	}
	tests := []struct {
		name     string
		live     []*Table
		expected []*Table
		opts     []ValidateOption
		errors   []string
		warnings []string
	}{
		{
			name:     "identical",
			live:     live(col("title", "character varying(250)", true)),
			expected: want(col("title", "varchar(250)", true)),
		},
		{
			name:     "clob as unbounded varchar",
			live:     live(col("body", "character varying", true)),
			expected: want(col("body", "text", true)),
			warnings: []string{"docs.body: column type character varying is compatible with text"},
		},
		{
			name:     "strict types",
			live:     live(col("n", "integer", true)),
			expected: want(col("n", "int8", true)),
			opts:     []ValidateOption{StrictTypes()},
			errors:   []string{"docs.n: column type integer is compatible with int8"},
		},
		{
			name:     "incompatible",
			live:     live(col("n", "character varying(20)", true)),
			expected: want(col("n", "int8", true)),
			errors:   []string{"docs.n: column type character varying(20) (VARCHAR) is not compatible with int8 (BIGINT)"},
		},
		{
			name:     "tsvector",
			live:     live(col("fulltext", "tsvector", true)),
			expected: want(&Column{Name: "fulltext", Type: dialect.GenericOther, TypeName: "tsvector", Nullable: true}),
		},
		{
			name:     "missing column",
			live:     live(),
			expected: want(col("title", "varchar(250)", true), col("pos", "int8", false)),
			warnings: []string{
				"docs.title: column does not exist",
				"docs.pos: new NOT NULL column without default value may fail if table has data",
			},
		},
		{
			name:     "missing table",
			expected: want(),
			warnings: []string{"docs: table does not exist"},
		},
		{
			name:     "nullable and shorter",
			live:     live(col("title", "character varying(100)", true)),
			expected: want(col("title", "varchar(250)", false)),
			warnings: []string{
				"docs.title: column allows NULL values",
				"docs.title: column size 100 is smaller than 250 and may truncate data",
			},
		},
		{
			name:     "extra columns",
			live:     live(col("legacy", "text", true)),
			expected: want(),
			opts:     []ValidateOption{ReportExtraColumns()},
			warnings: []string{"docs.legacy: column is not declared"},
		},
		{
			name:     "case insensitive names",
			live:     []*Table{NewTable("DOCS").AddPrimary(col("ID", "character varying(36)", false))},
			expected: want(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Reconcile(d, tt.live, tt.expected, append(tt.opts, WithLogger(discard()))...)
			assert.Equal(t, tt.errors, messages(res.Errors))
			assert.Equal(t, tt.warnings, messages(res.Warnings))
			if len(tt.errors) == 0 {
				assert.NoError(t, res.Err())
			} else {
				assert.Error(t, res.Err())
			}
		})
	}
}

func messages(errs []*ValidationError) []string {
	var out []string
	for _, e := range errs {
		out = append(out, e.Error())
	}
	return out
}

func TestValidateSchema(t *testing.T) {
	parent := NewTable("parent").AddPrimary(&Column{Name: "id"})
	child := NewTable("child").
		AddPrimary(&Column{Name: "id"}).
		AddColumns(&Column{Name: "parentid"}, &Column{Name: "parentid"}).
		AddIndex("child_idx", false, "nope").
		AddForeignKey("child_parent_fk", "parentid", parent)
	orphan := NewTable("orphan").AddColumns(&Column{Name: "x"}).AddForeignKey("fk", "x", NewTable("ghost"))

	res := ValidateSchema([]*Table{parent, child, orphan, NewTable("parent").AddPrimary(&Column{Name: "id"})})
	assert.Equal(t, []string{
		"child.parentid: duplicate column name",
		`child: index "child_idx" references non-existent column "nope"`,
		"parent: duplicate table name",
		`orphan: foreign key references non-existent table "ghost"`,
	}, messages(res.Errors))
	assert.Equal(t, []string{"orphan: table has no primary key"}, messages(res.Warnings))
	assert.False(t, res.HasBreakingChanges())
	assert.Contains(t, res.String(), "Errors:\n  - child.parentid: duplicate column name\n")
	assert.Equal(t, "No issues found", (&ValidationResult{}).String())
}

func TestCheckSQLite(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(`CREATE TABLE documents (
		id varchar(36) NOT NULL PRIMARY KEY,
		title varchar(250),
		size bigint NOT NULL,
		created timestamp,
		active integer,
		body blob
	)`)
	require.NoError(t, err)

	d := newDialect(t, sqliteMeta)
	docs, err := Expect(d, "documents",
		ColumnSpec{Name: "id", Column: dialect.Column{Type: dialect.TypeVarchar, Length: 36}, Primary: true},
		ColumnSpec{Name: "title", Column: dialect.Column{Type: dialect.TypeVarchar, Length: 250}, Nullable: true},
		ColumnSpec{Name: "size", Column: dialect.Column{Type: dialect.TypeLong}},
		ColumnSpec{Name: "created", Column: dialect.Column{Type: dialect.TypeTimestamp}, Nullable: true},
		ColumnSpec{Name: "active", Column: dialect.Column{Type: dialect.TypeBoolean}, Nullable: true},
		ColumnSpec{Name: "body", Column: dialect.Column{Type: dialect.TypeClob}, Nullable: true},
		ColumnSpec{Name: "flag", Column: dialect.Column{Type: dialect.TypeBoolean}, Nullable: true},
	)
	require.NoError(t, err)
	missing, err := Expect(d, "missing",
		ColumnSpec{Name: "id", Column: dialect.Column{Type: dialect.TypeVarchar, Length: 36}, Primary: true},
	)
	require.NoError(t, err)

	insp, err := NewInspector(db, d)
	require.NoError(t, err)
	require.IsType(t, &AtlasInspector{}, insp)

	live, err := insp.InspectTables(context.Background(), "documents", "missing")
	require.NoError(t, err)
	require.Len(t, live, 1)
	require.Len(t, live[0].PrimaryKey, 1)
	assert.Equal(t, "id", live[0].PrimaryKey[0].Name)

	res, err := Check(context.Background(), insp, d, []*Table{docs, missing}, WithLogger(discard()))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"documents.body: column type blob (BLOB) is not compatible with text (CLOB)",
	}, messages(res.Errors))
	assert.Equal(t, []string{
		"documents.active: column type integer is compatible with boolean",
		"documents.flag: column does not exist",
		"missing: table does not exist",
	}, messages(res.Warnings))
	assert.True(t, res.HasBreakingChanges())
}

func TestInfoSchemaInspector(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	d := newDialect(t, mssqlMeta)
	mock.ExpectQuery(regexp.QuoteMeta("FROM INFORMATION_SCHEMA.COLUMNS\nWHERE TABLE_NAME = @p1 AND TABLE_SCHEMA = @p2 ORDER BY ORDINAL_POSITION")).
		WithArgs("hierarchy", "dbo").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME", "DATA_TYPE", "CHARACTER_MAXIMUM_LENGTH", "IS_NULLABLE"}).
			AddRow("id", "varchar", 36, "NO").
			AddRow("name", "nvarchar", -1, "YES").
			AddRow("pos", "int", nil, "YES"))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE c.CONSTRAINT_TYPE = 'PRIMARY KEY' AND c.TABLE_NAME = @p1 AND c.TABLE_SCHEMA = @p2 ORDER BY k.ORDINAL_POSITION")).
		WithArgs("hierarchy", "dbo").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME"}).AddRow("id"))
	mock.ExpectQuery("FROM INFORMATION_SCHEMA.COLUMNS").
		WithArgs("missing", "dbo").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME", "DATA_TYPE", "CHARACTER_MAXIMUM_LENGTH", "IS_NULLABLE"}))

	insp, err := NewInspector(db, d, WithSchemaName("dbo"), WithWorkers(1))
	require.NoError(t, err)
	require.IsType(t, &InfoSchemaInspector{}, insp)

	hierarchy, err := Expect(d, "hierarchy",
		ColumnSpec{Name: "id", Column: dialect.Column{Type: dialect.TypeVarchar, Length: 36}, Primary: true},
		ColumnSpec{Name: "name", Column: dialect.Column{Type: dialect.TypeClob}, Nullable: true},
		ColumnSpec{Name: "pos", Column: dialect.Column{Type: dialect.TypeInteger}, Nullable: true},
	)
	require.NoError(t, err)
	missing := NewTable("missing").AddPrimary(&Column{Name: "id", Type: dialect.GenericVarchar})

	res, err := Check(context.Background(), insp, d, []*Table{hierarchy, missing}, WithLogger(discard()))
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.NoError(t, res.Err())
	assert.Equal(t, []string{
		"hierarchy.name: column type nvarchar is compatible with nvarchar(max)",
		"missing: table does not exist",
	}, messages(res.Warnings))
}

func TestInfoSchemaInspectorError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	d := newDialect(t, mssqlMeta)
	mock.ExpectQuery("FROM INFORMATION_SCHEMA.COLUMNS").WillReturnError(sql.ErrConnDone)

	_, err = NewInfoSchemaInspector(db, d).InspectTables(context.Background(), "hierarchy")
	require.ErrorIs(t, err, sql.ErrConnDone)
	assert.Contains(t, err.Error(), "schema: inspect hierarchy")
}

func TestNewAtlasInspectorUnknownFamily(t *testing.T) {
	_, err := NewAtlasInspector(nil, dialect.SQLServer)
	require.Error(t, err)
}
