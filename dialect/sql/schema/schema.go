// Package schema reconciles the tables a storage layer expects with what
// live introspection reports.
//
// Expected tables are declared with abstract column types and mapped to
// native types by a dialect. Live tables come from an Inspector. Check
// compares both: a column whose live type is neither identical nor declared
// compatible by the dialect is an error, a compatible substitution is only
// logged.
package schema

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/syssam/velox-storage/dialect"
)

// Table describes a table, either expected or inspected.
type Table struct {
	Name        string
	Columns     []*Column
	PrimaryKey  []*Column
	Indexes     []*Index
	ForeignKeys []*ForeignKey
}

// Column describes a table column.
type Column struct {
	Name string
	// Type is the generic type code, TypeName the native type.
	Type     dialect.GenericType
	TypeName string
	// Size is the declared length of string columns, 0 when unbounded and
	// -1 for a "max" length.
	Size     int
	Nullable bool
	Unique   bool
	Default  any
}

// Index describes a table index.
type Index struct {
	Name    string
	Unique  bool
	Columns []*Column
}

// ForeignKey describes a foreign key constraint.
type ForeignKey struct {
	Symbol     string
	Columns    []*Column
	RefTable   *Table
	RefColumns []*Column
}

// NewTable returns an empty table named name.
func NewTable(name string) *Table {
	return &Table{Name: name}
}

// AddColumns appends columns to the table.
func (t *Table) AddColumns(columns ...*Column) *Table {
	t.Columns = append(t.Columns, columns...)
	return t
}

// AddPrimary appends c to the table and to its primary key.
func (t *Table) AddPrimary(c *Column) *Table {
	t.Columns = append(t.Columns, c)
	t.PrimaryKey = append(t.PrimaryKey, c)
	return t
}

// AddIndex appends an index over the named columns.
func (t *Table) AddIndex(name string, unique bool, columns ...string) *Table {
	idx := &Index{Name: name, Unique: unique}
	for _, n := range columns {
		c, ok := t.Column(n)
		if !ok {
			c = &Column{Name: n}
		}
		idx.Columns = append(idx.Columns, c)
	}
	t.Indexes = append(t.Indexes, idx)
	return t
}

// AddForeignKey appends a foreign key from column to the primary key of ref.
func (t *Table) AddForeignKey(symbol, column string, ref *Table) *Table {
	c, ok := t.Column(column)
	if !ok {
		c = &Column{Name: column}
	}
	t.ForeignKeys = append(t.ForeignKeys, &ForeignKey{
		Symbol:     symbol,
		Columns:    []*Column{c},
		RefTable:   ref,
		RefColumns: ref.PrimaryKey,
	})
	return t
}

// Column returns the column named name.
func (t *Table) Column(name string) (*Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// ColumnSpec declares an expected column with its abstract type.
type ColumnSpec struct {
	Name     string
	Column   dialect.Column
	Nullable bool
	Primary  bool
}

// Expect builds the expected table for d: names are mangled for the backend
// and abstract types mapped to native ones. A primary key gets the
// structural name of the dialect.
func Expect(d *dialect.Dialect, table string, specs ...ColumnSpec) (*Table, error) {
	t := NewTable(d.TableName(table))
	for _, s := range specs {
		typ, err := d.MapType(s.Column)
		if err != nil {
			return nil, fmt.Errorf("schema: %s.%s: %w", table, s.Name, err)
		}
		c := &Column{
			Name:     d.ColumnName(s.Name),
			Type:     typ.Code,
			TypeName: typ.Name,
			Size:     s.Column.Length,
			Nullable: s.Nullable,
		}
		if _, size := Classify(d.Family(), typ.Name); size != 0 {
			c.Size = size
		}
		if s.Primary {
			t.AddPrimary(c)
		} else {
			t.AddColumns(c)
		}
	}
	if len(t.PrimaryKey) > 0 {
		t.Indexes = append(t.Indexes, &Index{Name: d.PrimaryKeyName(table), Unique: true, Columns: t.PrimaryKey})
	}
	return t, nil
}

// Classify returns the generic type code and declared size of a native
// type name as reported by a backend family, e.g. "character varying(36)"
// or "nvarchar(max)".
func Classify(family, typeName string) (dialect.GenericType, int) {
	name := strings.ToLower(strings.TrimSpace(typeName))
	size := 0
	if i := strings.IndexByte(name, '('); i >= 0 {
		arg, rest := name[i+1:], ""
		if j := strings.IndexByte(arg, ')'); j >= 0 {
			arg, rest = arg[:j], arg[j+1:]
		}
		if arg == "max" {
			size = -1
		} else if n, err := strconv.Atoi(strings.TrimSpace(strings.Split(arg, ",")[0])); err == nil {
			size = n
		}
		name = strings.TrimSpace(name[:i]) + rest
	}
	if strings.HasSuffix(name, "[]") || strings.HasPrefix(name, "_") || name == "array" {
		return dialect.GenericArray, size
	}
	if f := strings.Fields(name); len(f) > 0 && f[0] != "double" && f[0] != "character" && f[0] != "timestamp" {
		// Drop modifiers such as "BINARY", "AUTO_INCREMENT" or "identity".
		name = f[0]
	}
	switch name {
	case "varchar", "character varying", "char", "character", "bpchar", "varchar2", "varying character":
		return dialect.GenericVarchar, size
	case "nvarchar", "nchar", "native character":
		return dialect.GenericNVarchar, size
	case "text":
		if family == dialect.MySQL {
			return dialect.GenericLongVarchar, size
		}
		return dialect.GenericClob, size
	case "tinytext", "mediumtext":
		return dialect.GenericLongVarchar, size
	case "longtext", "clob", "ntext":
		return dialect.GenericClob, size
	case "bool", "boolean":
		if family == dialect.Postgres {
			return dialect.GenericBit, size
		}
		return dialect.GenericBoolean, size
	case "bit":
		return dialect.GenericBit, size
	case "tinyint":
		return dialect.GenericTinyInt, size
	case "smallint", "int2":
		return dialect.GenericSmallInt, size
	case "int", "integer", "int4", "mediumint", "serial", "serial4":
		return dialect.GenericInteger, size
	case "bigint", "int8", "bigserial", "serial8":
		return dialect.GenericBigInt, size
	case "double", "double precision", "float8":
		return dialect.GenericDouble, size
	case "float":
		if family == dialect.MySQL {
			return dialect.GenericReal, size
		}
		return dialect.GenericDouble, size
	case "real", "float4":
		return dialect.GenericReal, size
	case "numeric", "decimal":
		return dialect.GenericNumeric, size
	case "date", "datetime", "datetime2", "smalldatetime", "datetimeoffset":
		return dialect.GenericTimestamp, size
	case "blob", "bytea", "image", "longblob", "mediumblob":
		return dialect.GenericBlob, size
	case "varbinary", "binary":
		return dialect.GenericVarbinary, size
	}
	if strings.HasPrefix(name, "timestamp") {
		return dialect.GenericTimestamp, size
	}
	return dialect.GenericOther, size
}
