package dialect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestMapType(t *testing.T) {
	tests := []struct {
		product string
		col     Column
		want    SQLType
	}{
		{"PostgreSQL", Column{Type: TypeVarchar}, SQLType{"varchar", GenericVarchar}},
		{"PostgreSQL", Column{Type: TypeVarchar, Length: 20}, SQLType{"varchar(20)", GenericVarchar}},
		{"PostgreSQL", Column{Type: TypeClob}, SQLType{"text", GenericClob}},
		{"PostgreSQL", Column{Type: TypeBoolean}, SQLType{"bool", GenericBit}},
		{"PostgreSQL", Column{Type: TypeNodeIDFKMulti}, SQLType{"varchar(36)[]", GenericArray}},
		{"PostgreSQL", Column{Type: TypeFTStored}, SQLType{"tsvector", GenericOther}},
		{"PostgreSQL", Column{Type: TypeAutoInc}, SQLType{"serial", GenericInteger}},
		{"MySQL", Column{Type: TypeVarchar, Length: 20000}, SQLType{"text", GenericLongVarchar}},
		{"MySQL", Column{Type: TypeTimestamp}, SQLType{"datetime(3)", GenericTimestamp}},
		{"MySQL", Column{Type: TypeNodeID}, SQLType{"varchar(36) BINARY", GenericVarchar}},
		{"MySQL", Column{Type: TypeBoolean}, SQLType{"bit", GenericBit}},
		{"SQLite", Column{Type: TypeBoolean}, SQLType{"boolean", GenericBoolean}},
		{"SQLite", Column{Type: TypeAutoInc}, SQLType{"integer PRIMARY KEY AUTOINCREMENT", GenericInteger}},
		{"SQLite", Column{Type: TypeSysNameArray}, SQLType{"text", GenericVarchar}},
		{"Microsoft SQL Server", Column{Type: TypeVarchar, Length: 5000}, SQLType{"nvarchar(max)", GenericClob}},
		{"Microsoft SQL Server", Column{Type: TypeVarchar}, SQLType{"nvarchar(4000)", GenericNVarchar}},
		{"Microsoft SQL Server", Column{Type: TypeVarchar, Length: 100}, SQLType{"nvarchar(100)", GenericVarchar}},
		{"Microsoft SQL Server", Column{Type: TypeDouble}, SQLType{"double precision", GenericDouble}},
	}
	for _, tt := range tests {
		t.Run(tt.product+"/"+tt.col.Type.String(), func(t *testing.T) {
			d := newTest(t, Metadata{ProductName: tt.product}, Config{})
			got, err := d.MapType(tt.col)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMapTypeEveryType(t *testing.T) {
	for _, product := range []string{"PostgreSQL", "MySQL", "SQLite", "Microsoft SQL Server"} {
		d := newTest(t, Metadata{ProductName: product}, Config{})
		for _, typ := range ColumnTypes() {
			_, err := d.MapType(Column{Type: typ})
			if typ == TypeFTIndexed {
				var cerr *ConfigError
				require.ErrorAs(t, err, &cerr, "%s %s", product, typ)
				assert.Equal(t, "FTINDEXED", cerr.Feature())
				continue
			}
			assert.NoError(t, err, "%s %s", product, typ)
		}
	}
}

func TestMapTypeErrors(t *testing.T) {
	d := newTest(t, Metadata{ProductName: "PostgreSQL"}, Config{})
	_, err := d.MapType(Column{Type: TypeVarchar, Length: -1})
	assert.True(t, IsConfigError(err))
	_, err = d.MapType(Column{Type: ColumnType(99)})
	assert.True(t, IsConfigError(err))
	assert.Contains(t, err.Error(), "ColumnType(99)")
	assert.Panics(t, func() { d.MustMapType(Column{Type: TypeFTIndexed}) })
}

func TestColumnDDL(t *testing.T) {
	d := newTest(t, Metadata{ProductName: "PostgreSQL"}, Config{})
	ddl, err := d.ColumnDDL(Column{Type: TypeLong}, false)
	require.NoError(t, err)
	assert.Equal(t, "int8 NOT NULL", ddl)
	ddl, err = d.ColumnDDL(Column{Type: TypeLong}, true)
	require.NoError(t, err)
	assert.Equal(t, "int8", ddl)
	ddl, err = d.ColumnDDL(Column{Type: TypeAutoInc}, false)
	require.NoError(t, err)
	assert.Equal(t, "serial", ddl)
	_, err = d.ColumnDDL(Column{Type: TypeFTIndexed}, true)
	assert.True(t, IsConfigError(err))
}

func TestIsCompatible(t *testing.T) {
	tests := []struct {
		product          string
		expected, actual GenericType
		name             string
		size             int
		want             bool
	}{
		{"PostgreSQL", GenericVarchar, GenericVarchar, "varchar", 36, true},
		{"PostgreSQL", GenericClob, GenericVarchar, "varchar", 0, true},
		{"PostgreSQL", GenericClob, GenericVarchar, "varchar", 255, false},
		{"PostgreSQL", GenericClob, GenericVarchar, "varchar", 4000, true},
		{"PostgreSQL", GenericArray, GenericOther, "_varchar", 0, true},
		{"PostgreSQL", GenericArray, GenericOther, "varchar[]", 0, true},
		{"PostgreSQL", GenericOther, GenericOther, "tsvector", 0, true},
		{"PostgreSQL", GenericOther, GenericVarchar, "tsvector", 0, true},
		{"PostgreSQL", GenericBigInt, GenericInteger, "int4", 0, true},
		{"PostgreSQL", GenericBigInt, GenericVarchar, "varchar", 0, false},
		{"PostgreSQL", GenericDouble, GenericReal, "float4", 0, true},
		{"MySQL", GenericBit, GenericTinyInt, "tinyint(1)", 1, true},
		{"MySQL", GenericBit, GenericTinyInt, "tinyint", 4, false},
		{"MySQL", GenericTimestamp, GenericOther, "timestamp", 0, true},
		{"MySQL", GenericVarchar, GenericLongVarchar, "text", 65535, true},
		{"SQLite", GenericTimestamp, GenericVarchar, "TEXT", 0, true},
		{"SQLite", GenericBoolean, GenericInteger, "INTEGER", 0, true},
		{"SQLite", GenericDouble, GenericVarchar, "TEXT", 0, false},
		{"Microsoft SQL Server", GenericClob, GenericNVarchar, "nvarchar", -1, true},
		{"Microsoft SQL Server", GenericTinyInt, GenericBit, "bit", 1, true},
	}
	for _, tt := range tests {
		d := newTest(t, Metadata{ProductName: tt.product}, Config{})
		got := d.IsCompatible(tt.expected, tt.actual, tt.name, tt.size)
		assert.Equal(t, tt.want, got, "%s: %s vs %s (%s %d)", tt.product, tt.expected, tt.actual, tt.name, tt.size)
	}
}

func TestParseColumnType(t *testing.T) {
	for _, typ := range ColumnTypes() {
		got, err := ParseColumnType(typ.String())
		require.NoError(t, err)
		assert.Equal(t, typ, got)
	}
	got, err := ParseColumnType("nodeidfknull")
	require.NoError(t, err)
	assert.Equal(t, TypeNodeIDFKNullable, got)

	_, err = ParseColumnType("NUMBER")
	assert.EqualError(t, err, `dialect: unknown column type "NUMBER"`)

	var col struct {
		Type   ColumnType `yaml:"type"`
		Length int        `yaml:"length"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("type: varchar\nlength: 40\n"), &col))
	assert.Equal(t, TypeVarchar, col.Type)
	assert.Equal(t, 40, col.Length)
	assert.Error(t, yaml.Unmarshal([]byte("type: [a]\n"), &col))
	assert.Error(t, yaml.Unmarshal([]byte("type: float\n"), &col))
}
