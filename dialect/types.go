package dialect

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ColumnType is the abstract storage type of a column.
type ColumnType int

// Abstract column types.
const (
	// TypeVarchar is a string column; Column.Length bounds it, 0 means unconstrained.
	TypeVarchar ColumnType = iota + 1
	// TypeClob is a large unbounded string.
	TypeClob
	TypeBoolean
	TypeLong
	TypeDouble
	TypeTimestamp
	TypeBlobID
	TypeNodeID
	TypeNodeIDFK
	TypeNodeIDFKNullable
	TypeNodeIDFKMulti
	TypeNodeIDPK
	TypeNodeVal
	TypeSysName
	TypeSysNameArray
	TypeTinyInt
	TypeInteger
	TypeAutoInc
	// TypeFTIndexed is a query-time marker for the fulltext match column. It
	// never has a storage type.
	TypeFTIndexed
	TypeFTStored
	TypeClusterNode
	TypeClusterFragments
)

var columnTypeNames = [...]string{
	TypeVarchar:          "VARCHAR",
	TypeClob:             "CLOB",
	TypeBoolean:          "BOOLEAN",
	TypeLong:             "LONG",
	TypeDouble:           "DOUBLE",
	TypeTimestamp:        "TIMESTAMP",
	TypeBlobID:           "BLOBID",
	TypeNodeID:           "NODEID",
	TypeNodeIDFK:         "NODEIDFK",
	TypeNodeIDFKNullable: "NODEIDFKNULL",
	TypeNodeIDFKMulti:    "NODEIDFKMUL",
	TypeNodeIDPK:         "NODEIDPK",
	TypeNodeVal:          "NODEVAL",
	TypeSysName:          "SYSNAME",
	TypeSysNameArray:     "SYSNAMEARRAY",
	TypeTinyInt:          "TINYINT",
	TypeInteger:          "INTEGER",
	TypeAutoInc:          "AUTOINC",
	TypeFTIndexed:        "FTINDEXED",
	TypeFTStored:         "FTSTORED",
	TypeClusterNode:      "CLUSTERNODE",
	TypeClusterFragments: "CLUSTERFRAGS",
}

func (t ColumnType) String() string {
	if t > 0 && int(t) < len(columnTypeNames) {
		return columnTypeNames[t]
	}
	return fmt.Sprintf("ColumnType(%d)", int(t))
}

// ParseColumnType returns the column type named s, case-insensitively.
func ParseColumnType(s string) (ColumnType, error) {
	for _, t := range ColumnTypes() {
		if strings.EqualFold(columnTypeNames[t], s) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("dialect: unknown column type %q", s)
}

// UnmarshalYAML decodes a column type from its name.
func (t *ColumnType) UnmarshalYAML(value *yaml.Node) error {
	var name string
	if err := value.Decode(&name); err != nil {
		return err
	}
	typ, err := ParseColumnType(name)
	if err != nil {
		return err
	}
	*t = typ
	return nil
}

// ColumnTypes returns every abstract column type.
func ColumnTypes() []ColumnType {
	types := make([]ColumnType, 0, len(columnTypeNames)-1)
	for t := TypeVarchar; t <= TypeClusterFragments; t++ {
		types = append(types, t)
	}
	return types
}

// Column is an abstract column description.
type Column struct {
	Type   ColumnType
	Length int
}

// GenericType is a backend-neutral type code, as reported by introspection.
type GenericType int

// Generic type codes.
const (
	GenericOther GenericType = iota
	GenericVarchar
	GenericNVarchar
	GenericLongVarchar
	GenericClob
	GenericBit
	GenericBoolean
	GenericTinyInt
	GenericSmallInt
	GenericInteger
	GenericBigInt
	GenericDouble
	GenericReal
	GenericNumeric
	GenericTimestamp
	GenericBlob
	GenericVarbinary
	GenericArray
)

var genericNames = [...]string{
	GenericOther:       "OTHER",
	GenericVarchar:     "VARCHAR",
	GenericNVarchar:    "NVARCHAR",
	GenericLongVarchar: "LONGVARCHAR",
	GenericClob:        "CLOB",
	GenericBit:         "BIT",
	GenericBoolean:     "BOOLEAN",
	GenericTinyInt:     "TINYINT",
	GenericSmallInt:    "SMALLINT",
	GenericInteger:     "INTEGER",
	GenericBigInt:      "BIGINT",
	GenericDouble:      "DOUBLE",
	GenericReal:        "REAL",
	GenericNumeric:     "NUMERIC",
	GenericTimestamp:   "TIMESTAMP",
	GenericBlob:        "BLOB",
	GenericVarbinary:   "VARBINARY",
	GenericArray:       "ARRAY",
}

func (g GenericType) String() string {
	if g >= 0 && int(g) < len(genericNames) {
		return genericNames[g]
	}
	return fmt.Sprintf("GenericType(%d)", int(g))
}

// SQLType is a native type name paired with its generic code.
type SQLType struct {
	Name string
	Code GenericType
}

func (t SQLType) String() string {
	return fmt.Sprintf("%s(%s)", t.Name, t.Code)
}

// MapType returns the native type of col. It fails for TypeFTIndexed and for
// any type the backend has no mapping for.
func (d *Dialect) MapType(col Column) (SQLType, error) {
	if col.Type == TypeFTIndexed {
		return SQLType{}, NewConfigError(d.family, col.Type.String(), "query-time marker has no storage type")
	}
	if col.Length < 0 {
		return SQLType{}, NewConfigError(d.family, col.Type.String(), "negative length %d", col.Length)
	}
	t, ok := d.backend.mapType(d, col)
	if !ok {
		return SQLType{}, NewConfigError(d.family, col.Type.String(), "no native type")
	}
	return t, nil
}

// MustMapType is like MapType but panics on error. DDL helpers use it for
// columns that are known to map.
func (d *Dialect) MustMapType(col Column) SQLType {
	t, err := d.MapType(col)
	if err != nil {
		panic(err)
	}
	return t
}

// ColumnDDL returns the native type of col followed by its nullability.
func (d *Dialect) ColumnDDL(col Column, nullable bool) (string, error) {
	t, err := d.MapType(col)
	if err != nil {
		return "", err
	}
	switch {
	case col.Type == TypeAutoInc:
		return t.Name, nil
	case nullable:
		return t.Name, nil
	default:
		return t.Name + " NOT NULL", nil
	}
}

// IsCompatible reports whether a column introspected as actual (with its
// native name and size) can hold values declared as expected. Known-safe
// substitutions, such as a CLOB reported as an unbounded VARCHAR, are
// accepted.
func (d *Dialect) IsCompatible(expected, actual GenericType, actualName string, actualSize int) bool {
	if expected == actual {
		return true
	}
	if d.backend.compatible != nil && d.backend.compatible(expected, actual, actualName, actualSize) {
		return true
	}
	return genericCompatible(expected, actual, actualName, actualSize)
}

// unboundedSize is the length from which a varchar is treated as a CLOB.
const unboundedSize = 4000

func genericCompatible(expected, actual GenericType, actualName string, actualSize int) bool {
	switch {
	case isString(expected) && isString(actual):
		if expected == GenericClob && (actual == GenericVarchar || actual == GenericNVarchar) {
			return actualSize <= 0 || actualSize >= unboundedSize
		}
		return true
	case isInteger(expected) && isInteger(actual):
		return true
	case isBoolean(expected) && isBoolean(actual):
		return true
	case isBoolean(expected) && actual == GenericTinyInt:
		return actualSize == 1 || strings.EqualFold(actualName, "tinyint(1)")
	case expected == GenericTinyInt && isBoolean(actual):
		return true
	case isFloat(expected) && isFloat(actual):
		return true
	}
	return false
}

func isString(g GenericType) bool {
	return g == GenericVarchar || g == GenericNVarchar || g == GenericLongVarchar || g == GenericClob
}

func isInteger(g GenericType) bool {
	return g == GenericSmallInt || g == GenericInteger || g == GenericBigInt
}

func isBoolean(g GenericType) bool {
	return g == GenericBit || g == GenericBoolean
}

func isFloat(g GenericType) bool {
	return g == GenericDouble || g == GenericReal || g == GenericNumeric
}

// varchar renders a bounded or unbounded string type.
func varchar(name string, length int, unbounded SQLType) SQLType {
	if length <= 0 {
		return unbounded
	}
	return SQLType{Name: fmt.Sprintf("%s(%d)", name, length), Code: GenericVarchar}
}
