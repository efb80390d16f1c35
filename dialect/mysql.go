package dialect

import (
	"fmt"
	"strings"

	"github.com/syssam/velox-storage/dialect/sql/sqlerr"
	"github.com/syssam/velox-storage/fulltext"
)

// mysqlNoLimit is the largest LIMIT MySQL accepts, used for offset-only paging.
const mysqlNoLimit = "18446744073709551615"

var mysqlBackend = &backend{
	family:   MySQL,
	products: []string{"mysql", "mariadb"},
	capabilities: func(meta Metadata, _ Config) Capabilities {
		return Capabilities{
			SupportsPaging:         true,
			SupportsReadACL:        true,
			SupportsClustering:     true,
			RequiresExplicitDelete: true,
			SupportsFulltext:       true,
			SupportsPhraseSearch:   true,
			SupportsIfExists:       true,
			MaxIdentifierLength:    64,
			MaxInListSize:          10000,
			StoresUpperCase:        meta.StoresUpperCaseIdentifiers,
			Placeholder:            PlaceholderQuestion,
			FulltextWildcard:       "*",
		}
	},
	mapType:          mysqlType,
	compatible:       mysqlCompatible,
	quote:            backQuote,
	fulltext:         mysqlFulltext,
	fulltextDDL:      mysqlFulltextDDL,
	directCheck:      joinedDirectCheck("NX_ACCESS_ALLOWED(%s, ?, ?)"),
	readACL:          mysqlReadACL,
	arrayParam:       joinedArrayParam,
	paging:           func(limit, offset int) string { return limitOffset(limit, offset, mysqlNoLimit) },
	connectionBroken: sqlerr.IsConnectionBroken,
	concurrentUpdate: sqlerr.IsConcurrentUpdate,
	probeQuery:       "SELECT VERSION()",
	probe:            mysqlProbe,
}

// mysqlMaxVarchar is the longest utf8mb4 varchar kept inline in a row.
const mysqlMaxVarchar = 16383

func mysqlType(_ *Dialect, col Column) (SQLType, bool) {
	switch col.Type {
	case TypeVarchar:
		if col.Length > mysqlMaxVarchar {
			col.Length = 0
		}
		return varchar("varchar", col.Length, SQLType{Name: "text", Code: GenericLongVarchar}), true
	case TypeClob, TypeFTStored:
		return SQLType{Name: "longtext", Code: GenericClob}, true
	case TypeBoolean:
		return SQLType{Name: "bit", Code: GenericBit}, true
	case TypeLong:
		return SQLType{Name: "bigint", Code: GenericBigInt}, true
	case TypeDouble:
		return SQLType{Name: "double", Code: GenericDouble}, true
	case TypeTimestamp:
		return SQLType{Name: "datetime(3)", Code: GenericTimestamp}, true
	case TypeBlobID, TypeSysName:
		return SQLType{Name: "varchar(250) BINARY", Code: GenericVarchar}, true
	case TypeNodeID, TypeNodeIDFK, TypeNodeIDFKNullable, TypeNodeIDPK, TypeNodeVal:
		return SQLType{Name: "varchar(36) BINARY", Code: GenericVarchar}, true
	case TypeNodeIDFKMulti, TypeSysNameArray:
		return SQLType{Name: "text", Code: GenericLongVarchar}, true
	case TypeTinyInt:
		return SQLType{Name: "tinyint", Code: GenericTinyInt}, true
	case TypeInteger:
		return SQLType{Name: "integer", Code: GenericInteger}, true
	case TypeAutoInc:
		return SQLType{Name: "integer AUTO_INCREMENT PRIMARY KEY", Code: GenericInteger}, true
	case TypeClusterNode:
		return SQLType{Name: "varchar(36)", Code: GenericVarchar}, true
	case TypeClusterFragments:
		return SQLType{Name: "varchar(4000)", Code: GenericVarchar}, true
	}
	return SQLType{}, false
}

// mysqlCompatible accepts bit(1) reported as BIT for booleans and
// datetime/timestamp interchangeably.
func mysqlCompatible(expected, _ GenericType, actualName string, _ int) bool {
	name := strings.ToLower(actualName)
	switch expected {
	case GenericBit:
		return strings.HasPrefix(name, "bit")
	case GenericTimestamp:
		return strings.HasPrefix(name, "datetime") || strings.HasPrefix(name, "timestamp")
	}
	return false
}

func mysqlFulltext(_ *Dialect, req FulltextRequest, q *fulltext.Query) *FulltextMatch {
	col, _ := req.Model.column(req.Index)
	native := fulltext.TranslateFunc(q, fulltext.Rendering{Leaf: mysqlLeaf})
	join := fulltextJoin(req, req.Model.Table)
	match := fmt.Sprintf("MATCH (%s.%s) AGAINST (? IN BOOLEAN MODE)", join.Alias, col)
	return &FulltextMatch{
		Joins:     []Join{join},
		Where:     match,
		WhereArgs: []any{native},
		Score:     match,
		ScoreArgs: []any{native},
		Native:    native,
	}
}

// mysqlLeaf prefixes boolean mode sigils: + for ANDed words, - for
// excluded ones. Words holding operator characters are quoted.
func mysqlLeaf(term *fulltext.Query, parent fulltext.Op) string {
	w := term.Word
	if term.IsPhrase() || strings.ContainsAny(strings.TrimSuffix(w, "*"), `+-<>()~*"@`) {
		w = `"` + w + `"`
	}
	switch {
	case term.IsNot():
		return "-" + w
	case parent == fulltext.OpAnd:
		return "+" + w
	default:
		return w
	}
}

func mysqlFulltextDDL(d *Dialect, m FulltextModel) []string {
	var stmts []string
	for _, index := range sortedKeys(m.Columns) {
		col := m.Columns[index]
		stmts = append(stmts, fmt.Sprintf("CREATE FULLTEXT INDEX %s ON %s (%s)",
			d.QuoteIdentifier(d.IndexName(m.Table, col)), d.QuoteIdentifier(m.Table), d.QuoteIdentifier(col)))
	}
	return stmts
}

func mysqlReadACL(d *Dialect, idColumn string, principals []string) *Predicate {
	users := strings.Join(principals, d.cfg.ArraySeparator)
	return &Predicate{
		SQL: fmt.Sprintf("%s IN (SELECT r.id FROM hierarchy_read_acl r"+
			" JOIN aclr_user_map u ON r.acl_id = u.acl_id WHERE u.user_id = nx_hash_users(?))", idColumn),
		Args:        []any{users},
		Prepare:     "CALL nx_prepare_user_read_acls(?)",
		PrepareArgs: []any{users},
	}
}

func mysqlProbe(scan scanFunc) (Metadata, error) {
	var version string
	if err := scan(&version); err != nil {
		return Metadata{}, err
	}
	meta := Metadata{ProductName: "MySQL", ProductVersion: version}
	if strings.Contains(strings.ToLower(version), "mariadb") {
		meta.ProductName = "MariaDB"
	}
	meta.Major, meta.Minor = parseVersion(version)
	return meta, nil
}

// joinedDirectCheck renders a call-style access check taking principals and
// permissions as separator-joined strings.
func joinedDirectCheck(format string) func(*Dialect, string, []string) *Predicate {
	return func(d *Dialect, idColumn string, principals []string) *Predicate {
		return &Predicate{
			SQL: fmt.Sprintf(format, idColumn),
			Args: []any{
				strings.Join(principals, d.cfg.ArraySeparator),
				strings.Join(d.cfg.Permissions, d.cfg.ArraySeparator),
			},
		}
	}
}

func joinedArrayParam(d *Dialect, values []string) (any, error) {
	for _, v := range values {
		if strings.Contains(v, d.cfg.ArraySeparator) {
			return nil, NewConfigError(d.family, "arrays", "value %q contains the separator %q", v, d.cfg.ArraySeparator)
		}
	}
	return strings.Join(values, d.cfg.ArraySeparator), nil
}
