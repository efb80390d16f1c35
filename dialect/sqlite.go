package dialect

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/syssam/velox-storage/dialect/sql/sqlerr"
	"github.com/syssam/velox-storage/fulltext"
)

// ftsSuffix names the FTS5 virtual table shadowing a fulltext table.
const ftsSuffix = "_fts"

var sqliteBackend = &backend{
	family:   SQLite,
	products: []string{"sqlite"},
	capabilities: func(meta Metadata, _ Config) Capabilities {
		return Capabilities{
			SupportsPaging:         true,
			SupportsClustering:     true,
			RequiresExplicitDelete: true,
			SupportsFulltext:       true,
			SupportsPhraseSearch:   true,
			SupportsIfExists:       true,
			MaxIdentifierLength:    128,
			MaxInListSize:          999,
			StoresUpperCase:        meta.StoresUpperCaseIdentifiers,
			Placeholder:            PlaceholderQuestion,
			FulltextWildcard:       "*",
		}
	},
	mapType:          sqliteType,
	compatible:       sqliteCompatible,
	quote:            doubleQuote,
	fulltext:         sqliteFulltext,
	fulltextDDL:      sqliteFulltextDDL,
	directCheck:      sqliteDirectCheck,
	arrayParam:       func(_ *Dialect, values []string) (any, error) { return jsonArray(values), nil },
	paging:           func(limit, offset int) string { return limitOffset(limit, offset, "-1") },
	connectionBroken: sqlerr.IsConnectionBroken,
	concurrentUpdate: sqlerr.IsConcurrentUpdate,
	probeQuery:       "SELECT sqlite_version()",
	probe:            sqliteProbe,
}

func sqliteType(_ *Dialect, col Column) (SQLType, bool) {
	switch col.Type {
	case TypeVarchar:
		return varchar("varchar", col.Length, SQLType{Name: "text", Code: GenericVarchar}), true
	case TypeClob, TypeFTStored:
		return SQLType{Name: "text", Code: GenericClob}, true
	case TypeBoolean:
		return SQLType{Name: "boolean", Code: GenericBoolean}, true
	case TypeLong:
		return SQLType{Name: "bigint", Code: GenericBigInt}, true
	case TypeDouble:
		return SQLType{Name: "double", Code: GenericDouble}, true
	case TypeTimestamp:
		return SQLType{Name: "timestamp", Code: GenericTimestamp}, true
	case TypeBlobID, TypeSysName:
		return SQLType{Name: "varchar(250)", Code: GenericVarchar}, true
	case TypeNodeID, TypeNodeIDFK, TypeNodeIDFKNullable, TypeNodeIDPK, TypeNodeVal, TypeClusterNode:
		return SQLType{Name: "varchar(36)", Code: GenericVarchar}, true
	case TypeNodeIDFKMulti, TypeSysNameArray, TypeClusterFragments:
		return SQLType{Name: "text", Code: GenericVarchar}, true
	case TypeTinyInt:
		return SQLType{Name: "tinyint", Code: GenericTinyInt}, true
	case TypeInteger:
		return SQLType{Name: "integer", Code: GenericInteger}, true
	case TypeAutoInc:
		return SQLType{Name: "integer PRIMARY KEY AUTOINCREMENT", Code: GenericInteger}, true
	}
	return SQLType{}, false
}

// sqliteCompatible follows type affinity: timestamps are stored as text and
// booleans as integers.
func sqliteCompatible(expected, actual GenericType, _ string, _ int) bool {
	switch {
	case expected == GenericTimestamp:
		return isString(actual)
	case isBoolean(expected):
		return actual == GenericInteger || actual == GenericTinyInt
	}
	return false
}

func sqliteFulltext(_ *Dialect, req FulltextRequest, q *fulltext.Query) *FulltextMatch {
	col, _ := req.Model.column(req.Index)
	native := fulltext.TranslateFunc(q, fulltext.Rendering{
		Or:     "OR",
		And:    "AND",
		AndNot: "NOT",
		Leaf:   sqliteLeaf,
	})
	join := fulltextJoin(req, req.Model.Table+ftsSuffix)
	return &FulltextMatch{
		Joins:     []Join{join},
		Where:     join.Alias + "." + col + " MATCH ?",
		WhereArgs: []any{native},
		// FTS5 ranks best matches lowest.
		Score:  "-" + join.Alias + ".rank",
		Native: native,
	}
}

// sqliteLeaf renders an FTS5 string or bareword. A trailing * stays outside
// the quotes to keep its prefix meaning.
func sqliteLeaf(term *fulltext.Query, _ fulltext.Op) string {
	core, isPrefix := strings.CutSuffix(term.Word, "*")
	if term.IsPhrase() || !isBareword(core) {
		core = `"` + strings.ReplaceAll(core, `"`, `""`) + `"`
	}
	if isPrefix {
		return core + "*"
	}
	return core
}

func isBareword(s string) bool {
	switch s {
	case "", "AND", "OR", "NOT", "NEAR":
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 0x80 || c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' {
			continue
		}
		return false
	}
	return true
}

func sqliteFulltextDDL(_ *Dialect, m FulltextModel) []string {
	cols := []string{m.IDColumn + " UNINDEXED"}
	for _, index := range sortedKeys(m.Columns) {
		cols = append(cols, m.Columns[index])
	}
	return []string{fmt.Sprintf("CREATE VIRTUAL TABLE IF NOT EXISTS %s USING fts5(%s)",
		m.Table+ftsSuffix, strings.Join(cols, ", "))}
}

// sqliteDirectCheck walks the hierarchy from its roots. Each document takes
// the grant of its first ACE matching a principal and permission, or
// inherits the decision of its parent; roots without a match are denied.
func sqliteDirectCheck(d *Dialect, idColumn string, principals []string) *Predicate {
	m, q := d.security, d.QuoteIdentifier
	ace := fmt.Sprintf("(SELECT a.%s FROM %s a WHERE a.%s = h.%s"+
		" AND a.%s IN (SELECT value FROM json_each(?))"+
		" AND a.%s IN (SELECT value FROM json_each(?))"+
		" ORDER BY a.%s LIMIT 1)",
		q(m.GrantColumn), q(m.ACLTable), q(m.ACLIDColumn), q(m.IDColumn),
		q(m.UserColumn), q(m.PermColumn), q(m.PosColumn))
	walk := fmt.Sprintf("WITH RECURSIVE nx_acl_walk(id, allowed) AS ("+
		"SELECT h.%[1]s, COALESCE(%[2]s, 0) FROM %[3]s h WHERE h.%[4]s IS NULL"+
		" UNION ALL "+
		"SELECT h.%[1]s, COALESCE(%[2]s, w.allowed) FROM %[3]s h JOIN nx_acl_walk w ON h.%[4]s = w.id"+
		") SELECT id FROM nx_acl_walk WHERE allowed = 1",
		q(m.IDColumn), ace, q(m.HierarchyTable), q(m.ParentColumn))
	users, perms := jsonArray(principals), jsonArray(d.cfg.Permissions)
	return &Predicate{
		SQL:  fmt.Sprintf("%s IN (%s)", idColumn, walk),
		Args: []any{users, perms, users, perms},
	}
}

func jsonArray(values []string) string {
	if values == nil {
		values = []string{}
	}
	b, _ := json.Marshal(values)
	return string(b)
}

func sqliteProbe(scan scanFunc) (Metadata, error) {
	var version string
	if err := scan(&version); err != nil {
		return Metadata{}, err
	}
	meta := Metadata{ProductName: "SQLite", ProductVersion: version}
	meta.Major, meta.Minor = parseVersion(version)
	return meta, nil
}
