package dialect

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/syssam/velox-storage/dialect/sql/sqlerr"
	"github.com/syssam/velox-storage/fulltext"
)

var postgresBackend = &backend{
	family:   Postgres,
	products: []string{"postgres"},
	capabilities: func(meta Metadata, _ Config) Capabilities {
		return Capabilities{
			SupportsArrays:       true,
			SupportsPaging:       true,
			SupportsReadACL:      true,
			SupportsClustering:   true,
			SupportsFulltext:     true,
			SupportsPhraseSearch: meta.Major == 0 || meta.AtLeast(9, 6),
			SupportsIfExists:     true,
			MaxIdentifierLength:  63,
			MaxInListSize:        10000,
			StoresUpperCase:      meta.StoresUpperCaseIdentifiers,
			Placeholder:          PlaceholderDollar,
			FulltextWildcard:     ":*",
		}
	},
	mapType:          postgresType,
	compatible:       postgresCompatible,
	quote:            doubleQuote,
	fulltext:         postgresFulltext,
	fulltextDDL:      postgresFulltextDDL,
	directCheck:      postgresDirectCheck,
	readACL:          postgresReadACL,
	arrayParam:       func(_ *Dialect, values []string) (any, error) { return pq.Array(values), nil },
	paging:           func(limit, offset int) string { return limitOffset(limit, offset, "") },
	connectionBroken: sqlerr.IsConnectionBroken,
	concurrentUpdate: sqlerr.IsConcurrentUpdate,
	probeQuery:       "SELECT current_setting('server_version'), current_setting('server_version_num')",
	probe:            postgresProbe,
}

func postgresType(_ *Dialect, col Column) (SQLType, bool) {
	switch col.Type {
	case TypeVarchar:
		return varchar("varchar", col.Length, SQLType{Name: "varchar", Code: GenericVarchar}), true
	case TypeClob:
		return SQLType{Name: "text", Code: GenericClob}, true
	case TypeBoolean:
		return SQLType{Name: "bool", Code: GenericBit}, true
	case TypeLong:
		return SQLType{Name: "int8", Code: GenericBigInt}, true
	case TypeDouble:
		return SQLType{Name: "float8", Code: GenericDouble}, true
	case TypeTimestamp:
		return SQLType{Name: "timestamp", Code: GenericTimestamp}, true
	case TypeBlobID, TypeSysName:
		return SQLType{Name: "varchar(250)", Code: GenericVarchar}, true
	case TypeNodeID, TypeNodeIDFK, TypeNodeIDFKNullable, TypeNodeIDPK, TypeNodeVal, TypeClusterNode:
		return SQLType{Name: "varchar(36)", Code: GenericVarchar}, true
	case TypeNodeIDFKMulti:
		return SQLType{Name: "varchar(36)[]", Code: GenericArray}, true
	case TypeSysNameArray:
		return SQLType{Name: "varchar(250)[]", Code: GenericArray}, true
	case TypeTinyInt:
		return SQLType{Name: "int2", Code: GenericSmallInt}, true
	case TypeInteger:
		return SQLType{Name: "int4", Code: GenericInteger}, true
	case TypeAutoInc:
		return SQLType{Name: "serial", Code: GenericInteger}, true
	case TypeFTStored:
		return SQLType{Name: "tsvector", Code: GenericOther}, true
	case TypeClusterFragments:
		return SQLType{Name: "varchar[]", Code: GenericArray}, true
	}
	return SQLType{}, false
}

// postgresCompatible accepts tsvector columns and arrays reported by their
// element type name ("_varchar") or with a "[]" suffix.
func postgresCompatible(expected, _ GenericType, actualName string, _ int) bool {
	name := strings.ToLower(actualName)
	switch expected {
	case GenericOther:
		return name == "tsvector"
	case GenericArray:
		return strings.HasSuffix(name, "[]") || strings.HasPrefix(name, "_")
	}
	return false
}

func postgresFulltext(d *Dialect, req FulltextRequest, q *fulltext.Query) *FulltextMatch {
	col, _ := req.Model.column(req.Index)
	native := fulltext.TranslateFunc(q, fulltext.Rendering{
		Or:      "|",
		And:     "&",
		AndNot:  "& !",
		Compact: true,
		Leaf:    postgresLeaf,
	})
	join := fulltextJoin(req, req.Model.Table)
	target := join.Alias + "." + col
	tsquery := fmt.Sprintf("to_tsquery('%s', ?)", d.analyzer(req.Model, req.Index))
	return &FulltextMatch{
		Joins:     []Join{join},
		Where:     target + " @@ " + tsquery,
		WhereArgs: []any{native},
		Score:     fmt.Sprintf("ts_rank_cd(%s, %s)", target, tsquery),
		ScoreArgs: []any{native},
		Native:    native,
	}
}

// postgresLeaf renders a word as a tsquery lexeme and a phrase as a chain
// of followed-by operators.
func postgresLeaf(term *fulltext.Query, _ fulltext.Op) string {
	if !term.IsPhrase() {
		return lexeme(term.Word)
	}
	words := strings.Fields(term.Word)
	for i, w := range words {
		words[i] = lexeme(w)
	}
	return "(" + strings.Join(words, " <-> ") + ")"
}

// lexeme quotes w when it holds tsquery syntax characters. A trailing
// prefix marker stays outside the quotes.
func lexeme(w string) string {
	const prefix = ":*"
	core, isPrefix := strings.CutSuffix(w, prefix)
	if strings.ContainsAny(core, " &|!():*'\\<>") {
		core = strings.ReplaceAll(core, `\`, `\\`)
		core = "'" + strings.ReplaceAll(core, "'", "''") + "'"
	}
	if isPrefix {
		return core + prefix
	}
	return core
}

func postgresFulltextDDL(d *Dialect, m FulltextModel) []string {
	var stmts []string
	for _, index := range sortedKeys(m.Columns) {
		col := m.Columns[index]
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING GIN (%s)",
			d.IndexName(m.Table, col), m.Table, col))
	}
	return stmts
}

func postgresDirectCheck(d *Dialect, idColumn string, principals []string) *Predicate {
	return &Predicate{
		SQL:  fmt.Sprintf("NX_ACCESS_ALLOWED(%s, ?, ?)", idColumn),
		Args: []any{pq.Array(principals), pq.Array(d.cfg.Permissions)},
	}
}

func postgresReadACL(_ *Dialect, idColumn string, principals []string) *Predicate {
	return &Predicate{
		SQL:  fmt.Sprintf("%s IN (SELECT r.id FROM hierarchy_read_acl r WHERE r.acl_id IN (SELECT nx_get_read_acls_for(?)))", idColumn),
		Args: []any{pq.Array(principals)},
	}
}

func postgresProbe(scan scanFunc) (Metadata, error) {
	var version, num string
	if err := scan(&version, &num); err != nil {
		return Metadata{}, err
	}
	n, err := strconv.Atoi(num)
	if err != nil {
		return Metadata{}, fmt.Errorf("invalid server_version_num %q", num)
	}
	meta := Metadata{ProductName: "PostgreSQL", ProductVersion: version, Major: n / 10000}
	if n >= 100000 {
		meta.Minor = n % 10000
	} else {
		meta.Minor = n / 100 % 100
	}
	return meta, nil
}

// limitOffset renders LIMIT/OFFSET paging. noLimit replaces the limit when
// only an offset is given and the backend requires a LIMIT.
func limitOffset(limit, offset int, noLimit string) string {
	switch {
	case limit > 0 && offset > 0:
		return fmt.Sprintf("LIMIT %d OFFSET %d", limit, offset)
	case limit > 0:
		return fmt.Sprintf("LIMIT %d", limit)
	case offset > 0 && noLimit != "":
		return fmt.Sprintf("LIMIT %s OFFSET %d", noLimit, offset)
	case offset > 0:
		return fmt.Sprintf("OFFSET %d", offset)
	}
	return ""
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
