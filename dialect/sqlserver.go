package dialect

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/syssam/velox-storage/dialect/sql/sqlerr"
	"github.com/syssam/velox-storage/fulltext"
)

// azureEngineEdition is the SQL Server engine edition of Azure SQL Database,
// which has no fulltext search.
const azureEngineEdition = 5

var sqlserverBackend = &backend{
	family:   SQLServer,
	products: []string{"microsoft sql server", "sql server", "sqlserver"},
	capabilities: func(meta Metadata, _ Config) Capabilities {
		modern := func(major int) bool { return meta.Major == 0 || meta.Major >= major }
		return Capabilities{
			// OFFSET/FETCH appeared in SQL Server 2012 (11), DROP ... IF EXISTS in 2016 (13).
			SupportsPaging:         modern(11),
			SupportsReadACL:        true,
			SupportsClustering:     true,
			RequiresExplicitDelete: true,
			SupportsFulltext:       meta.EngineEdition != azureEngineEdition,
			SupportsPhraseSearch:   true,
			SupportsIfExists:       modern(13),
			MaxIdentifierLength:    128,
			MaxInListSize:          2000,
			StoresUpperCase:        meta.StoresUpperCaseIdentifiers,
			Placeholder:            PlaceholderAtP,
			FulltextWildcard:       "*",
		}
	},
	mapType:     sqlserverType,
	quote:       bracketQuote,
	fulltext:    sqlserverFulltext,
	fulltextDDL: sqlserverFulltextDDL,
	directCheck: joinedDirectCheck("dbo.NX_ACCESS_ALLOWED(%s, ?, ?) = 1"),
	readACL: func(d *Dialect, idColumn string, principals []string) *Predicate {
		return &Predicate{
			SQL:  fmt.Sprintf("%s IN (SELECT r.id FROM hierarchy_read_acl r WHERE r.acl_id IN (SELECT acl_id FROM dbo.nx_get_read_acls_for(?)))", idColumn),
			Args: []any{strings.Join(principals, d.cfg.ArraySeparator)},
		}
	},
	arrayParam:       joinedArrayParam,
	paging:           sqlserverPaging,
	connectionBroken: sqlerr.IsConnectionBroken,
	concurrentUpdate: sqlerr.IsConcurrentUpdate,
	probeQuery:       "SELECT CAST(SERVERPROPERTY('ProductVersion') AS nvarchar(128)), CAST(SERVERPROPERTY('EngineEdition') AS int)",
	probe:            sqlserverProbe,
}

// sqlserverMaxNVarchar is the longest bounded nvarchar.
const sqlserverMaxNVarchar = 4000

func sqlserverType(_ *Dialect, col Column) (SQLType, bool) {
	switch col.Type {
	case TypeVarchar:
		if col.Length > sqlserverMaxNVarchar {
			return SQLType{Name: "nvarchar(max)", Code: GenericClob}, true
		}
		return varchar("nvarchar", col.Length, SQLType{Name: "nvarchar(4000)", Code: GenericNVarchar}), true
	case TypeClob, TypeFTStored, TypeSysNameArray:
		return SQLType{Name: "nvarchar(max)", Code: GenericClob}, true
	case TypeBoolean:
		return SQLType{Name: "bit", Code: GenericBit}, true
	case TypeLong:
		return SQLType{Name: "bigint", Code: GenericBigInt}, true
	case TypeDouble:
		return SQLType{Name: "double precision", Code: GenericDouble}, true
	case TypeTimestamp:
		return SQLType{Name: "datetime2(3)", Code: GenericTimestamp}, true
	case TypeBlobID, TypeSysName:
		return SQLType{Name: "nvarchar(250)", Code: GenericNVarchar}, true
	case TypeNodeID, TypeNodeIDFK, TypeNodeIDFKNullable, TypeNodeIDPK, TypeNodeVal, TypeClusterNode:
		return SQLType{Name: "varchar(36)", Code: GenericVarchar}, true
	case TypeNodeIDFKMulti:
		return SQLType{Name: "varchar(max)", Code: GenericClob}, true
	case TypeTinyInt:
		return SQLType{Name: "tinyint", Code: GenericTinyInt}, true
	case TypeInteger:
		return SQLType{Name: "int", Code: GenericInteger}, true
	case TypeAutoInc:
		return SQLType{Name: "int identity", Code: GenericInteger}, true
	case TypeClusterFragments:
		return SQLType{Name: "varchar(8000)", Code: GenericVarchar}, true
	}
	return SQLType{}, false
}

// sqlserverFulltext joins CONTAINSTABLE, which both filters and ranks; the
// native query is the join parameter.
func sqlserverFulltext(d *Dialect, req FulltextRequest, q *fulltext.Query) *FulltextMatch {
	col, _ := req.Model.column(req.Index)
	native := fulltext.TranslateFunc(q, fulltext.Rendering{
		Or:     "OR",
		And:    "AND",
		AndNot: "AND NOT",
		Leaf: func(term *fulltext.Query, _ fulltext.Op) string {
			return `"` + term.Word + `"`
		},
	})
	alias := req.alias()
	table := fmt.Sprintf("CONTAINSTABLE(%s, %s, ?, LANGUAGE '%s')",
		bracketQuote(req.Model.Table), bracketQuote(col), d.analyzer(req.Model, req.Index))
	return &FulltextMatch{
		Joins: []Join{{
			Kind:  JoinInner,
			Table: table,
			Alias: alias,
			On1:   req.MainColumn,
			On2:   alias + ".[KEY]",
			Param: native,
		}},
		Score:  alias + ".[RANK]",
		Native: native,
	}
}

func sqlserverFulltextDDL(d *Dialect, m FulltextModel) []string {
	catalog := d.cfg.FulltextCatalog
	var cols []string
	for _, index := range sortedKeys(m.Columns) {
		cols = append(cols, fmt.Sprintf("%s LANGUAGE '%s'", bracketQuote(m.Columns[index]), d.analyzer(m, index)))
	}
	return []string{
		fmt.Sprintf("IF NOT EXISTS (SELECT 1 FROM sys.fulltext_catalogs WHERE name = '%s') CREATE FULLTEXT CATALOG %s",
			catalog, bracketQuote(catalog)),
		fmt.Sprintf("CREATE FULLTEXT INDEX ON %s (%s) KEY INDEX %s ON %s",
			bracketQuote(m.Table), strings.Join(cols, ", "), bracketQuote(d.PrimaryKeyName(m.Table)), bracketQuote(catalog)),
	}
}

func sqlserverPaging(limit, offset int) string {
	if limit > 0 {
		return fmt.Sprintf("OFFSET %d ROWS FETCH NEXT %d ROWS ONLY", offset, limit)
	}
	return fmt.Sprintf("OFFSET %d ROWS", offset)
}

func sqlserverProbe(scan scanFunc) (Metadata, error) {
	var (
		version string
		edition sql.NullInt64
	)
	if err := scan(&version, &edition); err != nil {
		return Metadata{}, err
	}
	meta := Metadata{
		ProductName:    "Microsoft SQL Server",
		ProductVersion: version,
		EngineEdition:  int(edition.Int64),
	}
	meta.Major, meta.Minor = parseVersion(version)
	return meta, nil
}
