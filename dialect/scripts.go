package dialect

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"strings"

	"github.com/syssam/velox-storage/sqlstore"
)

//go:embed scripts/*.sql.txt
var scriptFS embed.FS

// Script categories run around schema creation.
const (
	CategoryBeforeTableCreation = "beforeTableCreation"
	CategoryAfterTableCreation  = "afterTableCreation"
)

func loadScripts(family string, logger *slog.Logger) (*sqlstore.Store, error) {
	s, err := sqlstore.LoadFS(scriptFS, []string{"scripts/" + family + ".sql.txt"}, sqlstore.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("dialect: %s scripts: %w", family, err)
	}
	return s, nil
}

// Statements returns the SQL scripts of the backend.
func (d *Dialect) Statements() *sqlstore.Store {
	return d.scripts
}

// ScriptProperties returns a new property bag describing the dialect to
// its scripts. Each script execution needs its own bag.
func (d *Dialect) ScriptProperties() sqlstore.Properties {
	props := sqlstore.Properties{
		"fulltextEnabled":          d.caps.SupportsFulltext && !d.cfg.FulltextDisabled,
		"fulltextAnalyzer":         d.cfg.FulltextAnalyzer,
		"fulltextCatalog":          d.cfg.FulltextCatalog,
		"aclOptimizationsEnabled":  d.cfg.ACLOptimizationsEnabled,
		"pathOptimizationsEnabled": d.cfg.PathOptimizationsEnabled,
		"clusteringEnabled":        d.cfg.ClusteringEnabled,
		"readAclMaxSize":           d.cfg.ReadACLMaxSize,
		"arraySeparator":           d.cfg.ArraySeparator,
		"hierarchyTable":           d.security.HierarchyTable,
		"aclTable":                 d.security.ACLTable,
		"readPermissions":          sqlList(d.cfg.Permissions),
	}
	for name, col := range map[string]Column{
		"idType":               {Type: TypeNodeID},
		"sysNameType":          {Type: TypeSysName},
		"clusterNodeType":      {Type: TypeClusterNode},
		"clusterFragmentsType": {Type: TypeClusterFragments},
		"ftStoredType":         {Type: TypeFTStored},
		"readAclType":          {Type: TypeVarchar, Length: d.cfg.ReadACLMaxSize},
	} {
		if t, err := d.MapType(col); err == nil {
			props[name] = t.Name
		}
	}
	return props
}

// sqlList renders names as a list of SQL string literals.
func sqlList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = "'" + strings.ReplaceAll(n, "'", "''") + "'"
	}
	return strings.Join(quoted, ", ")
}

// ExecuteScript runs a category of the backend scripts. extra overrides
// ScriptProperties.
func (d *Dialect) ExecuteScript(ctx context.Context, q sqlstore.ExecQuerier, category string, extra sqlstore.Properties) (*sqlstore.Report, error) {
	props := d.ScriptProperties()
	for k, v := range extra {
		props[k] = v
	}
	return d.scripts.Execute(ctx, q, category, props)
}
