package dialect

import (
	"context"
	"fmt"
	"sort"

	"github.com/syssam/velox-storage/sqlstore"
)

// SecurityModel names the tables and columns read by security predicates.
type SecurityModel struct {
	HierarchyTable string
	IDColumn       string
	ParentColumn   string
	ACLTable       string
	ACLIDColumn    string
	PosColumn      string
	UserColumn     string
	PermColumn     string
	GrantColumn    string
}

func (m SecurityModel) withDefaults() SecurityModel {
	set := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	set(&m.HierarchyTable, "hierarchy")
	set(&m.IDColumn, "id")
	set(&m.ParentColumn, "parentid")
	set(&m.ACLTable, "acls")
	set(&m.ACLIDColumn, "id")
	set(&m.PosColumn, "pos")
	set(&m.UserColumn, "user")
	set(&m.PermColumn, "permission")
	set(&m.GrantColumn, "grant")
	return m
}

// Predicate is a WHERE fragment restricting rows to those readable by a set
// of principals. Prepare, when set, must run once in the same transaction
// before the query using SQL.
type Predicate struct {
	SQL         string
	Args        []any
	Prepare     string
	PrepareArgs []any
}

// SecurityPredicate returns the predicate filtering idColumn for principals.
// The per-row recursive check is used unless read ACL optimizations are
// enabled, in which case membership in the precomputed read ACLs is tested.
func (d *Dialect) SecurityPredicate(idColumn string, principals []string) (*Predicate, error) {
	if idColumn == "" {
		return nil, fmt.Errorf("dialect: security predicate: empty id column")
	}
	if len(principals) == 0 {
		return &Predicate{SQL: NoMatch}, nil
	}
	principals = sortedUnique(principals)
	if d.cfg.ACLOptimizationsEnabled {
		if d.backend.readACL == nil {
			return nil, unsupported(d.family, "read ACL optimizations")
		}
		return d.backend.readACL(d, idColumn, principals), nil
	}
	return d.backend.directCheck(d, idColumn, principals), nil
}

// ArrayParam encodes values as a single bind parameter: a native array
// where supported, otherwise a separator-joined string or a JSON array.
func (d *Dialect) ArrayParam(values []string) (any, error) {
	return d.backend.arrayParam(d, values)
}

func sortedUnique(values []string) []string {
	out := append([]string(nil), values...)
	sort.Strings(out)
	n := 0
	for i, v := range out {
		if i == 0 || v != out[n-1] {
			out[n] = v
			n++
		}
	}
	return out[:n]
}

// ReadACLMaintainer keeps the read ACL index consistent with ACLs. It is
// invoked whenever ACLs change and for a full rebuild.
type ReadACLMaintainer interface {
	UpdateReadACLs(ctx context.Context, q sqlstore.ExecQuerier) error
	RebuildReadACLs(ctx context.Context, q sqlstore.ExecQuerier) error
}

// Script categories maintaining the read ACL index.
const (
	CategoryUpdateReadACLs  = "updateReadAcls"
	CategoryRebuildReadACLs = "rebuildReadAcls"
)

// ScriptReadACLMaintainer runs the backend's read ACL script categories.
type ScriptReadACLMaintainer struct {
	d *Dialect
}

// NewReadACLMaintainer returns the maintainer of the dialect's read ACL index.
func NewReadACLMaintainer(d *Dialect) (*ScriptReadACLMaintainer, error) {
	if !d.caps.SupportsReadACL {
		return nil, unsupported(d.family, "read ACL optimizations")
	}
	return &ScriptReadACLMaintainer{d: d}, nil
}

// UpdateReadACLs applies pending ACL changes to the read ACL index.
func (m *ScriptReadACLMaintainer) UpdateReadACLs(ctx context.Context, q sqlstore.ExecQuerier) error {
	return m.run(ctx, q, CategoryUpdateReadACLs)
}

// RebuildReadACLs recomputes the whole read ACL index.
func (m *ScriptReadACLMaintainer) RebuildReadACLs(ctx context.Context, q sqlstore.ExecQuerier) error {
	return m.run(ctx, q, CategoryRebuildReadACLs)
}

func (m *ScriptReadACLMaintainer) run(ctx context.Context, q sqlstore.ExecQuerier, category string) error {
	if !m.d.cfg.ACLOptimizationsEnabled {
		return nil
	}
	if _, err := m.d.ExecuteScript(ctx, q, category, nil); err != nil {
		return fmt.Errorf("dialect: %s: %w", category, err)
	}
	return nil
}

var _ ReadACLMaintainer = (*ScriptReadACLMaintainer)(nil)
