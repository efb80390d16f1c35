package dialect

import (
	"strings"

	"github.com/syssam/velox-storage/fulltext"
)

// backend holds the pieces of a Dialect that differ in shape per database
// family. Everything else is driven by Capabilities.
type backend struct {
	family   string
	products []string

	capabilities func(Metadata, Config) Capabilities
	mapType      func(d *Dialect, col Column) (SQLType, bool)
	compatible   func(expected, actual GenericType, actualName string, actualSize int) bool
	quote        func(name string) string

	fulltext    func(d *Dialect, req FulltextRequest, q *fulltext.Query) *FulltextMatch
	fulltextDDL func(d *Dialect, m FulltextModel) []string

	directCheck func(d *Dialect, idColumn string, principals []string) *Predicate
	readACL     func(d *Dialect, idColumn string, principals []string) *Predicate
	arrayParam  func(d *Dialect, values []string) (any, error)

	paging           func(limit, offset int) string
	connectionBroken func(error) bool
	concurrentUpdate func(error) bool

	probe func(row scanFunc) (Metadata, error)
	// probeQuery returns the product version, and for SQL Server the engine edition.
	probeQuery string
}

var backends = []*backend{
	postgresBackend,
	mysqlBackend,
	sqliteBackend,
	sqlserverBackend,
}

// backendFor matches a JDBC-style product name, e.g. "PostgreSQL" or
// "Microsoft SQL Server", against the known backends.
func backendFor(product string) (*backend, error) {
	name := strings.ToLower(product)
	for _, b := range backends {
		for _, p := range b.products {
			if strings.Contains(name, p) {
				return b, nil
			}
		}
	}
	return nil, NewConfigError("", "", "unsupported database product %q", product)
}

func backendByFamily(family string) (*backend, error) {
	for _, b := range backends {
		if b.family == family {
			return b, nil
		}
	}
	return nil, NewConfigError(family, "", "unknown backend family")
}

// Families returns the supported backend families.
func Families() []string {
	families := make([]string, len(backends))
	for i, b := range backends {
		families[i] = b.family
	}
	return families
}
