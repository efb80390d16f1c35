package dialect

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/syssam/velox-storage/sqlstore"
)

// Backend families.
const (
	Postgres  = "postgres"
	MySQL     = "mysql"
	SQLite    = "sqlite"
	SQLServer = "sqlserver"
)

// ExecQuerier wraps the 2 database operations.
type ExecQuerier interface {
	// Exec executes a query that does not return records. For example, in SQL, INSERT or UPDATE.
	// It scans the result into the pointer v. For SQL drivers, it is dialect/sql.Result.
	Exec(ctx context.Context, query string, args, v any) error
	// Query executes a query that returns rows, typically a SELECT in SQL.
	// It scans the result into the pointer v. For SQL drivers, it is *dialect/sql.Rows.
	Query(ctx context.Context, query string, args, v any) error
}

// Driver is the interface that wraps all necessary operations for connections.
type Driver interface {
	ExecQuerier
	// Tx starts and returns a new transaction.
	Tx(context.Context) (Tx, error)
	// Close closes the underlying connection.
	Close() error
	// Dialect returns the backend family of the driver.
	Dialect() string
}

// Tx wraps the Exec and Query operations in transaction.
type Tx interface {
	ExecQuerier
	Commit() error
	Rollback() error
}

// Querier is the database/sql subset used to probe a live connection.
// *sql.DB, *sql.Tx, *sql.Conn and dialect/sql drivers implement it.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Metadata describes the live database a Dialect is built for.
type Metadata struct {
	ProductName    string
	ProductVersion string
	Major, Minor   int
	// StoresUpperCaseIdentifiers is true when unquoted identifiers fold to upper case.
	StoresUpperCaseIdentifiers bool
	// EngineEdition is the SQL Server engine edition, 5 for Azure SQL Database.
	EngineEdition int
}

// AtLeast reports whether the product version is major.minor or later.
func (m Metadata) AtLeast(major, minor int) bool {
	return m.Major > major || m.Major == major && m.Minor >= minor
}

// PlaceholderStyle is the bind parameter syntax of a backend.
type PlaceholderStyle int

// Placeholder styles.
const (
	PlaceholderQuestion PlaceholderStyle = iota // ?
	PlaceholderDollar                           // $1
	PlaceholderAtP                              // @p1
)

// Capabilities lists what a backend supports. It is fixed at construction.
type Capabilities struct {
	SupportsArrays         bool
	SupportsPaging         bool
	SupportsReadACL        bool
	SupportsClustering     bool
	RequiresExplicitDelete bool
	SupportsFulltext       bool
	SupportsPhraseSearch   bool
	SupportsIfExists       bool
	MaxIdentifierLength    int
	// MaxInListSize is the largest IN (...) list the backend accepts.
	// Callers chunk longer lists.
	MaxInListSize    int
	StoresUpperCase  bool
	Placeholder      PlaceholderStyle
	FulltextWildcard string
}

// Dialect is the per-repository façade over one database backend. It is
// built once by New and is safe for concurrent use.
type Dialect struct {
	family   string
	meta     Metadata
	cfg      Config
	caps     Capabilities
	backend  *backend
	security SecurityModel
	scripts  *sqlstore.Store
	logger   *slog.Logger
}

// Option configures a Dialect.
type Option func(*Dialect)

// WithLogger sets the logger. slog.Default() is used otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dialect) {
		d.logger = l
	}
}

// WithSecurityModel overrides the tables and columns read by security predicates.
func WithSecurityModel(m SecurityModel) Option {
	return func(d *Dialect) {
		d.security = m.withDefaults()
	}
}

// New selects the backend matching meta.ProductName and checks cfg against
// its capabilities. Configuration that cannot be honored fails here rather
// than at query time.
func New(meta Metadata, cfg Config, opts ...Option) (*Dialect, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b, err := backendFor(meta.ProductName)
	if err != nil {
		return nil, err
	}
	d := &Dialect{
		family:   b.family,
		meta:     meta,
		cfg:      cfg,
		backend:  b,
		security: SecurityModel{}.withDefaults(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.caps = b.capabilities(meta, cfg)
	if cfg.ACLOptimizationsEnabled && !d.caps.SupportsReadACL {
		return nil, unsupported(d.family, "read ACL optimizations")
	}
	if cfg.ClusteringEnabled && !d.caps.SupportsClustering {
		return nil, unsupported(d.family, "clustering")
	}
	if !cfg.FulltextDisabled && !d.caps.SupportsFulltext {
		d.logger.Warn("fulltext search unavailable, disabling it",
			"family", d.family, "product", meta.ProductName, "edition", meta.EngineEdition)
	}
	if d.scripts, err = loadScripts(d.family, d.logger); err != nil {
		return nil, err
	}
	d.logger.Info("dialect selected",
		"family", d.family, "product", meta.ProductName, "version", meta.ProductVersion,
		"fulltext", d.caps.SupportsFulltext, "aclOptimizations", cfg.ACLOptimizationsEnabled)
	return d, nil
}

// Open probes q for its metadata and builds the Dialect for it.
func Open(ctx context.Context, q Querier, family string, cfg Config, opts ...Option) (*Dialect, error) {
	meta, err := Probe(ctx, q, family)
	if err != nil {
		return nil, err
	}
	return New(meta, cfg, opts...)
}

// Family returns the backend family, e.g. Postgres.
func (d *Dialect) Family() string { return d.family }

// Metadata returns the metadata the dialect was built for.
func (d *Dialect) Metadata() Metadata { return d.meta }

// Config returns the repository configuration with defaults applied.
func (d *Dialect) Config() Config { return d.cfg }

// Capabilities returns the capability table of the backend.
func (d *Dialect) Capabilities() Capabilities { return d.caps }

// Logger returns the logger of the dialect.
func (d *Dialect) Logger() *slog.Logger { return d.logger }

// Placeholder returns the i-th (1-based) bind parameter marker.
func (d *Dialect) Placeholder(i int) string {
	switch d.caps.Placeholder {
	case PlaceholderDollar:
		return "$" + strconv.Itoa(i)
	case PlaceholderAtP:
		return "@p" + strconv.Itoa(i)
	default:
		return "?"
	}
}

// Rebind rewrites the ? markers of query into the backend's placeholder
// syntax. Markers inside quoted strings and identifiers are left alone.
func (d *Dialect) Rebind(query string) string {
	if d.caps.Placeholder == PlaceholderQuestion || !strings.Contains(query, "?") {
		return query
	}
	var (
		b     strings.Builder
		n     int
		quote byte
	)
	b.Grow(len(query) + 8)
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '?':
			n++
			b.WriteString(d.Placeholder(n))
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// PagingClause returns the clause appended to an ordered SELECT to skip
// offset rows and return at most limit rows. A limit of 0 means no limit.
func (d *Dialect) PagingClause(limit, offset int) (string, error) {
	if !d.caps.SupportsPaging {
		return "", unsupported(d.family, "paging")
	}
	if limit < 0 || offset < 0 {
		return "", fmt.Errorf("dialect: invalid paging limit=%d offset=%d", limit, offset)
	}
	return d.backend.paging(limit, offset), nil
}

// IsConnectionBroken reports whether err means the physical connection is
// unusable and must be discarded.
func (d *Dialect) IsConnectionBroken(err error) bool {
	return d.backend.connectionBroken(err)
}

// IsConcurrentUpdate reports whether err is a concurrent update conflict
// (deadlock, serialization failure, lock timeout) for which the whole
// transaction may be retried by the caller.
func (d *Dialect) IsConcurrentUpdate(err error) bool {
	return d.backend.concurrentUpdate(err)
}
