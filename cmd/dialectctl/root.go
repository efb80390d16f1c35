package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/syssam/velox-storage/dialect"
	"github.com/syssam/velox-storage/dialect/sql"
)

const (
	formatText = "text"
	formatJSON = "json"
)

// rootOptions holds the global flags.
type rootOptions struct {
	Driver  string
	DSN     string
	Config  string
	Product string
	Version string
	Format  string
	Verbose bool
	// SlowThreshold is the duration above which a statement is reported
	// as slow, 0 to disable.
	SlowThreshold time.Duration
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "dialectctl",
		Short:         "Inspect the SQL dialect of a database backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if !slices.Contains([]string{formatText, formatJSON}, opts.Format) {
				return commandError(fmt.Sprintf("invalid format %q", opts.Format), nil)
			}
			return nil
		},
	}
	f := cmd.PersistentFlags()
	f.StringVar(&opts.Driver, "driver", "sqlite", "database/sql driver name (pgx, postgres, mysql, sqlite, sqlserver)")
	f.StringVar(&opts.DSN, "dsn", "", "data source name of the database")
	f.StringVar(&opts.Config, "config", "", "YAML repository descriptor")
	f.StringVar(&opts.Product, "product", "", "database product name, used without --dsn (e.g. PostgreSQL)")
	f.StringVar(&opts.Version, "product-version", "", "database product version, used with --product")
	f.StringVar(&opts.Format, "format", formatText, "output format (text|json)")
	f.BoolVarP(&opts.Verbose, "verbose", "v", false, "log dialect decisions and statements to stderr")
	f.DurationVar(&opts.SlowThreshold, "slow-threshold", sql.DefaultSlowThreshold, "report statements slower than this, 0 to disable")

	cmd.AddCommand(
		newDetectCommand(opts),
		newTypesCommand(opts),
		newNameCommand(opts),
		newFulltextCommand(opts),
		newExecCommand(opts),
		newCheckCommand(opts),
	)
	return cmd
}

// session is a Dialect, with the database it was probed from when a
// DSN was given.
type session struct {
	d   *dialect.Dialect
	drv *sql.Driver
	// stats counts the statements run through conn.
	stats  *sql.QueryStats
	logger *slog.Logger
	debug  bool
}

func (s *session) online() bool { return s.drv != nil }

// conn wraps eq so its statements are counted, and logged with -v.
func (s *session) conn(eq sql.ExecQuerier) sql.ExecQuerier {
	if s.debug {
		eq = sql.NewDebugConn(eq, s.logger)
	}
	return sql.NewStatsConn(eq, s.stats)
}

func (s *session) Close() error {
	if s.drv == nil {
		return nil
	}
	return s.drv.Close()
}

var errNoTarget = errors.New("either --dsn or --product is required")

// open builds the Dialect described by the global flags. With a DSN the
// database is probed, otherwise --product selects the backend. needDB
// rejects the offline form.
func (o *rootOptions) open(cmd *cobra.Command, needDB bool) (*session, error) {
	cfg := dialect.Config{}
	if o.Config != "" {
		var err error
		if cfg, err = dialect.LoadConfig(o.Config); err != nil {
			return nil, commandError("load config", err)
		}
	}
	level := slog.LevelWarn
	if o.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	switch {
	case o.DSN != "":
		return o.openDB(cmd.Context(), cfg, logger)
	case needDB:
		return nil, commandError(cmd.Name()+" needs a database", errors.New("--dsn is required"))
	case o.Product == "":
		return nil, commandError(cmd.Name(), errNoTarget)
	}
	meta := dialect.Metadata{ProductName: o.Product, ProductVersion: o.Version}
	_, _ = fmt.Sscanf(o.Version, "%d.%d", &meta.Major, &meta.Minor)
	d, err := dialect.New(meta, cfg, dialect.WithLogger(logger))
	if err != nil {
		return nil, commandError("select dialect", err)
	}
	return &session{d: d}, nil
}

func (o *rootOptions) openDB(ctx context.Context, cfg dialect.Config, logger *slog.Logger) (*session, error) {
	drv, err := sql.Open(o.Driver, o.DSN)
	if err != nil {
		return nil, commandError("open database", err)
	}
	d, err := drv.OpenDialect(ctx, cfg, dialect.WithLogger(logger))
	if err != nil {
		drv.Close()
		return nil, commandError("detect dialect", err)
	}
	return &session{
		d:      d,
		drv:    drv.Bind(d),
		stats:  sql.NewQueryStats(sql.WithSlowThreshold(o.SlowThreshold), sql.WithSlowQueryLogger(logger)),
		logger: logger,
		debug:  o.Verbose,
	}, nil
}

func (o *rootOptions) printer(cmd *cobra.Command) printer {
	return printer{format: o.Format, w: cmd.OutOrStdout()}
}
