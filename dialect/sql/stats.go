package sql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// DefaultSlowThreshold is the duration above which a statement is counted
// as slow unless WithSlowThreshold says otherwise.
const DefaultSlowThreshold = 100 * time.Millisecond

// QueryStats collects statement statistics. One collector can be shared by
// several StatsConn, e.g. a driver and the sessions opened from it.
type QueryStats struct {
	queries  atomic.Int64
	execs    atomic.Int64
	slow     atomic.Int64
	errs     atomic.Int64
	duration atomic.Int64 // nanoseconds

	threshold time.Duration
	logger    *slog.Logger
}

// StatsOption configures a QueryStats.
type StatsOption func(*QueryStats)

// WithSlowThreshold sets the duration above which a statement is slow.
func WithSlowThreshold(d time.Duration) StatsOption {
	return func(s *QueryStats) {
		s.threshold = d
	}
}

// WithSlowQueryLogger logs slow statements to l at warning level.
func WithSlowQueryLogger(l *slog.Logger) StatsOption {
	return func(s *QueryStats) {
		s.logger = l
	}
}

// NewQueryStats returns an empty collector.
func NewQueryStats(opts ...StatsOption) *QueryStats {
	s := &QueryStats{threshold: DefaultSlowThreshold}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns the statistics collected so far.
func (s *QueryStats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Queries:  s.queries.Load(),
		Execs:    s.execs.Load(),
		Slow:     s.slow.Load(),
		Errors:   s.errs.Load(),
		Duration: time.Duration(s.duration.Load()),
	}
}

// Reset sets every counter back to zero.
func (s *QueryStats) Reset() {
	s.queries.Store(0)
	s.execs.Store(0)
	s.slow.Store(0)
	s.errs.Store(0)
	s.duration.Store(0)
}

func (s *QueryStats) record(ctx context.Context, exec bool, query string, start time.Time, err error) {
	elapsed := time.Since(start)
	if exec {
		s.execs.Add(1)
	} else {
		s.queries.Add(1)
	}
	s.duration.Add(int64(elapsed))
	if err != nil {
		s.errs.Add(1)
	}
	if s.threshold > 0 && elapsed > s.threshold {
		s.slow.Add(1)
		if s.logger != nil {
			s.logger.WarnContext(ctx, "slow statement", "duration", elapsed, "query", query)
		}
	}
}

// StatsSnapshot is a point-in-time copy of a QueryStats.
type StatsSnapshot struct {
	Queries  int64         `json:"queries"`
	Execs    int64         `json:"execs"`
	Slow     int64         `json:"slow"`
	Errors   int64         `json:"errors"`
	Duration time.Duration `json:"duration"`
}

// Avg returns the average statement duration.
func (s StatsSnapshot) Avg() time.Duration {
	if n := s.Queries + s.Execs; n > 0 {
		return s.Duration / time.Duration(n)
	}
	return 0
}

func (s StatsSnapshot) String() string {
	return fmt.Sprintf("queries=%d execs=%d slow=%d errors=%d", s.Queries, s.Execs, s.Slow, s.Errors)
}

// StatsConn counts the statements run on an ExecQuerier.
//
//	stats := sql.NewQueryStats(sql.WithSlowQueryLogger(logger))
//	conn := sql.NewStatsConn(drv, stats)
//	report, err := d.ExecuteScript(ctx, conn, dialect.CategoryAfterTableCreation, nil)
//	fmt.Println(stats.Snapshot())
type StatsConn struct {
	ExecQuerier
	stats *QueryStats
}

// NewStatsConn wraps eq, recording into stats.
func NewStatsConn(eq ExecQuerier, stats *QueryStats) *StatsConn {
	return &StatsConn{ExecQuerier: eq, stats: stats}
}

// Stats returns the collector of the connection.
func (c *StatsConn) Stats() *QueryStats { return c.stats }

// ExecContext implements ExecQuerier.
func (c *StatsConn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	res, err := c.ExecQuerier.ExecContext(ctx, query, args...)
	c.stats.record(ctx, true, query, start, err)
	return res, err
}

// QueryContext implements ExecQuerier.
func (c *StatsConn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	rows, err := c.ExecQuerier.QueryContext(ctx, query, args...)
	c.stats.record(ctx, false, query, start, err)
	return rows, err
}

// binder is implemented by the connections of this package, which rewrite
// placeholders before sending a statement.
type binder interface {
	bind(string) string
}

// DebugConn logs every statement run on an ExecQuerier at debug level,
// with the placeholders the backend receives.
type DebugConn struct {
	ExecQuerier
	logger *slog.Logger
}

// NewDebugConn wraps eq, logging to l.
func NewDebugConn(eq ExecQuerier, l *slog.Logger) *DebugConn {
	return &DebugConn{ExecQuerier: eq, logger: l}
}

// ExecContext implements ExecQuerier.
func (c *DebugConn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	res, err := c.ExecQuerier.ExecContext(ctx, query, args...)
	c.log(ctx, "exec", query, args, start, err)
	return res, err
}

// QueryContext implements ExecQuerier.
func (c *DebugConn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	rows, err := c.ExecQuerier.QueryContext(ctx, query, args...)
	c.log(ctx, "query", query, args, start, err)
	return rows, err
}

func (c *DebugConn) log(ctx context.Context, msg, query string, args []any, start time.Time, err error) {
	if b, ok := c.ExecQuerier.(binder); ok {
		query = b.bind(query)
	}
	attrs := []any{"query", query, "duration", time.Since(start)}
	if len(args) > 0 {
		attrs = append(attrs, "args", args)
	}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	c.logger.DebugContext(ctx, msg, attrs...)
}

var (
	_ ExecQuerier = (*StatsConn)(nil)
	_ ExecQuerier = (*DebugConn)(nil)
)
