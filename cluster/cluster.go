// Package cluster propagates cache invalidations between repository nodes
// through the database itself.
//
// Every node registers in cluster_nodes. Publishing an invalidation writes
// one cluster_invals row per other node; each node then fetches the rows
// addressed to it. Delivery is at least once, so consumers must tolerate an
// invalidation applied twice.
//
// A Channel holds no locks and never retries: every operation runs on the
// caller's connection or transaction, which provides ordering and atomicity.
package cluster

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/syssam/velox-storage/dialect"
	"github.com/syssam/velox-storage/dialect/sql/sqlerr"
)

// FragmentDelimiter joins fragment lists on backends without arrays.
// Fragment names never contain it.
const FragmentDelimiter = " "

// Kind is the kind of an invalidation.
type Kind string

// Invalidation kinds.
const (
	// KindModified invalidates the cached fragments of a document.
	KindModified Kind = "modified"
	// KindDeleted evicts a deleted document.
	KindDeleted Kind = "deleted"
)

// kindCodes are the values stored in cluster_invals.kind.
var kindCodes = map[Kind]int{
	KindModified: 1,
	KindDeleted:  2,
}

func kindOf(code int64) (Kind, bool) {
	for k, c := range kindCodes {
		if int64(c) == code {
			return k, true
		}
	}
	return "", false
}

// Invalidation is a cross-node cache invalidation record.
type Invalidation struct {
	ID        string
	Fragments []string
	Kind      Kind
}

// ExecQuerier is the connection or transaction the channel runs on.
type ExecQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Tx is a transaction PublishAndCommit can commit. *sql.Tx and the
// dialect/sql transactions implement it.
type Tx interface {
	ExecQuerier
	Commit() error
	Rollback() error
}

// Channel publishes and consumes the invalidations of one node.
type Channel struct {
	d      *dialect.Dialect
	nodeID string
	logger *slog.Logger
}

// Option configures a Channel.
type Option func(*Channel)

// WithNodeID sets the identifier of this node, overriding the configured one.
func WithNodeID(id string) Option {
	return func(c *Channel) {
		c.nodeID = id
	}
}

// WithLogger sets the channel logger. Default is the dialect logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Channel) {
		c.logger = l
	}
}

// New returns the channel of this node. Clustering must be enabled in the
// dialect configuration and supported by its backend. Without a configured
// node id a random UUID is used.
func New(d *dialect.Dialect, opts ...Option) (*Channel, error) {
	if !d.Capabilities().SupportsClustering {
		return nil, dialect.NewConfigError(d.Family(), "clustering", "not supported")
	}
	if !d.Config().ClusteringEnabled {
		return nil, dialect.NewConfigError(d.Family(), "clustering", "not enabled")
	}
	c := &Channel{
		d:      d,
		nodeID: d.Config().ClusterNodeID,
		logger: d.Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.nodeID == "" {
		c.nodeID = uuid.NewString()
	}
	return c, nil
}

// NodeID returns the identifier of this node.
func (c *Channel) NodeID() string { return c.nodeID }

// Register adds this node to cluster_nodes. Registering twice is not an
// error. On PostgreSQL a duplicate aborts the surrounding transaction, so
// Register is best called outside of one.
func (c *Channel) Register(ctx context.Context, q ExecQuerier) error {
	_, err := q.ExecContext(ctx, c.d.Rebind("INSERT INTO cluster_nodes (nodeid, created) VALUES (?, CURRENT_TIMESTAMP)"), c.nodeID)
	switch {
	case err == nil:
		c.logger.Info("cluster node registered", "node", c.nodeID)
	case sqlerr.IsUniqueConstraintError(err):
		c.logger.Debug("cluster node already registered", "node", c.nodeID)
	default:
		return fmt.Errorf("cluster: register node %s: %w", c.nodeID, err)
	}
	return nil
}

// Unregister removes this node and its pending invalidations.
func (c *Channel) Unregister(ctx context.Context, q ExecQuerier) error {
	for _, query := range []string{
		"DELETE FROM cluster_invals WHERE nodeid = ?",
		"DELETE FROM cluster_nodes WHERE nodeid = ?",
	} {
		if _, err := q.ExecContext(ctx, c.d.Rebind(query), c.nodeID); err != nil {
			return fmt.Errorf("cluster: unregister node %s: %w", c.nodeID, err)
		}
	}
	c.logger.Info("cluster node unregistered", "node", c.nodeID)
	return nil
}

// Publish writes inv for every registered node but this one. It must run
// in the transaction that made the change being invalidated.
func (c *Channel) Publish(ctx context.Context, q ExecQuerier, inv Invalidation) error {
	code, ok := kindCodes[inv.Kind]
	if !ok {
		return fmt.Errorf("cluster: publish %s: unknown kind %q", inv.ID, inv.Kind)
	}
	query := "INSERT INTO cluster_invals (nodeid, id, fragments, kind) SELECT nodeid, ?, ?, ? FROM cluster_nodes WHERE nodeid <> ?"
	if c.d.Family() == dialect.Postgres {
		query = "INSERT INTO cluster_invals (nodeid, id, fragments, kind) SELECT nodeid, ?::varchar, ?::varchar[], ?::int2 FROM cluster_nodes WHERE nodeid <> ?"
	}
	if _, err := q.ExecContext(ctx, c.d.Rebind(query), inv.ID, c.encode(inv.Fragments), code, c.nodeID); err != nil {
		return fmt.Errorf("cluster: publish %s: %w", inv.ID, err)
	}
	return nil
}

// PublishAndCommit publishes invs in tx and commits it. On any publish
// failure tx is rolled back: the change never commits without its
// invalidations.
func (c *Channel) PublishAndCommit(ctx context.Context, tx Tx, invs []Invalidation) error {
	for _, inv := range invs {
		if err := c.Publish(ctx, tx, inv); err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				err = errors.Join(err, fmt.Errorf("cluster: rollback: %w", rerr))
			}
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("cluster: commit: %w", err)
	}
	return nil
}

// Pending is the result of FetchPending.
type Pending struct {
	Invalidations []Invalidation
	// seqs are the cluster_invals rows read, including skipped ones. Empty
	// when the fetch deleted them.
	seqs []int64
}

// FetchPending returns the invalidations addressed to this node. On
// backends where the fetch is destructive the rows are deleted as they are
// read; elsewhere DeletePending must follow with the returned batch.
func (c *Channel) FetchPending(ctx context.Context, q ExecQuerier) (*Pending, error) {
	explicit := c.d.Capabilities().RequiresExplicitDelete
	query := "SELECT seq, id, fragments, kind FROM cluster_invals WHERE nodeid = ? ORDER BY seq"
	if !explicit {
		query = "DELETE FROM cluster_invals WHERE nodeid = ? RETURNING id, fragments, kind"
	}
	rows, err := q.QueryContext(ctx, c.d.Rebind(query), c.nodeID)
	if err != nil {
		return nil, fmt.Errorf("cluster: fetch: %w", err)
	}
	defer rows.Close()
	p := &Pending{}
	for rows.Next() {
		var (
			inv  Invalidation
			seq  int64
			code int64
			frag fragments
		)
		switch {
		case c.d.Family() == dialect.Postgres:
			err = rows.Scan(&inv.ID, pq.Array(&inv.Fragments), &code)
		case explicit:
			err = rows.Scan(&seq, &inv.ID, &frag, &code)
			inv.Fragments = frag
		default:
			err = rows.Scan(&inv.ID, &frag, &code)
			inv.Fragments = frag
		}
		if err != nil {
			return nil, fmt.Errorf("cluster: fetch: %w", err)
		}
		if explicit {
			p.seqs = append(p.seqs, seq)
		}
		kind, ok := kindOf(code)
		if !ok {
			c.logger.Warn("skipping invalidation of unknown kind", "id", inv.ID, "kind", code)
			continue
		}
		inv.Kind = kind
		p.Invalidations = append(p.Invalidations, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cluster: fetch: %w", err)
	}
	return p, nil
}

// DeletePending removes the rows p was read from. Rows published after the
// fetch stay pending. It is a no-op when FetchPending already deleted them.
func (c *Channel) DeletePending(ctx context.Context, q ExecQuerier, p *Pending) error {
	if !c.d.Capabilities().RequiresExplicitDelete || p == nil {
		return nil
	}
	// One parameter goes to the node id.
	size := max(c.d.Capabilities().MaxInListSize-1, 1)
	for seqs := p.seqs; len(seqs) > 0; {
		chunk := seqs[:min(size, len(seqs))]
		seqs = seqs[len(chunk):]
		args := make([]any, 0, len(chunk)+1)
		args = append(args, c.nodeID)
		for _, seq := range chunk {
			args = append(args, seq)
		}
		query := "DELETE FROM cluster_invals WHERE nodeid = ? AND seq IN (" + strings.TrimSuffix(strings.Repeat("?, ", len(chunk)), ", ") + ")"
		if _, err := q.ExecContext(ctx, c.d.Rebind(query), args...); err != nil {
			return fmt.Errorf("cluster: delete pending: %w", err)
		}
	}
	return nil
}

// encode returns the fragments bind parameter: a native array on
// PostgreSQL, a delimited string elsewhere. An empty list is NULL.
func (c *Channel) encode(frags []string) any {
	if len(frags) == 0 {
		return nil
	}
	if c.d.Family() == dialect.Postgres {
		return pq.Array(frags)
	}
	return strings.Join(frags, FragmentDelimiter)
}

// fragments scans a delimited fragment list.
type fragments []string

func (f *fragments) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*f = nil
	case string:
		*f = strings.Fields(v)
	case []byte:
		*f = strings.Fields(string(v))
	default:
		return fmt.Errorf("cluster: cannot scan %T into fragments", src)
	}
	return nil
}
