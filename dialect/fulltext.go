package dialect

import (
	"fmt"
	"strconv"

	"github.com/syssam/velox-storage/fulltext"
)

// JoinKind is the kind of a JOIN descriptor.
type JoinKind int

// Join kinds.
const (
	JoinInner JoinKind = iota
	JoinLeft
	// JoinImplicit adds the table to the FROM list; its condition goes to WHERE.
	JoinImplicit
)

// Join describes a table joined by a generated query fragment.
type Join struct {
	Kind JoinKind
	// Table is a table name or a table-valued expression.
	Table string
	Alias string
	// On1 = On2 is the join condition.
	On1, On2 string
	// Param is bound to the single ? of a table-valued Table, if any.
	Param any
}

// Condition returns the join condition.
func (j Join) Condition() string {
	return j.On1 + " = " + j.On2
}

// String renders the join clause.
func (j Join) String() string {
	switch j.Kind {
	case JoinImplicit:
		return ", " + j.Table + " " + j.Alias
	case JoinLeft:
		return fmt.Sprintf("LEFT JOIN %s %s ON %s", j.Table, j.Alias, j.Condition())
	default:
		return fmt.Sprintf("JOIN %s %s ON %s", j.Table, j.Alias, j.Condition())
	}
}

// DefaultFulltextIndex is the name of the index every document belongs to.
const DefaultFulltextIndex = "default"

// FulltextModel describes the fulltext table of the storage model.
type FulltextModel struct {
	// Table holds one row per document, keyed by IDColumn.
	Table    string
	IDColumn string
	// Columns maps an index name to its stored column.
	Columns map[string]string
	// Analyzers maps an index name to its analyzer, overriding Config.FulltextAnalyzer.
	Analyzers map[string]string
}

func (m FulltextModel) withDefaults() FulltextModel {
	if m.Table == "" {
		m.Table = "fulltext"
	}
	if m.IDColumn == "" {
		m.IDColumn = "id"
	}
	if len(m.Columns) == 0 {
		m.Columns = map[string]string{DefaultFulltextIndex: "fulltext"}
	}
	return m
}

func (m FulltextModel) column(index string) (string, bool) {
	if index == "" {
		index = DefaultFulltextIndex
	}
	col, ok := m.Columns[index]
	return col, ok
}

// FulltextRequest asks for the fragments matching one fulltext clause.
type FulltextRequest struct {
	// Query is the user query string.
	Query string
	// Index is the fulltext index searched, DefaultFulltextIndex when empty.
	Index string
	// Nth numbers the fulltext clauses of a query, making aliases unique.
	Nth int
	// MainColumn is the qualified document id column joined to, e.g. "hierarchy.id".
	MainColumn string
	Model      FulltextModel
}

func (r FulltextRequest) alias() string {
	return "_nxft" + strconv.Itoa(r.Nth)
}

func (r FulltextRequest) scoreAlias() string {
	return "_nxscore" + strconv.Itoa(r.Nth)
}

// FulltextMatch holds the fragments implementing a fulltext clause.
type FulltextMatch struct {
	Joins []Join
	// Where is ANDed to the query; it is empty when the joins filter alone.
	Where     string
	WhereArgs []any
	// Score is the relevance expression, selected as ScoreAlias.
	Score      string
	ScoreArgs  []any
	ScoreAlias string
	// Native is the query in the backend search syntax.
	Native string
}

// NoMatch is the WHERE fragment of a fulltext clause that cannot match.
const NoMatch = "1=0"

// FulltextMatch translates req.Query for the backend. A malformed query
// returns a *fulltext.ParseError, as does a phrase on a backend without
// phrase search. A query reduced to nothing by analysis yields the NoMatch
// condition.
func (d *Dialect) FulltextMatch(req FulltextRequest) (*FulltextMatch, error) {
	if !d.caps.SupportsFulltext || d.cfg.FulltextDisabled {
		return nil, NewConfigError(d.family, "fulltext", "fulltext search is disabled")
	}
	req.Model = req.Model.withDefaults()
	if _, ok := req.Model.column(req.Index); !ok {
		return nil, NewConfigError(d.family, "fulltext", "unknown fulltext index %q", req.Index)
	}
	if req.MainColumn == "" {
		req.MainColumn = d.security.HierarchyTable + "." + d.security.IDColumn
	}
	q, err := fulltext.Analyze(fulltext.NormalizeWildcard(req.Query, d.caps.FulltextWildcard))
	if err != nil {
		return nil, err
	}
	if q == nil {
		return &FulltextMatch{Where: NoMatch, Score: "0", ScoreAlias: req.scoreAlias()}, nil
	}
	if !d.caps.SupportsPhraseSearch && fulltext.HasPhrase(q) {
		for _, w := range fulltext.Words(q) {
			if w.IsPhrase() {
				return nil, fulltext.NewParseError(req.Query, w.Word, fulltext.ReasonPhraseUnsupported)
			}
		}
	}
	m := d.backend.fulltext(d, req, q)
	m.ScoreAlias = req.scoreAlias()
	return m, nil
}

// FulltextDDL returns the statements creating the fulltext indexes of m.
func (d *Dialect) FulltextDDL(m FulltextModel) ([]string, error) {
	if !d.caps.SupportsFulltext || d.cfg.FulltextDisabled {
		return nil, NewConfigError(d.family, "fulltext", "fulltext search is disabled")
	}
	return d.backend.fulltextDDL(d, m.withDefaults()), nil
}

// analyzer returns the analyzer of a fulltext index.
func (d *Dialect) analyzer(m FulltextModel, index string) string {
	if index == "" {
		index = DefaultFulltextIndex
	}
	if a := m.Analyzers[index]; a != "" && nameRe.MatchString(a) {
		return a
	}
	return d.cfg.FulltextAnalyzer
}

// fulltextJoin joins the fulltext table of req under its alias.
func fulltextJoin(req FulltextRequest, table string) Join {
	alias := req.alias()
	return Join{
		Kind:  JoinInner,
		Table: table,
		Alias: alias,
		On1:   req.MainColumn,
		On2:   alias + "." + req.Model.IDColumn,
	}
}
