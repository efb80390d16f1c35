// Package sqlstore loads categorized SQL scripts and executes them against a
// connection with property substitution and conditional skipping.
//
// A script is plain text:
//
//	#CATEGORY: afterTableCreation
//
//	#TEST:
//	SELECT 1 FROM pg_proc WHERE proname = 'nx_access_allowed'
//
//	#IF: emptyResult
//	#IF: !readOnly
//	CREATE FUNCTION nx_access_allowed(...) ...
//
// A blank line terminates a statement. Lines starting with '#' that are not
// tags are comments. ${name} tokens are replaced by property values.
package sqlstore

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
)

// ExecQuerier is the database/sql subset statements run against. *sql.DB,
// *sql.Tx, *sql.Conn and dialect/sql drivers implement it.
type ExecQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Tags recognized in scripts.
const (
	tagCategory      = "#CATEGORY:"
	tagTest          = "#TEST:"
	tagIf            = "#IF:"
	tagSetIfEmpty    = "#SET_IF_EMPTY:"
	tagSetIfNotEmpty = "#SET_IF_NOT_EMPTY:"
	negation         = "!"
	EmptyResult      = "emptyResult"
)

// Condition guards a statement on a boolean property.
type Condition struct {
	Property string
	Negate   bool
}

func (c Condition) String() string {
	if c.Negate {
		return negation + c.Property
	}
	return c.Property
}

// Statement is one SQL statement of a category.
type Statement struct {
	Category string
	SQL      string
	// Test marks a row-count probe setting the emptyResult property.
	Test       bool
	Conditions []Condition
	// SetIfEmpty and SetIfNotEmpty name properties set from the probe result.
	SetIfEmpty    []string
	SetIfNotEmpty []string
	// Source and Line locate the statement for diagnostics.
	Source string
	Line   int
}

// IsQuery reports whether the statement is run as a query.
func (s *Statement) IsQuery() bool {
	return s.Test || len(s.SetIfEmpty) > 0 || len(s.SetIfNotEmpty) > 0
}

// Store holds statements by category, in declaration order.
type Store struct {
	categories []string
	statements map[string][]*Statement
	logger     *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for skipped statements and diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

func newStore(opts []Option) *Store {
	s := &Store{statements: make(map[string][]*Statement), logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Parse reads a single script.
func Parse(r io.Reader, opts ...Option) (*Store, error) {
	s := newStore(opts)
	if err := s.parse(r, ""); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadFS reads the named scripts of fsys in order. Categories appearing in
// several scripts accumulate their statements.
func LoadFS(fsys fs.FS, names []string, opts ...Option) (*Store, error) {
	s := newStore(opts)
	for _, name := range names {
		f, err := fsys.Open(name)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: %w", err)
		}
		err = s.parse(f, name)
		f.Close()
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

// ParseError reports a malformed script.
type ParseError struct {
	Source string
	Line   int
	Msg    string
}

func (e *ParseError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("sqlstore: %s:%d: %s", e.Source, e.Line, e.Msg)
	}
	return fmt.Sprintf("sqlstore: line %d: %s", e.Line, e.Msg)
}

type parser struct {
	store    *Store
	source   string
	category string
	pending  Statement
	body     []string
}

func (s *Store) parse(r io.Reader, source string) error {
	p := &parser{store: s, source: source}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimRight(sc.Text(), " \t\r")
		trimmed := strings.TrimSpace(text)
		switch {
		case trimmed == "":
			p.flush()
		case strings.HasPrefix(trimmed, "#"):
			if err := p.tag(trimmed, line); err != nil {
				return err
			}
		default:
			if p.category == "" {
				return &ParseError{Source: source, Line: line, Msg: "statement outside of any category"}
			}
			if len(p.body) == 0 {
				p.pending.Line = line
			}
			p.body = append(p.body, text)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("sqlstore: read %s: %w", source, err)
	}
	p.flush()
	return nil
}

func (p *parser) tag(line string, n int) error {
	name, value, ok := cutTag(line)
	if !ok {
		// Comment.
		return nil
	}
	if len(p.body) > 0 {
		p.flush()
	}
	switch name {
	case tagCategory:
		if value == "" {
			return &ParseError{Source: p.source, Line: n, Msg: "empty category"}
		}
		p.pending = Statement{}
		p.category = value
		if _, ok := p.store.statements[value]; !ok {
			p.store.categories = append(p.store.categories, value)
			p.store.statements[value] = nil
		}
	case tagTest:
		p.pending.Test = true
	case tagIf:
		c := Condition{Property: value}
		if rest, ok := strings.CutPrefix(value, negation); ok {
			c = Condition{Property: strings.TrimSpace(rest), Negate: true}
		}
		if c.Property == "" {
			return &ParseError{Source: p.source, Line: n, Msg: "#IF without property"}
		}
		p.pending.Conditions = append(p.pending.Conditions, c)
	case tagSetIfEmpty:
		p.pending.SetIfEmpty = append(p.pending.SetIfEmpty, value)
	case tagSetIfNotEmpty:
		p.pending.SetIfNotEmpty = append(p.pending.SetIfNotEmpty, value)
	}
	return nil
}

func cutTag(line string) (tag, value string, ok bool) {
	for _, t := range []string{tagCategory, tagTest, tagIf, tagSetIfEmpty, tagSetIfNotEmpty} {
		if rest, found := strings.CutPrefix(line, t); found {
			return t, strings.TrimSpace(rest), true
		}
	}
	return "", "", false
}

// flush closes the pending statement, if any.
func (p *parser) flush() {
	if len(p.body) == 0 {
		return
	}
	st := p.pending
	st.Category = p.category
	st.SQL = strings.Join(p.body, "\n")
	st.Source = p.source
	p.store.statements[p.category] = append(p.store.statements[p.category], &st)
	p.pending = Statement{}
	p.body = nil
}

// Categories returns the category names in declaration order.
func (s *Store) Categories() []string {
	return append([]string(nil), s.categories...)
}

// Statements returns the statements of category in declaration order.
func (s *Store) Statements(category string) []*Statement {
	return append([]*Statement(nil), s.statements[category]...)
}
