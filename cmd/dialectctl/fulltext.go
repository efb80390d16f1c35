package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"

	"github.com/syssam/velox-storage/dialect"
	"github.com/syssam/velox-storage/fulltext"
)

type fulltextResult struct {
	Query      string   `json:"query"`
	Analyzed   string   `json:"analyzed"`
	Native     string   `json:"native,omitempty"`
	Joins      []string `json:"joins,omitempty"`
	Where      string   `json:"where,omitempty"`
	WhereArgs  []any    `json:"whereArgs,omitempty"`
	Score      string   `json:"score"`
	ScoreArgs  []any    `json:"scoreArgs,omitempty"`
	ScoreAlias string   `json:"scoreAlias"`
}

func newFulltextCommand(opts *rootOptions) *cobra.Command {
	var (
		req  dialect.FulltextRequest
		lang string
		ddl  bool
	)
	cmd := &cobra.Command{
		Use:   "fulltext QUERY",
		Short: "Print the SQL fragments translating a fulltext query",
		Long: `Print the SQL fragments translating a fulltext query.

With --ddl, print the statements creating the fulltext index instead;
QUERY is then omitted.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if ddl {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd, false)
			if err != nil {
				return err
			}
			defer s.Close()
			p := opts.printer(cmd)
			if ddl {
				stmts, err := s.d.FulltextDDL(req.Model)
				if err != nil {
					return err
				}
				if p.json() {
					return p.value(stmts)
				}
				for _, stmt := range stmts {
					fmt.Fprintln(p.w, stmt+";")
				}
				return nil
			}
			req.Query = args[0]
			m, err := s.d.FulltextMatch(req)
			if err != nil {
				return localize(err, lang)
			}
			q, _ := fulltext.Analyze(fulltext.NormalizeWildcard(req.Query, s.d.Capabilities().FulltextWildcard))
			res := fulltextResult{
				Query:      req.Query,
				Analyzed:   q.String(),
				Native:     m.Native,
				Where:      m.Where,
				WhereArgs:  m.WhereArgs,
				Score:      m.Score,
				ScoreArgs:  m.ScoreArgs,
				ScoreAlias: m.ScoreAlias,
			}
			for _, j := range m.Joins {
				res.Joins = append(res.Joins, j.String())
			}
			if p.json() {
				return p.value(res)
			}
			p.field("analyzed", res.Analyzed)
			if res.Native != "" {
				p.field("native", res.Native)
			}
			for _, j := range m.Joins {
				if j.Param != nil {
					p.field("join", fmt.Sprintf("%s  [%v]", j, j.Param))
				} else {
					p.field("join", j)
				}
			}
			if res.Where != "" {
				p.field("where", withArgs(res.Where, res.WhereArgs))
			}
			p.field("score", withArgs(res.Score+" AS "+res.ScoreAlias, res.ScoreArgs))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.Index, "index", dialect.DefaultFulltextIndex, "fulltext index searched")
	f.StringVar(&req.MainColumn, "main-column", "", "qualified document id column joined to (default hierarchy.id)")
	f.IntVar(&req.Nth, "nth", 0, "number of the fulltext clause in its query")
	f.StringVar(&lang, "lang", "", "language of query errors, e.g. fr")
	f.BoolVar(&ddl, "ddl", false, "print the fulltext index DDL")
	return cmd
}

func withArgs(sql string, args []any) string {
	if len(args) == 0 {
		return sql
	}
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = fmt.Sprintf("%q", fmt.Sprint(a))
	}
	return sql + "  [" + strings.Join(parts, ", ") + "]"
}

// localize rewrites a query parse error in the given language.
func localize(err error, lang string) error {
	var pe *fulltext.ParseError
	if lang == "" || !errors.As(err, &pe) {
		return err
	}
	tag, terr := language.Parse(lang)
	if terr != nil {
		return commandError("invalid --lang", terr)
	}
	return &exitError{code: exitFailure, msg: pe.Localize(tag)}
}
