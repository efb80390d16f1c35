package main

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/syssam/velox-storage/dialect/sql"
	"github.com/syssam/velox-storage/sqlstore"
)

type execResult struct {
	Category    string            `json:"category"`
	Executed    []string          `json:"executed,omitempty"`
	Skipped     []string          `json:"skipped,omitempty"`
	Diagnostics []string          `json:"diagnostics,omitempty"`
	Statements  sql.StatsSnapshot `json:"statements"`
}

func newExecCommand(opts *rootOptions) *cobra.Command {
	var set, vars map[string]string
	cmd := &cobra.Command{
		Use:   "exec [CATEGORY]",
		Short: "Run a category of the backend SQL scripts",
		Long: `Run a category of the backend SQL scripts.

Without a database (--product), the statements of the category are printed
with their properties substituted. Without CATEGORY, the categories are
listed.

Statements run on one connection, with the --session-var variables set
(PostgreSQL, MySQL and SQL Server).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd, false)
			if err != nil {
				return err
			}
			defer s.Close()
			p := opts.printer(cmd)
			store := s.d.Statements()
			if len(args) == 0 {
				if p.json() {
					return p.value(store.Categories())
				}
				for _, c := range store.Categories() {
					fmt.Fprintln(p.w, c)
				}
				return nil
			}
			category, props := args[0], properties(set)
			if !s.online() {
				all := s.d.ScriptProperties()
				for k, v := range props {
					all[k] = v
				}
				return printStatements(p, store.Statements(category), all)
			}
			report, err := runScript(cmd.Context(), s, category, props, vars)
			if err != nil {
				return &exitError{code: exitFailure, msg: "exec " + category, err: err}
			}
			res := execResult{Category: report.Category, Diagnostics: report.Diagnostics, Statements: s.stats.Snapshot()}
			for _, st := range report.Executed {
				res.Executed = append(res.Executed, location(st))
			}
			for _, st := range report.Skipped {
				res.Skipped = append(res.Skipped, location(st))
			}
			if p.json() {
				return p.value(res)
			}
			p.field("executed", len(res.Executed))
			p.field("skipped", len(res.Skipped))
			for _, d := range res.Diagnostics {
				p.field("diagnostic", d)
			}
			p.field("statements", res.Statements)
			return nil
		},
	}
	cmd.Flags().StringToStringVar(&set, "set", nil, "script property override, e.g. --set fulltextEnabled=false")
	cmd.Flags().StringToStringVar(&vars, "session-var", nil, "session variable set while the scripts run, e.g. --session-var app.user=admin")
	return cmd
}

// runScript executes category on a session connection carrying vars.
func runScript(ctx context.Context, s *session, category string, props sqlstore.Properties, vars map[string]string) (report *sqlstore.Report, err error) {
	for _, k := range slices.Sorted(maps.Keys(vars)) {
		ctx = sql.WithVar(ctx, k, vars[k])
	}
	conn, err := s.drv.Session(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { err = errors.Join(err, conn.Close()) }()
	return s.d.ExecuteScript(ctx, s.conn(conn), category, props)
}

// properties converts flag values, turning true and false into booleans
// so #IF conditions can test them.
func properties(set map[string]string) sqlstore.Properties {
	props := make(sqlstore.Properties, len(set))
	for k, v := range set {
		switch v {
		case "true", "false":
			props[k] = v == "true"
		default:
			props[k] = v
		}
	}
	return props
}

func location(st *sqlstore.Statement) string {
	return st.Source + ":" + strconv.Itoa(st.Line)
}

func printStatements(p printer, stmts []*sqlstore.Statement, props sqlstore.Properties) error {
	type statement struct {
		Location   string   `json:"location"`
		Conditions []string `json:"conditions,omitempty"`
		SQL        string   `json:"sql"`
	}
	res := make([]statement, len(stmts))
	for i, st := range stmts {
		res[i] = statement{Location: location(st), SQL: props.Substitute(st.SQL)}
		for _, c := range st.Conditions {
			res[i].Conditions = append(res[i].Conditions, c.String())
		}
	}
	if p.json() {
		return p.value(res)
	}
	for _, st := range res {
		fmt.Fprintf(p.w, "-- %s", st.Location)
		if len(st.Conditions) > 0 {
			fmt.Fprintf(p.w, " #IF: %s", strings.Join(st.Conditions, ", "))
		}
		fmt.Fprintf(p.w, "\n%s;\n\n", strings.TrimSpace(st.SQL))
	}
	return nil
}
