package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/syssam/velox-storage/dialect"
	"github.com/syssam/velox-storage/dialect/sql"
	"github.com/syssam/velox-storage/dialect/sql/schema"
)

// model is the YAML description of the expected tables:
//
//	tables:
//	  - name: documents
//	    columns:
//	      - {name: id, type: NODEIDPK, primary: true}
//	      - {name: title, type: VARCHAR, length: 255, nullable: true}
type model struct {
	Tables []struct {
		Name    string `yaml:"name"`
		Columns []struct {
			Name     string             `yaml:"name"`
			Type     dialect.ColumnType `yaml:"type"`
			Length   int                `yaml:"length"`
			Nullable bool               `yaml:"nullable"`
			Primary  bool               `yaml:"primary"`
		} `yaml:"columns"`
	} `yaml:"tables"`
}

func loadModel(path string) (*model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m := &model{}
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return m, nil
}

// expected maps the model to the native tables of d.
func (m *model) expected(d *dialect.Dialect) ([]*schema.Table, error) {
	tables := make([]*schema.Table, 0, len(m.Tables))
	for _, mt := range m.Tables {
		specs := make([]schema.ColumnSpec, len(mt.Columns))
		for i, c := range mt.Columns {
			specs[i] = schema.ColumnSpec{
				Name:     c.Name,
				Column:   dialect.Column{Type: c.Type, Length: c.Length},
				Nullable: c.Nullable,
				Primary:  c.Primary,
			}
		}
		t, err := schema.Expect(d, mt.Name, specs...)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, nil
}

type checkResult struct {
	Errors     []string          `json:"errors,omitempty"`
	Warnings   []string          `json:"warnings,omitempty"`
	Statements sql.StatsSnapshot `json:"statements"`
}

func newCheckCommand(opts *rootOptions) *cobra.Command {
	var (
		schemaName string
		strict     bool
		extra      bool
	)
	cmd := &cobra.Command{
		Use:   "check MODEL",
		Short: "Compare the live schema with a YAML model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadModel(args[0])
			if err != nil {
				return commandError("load model", err)
			}
			s, err := opts.open(cmd, true)
			if err != nil {
				return err
			}
			defer s.Close()
			expected, err := m.expected(s.d)
			if err != nil {
				return commandError("map model", err)
			}
			var iopts []schema.InspectOption
			if schemaName != "" {
				iopts = append(iopts, schema.WithSchemaName(schemaName))
			}
			insp, err := schema.NewInspector(s.conn(s.drv.DB()), s.d, iopts...)
			if err != nil {
				return commandError("inspect", err)
			}
			vopts := []schema.ValidateOption{schema.WithLogger(s.d.Logger())}
			if strict {
				vopts = append(vopts, schema.StrictTypes())
			}
			if extra {
				vopts = append(vopts, schema.ReportExtraColumns())
			}
			result, err := schema.Check(cmd.Context(), insp, s.d, expected, vopts...)
			if err != nil {
				return commandError("check", err)
			}
			p := opts.printer(cmd)
			if p.json() {
				res := checkResult{Statements: s.stats.Snapshot()}
				for _, e := range result.Errors {
					res.Errors = append(res.Errors, e.Error())
				}
				for _, w := range result.Warnings {
					res.Warnings = append(res.Warnings, w.Error())
				}
				if err := p.value(res); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(p.w, strings.TrimSuffix(result.String(), "\n"))
				p.field("statements", s.stats.Snapshot())
			}
			if result.HasErrors() {
				return &exitError{code: exitFailure, msg: fmt.Sprintf("%d schema error(s)", len(result.Errors))}
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&schemaName, "schema", "", "database schema inspected, the connection default when empty")
	f.BoolVar(&strict, "strict", false, "report compatible type substitutions as errors")
	f.BoolVar(&extra, "extra", false, "warn about live columns missing from the model")
	return cmd
}
