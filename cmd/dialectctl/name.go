package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

const nameKinds = "table, column, pk, fk, index, mangle, quote"

func newNameCommand(opts *rootOptions) *cobra.Command {
	var maxLength int
	cmd := &cobra.Command{
		Use:   "name KIND NAME...",
		Short: "Print the backend name of a logical identifier",
		Long: `Print the backend name of a logical identifier.

Kinds:
  table TABLE                 table name
  column COLUMN               column name
  pk TABLE                    primary key constraint
  fk TABLE COLUMN REFTABLE    foreign key constraint
  index TABLE COLUMN...       index
  mangle NAME                 name shortened to --max characters
  quote NAME                  quoted identifier`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd, false)
			if err != nil {
				return err
			}
			defer s.Close()
			d, kind, args := s.d, args[0], args[1:]
			var name string
			switch kind {
			case "table":
				name = d.TableName(args[0])
			case "column":
				name = d.ColumnName(args[0])
			case "pk":
				name = d.PrimaryKeyName(args[0])
			case "fk":
				if len(args) != 3 {
					return commandError("name fk", fmt.Errorf("want TABLE COLUMN REFTABLE, got %d arguments", len(args)))
				}
				name = d.ForeignKeyName(args[0], args[1], args[2])
			case "index":
				if len(args) < 2 {
					return commandError("name index", fmt.Errorf("want TABLE COLUMN..., got %d arguments", len(args)))
				}
				name = d.IndexName(args[0], args[1:]...)
			case "mangle":
				name = d.Mangle(args[0], maxLength)
			case "quote":
				name = d.QuoteIdentifier(args[0])
			default:
				return commandError("name", fmt.Errorf("unknown kind %q, want one of %s", kind, nameKinds))
			}
			p := opts.printer(cmd)
			if p.json() {
				return p.value(map[string]string{"kind": kind, "logical": strings.Join(args, " "), "name": name})
			}
			_, err = fmt.Fprintln(p.w, name)
			return err
		},
	}
	cmd.Flags().IntVar(&maxLength, "max", 0, "maximum length for mangle, the backend limit when 0")
	return cmd
}
