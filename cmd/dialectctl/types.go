package main

import (
	"github.com/spf13/cobra"

	"github.com/syssam/velox-storage/dialect"
)

type typeRow struct {
	Type   string `json:"type"`
	Native string `json:"native,omitempty"`
	Code   string `json:"code,omitempty"`
	Error  string `json:"error,omitempty"`
}

func newTypesCommand(opts *rootOptions) *cobra.Command {
	var length int
	cmd := &cobra.Command{
		Use:   "types [TYPE...]",
		Short: "Print the native type of abstract column types",
		RunE: func(cmd *cobra.Command, args []string) error {
			types := dialect.ColumnTypes()
			if len(args) > 0 {
				types = nil
				for _, a := range args {
					t, err := dialect.ParseColumnType(a)
					if err != nil {
						return commandError("types", err)
					}
					types = append(types, t)
				}
			}
			s, err := opts.open(cmd, false)
			if err != nil {
				return err
			}
			defer s.Close()
			res := make([]typeRow, 0, len(types))
			for _, t := range types {
				row := typeRow{Type: t.String()}
				if st, err := s.d.MapType(dialect.Column{Type: t, Length: length}); err != nil {
					row.Error = err.Error()
				} else {
					row.Native, row.Code = st.Name, st.Code.String()
				}
				res = append(res, row)
			}
			p := opts.printer(cmd)
			if p.json() {
				return p.value(res)
			}
			rows := make([][]string, len(res))
			for i, r := range res {
				native, code := r.Native, r.Code
				if r.Error != "" {
					native, code = "-", "-"
				}
				rows[i] = []string{r.Type, native, code}
			}
			return p.table([]string{"TYPE", "NATIVE", "CODE"}, rows)
		},
	}
	cmd.Flags().IntVar(&length, "length", 0, "column length, 0 for unconstrained")
	return cmd
}
