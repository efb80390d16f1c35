package main

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/syssam/velox-storage/dialect"
)

type detectResult struct {
	Family       string               `json:"family"`
	Product      string               `json:"product"`
	Version      string               `json:"version,omitempty"`
	Edition      int                  `json:"edition,omitempty"`
	Online       bool                 `json:"online"`
	Capabilities dialect.Capabilities `json:"capabilities"`
}

func newDetectCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "detect",
		Short: "Print the detected backend and its capabilities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.open(cmd, false)
			if err != nil {
				return err
			}
			defer s.Close()
			meta := s.d.Metadata()
			res := detectResult{
				Family:       s.d.Family(),
				Product:      meta.ProductName,
				Version:      meta.ProductVersion,
				Edition:      meta.EngineEdition,
				Online:       s.online(),
				Capabilities: s.d.Capabilities(),
			}
			p := opts.printer(cmd)
			if p.json() {
				return p.value(res)
			}
			caps := res.Capabilities
			p.field("family", res.Family)
			p.field("product", res.Product)
			if res.Version != "" {
				p.field("version", res.Version)
			}
			if res.Edition != 0 {
				p.field("edition", res.Edition)
			}
			return p.table([]string{"CAPABILITY", "VALUE"}, [][]string{
				{"arrays", strconv.FormatBool(caps.SupportsArrays)},
				{"paging", strconv.FormatBool(caps.SupportsPaging)},
				{"read ACL", strconv.FormatBool(caps.SupportsReadACL)},
				{"clustering", strconv.FormatBool(caps.SupportsClustering)},
				{"explicit delete", strconv.FormatBool(caps.RequiresExplicitDelete)},
				{"fulltext", strconv.FormatBool(caps.SupportsFulltext)},
				{"phrase search", strconv.FormatBool(caps.SupportsPhraseSearch)},
				{"if exists", strconv.FormatBool(caps.SupportsIfExists)},
				{"max identifier length", strconv.Itoa(caps.MaxIdentifierLength)},
				{"max IN list size", strconv.Itoa(caps.MaxInListSize)},
				{"upper case identifiers", strconv.FormatBool(caps.StoresUpperCase)},
				{"placeholder", s.d.Placeholder(1)},
				{"fulltext wildcard", caps.FulltextWildcard},
			})
		},
	}
}
