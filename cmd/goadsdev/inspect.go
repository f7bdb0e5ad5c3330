package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mrpasztoradam/goadsdev/internal/symbols"
)

func newInspectCmd(configPath *string) *cobra.Command {
	var (
		tmcPath string
		filter  string
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print the data areas and symbols a configuration produces",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, *configPath)
			if err != nil {
				return err
			}
			if tmcPath != "" {
				cfg.Database.TMC = tmcPath
			}
			db, err := cfg.BuildDatabase(nil)
			if err != nil {
				return err
			}

			list := db.Symbols()
			if filter != "" {
				list = db.Find(filter)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(inspectReport(db, list))
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "AREA\tKIND\tSIZE\tSYMBOLS")
			for _, a := range db.Areas() {
				fmt.Fprintf(tw, "0x%X\t%s\t%d\t%d\n", a.IndexGroup, a.Kind, a.Size(), a.SymbolCount())
			}
			fmt.Fprintln(tw)
			fmt.Fprintln(tw, "NAME\tTYPE\tGROUP\tOFFSET\tSIZE\tCOMMENT")
			for _, sym := range list {
				fmt.Fprintf(tw, "%s\t%s\t0x%X\t%d\t%d\t%s\n", sym.Name, sym.TypeName(), sym.IndexGroup(), sym.Offset, sym.Size(), sym.Comment)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&tmcPath, "tmc", "", "TMC file to import (overrides database.tmc)")
	cmd.Flags().StringVarP(&filter, "filter", "f", "", "Only symbols whose name contains this")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

type inspectArea struct {
	IndexGroup uint32 `json:"index_group"`
	Kind       string `json:"kind"`
	Size       uint32 `json:"size"`
}

type inspectSymbol struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	IndexGroup uint32 `json:"index_group"`
	Offset     uint32 `json:"offset"`
	Size       uint32 `json:"size"`
	Comment    string `json:"comment,omitempty"`
}

type inspectOutput struct {
	Areas   []inspectArea   `json:"areas"`
	Symbols []inspectSymbol `json:"symbols"`
}

func inspectReport(db *symbols.Database, list []*symbols.Symbol) inspectOutput {
	var out inspectOutput
	for _, a := range db.Areas() {
		out.Areas = append(out.Areas, inspectArea{IndexGroup: a.IndexGroup, Kind: a.Kind, Size: a.Size()})
	}
	for _, sym := range list {
		out.Symbols = append(out.Symbols, inspectSymbol{
			Name:       sym.Name,
			Type:       sym.TypeName(),
			IndexGroup: sym.IndexGroup(),
			Offset:     sym.Offset,
			Size:       sym.Size(),
			Comment:    sym.Comment,
		})
	}
	return out
}
