package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/randomizedcoder/go-toolrun/internal/preflight"
)

func newToolCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tool <name> [args...]",
		Short: "Run a catalog tool",
		Long: `Run a tool from the catalog. Arguments after the name are appended to
the tool's fixed arguments. The tool's dependencies are checked first
unless --skip-preflight is set.`,
		Example: `  go-toolrun tool dirb http://10.0.0.5/
  go-toolrun tool traceroute example.com`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := a.catalog()
			if err != nil {
				return err
			}
			tool, err := cat.Lookup(args[0])
			if err != nil {
				return err
			}
			o, err := a.orchestrator()
			if err != nil {
				return err
			}
			outcome, err := o.RunTool(cmd.Context(), tool, args[1:])
			return finish(o, outcome, err)
		},
	}
}

func newToolsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List catalog tools and whether they can run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, err := a.catalog()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tREADY\tELEVATED\tCOMMAND\tDESCRIPTION")
			for _, t := range cat.Tools() {
				ready := "yes"
				if !preflight.CommandsAvailable(t.Dependencies) {
					ready = "no"
				}
				elevated := ""
				if t.Elevated {
					elevated = "yes"
				}
				command := strings.TrimSpace(t.Program + " " + strings.Join(t.Args, " "))
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.Name, ready, elevated, command, t.Description)
			}
			return w.Flush()
		},
	}
}

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check <name>",
		Short: "Run the preflight checks for a catalog tool",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cat, err := a.catalog()
			if err != nil {
				return err
			}
			tool, err := cat.Lookup(args[0])
			if err != nil {
				return err
			}
			o, err := a.orchestrator()
			if err != nil {
				return err
			}
			_, err = o.Preflight(tool)
			return err
		},
	}
}
