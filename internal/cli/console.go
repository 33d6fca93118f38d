package cli

import (
	"github.com/spf13/cobra"

	"github.com/randomizedcoder/go-toolrun/internal/process"
)

func newConsoleCmd(a *app) *cobra.Command {
	var elevated bool

	cmd := &cobra.Command{
		Use:   "console <name> [args...] | console [--elevated] -- <program> [args...]",
		Short: "Open the interactive console for a tool or command",
		Long: `Open a full-screen console that runs a catalog tool or an arbitrary
command. Keys: r run again, c cancel, x clear, s save output, q quit.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			title, command, err := a.consoleTarget(cmd, elevated, args)
			if err != nil {
				return err
			}
			o, err := a.orchestrator()
			if err != nil {
				return err
			}
			outcome, err := o.Console(cmd.Context(), title, command)
			return finish(o, outcome, err)
		},
	}
	cmd.Flags().BoolVar(&elevated, "elevated", false, "Run the command after -- through the privilege wrapper")
	return cmd
}

// consoleTarget resolves a catalog tool, or the raw command after "--".
func (a *app) consoleTarget(cmd *cobra.Command, elevated bool, args []string) (string, process.Command, error) {
	if cmd.ArgsLenAtDash() == 0 {
		return args[0], newCommand(elevated, args), nil
	}

	cat, err := a.catalog()
	if err != nil {
		return "", process.Command{}, err
	}
	tool, err := cat.Lookup(args[0])
	if err != nil {
		return "", process.Command{}, err
	}
	if !a.cfg.SkipPreflight {
		o, err := a.orchestrator()
		if err != nil {
			return "", process.Command{}, err
		}
		if _, err := o.Preflight(tool); err != nil {
			return "", process.Command{}, err
		}
	}
	return tool.Name, tool.Command(args[1:]), nil
}
