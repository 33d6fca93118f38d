package cli

import (
	"github.com/spf13/cobra"

	"github.com/randomizedcoder/go-toolrun/internal/process"
)

func newRunCmd(a *app) *cobra.Command {
	var elevated bool

	cmd := &cobra.Command{
		Use:   "run [--elevated] -- <program> [args...]",
		Short: "Run an arbitrary command and stream its output",
		Example: `  go-toolrun run -- ping -c 3 127.0.0.1
  go-toolrun run --elevated -- tiger`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			command := newCommand(elevated, args)
			o, err := a.orchestrator()
			if err != nil {
				return err
			}
			outcome, err := o.RunCommand(cmd.Context(), command)
			return finish(o, outcome, err)
		},
	}
	cmd.Flags().BoolVar(&elevated, "elevated", false, "Run through the configured privilege wrapper")
	return cmd
}

func newCommand(elevated bool, args []string) process.Command {
	if elevated {
		return process.NewElevatedCommand(args[0], args[1:]...)
	}
	return process.NewCommand(args[0], args[1:]...)
}
