package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"csvsift/internal/config"
)

// app carries the state resolved before any subcommand runs.
type app struct {
	configFile string
	cfg        config.Config
}

func newRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "csvsift",
		Short: "Stream, validate and transform large CSV files",
		Long: `csvsift reads a CSV file with name, email and age columns, drops invalid
rows, upper-cases names and writes the accepted rows to a new file.

Settings come from flags, CSVSIFT_* environment variables, a .env file and
csvsift.yaml, in that order of precedence.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			v, err := config.NewViper(a.configFile)
			if err != nil {
				return err
			}
			bindConfigFlags(v, cmd.Flags())
			a.cfg = config.LoadFrom(v)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&a.configFile, "config", "", "config file (default ./csvsift.yaml)")
	addConfigFlags(root.PersistentFlags())

	root.AddCommand(
		newRunCommand(a),
		newValidateConfigCommand(a),
		newHistoryCommand(a),
	)
	return root
}

// reportIssues prints every issue and returns the blocking ones as an error.
func reportIssues(w io.Writer, issues []config.Issue) error {
	for _, iss := range issues {
		fmt.Fprintf(w, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	return config.Err(issues)
}

func newValidateConfigCommand(a *app) *cobra.Command {
	var skipIO bool
	cmd := &cobra.Command{
		Use:   "validate-config",
		Short: "Check the effective configuration and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := reportIssues(cmd.ErrOrStderr(), config.Validate(a.cfg, !skipIO)); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "configuration OK")
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipIO, "skip-io", false, "do not require input and output")
	return cmd
}
