package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haivivi/subvocal/cmd/subvocal/internal/build"
	"github.com/haivivi/subvocal/pkg/cli"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		if formatOutput == string(cli.FormatJSON) || formatOutput == string(cli.FormatYAML) {
			return cli.Output(build.Get(), outputOptions())
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, build.String())
		if IsVerbose() {
			fmt.Fprintf(out, "  go:     %s\n", build.Get().Go)
			if cfg, err := GetConfig(); err != nil {
				fmt.Fprintf(out, "  config: (unavailable: %v)\n", err)
			} else if cfg.File != "" {
				fmt.Fprintf(out, "  config: %s\n", cfg.File)
			} else {
				fmt.Fprintf(out, "  config: (defaults)\n")
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
