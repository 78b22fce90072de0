package commands

import (
	"github.com/spf13/cobra"

	"github.com/haivivi/subvocal/pkg/cli"
	"github.com/haivivi/subvocal/pkg/emglink"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports",
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, err := emglink.Ports()
		if err != nil {
			return err
		}
		if len(ports) == 0 {
			cli.PrintInfo("no serial ports found")
			return nil
		}
		t := cli.Table{Header: []string{"PORT"}}
		for _, p := range ports {
			t.Rows = append(t.Rows, []string{p})
		}
		return cli.Output(t, outputOptions())
	},
}

func init() {
	rootCmd.AddCommand(portsCmd)
}
