package commands

import (
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/subvocal/pkg/cli"
	"github.com/haivivi/subvocal/pkg/runlog"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past calibrations and models",
}

var historyModelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List trained models, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		rl, err := openRunlog()
		if err != nil {
			return err
		}
		defer rl.Close()
		models, err := rl.Models(cmd.Context())
		if err != nil {
			return err
		}
		return cli.Output(modelsTable(models), outputOptions())
	},
}

var historyCalibrationsCmd = &cobra.Command{
	Use:     "calibrations",
	Aliases: []string{"cal"},
	Short:   "List calibration sessions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		rl, err := openRunlog()
		if err != nil {
			return err
		}
		defer rl.Close()
		cals, err := rl.Calibrations(cmd.Context())
		if err != nil {
			return err
		}
		return cli.Output(calibrationsTable(cals), outputOptions())
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one model or calibration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rl, err := openRunlog()
		if err != nil {
			return err
		}
		defer rl.Close()
		opts := outputOptions()
		if opts.Format == cli.FormatTable {
			opts.Format = cli.FormatYAML
		}
		if m, err := rl.Model(cmd.Context(), args[0]); err == nil {
			return cli.Output(m, opts)
		}
		c, err := rl.Calibration(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return cli.Output(c, opts)
	},
}

func openRunlog() (*runlog.Log, error) {
	cfg, err := GetConfig()
	if err != nil {
		return nil, err
	}
	return runlog.Open(cfg.Paths.Runlog)
}

func modelsTable(models []runlog.Model) cli.Table {
	t := cli.Table{Header: []string{"ID", "CREATED", "KIND", "CLASSES", "WINDOWS", "TRAIN", "CV"}}
	for _, m := range models {
		t.Rows = append(t.Rows, []string{
			m.ID,
			m.Created.Local().Format(time.DateTime),
			m.Kind,
			strings.Join(m.Classes, ","),
			strconv.Itoa(m.Windows),
			cli.FormatPercent(m.TrainAccuracy),
			cli.FormatMeanStd(m.CVMean, m.CVStd),
		})
	}
	return t
}

func calibrationsTable(cals []runlog.Calibration) cli.Table {
	t := cli.Table{Header: []string{"ID", "STARTED", "LABELS", "REPS", "SAMPLES", "TOOK"}}
	for _, c := range cals {
		t.Rows = append(t.Rows, []string{
			c.ID,
			c.Started.Local().Format(time.DateTime),
			strings.Join(c.Labels, ","),
			strconv.Itoa(c.Reps),
			strconv.Itoa(c.Samples),
			cli.FormatDuration(c.Finished.Sub(c.Started)),
		})
	}
	return t
}

func init() {
	historyCmd.AddCommand(historyModelsCmd, historyCalibrationsCmd, historyShowCmd)
	rootCmd.AddCommand(historyCmd)
}
