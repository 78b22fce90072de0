package commands

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/subvocal/pkg/cli"
	"github.com/haivivi/subvocal/pkg/runlog"
	"github.com/haivivi/subvocal/pkg/trainer"
)

var (
	calibrateCommands []string
	calibrateReps     int
	calibrateTrial    time.Duration
	calibrateRest     time.Duration
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Record a guided calibration session",
	Long: `Walk through a calibration session: a silence baseline, then each
command, with a 3-2-1 countdown before every trial.

Press ENTER at each prompt. The recording is saved as
training_YYYYMMDD_HHMMSS.csv in the records directory.

Examples:
  subvocal calibrate
  subvocal calibrate --commands yes,no --reps 10`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		c := cfg.Calibration
		if cmd.Flags().Changed("commands") {
			c.Commands = calibrateCommands
		}
		if cmd.Flags().Changed("reps") {
			c.Reps = calibrateReps
		}
		if cmd.Flags().Changed("trial") {
			c.TrialDuration = calibrateTrial
		}
		if cmd.Flags().Changed("rest") {
			c.Rest = calibrateRest
		}
		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		link, err := connect(ctx, cfg)
		if err != nil {
			return err
		}
		defer link.Close()

		out := cmd.OutOrStdout()
		styles := cli.NewStyles(cli.DefaultTheme)
		labels := append([]string{cfg.Pipeline.SilenceLabel}, c.Commands...)
		fmt.Fprintf(out, "Calibration: %d labels x %d trials of %s\n", len(labels), c.Reps, c.TrialDuration)

		opts := trainer.CalibrationOptions{
			Commands:      c.Commands,
			SilenceLabel:  cfg.Pipeline.SilenceLabel,
			Reps:          c.Reps,
			TrialDuration: c.TrialDuration,
			Rest:          c.Rest,
		}
		if c.Rest == 0 {
			opts.Rest = -1
		}
		session, err := trainer.Calibrate(ctx, link, cli.NewPrompter(cmd.InOrStdin(), out, styles), opts)
		if err != nil {
			return err
		}
		path, err := trainer.WriteRecord(cfg.Paths.Records, session.Started, session.Record)
		if err != nil {
			return err
		}
		size := "?"
		if st, err := os.Stat(path); err == nil {
			size = cli.FormatBytes(st.Size())
		}
		cli.PrintSuccess("saved %d samples (%d trials, %s) to %s", session.Record.Len(), session.Trials(), size, path)

		rl, err := runlog.Open(cfg.Paths.Runlog)
		if err != nil {
			slog.Warn("subvocal: run log unavailable", "error", err)
			return nil
		}
		defer rl.Close()
		if err := rl.AddCalibration(ctx, runlog.Calibration{
			ID:       session.ID,
			Record:   path,
			Started:  session.Started,
			Finished: session.Finished,
			Labels:   session.Labels,
			Reps:     session.Reps,
			Trials:   session.Trials(),
			Samples:  session.Record.Len(),
		}); err != nil {
			slog.Warn("subvocal: run log write failed", "error", err)
		}
		fmt.Fprintln(out, "Next: subvocal train")
		return nil
	},
}

func init() {
	calibrateCmd.Flags().StringSliceVar(&calibrateCommands, "commands", nil, "commands to record (default from config)")
	calibrateCmd.Flags().IntVar(&calibrateReps, "reps", trainer.DefaultReps, "trials per label")
	calibrateCmd.Flags().DurationVar(&calibrateTrial, "trial", trainer.DefaultTrialDuration, "length of each trial")
	calibrateCmd.Flags().DurationVar(&calibrateRest, "rest", trainer.DefaultRest, "pause between trials, 0 to disable")
	rootCmd.AddCommand(calibrateCmd)
}
