package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/subvocal/pkg/cli"
	"github.com/haivivi/subvocal/pkg/emglink"
)

var (
	testDuration time.Duration
	testSettle   time.Duration
)

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Check electrode contact and signal quality",
	Long: `Run the firmware self-test, stream for a few seconds and report
per-channel statistics, dominant frequency and mains interference.

A channel whose standard deviation is below 5 ADC counts is flagged dead,
which usually means an electrode lost contact.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		link, err := connect(ctx, cfg)
		if err != nil {
			return err
		}
		defer link.Close()

		report, err := link.SelfTest(ctx, emglink.SelfTestOptions{
			Settle:     testSettle,
			Gain:       cfg.Device.Gain,
			Duration:   testDuration,
			SampleRate: cfg.Pipeline.SampleRate,
			MainsHz:    cfg.Pipeline.NotchHz,
		})
		if err != nil {
			return err
		}
		if formatOutput != string(cli.FormatTable) {
			return cli.Output(report, outputOptions())
		}

		out := cmd.OutOrStdout()
		for _, d := range report.Diagnostics {
			fmt.Fprintln(out, d)
		}
		fmt.Fprintf(out, "%d samples in %s (%.1f Hz effective)\n\n",
			report.Samples, cli.FormatDuration(report.Elapsed), report.EffectiveRate)
		if err := cli.Output(selfTestTable(report), outputOptions()); err != nil {
			return err
		}
		dead := report.DeadChannels()
		for _, ch := range dead {
			cli.PrintWarning("channel %d (%s) looks dead: check electrode contact", ch+1, report.Channels[ch].Name)
		}
		if len(dead) == 0 {
			cli.PrintSuccess("all %d channels active", len(report.Channels))
		}
		return nil
	},
}

func selfTestTable(r *emglink.SelfTestReport) cli.Table {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 1, 64) }
	t := cli.Table{Header: []string{"CH", "SITE", "MIN", "MAX", "MEAN", "STD", "PEAK_HZ", "MAINS", "STATUS"}}
	for i, c := range r.Channels {
		status := "ok"
		if c.Dead {
			status = "DEAD"
		}
		t.Rows = append(t.Rows, []string{
			strconv.Itoa(i + 1), c.Name, f(c.Min), f(c.Max), f(c.Mean), f(c.Std), f(c.PeakHz), f(c.Mains), status,
		})
	}
	return t
}

func init() {
	testCmd.Flags().DurationVar(&testDuration, "duration", 3*time.Second, "how long to stream")
	testCmd.Flags().DurationVar(&testSettle, "settle", 3*time.Second, "how long to collect self-test output")
	rootCmd.AddCommand(testCmd)
}
