// Package cli holds the terminal side of the subvocal command: directory
// layout, output formatting, the calibration prompter and the live view.
//
// Nothing here knows about devices or models beyond the types it renders;
// commands under cmd/subvocal wire these helpers to the pkg/ components.
//
// Example:
//
//	paths, err := cli.DefaultPaths()
//	rec, err := trainer.LatestRecord(paths.RecordDir())
//
//	cli.Output(history, cli.OutputOptions{Format: cli.FormatTable})
package cli
