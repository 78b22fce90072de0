package commands

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/haivivi/subvocal/cmd/subvocal/internal/config"
	"github.com/haivivi/subvocal/pkg/cli"
	"github.com/haivivi/subvocal/pkg/emglink"
	"github.com/haivivi/subvocal/pkg/model"
	"github.com/haivivi/subvocal/pkg/trainer"
)

var (
	// Global flags
	verbose      bool
	configFile   string
	logFormat    string
	deviceAddr   string
	formatOutput string
	outputFile   string

	// Global configuration (loaded at init time)
	globalConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "subvocal",
	Short: "Silent speech command recognition from jaw EMG",
	Long: `subvocal - recognize silently mouthed commands from surface EMG.

A 4-channel EMG board streams samples over USB serial. subvocal checks the
electrodes, records a guided calibration session, trains a classifier on
it and then recognizes commands live, optionally publishing each one to
an MQTT broker.

Workflow:
  subvocal test         check signal quality per channel
  subvocal calibrate    record silence and each command
  subvocal train        train a model from the latest recording
  subvocal live         recognize commands in real time

Files live in $SUBVOCAL_HOME, or in the OS config directory:
  macOS:   ~/Library/Application Support/subvocal/
  Linux:   ~/.config/subvocal/
  Windows: %AppData%/subvocal/

Devices are addressed as a serial port (/dev/ttyUSB0, COM3), tcp://host:port,
ws://host/path, or sim:// for the built-in simulator.

Examples:
  # Try the whole workflow without hardware
  subvocal --device sim:// calibrate --reps 5
  subvocal train
  subvocal --device sim:// live

  # Publish recognized commands to Home Assistant's broker
  subvocal live --mqtt tcp://homeassistant.local:1883`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging(cmd.ErrOrStderr())
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default $SUBVOCAL_HOME/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text or json")
	rootCmd.PersistentFlags().StringVarP(&deviceAddr, "device", "d", "", "device address (overrides device.address)")
	rootCmd.PersistentFlags().StringVar(&formatOutput, "format", "table", "output format: table, yaml, json")
	rootCmd.PersistentFlags().StringVarP(&outputFile, "output", "o", "", "write output to file")
}

// configLoadErr stores the error from config.Load() for deferred reporting.
var configLoadErr error

func initConfig() {
	globalConfig, configLoadErr = nil, nil
	paths, err := cli.DefaultPaths()
	if err != nil {
		configLoadErr = err
		return
	}
	cfg, err := config.Load(configFile, paths)
	if err != nil {
		// Commands that need config get the error via GetConfig().
		configLoadErr = err
		return
	}
	globalConfig = cfg
}

// GetConfig returns the global configuration.
func GetConfig() (*config.Config, error) {
	if globalConfig == nil {
		if configLoadErr != nil {
			return nil, fmt.Errorf("config not available: %w", configLoadErr)
		}
		initConfig()
		if configLoadErr != nil {
			return nil, fmt.Errorf("config not available: %w", configLoadErr)
		}
	}
	return globalConfig, nil
}

// IsVerbose returns whether verbose mode is enabled.
func IsVerbose() bool {
	return verbose
}

func setupLogging(w io.Writer) error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	switch logFormat {
	case "text", "":
		slog.SetDefault(slog.New(slog.NewTextHandler(w, opts)))
	case "json":
		slog.SetDefault(slog.New(slog.NewJSONHandler(w, opts)))
	default:
		return fmt.Errorf("unsupported log format %q (want text or json)", logFormat)
	}
	return nil
}

func outputOptions() cli.OutputOptions {
	return cli.OutputOptions{Format: cli.OutputFormat(formatOutput), File: outputFile}
}

// Hint returns a corrective action for err, or "" if there is none.
func Hint(err error) string {
	var empty *trainer.EmptyClassError
	var conn *emglink.ConnectionError
	switch {
	case errors.Is(err, trainer.ErrNoTrainingData):
		return "record a session first: subvocal calibrate"
	case errors.Is(err, model.ErrNotFound):
		return "train a model first: subvocal train"
	case errors.Is(err, model.ErrConfigMismatch):
		return "the pipeline settings changed since training; retrain with: subvocal train"
	case errors.As(err, &empty):
		return fmt.Sprintf("every %q trial is shorter than one window; recalibrate with longer trials", empty.Label)
	case errors.As(err, &conn):
		return "check the cable and device address; list serial ports with: subvocal ports"
	}
	return ""
}

// Fail prints err and its hint to stderr.
func Fail(err error) {
	cli.PrintError("%v", err)
	if h := Hint(err); h != "" {
		cli.PrintHint("%s", h)
	}
}
