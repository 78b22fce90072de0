// Package main is the entry point for the subvocal CLI.
//
// Usage:
//
//	subvocal [flags] <command> [args]
//
// Commands:
//
//	test       - Check electrode contact and signal quality
//	calibrate  - Record a guided calibration session
//	train      - Train a model from a calibration recording
//	live       - Recognize commands in real time
//	sim        - Serve the device simulator over TCP
//	ports      - List serial ports
//	history    - Show past calibrations and models
//	config     - Show or initialize the configuration file
//	version    - Show version information
package main

import (
	"os"

	"github.com/haivivi/subvocal/cmd/subvocal/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		commands.Fail(err)
		os.Exit(1)
	}
}
