package commands

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/haivivi/subvocal/cmd/subvocal/internal/config"
	"github.com/haivivi/subvocal/pkg/emglink"
)

// simScheme selects the in-process simulator as the device.
const simScheme = "sim://"

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func deviceAddress(cfg *config.Config) string {
	if deviceAddr != "" {
		return deviceAddr
	}
	return cfg.Device.Address
}

func newSimulator(cfg *config.Config, log *slog.Logger) *emglink.Simulator {
	return emglink.NewSimulator(emglink.SimulatorOptions{
		SampleRate:   int(cfg.Pipeline.SampleRate),
		Channels:     cfg.Pipeline.Channels,
		SilenceLabel: cfg.Pipeline.SilenceLabel,
		Logger:       log,
	})
}

// connect opens the configured device and sets its gain.
func connect(ctx context.Context, cfg *config.Config) (*emglink.Link, error) {
	log := slog.Default()
	addr := deviceAddress(cfg)
	opts := cfg.LinkOptions()
	opts.Logger = log
	if strings.HasPrefix(addr, simScheme) {
		opts.Dial = newSimulator(cfg, log).PipeDial(ctx)
		opts.ResetSettle = -1
	}
	log.Info("subvocal: connecting", "device", addr)
	link, err := emglink.Connect(ctx, addr, opts)
	if err != nil {
		return nil, err
	}
	if cfg.Device.Gain > 0 {
		if _, err := link.SendCommand(ctx, emglink.SetGain{Level: cfg.Device.Gain}); err != nil {
			link.Close()
			return nil, err
		}
	}
	return link, nil
}
