// Package config loads the subvocal configuration file.
//
// The file lives at $SUBVOCAL_HOME/config.yaml, or under
// os.UserConfigDir()/subvocal/ when SUBVOCAL_HOME is unset:
//
//	device:
//	  address: /dev/ttyUSB0
//	  baud: 115200
//	pipeline:
//	  sample_rate: 200
//	  window_ms: 250
//	calibration:
//	  commands: [yes, no, go, stop, select]
//	  reps: 25
//	mqtt:
//	  url: tcp://homeassistant.local:1883
//
// Missing sections keep their defaults. Empty paths resolve under the
// application directory.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/haivivi/subvocal/pkg/classifier"
	"github.com/haivivi/subvocal/pkg/cli"
	"github.com/haivivi/subvocal/pkg/emglink"
	"github.com/haivivi/subvocal/pkg/live"
	"github.com/haivivi/subvocal/pkg/pipeline"
	"github.com/haivivi/subvocal/pkg/storage"
	"github.com/haivivi/subvocal/pkg/trainer"
)

// Config is the whole configuration file.
type Config struct {
	Device      Device           `yaml:"device"`
	Pipeline    pipeline.Config  `yaml:"pipeline"`
	Calibration Calibration      `yaml:"calibration"`
	Classifier  Classifier       `yaml:"classifier"`
	Paths       Paths            `yaml:"paths"`
	MQTT        MQTT             `yaml:"mqtt"`
	S3          storage.S3Config `yaml:"s3"`

	// File is where the configuration was read from, if anywhere.
	File string `yaml:"-"`
}

// Device selects and tunes the acquisition board.
type Device struct {
	Address      string        `yaml:"address"`
	Baud         int           `yaml:"baud"`
	ResetSettle  time.Duration `yaml:"reset_settle"`
	ResponseWait time.Duration `yaml:"response_wait"`
	Gain         int           `yaml:"gain"`
}

// Calibration configures the guided recording session.
type Calibration struct {
	Commands      []string      `yaml:"commands"`
	Reps          int           `yaml:"reps"`
	TrialDuration time.Duration `yaml:"trial_duration"`
	Rest          time.Duration `yaml:"rest"`
}

// Classifier selects the classifier kind and its hyperparameters.
type Classifier struct {
	Kind   string            `yaml:"kind"`
	Params classifier.Params `yaml:"params,omitempty"`
}

// Paths are the working directories. Empty values resolve under the
// application directory.
type Paths struct {
	Records string `yaml:"records,omitempty"`
	Model   string `yaml:"model,omitempty"`
	Runlog  string `yaml:"runlog,omitempty"`
	Cache   string `yaml:"cache,omitempty"`
}

// MQTT configures command publishing during live detection.
type MQTT struct {
	URL      string `yaml:"url,omitempty"`
	Prefix   string `yaml:"prefix"`
	QoS      int    `yaml:"qos"`
	ClientID string `yaml:"client_id,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Device: Device{
			Address:      "/dev/ttyUSB0",
			Baud:         emglink.DefaultBaudRate,
			ResetSettle:  emglink.DefaultResetSettle,
			ResponseWait: emglink.DefaultResponseWait,
			Gain:         3,
		},
		Pipeline: pipeline.DefaultConfig(),
		Calibration: Calibration{
			Commands:      append([]string(nil), trainer.DefaultCommands...),
			Reps:          trainer.DefaultReps,
			TrialDuration: trainer.DefaultTrialDuration,
			Rest:          trainer.DefaultRest,
		},
		Classifier: Classifier{Kind: classifier.DefaultKind},
		MQTT:       MQTT{Prefix: live.DefaultTopicPrefix},
	}
}

// Load reads path over the defaults. An empty path reads the default
// location and tolerates its absence; an explicit path must exist.
func Load(path string, paths *cli.Paths) (*Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = paths.ConfigFile()
	}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		cfg.Paths = cfg.Paths.resolve(paths)
		return cfg, nil
	case err != nil:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.File = path
	cfg.Paths = cfg.Paths.resolve(paths)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path, creating parent directories.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Validate rejects settings no command can run with.
func (c *Config) Validate() error {
	if err := c.Pipeline.Validate(); err != nil {
		return err
	}
	if c.Calibration.Reps <= 0 {
		return fmt.Errorf("calibration.reps must be positive, got %d", c.Calibration.Reps)
	}
	if c.Calibration.TrialDuration <= 0 {
		return fmt.Errorf("calibration.trial_duration must be positive")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	return nil
}

// LinkOptions returns the emglink options for the device section.
func (c *Config) LinkOptions() emglink.Options {
	return emglink.Options{
		Channels:     c.Pipeline.Channels,
		BaudRate:     c.Device.Baud,
		ResetSettle:  c.Device.ResetSettle,
		ResponseWait: c.Device.ResponseWait,
	}
}

func (p Paths) resolve(paths *cli.Paths) Paths {
	pick := func(v, def string) string {
		if v == "" {
			return def
		}
		return v
	}
	return Paths{
		Records: pick(p.Records, paths.RecordDir()),
		Model:   pick(p.Model, paths.ModelDir()),
		Runlog:  pick(p.Runlog, paths.RunlogDir()),
		Cache:   pick(p.Cache, paths.CacheDir()),
	}
}
