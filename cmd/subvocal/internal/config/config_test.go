package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/haivivi/subvocal/pkg/cli"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadMissingDefault(t *testing.T) {
	paths := &cli.Paths{Root: t.TempDir()}
	cfg, err := Load("", paths)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.File != "" {
		t.Errorf("File = %q, want empty", cfg.File)
	}
	if cfg.Device.Baud != 115200 {
		t.Errorf("Baud = %d, want 115200", cfg.Device.Baud)
	}
	if cfg.Calibration.Reps != 25 {
		t.Errorf("Reps = %d, want 25", cfg.Calibration.Reps)
	}
	if cfg.Paths.Records != paths.RecordDir() {
		t.Errorf("Records = %q, want %q", cfg.Paths.Records, paths.RecordDir())
	}
	if cfg.Paths.Model != paths.ModelDir() {
		t.Errorf("Model = %q, want %q", cfg.Paths.Model, paths.ModelDir())
	}
	if cfg.MQTT.Prefix != "emg" {
		t.Errorf("Prefix = %q, want emg", cfg.MQTT.Prefix)
	}
}

func TestLoadMissingExplicit(t *testing.T) {
	paths := &cli.Paths{Root: t.TempDir()}
	_, err := Load(filepath.Join(paths.Root, "nope.yaml"), paths)
	if err == nil {
		t.Fatal("expected error for a missing explicit config")
	}
}

func TestLoadOverrides(t *testing.T) {
	paths := &cli.Paths{Root: t.TempDir()}
	writeFile(t, paths.ConfigFile(), `
device:
  address: tcp://127.0.0.1:7777
pipeline:
  notch_hz: 50
calibration:
  commands: [up, down]
  reps: 3
paths:
  records: /data/emg
mqtt:
  url: tcp://broker:1883
  qos: 1
`)
	cfg, err := Load("", paths)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.File != paths.ConfigFile() {
		t.Errorf("File = %q", cfg.File)
	}
	if cfg.Device.Address != "tcp://127.0.0.1:7777" {
		t.Errorf("Address = %q", cfg.Device.Address)
	}
	if cfg.Device.Baud != 115200 {
		t.Errorf("Baud = %d, want default kept", cfg.Device.Baud)
	}
	if cfg.Pipeline.NotchHz != 50 {
		t.Errorf("NotchHz = %g, want 50", cfg.Pipeline.NotchHz)
	}
	if cfg.Pipeline.SampleRate != 200 {
		t.Errorf("SampleRate = %g, want default kept", cfg.Pipeline.SampleRate)
	}
	if !slices.Equal(cfg.Calibration.Commands, []string{"up", "down"}) {
		t.Errorf("Commands = %v", cfg.Calibration.Commands)
	}
	if cfg.Calibration.Reps != 3 {
		t.Errorf("Reps = %d, want 3", cfg.Calibration.Reps)
	}
	if cfg.Paths.Records != "/data/emg" {
		t.Errorf("Records = %q", cfg.Paths.Records)
	}
	if cfg.Paths.Runlog != paths.RunlogDir() {
		t.Errorf("Runlog = %q, want resolved default", cfg.Paths.Runlog)
	}
	if cfg.MQTT.QoS != 1 || cfg.MQTT.Prefix != "emg" {
		t.Errorf("MQTT = %+v", cfg.MQTT)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"bad yaml", "device: [", "parse"},
		{"pipeline", "pipeline:\n  overlap: 1.5\n", "overlap"},
		{"reps", "calibration:\n  reps: -1\n", "reps"},
		{"qos", "mqtt:\n  qos: 3\n", "qos"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "config.yaml")
			writeFile(t, path, tt.content)
			_, err := Load(path, &cli.Paths{Root: dir})
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestSaveLoad(t *testing.T) {
	paths := &cli.Paths{Root: filepath.Join(t.TempDir(), "nested")}
	cfg := Default()
	cfg.Device.Address = "/dev/ttyACM1"
	cfg.Calibration.Commands = []string{"left", "right"}
	cfg.Classifier.Kind = "knn"
	cfg.Classifier.Params = map[string]float64{"k": 7}

	if err := Save(paths.ConfigFile(), cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load("", paths)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Device.Address != "/dev/ttyACM1" {
		t.Errorf("Address = %q", got.Device.Address)
	}
	if got.Device.ResetSettle != cfg.Device.ResetSettle {
		t.Errorf("ResetSettle = %v, want %v", got.Device.ResetSettle, cfg.Device.ResetSettle)
	}
	if got.Calibration.TrialDuration != cfg.Calibration.TrialDuration {
		t.Errorf("TrialDuration = %v, want %v", got.Calibration.TrialDuration, cfg.Calibration.TrialDuration)
	}
	if !slices.Equal(got.Calibration.Commands, []string{"left", "right"}) {
		t.Errorf("Commands = %v", got.Calibration.Commands)
	}
	if got.Classifier.Kind != "knn" || got.Classifier.Params.Int("k", 0) != 7 {
		t.Errorf("Classifier = %+v", got.Classifier)
	}
	if diff := got.Pipeline.Diff(cfg.Pipeline); len(diff) != 0 {
		t.Errorf("pipeline changed: %v", diff)
	}
}

func TestLinkOptions(t *testing.T) {
	cfg := Default()
	cfg.Pipeline.Channels = 8
	opts := cfg.LinkOptions()
	if opts.Channels != 8 || opts.BaudRate != 115200 {
		t.Errorf("LinkOptions = %+v", opts)
	}
}
