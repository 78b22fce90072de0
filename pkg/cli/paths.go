package cli

import (
	"os"
	"path/filepath"
)

const (
	// AppName names the application directory.
	AppName = "subvocal"

	// HomeEnv overrides the application directory.
	HomeEnv = "SUBVOCAL_HOME"

	// DefaultConfigFile is the configuration file name.
	DefaultConfigFile = "config.yaml"
)

// Paths is the on-disk layout of the application directory:
//
//	<root>/config.yaml
//	<root>/emg_data/training_*.csv
//	<root>/model/
//	<root>/runlog/
//	<root>/cache/
type Paths struct {
	Root string
}

// DefaultPaths returns the layout rooted at $SUBVOCAL_HOME, or at
// os.UserConfigDir()/subvocal.
func DefaultPaths() (*Paths, error) {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return &Paths{Root: dir}, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return nil, err
	}
	return &Paths{Root: filepath.Join(base, AppName)}, nil
}

// ConfigFile returns <root>/config.yaml.
func (p *Paths) ConfigFile() string {
	return filepath.Join(p.Root, DefaultConfigFile)
}

// RecordDir holds calibration records.
func (p *Paths) RecordDir() string {
	return filepath.Join(p.Root, "emg_data")
}

// ModelDir holds the current model artifact.
func (p *Paths) ModelDir() string {
	return filepath.Join(p.Root, "model")
}

// RunlogDir holds the run history database.
func (p *Paths) RunlogDir() string {
	return filepath.Join(p.Root, "runlog")
}

// CacheDir holds fetched remote artifacts.
func (p *Paths) CacheDir() string {
	return filepath.Join(p.Root, "cache")
}

// CachePath returns a path within the cache directory.
func (p *Paths) CachePath(name string) string {
	return filepath.Join(p.CacheDir(), name)
}

// EnsureRoot creates the application directory.
func (p *Paths) EnsureRoot() error {
	return os.MkdirAll(p.Root, 0o755)
}
