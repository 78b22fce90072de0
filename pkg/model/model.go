// Package model persists a trained classifier together with everything the
// live loop needs to reproduce its feature space: the fitted scaler, the
// ordered class labels and the pipeline configuration used in training.
//
// An artifact is a directory:
//
//	manifest.yaml       format version, id, kind, classes, config, metrics
//	scaler.msgpack      classifier.Scaler
//	classifier.msgpack  classifier state (MarshalBinary)
//
// The manifest is written last. A directory or remote prefix without a
// manifest is treated as absent. Published artifacts keep the two state
// files under <id>/ next to the manifest.
package model

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/haivivi/subvocal/pkg/classifier"
	"github.com/haivivi/subvocal/pkg/pipeline"
	"github.com/haivivi/subvocal/pkg/storage"
)

// FormatVersion is the artifact layout version written to the manifest.
const FormatVersion = 1

// Artifact file names.
const (
	ManifestFile   = "manifest.yaml"
	ScalerFile     = "scaler.msgpack"
	ClassifierFile = "classifier.msgpack"
)

var (
	// ErrNotFound is returned when no artifact exists at a location.
	ErrNotFound = errors.New("model: artifact not found")

	// ErrConfigMismatch is returned when an artifact cannot serve a
	// pipeline configuration.
	ErrConfigMismatch = errors.New("model: configuration mismatch")
)

// Metrics summarizes how the artifact performed during training.
type Metrics struct {
	Windows       int                         `yaml:"windows"`
	ClassWindows  map[string]int              `yaml:"class_windows,omitempty"`
	TrainAccuracy float64                     `yaml:"train_accuracy"`
	CV            classifier.CVResult         `yaml:"cv"`
	Report        *classifier.Report          `yaml:"report,omitempty"`
	Confusion     *classifier.ConfusionMatrix `yaml:"confusion,omitempty"`
}

// Manifest is the YAML header of an artifact.
type Manifest struct {
	Format  int               `yaml:"format"`
	ID      string            `yaml:"id"`
	Created time.Time         `yaml:"created"`
	Kind    string            `yaml:"kind"`
	Params  classifier.Params `yaml:"params,omitempty"`
	Classes []string          `yaml:"classes"`
	Record  string            `yaml:"record,omitempty"`
	Config  pipeline.Config   `yaml:"config"`
	Metrics Metrics           `yaml:"metrics"`

	// State is the directory of the scaler and classifier files relative
	// to the manifest. Empty means next to it.
	State string `yaml:"state,omitempty"`
}

// Artifact is a trained model ready for inference.
//
// Predict is safe for concurrent use once the artifact is built.
type Artifact struct {
	Manifest

	Scaler     *classifier.Scaler
	Classifier classifier.Classifier
}

// New assembles an artifact from a fitted scaler and classifier. It
// assigns a fresh ID and checks that the parts agree with cfg.
func New(cfg pipeline.Config, scaler *classifier.Scaler, clf classifier.Classifier, metrics Metrics) (*Artifact, error) {
	a := &Artifact{
		Manifest: Manifest{
			Format:  FormatVersion,
			ID:      uuid.NewString(),
			Created: time.Now().UTC(),
			Kind:    clf.Kind(),
			Classes: slices.Clone(clf.Classes()),
			Config:  cfg,
			Metrics: metrics,
		},
		Scaler:     scaler,
		Classifier: clf,
	}
	if err := a.validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// Config returns the pipeline configuration the model was trained with.
func (a *Artifact) Config() pipeline.Config {
	return a.Manifest.Config
}

// Predict scales features and returns the most probable label and its
// probability.
func (a *Artifact) Predict(features []float64) (string, float64, error) {
	x, err := a.Scaler.Transform(features)
	if err != nil {
		return "", 0, fmt.Errorf("model: %w", err)
	}
	return a.Classifier.Predict(x)
}

// CheckCompatible reports whether the artifact can classify windows
// produced under cfg. Vote count and confidence threshold may differ; every
// field that shapes the feature vector must match.
func (a *Artifact) CheckCompatible(cfg pipeline.Config) error {
	if diffs := a.Manifest.Config.Diff(cfg); len(diffs) > 0 {
		return fmt.Errorf("%w: %s", ErrConfigMismatch, strings.Join(diffs, "; "))
	}
	if a.Scaler.Dim() != cfg.FeatureLen() {
		return fmt.Errorf("%w: scaler has %d features, pipeline produces %d",
			ErrConfigMismatch, a.Scaler.Dim(), cfg.FeatureLen())
	}
	return nil
}

func (a *Artifact) validate() error {
	if a.Format != FormatVersion {
		return fmt.Errorf("model: unsupported format version %d", a.Format)
	}
	if a.Scaler == nil || a.Classifier == nil {
		return errors.New("model: artifact is missing scaler or classifier")
	}
	if err := a.Manifest.Config.Validate(); err != nil {
		return fmt.Errorf("model: %w", err)
	}
	if want := a.Manifest.Config.FeatureLen(); a.Scaler.Dim() != want {
		return fmt.Errorf("%w: scaler has %d features, config implies %d", ErrConfigMismatch, a.Scaler.Dim(), want)
	}
	if !slices.Equal(a.Classes, a.Classifier.Classes()) {
		return fmt.Errorf("model: manifest classes %v differ from classifier classes %v", a.Classes, a.Classifier.Classes())
	}
	return nil
}

// Save writes a to dir atomically. The files are written into a temporary
// sibling directory which then replaces dir.
func Save(dir string, a *Artifact) error {
	if err := a.validate(); err != nil {
		return err
	}
	dir = filepath.Clean(dir)
	parent := filepath.Dir(dir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("model: %w", err)
	}
	tmp, err := os.MkdirTemp(parent, "."+filepath.Base(dir)+".tmp-")
	if err != nil {
		return fmt.Errorf("model: %w", err)
	}
	defer os.RemoveAll(tmp)

	local, err := storage.NewLocal(tmp)
	if err != nil {
		return fmt.Errorf("model: %w", err)
	}
	if err := write(context.Background(), local, a, ""); err != nil {
		return err
	}
	return replaceDir(tmp, dir)
}

// replaceDir moves src over dst. An existing dst is moved aside first and
// removed once src is in place.
func replaceDir(src, dst string) error {
	old := ""
	if _, err := os.Stat(dst); err == nil {
		old = dst + ".old-" + uuid.NewString()[:8]
		if err := os.Rename(dst, old); err != nil {
			return fmt.Errorf("model: %w", err)
		}
	}
	if err := os.Rename(src, dst); err != nil {
		if old != "" {
			os.Rename(old, dst)
		}
		return fmt.Errorf("model: %w", err)
	}
	if old != "" {
		os.RemoveAll(old)
	}
	return nil
}

// Load reads the artifact in dir. A missing directory or manifest yields
// an error wrapping ErrNotFound.
func Load(dir string) (*Artifact, error) {
	st, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, dir)
	}
	if err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("model: %s is not a directory", dir)
	}
	local, err := storage.NewLocal(dir)
	if err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}
	return read(context.Background(), local, dir)
}

// write stores the state files under state, then the manifest.
func write(ctx context.Context, store storage.FileStore, a *Artifact, state string) error {
	scalerState, err := msgpack.Marshal(a.Scaler)
	if err != nil {
		return fmt.Errorf("model: encode scaler: %w", err)
	}
	clfState, err := a.Classifier.MarshalBinary()
	if err != nil {
		return fmt.Errorf("model: encode classifier: %w", err)
	}
	m := a.Manifest
	m.State = state
	manifest, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("model: encode manifest: %w", err)
	}
	for _, f := range []struct {
		name string
		data []byte
	}{
		{path.Join(state, ScalerFile), scalerState},
		{path.Join(state, ClassifierFile), clfState},
		{ManifestFile, manifest},
	} {
		if err := writeFile(ctx, store, f.name, f.data); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(ctx context.Context, store storage.FileStore, name string, data []byte) error {
	w, err := store.Write(ctx, name)
	if err != nil {
		return fmt.Errorf("model: write %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		if a, ok := w.(interface{ Abort() }); ok {
			a.Abort()
		} else {
			w.Close()
		}
		return fmt.Errorf("model: write %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("model: write %s: %w", name, err)
	}
	return nil
}

func read(ctx context.Context, store storage.FileStore, where string) (*Artifact, error) {
	raw, err := readFile(ctx, store, ManifestFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, where)
	}
	if err != nil {
		return nil, err
	}
	a := &Artifact{}
	if err := yaml.Unmarshal(raw, &a.Manifest); err != nil {
		return nil, fmt.Errorf("model: decode manifest: %w", err)
	}
	if a.Format != FormatVersion {
		return nil, fmt.Errorf("model: unsupported format version %d", a.Format)
	}

	raw, err = readFile(ctx, store, path.Join(a.State, ScalerFile))
	if err != nil {
		return nil, err
	}
	a.Scaler = &classifier.Scaler{}
	if err := msgpack.Unmarshal(raw, a.Scaler); err != nil {
		return nil, fmt.Errorf("model: decode scaler: %w", err)
	}

	raw, err = readFile(ctx, store, path.Join(a.State, ClassifierFile))
	if err != nil {
		return nil, err
	}
	a.Classifier, err = classifier.New(a.Kind, a.Params)
	if err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}
	if err := a.Classifier.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}

	if err := a.validate(); err != nil {
		return nil, err
	}
	return a, nil
}

func readFile(ctx context.Context, store storage.FileStore, name string) ([]byte, error) {
	r, err := store.Read(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("model: read %s: %w", name, err)
	}
	defer r.Close()
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("model: read %s: %w", name, err)
	}
	return b, nil
}
