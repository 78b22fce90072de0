// Package trainer runs the calibration protocol, stores its recordings and
// turns a recording into a model artifact.
//
// A calibration session records a silence baseline followed by each
// command, Reps trials apiece, and is written as one CSV record. Train
// conditions the whole record, windows it through the same pipeline the
// live loop uses, fits the scaler and classifier, and cross-validates.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/haivivi/subvocal/pkg/classifier"
	"github.com/haivivi/subvocal/pkg/model"
	"github.com/haivivi/subvocal/pkg/pipeline"
)

// Cross-validation defaults.
const (
	DefaultFolds = 5
	DefaultSeed  = 42
)

// EmptyClassError reports a class that appears in the record but yields no
// windows, typically because its trials are shorter than one window.
type EmptyClassError struct {
	Label string
}

func (e *EmptyClassError) Error() string {
	return fmt.Sprintf("trainer: class %q has no complete windows", e.Label)
}

// TrainOptions configures Train.
type TrainOptions struct {
	Config pipeline.Config

	// Kind and Params select the classifier. Kind defaults to
	// classifier.DefaultKind.
	Kind   string
	Params classifier.Params

	Folds int
	Seed  uint64

	// Source names the record in the artifact manifest.
	Source string

	Logger *slog.Logger
}

// Result is a trained artifact together with its evaluation.
type Result struct {
	Artifact     *model.Artifact
	Windows      int
	ClassWindows map[string]int
	CV           classifier.CVResult

	// Report and Confusion are computed on the training data.
	Report    classifier.Report
	Confusion classifier.ConfusionMatrix
}

// Train fits a model to rec.
func Train(ctx context.Context, rec *Record, opts TrainOptions) (*Result, error) {
	if opts.Kind == "" {
		opts.Kind = classifier.DefaultKind
	}
	if opts.Folds == 0 {
		opts.Folds = DefaultFolds
	}
	if opts.Seed == 0 {
		opts.Seed = DefaultSeed
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	if rec == nil || rec.Len() == 0 {
		return nil, ErrNoTrainingData
	}

	cfg := opts.Config
	front, err := pipeline.NewFrontend(cfg)
	if err != nil {
		return nil, err
	}
	if rec.Channels() != cfg.Channels {
		return nil, fmt.Errorf("trainer: record has %d channels, pipeline expects %d", rec.Channels(), cfg.Channels)
	}

	x, y, err := front.Matrix(rec.Samples, rec.Labels)
	if err != nil {
		return nil, err
	}
	dist := make(map[string]int)
	for _, l := range y {
		dist[l]++
	}
	for _, c := range rec.Classes() {
		if dist[c] == 0 {
			return nil, &EmptyClassError{Label: c}
		}
	}
	if len(dist) < 2 {
		return nil, errors.New("trainer: need at least two classes to train")
	}
	log.Info("trainer: feature matrix", "windows", len(x), "features", cfg.FeatureLen(), "classes", len(dist))
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scaler, err := classifier.FitScaler(x)
	if err != nil {
		return nil, err
	}
	xs, err := scaler.TransformAll(x)
	if err != nil {
		return nil, err
	}

	newClassifier := func() (classifier.Classifier, error) {
		return classifier.New(opts.Kind, opts.Params)
	}
	cv, err := classifier.CrossValidate(newClassifier, xs, y, opts.Folds, opts.Seed)
	if err != nil {
		return nil, fmt.Errorf("trainer: cross-validation: %w", err)
	}
	log.Info("trainer: cross-validation", "kind", opts.Kind, "accuracy", cv.String())
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	clf, err := newClassifier()
	if err != nil {
		return nil, err
	}
	if err := clf.Fit(xs, y); err != nil {
		return nil, fmt.Errorf("trainer: fit: %w", err)
	}
	pred, err := classifier.PredictAll(clf, xs)
	if err != nil {
		return nil, err
	}
	classes := slices.Clone(clf.Classes())
	report := classifier.NewReport(classes, y, pred)
	confusion := classifier.NewConfusionMatrix(classes, y, pred)

	a, err := model.New(cfg, scaler, clf, model.Metrics{
		Windows:       len(x),
		ClassWindows:  dist,
		TrainAccuracy: report.Accuracy,
		CV:            cv,
		Report:        &report,
		Confusion:     &confusion,
	})
	if err != nil {
		return nil, err
	}
	a.Params = opts.Params
	a.Record = opts.Source

	return &Result{
		Artifact:     a,
		Windows:      len(x),
		ClassWindows: dist,
		CV:           cv,
		Report:       report,
		Confusion:    confusion,
	}, nil
}
