// Package runlog keeps a history of calibration sessions and trained
// models, so an operator can see which record produced which model and how
// well it cross-validated.
//
// Entries are msgpack-encoded and keyed by creation time, so listing
// returns them in chronological order.
package runlog

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrNotFound is returned when an entry does not exist.
var ErrNotFound = errors.New("runlog: not found")

const (
	calibrationPrefix = "calibration"
	modelPrefix       = "model"
	indexPrefix       = "id"

	timeKeyLayout = "20060102T150405.000000000Z"
)

// Calibration records one calibration session.
type Calibration struct {
	ID       string    `msgpack:"id" json:"id" yaml:"id"`
	Record   string    `msgpack:"record" json:"record" yaml:"record"`
	Started  time.Time `msgpack:"started" json:"started" yaml:"started"`
	Finished time.Time `msgpack:"finished" json:"finished" yaml:"finished"`
	Labels   []string  `msgpack:"labels" json:"labels" yaml:"labels"`
	Reps     int       `msgpack:"reps" json:"reps" yaml:"reps"`
	Trials   int       `msgpack:"trials" json:"trials" yaml:"trials"`
	Samples  int       `msgpack:"samples" json:"samples" yaml:"samples"`
}

// Model records one trained model.
type Model struct {
	ID            string    `msgpack:"id" json:"id" yaml:"id"`
	Created       time.Time `msgpack:"created" json:"created" yaml:"created"`
	Kind          string    `msgpack:"kind" json:"kind" yaml:"kind"`
	Classes       []string  `msgpack:"classes" json:"classes" yaml:"classes"`
	Record        string    `msgpack:"record" json:"record" yaml:"record"`
	Dir           string    `msgpack:"dir" json:"dir" yaml:"dir"`
	Windows       int       `msgpack:"windows" json:"windows" yaml:"windows"`
	TrainAccuracy float64   `msgpack:"train_accuracy" json:"train_accuracy" yaml:"train_accuracy"`
	CVMean        float64   `msgpack:"cv_mean" json:"cv_mean" yaml:"cv_mean"`
	CVStd         float64   `msgpack:"cv_std" json:"cv_std" yaml:"cv_std"`

	// Published is where the model was copied, if anywhere.
	Published string `msgpack:"published,omitempty" json:"published,omitempty" yaml:"published,omitempty"`
}

// Log is the run history.
type Log struct {
	store Store
}

// New returns a Log over store.
func New(store Store) *Log {
	return &Log{store: store}
}

// Open opens the on-disk log in dir.
func Open(dir string) (*Log, error) {
	s, err := NewBadger(BadgerOptions{Dir: dir})
	if err != nil {
		return nil, fmt.Errorf("runlog: open %s: %w", dir, err)
	}
	return New(s), nil
}

// Close closes the underlying store.
func (l *Log) Close() error {
	return l.store.Close()
}

// AddCalibration appends c.
func (l *Log) AddCalibration(ctx context.Context, c Calibration) error {
	return l.put(ctx, calibrationPrefix, c.ID, c.Started, c)
}

// AddModel appends m. Adding a model with an existing ID replaces it.
func (l *Log) AddModel(ctx context.Context, m Model) error {
	return l.put(ctx, modelPrefix, m.ID, m.Created, m)
}

// Calibrations returns all sessions, newest first.
func (l *Log) Calibrations(ctx context.Context) ([]Calibration, error) {
	return list[Calibration](ctx, l.store, calibrationPrefix)
}

// Models returns all models, newest first.
func (l *Log) Models(ctx context.Context) ([]Model, error) {
	return list[Model](ctx, l.store, modelPrefix)
}

// Model returns the model with id.
func (l *Log) Model(ctx context.Context, id string) (Model, error) {
	var m Model
	err := l.get(ctx, modelPrefix, id, &m)
	return m, err
}

// Calibration returns the session with id.
func (l *Log) Calibration(ctx context.Context, id string) (Calibration, error) {
	var c Calibration
	err := l.get(ctx, calibrationPrefix, id, &c)
	return c, err
}

func (l *Log) put(ctx context.Context, kind, id string, at time.Time, v any) error {
	if id == "" {
		return fmt.Errorf("runlog: %s entry has no id", kind)
	}
	b, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("runlog: encode %s: %w", kind, err)
	}
	idx := Key{indexPrefix, kind, id}
	if old, err := l.store.Get(ctx, idx); err == nil {
		if err := l.store.Delete(ctx, Key{kind, string(old), id}); err != nil {
			return err
		}
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	ts := at.UTC().Format(timeKeyLayout)
	if err := l.store.Set(ctx, Key{kind, ts, id}, b); err != nil {
		return err
	}
	return l.store.Set(ctx, idx, []byte(ts))
}

func (l *Log) get(ctx context.Context, kind, id string, v any) error {
	ts, err := l.store.Get(ctx, Key{indexPrefix, kind, id})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
		}
		return err
	}
	b, err := l.store.Get(ctx, Key{kind, string(ts), id})
	if err != nil {
		return err
	}
	return msgpack.Unmarshal(b, v)
}

func list[T any](ctx context.Context, s Store, kind string) ([]T, error) {
	var out []T
	for e, err := range s.List(ctx, Key{kind}) {
		if err != nil {
			return nil, err
		}
		var v T
		if err := msgpack.Unmarshal(e.Value, &v); err != nil {
			return nil, fmt.Errorf("runlog: decode %s: %w", e.Key, err)
		}
		out = append(out, v)
	}
	slices.Reverse(out)
	return out, nil
}
