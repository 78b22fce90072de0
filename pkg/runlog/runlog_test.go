package runlog_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/haivivi/subvocal/pkg/runlog"
)

func newBadgerStore(t *testing.T) runlog.Store {
	t.Helper()
	s, err := runlog.NewBadger(runlog.BadgerOptions{InMemory: true})
	if err != nil {
		t.Fatalf("NewBadger: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func stores(t *testing.T) map[string]runlog.Store {
	return map[string]runlog.Store{
		"memory": runlog.NewMemory(),
		"badger": newBadgerStore(t),
	}
}

func TestStoreGetSetDelete(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := runlog.Key{"model", "a"}

			if _, err := s.Get(ctx, key); !errors.Is(err, runlog.ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			if err := s.Set(ctx, key, []byte("v1")); err != nil {
				t.Fatal(err)
			}
			got, err := s.Get(ctx, key)
			if err != nil || string(got) != "v1" {
				t.Fatalf("Get = %q, %v", got, err)
			}
			if err := s.Delete(ctx, key); err != nil {
				t.Fatal(err)
			}
			if _, err := s.Get(ctx, key); !errors.Is(err, runlog.ErrNotFound) {
				t.Fatalf("after delete: %v", err)
			}
			if err := s.Delete(ctx, runlog.Key{"no", "such"}); err != nil {
				t.Fatalf("Delete missing: %v", err)
			}
		})
	}
}

func TestStoreListPrefixBoundary(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s.Set(ctx, runlog.Key{"model", "2"}, []byte("b"))
			s.Set(ctx, runlog.Key{"model", "1"}, []byte("a"))
			s.Set(ctx, runlog.Key{"models", "x"}, []byte("no"))
			s.Set(ctx, runlog.Key{"calibration", "1"}, []byte("no"))

			var keys []string
			for e, err := range s.List(ctx, runlog.Key{"model"}) {
				if err != nil {
					t.Fatal(err)
				}
				keys = append(keys, e.Key)
			}
			if !slices.Equal(keys, []string{"model:1", "model:2"}) {
				t.Errorf("keys = %v", keys)
			}
		})
	}
}

func TestLogModels(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			l := runlog.New(s)
			base := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

			for i, id := range []string{"m1", "m2", "m3"} {
				m := runlog.Model{
					ID:      id,
					Created: base.Add(time.Duration(i) * time.Minute),
					Kind:    "softmax",
					Classes: []string{"no", "silence", "yes"},
					CVMean:  0.8 + float64(i)/100,
				}
				if err := l.AddModel(ctx, m); err != nil {
					t.Fatal(err)
				}
			}

			models, err := l.Models(ctx)
			if err != nil {
				t.Fatal(err)
			}
			var ids []string
			for _, m := range models {
				ids = append(ids, m.ID)
			}
			if !slices.Equal(ids, []string{"m3", "m2", "m1"}) {
				t.Errorf("ids = %v, want newest first", ids)
			}

			m2, err := l.Model(ctx, "m2")
			if err != nil {
				t.Fatal(err)
			}
			if m2.CVMean != 0.81 || !m2.Created.Equal(base.Add(time.Minute)) || len(m2.Classes) != 3 {
				t.Errorf("m2 = %+v", m2)
			}

			// Re-adding replaces the entry rather than duplicating it.
			m2.Published = "s3://bucket/m2"
			if err := l.AddModel(ctx, m2); err != nil {
				t.Fatal(err)
			}
			models, _ = l.Models(ctx)
			if len(models) != 3 {
				t.Errorf("len = %d after replace", len(models))
			}
			got, _ := l.Model(ctx, "m2")
			if got.Published != "s3://bucket/m2" {
				t.Errorf("published = %q", got.Published)
			}

			if _, err := l.Model(ctx, "nope"); !errors.Is(err, runlog.ErrNotFound) {
				t.Errorf("missing model error = %v", err)
			}
		})
	}
}

func TestLogCalibrations(t *testing.T) {
	ctx := context.Background()
	l := runlog.New(runlog.NewMemory())
	started := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	c := runlog.Calibration{
		ID:       "c1",
		Record:   "emg_data/training_20261019_080000.csv",
		Started:  started,
		Finished: started.Add(10 * time.Minute),
		Labels:   []string{"silence", "yes"},
		Reps:     25,
		Trials:   50,
		Samples:  20000,
	}
	if err := l.AddCalibration(ctx, c); err != nil {
		t.Fatal(err)
	}
	all, err := l.Calibrations(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all[0].Record != c.Record || all[0].Trials != 50 {
		t.Errorf("calibrations = %+v", all)
	}
	got, err := l.Calibration(ctx, "c1")
	if err != nil || !got.Started.Equal(started) {
		t.Errorf("Calibration = %+v, %v", got, err)
	}
	if err := l.AddCalibration(ctx, runlog.Calibration{}); err == nil {
		t.Error("expected error for missing id")
	}
}

func TestOpenOnDisk(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	l, err := runlog.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.AddModel(ctx, runlog.Model{ID: "m", Created: time.Now()}); err != nil {
		t.Fatal(err)
	}
	l.Close()

	l, err = runlog.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	if _, err := l.Model(ctx, "m"); err != nil {
		t.Errorf("model lost across reopen: %v", err)
	}
}
