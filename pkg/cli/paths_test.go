package cli

import (
	"path/filepath"
	"testing"
)

func TestDefaultPaths(t *testing.T) {
	t.Run("env override", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv(HomeEnv, dir)
		p, err := DefaultPaths()
		if err != nil {
			t.Fatal(err)
		}
		if p.Root != dir {
			t.Errorf("Root = %q, want %q", p.Root, dir)
		}
	})
	t.Run("user config dir", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv(HomeEnv, "")
		t.Setenv("XDG_CONFIG_HOME", dir)
		t.Setenv("HOME", dir)
		p, err := DefaultPaths()
		if err != nil {
			t.Fatal(err)
		}
		if filepath.Base(p.Root) != AppName {
			t.Errorf("Root = %q", p.Root)
		}
	})
}

func TestPathsLayout(t *testing.T) {
	root := t.TempDir()
	p := &Paths{Root: root}
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"config", p.ConfigFile(), filepath.Join(root, "config.yaml")},
		{"records", p.RecordDir(), filepath.Join(root, "emg_data")},
		{"model", p.ModelDir(), filepath.Join(root, "model")},
		{"runlog", p.RunlogDir(), filepath.Join(root, "runlog")},
		{"cache", p.CacheDir(), filepath.Join(root, "cache")},
		{"cache path", p.CachePath("abc"), filepath.Join(root, "cache", "abc")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestEnsureRoot(t *testing.T) {
	p := &Paths{Root: filepath.Join(t.TempDir(), "a", "b")}
	if err := p.EnsureRoot(); err != nil {
		t.Fatal(err)
	}
}
