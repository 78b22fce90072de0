package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type modelSummary struct {
	ID      string   `json:"id" yaml:"id"`
	Classes []string `json:"classes" yaml:"classes"`
	CV      float64  `json:"cv" yaml:"cv"`
}

var summary = modelSummary{ID: "3f2a", Classes: []string{"silence", "yes"}, CV: 0.95}

func TestOutput(t *testing.T) {
	tests := []struct {
		format OutputFormat
		want   []string
	}{
		{FormatYAML, []string{"id: 3f2a", "- silence", "cv: 0.95"}},
		{"", []string{"id: 3f2a"}},
		{FormatTable, []string{"id: 3f2a"}},
		{FormatJSON, []string{`"id": "3f2a"`, `  "cv": 0.95`}},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			var buf bytes.Buffer
			if err := Output(summary, OutputOptions{Format: tt.format, Writer: &buf}); err != nil {
				t.Fatal(err)
			}
			for _, w := range tt.want {
				if !strings.Contains(buf.String(), w) {
					t.Errorf("output missing %q:\n%s", w, buf.String())
				}
			}
		})
	}

	if err := Output(summary, OutputOptions{Format: "csv", Writer: &bytes.Buffer{}}); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestOutputToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.json")
	if err := Output(summary, OutputOptions{Format: FormatJSON, File: path}); err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var got modelSummary
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatal(err)
	}
	if got.ID != "3f2a" || len(got.Classes) != 2 {
		t.Errorf("got %+v", got)
	}
}

func TestOutput_Table(t *testing.T) {
	table := Table{
		Header: []string{"ID", "Kind", "CV"},
		Rows: [][]string{
			{"a1", "softmax", "91.0%"},
			{"b22", "knn", "84.5%"},
		},
	}

	t.Run("table", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Output(table, OutputOptions{Format: FormatTable, Writer: &buf}); err != nil {
			t.Fatal(err)
		}
		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		if len(lines) != 3 {
			t.Fatalf("lines = %q", lines)
		}
		if lines[0] != "ID   Kind     CV" {
			t.Errorf("header = %q", lines[0])
		}
		if lines[2] != "b22  knn      84.5%" {
			t.Errorf("row = %q", lines[2])
		}
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Output(&table, OutputOptions{Format: FormatJSON, Writer: &buf}); err != nil {
			t.Fatal(err)
		}
		var got []map[string]string
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatal(err)
		}
		if len(got) != 2 || got[1]["kind"] != "knn" {
			t.Errorf("records = %v", got)
		}
	})

	t.Run("non-table falls back to yaml", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Output(map[string]int{"n": 1}, OutputOptions{Format: FormatTable, Writer: &buf}); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(buf.String(), "n: 1") {
			t.Errorf("got %q", buf.String())
		}
	})
}
