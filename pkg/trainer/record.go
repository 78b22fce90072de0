package trainer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/haivivi/subvocal/pkg/storage"
)

// ErrNoTrainingData is returned when no calibration record exists.
var ErrNoTrainingData = errors.New("trainer: no training data")

const (
	recordPrefix = "training_"
	recordExt    = ".csv"
	recordLayout = "20060102_150405"
)

// Record is one calibration session: every raw sample with the label and
// trial index it was recorded under.
type Record struct {
	Samples [][]float64
	Labels  []string
	Trials  []int
}

// Len returns the number of samples.
func (r *Record) Len() int {
	return len(r.Samples)
}

// Channels returns the channel count, or 0 for an empty record.
func (r *Record) Channels() int {
	if len(r.Samples) == 0 {
		return 0
	}
	return len(r.Samples[0])
}

// AddTrial appends the samples of one trial.
func (r *Record) AddTrial(label string, trial int, samples [][]float64) {
	for _, s := range samples {
		r.Samples = append(r.Samples, s)
		r.Labels = append(r.Labels, label)
		r.Trials = append(r.Trials, trial)
	}
}

// Classes returns the distinct labels in order of first appearance.
func (r *Record) Classes() []string {
	var out []string
	for _, l := range r.Labels {
		if !slices.Contains(out, l) {
			out = append(out, l)
		}
	}
	return out
}

// RecordName returns the file name of a record started at t.
func RecordName(t time.Time) string {
	return recordPrefix + t.Format(recordLayout) + recordExt
}

// WriteRecord writes r to dir under RecordName(at) and returns the path.
// The file appears only once fully written.
func WriteRecord(dir string, at time.Time, r *Record) (string, error) {
	if r.Len() == 0 {
		return "", errors.New("trainer: refusing to write an empty record")
	}
	channels := r.Channels()
	local, err := storage.NewLocal(dir)
	if err != nil {
		return "", fmt.Errorf("trainer: %w", err)
	}
	name := RecordName(at)
	w, err := local.Write(context.Background(), name)
	if err != nil {
		return "", fmt.Errorf("trainer: %w", err)
	}
	if err := encodeRecord(w, r, channels); err != nil {
		if a, ok := w.(interface{ Abort() }); ok {
			a.Abort()
		}
		return "", fmt.Errorf("trainer: write %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("trainer: write %s: %w", name, err)
	}
	return filepath.Join(local.Root(), name), nil
}

func encodeRecord(w io.Writer, r *Record, channels int) error {
	cw := csv.NewWriter(w)
	header := make([]string, 0, channels+2)
	for ch := range channels {
		header = append(header, "ch"+strconv.Itoa(ch+1))
	}
	header = append(header, "label", "trial")
	if err := cw.Write(header); err != nil {
		return err
	}
	row := make([]string, channels+2)
	for i, s := range r.Samples {
		if len(s) != channels {
			return fmt.Errorf("sample %d has %d channels, want %d", i, len(s), channels)
		}
		for ch, v := range s {
			row[ch] = strconv.FormatFloat(v, 'f', -1, 64)
		}
		row[channels] = r.Labels[i]
		row[channels+1] = strconv.Itoa(r.Trials[i])
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadRecord loads the record at path.
func ReadRecord(path string) (*Record, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoTrainingData, path)
	}
	if err != nil {
		return nil, fmt.Errorf("trainer: %w", err)
	}
	defer f.Close()
	r, err := decodeRecord(f)
	if err != nil {
		return nil, fmt.Errorf("trainer: read %s: %w", filepath.Base(path), err)
	}
	return r, nil
}

func decodeRecord(in io.Reader) (*Record, error) {
	cr := csv.NewReader(in)
	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.New("empty file")
	}
	if err != nil {
		return nil, err
	}
	channels, labelCol, trialCol, err := parseHeader(header)
	if err != nil {
		return nil, err
	}
	cr.FieldsPerRecord = len(header)

	r := &Record{}
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		s := make([]float64, channels)
		for ch := range channels {
			v, err := strconv.ParseFloat(strings.TrimSpace(row[ch]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: ch%d: %w", line, ch+1, err)
			}
			s[ch] = v
		}
		trial := 0
		if trialCol >= 0 {
			trial, err = strconv.Atoi(strings.TrimSpace(row[trialCol]))
			if err != nil {
				return nil, fmt.Errorf("line %d: trial: %w", line, err)
			}
		}
		r.Samples = append(r.Samples, s)
		r.Labels = append(r.Labels, row[labelCol])
		r.Trials = append(r.Trials, trial)
	}
	if r.Len() == 0 {
		return nil, errors.New("no samples")
	}
	return r, nil
}

// parseHeader expects ch1..chN followed by label and an optional trial.
func parseHeader(header []string) (channels, labelCol, trialCol int, err error) {
	for channels < len(header) && header[channels] == "ch"+strconv.Itoa(channels+1) {
		channels++
	}
	if channels == 0 {
		return 0, 0, 0, fmt.Errorf("header %v has no channel columns", header)
	}
	rest := header[channels:]
	switch {
	case len(rest) == 1 && rest[0] == "label":
		return channels, channels, -1, nil
	case len(rest) == 2 && rest[0] == "label" && rest[1] == "trial":
		return channels, channels, channels + 1, nil
	}
	return 0, 0, 0, fmt.Errorf("header %v: want ch1..chN,label,trial", header)
}

// LatestRecord returns the path of the most recent record in dir.
func LatestRecord(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w in %s", ErrNoTrainingData, dir)
	}
	if err != nil {
		return "", fmt.Errorf("trainer: %w", err)
	}
	var names []string
	for _, e := range entries {
		n := e.Name()
		if !e.IsDir() && strings.HasPrefix(n, recordPrefix) && strings.HasSuffix(n, recordExt) {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		return "", fmt.Errorf("%w in %s", ErrNoTrainingData, dir)
	}
	slices.Sort(names)
	return filepath.Join(dir, names[len(names)-1]), nil
}
