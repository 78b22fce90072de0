package emglink

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/haivivi/subvocal/pkg/dsp"
)

// DeadChannelStd is the standard deviation (ADC counts) below which a
// channel is reported as dead.
const DeadChannelStd = 5.0

// DefaultChannelNames are the electrode sites of the reference headset.
var DefaultChannelNames = []string{"Mentalis", "Masseter", "Submental", "Laryngeal"}

// SelfTestOptions configures Link.SelfTest.
type SelfTestOptions struct {
	// Settle is how long to collect firmware self-test output. Default 3s.
	Settle time.Duration

	// Gain is the gain level set before sampling. Default 3.
	Gain int

	// Duration is how long to stream. Default 3s.
	Duration time.Duration

	// SampleRate is the nominal rate for spectral analysis. Default 200.
	SampleRate float64

	// MainsHz is the interference frequency to measure. Default 60.
	MainsHz float64

	// ChannelNames label the report rows. Default DefaultChannelNames.
	ChannelNames []string
}

// ChannelStats summarizes one channel of a self-test capture.
type ChannelStats struct {
	Name   string  `yaml:"name"`
	Min    float64 `yaml:"min"`
	Max    float64 `yaml:"max"`
	Mean   float64 `yaml:"mean"`
	Std    float64 `yaml:"std"`
	Dead   bool    `yaml:"dead"`
	PeakHz float64 `yaml:"peak_hz"`
	Mains  float64 `yaml:"mains_amplitude"`
}

// SelfTestReport is the outcome of Link.SelfTest.
type SelfTestReport struct {
	Diagnostics   []string       `yaml:"diagnostics"`
	Samples       int            `yaml:"samples"`
	Elapsed       time.Duration  `yaml:"elapsed"`
	EffectiveRate float64        `yaml:"effective_rate"`
	Channels      []ChannelStats `yaml:"channels"`
}

// DeadChannels returns the indices of channels flagged dead.
func (r *SelfTestReport) DeadChannels() []int {
	var out []int
	for i, c := range r.Channels {
		if c.Dead {
			out = append(out, i)
		}
	}
	return out
}

// SelfTest runs the firmware self-test, then streams for a while and
// reports per-channel statistics and the effective sample rate.
func (l *Link) SelfTest(ctx context.Context, opts SelfTestOptions) (*SelfTestReport, error) {
	if opts.Settle == 0 {
		opts.Settle = 3 * time.Second
	}
	if opts.Gain == 0 {
		opts.Gain = 3
	}
	if opts.Duration == 0 {
		opts.Duration = 3 * time.Second
	}
	if opts.SampleRate == 0 {
		opts.SampleRate = 200
	}
	if opts.MainsHz == 0 {
		opts.MainsHz = 60
	}
	if opts.ChannelNames == nil {
		opts.ChannelNames = DefaultChannelNames
	}

	report := &SelfTestReport{}
	resp, err := l.SendCommand(ctx, SelfTest{})
	if err != nil {
		return nil, err
	}
	report.Diagnostics = append(report.Diagnostics, resp...)
	diag, err := l.collectDiagnostics(ctx, opts.Settle)
	if err != nil {
		return nil, err
	}
	report.Diagnostics = append(report.Diagnostics, diag...)

	if _, err := l.SendCommand(ctx, SetGain{Level: opts.Gain}); err != nil {
		return nil, err
	}

	var rows [][]float64
	start := time.Now()
	for s, err := range l.StreamSamples(ctx, StreamOptions{Duration: opts.Duration}) {
		if err != nil {
			return nil, err
		}
		rows = append(rows, s.Channels)
	}
	report.Elapsed = time.Since(start)
	report.Samples = len(rows)
	if len(rows) == 0 {
		return report, errors.New("emglink: self-test received no data, check the connection and firmware")
	}
	report.EffectiveRate = float64(len(rows)) / report.Elapsed.Seconds()

	col := make([]float64, len(rows))
	for ch := range l.opts.Channels {
		for i, r := range rows {
			col[i] = r[ch]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		cs := ChannelStats{
			Name: channelName(opts.ChannelNames, ch),
			Min:  floats.Min(col),
			Max:  floats.Max(col),
			Mean: mean,
			Std:  std,
			Dead: std < DeadChannelStd,
		}
		cs.PeakHz, _ = dsp.DominantFrequency(col, opts.SampleRate)
		cs.Mains = dsp.AmplitudeAt(col, opts.SampleRate, opts.MainsHz)
		report.Channels = append(report.Channels, cs)
	}
	return report, nil
}

// collectDiagnostics gathers comment lines for d, dropping data lines.
func (l *Link) collectDiagnostics(ctx context.Context, d time.Duration) ([]string, error) {
	l.readMu.Lock()
	defer l.readMu.Unlock()
	var out []string
	deadline := time.Now().Add(d)
	for {
		remain := time.Until(deadline)
		if remain <= 0 {
			return out, nil
		}
		line, err := l.nextLine(ctx, remain)
		if errors.Is(err, errIdle) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		if strings.HasPrefix(line, CommentPrefix) {
			out = append(out, line)
		}
	}
}

func channelName(names []string, ch int) string {
	if ch < len(names) {
		return names[ch]
	}
	return "ch" + strconv.Itoa(ch+1)
}
