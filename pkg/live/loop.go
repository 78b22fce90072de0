// Package live runs trained models against a streaming EMG device and
// reports recognized commands.
//
// A Loop keeps the most recent window of samples. Once the window is full
// it classifies every step_size samples and feeds the predicted label to a
// Debouncer; a command is reported when the debouncer agrees.
package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/haivivi/subvocal/pkg/buffer"
	"github.com/haivivi/subvocal/pkg/emglink"
	"github.com/haivivi/subvocal/pkg/pipeline"
)

// State is the loop state.
type State int

const (
	// StateFilling means fewer than window_size samples have arrived.
	StateFilling State = iota
	// StateReady means the loop classifies every step_size samples.
	StateReady
)

func (s State) String() string {
	switch s {
	case StateFilling:
		return "filling"
	case StateReady:
		return "ready"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// progressEvery is how often, in samples, filling progress is reported.
const progressEvery = 50

const stopTimeout = time.Second

// Model classifies one feature vector. *model.Artifact implements it.
type Model interface {
	Config() pipeline.Config
	Predict(features []float64) (label string, probability float64, err error)
}

// Device is the part of an emglink.Link the loop uses.
type Device interface {
	SendCommand(ctx context.Context, cmd emglink.Command) ([]string, error)
	ReadSample(ctx context.Context) (emglink.Sample, bool, error)
}

// Status is reported to Options.OnStatus.
type Status struct {
	State      State
	Filled     int
	WindowSize int
	Samples    int64
}

// Prediction is reported to Options.OnPrediction for every classified
// window, before debouncing.
type Prediction struct {
	Label       string
	Probability float64
	Verdict     *Verdict
	Sample      int64
}

// Options configures a Loop.
type Options struct {
	// Sink receives recognized commands. Defaults to LogSink.
	Sink Sink

	// OnStatus is called every 50 samples while filling and once on
	// becoming ready.
	OnStatus func(Status)

	// OnPrediction is called for every classified window.
	OnPrediction func(Prediction)

	// Config is the active pipeline configuration. Nil uses the model's.
	// Fields that shape the feature vector must match the model's; vote
	// count and confidence threshold are taken from Config.
	Config *pipeline.Config

	// QueueSize bounds the samples read ahead of processing. Default 256.
	QueueSize int

	// Now defaults to time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// Loop is a live recognition session. A Loop is owned by one goroutine.
type Loop struct {
	model Model
	cfg   pipeline.Config
	front *pipeline.Frontend
	opts  Options
	log   *slog.Logger

	window *buffer.RingBuffer[[]float64]
	deb    *Debouncer
	step   int64
	count  int64
	state  State
}

// NewLoop creates a Loop for m.
func NewLoop(m Model, opts Options) (*Loop, error) {
	cfg := m.Config()
	if opts.Config != nil {
		if diffs := cfg.Diff(*opts.Config); len(diffs) > 0 {
			return nil, fmt.Errorf("live: model does not match configuration: %s", strings.Join(diffs, "; "))
		}
		cfg = *opts.Config
	}
	front, err := pipeline.NewFrontend(cfg)
	if err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Sink == nil {
		opts.Sink = LogSink{Logger: opts.Logger}
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Loop{
		model:  m,
		cfg:    cfg,
		front:  front,
		opts:   opts,
		log:    opts.Logger,
		window: buffer.RingN[[]float64](cfg.WindowSize()),
		deb:    NewDebouncer(cfg.VoteCount, cfg.ConfidenceThreshold, cfg.SilenceLabel),
		step:   int64(cfg.StepSize()),
	}, nil
}

// State returns the current state.
func (l *Loop) State() State {
	return l.state
}

// Samples returns the number of samples processed.
func (l *Loop) Samples() int64 {
	return l.count
}

// Step processes one sample. It returns the recognized command, if this
// sample completed one.
func (l *Loop) Step(ctx context.Context, channels []float64) (*Event, error) {
	if len(channels) != l.cfg.Channels {
		return nil, fmt.Errorf("live: sample has %d channels, want %d", len(channels), l.cfg.Channels)
	}
	l.window.Push(channels)
	l.count++

	if !l.window.Full() {
		if l.count%progressEvery == 0 {
			l.status()
		}
		return nil, nil
	}
	if l.state == StateFilling {
		l.state = StateReady
		l.log.Info("live: window filled, listening", "window_size", l.window.Cap(), "samples", l.count)
		l.status()
	}
	if l.count%l.step != 0 {
		return nil, nil
	}

	feats, err := l.front.Window(l.window.Items())
	if err != nil {
		return nil, err
	}
	label, prob, err := l.model.Predict(feats)
	if err != nil {
		return nil, fmt.Errorf("live: predict: %w", err)
	}
	v := l.deb.Vote(label)
	if l.opts.OnPrediction != nil {
		l.opts.OnPrediction(Prediction{Label: label, Probability: prob, Verdict: v, Sample: l.count})
	}
	if v == nil || !v.Emit {
		return nil, nil
	}

	ev := &Event{
		Label:       v.Majority,
		Confidence:  v.Confidence,
		Probability: prob,
		Sample:      l.count,
		At:          l.opts.Now(),
	}
	if err := l.opts.Sink.Emit(ctx, *ev); err != nil {
		l.log.Warn("live: sink failed", "label", ev.Label, "error", err)
	}
	return ev, nil
}

func (l *Loop) status() {
	if l.opts.OnStatus == nil {
		return
	}
	l.opts.OnStatus(Status{
		State:      l.state,
		Filled:     l.window.Len(),
		WindowSize: l.window.Cap(),
		Samples:    l.count,
	})
}

// Run sets the device sample rate, starts streaming and processes samples
// until ctx is cancelled. A dedicated goroutine reads the device into a
// bounded queue. On cancellation Run stops the stream and returns nil; on
// a device error it attempts to stop the stream and returns the error.
func (l *Loop) Run(ctx context.Context, dev Device) error {
	if _, err := dev.SendCommand(ctx, emglink.SetSampleRate{Hz: int(l.cfg.SampleRate)}); err != nil {
		return err
	}
	if _, err := dev.SendCommand(ctx, emglink.StartStream{}); err != nil {
		return err
	}
	l.log.Info("live: streaming", "window_size", l.window.Cap(), "step_size", l.step, "vote_count", l.cfg.VoteCount)

	rctx, cancel := context.WithCancel(ctx)
	defer cancel()
	samples := make(chan emglink.Sample, l.opts.QueueSize)
	readErr := make(chan error, 1)
	go func() {
		defer close(samples)
		for {
			s, ok, err := dev.ReadSample(rctx)
			if err != nil {
				readErr <- err
				return
			}
			if !ok {
				continue
			}
			select {
			case samples <- s:
			case <-rctx.Done():
				return
			}
		}
	}()

	// The reader must be gone before StopStream so it releases the device.
	shutdown := func() {
		cancel()
		l.stop(ctx, dev)
	}
	for {
		select {
		case <-ctx.Done():
			shutdown()
			return nil
		case s, ok := <-samples:
			if !ok {
				shutdown()
				if ctx.Err() != nil {
					return nil
				}
				return <-readErr
			}
			if _, err := l.Step(ctx, s.Channels); err != nil {
				shutdown()
				return err
			}
		}
	}
}

func (l *Loop) stop(ctx context.Context, dev Device) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()
	if _, err := dev.SendCommand(sctx, emglink.StopStream{}); err != nil && !errors.Is(err, emglink.ErrClosed) {
		l.log.Warn("live: stop stream failed", "error", err)
	}
}
