package trainer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Calibration defaults.
const (
	DefaultReps          = 25
	DefaultTrialDuration = 2 * time.Second
	DefaultRest          = 2 * time.Second
	DefaultCountdownStep = 500 * time.Millisecond
)

// DefaultCommands are the words recorded when none are configured.
var DefaultCommands = []string{"yes", "no", "go", "stop", "select"}

// Recorder records one labelled trial. *emglink.Link implements it.
type Recorder interface {
	RecordTrial(ctx context.Context, d time.Duration, label string) ([][]float64, error)
}

// Phase is a step of a calibration trial.
type Phase int

const (
	PhaseCountdown Phase = iota
	PhaseRecording
	PhaseRecorded
)

// Progress describes where a calibration session is.
type Progress struct {
	Phase Phase
	Label string

	// Trial counts from 1 to Reps.
	Trial int
	Reps  int

	// Countdown is 3, 2 or 1 during PhaseCountdown.
	Countdown int

	// Samples is the trial length during PhaseRecorded.
	Samples int
}

// Prompter is the operator side of a calibration session.
type Prompter interface {
	// Confirm shows prompt and blocks until the operator is ready.
	Confirm(ctx context.Context, prompt Prompt) error

	// Progress reports a step of the current trial.
	Progress(p Progress)
}

// PromptKind tells a Prompter what the operator is asked to confirm.
type PromptKind int

const (
	PromptPlacement PromptKind = iota
	PromptBaseline
	PromptCommand
)

// Prompt is one operator confirmation.
type Prompt struct {
	Kind  PromptKind
	Label string
}

func (p Prompt) String() string {
	switch p.Kind {
	case PromptPlacement:
		return "Press ENTER when electrodes are placed and ready..."
	case PromptBaseline:
		return fmt.Sprintf("BASELINE: relax jaw completely, no speaking. Press ENTER when ready for %q...", p.Label)
	default:
		return fmt.Sprintf("COMMAND: silently mouth %q when you see GO. Press ENTER when ready...", p.Label)
	}
}

// CalibrationOptions configures Calibrate.
type CalibrationOptions struct {
	// Commands to record after the silence baseline. Defaults to
	// DefaultCommands.
	Commands []string

	// SilenceLabel is recorded first. Required.
	SilenceLabel string

	Reps          int
	TrialDuration time.Duration
	CountdownStep time.Duration

	// Rest separates trials of one label. Negative disables it.
	Rest time.Duration

	// Sleep waits for d or until ctx is done. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error

	Logger *slog.Logger
}

func (o CalibrationOptions) withDefaults() CalibrationOptions {
	if len(o.Commands) == 0 {
		o.Commands = DefaultCommands
	}
	if o.Reps <= 0 {
		o.Reps = DefaultReps
	}
	if o.TrialDuration <= 0 {
		o.TrialDuration = DefaultTrialDuration
	}
	if o.Rest < 0 {
		o.Rest = 0
	} else if o.Rest == 0 {
		o.Rest = DefaultRest
	}
	if o.CountdownStep <= 0 {
		o.CountdownStep = DefaultCountdownStep
	}
	if o.Sleep == nil {
		o.Sleep = sleep
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Labels returns the labels in recording order: silence, then commands.
func (o CalibrationOptions) Labels() []string {
	o = o.withDefaults()
	return append([]string{o.SilenceLabel}, o.Commands...)
}

// Session is the outcome of a calibration run.
type Session struct {
	ID       string
	Started  time.Time
	Finished time.Time
	Labels   []string
	Reps     int
	Record   *Record
}

// Trials returns the number of trials recorded.
func (s *Session) Trials() int {
	return len(s.Labels) * s.Reps
}

// Calibrate runs the guided protocol: placement confirmation, then for
// each label a confirmation and Reps countdown-and-record trials with a
// rest between trials of the same label.
func Calibrate(ctx context.Context, rec Recorder, p Prompter, opts CalibrationOptions) (*Session, error) {
	o := opts.withDefaults()
	if o.SilenceLabel == "" {
		return nil, errors.New("trainer: calibration needs a silence label")
	}
	labels := o.Labels()
	for i, l := range labels {
		if l == "" {
			return nil, errors.New("trainer: empty command label")
		}
		if slices.Index(labels, l) != i {
			return nil, fmt.Errorf("trainer: label %q listed twice", l)
		}
	}

	s := &Session{
		ID:      uuid.NewString(),
		Started: time.Now(),
		Labels:  labels,
		Reps:    o.Reps,
		Record:  &Record{},
	}
	log := o.Logger.With("session", s.ID)
	log.Info("trainer: calibration started", "labels", labels, "reps", o.Reps, "trial", o.TrialDuration)

	if err := p.Confirm(ctx, Prompt{Kind: PromptPlacement}); err != nil {
		return nil, err
	}
	for _, label := range labels {
		kind := PromptCommand
		if label == o.SilenceLabel {
			kind = PromptBaseline
		}
		if err := p.Confirm(ctx, Prompt{Kind: kind, Label: label}); err != nil {
			return nil, err
		}
		for i := range o.Reps {
			prog := Progress{Label: label, Trial: i + 1, Reps: o.Reps}
			for c := 3; c >= 1; c-- {
				prog.Phase, prog.Countdown = PhaseCountdown, c
				p.Progress(prog)
				if err := o.Sleep(ctx, o.CountdownStep); err != nil {
					return nil, err
				}
			}
			prog.Phase, prog.Countdown = PhaseRecording, 0
			p.Progress(prog)

			samples, err := rec.RecordTrial(ctx, o.TrialDuration, label)
			if err != nil {
				return nil, fmt.Errorf("trainer: %s trial %d: %w", label, i+1, err)
			}
			s.Record.AddTrial(label, i, samples)
			prog.Phase, prog.Samples = PhaseRecorded, len(samples)
			p.Progress(prog)
			log.Debug("trainer: trial recorded", "label", label, "trial", i+1, "samples", len(samples))

			if i < o.Reps-1 {
				if err := o.Sleep(ctx, o.Rest); err != nil {
					return nil, err
				}
			}
		}
	}
	s.Finished = time.Now()
	log.Info("trainer: calibration complete", "samples", s.Record.Len(), "took", s.Finished.Sub(s.Started).Round(time.Second))
	return s, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
