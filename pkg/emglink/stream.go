package emglink

import (
	"context"
	"errors"
	"iter"
	"time"
)

// StreamOptions bounds a stream. Zero values mean unbounded.
type StreamOptions struct {
	Duration   time.Duration
	MaxSamples int
}

// StreamSamples returns a sequence of samples. Each iteration of the
// sequence sends StartStream, yields samples until Duration elapses,
// MaxSamples have been yielded, the consumer stops, or ctx is cancelled, and
// always sends StopStream before returning. Errors are yielded once and end
// the sequence; reaching Duration is not an error.
func (l *Link) StreamSamples(ctx context.Context, opts StreamOptions) iter.Seq2[Sample, error] {
	return func(yield func(Sample, error) bool) {
		if _, err := l.SendCommand(ctx, StartStream{}); err != nil {
			yield(Sample{}, err)
			return
		}
		defer l.stopStream(ctx)

		rctx := ctx
		if opts.Duration > 0 {
			var cancel context.CancelFunc
			rctx, cancel = context.WithTimeout(ctx, opts.Duration)
			defer cancel()
		}
		for n := 0; opts.MaxSamples <= 0 || n < opts.MaxSamples; {
			s, ok, err := l.ReadSample(rctx)
			if err != nil {
				if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
					return
				}
				yield(Sample{}, err)
				return
			}
			if !ok {
				continue
			}
			n++
			if !yield(s, nil) {
				return
			}
		}
	}
}

// RecordTrial records one labeled trial: it sets the label, starts
// recording, collects channel readings for d, and stops. The result is
// never nil; a trial with no samples is an empty slice.
func (l *Link) RecordTrial(ctx context.Context, d time.Duration, label string) ([][]float64, error) {
	if _, err := l.SendCommand(ctx, SetLabel{Label: label}); err != nil {
		return [][]float64{}, err
	}
	if _, err := l.SendCommand(ctx, StartRecording{}); err != nil {
		return [][]float64{}, err
	}
	defer l.stopStream(ctx)

	rctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	rows := [][]float64{}
	for {
		s, ok, err := l.ReadSample(rctx)
		if err != nil {
			if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
				return rows, nil
			}
			return rows, err
		}
		if ok {
			rows = append(rows, s.Channels)
		}
	}
}
