package emglink

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net"
	"sync"
	"time"
)

// SimulatorOptions configures a Simulator.
type SimulatorOptions struct {
	// SampleRate is the initial rate in Hz. Default 200.
	SampleRate int

	// Channels is the channel count. Default 4.
	Channels int

	// Baseline is the resting ADC level. Default 512.
	Baseline float64

	// Noise is the standard deviation of the background noise. Default 3.
	Noise float64

	// SilenceLabel produces no muscle activity. Default "silence".
	SilenceLabel string

	// Profiles sets the per-channel activity amplitude for a label.
	// Labels without a profile get one derived from the label text.
	Profiles map[string][]float64

	// DeadChannels output a flat line.
	DeadChannels []int

	// Boot lines are sent when a connection opens.
	Boot []string

	// Seed makes the noise reproducible.
	Seed uint64

	Logger *slog.Logger
}

// Simulator emulates the acquisition firmware on any byte stream, so the
// pipeline can run without hardware. The current muscle activity follows
// the last L<label> command, or SetActivity.
type Simulator struct {
	opts SimulatorOptions
	log  *slog.Logger

	mu        sync.Mutex
	activity  string
	label     string
	rate      int
	gain      int
	streaming bool
	recording bool
	commands  []string
}

// NewSimulator returns a Simulator with opts applied over the defaults.
func NewSimulator(opts SimulatorOptions) *Simulator {
	if opts.SampleRate <= 0 {
		opts.SampleRate = 200
	}
	if opts.Channels <= 0 {
		opts.Channels = DefaultChannels
	}
	if opts.Baseline == 0 {
		opts.Baseline = 512
	}
	if opts.Noise == 0 {
		opts.Noise = 3
	}
	if opts.SilenceLabel == "" {
		opts.SilenceLabel = "silence"
	}
	if opts.Boot == nil {
		opts.Boot = []string{"# EMG acquisition board", fmt.Sprintf("# channels=%d rate=%d", opts.Channels, opts.SampleRate), "# ready"}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Simulator{opts: opts, log: opts.Logger, rate: opts.SampleRate, gain: 1}
}

// SetActivity sets the simulated muscle activity to that of label.
func (s *Simulator) SetActivity(label string) {
	s.mu.Lock()
	s.activity = label
	s.mu.Unlock()
}

// Streaming reports whether the simulator is currently sending samples.
func (s *Simulator) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

// Commands returns the command tokens received so far.
func (s *Simulator) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// SampleRate returns the current sample rate.
func (s *Simulator) SampleRate() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rate
}

// ListenAndServe accepts connections on ln and serves each one until ctx
// is done.
func (s *Simulator) ListenAndServe(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		s.log.Info("emglink: simulator client connected", "remote", conn.RemoteAddr())
		go func() {
			defer conn.Close()
			if err := s.Serve(ctx, conn); err != nil {
				s.log.Info("emglink: simulator client gone", "error", err)
			}
		}()
	}
}

// Serve speaks the firmware protocol on rw until ctx is done or rw fails.
func (s *Simulator) Serve(ctx context.Context, rw io.ReadWriter) error {
	w := bufio.NewWriter(rw)
	for _, line := range s.opts.Boot {
		fmt.Fprintln(w, line)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	cmds := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(rw)
		for sc.Scan() {
			select {
			case cmds <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		err := sc.Err()
		if err == nil {
			err = io.EOF
		}
		readErr <- err
	}()

	rng := rand.New(rand.NewPCG(s.opts.Seed, s.opts.Seed^0x9e3779b97f4a7c15))
	ticker := time.NewTicker(s.period())
	defer ticker.Stop()
	var n int64

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			return err
		case tok := <-cmds:
			replies, restartClock := s.handle(tok)
			if restartClock {
				n = 0
				ticker.Reset(s.period())
			}
			for _, r := range replies {
				fmt.Fprintln(w, r)
			}
			if err := w.Flush(); err != nil {
				return err
			}
		case <-ticker.C:
			line, ok := s.nextSample(rng, n)
			if !ok {
				continue
			}
			n++
			fmt.Fprintln(w, line)
			if err := w.Flush(); err != nil {
				return err
			}
		}
	}
}

func (s *Simulator) period() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Second / time.Duration(s.rate)
}

// handle applies one command and returns the diagnostic replies. It
// reports whether the sample clock restarts.
func (s *Simulator) handle(tok string) ([]string, bool) {
	cmd, err := ParseCommand(tok)
	if err != nil {
		return []string{"# error " + err.Error()}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, cmd.Token())
	switch c := cmd.(type) {
	case StartStream:
		s.streaming, s.recording = true, false
		return []string{"# streaming"}, true
	case StartRecording:
		s.streaming, s.recording = true, true
		return []string{"# recording " + s.label}, true
	case StopStream:
		s.streaming, s.recording = false, false
		return []string{"# stopped"}, false
	case SetLabel:
		s.label, s.activity = c.Label, c.Label
		return []string{"# label " + c.Label}, false
	case SetSampleRate:
		s.rate = c.Hz
		return []string{fmt.Sprintf("# rate %d", c.Hz)}, true
	case SetGain:
		s.gain = c.Level
		return []string{fmt.Sprintf("# gain %d", c.Level)}, false
	case SelfTest:
		out := []string{"# self-test"}
		for ch := range s.opts.Channels {
			status := "ok"
			if s.isDead(ch) {
				status = "flat"
			}
			out = append(out, fmt.Sprintf("# ch%d %s", ch+1, status))
		}
		return append(out, "# self-test done"), false
	}
	return nil, false
}

func (s *Simulator) nextSample(rng *rand.Rand, n int64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.streaming {
		return "", false
	}
	t := float64(n) / float64(s.rate)
	amps := s.profile(s.activity)
	sample := Sample{
		Timestamp: n * 1000 / int64(s.rate),
		Channels:  make([]float64, s.opts.Channels),
	}
	for ch := range sample.Channels {
		if s.isDead(ch) {
			sample.Channels[ch] = s.opts.Baseline
			continue
		}
		// Two in-band tones per channel approximate a motor-unit burst.
		f1, f2 := 35+7*float64(ch), 70-5*float64(ch)
		act := amps[ch] * (math.Sin(2*math.Pi*f1*t) + 0.5*math.Sin(2*math.Pi*f2*t))
		sample.Channels[ch] = s.opts.Baseline + act + rng.NormFloat64()*s.opts.Noise
	}
	if s.recording {
		sample.Label = s.label
	}
	return FormatLine(sample), true
}

func (s *Simulator) isDead(ch int) bool {
	for _, d := range s.opts.DeadChannels {
		if d == ch {
			return true
		}
	}
	return false
}

// profile returns the activity amplitude per channel for label.
func (s *Simulator) profile(label string) []float64 {
	amps := make([]float64, s.opts.Channels)
	if label == "" || label == s.opts.SilenceLabel {
		return amps
	}
	if p, ok := s.opts.Profiles[label]; ok {
		copy(amps, p)
		return amps
	}
	h := fnv.New32a()
	h.Write([]byte(label))
	sum := h.Sum32()
	for ch := range amps {
		amps[ch] = 20 + float64((sum>>(4*ch))&0xF)*10
	}
	return amps
}

// ErrSimulatorClosed is returned by PipeDial after the simulator context
// ends.
var ErrSimulatorClosed = errors.New("emglink: simulator closed")

// PipeDial returns a DialFunc that connects to s over an in-memory pipe.
// Each dial starts a new Serve on its own goroutine.
func (s *Simulator) PipeDial(ctx context.Context) DialFunc {
	return func(dctx context.Context, _ string) (io.ReadWriteCloser, error) {
		if ctx.Err() != nil {
			return nil, ErrSimulatorClosed
		}
		client, server := net.Pipe()
		go func() {
			defer server.Close()
			s.Serve(ctx, server)
		}()
		return client, nil
	}
}
