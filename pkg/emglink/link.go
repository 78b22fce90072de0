// Package emglink talks to a streaming EMG acquisition board over an
// ordered line channel (USB serial, TCP, or a WebSocket bridge).
//
// # Wire protocol
//
// Every message is a '\n'-terminated ASCII line. Lines starting with '#'
// are firmware diagnostics. Data lines carry one sample:
//
//	timestamp,ch1,ch2,...,chN[,label]
//
// The host sends single-token commands (see [Command]): S start stream,
// X stop, L<label> set label, R start recording, F<n> sample rate,
// G<n> gain, T self-test.
//
// # Concurrency
//
// A Link has one logical owner. Commands are serialized internally, and a
// single goroutine owned by the Link reads the channel, so ReadSample and
// SendCommand may be called from different goroutines without interleaving
// bytes on the wire.
package emglink

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Defaults for Options.
const (
	DefaultChannels     = 4
	DefaultBaudRate     = 115200
	DefaultResetSettle  = 2500 * time.Millisecond
	DefaultDrainTimeout = time.Second
	DefaultResponseWait = 50 * time.Millisecond

	stopTimeout = time.Second

	// MaxLineLen bounds a single line. Longer lines are dropped.
	MaxLineLen = 4096
)

// ErrClosed is returned by operations on a closed Link.
var ErrClosed = errors.New("emglink: link closed")

// errIdle is returned internally when no line arrived within a wait.
var errIdle = errors.New("emglink: idle")

// ConnectionError reports a transport failure: the channel could not be
// opened, or a read or write on it failed.
type ConnectionError struct {
	Op   string
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("emglink: %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// DialFunc opens the byte channel for addr.
type DialFunc func(ctx context.Context, addr string) (io.ReadWriteCloser, error)

// Options configures a Link. Zero durations select the defaults; negative
// durations disable the corresponding wait.
type Options struct {
	// Channels is the number of channels per data line.
	Channels int

	// BaudRate is used for serial ports.
	BaudRate int

	// ResetSettle is how long to wait after opening for the board to
	// finish its reset.
	ResetSettle time.Duration

	// DrainTimeout bounds the wait for each startup diagnostic line.
	DrainTimeout time.Duration

	// ResponseWait is how long to collect diagnostic replies after a
	// command.
	ResponseWait time.Duration

	// ReadTimeout bounds ReadSample. Zero waits indefinitely.
	ReadTimeout time.Duration

	// Dial overrides how the channel is opened. Defaults to Dial.
	Dial DialFunc

	// Logger receives diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.Channels <= 0 {
		out.Channels = DefaultChannels
	}
	if out.BaudRate <= 0 {
		out.BaudRate = DefaultBaudRate
	}
	out.ResetSettle = pickDuration(out.ResetSettle, DefaultResetSettle)
	out.DrainTimeout = pickDuration(out.DrainTimeout, DefaultDrainTimeout)
	out.ResponseWait = pickDuration(out.ResponseWait, DefaultResponseWait)
	if out.Dial == nil {
		baud := out.BaudRate
		out.Dial = func(ctx context.Context, addr string) (io.ReadWriteCloser, error) {
			return Dial(ctx, addr, baud)
		}
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return out
}

func pickDuration(v, def time.Duration) time.Duration {
	switch {
	case v == 0:
		return def
	case v < 0:
		return 0
	}
	return v
}

// Link is an open connection to an acquisition board.
type Link struct {
	addr string
	opts Options
	log  *slog.Logger
	rwc  io.ReadWriteCloser

	lines   chan string
	readErr error
	done    chan struct{}
	once    sync.Once

	writeMu sync.Mutex

	readMu  sync.Mutex
	pending []string
}

// Connect opens addr, waits for the board to settle and discards its
// startup diagnostics. It returns once a data line is seen (the line is
// kept for the first read) or no line arrives within DrainTimeout.
func Connect(ctx context.Context, addr string, opts Options) (*Link, error) {
	o := opts.withDefaults()
	rwc, err := o.Dial(ctx, addr)
	if err != nil {
		return nil, &ConnectionError{Op: "open", Addr: addr, Err: err}
	}
	l := newLink(addr, rwc, o)
	l.log.Info("emglink: connected", "addr", addr)

	if o.ResetSettle > 0 {
		t := time.NewTimer(o.ResetSettle)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			l.Close()
			return nil, ctx.Err()
		}
	}
	if err := l.drainStartup(ctx); err != nil {
		l.Close()
		return nil, err
	}
	return l, nil
}

// NewLink wraps an already open channel without waiting for reset or
// draining diagnostics.
func NewLink(addr string, rwc io.ReadWriteCloser, opts Options) *Link {
	return newLink(addr, rwc, opts.withDefaults())
}

func newLink(addr string, rwc io.ReadWriteCloser, o Options) *Link {
	l := &Link{
		addr:  addr,
		opts:  o,
		log:   o.Logger,
		rwc:   rwc,
		lines: make(chan string, 1024),
		done:  make(chan struct{}),
	}
	go l.pump()
	return l
}

// Channels returns the number of channels per sample.
func (l *Link) Channels() int {
	return l.opts.Channels
}

// Addr returns the address the link was opened with.
func (l *Link) Addr() string {
	return l.addr
}

// Close closes the channel. Pending reads return ErrClosed.
func (l *Link) Close() error {
	var err error
	l.once.Do(func() {
		close(l.done)
		err = l.rwc.Close()
	})
	return err
}

func (l *Link) pump() {
	r := bufio.NewReaderSize(l.rwc, MaxLineLen)
	var err error
	for err == nil {
		var b []byte
		b, err = r.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			l.log.Warn("emglink: dropping oversized line", "limit", MaxLineLen)
			for errors.Is(err, bufio.ErrBufferFull) {
				_, err = r.ReadSlice('\n')
			}
			continue
		}
		line := strings.TrimSpace(string(b))
		if line == "" {
			continue
		}
		select {
		case l.lines <- line:
		case <-l.done:
			return
		}
	}
	l.readErr = err
	close(l.lines)
}

func (l *Link) drainStartup(ctx context.Context) error {
	l.readMu.Lock()
	defer l.readMu.Unlock()
	for {
		line, err := l.nextLine(ctx, l.opts.DrainTimeout)
		if errors.Is(err, errIdle) {
			return nil
		}
		if err != nil {
			return err
		}
		if strings.HasPrefix(line, CommentPrefix) {
			l.log.Info("emglink: device", "line", line)
			continue
		}
		l.pending = append(l.pending, line)
		return nil
	}
}

// nextLine returns the next line, waiting at most timeout when positive.
// The caller must hold readMu.
func (l *Link) nextLine(ctx context.Context, timeout time.Duration) (string, error) {
	if len(l.pending) > 0 {
		line := l.pending[0]
		l.pending = l.pending[1:]
		return line, nil
	}
	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	select {
	case line, ok := <-l.lines:
		if !ok {
			select {
			case <-l.done:
				return "", ErrClosed
			default:
			}
			return "", &ConnectionError{Op: "read", Addr: l.addr, Err: l.readErr}
		}
		return line, nil
	case <-expired:
		return "", errIdle
	case <-ctx.Done():
		return "", ctx.Err()
	case <-l.done:
		return "", ErrClosed
	}
}

// SendCommand writes cmd and returns the diagnostic lines the board sends
// back within ResponseWait. A data line arriving in that window ends the
// collection and is kept for the next read, except after StopStream, where
// in-flight data from the ending stream is discarded.
func (l *Link) SendCommand(ctx context.Context, cmd Command) ([]string, error) {
	tok := cmd.Token()
	if err := checkToken(tok); err != nil {
		return nil, err
	}
	select {
	case <-l.done:
		return nil, ErrClosed
	default:
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if _, err := io.WriteString(l.rwc, tok+"\n"); err != nil {
		return nil, &ConnectionError{Op: "write", Addr: l.addr, Err: err}
	}
	l.log.Debug("emglink: sent command", "token", tok)

	if l.opts.ResponseWait <= 0 {
		return nil, nil
	}
	_, stopping := cmd.(StopStream)

	l.readMu.Lock()
	defer l.readMu.Unlock()
	var resp []string
	deadline := time.Now().Add(l.opts.ResponseWait)
	for {
		remain := time.Until(deadline)
		if remain <= 0 {
			return resp, nil
		}
		line, err := l.nextLine(ctx, remain)
		if errors.Is(err, errIdle) {
			return resp, nil
		}
		if err != nil {
			return resp, err
		}
		switch {
		case strings.HasPrefix(line, CommentPrefix):
			resp = append(resp, line)
		case stopping:
		default:
			l.pending = append(l.pending, line)
			return resp, nil
		}
	}
}

// ReadSample reads one line and decodes it. Comment lines, malformed lines
// and an expired ReadTimeout report ok == false with a nil error; only
// transport failures, cancellation and Close are errors.
func (l *Link) ReadSample(ctx context.Context) (Sample, bool, error) {
	l.readMu.Lock()
	line, err := l.nextLine(ctx, l.opts.ReadTimeout)
	l.readMu.Unlock()
	if errors.Is(err, errIdle) {
		return Sample{}, false, nil
	}
	if err != nil {
		return Sample{}, false, err
	}
	s, err := ParseLine(line, l.opts.Channels)
	switch {
	case errors.Is(err, ErrComment):
		l.log.Debug("emglink: device", "line", line)
		return Sample{}, false, nil
	case err != nil:
		l.log.Debug("emglink: dropped line", "line", line, "error", err)
		return Sample{}, false, nil
	}
	return s, true, nil
}

// stopStream issues StopStream even when ctx is already cancelled.
func (l *Link) stopStream(ctx context.Context) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()
	if _, err := l.SendCommand(sctx, StopStream{}); err != nil {
		l.log.Warn("emglink: stop stream failed", "error", err)
	}
}
