package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/haivivi/subvocal/pkg/buffer"
	"github.com/haivivi/subvocal/pkg/live"
)

// LivePrinter prints live loop progress as single rewritten lines, with
// one permanent line per emitted command. Its methods plug into
// live.Options (OnStatus, OnPrediction) and live.Sink.
type LivePrinter struct {
	Out     io.Writer
	Styles  Styles
	Silence string

	mu    sync.Mutex
	ready bool
}

// Status reports buffer filling.
func (p *LivePrinter) Status(s live.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s.State == live.StateFilling {
		fmt.Fprintf(p.Out, "\r  Filling buffer: %d/%d", s.Filled, s.WindowSize)
		return
	}
	if !p.ready {
		p.ready = true
		fmt.Fprintf(p.Out, "\r  %s%s\n", p.Styles.Label.Render("Listening for commands..."), strings.Repeat(" ", 20))
	}
}

// Prediction shows the listening line while silence holds the majority.
func (p *LivePrinter) Prediction(pr live.Prediction) {
	if pr.Verdict == nil || pr.Verdict.Majority != p.Silence {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.Out, "\r  %s%s",
		p.Styles.Help.Render(fmt.Sprintf("... listening  (noise: %.2f)", pr.Probability)), strings.Repeat(" ", 20))
}

// Emit prints the command.
func (p *LivePrinter) Emit(_ context.Context, ev live.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.Out, "\r  >> %s  (confidence: %.0f%%, probability: %.2f)%s\n",
		p.Styles.Command.Render(strings.ToUpper(ev.Label)), ev.Confidence*100, ev.Probability, strings.Repeat(" ", 20))
	return nil
}

// LiveView renders the live loop as a full-screen Frame with recent
// commands, recent predictions and recent log lines.
type LiveView struct {
	Out    io.Writer
	Styles Styles
	Logs   *LogWriter

	Width, Height int

	mu       sync.Mutex
	status   string
	commands *buffer.RingBuffer[string]
	preds    *buffer.RingBuffer[string]
}

// NewLiveView draws on out at width x height. logs may be nil.
func NewLiveView(out io.Writer, styles Styles, logs *LogWriter, width, height int) *LiveView {
	return &LiveView{
		Out:      out,
		Styles:   styles,
		Logs:     logs,
		Width:    width,
		Height:   height,
		status:   "connecting",
		commands: buffer.RingN[string](32),
		preds:    buffer.RingN[string](64),
	}
}

// Status updates the title status.
func (v *LiveView) Status(s live.Status) {
	v.mu.Lock()
	if s.State == live.StateFilling {
		v.status = fmt.Sprintf("filling %d/%d", s.Filled, s.WindowSize)
	} else {
		v.status = fmt.Sprintf("listening · %d samples", s.Samples)
	}
	v.mu.Unlock()
	v.Draw()
}

// Prediction records one classification and redraws.
func (v *LiveView) Prediction(p live.Prediction) {
	line := fmt.Sprintf("#%-8d %-10s p=%.2f", p.Sample, p.Label, p.Probability)
	if p.Verdict != nil {
		line += fmt.Sprintf("  vote %s %.0f%%", p.Verdict.Majority, p.Verdict.Confidence*100)
	}
	v.mu.Lock()
	v.preds.Push(line)
	v.status = fmt.Sprintf("listening · %d samples", p.Sample)
	v.mu.Unlock()
	v.Draw()
}

// Emit records a command and redraws.
func (v *LiveView) Emit(_ context.Context, ev live.Event) error {
	v.commands.Push(fmt.Sprintf("%s  %s  confidence %.0f%%",
		ev.At.Format("15:04:05"), v.Styles.Command.Render(strings.ToUpper(ev.Label)), ev.Confidence*100))
	v.Draw()
	return nil
}

// Render returns the current frame.
func (v *LiveView) Render() string {
	v.mu.Lock()
	status := v.status
	v.mu.Unlock()
	sections := []Section{
		{Label: " Commands ", Content: v.commands.Items},
		{Label: " Predictions ", Content: v.preds.Items},
	}
	if v.Logs != nil {
		sections = append(sections, Section{Label: " Log ", Content: v.Logs.Lines})
	}
	return Frame{
		Styles:   v.Styles,
		Title:    "subvocal live",
		Status:   status,
		Sections: sections,
		Help:     "ctrl+c to stop",
	}.Render(v.Width, v.Height)
}

// Draw clears the screen and writes the frame.
func (v *LiveView) Draw() {
	frame := v.Render()
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprint(v.Out, "\x1b[H\x1b[2J"+frame)
}
