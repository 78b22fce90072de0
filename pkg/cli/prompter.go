package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/haivivi/subvocal/pkg/trainer"
)

// ErrInputClosed is returned by Prompter.Confirm when the input ends.
var ErrInputClosed = errors.New("cli: operator input closed")

// Prompter walks the operator through a calibration session on a
// terminal. It implements trainer.Prompter.
type Prompter struct {
	out    io.Writer
	styles Styles

	in    io.Reader
	once  sync.Once
	lines chan string
}

// NewPrompter prompts on out and reads confirmations from in.
func NewPrompter(in io.Reader, out io.Writer, styles Styles) *Prompter {
	return &Prompter{in: in, out: out, styles: styles}
}

func (p *Prompter) readLines() {
	p.lines = make(chan string)
	go func() {
		defer close(p.lines)
		sc := bufio.NewScanner(p.in)
		for sc.Scan() {
			p.lines <- sc.Text()
		}
	}()
}

// Confirm prints the prompt and waits for a line of input.
func (p *Prompter) Confirm(ctx context.Context, pr trainer.Prompt) error {
	p.once.Do(p.readLines)

	switch pr.Kind {
	case trainer.PromptBaseline, trainer.PromptCommand:
		rule := p.styles.Border.Render(strings.Repeat("─", 50))
		fmt.Fprintf(p.out, "\n%s\n", rule)
		if pr.Kind == trainer.PromptBaseline {
			fmt.Fprintf(p.out, "  %s relax jaw completely, no speaking\n", p.styles.Label.Render("BASELINE"))
		} else {
			fmt.Fprintf(p.out, "  %s silently mouth %q when you see GO\n", p.styles.Label.Render("COMMAND"), pr.Label)
		}
		fmt.Fprintf(p.out, "%s\n", rule)
		fmt.Fprintf(p.out, "  Press ENTER when ready for %q... ", pr.Label)
	default:
		fmt.Fprint(p.out, "  Press ENTER when electrodes are placed and ready... ")
	}

	select {
	case <-ctx.Done():
		fmt.Fprintln(p.out)
		return ctx.Err()
	case _, ok := <-p.lines:
		if !ok {
			fmt.Fprintln(p.out)
			return ErrInputClosed
		}
		return nil
	}
}

// Progress prints the trial line: "Trial  3/25: 3...2...1...GO! (400 samples)".
func (p *Prompter) Progress(pr trainer.Progress) {
	switch pr.Phase {
	case trainer.PhaseCountdown:
		if pr.Countdown == 3 {
			fmt.Fprintf(p.out, "  Trial %2d/%d: ", pr.Trial, pr.Reps)
		}
		fmt.Fprintf(p.out, "%d...", pr.Countdown)
	case trainer.PhaseRecording:
		fmt.Fprint(p.out, p.styles.Label.Render("GO!")+" ")
	case trainer.PhaseRecorded:
		fmt.Fprintf(p.out, "(%d samples)\n", pr.Samples)
	}
}
