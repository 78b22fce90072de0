package live

import (
	"github.com/haivivi/subvocal/pkg/buffer"
)

// Verdict is the debouncer state after a vote.
type Verdict struct {
	// Majority is the most frequent label in the vote history. Ties go to
	// the label that entered the history first.
	Majority string

	// Confidence is the majority count divided by the history size.
	Confidence float64

	// Emit is true when Majority should be reported as a command.
	Emit bool
}

// Debouncer turns a stream of per-window predictions into discrete
// commands. It keeps the last N predictions and reports a command when one
// non-silence label holds at least the threshold share of them. The same
// command is not reported again until a silence majority re-arms it.
type Debouncer struct {
	votes     *buffer.RingBuffer[string]
	threshold float64
	silence   string
	last      string
}

// NewDebouncer creates a Debouncer over n votes.
func NewDebouncer(n int, threshold float64, silence string) *Debouncer {
	return &Debouncer{
		votes:     buffer.RingN[string](max(n, 1)),
		threshold: threshold,
		silence:   silence,
	}
}

// Vote records one prediction. It returns nil until the history is full.
func (d *Debouncer) Vote(label string) *Verdict {
	d.votes.Push(label)
	if !d.votes.Full() {
		return nil
	}

	history := d.votes.Items()
	counts := make(map[string]int, 4)
	var top string
	var topCount int
	for _, l := range history {
		counts[l]++
	}
	// Walk in history order so the earliest label wins a tie.
	for _, l := range history {
		if counts[l] > topCount {
			top, topCount = l, counts[l]
		}
	}

	v := &Verdict{
		Majority:   top,
		Confidence: float64(topCount) / float64(len(history)),
	}
	switch {
	case top == d.silence:
		d.last = ""
	case v.Confidence >= d.threshold && top != d.last:
		v.Emit = true
		d.last = top
	}
	return v
}

// LastEmitted returns the last reported command, or "" when re-armed.
func (d *Debouncer) LastEmitted() string {
	return d.last
}

// Reset clears the vote history and re-arms.
func (d *Debouncer) Reset() {
	d.votes.Reset()
	d.last = ""
}
