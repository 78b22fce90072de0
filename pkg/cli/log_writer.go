package cli

import (
	"strings"

	"github.com/haivivi/subvocal/pkg/buffer"
)

// LogWriter is an io.Writer that keeps the last lines written to it, so a
// full-screen view can show recent log output. Install it as the
// destination of the slog handler while the view is active.
type LogWriter struct {
	buf *buffer.RingBuffer[string]
}

// NewLogWriter keeps up to maxLines lines.
func NewLogWriter(maxLines int) *LogWriter {
	return &LogWriter{buf: buffer.RingN[string](maxLines)}
}

// Write splits p into lines and stores them.
func (w *LogWriter) Write(p []byte) (int, error) {
	text := strings.TrimRight(string(p), "\n")
	for line := range strings.SplitSeq(text, "\n") {
		w.buf.Push(line)
	}
	return len(p), nil
}

// Lines returns the buffered lines, oldest first.
func (w *LogWriter) Lines() []string {
	return w.buf.Items()
}
