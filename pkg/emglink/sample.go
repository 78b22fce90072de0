package emglink

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// CommentPrefix marks diagnostic lines from the firmware.
const CommentPrefix = "#"

// Sentinel errors returned by ParseLine.
var (
	ErrComment   = errors.New("emglink: comment line")
	ErrMalformed = errors.New("emglink: malformed data line")
)

// Sample is one multi-channel reading.
type Sample struct {
	// Timestamp is the firmware timestamp in milliseconds.
	Timestamp int64

	// Channels holds one reading per channel.
	Channels []float64

	// Label is the firmware label while recording; empty otherwise.
	Label string
}

// ParseLine decodes a data line "timestamp,ch1,...,chN[,label]".
// Comment lines return ErrComment; lines with the wrong field count or a
// non-numeric reading return an error wrapping ErrMalformed.
func ParseLine(line string, channels int) (Sample, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Sample{}, fmt.Errorf("%w: empty", ErrMalformed)
	}
	if strings.HasPrefix(line, CommentPrefix) {
		return Sample{}, ErrComment
	}
	parts := strings.Split(line, ",")
	if len(parts) != channels+1 && len(parts) != channels+2 {
		return Sample{}, fmt.Errorf("%w: %d fields, want %d or %d", ErrMalformed, len(parts), channels+1, channels+2)
	}
	ts, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return Sample{}, fmt.Errorf("%w: timestamp %q", ErrMalformed, parts[0])
	}
	s := Sample{Timestamp: ts, Channels: make([]float64, channels)}
	for i := range channels {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[i+1]), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return Sample{}, fmt.Errorf("%w: channel %d value %q", ErrMalformed, i+1, parts[i+1])
		}
		s.Channels[i] = v
	}
	if len(parts) == channels+2 {
		s.Label = strings.TrimSpace(parts[channels+1])
	}
	return s, nil
}

// FormatLine encodes s as a data line without the terminator. Readings are
// written as integers, the firmware's ADC counts.
func FormatLine(s Sample) string {
	var sb strings.Builder
	sb.WriteString(strconv.FormatInt(s.Timestamp, 10))
	for _, v := range s.Channels {
		sb.WriteByte(',')
		sb.WriteString(strconv.FormatInt(int64(math.Round(v)), 10))
	}
	if s.Label != "" {
		sb.WriteByte(',')
		sb.WriteString(s.Label)
	}
	return sb.String()
}
