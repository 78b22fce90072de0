package emglink

import (
	"fmt"
	"strconv"
	"strings"
)

// Ensure all command types implement Command.
var (
	_ Command = StartStream{}
	_ Command = StopStream{}
	_ Command = SetLabel{}
	_ Command = StartRecording{}
	_ Command = SetSampleRate{}
	_ Command = SetGain{}
	_ Command = SelfTest{}
)

// Command is an instruction to the acquisition firmware. On the wire each
// command is a single ASCII token followed by '\n'.
type Command interface {
	isCommand()

	// Token returns the wire token without the line terminator.
	Token() string
}

// StartStream starts unlabeled sample streaming ("S").
type StartStream struct{}

// StopStream stops streaming or recording ("X").
type StopStream struct{}

// SetLabel sets the label the firmware attaches to recorded samples
// ("L<label>").
type SetLabel struct {
	Label string
}

// StartRecording starts labeled sample streaming ("R").
type StartRecording struct{}

// SetSampleRate sets the sampling rate in Hz ("F<n>").
type SetSampleRate struct {
	Hz int
}

// SetGain sets the amplifier gain level ("G<n>").
type SetGain struct {
	Level int
}

// SelfTest runs the firmware self-test ("T"). Results arrive as comment
// lines.
type SelfTest struct{}

func (StartStream) isCommand()    {}
func (StopStream) isCommand()     {}
func (SetLabel) isCommand()       {}
func (StartRecording) isCommand() {}
func (SetSampleRate) isCommand()  {}
func (SetGain) isCommand()        {}
func (SelfTest) isCommand()       {}

func (StartStream) Token() string     { return "S" }
func (StopStream) Token() string      { return "X" }
func (c SetLabel) Token() string      { return "L" + c.Label }
func (StartRecording) Token() string  { return "R" }
func (c SetSampleRate) Token() string { return "F" + strconv.Itoa(c.Hz) }
func (c SetGain) Token() string       { return "G" + strconv.Itoa(c.Level) }
func (SelfTest) Token() string        { return "T" }

// ParseCommand decodes a wire token.
func ParseCommand(token string) (Command, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("emglink: empty command")
	}
	arg := token[1:]
	switch token[0] {
	case 'S':
		return StartStream{}, nil
	case 'X':
		return StopStream{}, nil
	case 'L':
		return SetLabel{Label: arg}, nil
	case 'R':
		return StartRecording{}, nil
	case 'T':
		return SelfTest{}, nil
	case 'F':
		n, err := strconv.Atoi(arg)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("emglink: bad sample rate %q", arg)
		}
		return SetSampleRate{Hz: n}, nil
	case 'G':
		n, err := strconv.Atoi(arg)
		if err != nil {
			return nil, fmt.Errorf("emglink: bad gain %q", arg)
		}
		return SetGain{Level: n}, nil
	}
	return nil, fmt.Errorf("emglink: unknown command %q", token)
}

func checkToken(tok string) error {
	if strings.ContainsAny(tok, "\r\n") {
		return fmt.Errorf("emglink: command %q contains a line break", tok)
	}
	if strings.HasPrefix(tok, "L") && strings.Contains(tok, ",") {
		return fmt.Errorf("emglink: label %q must not contain a comma", tok[1:])
	}
	return nil
}
