package emglink

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    Sample
		wantErr error
	}{
		{"plain", "1200,512,498,530,505", Sample{Timestamp: 1200, Channels: []float64{512, 498, 530, 505}}, nil},
		{"labeled", "5,1,2,3,4,yes", Sample{Timestamp: 5, Channels: []float64{1, 2, 3, 4}, Label: "yes"}, nil},
		{"spaces", " 7, 1 ,2,3,4 \r", Sample{Timestamp: 7, Channels: []float64{1, 2, 3, 4}}, nil},
		{"comment", "# ready", Sample{}, ErrComment},
		{"empty", "", Sample{}, ErrMalformed},
		{"too few", "1,2,3", Sample{}, ErrMalformed},
		{"too many", "1,2,3,4,5,a,b", Sample{}, ErrMalformed},
		{"bad value", "1,2,x,4,5", Sample{}, ErrMalformed},
		{"bad timestamp", "t,2,3,4,5", Sample{}, ErrMalformed},
		{"nan", "1,2,NaN,4,5", Sample{}, ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLine(tt.line, 4)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseLine(%q) error = %v, want %v", tt.line, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseLine(%q) error: %v", tt.line, err)
			}
			if got.Timestamp != tt.want.Timestamp || got.Label != tt.want.Label || !slices.Equal(got.Channels, tt.want.Channels) {
				t.Errorf("ParseLine(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
		})
	}
}

func TestFormatLine(t *testing.T) {
	s := Sample{Timestamp: 40, Channels: []float64{511.6, 498, -2.4, 0}, Label: "go"}
	if got, want := FormatLine(s), "40,512,498,-2,0,go"; got != want {
		t.Errorf("FormatLine = %q, want %q", got, want)
	}
	back, err := ParseLine(FormatLine(s), 4)
	if err != nil {
		t.Fatal(err)
	}
	if back.Label != "go" || back.Channels[0] != 512 {
		t.Errorf("reparsed = %+v", back)
	}
}

func TestCommandTokens(t *testing.T) {
	tests := []struct {
		cmd  Command
		want string
	}{
		{StartStream{}, "S"},
		{StopStream{}, "X"},
		{SetLabel{Label: "yes"}, "Lyes"},
		{StartRecording{}, "R"},
		{SetSampleRate{Hz: 250}, "F250"},
		{SetGain{Level: 3}, "G3"},
		{SelfTest{}, "T"},
	}
	for _, tt := range tests {
		if got := tt.cmd.Token(); got != tt.want {
			t.Errorf("%T.Token() = %q, want %q", tt.cmd, got, tt.want)
		}
		back, err := ParseCommand(tt.want)
		if err != nil {
			t.Errorf("ParseCommand(%q): %v", tt.want, err)
			continue
		}
		if back != tt.cmd {
			t.Errorf("ParseCommand(%q) = %#v, want %#v", tt.want, back, tt.cmd)
		}
	}

	for _, bad := range []string{"", "Q", "Fx", "F0", "G"} {
		if _, err := ParseCommand(bad); err == nil {
			t.Errorf("ParseCommand(%q) expected error", bad)
		}
	}
}

func TestSendCommandRejectsBadLabel(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	l := NewLink("pipe", client, Options{ResponseWait: -1})
	defer l.Close()

	for _, label := range []string{"a,b", "a\nS"} {
		if _, err := l.SendCommand(context.Background(), SetLabel{Label: label}); err == nil {
			t.Errorf("SendCommand(L%q) expected error", label)
		}
	}
}

// simLink connects to a fresh simulator over an in-memory pipe.
func simLink(t *testing.T, opts SimulatorOptions) (*Simulator, *Link) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	sim := NewSimulator(opts)
	l, err := Connect(ctx, "sim", Options{
		ResetSettle:  -1,
		DrainTimeout: 100 * time.Millisecond,
		Dial:         sim.PipeDial(ctx),
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return sim, l
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStreamSamples(t *testing.T) {
	sim, l := simLink(t, SimulatorOptions{Seed: 1})
	sim.SetActivity("yes")

	var got []Sample
	for s, err := range l.StreamSamples(context.Background(), StreamOptions{MaxSamples: 10}) {
		if err != nil {
			t.Fatalf("stream: %v", err)
		}
		got = append(got, s)
	}
	if len(got) != 10 {
		t.Fatalf("got %d samples, want 10", len(got))
	}
	for i, s := range got {
		if len(s.Channels) != 4 {
			t.Fatalf("sample %d has %d channels", i, len(s.Channels))
		}
		if s.Label != "" {
			t.Errorf("sample %d label = %q, want unlabeled", i, s.Label)
		}
	}
	waitFor(t, "stream stop", func() bool { return !sim.Streaming() })
	cmds := sim.Commands()
	if !slices.Equal(cmds, []string{"S", "X"}) {
		t.Errorf("commands = %v, want [S X]", cmds)
	}
}

func TestStreamSamplesDuration(t *testing.T) {
	_, l := simLink(t, SimulatorOptions{})
	n := 0
	for _, err := range l.StreamSamples(context.Background(), StreamOptions{Duration: 200 * time.Millisecond}) {
		if err != nil {
			t.Fatalf("stream: %v", err)
		}
		n++
	}
	if n == 0 {
		t.Error("no samples within the duration")
	}
}

func TestStreamSamplesCancel(t *testing.T) {
	sim, l := simLink(t, SimulatorOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var n int
	var streamErr error
	for _, err := range l.StreamSamples(ctx, StreamOptions{}) {
		if err != nil {
			streamErr = err
			break
		}
		n++
		if n == 3 {
			cancel()
		}
	}
	if !errors.Is(streamErr, context.Canceled) {
		t.Fatalf("stream error = %v, want context.Canceled", streamErr)
	}
	waitFor(t, "stream stop after cancel", func() bool { return !sim.Streaming() })
}

func TestRecordTrial(t *testing.T) {
	sim, l := simLink(t, SimulatorOptions{})
	rows, err := l.RecordTrial(context.Background(), 200*time.Millisecond, "stop")
	if err != nil {
		t.Fatalf("RecordTrial: %v", err)
	}
	if len(rows) < 5 {
		t.Fatalf("got %d rows, want at least 5", len(rows))
	}
	for _, r := range rows {
		if len(r) != 4 {
			t.Fatalf("row has %d channels", len(r))
		}
	}
	waitFor(t, "recording stop", func() bool { return !sim.Streaming() })
	if cmds := sim.Commands(); !slices.Equal(cmds, []string{"Lstop", "R", "X"}) {
		t.Errorf("commands = %v", cmds)
	}
}

func TestSetSampleRate(t *testing.T) {
	sim, l := simLink(t, SimulatorOptions{})
	resp, err := l.SendCommand(context.Background(), SetSampleRate{Hz: 250})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp) != 1 || resp[0] != "# rate 250" {
		t.Errorf("response = %v", resp)
	}
	if sim.SampleRate() != 250 {
		t.Errorf("simulator rate = %d", sim.SampleRate())
	}
}

func TestSelfTestFlagsDeadChannel(t *testing.T) {
	sim, l := simLink(t, SimulatorOptions{DeadChannels: []int{2}})
	sim.SetActivity("yes")

	report, err := l.SelfTest(context.Background(), SelfTestOptions{
		Settle:   50 * time.Millisecond,
		Duration: 500 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("SelfTest: %v", err)
	}
	if report.Samples == 0 || report.EffectiveRate <= 0 {
		t.Fatalf("samples = %d, rate = %f", report.Samples, report.EffectiveRate)
	}
	if dead := report.DeadChannels(); !slices.Equal(dead, []int{2}) {
		t.Errorf("dead channels = %v, want [2]", dead)
	}
	if report.Channels[2].Name != "Submental" {
		t.Errorf("channel 2 name = %q", report.Channels[2].Name)
	}
	if !slices.Contains(report.Diagnostics, "# ch3 flat") {
		t.Errorf("diagnostics = %v", report.Diagnostics)
	}
	if !slices.Contains(sim.Commands(), "G3") {
		t.Errorf("gain not set: %v", sim.Commands())
	}
}

func TestReadSampleSkipsNoise(t *testing.T) {
	client, server := net.Pipe()
	l := NewLink("pipe", client, Options{})
	defer l.Close()

	go func() {
		io.WriteString(server, "# hello\ngarbage\n1,2,3\n10,1,2,3,4\n")
		server.Close()
	}()

	ctx := context.Background()
	for i := range 3 {
		_, ok, err := l.ReadSample(ctx)
		if err != nil || ok {
			t.Fatalf("line %d: ok = %v, err = %v", i, ok, err)
		}
	}
	s, ok, err := l.ReadSample(ctx)
	if err != nil || !ok {
		t.Fatalf("data line: ok = %v, err = %v", ok, err)
	}
	if s.Timestamp != 10 || !slices.Equal(s.Channels, []float64{1, 2, 3, 4}) {
		t.Errorf("sample = %+v", s)
	}

	_, _, err = l.ReadSample(ctx)
	var ce *ConnectionError
	if !errors.As(err, &ce) || ce.Op != "read" || !errors.Is(err, io.EOF) {
		t.Errorf("after EOF error = %v", err)
	}
}

func TestReadSampleDropsOversizedLine(t *testing.T) {
	client, server := net.Pipe()
	l := NewLink("pipe", client, Options{})
	defer l.Close()

	go func() {
		io.WriteString(server, strings.Repeat("x", 70000))
		io.WriteString(server, "\n10,1,2,3,4\n")
		server.Close()
	}()

	s, ok, err := l.ReadSample(context.Background())
	if err != nil || !ok {
		t.Fatalf("ReadSample: ok = %v, err = %v", ok, err)
	}
	if s.Timestamp != 10 || !slices.Equal(s.Channels, []float64{1, 2, 3, 4}) {
		t.Errorf("sample = %+v", s)
	}

	_, _, err = l.ReadSample(context.Background())
	if !errors.Is(err, io.EOF) {
		t.Errorf("after EOF error = %v", err)
	}
}

func TestReadTimeout(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	l := NewLink("pipe", client, Options{ReadTimeout: 20 * time.Millisecond})
	defer l.Close()

	_, ok, err := l.ReadSample(context.Background())
	if ok || err != nil {
		t.Errorf("idle read: ok = %v, err = %v", ok, err)
	}
}

func TestClosedLink(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	l := NewLink("pipe", client, Options{})
	l.Close()

	if _, err := l.SendCommand(context.Background(), StartStream{}); !errors.Is(err, ErrClosed) {
		t.Errorf("SendCommand after Close = %v", err)
	}
	if _, _, err := l.ReadSample(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("ReadSample after Close = %v", err)
	}
}

func TestConnectOpenError(t *testing.T) {
	boom := errors.New("no such device")
	_, err := Connect(context.Background(), "/dev/ttyNONE", Options{
		Dial: func(context.Context, string) (io.ReadWriteCloser, error) { return nil, boom },
	})
	var ce *ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("error = %v, want *ConnectionError", err)
	}
	if ce.Op != "open" || ce.Addr != "/dev/ttyNONE" || !errors.Is(err, boom) {
		t.Errorf("error = %+v", ce)
	}
}

func TestDialUnsupportedScheme(t *testing.T) {
	if _, err := Dial(context.Background(), "udp://localhost:1", 0); err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Errorf("Dial error = %v", err)
	}
}

func TestTCPSimulator(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	sim := NewSimulator(SimulatorOptions{})
	go sim.ListenAndServe(ctx, ln)

	l, err := Connect(ctx, "tcp://"+ln.Addr().String(), Options{ResetSettle: -1, DrainTimeout: 100 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	n := 0
	for _, err := range l.StreamSamples(ctx, StreamOptions{MaxSamples: 5}) {
		if err != nil {
			t.Fatal(err)
		}
		n++
	}
	if n != 5 {
		t.Errorf("got %d samples", n)
	}
}

func TestWebSocketBridge(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sim := NewSimulator(SimulatorOptions{})
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := NewWebSocketConn(c)
		defer conn.Close()
		sim.Serve(ctx, conn)
	}))
	defer srv.Close()

	addr := "ws" + strings.TrimPrefix(srv.URL, "http") + "/emg"
	l, err := Connect(ctx, addr, Options{ResetSettle: -1, DrainTimeout: 100 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	rows, err := l.RecordTrial(ctx, 150*time.Millisecond, "go")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) == 0 {
		t.Error("no rows over the websocket bridge")
	}
}
