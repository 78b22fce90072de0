package emglink

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
)

// Dial opens the channel named by addr:
//
//	/dev/ttyUSB0, COM3, serial:///dev/ttyACM0   serial port at baud
//	tcp://host:port                              raw TCP line stream
//	ws://host/path, wss://host/path              WebSocket bridge, one line per message
func Dial(ctx context.Context, addr string, baud int) (io.ReadWriteCloser, error) {
	switch {
	case strings.HasPrefix(addr, "tcp://"):
		var d net.Dialer
		return d.DialContext(ctx, "tcp", strings.TrimPrefix(addr, "tcp://"))
	case strings.HasPrefix(addr, "ws://"), strings.HasPrefix(addr, "wss://"):
		return dialWebSocket(ctx, addr)
	case strings.HasPrefix(addr, "serial://"):
		u, err := url.Parse(addr)
		if err != nil {
			return nil, err
		}
		return openSerial(u.Path, baud)
	case strings.Contains(addr, "://"):
		return nil, fmt.Errorf("emglink: unsupported address scheme in %q", addr)
	}
	return openSerial(addr, baud)
}

func openSerial(port string, baud int) (io.ReadWriteCloser, error) {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	p, err := serial.Open(port, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Ports lists the serial ports present on this machine.
func Ports() ([]string, error) {
	return serial.GetPortsList()
}

func dialWebSocket(ctx context.Context, addr string) (io.ReadWriteCloser, error) {
	c, _, err := websocket.DefaultDialer.DialContext(ctx, addr, nil)
	if err != nil {
		return nil, err
	}
	return NewWebSocketConn(c), nil
}

// WebSocketConn adapts a WebSocket connection to a line stream. Each
// incoming message is one or more lines; a missing trailing newline is
// added. Each Write is sent as one text message.
type WebSocketConn struct {
	c *websocket.Conn

	r        io.Reader
	lastByte byte

	wmu sync.Mutex
}

// NewWebSocketConn wraps c.
func NewWebSocketConn(c *websocket.Conn) *WebSocketConn {
	return &WebSocketConn{c: c, lastByte: '\n'}
}

func (w *WebSocketConn) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		if w.r == nil {
			_, r, err := w.c.NextReader()
			if err != nil {
				return 0, err
			}
			w.r = r
		}
		n, err := w.r.Read(p)
		if n > 0 {
			w.lastByte = p[n-1]
		}
		if err == io.EOF {
			w.r = nil
			if n > 0 {
				return n, nil
			}
			if w.lastByte != '\n' {
				p[0] = '\n'
				w.lastByte = '\n'
				return 1, nil
			}
			continue
		}
		return n, err
	}
}

func (w *WebSocketConn) Write(p []byte) (int, error) {
	w.wmu.Lock()
	defer w.wmu.Unlock()
	if err := w.c.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *WebSocketConn) Close() error {
	return w.c.Close()
}
