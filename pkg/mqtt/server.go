package mqtt

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	mochimqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"
)

// ErrServerClosed is returned by the Server's Serve method after a call to Close.
var ErrServerClosed = errors.New("mqtt: server closed")

// ErrServerRunning is returned when Serve is called on a server that is already running.
var ErrServerRunning = errors.New("mqtt: server already running")

// Server is an embedded MQTT broker. It accepts any client.
type Server struct {
	// OnPublish is called for every message a client publishes.
	OnPublish func(clientID, topic string, payload []byte)

	mochi      *mochimqtt.Server
	mu         sync.Mutex
	inShutdown atomic.Bool
}

// ListenAndServe starts a TCP listener on addr. It returns once the
// broker is accepting connections.
func (srv *Server) ListenAndServe(addr string) error {
	return srv.Serve(listeners.NewTCP(listeners.Config{ID: "tcp", Address: addr}))
}

// Serve starts the broker on the given listeners. It returns once the
// listeners are running; call Close to stop them.
//
// Serve can only be called once. If called again while running, it returns ErrServerRunning.
// After Close is called, subsequent calls to Serve return ErrServerClosed.
func (srv *Server) Serve(lns ...listeners.Listener) error {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	if srv.inShutdown.Load() {
		return ErrServerClosed
	}
	if srv.mochi != nil {
		return ErrServerRunning
	}

	mochi := mochimqtt.New(&mochimqtt.Options{
		InlineClient: true,
		Logger:       slog.Default().With("component", "mqtt-broker"),
	})
	if err := mochi.AddHook(new(auth.AllowHook), nil); err != nil {
		return err
	}
	if srv.OnPublish != nil {
		if err := mochi.AddHook(&publishHook{fn: srv.OnPublish}, nil); err != nil {
			return err
		}
	}
	for _, ln := range lns {
		if err := mochi.AddListener(ln); err != nil {
			mochi.Close()
			return err
		}
	}
	if err := mochi.Serve(); err != nil {
		mochi.Close()
		return err
	}
	srv.mochi = mochi
	return nil
}

// Close stops the broker. It is safe to call Close multiple times.
func (srv *Server) Close() error {
	srv.inShutdown.Store(true)

	srv.mu.Lock()
	mochi := srv.mochi
	srv.mochi = nil
	srv.mu.Unlock()

	if mochi == nil {
		return nil
	}
	return mochi.Close()
}

// WriteToTopic publishes a message from the broker itself.
func (srv *Server) WriteToTopic(ctx context.Context, payload []byte, topic string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	srv.mu.Lock()
	mochi := srv.mochi
	srv.mu.Unlock()
	if mochi == nil {
		return errors.New("mqtt: server not running")
	}
	return mochi.Publish(topic, payload, false, 0)
}

type publishHook struct {
	mochimqtt.HookBase
	fn func(clientID, topic string, payload []byte)
}

func (h *publishHook) ID() string {
	return "publish-callback"
}

func (h *publishHook) Provides(b byte) bool {
	return b == mochimqtt.OnPublished
}

func (h *publishHook) OnPublished(cl *mochimqtt.Client, pk packets.Packet) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 64<<10)
			buf = buf[:runtime.Stack(buf, false)]
			slog.Error("mqtt: panic in publish callback", "topic", pk.TopicName, "panic", r, "stack", string(buf))
		}
	}()
	h.fn(cl.ID, pk.TopicName, pk.Payload)
}
