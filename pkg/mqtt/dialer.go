package mqtt

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/packets"
	"github.com/eclipse/paho.golang/paho"
)

const defaultConnectRetryDelay = 3 * time.Second

// Dialer holds the options to establish and maintain a MQTT connection.
type Dialer struct {
	// KeepAlive period in seconds (defaults to 20).
	KeepAlive int

	// How long to wait between connection attempts (defaults to 3s).
	ConnectRetryDelay time.Duration

	// How long to wait for the connection process to complete (defaults to 10s).
	ConnectTimeout time.Duration

	// ID is the client identifier (defaults to a random string).
	ID string

	// Username and Password override the credentials in the broker URL.
	Username string
	Password string

	// TLS configures mqtts:// connections.
	TLS *tls.Config

	// OnConnectError is called when a connection attempt fails, including
	// retries.
	OnConnectError func(error)

	// OnConnectionUp is called when a connection is established, including
	// reconnections.
	OnConnectionUp func()
}

func (dl *Dialer) keepAlive() uint16 {
	if dl.KeepAlive == 0 {
		return 20
	}
	return uint16(dl.KeepAlive)
}

func (dl *Dialer) connectRetryDelay() time.Duration {
	if dl.ConnectRetryDelay == 0 {
		return defaultConnectRetryDelay
	}
	return dl.ConnectRetryDelay
}

// Dial connects to the broker at addr (mqtt://, tcp://, mqtts:// or tls://)
// and returns once the first connection is up or ctx is done.
func (dl *Dialer) Dial(ctx context.Context, addr string) (*Conn, error) {
	id := dl.ID
	if id == "" {
		var b [16]byte
		if _, err := rand.Read(b[:]); err != nil {
			return nil, err
		}
		id = base64.RawURLEncoding.EncodeToString(b[:])
	}
	addru, err := url.Parse(addr)
	if err != nil {
		return nil, err
	}
	cfg := autopaho.ClientConfig{
		ServerUrls:        []*url.URL{addru},
		TlsCfg:            dl.TLS,
		AttemptConnection: dl.attemptConnection,
		OnConnectError: func(err error) {
			if dl.OnConnectError != nil {
				dl.OnConnectError(err)
			}
		},
		OnConnectionUp: func(*autopaho.ConnectionManager, *paho.Connack) {
			if dl.OnConnectionUp != nil {
				dl.OnConnectionUp()
			}
		},
		CleanStartOnInitialConnection: true,
		KeepAlive:                     dl.keepAlive(),
		ConnectRetryDelay:             dl.connectRetryDelay(),
		ConnectTimeout:                dl.ConnectTimeout,
		ConnectPacketBuilder:          dl.buildConnect,
		ClientConfig: paho.ClientConfig{
			ClientID: id,
		},
	}
	cm, err := autopaho.NewConnection(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	if err := cm.AwaitConnection(ctx); err != nil {
		cm.Disconnect(context.Background())
		return nil, err
	}
	return &Conn{cm: cm}, nil
}

func (dl *Dialer) buildConnect(pc *paho.Connect, uri *url.URL) (*paho.Connect, error) {
	user, pwd, hasPwd := dl.Username, dl.Password, dl.Password != ""
	if user == "" && uri.User != nil {
		user = uri.User.Username()
		pwd, hasPwd = uri.User.Password()
	}
	pc.UsernameFlag = user != ""
	pc.Username = user
	pc.PasswordFlag = hasPwd
	pc.Password = nil
	if hasPwd {
		pc.Password = []byte(pwd)
	}
	return pc, nil
}

func (dl *Dialer) attemptConnection(ctx context.Context, cc autopaho.ClientConfig, u *url.URL) (net.Conn, error) {
	switch strings.ToLower(u.Scheme) {
	case "mqtt", "tcp", "":
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", u.Host)
		if err != nil {
			return nil, err
		}
		if err := conn.(*net.TCPConn).SetNoDelay(true); err != nil {
			return nil, err
		}
		return packets.NewThreadSafeConn(conn), nil
	case "ssl", "tls", "mqtts", "mqtt+ssl", "tcps":
		d := tls.Dialer{
			Config: cc.TlsCfg,
		}
		conn, err := d.DialContext(ctx, "tcp", u.Host)
		if err != nil {
			return nil, err
		}
		return packets.NewThreadSafeConn(conn), nil
	default:
		return nil, fmt.Errorf("mqtt: unsupported scheme (%s) in url %s", u.Scheme, u.String())
	}
}

// Dial connects to the broker at addr with the default dialer.
func Dial(ctx context.Context, addr string) (*Conn, error) {
	return (&Dialer{}).Dial(ctx, addr)
}
