// Package mqtt wraps the paho MQTT v5 client for publishing recognized
// commands, and embeds a mochi-mqtt broker for local setups and tests.
package mqtt

import (
	"context"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
)

// QoS is the MQTT Quality of Service.
type QoS byte

const (
	AtMostOnce QoS = iota
	AtLeastOnce
	ExactlyOnce
)

// Conn is a MQTT client connection. It reconnects automatically.
type Conn struct {
	cm *autopaho.ConnectionManager
}

// Close disconnects from the broker.
func (conn *Conn) Close() error {
	return conn.cm.Disconnect(context.Background())
}

// WriteOption is an option for writing a message.
type WriteOption interface {
	applyToPublish(*paho.Publish)
}

func (qos QoS) applyToPublish(pub *paho.Publish) {
	pub.QoS = byte(qos)
}

type retain struct{}

func (retain) applyToPublish(pub *paho.Publish) {
	pub.Retain = true
}

// WithRetain sets the retain flag of the message.
func WithRetain() WriteOption {
	return retain{}
}

type contentType string

func (ct contentType) applyToPublish(pub *paho.Publish) {
	if pub.Properties == nil {
		pub.Properties = &paho.PublishProperties{}
	}
	pub.Properties.ContentType = string(ct)
}

// WithContentType sets the MQTT v5 content type property.
func WithContentType(ct string) WriteOption {
	return contentType(ct)
}

// WriteToTopic writes a message to the topic. It publishes with QoS 0 and
// no retain flag unless options say otherwise.
func (conn *Conn) WriteToTopic(ctx context.Context, b []byte, topic string, opts ...WriteOption) error {
	pub := &paho.Publish{
		Topic:   topic,
		Payload: b,
	}
	for _, opt := range opts {
		opt.applyToPublish(pub)
	}
	_, err := conn.cm.Publish(ctx, pub)
	return err
}
