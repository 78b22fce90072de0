package live

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"path"
	"time"

	"github.com/haivivi/subvocal/pkg/mqtt"
)

// Event is a recognized command.
type Event struct {
	Label string `json:"label"`

	// Confidence is the vote share of Label.
	Confidence float64 `json:"confidence"`

	// Probability is the classifier probability of the window that
	// completed the vote.
	Probability float64 `json:"probability"`

	// Sample is the session sample counter at the deciding window.
	Sample int64 `json:"sample"`

	At time.Time `json:"at"`
}

// Sink receives recognized commands.
type Sink interface {
	Emit(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ctx context.Context, ev Event) error

func (f SinkFunc) Emit(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// LogSink logs each event at info level.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Emit(_ context.Context, ev Event) error {
	log := s.Logger
	if log == nil {
		log = slog.Default()
	}
	log.Info("live: command", "label", ev.Label, "confidence", ev.Confidence, "probability", ev.Probability, "sample", ev.Sample)
	return nil
}

// MultiSink sends each event to every sink, in order. All sinks are
// called even if one fails.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Publisher writes a payload to an MQTT topic. *mqtt.Conn implements it.
type Publisher interface {
	WriteToTopic(ctx context.Context, b []byte, topic string, opts ...mqtt.WriteOption) error
}

// DefaultTopicPrefix is the MQTT topic prefix used by MQTTSink.
const DefaultTopicPrefix = "emg"

// MQTTSink publishes each event as JSON to "<prefix>/command/<label>".
type MQTTSink struct {
	Publisher Publisher

	// Prefix defaults to DefaultTopicPrefix.
	Prefix string

	QoS mqtt.QoS
}

// Topic returns the topic an event with label is published to.
func (s *MQTTSink) Topic(label string) string {
	prefix := s.Prefix
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return path.Join(prefix, "command", label)
}

func (s *MQTTSink) Emit(ctx context.Context, ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.Publisher.WriteToTopic(ctx, b, s.Topic(ev.Label), s.QoS, mqtt.WithContentType("application/json"))
}
