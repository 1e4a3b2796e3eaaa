package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"transcript-chat-service/internal/observability/logging"
)

// Envelope is a consumed event with its Kafka metadata.
type Envelope struct {
	Topic     string          `json:"topic"`
	Key       string          `json:"key"`
	EventType string          `json:"eventType"`
	Principal string          `json:"principal,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// Consumer tails one topic from partition 0 without a consumer group, which
// works through a port-forward.
type Consumer struct {
	reader *kafka.Reader
	topic  string
	log    zerolog.Logger
}

// NewConsumer creates a consumer for topic starting at since ago.
func NewConsumer(ctx context.Context, brokers []string, topic string, since time.Duration) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   brokers,
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	c := &Consumer{reader: reader, topic: topic, log: logging.WithComponent("event-consumer")}
	if since > 0 {
		if err := reader.SetOffsetAt(ctx, time.Now().Add(-since)); err != nil {
			c.log.Warn().Err(err).Str("topic", topic).Msg("Failed to seek, reading from the start")
		}
	}
	return c
}

// Run delivers decoded envelopes to handle until ctx is done. Read errors are
// logged and retried after a second; undecodable messages are skipped.
func (c *Consumer) Run(ctx context.Context, handle func(Envelope)) error {
	c.log.Info().Str("topic", c.topic).Msg("Consuming events")
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Error().Err(err).Str("topic", c.topic).Msg("Kafka read error")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		env, err := Decode(msg)
		if err != nil {
			c.log.Warn().Err(err).Str("topic", c.topic).Msg("Skipping undecodable event")
			continue
		}
		handle(env)
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

var errNotJSON = errors.New("payload is not JSON")

// Decode turns a message written by Publisher into an Envelope.
func Decode(msg kafka.Message) (Envelope, error) {
	if !json.Valid(msg.Value) {
		return Envelope{}, errNotJSON
	}
	env := Envelope{Topic: msg.Topic, Key: string(msg.Key), Payload: msg.Value}
	for _, h := range msg.Headers {
		switch h.Key {
		case "eventType":
			env.EventType = string(h.Value)
		case "principal":
			env.Principal = string(h.Value)
		}
	}
	if env.EventType == "" {
		var probe struct {
			EventType string `json:"eventType"`
		}
		_ = json.Unmarshal(msg.Value, &probe)
		env.EventType = probe.EventType
	}
	return env, nil
}
