// Package events publishes session and answer events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"transcript-chat-service/internal/models"
	"transcript-chat-service/internal/observability/metrics"
	"transcript-chat-service/internal/schema"
)

// Publisher writes session lifecycle events and answer events to separate topics.
// Without brokers it runs in log-only mode.
type Publisher struct {
	writerSession *kafka.Writer
	writerAnswer  *kafka.Writer
	principal     string
	topicSession  string
	topicAnswer   string
	enabled       bool
	validator     *schema.Validator
	metrics       *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers      []string
	TopicSession string
	TopicAnswer  string
	Principal    string
	Enabled      bool
}

// New creates a publisher. A nil config, Enabled=false or no brokers give a
// log-only publisher.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics
	v := schema.New()

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{validator: v, metrics: m}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			principal:    cfg.Principal,
			topicSession: cfg.TopicSession,
			topicAnswer:  cfg.TopicAnswer,
			validator:    v,
			metrics:      m,
		}
	}

	// Longer dial timeout for DNS resolution in Kubernetes
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicSession", cfg.TopicSession).
		Str("topicAnswer", cfg.TopicAnswer).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writerSession: newWriter(cfg.Brokers, cfg.TopicSession, transport),
		writerAnswer:  newWriter(cfg.Brokers, cfg.TopicAnswer, transport),
		principal:     cfg.Principal,
		topicSession:  cfg.TopicSession,
		topicAnswer:   cfg.TopicAnswer,
		enabled:       true,
		validator:     v,
		metrics:       m,
	}
}

func newWriter(brokers []string, topic string, transport *kafka.Transport) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}
}

// PublishSession publishes a session lifecycle event keyed by session ID.
func (p *Publisher) PublishSession(ctx context.Context, key string, event any) error {
	return p.publish(ctx, p.writerSession, p.topicSession, "session", key, event)
}

// PublishAnswer publishes a completed or failed answer keyed by session ID.
func (p *Publisher) PublishAnswer(ctx context.Context, key string, event any) error {
	return p.publish(ctx, p.writerAnswer, p.topicAnswer, "answer", key, event)
}

func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, kind, key string, event any) error {
	start := time.Now()

	if p.validator != nil {
		if err := p.validator.Validate(event); err != nil {
			log.Error().Err(err).Str("topic", topic).Str("key", key).Msg("Event failed validation")
			p.metrics.RecordKafkaPublish(topic, kind, err, time.Since(start).Seconds())
			return err
		}
	}

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, kind, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType(event, kind))},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, kind, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, kind, nil, time.Since(start).Seconds())
	return nil
}

// eventType reads the EventType of known event structs for the message header.
func eventType(event any, fallback string) string {
	switch e := event.(type) {
	case models.SessionEvent:
		return e.EventType
	case *models.SessionEvent:
		return e.EventType
	case models.AnswerEvent:
		return e.EventType
	case *models.AnswerEvent:
		return e.EventType
	}
	return fallback
}

// Close closes both Kafka writers.
func (p *Publisher) Close() error {
	var err error
	if p.writerSession != nil {
		if e := p.writerSession.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing session writer")
			err = e
		}
	}
	if p.writerAnswer != nil {
		if e := p.writerAnswer.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing answer writer")
			err = e
		}
	}
	return err
}
