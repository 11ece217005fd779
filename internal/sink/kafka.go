package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"trader/types"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const defaultPublishTimeout = 5 * time.Second

// KafkaPublisher publishes every signal as JSON, keyed by security id so a
// security's signals stay ordered within one partition.
type KafkaPublisher struct {
	writer  messageWriter
	topic   string
	trader  string
	timeout time.Duration
	log     zerolog.Logger
}

func NewKafkaPublisher(brokers []string, topic, trader string, log zerolog.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		Transport: &kafka.Transport{
			ClientID: trader,
		},
	}
	return newKafkaPublisher(writer, topic, trader, log)
}

func newKafkaPublisher(w messageWriter, topic, trader string, log zerolog.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer:  w,
		topic:   topic,
		trader:  trader,
		timeout: defaultPublishTimeout,
		log:     log,
	}
}

func (p *KafkaPublisher) OnTradingSignal(sig types.TradingSignal) error {
	value, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("marshal signal: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(sig.SecurityID()),
		Value: value,
		Headers: []kafka.Header{
			{Key: "trader", Value: []byte(p.trader)},
			{Key: "kind", Value: []byte(sig.Kind())},
		},
		Time: sig.Timestamp(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Error().Err(err).Str("topic", p.topic).Str("key", string(sig.SecurityID())).Msg("failed to publish signal")
		return fmt.Errorf("publish %s: %w", p.topic, err)
	}
	p.log.Debug().Str("topic", p.topic).Str("key", string(sig.SecurityID())).Msg("signal published")
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
