package broadcaster

import (
	"context"
	"errors"
	"fmt"

	"github.com/IBM/sarama"

	"treiber/infra/kafka"
)

var ErrUnknownDriver = errors.New("broadcaster: unknown driver")

// Publisher delivers one message to the sink.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte) error
	Close() error
}

// NewPublisher builds the publisher for driver: "sarama" or "kafka-go".
func NewPublisher(driver string, brokers []string, topic string) (Publisher, error) {
	switch driver {
	case "sarama":
		return NewSaramaPublisher(brokers, topic)
	case "kafka-go":
		p, err := kafka.NewProducer(brokers, topic)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}

// SaramaPublisher publishes through a sarama sync producer.
type SaramaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

func saramaConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	return cfg
}

func NewSaramaPublisher(brokers []string, topic string) (*SaramaPublisher, error) {
	producer, err := sarama.NewSyncProducer(brokers, saramaConfig())
	if err != nil {
		return nil, fmt.Errorf("sarama producer: %w", err)
	}
	return newSaramaPublisher(producer, topic), nil
}

func newSaramaPublisher(producer sarama.SyncProducer, topic string) *SaramaPublisher {
	return &SaramaPublisher{producer: producer, topic: topic}
}

// Publish ignores ctx; sarama's sync producer has its own timeouts.
func (p *SaramaPublisher) Publish(_ context.Context, key, value []byte) error {
	_, _, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.ByteEncoder(key),
		Value: sarama.ByteEncoder(value),
	})
	return err
}

func (p *SaramaPublisher) Close() error {
	return p.producer.Close()
}
