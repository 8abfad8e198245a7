package events

import (
	"fmt"
	"log/slog"

	"github.com/sandeepkv93/special-access-gate/internal/config"
)

// NewPublisher builds the sink selected by EVENTS_SINK. Broker sinks sit behind an
// AsyncPublisher so request paths only pay for an enqueue.
func NewPublisher(cfg *config.Config, logger *slog.Logger) (Publisher, error) {
	var (
		sink Publisher
		err  error
	)
	switch cfg.EventsSink {
	case config.EventsSinkNone, "":
		return NewNoopPublisher(), nil
	case config.EventsSinkKafka:
		sink, err = NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
	case config.EventsSinkAMQP:
		sink, err = NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPQueue)
	default:
		return nil, fmt.Errorf("unsupported events sink %q", cfg.EventsSink)
	}
	if err != nil {
		return nil, err
	}
	return NewAsyncPublisher(sink, cfg.EventsBuffer, cfg.EventsPublishTimeout, logger), nil
}
