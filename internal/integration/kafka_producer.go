// Package integration mirrors the dashboard delta events (station,
// connector and payment updates) to an external Kafka sink, entirely decoupled from
// dashboard delivery: publishing never blocks the event bus or a
// registry mutation.
package integration

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/chargepoint/central-system/internal/events"
	"github.com/chargepoint/central-system/internal/logging"
	"github.com/chargepoint/central-system/internal/metrics"
)

// IntegrationEvent is the wire format external systems consume, stable
// regardless of the internal events.Event shape.
type IntegrationEvent struct {
	EventID       string      `json:"eventId"`
	EventType     string      `json:"eventType"`
	ChargePointID string      `json:"chargePointId"`
	Timestamp     string      `json:"timestamp"`
	Payload       interface{} `json:"payload"`
}

func toIntegrationEvent(evt events.Event, eventID string) IntegrationEvent {
	return IntegrationEvent{
		EventID:       eventID,
		EventType:     mapTopic(evt.Topic),
		ChargePointID: evt.ChargePointID,
		Timestamp:     evt.Timestamp,
		Payload:       evt.Data,
	}
}

func mapTopic(t events.Topic) string {
	switch t {
	case events.TopicStationUpdate:
		return "station.updated"
	case events.TopicConnectorUpdate:
		return "connector.status_changed"
	case events.TopicPaymentUpdate:
		return "transaction.updated"
	default:
		return string(t)
	}
}

// KafkaProducer publishes IntegrationEvents asynchronously via
// IBM/sarama, logging delivery outcomes and counting successes in
// Prometheus without blocking the caller.
type KafkaProducer struct {
	producer sarama.AsyncProducer
	topic    string
	log      *logging.Logger
	seq      func() string
}

// NewKafkaProducer dials the given brokers and starts the success/error
// drain goroutines. seq mints a unique event ID per publish; callers in
// production pass google/uuid.NewString, tests pass a deterministic
// sequence.
func NewKafkaProducer(brokers []string, topic string, flushFrequency time.Duration, log *logging.Logger, seq func() string) (*KafkaProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Compression = sarama.CompressionSnappy
	cfg.Producer.Flush.Frequency = flushFrequency
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka async producer: %w", err)
	}

	kp := &KafkaProducer{producer: producer, topic: topic, log: log, seq: seq}
	go kp.drainSuccesses()
	go kp.drainErrors()
	return kp, nil
}

// Publish mirrors evt to Kafka, keyed by station ID so every message for a
// station lands in the same partition. Non-blocking: when sarama's
// buffered Input() channel is full the event is dropped and logged, and
// Publish itself never waits on a broker round trip.
func (p *KafkaProducer) Publish(evt events.Event) {
	integrationEvt := toIntegrationEvent(evt, p.seq())

	data, err := json.Marshal(integrationEvt)
	if err != nil {
		p.log.Errorf("marshal integration event: %v", err)
		return
	}

	msg := &sarama.ProducerMessage{
		Topic:    p.topic,
		Key:      sarama.StringEncoder(evt.ChargePointID),
		Value:    sarama.ByteEncoder(data),
		Metadata: integrationEvt.EventType,
	}
	select {
	case p.producer.Input() <- msg:
	default:
		p.log.Warnf("kafka input buffer full, dropping %s event for %s", integrationEvt.EventType, evt.ChargePointID)
	}
}

// Close flushes and closes the underlying producer.
func (p *KafkaProducer) Close() error {
	return p.producer.Close()
}

func (p *KafkaProducer) drainSuccesses() {
	for msg := range p.producer.Successes() {
		if eventType, ok := msg.Metadata.(string); ok {
			metrics.MessagesSent.WithLabelValues("kafka:" + eventType).Inc()
		}
	}
}

func (p *KafkaProducer) drainErrors() {
	for err := range p.producer.Errors() {
		p.log.Errorf("kafka publish failed: %v", err.Err)
	}
}
