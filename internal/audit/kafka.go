package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaSink publishes audit events to a compliance topic so downstream
// retention tooling gets its own copy of the trail. The database remains the
// primary record; the feed is a secondary delivery.
type KafkaSink struct {
	client *kgo.Client
}

// NewKafkaSink connects a producer to the given brokers and topic.
func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.ProduceRequestTimeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect kafka producer: %w", err)
	}
	return &KafkaSink{client: client}, nil
}

type kafkaEvent struct {
	Action         string    `json:"action"`
	IPAddress      string    `json:"ip_address,omitempty"`
	UserAgent      string    `json:"user_agent,omitempty"`
	Endpoint       string    `json:"endpoint,omitempty"`
	DataSubject    string    `json:"data_subject,omitempty"`
	UserID         string    `json:"user_id"`
	UserRole       string    `json:"user_role"`
	RequestData    string    `json:"request_data,omitempty"`
	ResponseStatus int       `json:"response_status"`
	Status         string    `json:"status"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Publish sends one event, keyed by data subject so a subject's events stay
// ordered within a partition.
func (s *KafkaSink) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(kafkaEvent{
		Action:         string(event.Action),
		IPAddress:      event.IPAddress,
		UserAgent:      event.UserAgent,
		Endpoint:       event.Endpoint,
		DataSubject:    event.DataSubject,
		UserID:         event.UserID,
		UserRole:       event.UserRole,
		RequestData:    event.RequestData,
		ResponseStatus: event.ResponseStatus,
		Status:         event.Status,
		ErrorMessage:   event.ErrorMessage,
		Timestamp:      event.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	record := &kgo.Record{Key: []byte(event.DataSubject), Value: payload}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

// Close flushes and shuts down the producer.
func (s *KafkaSink) Close() {
	s.client.Close()
}
