package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/segmentio/kafka-go"

	"ms-checkin/internal/models"
)

type Consumer struct {
	reader *kafka.Reader
}

// NewConsumer creates a Kafka consumer for the attendee-registered topic:
// the order service emits one message per attendee when an order completes,
// and this service provisions the participant so the ticket is scannable.
func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader}
}

// Start consumes attendee registrations until the context is cancelled.
func (c *Consumer) Start(ctx context.Context, handler func(participant models.Participant)) {
	fmt.Println("Kafka consumer started...")

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("Error reading message: %v\n", err)
			continue
		}

		var participant models.Participant
		if err := json.Unmarshal(msg.Value, &participant); err != nil {
			log.Printf("Failed to unmarshal attendee message: %v\n", err)
			continue
		}

		log.Printf("Received attendee registration: code=%s event=%s", participant.Code, participant.EventID)
		handler(participant)
	}
}

// Close gracefully shuts down the Kafka reader
func (c *Consumer) Close() error {
	return c.reader.Close()
}
