package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"ms-checkin/internal/models"
)

type Producer struct {
	CompletedWriter *kafka.Writer
	DeniedWriter    *kafka.Writer
}

func NewProducer(brokers []string, completedTopic, deniedTopic string) *Producer {
	return &Producer{
		CompletedWriter: kafka.NewWriter(kafka.WriterConfig{
			Brokers: brokers,
			Topic:   completedTopic,
		}),
		DeniedWriter: kafka.NewWriter(kafka.WriterConfig{
			Brokers: brokers,
			Topic:   deniedTopic,
		}),
	}
}

// PublishCheckinCompleted streams a successful redemption to downstream
// consumers (notifications, live dashboards). Keyed by participant so all
// of one participant's entries land on the same partition, in order.
func (p *Producer) PublishCheckinCompleted(entry models.CheckinHistory) error {
	msgBytes, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	return p.CompletedWriter.WriteMessages(context.Background(),
		kafka.Message{
			Key:   []byte(entry.ParticipantID),
			Value: msgBytes,
		},
	)
}

type deniedEvent struct {
	EventID       string `json:"event_id"`
	ParticipantID string `json:"participant_id"`
	Reason        string `json:"reason"`
}

// PublishCheckinDenied streams a policy rejection for fraud monitoring.
func (p *Producer) PublishCheckinDenied(eventID, participantID, reason string) error {
	msgBytes, err := json.Marshal(deniedEvent{
		EventID:       eventID,
		ParticipantID: participantID,
		Reason:        reason,
	})
	if err != nil {
		return err
	}

	return p.DeniedWriter.WriteMessages(context.Background(),
		kafka.Message{
			Key:   []byte(participantID),
			Value: msgBytes,
		},
	)
}

func (p *Producer) Close() error {
	if err := p.CompletedWriter.Close(); err != nil {
		return fmt.Errorf("failed to close completed writer: %w", err)
	}
	return p.DeniedWriter.Close()
}
