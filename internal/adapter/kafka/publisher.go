package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/nexahealth-reporter/internal/config"
	"github.com/couchcryptid/nexahealth-reporter/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// EventReportSubmitted is the event_type header of accepted reports.
const EventReportSubmitted = "report.submitted"

// Publisher produces submitted-report events to a Kafka topic.
// It implements session.ReportPublisher.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured report topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaReportTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Publisher{writer: w, logger: logger}
}

// PublishReport writes one report event keyed by report id, so every event
// for a report lands on the same partition.
func (p *Publisher) PublishReport(ctx context.Context, report domain.SubmittedReport) error {
	msg, err := serializeToMessage(report)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish report %s: %w", report.ID, err)
	}
	p.logger.Debug("report event published", "report", report.ID, "topic", p.writer.Topic)
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a SubmittedReport into a Kafka message.
func serializeToMessage(report domain.SubmittedReport) (kafkago.Message, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize submitted report: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(report.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(EventReportSubmitted)},
			{Key: "submitted_at", Value: []byte(report.SubmittedAt.Format(time.RFC3339))},
		},
	}, nil
}
