//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/couchcryptid/nexahealth-reporter/internal/adapter/backend"
	"github.com/couchcryptid/nexahealth-reporter/internal/adapter/kafka"
	"github.com/couchcryptid/nexahealth-reporter/internal/config"
	"github.com/couchcryptid/nexahealth-reporter/internal/domain"
	"github.com/couchcryptid/nexahealth-reporter/internal/observability"
	"github.com/couchcryptid/nexahealth-reporter/internal/session"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const testReportTopic = "test-submitted-reports"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node Kafka container and returns its broker address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("nexahealth-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

// createTopic creates a single-partition topic through the cluster controller.
func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// TestSubmitPublishesReportEvent drives a session submit against a stub
// backend and reads the resulting event back from Kafka.
func TestSubmitPublishesReportEvent(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testReportTopic)

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","message":"Report submitted successfully"}`))
	}))
	defer api.Close()

	cfg := &config.Config{KafkaBrokers: []string{broker}, KafkaReportTopic: testReportTopic}
	publisher := kafka.NewPublisher(cfg, discardLogger())
	t.Cleanup(func() { _ = publisher.Close() })

	metrics := observability.NewMetricsForTesting()
	s := session.New("it-1", session.DefaultOptions(), session.Deps{
		Submitter: backend.NewClient(api.URL, 10*time.Second, metrics, discardLogger()),
		Publisher: publisher,
		Metrics:   metrics,
		Logger:    discardLogger(),
	})

	_, err := s.MovePin(ctx, domain.Position{Lat: 6.5244, Lon: 3.3792})
	require.NoError(t, err)
	str := func(v string) *string { return &v }
	s.UpdateFields(session.FormFields{
		DrugName:     str("Paracetamol"),
		PharmacyName: str("HealthPlus"),
		Description:  str("Tablets crumble"),
		State:        str("Lagos"),
		LGA:          str("Ikeja"),
	})

	out, err := s.Submit(ctx)
	require.NoError(t, err)

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:   []string{broker},
		Topic:     testReportTopic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  1 << 20,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
	defer readCancel()
	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from report topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var got domain.SubmittedReport
	require.NoError(t, json.Unmarshal(msg.Value, &got))

	assert.Equal(t, out.Report.ID, string(msg.Key))
	assert.Equal(t, kafka.EventReportSubmitted, headers["event_type"])
	assert.Equal(t, "Paracetamol", got.DrugName)
	require.NotNil(t, got.Position)
	assert.Equal(t, 6.5244, got.Position.Lat)
	assert.Equal(t, "Report submitted successfully", got.ServerMessage)
}
