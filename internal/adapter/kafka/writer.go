package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/storm-vision-service/internal/domain"
	"github.com/couchcryptid/storm-vision-service/internal/observability"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer publishes completed analyses to a Kafka topic.
// It implements domain.Publisher.
type Writer struct {
	writer  *kafkago.Writer
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewWriter creates a Kafka producer for the analysis topic.
func NewWriter(brokers []string, topic string, metrics *observability.Metrics, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, metrics: metrics, logger: logger}
}

// Publish writes one analysis-completed event keyed by the analysis ID.
func (w *Writer) Publish(ctx context.Context, analysis domain.WeatherAnalysis) error {
	msg, err := serializeToMessage(analysis)
	if err != nil {
		w.metrics.EventsPublished.WithLabelValues("error").Inc()
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		w.metrics.EventsPublished.WithLabelValues("error").Inc()
		return fmt.Errorf("publish analysis %s: %w", analysis.ID, err)
	}
	w.metrics.EventsPublished.WithLabelValues("success").Inc()
	w.logger.Debug("analysis published", "analysis_id", analysis.ID, "topic", w.writer.Topic)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a WeatherAnalysis into a Kafka message.
func serializeToMessage(analysis domain.WeatherAnalysis) (kafkago.Message, error) {
	data, err := json.Marshal(analysis)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize analysis: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(analysis.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "location", Value: []byte(analysis.LocationName)},
			{Key: "created_at", Value: []byte(analysis.CreatedAt.UTC().Format(time.RFC3339))},
		},
	}, nil
}
